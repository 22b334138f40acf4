package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"settlement-platform/internal/settlement/application"
	settlement "settlement-platform/internal/settlement/domain"
	settlementrepo "settlement-platform/internal/settlement/infrastructure/postgres"

	feespkg "settlement-platform/internal/fees"
	feesrepo "settlement-platform/internal/fees/infrastructure/postgres"
	paymentsrepo "settlement-platform/internal/payments/infrastructure/postgres"

	"github.com/shopspring/decimal"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		pg_transaction_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		method TEXT NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		status TEXT NOT NULL,
		approved_at TIMESTAMPTZ NOT NULL,
		settled_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS payment_line_items (
		id BIGSERIAL PRIMARY KEY,
		payment_id BIGINT NOT NULL,
		brand_id BIGINT NOT NULL,
		item_type TEXT NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		commission_rate NUMERIC(7,4) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pg_fee_policies (
		id BIGSERIAL PRIMARY KEY,
		provider TEXT NOT NULL,
		method TEXT NOT NULL,
		fee_type TEXT NOT NULL,
		fee_value NUMERIC(10,4) NOT NULL,
		effective_from TIMESTAMPTZ NOT NULL,
		effective_to TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS transaction_settlements (
		id BIGSERIAL PRIMARY KEY,
		brand_id BIGINT NOT NULL,
		payment_id BIGINT NOT NULL,
		pg_transaction_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		transaction_amount NUMERIC(18,2) NOT NULL,
		commission_rate NUMERIC(7,4) NOT NULL,
		commission_amount NUMERIC(18,2) NOT NULL,
		tax_amount NUMERIC(18,2) NOT NULL,
		pg_fee_amount NUMERIC(18,2) NOT NULL,
		transaction_date_utc TIMESTAMPTZ NOT NULL,
		transaction_date_local DATE NOT NULL,
		timezone_offset_sec INT NOT NULL,
		aggregation_status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

var tierTables = []string{
	"daily_settlements",
	"weekly_settlements",
	"monthly_settlements",
	"yearly_settlements",
}

const tierTableDDL = `CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	brand_id BIGINT NOT NULL,
	period_key TEXT NOT NULL,
	period_start TIMESTAMPTZ NOT NULL,
	period_end TIMESTAMPTZ NOT NULL,
	week_of_month INT NOT NULL DEFAULT 0,
	settlement_number TEXT NOT NULL UNIQUE,
	timezone TEXT NOT NULL,
	order_count BIGINT NOT NULL,
	sales_amount NUMERIC(18,2) NOT NULL,
	commission_amount NUMERIC(18,2) NOT NULL,
	tax_amount NUMERIC(18,2) NOT NULL,
	pg_fee_amount NUMERIC(18,2) NOT NULL,
	final_settlement_amount NUMERIC(18,2) NOT NULL,
	status TEXT NOT NULL,
	aggregated_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	confirmed_at TIMESTAMPTZ,
	UNIQUE (brand_id, period_key)
)`

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("SETTLEMENT_TEST_DSN")
	if dsn == "" {
		t.Skip("SETTLEMENT_TEST_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	for _, table := range tierTables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(tierTableDDL, table)); err != nil {
			t.Fatalf("create %s: %v", table, err)
		}
	}

	tables := append([]string{"payments", "payment_line_items", "pg_fee_policies", "transaction_settlements"}, tierTables...)
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

type seedItem struct {
	brandID  int64
	itemType string
	amount   string
}

func seedPayment(t *testing.T, db *sql.DB, pgTxID string, amount string, approvedAt time.Time, items []seedItem) {
	t.Helper()
	ctx := context.Background()
	var paymentID int64
	err := db.QueryRowContext(ctx, `
INSERT INTO payments (pg_transaction_id, provider, method, amount, status, approved_at)
VALUES ($1, 'TOSS', 'CARD', $2, 'APPROVED', $3)
RETURNING id`, pgTxID, amount, approvedAt).Scan(&paymentID)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	for _, item := range items {
		_, err := db.ExecContext(ctx, `
INSERT INTO payment_line_items (payment_id, brand_id, item_type, amount, commission_rate)
VALUES ($1, $2, $3, $4, '10')`, paymentID, item.brandID, item.itemType, item.amount)
		if err != nil {
			t.Fatalf("seed line item: %v", err)
		}
	}
}

func newPipeline(t *testing.T, db *sql.DB, writer settlementrepo.TierWriter) (*application.IngestionJob, *application.AggregationEngine, *application.ConfirmationJob) {
	t.Helper()
	logger := log.New(os.Stderr, "", 0)

	opts := []settlementrepo.StoreOption{}
	if writer != nil {
		opts = append(opts, settlementrepo.WithTierWriter(writer))
	}
	store, err := settlementrepo.NewStore(db, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	paymentRepo := paymentsrepo.NewPaymentRepository(db)
	feeCalc, err := feespkg.NewCalculator(feesrepo.NewPolicyRepository(db), decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("new fee calculator: %v", err)
	}

	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	ingestion, err := application.NewIngestionJob(paymentRepo, store, feeCalc, loc, 2, 100, nil, logger)
	if err != nil {
		t.Fatalf("new ingestion job: %v", err)
	}
	engine, err := application.NewAggregationEngine(store, 1000, "Asia/Seoul", nil, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	confirmations, err := application.NewConfirmationJob(store, "Asia/Seoul", nil, logger, nil)
	if err != nil {
		t.Fatalf("new confirmation job: %v", err)
	}
	return ingestion, engine, confirmations
}

func TestPipeline_IngestAggregateConfirm(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	loc, _ := time.LoadLocation("Asia/Seoul")
	approvedAt := time.Date(2025, time.October, 30, 14, 0, 0, 0, loc)
	seedPayment(t, db, "pg-1", "10000.00", approvedAt, []seedItem{{7, "ORDER", "10000.00"}})
	seedPayment(t, db, "pg-2", "8000.00", approvedAt, []seedItem{
		{7, "ORDER", "5000.00"},
		{8, "REFUND", "3000.00"},
	})

	ingestion, engine, confirmations := newPipeline(t, db, nil)

	result, err := ingestion.Run(ctx)
	if err != nil {
		t.Fatalf("ingestion run: %v", err)
	}
	if result.Reads != 2 || result.Writes != 3 {
		t.Fatalf("reads=%d writes=%d, expected 2/3", result.Reads, result.Writes)
	}

	var unsettled int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments WHERE settled_at IS NULL").Scan(&unsettled); err != nil {
		t.Fatalf("count unsettled: %v", err)
	}
	if unsettled != 0 {
		t.Fatalf("expected all payments settled, %d remain", unsettled)
	}

	// Re-running ingests nothing.
	again, err := ingestion.Run(ctx)
	if err != nil {
		t.Fatalf("second ingestion run: %v", err)
	}
	if again.Writes != 0 {
		t.Fatalf("expected idempotent re-run, wrote %d", again.Writes)
	}

	tick, err := engine.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if tick.SweptRows != 3 {
		t.Fatalf("expected 3 swept rows, got %d", tick.SweptRows)
	}
	// Two brands, four tiers each.
	if tick.InsertCount != 8 {
		t.Fatalf("expected 8 tier inserts, got %d", tick.InsertCount)
	}

	store, err := settlementrepo.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	daily, err := store.FindTier(ctx, settlement.TierDaily, 7, "20251030")
	if err != nil {
		t.Fatalf("find daily: %v", err)
	}
	if daily == nil {
		t.Fatal("daily tier missing")
	}
	if got := daily.Totals().SalesAmount.String(); got != "15000.00" {
		t.Fatalf("daily sales = %s", got)
	}
	if daily.Status() != settlement.StatusCompleted {
		t.Fatalf("daily status = %s", daily.Status())
	}

	refunded, err := store.FindTier(ctx, settlement.TierDaily, 8, "20251030")
	if err != nil {
		t.Fatalf("find refund daily: %v", err)
	}
	if got := refunded.Totals().SalesAmount.String(); got != "-3000.00" {
		t.Fatalf("refund daily sales = %s", got)
	}

	confirmed, err := confirmations.ConfirmDaily(ctx, time.Date(2025, time.October, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("confirm daily: %v", err)
	}
	if confirmed != 2 {
		t.Fatalf("expected 2 confirmed brands, got %d", confirmed)
	}
	daily, err = store.FindTier(ctx, settlement.TierDaily, 7, "20251030")
	if err != nil {
		t.Fatalf("reload daily: %v", err)
	}
	if daily.Status() != settlement.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", daily.Status())
	}
}

func TestPipeline_TickAccumulatesWithBatchWriter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	loc, _ := time.LoadLocation("Asia/Seoul")
	approvedAt := time.Date(2025, time.October, 30, 14, 0, 0, 0, loc)
	seedPayment(t, db, "pg-1", "10000.00", approvedAt, []seedItem{{7, "ORDER", "10000.00"}})

	ingestion, engine, _ := newPipeline(t, db, settlementrepo.BatchInsertWriter{})
	if _, err := ingestion.Run(ctx); err != nil {
		t.Fatalf("ingestion run: %v", err)
	}
	if _, err := engine.Tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	seedPayment(t, db, "pg-2", "4000.00", approvedAt, []seedItem{{7, "ORDER", "4000.00"}})
	if _, err := ingestion.Run(ctx); err != nil {
		t.Fatalf("second ingestion run: %v", err)
	}
	tick, err := engine.Tick(ctx)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if tick.InsertCount != 0 || tick.UpdateCount != 4 {
		t.Fatalf("expected 0 inserts / 4 updates, got %d/%d", tick.InsertCount, tick.UpdateCount)
	}

	store, err := settlementrepo.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	daily, err := store.FindTier(ctx, settlement.TierDaily, 7, "20251030")
	if err != nil {
		t.Fatalf("find daily: %v", err)
	}
	if got := daily.Totals().SalesAmount.String(); got != "14000.00" {
		t.Fatalf("daily sales = %s", got)
	}
	if got := daily.Totals().OrderCount; got != 2 {
		t.Fatalf("daily orders = %d", got)
	}
}
