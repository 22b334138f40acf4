package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"settlement-platform/internal/settlement/application"
	settlement "settlement-platform/internal/settlement/domain"
)

// localDateLayout renders local calendar dates for the DATE column.
// Writing the formatted date sidesteps session time zone conversions.
const localDateLayout = "2006-01-02"

const (
	defaultTransactionsTable = "transaction_settlements"
	defaultPaymentsTable     = "payments"
	defaultDailyTable        = "daily_settlements"
	defaultWeeklyTable       = "weekly_settlements"
	defaultMonthlyTable      = "monthly_settlements"
	defaultYearlyTable       = "yearly_settlements"
)

// Store persists per-transaction settlement rows and the four tier
// aggregate tables. It backs the ingestion job, the aggregation engine
// and the confirmation jobs.
type Store struct {
	db           *sql.DB
	transactions string
	payments     string
	tierTables   map[settlement.TierKind]string
	writer       TierWriter
}

var (
	_ application.SettlementBatchWriter = (*Store)(nil)
	_ application.AggregationStore     = (*Store)(nil)
	_ application.ConfirmationStore    = (*Store)(nil)
)

// StoreOption configures the store.
type StoreOption func(*Store)

// WithTransactionsTable overrides the per-transaction table name.
func WithTransactionsTable(table string) StoreOption {
	return func(s *Store) {
		if table != "" {
			s.transactions = table
		}
	}
}

// WithPaymentsTable overrides the payments table name.
func WithPaymentsTable(table string) StoreOption {
	return func(s *Store) {
		if table != "" {
			s.payments = table
		}
	}
}

// WithTierTable overrides one tier table name.
func WithTierTable(kind settlement.TierKind, table string) StoreOption {
	return func(s *Store) {
		if table != "" {
			s.tierTables[kind] = table
		}
	}
}

// WithTierWriter selects the tier write strategy used by CommitTick.
func WithTierWriter(writer TierWriter) StoreOption {
	return func(s *Store) {
		if writer != nil {
			s.writer = writer
		}
	}
}

// NewStore constructs a store. The default tier write strategy is the
// row-at-a-time upsert.
func NewStore(db *sql.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("settlement store: nil db")
	}
	store := &Store{
		db:           db,
		transactions: defaultTransactionsTable,
		payments:     defaultPaymentsTable,
		tierTables: map[settlement.TierKind]string{
			settlement.TierDaily:   defaultDailyTable,
			settlement.TierWeekly:  defaultWeeklyTable,
			settlement.TierMonthly: defaultMonthlyTable,
			settlement.TierYearly:  defaultYearlyTable,
		},
		writer: UpsertWriter{},
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

func (s *Store) tierTable(kind settlement.TierKind) (string, error) {
	table, ok := s.tierTables[kind]
	if !ok || table == "" {
		return "", settlement.ErrInvalidTierKind
	}
	return table, nil
}

// InsertBatchAndMarkSettled inserts one ingestion chunk and stamps the
// source payments in a single transaction.
func (s *Store) InsertBatchAndMarkSettled(ctx context.Context, rows []*settlement.TransactionSettlement, paymentIDs []int64, settledAt time.Time) error {
	if len(rows) == 0 && len(paymentIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (
	brand_id, payment_id, pg_transaction_id, transaction_type,
	transaction_amount, commission_rate, commission_amount, tax_amount, pg_fee_amount,
	transaction_date_utc, transaction_date_local, timezone_offset_sec,
	aggregation_status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`, s.transactions)
	for _, row := range rows {
		_, err := tx.ExecContext(ctx, insert,
			row.BrandID, row.PaymentID, row.PGTransactionID, row.TransactionType,
			row.TransactionAmount, row.CommissionRate, row.CommissionAmount, row.TaxAmount, row.PGFeeAmount,
			row.TransactionDateUTC, row.TransactionDateLocal.Format(localDateLayout), row.TimezoneOffsetSec,
			settlement.AggregationNotAggregated, settledAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if len(paymentIDs) > 0 {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET settled_at = $1
WHERE id = ANY($2::bigint[]) AND settled_at IS NULL`, s.payments),
			settledAt, int64Array(paymentIDs))
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ResetStuckProcessing returns PROCESSING rows to NOT_AGGREGATED.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET aggregation_status = $1
WHERE aggregation_status = $2`, s.transactions),
		settlement.AggregationNotAggregated, settlement.AggregationProcessing)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClaimUnaggregated flips up to limit NOT_AGGREGATED rows to PROCESSING.
// SKIP LOCKED keeps concurrent claimers from blocking on each other.
func (s *Store) ClaimUnaggregated(ctx context.Context, limit int) (int64, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET aggregation_status = $1
WHERE id IN (
	SELECT id FROM %s
	WHERE aggregation_status = $2
	ORDER BY id
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)`, s.transactions, s.transactions),
		settlement.AggregationProcessing, settlement.AggregationNotAggregated, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const signedTotalsSelect = `
	COUNT(*),
	COALESCE(SUM(CASE WHEN transaction_type = 'REFUND' THEN -transaction_amount ELSE transaction_amount END), 0),
	COALESCE(SUM(CASE WHEN transaction_type = 'REFUND' THEN -commission_amount ELSE commission_amount END), 0),
	COALESCE(SUM(CASE WHEN transaction_type = 'REFUND' THEN -tax_amount ELSE tax_amount END), 0),
	COALESCE(SUM(CASE WHEN transaction_type = 'REFUND' THEN -pg_fee_amount ELSE pg_fee_amount END), 0)`

// GroupClaimed groups PROCESSING rows by brand and local date.
func (s *Store) GroupClaimed(ctx context.Context) ([]settlement.AggregationGroup, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT brand_id, transaction_date_local,`+signedTotalsSelect+`
FROM %s
WHERE aggregation_status = $1
GROUP BY brand_id, transaction_date_local
ORDER BY brand_id, transaction_date_local`, s.transactions),
		settlement.AggregationProcessing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroups(rows)
}

// GroupTransactionsByLocalDate groups every row on one local date by
// brand, regardless of aggregation status.
func (s *Store) GroupTransactionsByLocalDate(ctx context.Context, localDate time.Time) ([]settlement.AggregationGroup, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT brand_id, transaction_date_local,`+signedTotalsSelect+`
FROM %s
WHERE transaction_date_local = $1
GROUP BY brand_id, transaction_date_local
ORDER BY brand_id`, s.transactions),
		localDate.Format(localDateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroups(rows)
}

func scanGroups(rows *sql.Rows) ([]settlement.AggregationGroup, error) {
	var groups []settlement.AggregationGroup
	for rows.Next() {
		var group settlement.AggregationGroup
		if err := rows.Scan(
			&group.BrandID, &group.LocalDate,
			&group.Totals.OrderCount,
			&group.Totals.SalesAmount, &group.Totals.CommissionAmount,
			&group.Totals.TaxAmount, &group.Totals.PGFeeAmount,
		); err != nil {
			return nil, err
		}
		group.LocalDate = group.LocalDate.UTC()
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

const tierColumns = `
	id, brand_id, period_start,
	settlement_number, timezone,
	order_count, sales_amount, commission_amount, tax_amount, pg_fee_amount,
	status, aggregated_at, completed_at, confirmed_at`

// FindTier loads one tier aggregate, nil when absent.
func (s *Store) FindTier(ctx context.Context, kind settlement.TierKind, brandID int64, periodKey string) (*settlement.TierAggregate, error) {
	table, err := s.tierTable(kind)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT`+tierColumns+`
FROM %s
WHERE brand_id = $1 AND period_key = $2
LIMIT 1`, table), brandID, periodKey)
	return scanTier(row, kind)
}

// ListTiersInRange lists tier aggregates with period start in [from, to).
func (s *Store) ListTiersInRange(ctx context.Context, kind settlement.TierKind, from, to time.Time) ([]*settlement.TierAggregate, error) {
	table, err := s.tierTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT`+tierColumns+`
FROM %s
WHERE period_start >= $1 AND period_start < $2
ORDER BY brand_id, period_key`, table), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*settlement.TierAggregate
	for rows.Next() {
		agg, err := scanTier(rows, kind)
		if err != nil {
			return nil, err
		}
		if agg != nil {
			result = append(result, agg)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveTier upserts one tier aggregate, replacing totals and status.
// Used by the confirmation path.
func (s *Store) SaveTier(ctx context.Context, agg *settlement.TierAggregate) error {
	if agg == nil {
		return settlement.ErrNilAggregate
	}
	table, err := s.tierTable(agg.Kind())
	if err != nil {
		return err
	}

	period := agg.Period()
	totals := agg.Totals()
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	brand_id, period_key, period_start, period_end, week_of_month,
	settlement_number, timezone,
	order_count, sales_amount, commission_amount, tax_amount, pg_fee_amount,
	final_settlement_amount, status, aggregated_at, completed_at, confirmed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (brand_id, period_key) DO UPDATE SET
	order_count = EXCLUDED.order_count,
	sales_amount = EXCLUDED.sales_amount,
	commission_amount = EXCLUDED.commission_amount,
	tax_amount = EXCLUDED.tax_amount,
	pg_fee_amount = EXCLUDED.pg_fee_amount,
	final_settlement_amount = EXCLUDED.final_settlement_amount,
	status = EXCLUDED.status,
	aggregated_at = EXCLUDED.aggregated_at,
	completed_at = EXCLUDED.completed_at,
	confirmed_at = EXCLUDED.confirmed_at`, table),
		agg.BrandID(), period.Key(), period.Start(), period.End(), period.WeekOfMonth,
		agg.SettlementNumber(), agg.Timezone(),
		totals.OrderCount, totals.SalesAmount, totals.CommissionAmount, totals.TaxAmount, totals.PGFeeAmount,
		agg.FinalSettlementAmount(), agg.Status(),
		nullTime(agg.AggregatedAt()), nullTime(agg.CompletedAt()), nullTime(agg.ConfirmedAt()),
	)
	return tierWriteError(err)
}

// tierWriteError maps a unique violation on a settlement number index
// to the domain sentinel. The (brand, period) conflict target absorbs
// legitimate re-writes, so reaching the number constraint means two
// different periods produced the same number.
func tierWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		strings.Contains(pgErr.ConstraintName, "settlement_number") {
		return fmt.Errorf("%w: %s", settlement.ErrDuplicateSettlementNumber, pgErr.ConstraintName)
	}
	return err
}

// CommitTick applies all tier writes through the configured strategy
// and flips the claimed rows, in one transaction.
func (s *Store) CommitTick(ctx context.Context, writes []application.TierWrite) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	byKind := make(map[settlement.TierKind][]application.TierWrite)
	for _, write := range writes {
		kind := write.Aggregate.Kind()
		byKind[kind] = append(byKind[kind], write)
	}
	for _, kind := range []settlement.TierKind{settlement.TierDaily, settlement.TierWeekly, settlement.TierMonthly, settlement.TierYearly} {
		kindWrites := byKind[kind]
		if len(kindWrites) == 0 {
			continue
		}
		table, err := s.tierTable(kind)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if err := s.writer.WriteTiers(ctx, tx, table, kindWrites); err != nil {
			_ = tx.Rollback()
			return 0, tierWriteError(err)
		}
	}

	result, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET aggregation_status = $1
WHERE aggregation_status = $2`, s.transactions),
		settlement.AggregationAggregated, settlement.AggregationProcessing)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	swept, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return swept, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTier(row rowScanner, kind settlement.TierKind) (*settlement.TierAggregate, error) {
	var (
		id, brandID      int64
		periodStart      time.Time
		settlementNumber string
		timezone         string
		totals           settlement.AggregationTotals
		status           settlement.SettlementStatus
		aggregatedAt     sql.NullTime
		completedAt      sql.NullTime
		confirmedAt      sql.NullTime
	)
	err := row.Scan(
		&id, &brandID, &periodStart,
		&settlementNumber, &timezone,
		&totals.OrderCount, &totals.SalesAmount, &totals.CommissionAmount,
		&totals.TaxAmount, &totals.PGFeeAmount,
		&status, &aggregatedAt, &completedAt, &confirmedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	period, err := settlement.PeriodFor(kind, periodStart.UTC())
	if err != nil {
		return nil, err
	}
	return settlement.RestoreTierAggregate(
		id, brandID, period, settlementNumber, timezone, totals, status,
		aggregatedAt.Time, completedAt.Time, confirmedAt.Time,
	)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// int64Array renders ids as a Postgres bigint array literal.
func int64Array(ids []int64) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", id)
	}
	b.WriteByte('}')
	return b.String()
}
