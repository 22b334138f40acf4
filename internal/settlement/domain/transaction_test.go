package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"settlement-platform/internal/money"
)

func TestNewTransactionSettlement_LocalDate(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2025-10-30 20:00 UTC is 2025-10-31 05:00 in Seoul.
	approvedAt := time.Date(2025, time.October, 30, 20, 0, 0, 0, time.UTC)

	row, err := NewTransactionSettlement(
		7, 100, "pg-tx-1", TransactionOrder,
		money.FromInt64(10000), decimal.NewFromInt(10),
		money.FromInt64(1000), money.FromInt64(100), money.FromInt64(300),
		approvedAt, seoul,
	)
	if err != nil {
		t.Fatalf("new settlement: %v", err)
	}

	if row.TransactionDateLocal.Day() != 31 {
		t.Fatalf("local date mismatch: got=%s", row.TransactionDateLocal)
	}
	if row.TransactionDateUTC.Day() != 30 {
		t.Fatalf("utc date mismatch: got=%s", row.TransactionDateUTC)
	}
	if row.TimezoneOffsetSec != 9*3600 {
		t.Fatalf("tz offset mismatch: got=%d", row.TimezoneOffsetSec)
	}
	if row.AggregationStatus != AggregationNotAggregated {
		t.Fatalf("new row must be NOT_AGGREGATED, got %s", row.AggregationStatus)
	}
}

func TestTransactionSettlement_FinalAmountDerived(t *testing.T) {
	row, err := NewTransactionSettlement(
		7, 100, "pg-tx-1", TransactionOrder,
		money.FromInt64(10000), decimal.NewFromInt(10),
		money.FromInt64(1000), money.FromInt64(100), money.FromInt64(300),
		time.Now(), time.UTC,
	)
	if err != nil {
		t.Fatalf("new settlement: %v", err)
	}

	if got := row.FinalSettlementAmount(); !got.Equal(money.FromInt64(8600)) {
		t.Fatalf("final amount mismatch: got=%s want=8600.00", got)
	}
}

func TestTransactionSettlement_RefundContributesNegative(t *testing.T) {
	row, err := NewTransactionSettlement(
		7, 100, "pg-tx-2", TransactionRefund,
		money.FromInt64(5000), decimal.NewFromInt(10),
		money.FromInt64(500), money.FromInt64(50), money.FromInt64(150),
		time.Now(), time.UTC,
	)
	if err != nil {
		t.Fatalf("new settlement: %v", err)
	}

	totals := row.SignedTotals()
	if totals.OrderCount != 1 {
		t.Fatalf("refund still counts one transaction, got %d", totals.OrderCount)
	}
	if !totals.SalesAmount.Equal(money.FromInt64(5000).Neg()) {
		t.Fatalf("refund sales must be negative, got %s", totals.SalesAmount)
	}
	if !totals.FinalSettlementAmount().Equal(money.FromInt64(4300).Neg()) {
		t.Fatalf("refund final must be negative, got %s", totals.FinalSettlementAmount())
	}
}

func TestNewTransactionSettlement_Validation(t *testing.T) {
	if _, err := NewTransactionSettlement(0, 1, "x", TransactionOrder, money.Zero, decimal.Zero, money.Zero, money.Zero, money.Zero, time.Now(), time.UTC); err == nil {
		t.Fatalf("expected error for missing brand")
	}
	if _, err := NewTransactionSettlement(7, 1, "x", TransactionType("VOID"), money.Zero, decimal.Zero, money.Zero, money.Zero, money.Zero, time.Now(), time.UTC); err == nil {
		t.Fatalf("expected error for invalid type")
	}
	if _, err := NewTransactionSettlement(7, 1, "x", TransactionOrder, money.Zero, decimal.Zero, money.Zero, money.Zero, money.Zero, time.Time{}, time.UTC); err == nil {
		t.Fatalf("expected error for zero approval time")
	}
}
