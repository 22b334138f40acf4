package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"settlement-platform/internal/money"
)

// TransactionType distinguishes sales from refunds.
type TransactionType string

const (
	TransactionOrder  TransactionType = "ORDER"
	TransactionRefund TransactionType = "REFUND"
)

// IsValid checks if the type is one of the supported values.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionOrder, TransactionRefund:
		return true
	default:
		return false
	}
}

// TransactionSettlement is one settlement row per (payment, brand) pair.
// It is created once by the ingestion job and never mutated afterward,
// except for the aggregation status which the aggregation engine owns.
type TransactionSettlement struct {
	ID               int64
	BrandID          int64
	PaymentID        int64
	PGTransactionID  string
	TransactionType  TransactionType
	TransactionAmount money.Money
	CommissionRate   decimal.Decimal
	CommissionAmount money.Money
	TaxAmount        money.Money
	PGFeeAmount      money.Money

	TransactionDateUTC   time.Time
	TransactionDateLocal time.Time
	TimezoneOffsetSec    int

	AggregationStatus AggregationStatus
	CreatedAt         time.Time
}

// NewTransactionSettlement builds a settlement row for a payment line
// item. The local date and timezone offset are derived from approvedAt
// in the brand timezone; the fee and tax amounts are frozen at creation.
func NewTransactionSettlement(
	brandID, paymentID int64,
	pgTransactionID string,
	txType TransactionType,
	amount money.Money,
	commissionRate decimal.Decimal,
	commission, tax, pgFee money.Money,
	approvedAt time.Time,
	loc *time.Location,
) (*TransactionSettlement, error) {
	if brandID <= 0 {
		return nil, ErrInvalidBrand
	}
	if !txType.IsValid() {
		return nil, ErrInvalidTransactionType
	}
	if approvedAt.IsZero() {
		return nil, ErrInvalidPeriod
	}
	if loc == nil {
		loc = time.UTC
	}

	local := approvedAt.In(loc)
	_, offset := local.Zone()

	return &TransactionSettlement{
		BrandID:              brandID,
		PaymentID:            paymentID,
		PGTransactionID:      pgTransactionID,
		TransactionType:      txType,
		TransactionAmount:    amount,
		CommissionRate:       commissionRate,
		CommissionAmount:     commission,
		TaxAmount:            tax,
		PGFeeAmount:          pgFee,
		TransactionDateUTC:   approvedAt.UTC(),
		TransactionDateLocal: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc),
		TimezoneOffsetSec:    offset,
		AggregationStatus:    AggregationNotAggregated,
	}, nil
}

// FinalSettlementAmount is the derived payout amount. It is never
// stored on the row and is always recomputable.
func (s *TransactionSettlement) FinalSettlementAmount() money.Money {
	return s.TransactionAmount.
		Sub(s.CommissionAmount).
		Sub(s.TaxAmount).
		Sub(s.PGFeeAmount)
}

// SignedTotals returns the row's contribution to tier totals. Refunds
// contribute negatively to every amount while still counting one order.
func (s *TransactionSettlement) SignedTotals() AggregationTotals {
	totals := AggregationTotals{
		OrderCount:       1,
		SalesAmount:      s.TransactionAmount,
		CommissionAmount: s.CommissionAmount,
		TaxAmount:        s.TaxAmount,
		PGFeeAmount:      s.PGFeeAmount,
	}
	if s.TransactionType == TransactionRefund {
		totals.SalesAmount = totals.SalesAmount.Neg()
		totals.CommissionAmount = totals.CommissionAmount.Neg()
		totals.TaxAmount = totals.TaxAmount.Neg()
		totals.PGFeeAmount = totals.PGFeeAmount.Neg()
	}
	return totals
}

// AggregationTotals is the summable tuple shared by all tiers.
type AggregationTotals struct {
	OrderCount       int64
	SalesAmount      money.Money
	CommissionAmount money.Money
	TaxAmount        money.Money
	PGFeeAmount      money.Money
}

// Add returns the element-wise sum.
func (t AggregationTotals) Add(other AggregationTotals) AggregationTotals {
	return AggregationTotals{
		OrderCount:       t.OrderCount + other.OrderCount,
		SalesAmount:      t.SalesAmount.Add(other.SalesAmount),
		CommissionAmount: t.CommissionAmount.Add(other.CommissionAmount),
		TaxAmount:        t.TaxAmount.Add(other.TaxAmount),
		PGFeeAmount:      t.PGFeeAmount.Add(other.PGFeeAmount),
	}
}

// FinalSettlementAmount is sales minus commission, tax and PG fee.
func (t AggregationTotals) FinalSettlementAmount() money.Money {
	return t.SalesAmount.
		Sub(t.CommissionAmount).
		Sub(t.TaxAmount).
		Sub(t.PGFeeAmount)
}

// AggregationGroup is one (brand, local date) tuple produced by the
// grouping query over claimed per-transaction rows.
type AggregationGroup struct {
	BrandID   int64
	LocalDate time.Time
	Totals    AggregationTotals
}
