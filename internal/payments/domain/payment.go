package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"settlement-platform/internal/money"
)

// LineItemType distinguishes sales from refunds within a payment.
type LineItemType string

const (
	LineItemOrder  LineItemType = "ORDER"
	LineItemRefund LineItemType = "REFUND"
)

// IsValid checks if the line item type is supported.
func (t LineItemType) IsValid() bool {
	switch t {
	case LineItemOrder, LineItemRefund:
		return true
	default:
		return false
	}
}

// LineItem is the brand-level breakdown of an approved payment. A single
// payment can span multiple brands.
type LineItem struct {
	BrandID        int64
	Type           LineItemType
	Amount         money.Money
	CommissionRate decimal.Decimal
}

// Payment is an approved payment produced by the PG confirmation flow.
// The settlement pipeline only consumes its output: provider, method,
// amount and the brand breakdown.
type Payment struct {
	ID              int64
	PGTransactionID string
	Provider        string
	Method          string
	Amount          money.Money
	ApprovedAt      time.Time
	SettledAt       *time.Time
	LineItems       []LineItem
}

// IsSettled reports whether the payment was already settled.
func (p Payment) IsSettled() bool { return p.SettledAt != nil }

// IDRange is an inclusive payment id range.
type IDRange struct {
	Lo int64
	Hi int64
}

// IsEmpty reports whether the range holds no ids.
func (r IDRange) IsEmpty() bool { return r.Hi < r.Lo }

// Repository reads approved, unsettled payments for ingestion.
type Repository interface {
	// UnsettledIDRange returns the inclusive id range of approved
	// payments with no settled timestamp. An empty range is returned
	// when no payment is eligible.
	UnsettledIDRange(ctx context.Context) (IDRange, error)

	// ListUnsettledInRange streams eligible payments with id in
	// [lo, hi] and id > afterID, ordered by id, up to limit rows.
	ListUnsettledInRange(ctx context.Context, lo, hi, afterID int64, limit int) ([]Payment, error)
}
