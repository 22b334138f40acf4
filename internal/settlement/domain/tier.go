package settlement

import (
	"fmt"
	"time"

	"settlement-platform/internal/money"
)

// TierAggregate is the shared shape of daily, weekly, monthly and yearly
// settlement totals for one brand and one period.
// Invariants:
// 1) (brandID, period key) and the settlement number are unique.
// 2) finalSettlementAmount = sales - commission - tax - pgFee, recomputed
//    on every totals change, never independently set.
// 3) A CONFIRMED aggregate is frozen against incremental updates; only a
//    confirmation job may replace its totals.
type TierAggregate struct {
	id               int64
	brandID          int64
	period           PeriodKey
	settlementNumber string
	timezone         string

	totals      AggregationTotals
	finalAmount money.Money

	status       SettlementStatus
	aggregatedAt time.Time
	completedAt  time.Time
	confirmedAt  time.Time

	isNew bool
}

// NewTierAggregate creates an empty PENDING aggregate for a brand and
// period. It is called on the first contributing transaction.
func NewTierAggregate(brandID int64, period PeriodKey, timezone string) (*TierAggregate, error) {
	if brandID <= 0 {
		return nil, ErrInvalidBrand
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	return &TierAggregate{
		brandID:          brandID,
		period:           period,
		settlementNumber: BuildSettlementNumber(period, brandID),
		timezone:         timezone,
		status:           StatusPending,
		isNew:            true,
	}, nil
}

// RestoreTierAggregate rebuilds an aggregate from persisted state.
func RestoreTierAggregate(
	id, brandID int64,
	period PeriodKey,
	settlementNumber, timezone string,
	totals AggregationTotals,
	status SettlementStatus,
	aggregatedAt, completedAt, confirmedAt time.Time,
) (*TierAggregate, error) {
	if brandID <= 0 {
		return nil, ErrInvalidBrand
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, ErrInvalidStatusTransition
	}

	agg := &TierAggregate{
		id:               id,
		brandID:          brandID,
		period:           period,
		settlementNumber: settlementNumber,
		timezone:         timezone,
		totals:           totals,
		finalAmount:      totals.FinalSettlementAmount(),
		status:           status,
		aggregatedAt:     aggregatedAt,
		completedAt:      completedAt,
		confirmedAt:      confirmedAt,
	}
	if agg.settlementNumber == "" {
		agg.settlementNumber = BuildSettlementNumber(period, brandID)
	}
	return agg, nil
}

// AddAggregatedData additively merges incremental totals. This is the
// minute-level path: the same aggregate accumulates across ticks.
func (a *TierAggregate) AddAggregatedData(delta AggregationTotals, at time.Time) error {
	if a.status.IsFrozen() {
		return ErrAggregateFrozen
	}
	if a.status.IsTerminal() {
		return ErrAggregateFailed
	}
	if a.status != StatusProcessing {
		if !a.status.CanTransitionTo(StatusProcessing) {
			return ErrInvalidStatusTransition
		}
		a.status = StatusProcessing
	}

	a.totals = a.totals.Add(delta)
	a.finalAmount = a.totals.FinalSettlementAmount()
	a.aggregatedAt = at
	return nil
}

// SetAggregatedData replaces totals wholesale. This is the
// confirmation path: re-running replaces rather than adds, so it is
// idempotent even on an already confirmed aggregate.
func (a *TierAggregate) SetAggregatedData(totals AggregationTotals, at time.Time) error {
	if a.status.IsTerminal() {
		return ErrAggregateFailed
	}
	a.totals = totals
	a.finalAmount = totals.FinalSettlementAmount()
	a.aggregatedAt = at
	return nil
}

// MarkCompleted records a successful incremental merge.
func (a *TierAggregate) MarkCompleted(at time.Time) error {
	if a.status == StatusCompleted {
		return nil
	}
	if !a.status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}
	a.status = StatusCompleted
	a.completedAt = at
	return nil
}

// MarkConfirmed freezes the aggregate. Confirming twice is a no-op.
func (a *TierAggregate) MarkConfirmed(at time.Time) error {
	if a.status == StatusConfirmed {
		a.confirmedAt = at
		return nil
	}
	if !a.status.CanTransitionTo(StatusConfirmed) {
		return ErrInvalidStatusTransition
	}
	a.status = StatusConfirmed
	a.confirmedAt = at
	return nil
}

// MarkFailed moves the aggregate to its terminal error state.
func (a *TierAggregate) MarkFailed() error {
	if !a.status.CanTransitionTo(StatusFailed) {
		return ErrInvalidStatusTransition
	}
	a.status = StatusFailed
	return nil
}

// MarkPersisted clears the new flag after a successful save.
func (a *TierAggregate) MarkPersisted(id int64) {
	if a == nil {
		return
	}
	if a.id == 0 {
		a.id = id
	}
	a.isNew = false
}

// ID returns the persistence identity, zero for unsaved aggregates.
func (a *TierAggregate) ID() int64 { return a.id }

// BrandID returns the owning brand.
func (a *TierAggregate) BrandID() int64 { return a.brandID }

// Period returns the period key.
func (a *TierAggregate) Period() PeriodKey { return a.period }

// Kind returns the tier kind.
func (a *TierAggregate) Kind() TierKind { return a.period.Kind }

// SettlementNumber returns the unique human-readable identifier.
func (a *TierAggregate) SettlementNumber() string { return a.settlementNumber }

// Timezone returns the brand timezone name.
func (a *TierAggregate) Timezone() string { return a.timezone }

// Totals returns the accumulated totals.
func (a *TierAggregate) Totals() AggregationTotals { return a.totals }

// FinalSettlementAmount returns the stored derived payout amount.
func (a *TierAggregate) FinalSettlementAmount() money.Money { return a.finalAmount }

// Status returns the lifecycle status.
func (a *TierAggregate) Status() SettlementStatus { return a.status }

// AggregatedAt returns the last merge timestamp.
func (a *TierAggregate) AggregatedAt() time.Time { return a.aggregatedAt }

// CompletedAt returns the completion timestamp.
func (a *TierAggregate) CompletedAt() time.Time { return a.completedAt }

// ConfirmedAt returns the confirmation timestamp.
func (a *TierAggregate) ConfirmedAt() time.Time { return a.confirmedAt }

// IsNew reports whether the aggregate was freshly created.
func (a *TierAggregate) IsNew() bool { return a.isNew }

// Clone returns a detached copy marked as persisted.
func (a *TierAggregate) Clone() *TierAggregate {
	if a == nil {
		return nil
	}
	copied := *a
	copied.isNew = false
	return &copied
}

// BuildSettlementNumber builds the unique human-readable identifier for
// a period + brand, e.g. "SD-20251030-B7" or "SW-202510W5-B7".
func BuildSettlementNumber(period PeriodKey, brandID int64) string {
	return fmt.Sprintf("S%s-%s-B%d", period.Kind.letter(), period.Key(), brandID)
}
