package settlement

// AggregationStatus tracks a per-transaction settlement row through the
// incremental aggregation pipeline. It replaces row-level locking: the
// engine claims rows by moving them to PROCESSING and releases them by
// moving them to AGGREGATED, or back to NOT_AGGREGATED on recovery.
type AggregationStatus string

const (
	AggregationNotAggregated AggregationStatus = "NOT_AGGREGATED"
	AggregationProcessing    AggregationStatus = "PROCESSING"
	AggregationAggregated    AggregationStatus = "AGGREGATED"
)

// IsValid checks if the status is one of the supported values.
func (s AggregationStatus) IsValid() bool {
	switch s {
	case AggregationNotAggregated, AggregationProcessing, AggregationAggregated:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the transition is allowed.
// NOT_AGGREGATED -> PROCESSING (claim), PROCESSING -> AGGREGATED (flip),
// PROCESSING -> NOT_AGGREGATED (crash recovery reset).
func (s AggregationStatus) CanTransitionTo(next AggregationStatus) bool {
	switch s {
	case AggregationNotAggregated:
		return next == AggregationProcessing
	case AggregationProcessing:
		return next == AggregationAggregated || next == AggregationNotAggregated
	default:
		return false
	}
}

// SettlementStatus is the lifecycle of a tier aggregate.
type SettlementStatus string

const (
	StatusPending    SettlementStatus = "PENDING"
	StatusProcessing SettlementStatus = "PROCESSING"
	StatusCompleted  SettlementStatus = "COMPLETED"
	StatusConfirmed  SettlementStatus = "CONFIRMED"
	StatusFailed     SettlementStatus = "FAILED"
)

// IsValid checks if the status is one of the supported values.
func (s SettlementStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusConfirmed, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s SettlementStatus) IsTerminal() bool {
	return s == StatusFailed
}

// IsFrozen reports whether the period is closed for incremental updates.
func (s SettlementStatus) IsFrozen() bool {
	return s == StatusConfirmed
}

// CanTransitionTo reports whether the transition is allowed.
// PENDING -> PROCESSING; PROCESSING -> COMPLETED/FAILED; COMPLETED
// reopens to PROCESSING when a late contribution arrives; any
// non-terminal state can be CONFIRMED by a confirmation job.
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusProcessing:
		return s == StatusPending || s == StatusCompleted
	case StatusCompleted:
		return s == StatusProcessing
	case StatusConfirmed:
		return s != StatusConfirmed
	case StatusFailed:
		return true
	default:
		return false
	}
}
