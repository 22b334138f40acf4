package settlement

import "errors"

var (
	// ErrInvalidBrand is returned when a brand id is missing or non-positive.
	ErrInvalidBrand = errors.New("settlement: invalid brand id")
	// ErrInvalidTierKind is returned for an unsupported tier kind.
	ErrInvalidTierKind = errors.New("settlement: invalid tier kind")
	// ErrInvalidPeriod is returned when a period key is malformed.
	ErrInvalidPeriod = errors.New("settlement: invalid period")
	// ErrInvalidTransactionType is returned for an unsupported transaction type.
	ErrInvalidTransactionType = errors.New("settlement: invalid transaction type")
	// ErrInvalidStatusTransition is returned by guarded state changes.
	ErrInvalidStatusTransition = errors.New("settlement: invalid status transition")
	// ErrAggregateFrozen is returned when mutating a confirmed aggregate.
	ErrAggregateFrozen = errors.New("settlement: aggregate is confirmed and frozen")
	// ErrAggregateFailed is returned when mutating a failed aggregate.
	ErrAggregateFailed = errors.New("settlement: aggregate is in failed state")
	// ErrDuplicateSettlementNumber is returned on a settlement number clash.
	ErrDuplicateSettlementNumber = errors.New("settlement: duplicate settlement number")
	// ErrNilAggregate is returned when saving a nil aggregate.
	ErrNilAggregate = errors.New("settlement: nil aggregate")
)
