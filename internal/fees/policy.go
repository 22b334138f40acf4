package fees

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"settlement-platform/internal/money"
)

// FeeType selects how a policy computes its fee.
type FeeType string

const (
	FeeTypeFlat FeeType = "FLAT"
	FeeTypeRate FeeType = "RATE"
)

// IsValid checks if the fee type is one of the supported values.
func (t FeeType) IsValid() bool {
	switch t {
	case FeeTypeFlat, FeeTypeRate:
		return true
	default:
		return false
	}
}

// FeePolicy is a PG fee rule for a (provider, method) pair within a
// validity window. At most one policy is active per provider + method +
// date.
type FeePolicy struct {
	ID            int64
	Provider      string
	Method        string
	FeeType       FeeType
	Value         decimal.Decimal
	EffectiveFrom time.Time
	EffectiveTo   time.Time
}

// AppliesAt reports whether the policy is effective at the given time.
func (p FeePolicy) AppliesAt(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	if !p.EffectiveTo.IsZero() && !at.Before(p.EffectiveTo) {
		return false
	}
	return true
}

// FeeFor computes the policy fee for an amount.
func (p FeePolicy) FeeFor(amount money.Money) (money.Money, error) {
	switch p.FeeType {
	case FeeTypeFlat:
		return money.FromDecimal(p.Value), nil
	case FeeTypeRate:
		fee := amount.MulRate(p.Value)
		scaled, err := fee.DivInt(100)
		if err != nil {
			return money.Zero, err
		}
		return scaled, nil
	default:
		return money.Zero, ErrInvalidFeeType
	}
}

// PolicyRepository resolves effective fee policies.
type PolicyRepository interface {
	// FindEffective returns the policy active for provider + method at
	// the given time, or nil when none matches.
	FindEffective(ctx context.Context, provider, method string, at time.Time) (*FeePolicy, error)
}
