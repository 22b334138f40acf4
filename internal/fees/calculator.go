package fees

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"settlement-platform/internal/money"
)

// taxRate is the fixed VAT applied on top of the platform commission.
var taxRate = decimal.NewFromInt(10)

// Calculator computes the PG fee for a transaction. The result is
// frozen into the settlement row at ingestion time and never recomputed,
// so the calculation must be deterministic for the same inputs.
type Calculator struct {
	policies    PolicyRepository
	defaultRate decimal.Decimal
}

// NewCalculator constructs a Calculator with a fallback rate used when
// no explicit policy matches.
func NewCalculator(policies PolicyRepository, defaultRate decimal.Decimal) (*Calculator, error) {
	if policies == nil {
		return nil, errors.New("fee calculator: nil policy repository")
	}
	if defaultRate.IsNegative() {
		return nil, ErrNegativeRate
	}
	return &Calculator{policies: policies, defaultRate: defaultRate}, nil
}

// Calculate resolves the effective policy for provider + method at the
// transaction time and returns the PG fee for the amount.
func (c *Calculator) Calculate(ctx context.Context, provider, method string, amount money.Money, at time.Time) (money.Money, error) {
	if provider == "" {
		return money.Zero, ErrEmptyProvider
	}
	if method == "" {
		return money.Zero, ErrEmptyMethod
	}

	policy, err := c.policies.FindEffective(ctx, provider, method, at)
	if err != nil {
		return money.Zero, err
	}
	if policy == nil {
		fee := amount.MulRate(c.defaultRate)
		return fee.DivInt(100)
	}
	return policy.FeeFor(amount)
}

// Commission computes the platform commission for an amount and a
// brand commission rate expressed in percent.
func Commission(amount money.Money, rate decimal.Decimal) (money.Money, error) {
	return amount.MulRate(rate).DivInt(100)
}

// TaxOnCommission computes the fixed 10% VAT on a commission amount.
func TaxOnCommission(commission money.Money) (money.Money, error) {
	return commission.MulRate(taxRate).DivInt(100)
}
