package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every Money value carries.
const Scale = 2

// Money is an immutable fixed-point amount with two fractional digits.
// Multiplication and division truncate toward zero at the scale boundary,
// so repeating the same computation always yields the same value.
type Money struct {
	amount decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{amount: decimal.Zero}

// FromInt64 builds a Money from a whole-unit integer amount.
func FromInt64(value int64) Money {
	return Money{amount: decimal.NewFromInt(value)}
}

// FromDecimal builds a Money from a decimal, truncating to the scale.
func FromDecimal(value decimal.Decimal) Money {
	return Money{amount: value.Truncate(Scale)}
}

// Parse builds a Money from its string form.
func Parse(value string) (Money, error) {
	if value == "" {
		return Zero, errors.New("money: empty value")
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return Zero, fmt.Errorf("money: parse %q: %w", value, err)
	}
	return Money{amount: parsed.Truncate(Scale)}, nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// MulRate returns m * rate, truncated to the scale.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(rate).Truncate(Scale)}
}

// DivInt returns m / divisor, truncated to the scale.
func (m Money) DivInt(divisor int64) (Money, error) {
	if divisor == 0 {
		return Zero, errors.New("money: division by zero")
	}
	return Money{amount: m.amount.Div(decimal.NewFromInt(divisor)).Truncate(Scale)}, nil
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg()}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Equal reports value equality.
func (m Money) Equal(other Money) bool { return m.amount.Equal(other.amount) }

// Cmp compares two amounts: -1, 0 or 1.
func (m Money) Cmp(other Money) int { return m.amount.Cmp(other.amount) }

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.amount }

// String renders the amount with the fixed scale.
func (m Money) String() string { return m.amount.StringFixed(Scale) }

// Value implements driver.Valuer for SQL writes.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for SQL reads.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Zero
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case int64:
		*m = FromInt64(v)
		return nil
	case float64:
		*m = FromDecimal(decimal.NewFromFloat(v))
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

// MarshalJSON renders the amount as a JSON string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string or number amount.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
