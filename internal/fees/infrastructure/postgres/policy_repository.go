package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"settlement-platform/internal/fees"
)

const defaultFeePoliciesTable = "pg_fee_policies"

// PolicyRepository resolves fee policies from Postgres.
type PolicyRepository struct {
	db    *sql.DB
	table string
}

// PolicyOption configures the repository.
type PolicyOption func(*PolicyRepository)

// WithTable overrides the policies table name.
func WithTable(table string) PolicyOption {
	return func(r *PolicyRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewPolicyRepository constructs a repository.
func NewPolicyRepository(db *sql.DB, opts ...PolicyOption) *PolicyRepository {
	repo := &PolicyRepository{db: db, table: defaultFeePoliciesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// FindEffective returns the policy active for provider + method at the
// given time, or nil when none matches.
func (r *PolicyRepository) FindEffective(ctx context.Context, provider, method string, at time.Time) (*fees.FeePolicy, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("fee policy repo: nil db")
	}
	if provider == "" {
		return nil, fees.ErrEmptyProvider
	}
	if method == "" {
		return nil, fees.ErrEmptyMethod
	}

	query := fmt.Sprintf(`
SELECT id, provider, method, fee_type, fee_value, effective_from, effective_to
FROM %s
WHERE provider = $1
	AND method = $2
	AND effective_from <= $3
	AND (effective_to IS NULL OR effective_to > $3)
ORDER BY effective_from DESC
LIMIT 1`, r.table)

	row := r.db.QueryRowContext(ctx, query, provider, method, at)

	var (
		policy      fees.FeePolicy
		feeType     string
		value       string
		effectiveTo sql.NullTime
	)
	err := row.Scan(&policy.ID, &policy.Provider, &policy.Method, &feeType, &value, &policy.EffectiveFrom, &effectiveTo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	policy.FeeType = fees.FeeType(feeType)
	if !policy.FeeType.IsValid() {
		return nil, fees.ErrInvalidFeeType
	}
	policy.Value, err = decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("fee policy repo: parse fee value: %w", err)
	}
	if effectiveTo.Valid {
		policy.EffectiveTo = effectiveTo.Time
	}
	return &policy, nil
}
