package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	payments "settlement-platform/internal/payments/domain"
)

const (
	defaultPaymentsTable  = "payments"
	defaultLineItemsTable = "payment_line_items"
)

// PaymentRepository reads approved payments from Postgres.
type PaymentRepository struct {
	db             *sql.DB
	paymentsTable  string
	lineItemsTable string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*PaymentRepository)

// WithPaymentsTable overrides the payments table name.
func WithPaymentsTable(table string) RepositoryOption {
	return func(r *PaymentRepository) {
		if table != "" {
			r.paymentsTable = table
		}
	}
}

// WithLineItemsTable overrides the line items table name.
func WithLineItemsTable(table string) RepositoryOption {
	return func(r *PaymentRepository) {
		if table != "" {
			r.lineItemsTable = table
		}
	}
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository(db *sql.DB, opts ...RepositoryOption) *PaymentRepository {
	repo := &PaymentRepository{
		db:             db,
		paymentsTable:  defaultPaymentsTable,
		lineItemsTable: defaultLineItemsTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// UnsettledIDRange returns the inclusive id range of approved payments
// with settled_at IS NULL.
func (r *PaymentRepository) UnsettledIDRange(ctx context.Context) (payments.IDRange, error) {
	if r == nil || r.db == nil {
		return payments.IDRange{}, errors.New("payment repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT MIN(id), MAX(id)
FROM %s
WHERE status = 'APPROVED' AND settled_at IS NULL`, r.paymentsTable)

	var lo, hi sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query).Scan(&lo, &hi); err != nil {
		return payments.IDRange{}, err
	}
	if !lo.Valid || !hi.Valid {
		return payments.IDRange{Lo: 1, Hi: 0}, nil
	}
	return payments.IDRange{Lo: lo.Int64, Hi: hi.Int64}, nil
}

// ListUnsettledInRange streams eligible payments within an id range.
func (r *PaymentRepository) ListUnsettledInRange(ctx context.Context, lo, hi, afterID int64, limit int) ([]payments.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payment repo: nil db")
	}
	if limit <= 0 {
		return nil, errors.New("payment repo: non-positive limit")
	}

	query := fmt.Sprintf(`
SELECT id, pg_transaction_id, provider, method, amount, approved_at
FROM %s
WHERE status = 'APPROVED' AND settled_at IS NULL
	AND id >= $1 AND id <= $2 AND id > $3
ORDER BY id ASC
LIMIT $4`, r.paymentsTable)

	rows, err := r.db.QueryContext(ctx, query, lo, hi, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payments.Payment
	for rows.Next() {
		var payment payments.Payment
		if err := rows.Scan(
			&payment.ID,
			&payment.PGTransactionID,
			&payment.Provider,
			&payment.Method,
			&payment.Amount,
			&payment.ApprovedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachLineItems(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PaymentRepository) attachLineItems(ctx context.Context, batch []payments.Payment) error {
	if len(batch) == 0 {
		return nil
	}

	index := make(map[int64]int, len(batch))
	ids := make([]int64, 0, len(batch))
	for i, payment := range batch {
		index[payment.ID] = i
		ids = append(ids, payment.ID)
	}

	query := fmt.Sprintf(`
SELECT payment_id, brand_id, item_type, amount, commission_rate
FROM %s
WHERE payment_id = ANY($1)
ORDER BY payment_id, id`, r.lineItemsTable)

	rows, err := r.db.QueryContext(ctx, query, int64Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			paymentID int64
			item      payments.LineItem
			itemType  string
			rate      string
		)
		if err := rows.Scan(&paymentID, &item.BrandID, &itemType, &item.Amount, &rate); err != nil {
			return err
		}
		item.Type = payments.LineItemType(itemType)
		if !item.Type.IsValid() {
			return fmt.Errorf("payment repo: invalid line item type %q", itemType)
		}
		item.CommissionRate, err = decimal.NewFromString(rate)
		if err != nil {
			return fmt.Errorf("payment repo: parse commission rate: %w", err)
		}
		pos, ok := index[paymentID]
		if !ok {
			continue
		}
		batch[pos].LineItems = append(batch[pos].LineItems, item)
	}
	return rows.Err()
}

// int64Array renders an id slice as a Postgres array literal readable by
// the pgx stdlib driver.
func int64Array(ids []int64) string {
	if len(ids) == 0 {
		return "{}"
	}
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", id)
	}
	return out + "}"
}
