package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	brands "settlement-platform/internal/brands/domain"
)

const defaultBrandsTable = "brands"

// DBTX abstracts *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BrandRepository is a Postgres implementation for brands.
type BrandRepository struct {
	db    DBTX
	table string
}

// NewBrandRepository constructs a repository.
func NewBrandRepository(db DBTX, opts ...BrandOption) *BrandRepository {
	repo := &BrandRepository{db: db, table: defaultBrandsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// BrandOption configures the repository.
type BrandOption func(*BrandRepository)

// WithBrandsTable overrides the default table name.
func WithBrandsTable(table string) BrandOption {
	return func(repo *BrandRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a brand by id.
func (r *BrandRepository) Get(ctx context.Context, id int64) (*brands.Brand, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("brand repo: nil db")
	}
	if id <= 0 {
		return nil, errors.New("brand repo: invalid id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, timezone, status, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var brand brands.Brand
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&brand.ID,
		&brand.TenantID,
		&brand.Name,
		&brand.Timezone,
		&brand.Status,
		&brand.CreatedAt,
		&brand.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	brand.CreatedAt = brand.CreatedAt.UTC()
	brand.UpdatedAt = brand.UpdatedAt.UTC()
	return &brand, nil
}

// List returns all brands ordered by id.
func (r *BrandRepository) List(ctx context.Context) ([]*brands.Brand, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("brand repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, timezone, status, created_at, updated_at
FROM %s
ORDER BY id`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*brands.Brand
	for rows.Next() {
		var brand brands.Brand
		if err := rows.Scan(
			&brand.ID,
			&brand.TenantID,
			&brand.Name,
			&brand.Timezone,
			&brand.Status,
			&brand.CreatedAt,
			&brand.UpdatedAt,
		); err != nil {
			return nil, err
		}
		brand.CreatedAt = brand.CreatedAt.UTC()
		brand.UpdatedAt = brand.UpdatedAt.UTC()
		out = append(out, &brand)
	}
	return out, rows.Err()
}

// Save upserts a brand.
func (r *BrandRepository) Save(ctx context.Context, brand *brands.Brand) error {
	if r == nil || r.db == nil {
		return errors.New("brand repo: nil db")
	}
	if brand == nil {
		return errors.New("brand repo: nil brand")
	}
	if err := brand.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	timezone,
	status
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	name = EXCLUDED.name,
	timezone = EXCLUDED.timezone,
	status = EXCLUDED.status,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		brand.ID,
		brand.TenantID,
		brand.Name,
		brand.Timezone,
		brand.Status,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if brand.CreatedAt.IsZero() {
		brand.CreatedAt = now
	}
	brand.UpdatedAt = now
	return nil
}
