package auth

import (
	"context"
	"database/sql"
	"errors"

	brandrepo "settlement-platform/internal/brands/infrastructure/postgres"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// BrandTenantChecker validates brand tenant ownership.
type BrandTenantChecker interface {
	EnsureBrandTenant(ctx context.Context, tenantID string, brandID int64) error
}

// BrandChecker checks brand ownership against the brand master data.
type BrandChecker struct {
	repo *brandrepo.BrandRepository
}

// NewBrandChecker constructs a BrandChecker.
func NewBrandChecker(db *sql.DB) *BrandChecker {
	if db == nil {
		return nil
	}
	return &BrandChecker{repo: brandrepo.NewBrandRepository(db)}
}

// EnsureBrandTenant verifies the brand belongs to the tenant.
func (c *BrandChecker) EnsureBrandTenant(ctx context.Context, tenantID string, brandID int64) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || brandID <= 0 {
		return nil
	}
	brand, err := c.repo.Get(ctx, brandID)
	if err != nil {
		return err
	}
	if brand == nil {
		return ErrNotFound
	}
	if brand.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
