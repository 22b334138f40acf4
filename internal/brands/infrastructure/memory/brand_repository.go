package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	brands "settlement-platform/internal/brands/domain"
)

// BrandRepository is an in-memory brand store for tests.
type BrandRepository struct {
	mu     sync.RWMutex
	brands map[int64]*brands.Brand
}

var _ brands.Repository = (*BrandRepository)(nil)

// NewBrandRepository constructs an empty repository.
func NewBrandRepository() *BrandRepository {
	return &BrandRepository{brands: make(map[int64]*brands.Brand)}
}

// Get returns a brand by id, or nil when absent.
func (r *BrandRepository) Get(ctx context.Context, id int64) (*brands.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	brand, ok := r.brands[id]
	if !ok {
		return nil, nil
	}
	copied := *brand
	return &copied, nil
}

// List returns all brands ordered by id.
func (r *BrandRepository) List(ctx context.Context) ([]*brands.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*brands.Brand, 0, len(r.brands))
	var ids []int64
	for id := range r.brands {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		copied := *r.brands[id]
		out = append(out, &copied)
	}
	return out, nil
}

// Save upserts a brand.
func (r *BrandRepository) Save(ctx context.Context, brand *brands.Brand) error {
	if err := brand.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *brand
	copied.UpdatedAt = time.Now().UTC()
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = copied.UpdatedAt
	}
	r.brands[copied.ID] = &copied
	return nil
}
