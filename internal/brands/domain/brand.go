package brands

import (
	"context"
	"errors"
	"time"
)

// Brand represents a merchant brand whose payments are settled.
type Brand struct {
	ID        int64
	TenantID  string
	Name      string
	Timezone  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Validate checks brand invariants.
func (b Brand) Validate() error {
	if b.ID <= 0 {
		return errors.New("brand: invalid id")
	}
	if b.TenantID == "" {
		return errors.New("brand: empty tenant id")
	}
	if b.Name == "" {
		return errors.New("brand: empty name")
	}
	if b.Timezone == "" {
		return errors.New("brand: empty timezone")
	}
	return nil
}

// Location resolves the brand timezone, falling back to UTC on bad data.
func (b Brand) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Repository manages brand persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (*Brand, error)
	List(ctx context.Context) ([]*Brand, error)
	Save(ctx context.Context, brand *Brand) error
}
