package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	payments "settlement-platform/internal/payments/domain"
)

// PaymentRepository is an in-memory payment store for tests.
type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[int64]*payments.Payment
}

// NewPaymentRepository constructs an empty repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[int64]*payments.Payment)}
}

// Add registers an approved payment.
func (r *PaymentRepository) Add(payment payments.Payment) {
	r.mu.Lock()
	copied := payment
	r.payments[payment.ID] = &copied
	r.mu.Unlock()
}

// UnsettledIDRange returns the inclusive eligible id range.
func (r *PaymentRepository) UnsettledIDRange(ctx context.Context) (payments.IDRange, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	bounds := payments.IDRange{Lo: 1, Hi: 0}
	first := true
	for id, payment := range r.payments {
		if payment.IsSettled() {
			continue
		}
		if first {
			bounds = payments.IDRange{Lo: id, Hi: id}
			first = false
			continue
		}
		if id < bounds.Lo {
			bounds.Lo = id
		}
		if id > bounds.Hi {
			bounds.Hi = id
		}
	}
	return bounds, nil
}

// ListUnsettledInRange lists eligible payments ordered by id.
func (r *PaymentRepository) ListUnsettledInRange(ctx context.Context, lo, hi, afterID int64, limit int) ([]payments.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []payments.Payment
	for id, payment := range r.payments {
		if payment.IsSettled() {
			continue
		}
		if id < lo || id > hi || id <= afterID {
			continue
		}
		result = append(result, *payment)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkSettled stamps settled_at on the given payments. Used by the
// in-memory settlement store to emulate the chunk transaction.
func (r *PaymentRepository) MarkSettled(ids []int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if payment, ok := r.payments[id]; ok && payment.SettledAt == nil {
			stamped := at
			payment.SettledAt = &stamped
		}
	}
}

// Get returns a payment copy by id.
func (r *PaymentRepository) Get(id int64) (payments.Payment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment, ok := r.payments[id]
	if !ok {
		return payments.Payment{}, false
	}
	return *payment, true
}
