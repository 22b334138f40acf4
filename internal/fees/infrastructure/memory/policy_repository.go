package memory

import (
	"context"
	"sync"
	"time"

	"settlement-platform/internal/fees"
)

// PolicyRepository is an in-memory policy store for tests.
type PolicyRepository struct {
	mu       sync.RWMutex
	policies []fees.FeePolicy
}

// NewPolicyRepository constructs an empty repository.
func NewPolicyRepository() *PolicyRepository {
	return &PolicyRepository{}
}

// Add registers a policy.
func (r *PolicyRepository) Add(policy fees.FeePolicy) {
	r.mu.Lock()
	r.policies = append(r.policies, policy)
	r.mu.Unlock()
}

// FindEffective returns the most recently effective matching policy.
func (r *PolicyRepository) FindEffective(ctx context.Context, provider, method string, at time.Time) (*fees.FeePolicy, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *fees.FeePolicy
	for i := range r.policies {
		policy := r.policies[i]
		if policy.Provider != provider || policy.Method != method {
			continue
		}
		if !policy.AppliesAt(at) {
			continue
		}
		if best == nil || policy.EffectiveFrom.After(best.EffectiveFrom) {
			copied := policy
			best = &copied
		}
	}
	return best, nil
}
