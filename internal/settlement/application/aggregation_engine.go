package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	settlement "settlement-platform/internal/settlement/domain"
)

// TickResult summarizes one incremental aggregation tick.
type TickResult struct {
	// InsertCount is the number of tier rows created this tick.
	InsertCount int

	// UpdateCount is the number of existing tier rows merged into.
	UpdateCount int

	// SweptRows is the number of per-transaction rows flipped to
	// AGGREGATED, including rows whose amounts were dropped against a
	// confirmed period.
	SweptRows int64
}

// TierWrite is one tier aggregate to persist during a tick commit,
// together with the delta that was merged into it.
type TierWrite struct {
	Aggregate *settlement.TierAggregate
	Delta     settlement.AggregationTotals
}

// AggregationStore is the persistence contract of the aggregation
// engine. CommitTick must apply all tier writes and flip the claimed
// per-transaction rows in one transaction.
type AggregationStore interface {
	// ResetStuckProcessing returns PROCESSING per-transaction rows to
	// NOT_AGGREGATED. Called once at startup before the first tick.
	ResetStuckProcessing(ctx context.Context) (int64, error)

	// ClaimUnaggregated flips up to limit NOT_AGGREGATED rows to
	// PROCESSING and returns how many were claimed.
	ClaimUnaggregated(ctx context.Context, limit int) (int64, error)

	// GroupClaimed groups the currently claimed rows by brand and
	// local date with signed totals.
	GroupClaimed(ctx context.Context) ([]settlement.AggregationGroup, error)

	// FindTier loads one tier aggregate by its unique key, nil when it
	// does not exist yet.
	FindTier(ctx context.Context, kind settlement.TierKind, brandID int64, periodKey string) (*settlement.TierAggregate, error)

	// CommitTick persists the tier writes and flips all PROCESSING
	// per-transaction rows to AGGREGATED in a single transaction. It
	// returns the number of flipped rows.
	CommitTick(ctx context.Context, writes []TierWrite) (int64, error)
}

// AggregationEngine rolls claimed per-transaction rows up into the
// daily, weekly, monthly and yearly tiers. One tick is atomic: either
// every tier merge and the row flip commit together, or none do and
// the rows are re-claimed on a later tick. Ticks are serialized on an
// internal mutex so a manual trigger and the scheduled tick never
// interleave between claim and commit.
type AggregationEngine struct {
	store     AggregationStore
	claimSize int
	timezone  string
	loc       *time.Location
	metrics   Metrics
	logger    *log.Logger
	clock     Clock

	mu sync.Mutex
}

// EngineOption configures the engine.
type EngineOption func(*AggregationEngine)

// WithEngineClock overrides the clock.
func WithEngineClock(clock Clock) EngineOption {
	return func(e *AggregationEngine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewAggregationEngine constructs the engine.
func NewAggregationEngine(
	store AggregationStore,
	claimSize int,
	timezone string,
	metrics Metrics,
	logger *log.Logger,
	opts ...EngineOption,
) (*AggregationEngine, error) {
	if store == nil {
		return nil, errors.New("aggregation engine: nil store")
	}
	if claimSize <= 0 {
		claimSize = 10000
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("aggregation engine: timezone %q: %w", timezone, err)
	}

	engine := &AggregationEngine{
		store:     store,
		claimSize: claimSize,
		timezone:  timezone,
		loc:       loc,
		metrics:   metrics,
		logger:    logger,
		clock:     SystemClock{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// RecoverStuck resets rows left in PROCESSING by a crashed run. Those
// rows never reached a committed tick, so returning them to
// NOT_AGGREGATED cannot double-count.
func (e *AggregationEngine) RecoverStuck(ctx context.Context) (int64, error) {
	reset, err := e.store.ResetStuckProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregation engine: recover: %w", err)
	}
	e.metrics.ObserveRecovery(reset)
	if e.logger != nil && reset > 0 {
		e.logger.Printf("aggregation recovery: reset %d stuck rows", reset)
	}
	return reset, nil
}

// Tick runs one incremental aggregation pass. With nothing to claim it
// returns a zero result and no error. A concurrent caller blocks until
// the in-flight tick commits, then sweeps whatever arrived since.
func (e *AggregationEngine) Tick(ctx context.Context) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	result, err := e.tick(ctx, start)
	e.metrics.ObserveAggregationTick(result, e.clock.Now().Sub(start), err)
	if err != nil {
		if e.logger != nil {
			e.logger.Printf("aggregation tick failed: %v", err)
		}
		return TickResult{}, err
	}
	if e.logger != nil && result.SweptRows > 0 {
		e.logger.Printf("aggregation tick: swept=%d inserted=%d updated=%d",
			result.SweptRows, result.InsertCount, result.UpdateCount)
	}
	return result, nil
}

func (e *AggregationEngine) tick(ctx context.Context, now time.Time) (TickResult, error) {
	claimed, err := e.store.ClaimUnaggregated(ctx, e.claimSize)
	if err != nil {
		return TickResult{}, fmt.Errorf("aggregation engine: claim: %w", err)
	}
	if claimed == 0 {
		return TickResult{}, nil
	}

	groups, err := e.store.GroupClaimed(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("aggregation engine: group: %w", err)
	}

	writes, inserted, updated, err := e.mergeGroups(ctx, groups, now)
	if err != nil {
		return TickResult{}, err
	}

	swept, err := e.store.CommitTick(ctx, writes)
	if err != nil {
		return TickResult{}, fmt.Errorf("aggregation engine: commit: %w", err)
	}
	return TickResult{InsertCount: inserted, UpdateCount: updated, SweptRows: swept}, nil
}

var tierKinds = []settlement.TierKind{
	settlement.TierDaily,
	settlement.TierWeekly,
	settlement.TierMonthly,
	settlement.TierYearly,
}

// mergeGroups applies every group's delta to its four tier aggregates.
// Aggregates are cached per tick because groups for different local
// dates can share a weekly, monthly or yearly row.
func (e *AggregationEngine) mergeGroups(
	ctx context.Context,
	groups []settlement.AggregationGroup,
	now time.Time,
) ([]TierWrite, int, int, error) {
	cache := make(map[string]*TierWrite)
	order := make([]string, 0, len(groups)*len(tierKinds))
	var inserted, updated int

	for _, group := range groups {
		for _, kind := range tierKinds {
			period, err := settlement.PeriodFor(kind, group.LocalDate)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("aggregation engine: period %s for brand %d: %w", kind, group.BrandID, err)
			}

			cacheKey := fmt.Sprintf("%s/%d/%s", kind, group.BrandID, period.Key())
			write, ok := cache[cacheKey]
			if !ok {
				agg, err := e.loadOrCreate(ctx, kind, group.BrandID, period)
				if err != nil {
					return nil, 0, 0, err
				}
				if agg.Status().IsFrozen() {
					// Confirmed periods drop late amounts; the rows are
					// still swept so they are not retried forever.
					e.metrics.ConfirmedPeriodSkipped(kind)
					if e.logger != nil {
						e.logger.Printf("confirmed period skipped: kind=%s brand=%d period=%s",
							kind, group.BrandID, period.Key())
					}
					cache[cacheKey] = nil
					continue
				}
				write = &TierWrite{Aggregate: agg}
				cache[cacheKey] = write
				order = append(order, cacheKey)
				if agg.IsNew() {
					inserted++
				} else {
					updated++
				}
			}
			if write == nil {
				continue
			}

			if err := write.Aggregate.AddAggregatedData(group.Totals, now); err != nil {
				return nil, 0, 0, fmt.Errorf("aggregation engine: merge %s brand %d: %w", kind, group.BrandID, err)
			}
			write.Delta = write.Delta.Add(group.Totals)
		}
	}

	localNow := naiveLocal(now.In(e.loc))
	writes := make([]TierWrite, 0, len(order))
	for _, cacheKey := range order {
		write := cache[cacheKey]
		if write.Aggregate.Period().End().After(localNow) {
			// The period is still open in local time; the aggregate
			// stays PROCESSING until it elapses.
			writes = append(writes, *write)
			continue
		}
		if err := write.Aggregate.MarkCompleted(now); err != nil {
			return writes, 0, 0, fmt.Errorf("aggregation engine: complete %s: %w",
				write.Aggregate.SettlementNumber(), err)
		}
		writes = append(writes, *write)
	}
	return writes, inserted, updated, nil
}

// naiveLocal strips the zone so local wall time compares against the
// naive period boundaries.
func naiveLocal(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func (e *AggregationEngine) loadOrCreate(
	ctx context.Context,
	kind settlement.TierKind,
	brandID int64,
	period settlement.PeriodKey,
) (*settlement.TierAggregate, error) {
	agg, err := e.store.FindTier(ctx, kind, brandID, period.Key())
	if err != nil {
		return nil, fmt.Errorf("aggregation engine: load %s brand %d: %w", kind, brandID, err)
	}
	if agg != nil {
		return agg, nil
	}
	agg, err = settlement.NewTierAggregate(brandID, period, e.timezone)
	if err != nil {
		return nil, fmt.Errorf("aggregation engine: new %s brand %d: %w", kind, brandID, err)
	}
	return agg, nil
}
