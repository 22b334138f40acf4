package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	settlement "settlement-platform/internal/settlement/domain"
)

// ConfirmationStore is the persistence contract of the confirmation
// jobs. Confirmation never trusts previously merged tier totals above
// the daily level: each tier is recomputed from the tier below it.
type ConfirmationStore interface {
	// GroupTransactionsByLocalDate returns signed per-brand totals of
	// all per-transaction rows on one local calendar date, regardless
	// of their aggregation status.
	GroupTransactionsByLocalDate(ctx context.Context, localDate time.Time) ([]settlement.AggregationGroup, error)

	// ListTiersInRange returns tier aggregates of one kind whose period
	// start falls in [from, to).
	ListTiersInRange(ctx context.Context, kind settlement.TierKind, from, to time.Time) ([]*settlement.TierAggregate, error)

	// FindTier loads one tier aggregate by its unique key, nil when it
	// does not exist.
	FindTier(ctx context.Context, kind settlement.TierKind, brandID int64, periodKey string) (*settlement.TierAggregate, error)

	// SaveTier upserts one tier aggregate.
	SaveTier(ctx context.Context, agg *settlement.TierAggregate) error
}

// ConfirmationJob recomputes and freezes settled periods. Daily
// confirmation recomputes from per-transaction rows; weekly and
// monthly recompute from daily aggregates; yearly recomputes from
// monthly aggregates. Re-running a confirmation replaces totals, so
// every job is idempotent.
type ConfirmationJob struct {
	store    ConfirmationStore
	timezone string
	metrics  Metrics
	logger   *log.Logger
	clock    Clock
}

// NewConfirmationJob constructs the job.
func NewConfirmationJob(store ConfirmationStore, timezone string, metrics Metrics, logger *log.Logger, clock Clock) (*ConfirmationJob, error) {
	if store == nil {
		return nil, errors.New("confirmation job: nil store")
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ConfirmationJob{
		store:    store,
		timezone: timezone,
		metrics:  metrics,
		logger:   logger,
		clock:    clock,
	}, nil
}

// ConfirmDaily recomputes every brand's daily aggregate for one local
// date from the per-transaction rows and confirms it.
func (j *ConfirmationJob) ConfirmDaily(ctx context.Context, localDate time.Time) (int, error) {
	period, err := settlement.PeriodFor(settlement.TierDaily, localDate)
	if err != nil {
		return j.observe(settlement.TierDaily, 0, err)
	}

	groups, err := j.store.GroupTransactionsByLocalDate(ctx, period.Start())
	if err != nil {
		return j.observe(settlement.TierDaily, 0, fmt.Errorf("confirm daily: group: %w", err))
	}

	totalsByBrand := make(map[int64]settlement.AggregationTotals, len(groups))
	for _, group := range groups {
		totalsByBrand[group.BrandID] = totalsByBrand[group.BrandID].Add(group.Totals)
	}

	confirmed, err := j.confirmPeriod(ctx, settlement.TierDaily, period, totalsByBrand)
	return j.observe(settlement.TierDaily, confirmed, err)
}

// ConfirmWeekly recomputes the weekly aggregates of the week containing
// localDate from its confirmed daily aggregates.
func (j *ConfirmationJob) ConfirmWeekly(ctx context.Context, localDate time.Time) (int, error) {
	period, err := settlement.PeriodFor(settlement.TierWeekly, localDate)
	if err != nil {
		return j.observe(settlement.TierWeekly, 0, err)
	}
	confirmed, err := j.confirmFromLowerTier(ctx, settlement.TierWeekly, settlement.TierDaily, period)
	return j.observe(settlement.TierWeekly, confirmed, err)
}

// ConfirmMonthly recomputes the monthly aggregates of the month
// containing localDate from its daily aggregates.
func (j *ConfirmationJob) ConfirmMonthly(ctx context.Context, localDate time.Time) (int, error) {
	period, err := settlement.PeriodFor(settlement.TierMonthly, localDate)
	if err != nil {
		return j.observe(settlement.TierMonthly, 0, err)
	}
	confirmed, err := j.confirmFromLowerTier(ctx, settlement.TierMonthly, settlement.TierDaily, period)
	return j.observe(settlement.TierMonthly, confirmed, err)
}

// ConfirmYearly recomputes the yearly aggregates of the year containing
// localDate from its monthly aggregates.
func (j *ConfirmationJob) ConfirmYearly(ctx context.Context, localDate time.Time) (int, error) {
	period, err := settlement.PeriodFor(settlement.TierYearly, localDate)
	if err != nil {
		return j.observe(settlement.TierYearly, 0, err)
	}
	confirmed, err := j.confirmFromLowerTier(ctx, settlement.TierYearly, settlement.TierMonthly, period)
	return j.observe(settlement.TierYearly, confirmed, err)
}

// confirmFromLowerTier sums lower-tier aggregates whose period start
// lies inside the target period and writes the result per brand.
func (j *ConfirmationJob) confirmFromLowerTier(
	ctx context.Context,
	kind, lower settlement.TierKind,
	period settlement.PeriodKey,
) (int, error) {
	lowerAggs, err := j.store.ListTiersInRange(ctx, lower, period.Start(), period.End())
	if err != nil {
		return 0, fmt.Errorf("confirm %s: list %s: %w", kind, lower, err)
	}

	totalsByBrand := make(map[int64]settlement.AggregationTotals)
	for _, agg := range lowerAggs {
		totalsByBrand[agg.BrandID()] = totalsByBrand[agg.BrandID()].Add(agg.Totals())
	}
	return j.confirmPeriod(ctx, kind, period, totalsByBrand)
}

// confirmPeriod replaces totals and confirms one tier row per brand.
// Brands with an existing row but no recomputed totals are reset to
// zero, so a fully refunded period still confirms consistently.
func (j *ConfirmationJob) confirmPeriod(
	ctx context.Context,
	kind settlement.TierKind,
	period settlement.PeriodKey,
	totalsByBrand map[int64]settlement.AggregationTotals,
) (int, error) {
	existing, err := j.store.ListTiersInRange(ctx, kind, period.Start(), period.End())
	if err != nil {
		return 0, fmt.Errorf("confirm %s: list existing: %w", kind, err)
	}
	for _, agg := range existing {
		if _, ok := totalsByBrand[agg.BrandID()]; !ok {
			totalsByBrand[agg.BrandID()] = settlement.AggregationTotals{}
		}
	}

	now := j.clock.Now()
	confirmed := 0
	for brandID, totals := range totalsByBrand {
		agg, err := j.store.FindTier(ctx, kind, brandID, period.Key())
		if err != nil {
			return confirmed, fmt.Errorf("confirm %s: load brand %d: %w", kind, brandID, err)
		}
		if agg == nil {
			agg, err = settlement.NewTierAggregate(brandID, period, j.timezone)
			if err != nil {
				return confirmed, fmt.Errorf("confirm %s: new brand %d: %w", kind, brandID, err)
			}
		}

		if err := agg.SetAggregatedData(totals, now); err != nil {
			return confirmed, fmt.Errorf("confirm %s: set brand %d: %w", kind, brandID, err)
		}
		if err := agg.MarkConfirmed(now); err != nil {
			return confirmed, fmt.Errorf("confirm %s: confirm brand %d: %w", kind, brandID, err)
		}
		if err := j.store.SaveTier(ctx, agg); err != nil {
			return confirmed, fmt.Errorf("confirm %s: save brand %d: %w", kind, brandID, err)
		}
		confirmed++
	}
	return confirmed, nil
}

func (j *ConfirmationJob) observe(kind settlement.TierKind, confirmed int, err error) (int, error) {
	j.metrics.ObserveConfirmation(kind, confirmed, err)
	if j.logger != nil {
		if err != nil {
			j.logger.Printf("confirmation failed: kind=%s err=%v", kind, err)
		} else {
			j.logger.Printf("confirmation: kind=%s confirmed=%d", kind, confirmed)
		}
	}
	return confirmed, err
}
