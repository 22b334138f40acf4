package application

import (
	"time"

	settlement "settlement-platform/internal/settlement/domain"
)

// Metrics is the observability sink injected into the settlement jobs.
// Jobs never touch process-wide mutable state directly.
type Metrics interface {
	// ObserveIngestion records one full ingestion run after all
	// partitions have joined.
	ObserveIngestion(reads, writes int64, failedChunks int, elapsed time.Duration)

	// ObserveAggregationTick records one incremental aggregation tick.
	ObserveAggregationTick(result TickResult, elapsed time.Duration, err error)

	// ObserveRecovery records a startup PROCESSING reset.
	ObserveRecovery(resetRows int64)

	// ObserveConfirmation records one tier confirmation run.
	ObserveConfirmation(kind settlement.TierKind, confirmed int, err error)

	// ConfirmedPeriodSkipped counts contributions dropped because the
	// target period was already confirmed.
	ConfirmedPeriodSkipped(kind settlement.TierKind)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveIngestion(int64, int64, int, time.Duration)            {}
func (NopMetrics) ObserveAggregationTick(TickResult, time.Duration, error)      {}
func (NopMetrics) ObserveRecovery(int64)                                        {}
func (NopMetrics) ObserveConfirmation(settlement.TierKind, int, error)          {}
func (NopMetrics) ConfirmedPeriodSkipped(settlement.TierKind)                   {}
