package metrics

import (
	"time"

	"settlement-platform/internal/settlement/application"
	settlement "settlement-platform/internal/settlement/domain"
)

// Recorder adapts the package counters to the metrics sink the
// settlement jobs expect. Init must have been called first.
type Recorder struct{}

var _ application.Metrics = Recorder{}

func (Recorder) ObserveIngestion(reads, writes int64, failedChunks int, elapsed time.Duration) {
	ObserveIngestion(reads, writes, failedChunks, elapsed)
}

func (Recorder) ObserveAggregationTick(result application.TickResult, elapsed time.Duration, err error) {
	ObserveAggregationTick(result.InsertCount, result.UpdateCount, result.SweptRows, elapsed, err == nil)
}

func (Recorder) ObserveRecovery(resetRows int64) {
	AddRecoveredRows(resetRows)
}

func (Recorder) ObserveConfirmation(kind settlement.TierKind, confirmed int, err error) {
	ObserveConfirmation(string(kind), confirmed, 0, err == nil)
}

func (Recorder) ConfirmedPeriodSkipped(kind settlement.TierKind) {
	IncConfirmedPeriodSkip(string(kind))
}
