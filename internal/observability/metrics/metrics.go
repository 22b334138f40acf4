package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "platform_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestionReads        prometheus.Counter
	ingestionWrites       prometheus.Counter
	ingestionFailedChunks prometheus.Counter
	ingestionLatency      prometheus.Histogram

	aggregationTicks      *prometheus.CounterVec
	aggregationLatency    *prometheus.HistogramVec
	aggregationSweptRows  prometheus.Counter
	aggregationInserts    prometheus.Counter
	aggregationUpdates    prometheus.Counter
	aggregationRecovered  prometheus.Counter
	confirmedPeriodSkips  *prometheus.CounterVec

	confirmationRuns      *prometheus.CounterVec
	confirmationConfirmed *prometheus.CounterVec
	confirmationLatency   *prometheus.HistogramVec
)

// Init registers settlement pipeline metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestionReads = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingestion_rows_read_total",
				Help: "Total approved payments read by the ingestion job",
			},
		)
		ingestionWrites = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingestion_rows_written_total",
				Help: "Total transaction settlement rows written",
			},
		)
		ingestionFailedChunks = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingestion_failed_chunks_total",
				Help: "Total ingestion chunks rolled back",
			},
		)
		ingestionLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingestion_latency_seconds",
				Help:    "Full ingestion run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		aggregationTicks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_ticks_total",
				Help: "Total incremental aggregation ticks by result",
			},
			[]string{"result"},
		)
		aggregationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_tick_latency_seconds",
				Help:    "Aggregation tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		aggregationSweptRows = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_swept_rows_total",
				Help: "Total transaction rows swept into tier aggregates",
			},
		)
		aggregationInserts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_tier_inserts_total",
				Help: "Total tier aggregate rows created",
			},
		)
		aggregationUpdates = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_tier_updates_total",
				Help: "Total tier aggregate rows merged into",
			},
		)
		aggregationRecovered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_recovered_rows_total",
				Help: "Total stuck PROCESSING rows reset at startup",
			},
		)
		confirmedPeriodSkips = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_confirmed_skip_total",
				Help: "Total late contributions dropped against confirmed periods",
			},
			[]string{"tier"},
		)

		confirmationRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "confirmation_runs_total",
				Help: "Total confirmation runs by tier and result",
			},
			[]string{"tier", "result"},
		)
		confirmationConfirmed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "confirmation_confirmed_total",
				Help: "Total tier aggregates confirmed",
			},
			[]string{"tier"},
		)
		confirmationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "confirmation_latency_seconds",
				Help:    "Confirmation run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tier"},
		)

		prometheus.MustRegister(
			ingestionReads,
			ingestionWrites,
			ingestionFailedChunks,
			ingestionLatency,
			aggregationTicks,
			aggregationLatency,
			aggregationSweptRows,
			aggregationInserts,
			aggregationUpdates,
			aggregationRecovered,
			confirmedPeriodSkips,
			confirmationRuns,
			confirmationConfirmed,
			confirmationLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngestion records one full ingestion run.
func ObserveIngestion(reads, writes int64, failedChunks int, duration time.Duration) {
	if ingestionReads != nil {
		ingestionReads.Add(float64(reads))
	}
	if ingestionWrites != nil {
		ingestionWrites.Add(float64(writes))
	}
	if ingestionFailedChunks != nil && failedChunks > 0 {
		ingestionFailedChunks.Add(float64(failedChunks))
	}
	if ingestionLatency != nil {
		ingestionLatency.Observe(duration.Seconds())
	}
}

// ObserveAggregationTick records one tick by result.
func ObserveAggregationTick(inserts, updates int, swept int64, duration time.Duration, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	if aggregationTicks != nil {
		aggregationTicks.WithLabelValues(result).Inc()
	}
	if aggregationLatency != nil {
		aggregationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if !success {
		return
	}
	if aggregationSweptRows != nil {
		aggregationSweptRows.Add(float64(swept))
	}
	if aggregationInserts != nil {
		aggregationInserts.Add(float64(inserts))
	}
	if aggregationUpdates != nil {
		aggregationUpdates.Add(float64(updates))
	}
}

// AddRecoveredRows records a startup PROCESSING reset.
func AddRecoveredRows(rows int64) {
	if aggregationRecovered != nil && rows > 0 {
		aggregationRecovered.Add(float64(rows))
	}
}

// IncConfirmedPeriodSkip counts one dropped late contribution.
func IncConfirmedPeriodSkip(tier string) {
	if tier == "" {
		tier = "unknown"
	}
	if confirmedPeriodSkips != nil {
		confirmedPeriodSkips.WithLabelValues(tier).Inc()
	}
}

// ObserveConfirmation records one confirmation run by tier.
func ObserveConfirmation(tier string, confirmed int, duration time.Duration, success bool) {
	if tier == "" {
		tier = "unknown"
	}
	result := resultSuccess
	if !success {
		result = resultError
	}
	if confirmationRuns != nil {
		confirmationRuns.WithLabelValues(tier, result).Inc()
	}
	if confirmationConfirmed != nil && confirmed > 0 {
		confirmationConfirmed.WithLabelValues(tier).Add(float64(confirmed))
	}
	if confirmationLatency != nil {
		confirmationLatency.WithLabelValues(tier).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
