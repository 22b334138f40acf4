package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "settlement_unaggregated_rows",
			Help: "Transaction settlement rows waiting for aggregation",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM transaction_settlements WHERE aggregation_status = 'NOT_AGGREGATED'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "settlement_processing_rows",
			Help: "Transaction settlement rows claimed by a running tick",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM transaction_settlements WHERE aggregation_status = 'PROCESSING'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "payments_unsettled",
			Help: "Approved payments not yet picked up by ingestion",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM payments WHERE settled_at IS NULL")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
