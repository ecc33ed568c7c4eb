package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RowsProcessed counts source rows handled per job kind.
	RowsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdm_rows_processed_total",
			Help: "Total source rows processed",
		},
		[]string{"job"},
	)

	// RowsFailed counts rows skipped after a contained row error.
	RowsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdm_rows_failed_total",
			Help: "Total source rows skipped after an error",
		},
		[]string{"job"},
	)

	// PropertiesWritten counts property upserts per language.
	PropertiesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdm_properties_written_total",
			Help: "Total property upserts",
		},
		[]string{"language"},
	)
)

// StartMetrics registers the collectors and serves /metrics on addr.
// A failed listener only disables metrics, it never takes a job down.
func StartMetrics(addr string, logger *Logger) {
	prometheus.MustRegister(RowsProcessed, RowsFailed, PropertiesWritten)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
}
