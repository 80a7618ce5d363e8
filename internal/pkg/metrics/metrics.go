package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sync_runs_total",
			Help: "Finished sync runs by type and final status.",
		},
		[]string{"sync_type", "status"},
	)

	SyncRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_sync_run_duration_seconds",
			Help:    "Wall time of finished sync runs.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"sync_type"},
	)

	SyncRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sync_records_total",
			Help: "Records handled by sync runs, by outcome.",
		},
		[]string{"sync_type", "outcome"},
	)

	SyncRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sync_rejected_total",
			Help: "Trigger requests refused because a run of the same type was in progress.",
		},
		[]string{"sync_type"},
	)

	SyncRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attendance_sync_running",
			Help: "1 while a sync of the type is running.",
		},
		[]string{"sync_type"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_provider_requests_total",
			Help: "Requests sent to the attendance provider, by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_provider_retries_total",
			Help: "Retries of provider requests after transient failures.",
		},
		[]string{"sync_type"},
	)
)

var initOnce sync.Once

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			SyncRunsTotal,
			SyncRunDuration,
			SyncRecordsTotal,
			SyncRejectedTotal,
			SyncRunning,
			ProviderRequestsTotal,
			ProviderRetriesTotal,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
