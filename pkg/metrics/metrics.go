package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	WorkersRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drover_workers_registered",
			Help: "Number of workers in the registry",
		},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_registrations_total",
			Help: "Total number of worker registration attempts by status",
		},
		[]string{"status"},
	)

	WorkerUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_worker_utilization",
			Help: "Last reported CPU utilization per worker",
		},
		[]string{"worker_id"},
	)

	UtilizationUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_utilization_updates_total",
			Help: "Total number of utilization updates by status",
		},
		[]string{"status"},
	)

	// Submission metrics
	JobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_jobs_submitted_total",
			Help: "Total number of jobs accepted from clients",
		},
	)

	JobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_jobs_completed_total",
			Help: "Total number of jobs whose output was returned to the client",
		},
	)

	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_jobs_failed_total",
			Help: "Total number of client sessions terminated by a failure token",
		},
	)

	// Dispatch metrics
	DispatchAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_dispatch_attempts_total",
			Help: "Total number of dispatch attempts including retries",
		},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drover_dispatch_latency_seconds",
			Help:    "Time from dispatch start to output received in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	JobBytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_job_bytes_transferred_total",
			Help: "Payload bytes moved through the master by direction",
		},
		[]string{"direction"}, // "received" (from clients) or "returned" (to clients)
	)

	// Worker probe metrics
	WorkersUnreachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drover_workers_unreachable",
			Help: "Number of registered workers whose exec endpoint failed the last probe",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersRegistered)
	prometheus.MustRegister(RegistrationsTotal)
	prometheus.MustRegister(WorkerUtilization)
	prometheus.MustRegister(UtilizationUpdatesTotal)
	prometheus.MustRegister(JobsSubmitted)
	prometheus.MustRegister(JobsCompleted)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(DispatchAttemptsTotal)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(JobBytesTransferred)
	prometheus.MustRegister(WorkersUnreachable)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
