package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks finished download jobs by outcome (done, failed)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytmcloner_jobs_total",
			Help: "Total number of finished download jobs",
		},
		[]string{"outcome"},
	)

	// JobDuration tracks fetch+encode+place time per job
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ytmcloner_job_duration_seconds",
			Help:    "Download job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
	)

	// BytesWrittenTotal tracks encoded bytes produced (before fan-out)
	BytesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ytmcloner_bytes_written_total",
			Help: "Total encoded bytes produced",
		},
	)

	// ActiveJobs tracks jobs currently held by a worker
	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytmcloner_active_jobs",
			Help: "Number of download jobs in progress",
		},
	)

	// QueueDepth tracks submitted jobs not yet picked up by a worker
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytmcloner_queue_depth",
			Help: "Number of queued download jobs",
		},
	)

	// Progress mirrors the batch counters, one series per counter
	Progress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ytmcloner_progress",
			Help: "Batch progress counters (downloaded, skipped, private, errors, total, remaining)",
		},
		[]string{"counter"},
	)

	// APIRequestsTotal tracks Data API requests by endpoint and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytmcloner_api_requests_total",
			Help: "Total number of YouTube Data API requests",
		},
		[]string{"endpoint", "status"},
	)

	// APIRequestDuration tracks Data API request duration
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ytmcloner_api_request_duration_seconds",
			Help:    "YouTube Data API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// ErrorsTotal tracks errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytmcloner_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

// RecordJobStart records a worker picking up a job
func RecordJobStart() {
	ActiveJobs.Inc()
}

// RecordJobDone records a job that placed every target
func RecordJobDone(duration time.Duration, bytes int64) {
	JobsTotal.WithLabelValues("done").Inc()
	JobDuration.Observe(duration.Seconds())
	BytesWrittenTotal.Add(float64(bytes))
	ActiveJobs.Dec()
}

// RecordJobFailed records a failed job
func RecordJobFailed(errorType string) {
	JobsTotal.WithLabelValues("failed").Inc()
	ErrorsTotal.WithLabelValues(errorType).Inc()
	ActiveJobs.Dec()
}

// UpdateQueueDepth updates the queue depth metric
func UpdateQueueDepth(size int) {
	QueueDepth.Set(float64(size))
}

// UpdateProgress publishes the batch counters
func UpdateProgress(downloaded, skipped, private, errors, total, remaining int64) {
	Progress.WithLabelValues("downloaded").Set(float64(downloaded))
	Progress.WithLabelValues("skipped").Set(float64(skipped))
	Progress.WithLabelValues("private").Set(float64(private))
	Progress.WithLabelValues("errors").Set(float64(errors))
	Progress.WithLabelValues("total").Set(float64(total))
	Progress.WithLabelValues("remaining").Set(float64(remaining))
}

// RecordAPIRequest records a Data API request
func RecordAPIRequest(endpoint string, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordError records an error
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}
