package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidworker_job_runs_total",
			Help: "Total number of recorded job runs",
		},
		[]string{"job", "status"}, // status: success|failed|skipped
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oidworker_job_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"job"},
	)

	JobLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oidworker_job_last_run_timestamp",
			Help: "Unix timestamp of the last recorded run per job and status",
		},
		[]string{"job", "status"},
	)

	JobSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidworker_job_skips_total",
			Help: "Skipped job runs by reason",
		},
		[]string{"job", "reason"},
	)

	// Extraction metrics
	ExtractionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidworker_extraction_attempts_total",
			Help: "Chart extraction attempts",
		},
		[]string{"view", "status"}, // status: success|error
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidworker_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)

	ControlRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidworker_control_requests_total",
			Help: "Control surface requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(JobExecutions)
		prometheus.MustRegister(JobDuration)
		prometheus.MustRegister(JobLastRun)
		prometheus.MustRegister(JobSkips)

		prometheus.MustRegister(ExtractionAttempts)

		prometheus.MustRegister(KafkaMessages)
		prometheus.MustRegister(ControlRequests)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordJobRun records a terminal job run
func RecordJobRun(job, status, reason string, duration time.Duration, finishedAt time.Time) {
	JobExecutions.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	JobLastRun.WithLabelValues(job, status).Set(float64(finishedAt.Unix()))

	if reason != "" {
		JobSkips.WithLabelValues(job, reason).Inc()
	}
}

// RecordExtractionAttempt records one extractor call
func RecordExtractionAttempt(view string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExtractionAttempts.WithLabelValues(view, status).Inc()
}

// RecordKafkaMessage records a produced event
func RecordKafkaMessage(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, status).Inc()
}
