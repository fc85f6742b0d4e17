package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/logger"
)

// recentRunsWindow matches the window scanned by health details
const recentRunsWindow = 30

// RunSource lists recent job runs, newest first
type RunSource interface {
	Recent(ctx context.Context, limit int) ([]jobrun.Run, error)
}

// RunningSource reports in-flight job names
type RunningSource interface {
	Running() []string
}

// JobCollector reports per-job freshness read from the audit log at scrape time
type JobCollector struct {
	log     *logger.Logger
	runs    RunSource
	running RunningSource
	now     func() time.Time

	lastRunAge *prometheus.Desc
	inFlight   *prometheus.Desc
}

// NewJobCollector creates a new job freshness collector
func NewJobCollector(runs RunSource, running RunningSource) *JobCollector {
	return &JobCollector{
		log:     logger.Get().With("component", "job_collector"),
		runs:    runs,
		running: running,
		now:     time.Now,

		lastRunAge: prometheus.NewDesc(
			"oidworker_job_last_run_age_seconds",
			"Seconds since the latest recorded run of each job started",
			[]string{"job", "status"}, nil,
		),
		inFlight: prometheus.NewDesc(
			"oidworker_job_running",
			"Whether the job is currently running in this process (0|1)",
			[]string{"job"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *JobCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lastRunAge
	ch <- c.inFlight
}

// Collect implements prometheus.Collector
func (c *JobCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectRunAges(ctx, ch)
	c.collectRunning(ch)
}

func (c *JobCollector) collectRunAges(ctx context.Context, ch chan<- prometheus.Metric) {
	runs, err := c.runs.Recent(ctx, recentRunsWindow)
	if err != nil {
		c.log.Errorw("Failed to collect job run ages", "error", err)
		return
	}

	now := c.now()
	for job, run := range jobrun.LatestByJob(runs) {
		ch <- prometheus.MustNewConstMetric(
			c.lastRunAge,
			prometheus.GaugeValue,
			now.Sub(run.StartedAt).Seconds(),
			string(job), string(run.Status),
		)
	}
}

func (c *JobCollector) collectRunning(ch chan<- prometheus.Metric) {
	running := make(map[string]bool)
	for _, name := range c.running.Running() {
		running[name] = true
	}

	for _, job := range jobrun.Jobs {
		value := 0.0
		if running[string(job)] {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, value, string(job))
	}
}

// RegisterJobCollector registers the collector with the default registry
func RegisterJobCollector(collector *JobCollector) {
	prometheus.MustRegister(collector)
}
