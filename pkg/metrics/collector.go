package metrics

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Outcomes recorded for reported metric points
const (
	PointDryRun = "dry_run"
	PointSent   = "sent"
	PointFailed = "failed"
)

// Outcomes recorded for metadata writes
const (
	MetadataPersisted = "persisted"
	MetadataRejected  = "rejected"
	MetadataFailed    = "failed"
)

// Collector tracks client-side activity: API requests, polling, reported
// points and metadata writes. Each collector owns its registry so several
// clients can live in one process.
type Collector struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pollIterations  prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	points          *prometheus.CounterVec
	metadataWrites  *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandit_client_requests_total",
				Help: "Total API requests issued by the client",
			},
			[]string{"endpoint", "method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bandit_client_request_duration_seconds",
				Help:    "API request latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"endpoint"},
		),
		pollIterations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bandit_client_poll_iterations_total",
				Help: "Job-result polls performed while waiting for jobs",
			},
		),
		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandit_client_jobs_finished_total",
				Help: "Waited-for jobs by final outcome",
			},
			[]string{"outcome"},
		),
		points: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandit_client_points_total",
				Help: "Metric points reported, by outcome",
			},
			[]string{"outcome"},
		),
		metadataWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandit_client_metadata_writes_total",
				Help: "Metadata mutations, by outcome",
			},
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.pollIterations,
		c.jobsFinished,
		c.points,
		c.metadataWrites,
	)
	return c
}

// Registry returns the registry the collector's metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest records one API request. A zero code means the request
// failed before a response was received.
func (c *Collector) ObserveRequest(endpoint, method string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	c.requests.WithLabelValues(endpoint, method, label).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// IncPoll records one polling iteration
func (c *Collector) IncPoll() {
	if c == nil {
		return
	}
	c.pollIterations.Inc()
}

// JobFinished records the outcome of a waited-for job
func (c *Collector) JobFinished(outcome string) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(outcome).Inc()
}

// PointReported records the outcome of a metric report
func (c *Collector) PointReported(outcome string) {
	if c == nil {
		return
	}
	c.points.WithLabelValues(outcome).Inc()
}

// MetadataWritten records the outcome of a metadata mutation
func (c *Collector) MetadataWritten(outcome string) {
	if c == nil {
		return
	}
	c.metadataWrites.WithLabelValues(outcome).Inc()
}

// WriteText writes every metric in the Prometheus text exposition format
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// WriteTextfile writes the metrics to path for a node_exporter textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
