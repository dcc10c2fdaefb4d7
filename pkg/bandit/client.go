package bandit

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/psantana5/bandit/pkg/logging"
	"github.com/psantana5/bandit/pkg/metrics"
	"github.com/psantana5/bandit/pkg/sink"
	"github.com/psantana5/bandit/pkg/tracing"
)

const (
	defaultUserAgent = "bandit-go/1.0"
	requestTimeout   = 30 * time.Second
)

// Client talks to a Bandit server, or prints what it would do when running
// in local mode. A Client is created once per process.
type Client struct {
	cfg     Config
	baseURL *url.URL

	http         *http.Client
	userAgent    string
	limiter      *rate.Limiter
	tracer       trace.Tracer
	metrics      *metrics.Collector
	logger       *logging.Logger
	pollInterval time.Duration
	requestID    func() string

	stdout     io.Writer
	diagnostic io.Writer
	console    sink.Sink
	diag       sink.Sink
	charts     sink.Sink

	metadata *Metadata
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTLSConfig sets the TLS configuration of the default HTTP client.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(c *Client) {
		c.http = &http.Client{
			Timeout:   requestTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig, Proxy: http.ProxyFromEnvironment},
		}
	}
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the collector client activity is recorded in.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer sets the tracer API calls are traced with.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithRateLimit caps outgoing API requests at rps per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithPollInterval overrides the fixed interval between job-result polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithStdout sets where dry runs are printed. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(c *Client) { c.stdout = w }
}

// WithDiagnostic sets the diagnostic stream that receives documents which
// could not be written to the job volume. Defaults to os.Stderr.
func WithDiagnostic(w io.Writer) Option {
	return func(c *Client) { c.diagnostic = w }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New resolves the configuration and builds a client. Missing credentials
// are not an error: the client then runs in local mode.
func New(opts Options, options ...Option) (*Client, error) {
	cfg, err := Resolve(opts)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:          cfg,
		userAgent:    defaultUserAgent,
		pollInterval: DefaultPollInterval,
		requestID:    func() string { return uuid.New().String() },
	}
	for _, opt := range options {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: requestTimeout}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracing.TracerName)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewCollector()
	}
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.diagnostic == nil {
		c.diagnostic = os.Stderr
	}
	if c.logger == nil {
		c.logger = logging.NewLogger(logging.WARN, false)
		c.logger.SetOutput(c.diagnostic)
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}

	if cfg.URL != "" {
		c.baseURL, err = parseBaseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
	}

	c.console = sink.NewStdout(c.stdout)
	c.diag = sink.NewDiagnostic(c.diagnostic)
	c.charts = c.console
	if cfg.HasJob() {
		c.charts = sink.ForFile(cfg.Paths.ChartsFile, true, c.diag, c.fallbackNotice)
	}

	c.metadata, err = c.openMetadata()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("bandit client ready", logging.Fields{
		"mode":       string(cfg.Mode),
		"output_dir": cfg.OutputDir,
		"job_id":     cfg.JobID,
	})
	return c, nil
}

// Config returns the resolved configuration.
func (c *Client) Config() Config { return c.cfg }

// IsLocal reports whether the client runs in local mode.
func (c *Client) IsLocal() bool { return c.cfg.IsLocal() }

// OutputDir is where output artifacts such as dashboards are written.
func (c *Client) OutputDir() string { return c.cfg.OutputDir }

// Metadata returns the job's metadata store.
func (c *Client) Metadata() *Metadata { return c.metadata }

// Metrics returns the collector recording client activity.
func (c *Client) Metrics() *metrics.Collector { return c.metrics }

// Logger returns the client's diagnostic logger.
func (c *Client) Logger() *logging.Logger { return c.logger }

// Console is the sink dry runs are printed to.
func (c *Client) Console() sink.Sink { return c.console }

// Diagnostic is the sink for documents that cannot reach the job volume.
func (c *Client) Diagnostic() sink.Sink { return c.diag }

// FileSink selects the sink for a document on the job volume: the file when
// its directory exists, the diagnostic stream otherwise.
func (c *Client) FileSink(path string) sink.Sink {
	return sink.ForFile(path, false, c.diag, c.fallbackNotice)
}

func (c *Client) fallbackNotice(err error) {
	c.logger.Warn("job volume unavailable, writing to diagnostic stream", logging.Fields{"error": err.Error()})
}

func (c *Client) dryRun(method, path string) {
	line := fmt.Sprintf("DRY RUN %s %s", method, path)
	c.logger.Debug("local mode, skipping request", logging.Fields{"method": method, "path": path})
	if err := c.console.Write([]byte(line)); err != nil {
		c.logger.Warn("failed to print dry run", logging.Fields{"error": err.Error()})
	}
}
