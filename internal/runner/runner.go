package runner

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"golang.org/x/sync/errgroup"

	"hookstorm/internal/metrics"
	"hookstorm/internal/stats"
)

type Runner struct {
	Cfg       *Config
	Scenarios []Scenario
	Results   *stats.ResultSet
	Client    *http.Client

	// Progress channel, written with non-blocking sends
	Updates ProgressChan

	logger   log.Logger
	metrics  *metrics.Collector
	inflight int64
}

type Option func(*Runner)

func WithLogger(l log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

func WithScenarios(s []Scenario) Option {
	return func(r *Runner) { r.Scenarios = s }
}

func WithClient(c *http.Client) Option {
	return func(r *Runner) { r.Client = c }
}

// NewRunner validates cfg and prepares one result per scenario.
func NewRunner(cfg *Config, updates ProgressChan, opts ...Option) (*Runner, error) {
	r := &Runner{
		Cfg:       cfg,
		Scenarios: DefaultScenarios(),
		Updates:   updates,
		logger:    log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := cfg.Validate(len(r.Scenarios)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if r.Client == nil {
		r.Client = newHTTPClient(cfg)
	}
	if r.Updates == nil {
		// Avoid nil panics if not provided
		r.Updates = make(ProgressChan, 10)
	}

	names := make([]string, len(r.Scenarios))
	for i, s := range r.Scenarios {
		names[i] = s.Name
	}
	r.Results = stats.NewResultSet(names...)

	return r, nil
}

func newHTTPClient(cfg *Config) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	if cfg.InsecureTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: t,
	}
}

// Run drives every scenario concurrently from the same start instant and
// returns once the last batch of every scenario has completed.
func (r *Runner) Run(ctx context.Context) (*stats.ResultSet, error) {
	drivers := make([]*driver, 0, len(r.Scenarios))
	for _, sc := range r.Scenarios {
		d, err := r.newDriver(sc)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}

	start := time.Now()

	var g errgroup.Group
	for _, d := range drivers {
		g.Go(func() error {
			d.run(ctx, start)
			return nil
		})
	}
	g.Wait()

	return r.Results, nil
}

func (r *Runner) publish(u ProgressUpdate) {
	// Non-blocking send
	select {
	case r.Updates <- u:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

func (r *Runner) GetInflight() int64 {
	return atomic.LoadInt64(&r.inflight)
}
