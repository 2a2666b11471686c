package loadtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"hookstorm/internal/metrics"
	"hookstorm/internal/report"
	"hookstorm/internal/runner"
	"hookstorm/internal/stats"
)

type Options struct {
	Logger  log.Logger
	Updates runner.ProgressChan
	Metrics *metrics.Collector
	// Out receives the console report; nil suppresses it.
	Out io.Writer

	Scenarios []runner.Scenario
	Client    *http.Client
}

// Test runs every scenario for the same window and reports once.
type Test struct {
	ID     string
	Cfg    *runner.Config
	Runner *runner.Runner

	logger    log.Logger
	generator *report.Generator
}

func New(cfg *runner.Config, opts Options) (*Test, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	id := uuid.NewString()
	logger = log.With(logger, "run_id", id)

	runnerOpts := []runner.Option{runner.WithLogger(logger), runner.WithMetrics(opts.Metrics)}
	if len(opts.Scenarios) > 0 {
		runnerOpts = append(runnerOpts, runner.WithScenarios(opts.Scenarios))
	}
	if opts.Client != nil {
		runnerOpts = append(runnerOpts, runner.WithClient(opts.Client))
	}

	r, err := runner.NewRunner(cfg, opts.Updates, runnerOpts...)
	if err != nil {
		return nil, err
	}

	return &Test{
		ID:        id,
		Cfg:       cfg,
		Runner:    r,
		logger:    logger,
		generator: report.NewGenerator(cfg.OutputDir, opts.Out),
	}, nil
}

// Run executes the load test and generates the report exactly once.
// Request failures are part of the report; only setup and output errors are returned.
func (t *Test) Run(ctx context.Context) (*report.Report, error) {
	results, err := t.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return t.Report(results)
}

// Execute prepares the output directory and drives the scenarios until the
// configured duration has elapsed or ctx is cancelled.
func (t *Test) Execute(ctx context.Context) (*stats.ResultSet, error) {
	if err := os.MkdirAll(t.Cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	level.Info(t.logger).Log(
		"msg", "starting load test",
		"api_url", t.Cfg.APIURL(),
		"concurrent_users", t.Cfg.ConcurrentUsers,
		"duration", t.Cfg.Duration,
	)

	return t.Runner.Run(ctx)
}

// Report renders and persists the final results.
func (t *Test) Report(results *stats.ResultSet) (*report.Report, error) {
	rep, err := t.generator.Generate(t.Cfg, results)
	if err != nil {
		return nil, err
	}

	level.Info(t.logger).Log("msg", "results saved", "json", rep.JSONPath, "markdown", rep.MarkdownPath)
	return rep, nil
}

// Run is New followed by Test.Run.
func Run(ctx context.Context, cfg *runner.Config, opts Options) (*report.Report, error) {
	t, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx)
}
