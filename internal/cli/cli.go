package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"hookstorm/internal/loadtest"
	"hookstorm/internal/report"
	"hookstorm/internal/runner"
	"hookstorm/internal/stats"
)

const tickInterval = 200 * time.Millisecond

type outcome struct {
	results *stats.ResultSet
	err     error
}

// Start runs a load test without a terminal UI, redrawing a single
// progress line on out until every scenario has finished.
func Start(ctx context.Context, cfg *runner.Config, opts loadtest.Options, out io.Writer) (*report.Report, error) {
	updates := make(runner.ProgressChan, 100)
	opts.Updates = updates
	opts.Out = out

	t, err := loadtest.New(cfg, opts)
	if err != nil {
		return nil, err
	}

	printHeader(out, cfg, t.Runner.Scenarios)

	var res outcome
	finished := make(chan struct{})
	go func() {
		res.results, res.err = t.Execute(ctx)
		close(finished)
	}()

	Watch(out, cfg.Duration, updates, t.Runner.GetInflight, finished)

	if res.err != nil {
		return nil, res.err
	}
	return t.Report(res.results)
}

// Watch redraws the progress line from updates every tick until finished is
// closed, then prints the final line.
func Watch(out io.Writer, d time.Duration, updates runner.ProgressChan, inflight func() int64, finished <-chan struct{}) {
	m := newMonitor(d)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case u := <-updates:
			m.apply(u)
		case <-ticker.C:
			fmt.Fprint(out, "\r"+m.line(inflight()))
		case <-finished:
			// Drain whatever the drivers published last.
			for drained := false; !drained; {
				select {
				case u := <-updates:
					m.apply(u)
				default:
					drained = true
				}
			}
			fmt.Fprint(out, "\r"+m.line(0)+"\n\n")
			return
		}
	}
}

// monitor folds per-scenario progress updates into one status line.
type monitor struct {
	duration time.Duration
	latest   map[string]runner.ProgressUpdate
}

func newMonitor(d time.Duration) *monitor {
	return &monitor{duration: d, latest: make(map[string]runner.ProgressUpdate)}
}

func (m *monitor) apply(u runner.ProgressUpdate) {
	m.latest[u.Scenario] = u
}

func (m *monitor) totals() (elapsed time.Duration, success, fail uint64) {
	for _, u := range m.latest {
		if u.Elapsed > elapsed {
			elapsed = u.Elapsed
		}
		success += u.Success
		fail += u.Fail
	}
	return elapsed, success, fail
}

func (m *monitor) line(inflight int64) string {
	elapsed, success, fail := m.totals()

	pct := 0.0
	if m.duration > 0 {
		pct = elapsed.Seconds() / m.duration.Seconds()
	}
	if pct > 1.0 {
		pct = 1.0
	}

	return fmt.Sprintf("%s %3.0f%% | %s/%s | Inf: %3d | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		elapsed.Round(time.Second), m.duration,
		inflight,
		success,
		fail,
	)
}

func printHeader(out io.Writer, cfg *runner.Config, scenarios []runner.Scenario) {
	fmt.Fprintf(out, "\n🚀 STARTING WEBHOOK API LOAD TEST\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "API URL          : %s\n", cfg.APIURL())
	fmt.Fprintf(out, "Concurrent Users : %d (%d per scenario)\n", cfg.ConcurrentUsers, cfg.BatchSize(len(scenarios)))
	fmt.Fprintf(out, "Duration         : %s\n", cfg.Duration)
	fmt.Fprintf(out, "Timeout          : %s\n", cfg.RequestTimeout)
	fmt.Fprintf(out, "Script           : %s\n", cfg.Script)
	for _, sc := range scenarios {
		fmt.Fprintf(out, "  %-16s %s %s every %s\n", sc.Name, sc.Method, sc.Path, sc.Interval)
	}
	fmt.Fprintf(out, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
