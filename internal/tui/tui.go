package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"hookstorm/internal/cli"
	"hookstorm/internal/loadtest"
	"hookstorm/internal/report"
	"hookstorm/internal/runner"
	"hookstorm/internal/stats"
	"hookstorm/internal/tui/live"
)

// programOptions builds the bubbletea options for a run writing to out.
var programOptions = func(out io.Writer) []tea.ProgramOption {
	return []tea.ProgramOption{tea.WithOutput(out)}
}

// LogSink is an io.Writer for the logger that prints above the live view
// while a program is attached and to Fallback otherwise.
type LogSink struct {
	Fallback io.Writer

	mu      sync.Mutex
	program *tea.Program
}

func NewLogSink() *LogSink {
	return &LogSink{Fallback: os.Stderr}
}

func (s *LogSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	program := s.program
	if program == nil {
		defer s.mu.Unlock()
		return s.Fallback.Write(p)
	}
	s.mu.Unlock()

	// Send returns without delivering once the program has exited.
	program.Send(live.LogMsg(strings.TrimRight(string(p), "\n")))
	return len(p), nil
}

func (s *LogSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

type outcome struct {
	results *stats.ResultSet
	err     error
}

// Run shows live per-scenario progress while the load test executes, then
// prints the report to out once the view has been torn down. If the view
// cannot run, progress continues as plain lines.
func Run(ctx context.Context, cfg *runner.Config, opts loadtest.Options, sink *LogSink, out io.Writer) (*report.Report, error) {
	updates := make(runner.ProgressChan, 100)
	opts.Updates = updates
	opts.Out = out

	t, err := loadtest.New(cfg, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := live.NewModel(cfg.Duration, t.Runner.Scenarios, t.Runner.GetInflight)
	p := tea.NewProgram(m, programOptions(out)...)

	if sink != nil {
		sink.attach(p)
		defer sink.attach(nil)
	}

	stop := make(chan struct{})
	forwarding := make(chan struct{})
	go func() {
		defer close(forwarding)
		for {
			select {
			case u := <-updates:
				p.Send(u)
			case <-ctx.Done():
				p.Quit()
				return
			case <-stop:
				return
			}
		}
	}()

	var res outcome
	finished := make(chan struct{})
	go func() {
		res.results, res.err = t.Execute(ctx)
		close(finished)
		p.Send(live.DoneMsg{})
	}()

	final, runErr := p.Run()

	// Anything logged from here on goes straight to the fallback writer.
	if sink != nil {
		sink.attach(nil)
	}
	close(stop)
	<-forwarding

	fm, _ := final.(live.Model)
	switch {
	case fm.Interrupted || errors.Is(runErr, tea.ErrInterrupted):
		// Stop scheduling; batches already in flight still complete.
		cancel()
	case runErr != nil:
		fmt.Fprintf(out, "live view unavailable (%v), showing plain progress\n", runErr)
		cli.Watch(out, cfg.Duration, updates, t.Runner.GetInflight, finished)
	}

	<-finished
	if res.err != nil {
		return nil, res.err
	}
	return t.Report(res.results)
}
