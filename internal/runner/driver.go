package runner

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"hookstorm/internal/stats"
)

// driver fires batches of one scenario until the run duration has elapsed.
type driver struct {
	r        *Runner
	scenario Scenario
	result   *stats.ScenarioResult
	pacer    *Pacer
	batch    int
	target   string
	body     []byte
}

func (r *Runner) newDriver(sc Scenario) (*driver, error) {
	target, body, err := sc.Target(r.Cfg)
	if err != nil {
		return nil, err
	}

	batch := r.Cfg.BatchSize(len(r.Scenarios))

	return &driver{
		r:        r,
		scenario: sc,
		result:   r.Results.Get(sc.Name),
		pacer:    NewPacer(sc.Interval, batch),
		batch:    batch,
		target:   target,
		body:     body,
	}, nil
}

func (d *driver) run(ctx context.Context, start time.Time) {
	total := d.r.Cfg.Duration

	level.Debug(d.r.logger).Log(
		"msg", "scenario started",
		"scenario", d.scenario.Name,
		"target", d.target,
		"batch", d.batch,
		"interval", d.pacer.Interval(),
		"target_rps", d.pacer.TargetRPS(),
	)

	// A started batch always finishes, even after cancellation.
	batchCtx := context.WithoutCancel(ctx)

	for {
		if err := d.pacer.Wait(ctx); err != nil {
			break
		}
		if time.Since(start) >= total {
			break
		}

		d.fireBatch(batchCtx)
		d.publish(start, false)
	}

	d.publish(start, true)
}

func (d *driver) fireBatch(ctx context.Context) {
	var g errgroup.Group
	for i := 0; i < d.batch; i++ {
		g.Go(func() error {
			d.r.dispatch(ctx, d.scenario, d.result, d.target, d.body)
			return nil
		})
	}
	g.Wait()
}

func (d *driver) publish(start time.Time, done bool) {
	total := d.r.Cfg.Duration
	elapsed := time.Since(start)
	if elapsed > total {
		elapsed = total
	}

	success, fail := d.result.Counts()
	d.r.publish(ProgressUpdate{
		Scenario: d.scenario.Name,
		Elapsed:  elapsed,
		Duration: total,
		Success:  success,
		Fail:     fail,
		Done:     done,
	})
}
