package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer hands out one batch slot per interval.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
	batch    int
}

func NewPacer(interval time.Duration, batch int) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		batch:    batch,
	}
}

// Wait blocks until the next batch may start. The first call returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// TargetRPS is the request rate the pacer aims for when batches complete within one interval.
func (p *Pacer) TargetRPS() float64 {
	if p.interval <= 0 {
		return 0
	}
	return float64(p.batch) / p.interval.Seconds()
}

func (p *Pacer) Interval() time.Duration {
	return p.interval
}
