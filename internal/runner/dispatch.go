package runner

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"hookstorm/internal/metrics"
	"hookstorm/internal/stats"
)

// maxLoggedBody caps how much of a failed response body ends up in the log.
const maxLoggedBody = 512

// dispatch sends one request and records its outcome. Failures never leave this function.
func (r *Runner) dispatch(ctx context.Context, sc Scenario, res *stats.ScenarioResult, target string, body []byte) {
	atomic.AddInt64(&r.inflight, 1)
	defer atomic.AddInt64(&r.inflight, -1)
	r.metrics.Inflight(1)
	defer r.metrics.Inflight(-1)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, sc.Method, target, reader)
	if err != nil {
		r.transportError(sc, res, err)
		return
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()

	resp, err := r.Client.Do(req)
	if err != nil {
		r.transportError(sc, res, err)
		return
	}
	defer resp.Body.Close()

	// Download time is part of the latency.
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		r.transportError(sc, res, err)
		return
	}
	latency := time.Since(start)

	ok := resp.StatusCode < http.StatusBadRequest
	res.RecordResponse(latency, ok)

	if ok {
		r.metrics.Observe(sc.Name, metrics.OutcomeSuccess, latency)
		return
	}

	r.metrics.Observe(sc.Name, metrics.OutcomeHTTPError, latency)
	level.Error(r.logger).Log(
		"msg", sc.Name+" failed",
		"scenario", sc.Name,
		"status", resp.StatusCode,
		"body", truncate(payload, maxLoggedBody),
	)
}

func (r *Runner) transportError(sc Scenario, res *stats.ScenarioResult, err error) {
	res.RecordTransportError()
	r.metrics.Observe(sc.Name, metrics.OutcomeTransportError, 0)
	level.Error(r.logger).Log(
		"msg", sc.Name+" request error",
		"scenario", sc.Name,
		"err", err,
	)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
