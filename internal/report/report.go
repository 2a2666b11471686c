package report

import (
	"math"
	"sort"
	"time"

	"hookstorm/internal/runner"
	"hookstorm/internal/stats"
)

// TimestampLayout names the JSON report file and fills test_info.timestamp.
const TimestampLayout = "20060102_150405"

// Summary holds the derived statistics of one scenario.
// Latency fields are only meaningful when HasLatency is true.
type Summary struct {
	Name            string
	Success         uint64
	Fail            uint64
	TransportErrors uint64
	Requests        uint64
	RPS             float64

	HasLatency bool
	MinMs      float64
	MaxMs      float64
	AvgMs      float64
	P95Ms      float64
	P99Ms      float64
}

// Report is computed once after all scenarios have finished and never changes.
type Report struct {
	Timestamp       string
	APIURL          string
	ConcurrentUsers int
	DurationSeconds int64

	Scenarios []Summary

	// Paths of the written artifacts
	JSONPath     string
	MarkdownPath string

	raw []stats.Snapshot
}

// Build derives the report from the final scenario snapshots.
func Build(cfg *runner.Config, snaps []stats.Snapshot, now time.Time) *Report {
	r := &Report{
		Timestamp:       now.Format(TimestampLayout),
		APIURL:          cfg.APIURL(),
		ConcurrentUsers: cfg.ConcurrentUsers,
		DurationSeconds: cfg.DurationSeconds(),
		raw:             snaps,
	}

	for _, s := range snaps {
		r.Scenarios = append(r.Scenarios, summarize(s, cfg.Duration))
	}
	return r
}

func summarize(s stats.Snapshot, duration time.Duration) Summary {
	sum := Summary{
		Name:            s.Name,
		Success:         s.Success,
		Fail:            s.Fail,
		TransportErrors: s.TransportErrors,
		Requests:        s.Requests(),
	}
	if secs := duration.Seconds(); secs > 0 {
		sum.RPS = float64(sum.Requests) / secs
	}

	if len(s.Latencies) == 0 {
		return sum
	}

	ms := make([]float64, len(s.Latencies))
	total := 0.0
	for i, l := range s.Latencies {
		ms[i] = float64(l) / float64(time.Millisecond)
		total += ms[i]
	}
	sort.Float64s(ms)

	sum.HasLatency = true
	sum.MinMs = ms[0]
	sum.MaxMs = ms[len(ms)-1]
	sum.AvgMs = total / float64(len(ms))
	sum.P95Ms, _ = P95(ms)
	sum.P99Ms = s.P99Ms
	return sum
}

// P95 returns sorted[floor(0.95*N)] of an ascending slice, without interpolation.
// It reports false for an empty slice.
func P95(sorted []float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}

	idx := int(math.Floor(0.95 * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx], true
}
