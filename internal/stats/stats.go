package stats

import (
	"sync"
	"time"
)

// ScenarioResult holds the outcome counters and latency samples of one scenario.
// All fields are guarded by mu; request goroutines record into it concurrently.
type ScenarioResult struct {
	Name string

	mu              sync.Mutex
	success         uint64
	fail            uint64
	transportErrors uint64
	latencies       []time.Duration

	hist *SafeHistogram
}

func NewScenarioResult(name string) *ScenarioResult {
	return &ScenarioResult{
		Name:      name,
		latencies: make([]time.Duration, 0, 1024),
		hist:      NewSafeHistogram(),
	}
}

// RecordResponse records a completed HTTP exchange, whatever its status.
func (r *ScenarioResult) RecordResponse(latency time.Duration, ok bool) {
	r.mu.Lock()
	if ok {
		r.success++
	} else {
		r.fail++
	}
	r.latencies = append(r.latencies, latency)
	r.mu.Unlock()

	r.hist.Record(latency)
}

// RecordTransportError counts a request that never produced a response.
// No latency sample is taken for it.
func (r *ScenarioResult) RecordTransportError() {
	r.mu.Lock()
	r.fail++
	r.transportErrors++
	r.mu.Unlock()
}

// Snapshot is a point-in-time copy of a ScenarioResult.
type Snapshot struct {
	Name            string
	Success         uint64
	Fail            uint64
	TransportErrors uint64
	Latencies       []time.Duration

	// From the histogram, milliseconds
	P50Ms float64
	P99Ms float64
}

func (s Snapshot) Requests() uint64 {
	return s.Success + s.Fail
}

func (r *ScenarioResult) Snapshot() Snapshot {
	r.mu.Lock()
	s := Snapshot{
		Name:            r.Name,
		Success:         r.success,
		Fail:            r.fail,
		TransportErrors: r.transportErrors,
		Latencies:       make([]time.Duration, len(r.latencies)),
	}
	copy(s.Latencies, r.latencies)
	r.mu.Unlock()

	if len(s.Latencies) > 0 {
		s.P50Ms = r.hist.QuantileMs(50)
		s.P99Ms = r.hist.QuantileMs(99)
	}
	return s
}

// Counts returns success and fail without copying latencies.
func (r *ScenarioResult) Counts() (success, fail uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.success, r.fail
}

// ResultSet keeps one ScenarioResult per scenario, in scenario order.
type ResultSet struct {
	order   []string
	results map[string]*ScenarioResult
}

func NewResultSet(names ...string) *ResultSet {
	rs := &ResultSet{results: make(map[string]*ScenarioResult, len(names))}
	for _, n := range names {
		if _, ok := rs.results[n]; ok {
			continue
		}
		rs.order = append(rs.order, n)
		rs.results[n] = NewScenarioResult(n)
	}
	return rs
}

func (rs *ResultSet) Get(name string) *ScenarioResult {
	return rs.results[name]
}

func (rs *ResultSet) Names() []string {
	out := make([]string, len(rs.order))
	copy(out, rs.order)
	return out
}

// Snapshots returns a snapshot of every scenario in order.
func (rs *ResultSet) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(rs.order))
	for _, n := range rs.order {
		out = append(out, rs.results[n].Snapshot())
	}
	return out
}
