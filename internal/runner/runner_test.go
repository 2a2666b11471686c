package runner

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookstorm/internal/logging"
	"hookstorm/internal/metrics"
)

func testConfig(url string, users int, d time.Duration) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.ConcurrentUsers = users
	cfg.Duration = d
	cfg.RequestTimeout = 2 * time.Second
	return &cfg
}

// syncBuffer lets the test read log output written from request goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunner_AllSuccess(t *testing.T) {
	var received int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, err := NewRunner(testConfig(server.URL, 3, 500*time.Millisecond), nil)
	require.NoError(t, err)

	results, err := r.Run(context.Background())
	require.NoError(t, err)

	var total uint64
	for _, s := range results.Snapshots() {
		assert.Equal(t, uint64(0), s.Fail, s.Name)
		assert.Greater(t, s.Success, uint64(0), s.Name)
		assert.Len(t, s.Latencies, int(s.Success), s.Name)
		total += s.Requests()
	}
	assert.Equal(t, uint64(atomic.LoadInt64(&received)), total)
}

func TestRunner_FiveSecondRun(t *testing.T) {
	if testing.Short() {
		t.Skip("long run")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, err := NewRunner(testConfig(server.URL, 3, 5*time.Second), nil)
	require.NoError(t, err)

	results, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, results.Snapshots(), 3)
	for _, s := range results.Snapshots() {
		assert.Equal(t, uint64(0), s.Fail, s.Name)
		assert.Greater(t, s.Success, uint64(0), s.Name)
	}
}

func TestRunner_ServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("script exploded"))
	}))
	defer server.Close()

	logs := &syncBuffer{}
	logger, err := logging.New(logs, logging.LevelInfo, logging.FormatLogfmt, false)
	require.NoError(t, err)

	r, err := NewRunner(testConfig(server.URL, 3, 300*time.Millisecond), nil, WithLogger(logger))
	require.NoError(t, err)

	results, err := r.Run(context.Background())
	require.NoError(t, err)

	for _, s := range results.Snapshots() {
		assert.Equal(t, uint64(0), s.Success, s.Name)
		assert.Greater(t, s.Fail, uint64(0), s.Name)
		assert.Equal(t, uint64(0), s.TransportErrors, s.Name)
		// HTTP failures still carry a latency sample.
		assert.Len(t, s.Latencies, int(s.Fail), s.Name)
	}

	out := logs.String()
	assert.Contains(t, out, "status=500")
	assert.Contains(t, out, "script exploded")
	assert.Contains(t, out, `msg="GET API failed"`)
}

func TestRunner_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	logs := &syncBuffer{}
	logger, err := logging.New(logs, logging.LevelInfo, logging.FormatLogfmt, false)
	require.NoError(t, err)

	r, err := NewRunner(testConfig(url, 3, 300*time.Millisecond), nil, WithLogger(logger))
	require.NoError(t, err)

	results, err := r.Run(context.Background())
	require.NoError(t, err)

	for _, s := range results.Snapshots() {
		assert.Equal(t, uint64(0), s.Success, s.Name)
		assert.Greater(t, s.Fail, uint64(0), s.Name)
		assert.Equal(t, s.Fail, s.TransportErrors, s.Name)
		assert.Empty(t, s.Latencies, s.Name)
	}
	assert.Contains(t, logs.String(), "request error")
}

func TestRunner_MixedOutcomesKeepInvariant(t *testing.T) {
	var n int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt64(&n, 1) % 3 {
		case 0:
			w.WriteHeader(http.StatusOK)
		case 1:
			w.WriteHeader(http.StatusBadRequest)
		default:
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				w.WriteHeader(http.StatusOK)
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
		}
	}))
	defer server.Close()

	r, err := NewRunner(testConfig(server.URL, 6, 300*time.Millisecond), nil)
	require.NoError(t, err)

	results, err := r.Run(context.Background())
	require.NoError(t, err)

	for _, s := range results.Snapshots() {
		assert.Equal(t, int(s.Requests()-s.TransportErrors), len(s.Latencies), s.Name)
	}
}

func TestRunner_RequestShape(t *testing.T) {
	type seen struct {
		method, path, query, accept, contentType, requestID string
		body                                                []byte
	}
	var mu sync.Mutex
	var requests []seen

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, seen{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			accept:      r.Header.Get("Accept"),
			contentType: r.Header.Get("Content-Type"),
			requestID:   r.Header.Get("X-Request-ID"),
			body:        b,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL+"/", 3, 150*time.Millisecond)
	cfg.APIKey = "secret"
	cfg.Script = "ping.ps1"

	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	var gets, posts, jobs int
	for _, s := range requests {
		assert.Equal(t, "application/json", s.accept)
		assert.NotEmpty(t, s.requestID)

		switch {
		case s.method == http.MethodGet && s.path == "/webhook/v1":
			gets++
			assert.Equal(t, "key=secret&script=ping.ps1", s.query)
			assert.Empty(t, s.body)
		case s.method == http.MethodPost && s.path == "/webhook/v1":
			posts++
			assert.Equal(t, "application/json", s.contentType)
			assert.JSONEq(t, `{"script":"ping.ps1","key":"secret"}`, string(s.body))
		case s.method == http.MethodPost && s.path == "/jobs/v1/enqueue":
			jobs++
			assert.Equal(t, "application/json", s.contentType)
			assert.JSONEq(t, `{"script":"ping.ps1","key":"secret"}`, string(s.body))
		default:
			t.Errorf("unexpected request %s %s", s.method, s.path)
		}
	}
	assert.Greater(t, gets, 0)
	assert.Greater(t, posts, 0)
	assert.Greater(t, jobs, 0)
}

func TestRunner_WallClockBounds(t *testing.T) {
	const delay = 50 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := 400 * time.Millisecond
	r, err := NewRunner(testConfig(server.URL, 9, d), nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, d)
	// One pacing interval plus one batch past the nominal duration, with slack.
	assert.Less(t, elapsed, d+100*time.Millisecond+delay+500*time.Millisecond)
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	var active, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, err := NewRunner(testConfig(server.URL, 6, 300*time.Millisecond), nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(6))
	assert.Equal(t, int64(0), r.GetInflight())
}

func TestRunner_CancelFinishesInflightBatch(t *testing.T) {
	var completed int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		atomic.AddInt64(&completed, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, err := NewRunner(testConfig(server.URL, 3, time.Minute), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	results, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	for _, s := range results.Snapshots() {
		// The first batch was already in flight and must complete normally.
		assert.Equal(t, uint64(1), s.Success, s.Name)
		assert.Equal(t, uint64(0), s.Fail, s.Name)
	}
	assert.Equal(t, int64(3), atomic.LoadInt64(&completed))
}

func TestRunner_EveryDispatchRecordedOnCancel(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, err := NewRunner(testConfig(server.URL, 6, time.Minute), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(250*time.Millisecond, cancel)

	results, err := r.Run(ctx)
	require.NoError(t, err)

	var recorded uint64
	for _, s := range results.Snapshots() {
		recorded += s.Requests()
	}
	assert.Greater(t, recorded, uint64(0))
	assert.Equal(t, uint64(atomic.LoadInt64(&hits)), recorded)
}

func TestRunner_ProgressUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	updates := make(ProgressChan, 1000)
	d := 300 * time.Millisecond
	r, err := NewRunner(testConfig(server.URL, 3, d), updates)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	close(updates)

	done := map[string]bool{}
	for u := range updates {
		assert.LessOrEqual(t, u.Elapsed, d)
		assert.Equal(t, d, u.Duration)
		if u.Done {
			done[u.Scenario] = true
		}
	}
	assert.Len(t, done, 3)
}

func TestRunner_Metrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := metrics.New()
	r, err := NewRunner(testConfig(server.URL, 3, 200*time.Millisecond), nil, WithMetrics(c))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["hookstorm_requests_total"])
	assert.True(t, names["hookstorm_request_duration_seconds"])
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	_, err := NewRunner(testConfig("http://localhost:1", 2, time.Second), nil)
	assert.Error(t, err)
}
