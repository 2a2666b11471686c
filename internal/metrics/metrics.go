package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess        = "success"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
)

// Collector exports per-scenario request metrics for one run.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookstorm",
			Name:      "requests_total",
			Help:      "Requests dispatched, by scenario and outcome",
		}, []string{"scenario", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hookstorm",
			Name:      "request_duration_seconds",
			Help:      "Latency of completed requests including body download",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"scenario"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hookstorm",
			Name:      "inflight_requests",
			Help:      "Requests currently waiting for a response",
		}),
	}

	c.registry.MustRegister(c.requests, c.duration, c.inflight)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Observe counts one request. Latency is only observed for completed exchanges.
func (c *Collector) Observe(scenario, outcome string, latency time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(scenario, outcome).Inc()
	if outcome != OutcomeTransportError {
		c.duration.WithLabelValues(scenario).Observe(latency.Seconds())
	}
}

func (c *Collector) Inflight(delta float64) {
	if c == nil {
		return
	}
	c.inflight.Add(delta)
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
