// Package metrics exposes Prometheus collectors for the payment gate: HTTP
// traffic, facilitator round-trips, and settlement outcomes.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/facilitator"
)

var (
	// Registry holds the gate-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "x402_gate",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402_gate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402_gate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	facilitatorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402_gate",
			Subsystem: "facilitator",
			Name:      "calls_total",
			Help:      "Total facilitator round-trips by operation and outcome.",
		},
		[]string{"operation", "network", "outcome"},
	)

	facilitatorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402_gate",
			Subsystem: "facilitator",
			Name:      "call_duration_seconds",
			Help:      "Duration of facilitator round-trips.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"operation"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402_gate",
			Subsystem: "payments",
			Name:      "settlements_total",
			Help:      "Total on-chain settlements by network and success.",
		},
		[]string{"network", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		facilitatorCalls,
		facilitatorDuration,
		settlements,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Account identifiers are collapsed out of the path label to keep cardinality
// bounded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// InstrumentFacilitator decorates a facilitator client so every verify and
// settle round-trip is counted and timed.
func InstrumentFacilitator(inner facilitator.Interface) facilitator.Interface {
	return &instrumentedFacilitator{inner: inner}
}

type instrumentedFacilitator struct {
	inner facilitator.Interface
}

func (f *instrumentedFacilitator) Verify(ctx context.Context, payment gate.PaymentPayload, req gate.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	start := time.Now()
	resp, err := f.inner.Verify(ctx, payment, req)
	facilitatorDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	facilitatorCalls.WithLabelValues("verify", payment.Network, verifyOutcome(resp, err)).Inc()
	return resp, err
}

func (f *instrumentedFacilitator) Settle(ctx context.Context, payment gate.PaymentPayload, req gate.PaymentRequirement) (*gate.SettlementResponse, error) {
	start := time.Now()
	resp, err := f.inner.Settle(ctx, payment, req)
	facilitatorDuration.WithLabelValues("settle").Observe(time.Since(start).Seconds())

	outcome := "error"
	success := "false"
	if err == nil && resp != nil {
		outcome = "ok"
		if resp.Success {
			success = "true"
		}
		settlements.WithLabelValues(payment.Network, success).Inc()
	}
	facilitatorCalls.WithLabelValues("settle", payment.Network, outcome).Inc()
	return resp, err
}

func (f *instrumentedFacilitator) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	return f.inner.Supported(ctx)
}

func (f *instrumentedFacilitator) Health(ctx context.Context) (bool, error) {
	return f.inner.Health(ctx)
}

func verifyOutcome(resp *facilitator.VerifyResponse, err error) string {
	switch {
	case err != nil:
		return "error"
	case resp == nil || !resp.IsValid:
		return "rejected"
	default:
		return "ok"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "accounts" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/accounts"
	}
	if len(parts) == 2 {
		return "/accounts/:account"
	}
	return "/accounts/:account/" + strings.Join(parts[2:], "/")
}
