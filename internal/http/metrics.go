package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	throttled *prometheus.CounterVec
}

func newAPIMetrics(reg prometheus.Registerer) *apiMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "catalyst", Subsystem: "api", Name: name, Help: help}
	}
	return &apiMetrics{
		requests: registerCollector(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("http_requests_total", "HTTP requests by route and status")),
			[]string{"method", "route", "status"})),
		latency: registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catalyst",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"})),
		inFlight: registerCollector(reg, prometheus.NewGauge(
			prometheus.GaugeOpts(opts("http_requests_in_flight", "HTTP requests being served")))),
		throttled: registerCollector(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("rate_limited_total", "Requests rejected by a rate limit policy")),
			[]string{"policy"})),
	}
}

// registerCollector adds c to reg, reusing a collector another router already registered.
func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	var dup prometheus.AlreadyRegisteredError
	if errors.As(err, &dup) {
		if existing, ok := dup.ExistingCollector.(C); ok {
			return existing
		}
	}
	return c
}

func (m *apiMetrics) observe(method, route string, status int, took time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(took.Seconds())
}

func (r *Router) metricsHandler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{ErrorLog: slogAdapter{r.logger}})
}

type slogAdapter struct{ log *slog.Logger }

func (a slogAdapter) Println(v ...any) {
	a.log.Error("metrics exposition failed", "error", fmt.Sprint(v...))
}
