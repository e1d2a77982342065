// Package metricsvc exposes prometheus metrics for the HTTP API, the build orchestrator and the events hub.
package metricsvc

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
)

const namespace = "appgen"

// HubStats is implemented by *events.Hub.
type HubStats interface {
	Subscribers() int
	Dropped() int64
}

type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	buildsSubmitted *prometheus.CounterVec
	buildsFinished  *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
}

var _ build.Observer = (*Metrics)(nil) // interface compliance check

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
		buildsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "builds",
			Name:      "submitted_total",
			Help:      "Total number of accepted build jobs.",
		}, []string{"platform", "app_kind"}),
		buildsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "builds",
			Name:      "finished_total",
			Help:      "Total number of build jobs that reached a terminal state.",
		}, []string{"platform", "app_kind", "status"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "builds",
			Name:      "duration_seconds",
			Help:      "Time from submission to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}, []string{"platform", "status"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.buildsSubmitted,
		m.buildsFinished,
		m.buildDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// WatchHub registers gauges reading the hub stats at scrape time.
func (m *Metrics) WatchHub(hub HubStats) {
	m.Registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Current number of build event subscribers.",
		}, func() float64 { return float64(hub.Subscribers()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of progress events dropped for slow subscribers.",
		}, func() float64 { return float64(hub.Dropped()) }),
	)
}

func (m *Metrics) JobSubmitted(platform appconfig.Platform, kind appconfig.AppKind) {
	m.buildsSubmitted.WithLabelValues(string(platform), string(kind)).Inc()
}

func (m *Metrics) JobFinished(job build.Job) {
	m.buildsFinished.WithLabelValues(string(job.Platform), string(job.AppKind), string(job.Status)).Inc()
	if job.CompletedAt != nil {
		m.buildDuration.WithLabelValues(string(job.Platform), string(job.Status)).
			Observe(job.CompletedAt.Sub(job.CreatedAt).Seconds())
	}
}

// Handler exposes the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records HTTP metrics, labelled by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}

			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err) // let the error handler set the status
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			status := strconv.Itoa(c.Response().Status)
			m.httpRequests.WithLabelValues(method, path, status).Inc()
			m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
