// Package metrics exposes prometheus collectors for the HTTP API and the realtime events.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klunity/klunity/core"
)

const namespace = "klunity"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "events_published_total",
				Help:      "Events published to connected users, by type.",
			},
			[]string{"type"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.events,
	)
	return m
}

// Handler serves the collected metrics in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchConnections exposes the number of live realtime connections.
func (m *Metrics) WatchConnections(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Live websocket connections.",
		},
		func() float64 { return float64(count()) },
	))
}

// Middleware records the count and duration of every request, labelled by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				// writes the error response; the status below is the final one
				ctx.Error(err)
			}

			status := ctx.Response().Status
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// EventSent counts an event delivered outside of a Publisher, such as a connection greeting.
func (m *Metrics) EventSent(evtType string) {
	m.events.WithLabelValues(evtType).Inc()
}

// Publisher wraps next and counts the events going through it.
func (m *Metrics) Publisher(next core.Publisher) core.Publisher {
	return &countingPublisher{next: next, events: m.events}
}

type countingPublisher struct {
	next   core.Publisher
	events *prometheus.CounterVec
}

func (p *countingPublisher) Publish(evt core.Event, userIDs ...string) {
	p.events.WithLabelValues(evt.Type).Inc()
	p.next.Publish(evt, userIDs...)
}
