// Package metrics exposes arena Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ernie/pokearena/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the arena collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	battlesTotal    *prometheus.CounterVec
	onlineUsers     prometheus.Gauge
	messagesTotal   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// New creates and registers every collector on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		battlesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pokearena_battles_total", Help: "Recorded battles by opponent kind and outcome"},
			[]string{"kind", "outcome"},
		),
		onlineUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "pokearena_online_users", Help: "Users with a live arena connection"},
		),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pokearena_ws_messages_total", Help: "Inbound arena messages"},
			[]string{"type"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "endpoint"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Current in-flight requests"},
		),
	}
	m.registry.MustRegister(
		m.battlesTotal, m.onlineUsers, m.messagesTotal,
		m.requestsTotal, m.requestDuration, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BattleRecorded counts a recorded battle
func (m *Metrics) BattleRecorded(ctx context.Context, rec domain.BattleRecord) {
	kind := "pvp"
	if rec.Player1ID.IsBot() || rec.Player2ID.IsBot() {
		kind = "bot"
	}
	outcome := "win"
	if rec.IsTie() {
		outcome = "tie"
	} else if rec.WinnerID.IsBot() {
		outcome = "bot_win"
	}
	m.battlesTotal.WithLabelValues(kind, outcome).Inc()
}

// SetOnline records the number of connected users
func (m *Metrics) SetOnline(n int) {
	m.onlineUsers.Set(float64(n))
}

// MessageReceived counts one inbound arena message
func (m *Metrics) MessageReceived(msgType string) {
	m.messagesTotal.WithLabelValues(msgType).Inc()
}

// Middleware records request counts and latency under the given endpoint label
func (m *Metrics) Middleware(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.requestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rw.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
