// Package metrics exposes run and indicator metrics for Prometheus.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"MarketLens/internal/model"
)

// Metrics holds the Prometheus collectors for the runner.
type Metrics struct {
	Registry *prometheus.Registry

	AttemptsTotal   *prometheus.CounterVec // labels: outcome
	BackoffSeconds  prometheus.Counter
	RunsTotal       *prometheus.CounterVec // labels: status
	BarsFetched     prometheus.Gauge
	LastSuccess     prometheus.Gauge
	LatestIndicator *prometheus.GaugeVec // labels: ticker, indicator

	health *HealthStatus
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_attempts_total",
			Help: "Fetch attempts by outcome",
		}, []string{"outcome"}),
		BackoffSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketlens_backoff_seconds_total",
			Help: "Time spent waiting after rate-limit responses",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_runs_total",
			Help: "Completed runs by final status",
		}, []string{"status"}),
		BarsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketlens_bars_fetched",
			Help: "Bars returned by the last successful fetch",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketlens_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
		LatestIndicator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketlens_latest_indicator",
			Help: "Indicator values of the most recent bar",
		}, []string{"ticker", "indicator"}),
		health: NewHealthStatus(),
	}

	m.Registry.MustRegister(
		m.AttemptsTotal,
		m.BackoffSeconds,
		m.RunsTotal,
		m.BarsFetched,
		m.LastSuccess,
		m.LatestIndicator,
	)
	return m
}

// Health returns the status served on /healthz.
func (m *Metrics) Health() *HealthStatus { return m.health }

func (m *Metrics) ObserveAttempt(outcome string) {
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBackoff(d time.Duration) {
	m.BackoffSeconds.Add(d.Seconds())
}

// ObserveRun counts a finished run and updates the health status.
func (m *Metrics) ObserveRun(status string, at time.Time) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.health.SetLastRun(status, at)
}

// ObserveSuccess records the bar count and the indicators of the latest row.
// Undefined indicators are removed rather than exported as zero.
func (m *Metrics) ObserveSuccess(ticker string, bars int, latest model.IndicatorRow, at time.Time) {
	m.BarsFetched.Set(float64(bars))
	m.LastSuccess.Set(float64(at.Unix()))

	values := map[string]null.Float{
		"close":       null.FloatFrom(latest.Close),
		"sma_200":     latest.SMA200,
		"ema_50":      latest.EMA50,
		"rsi_14":      latest.RSI14,
		"macd":        latest.MACD,
		"macd_signal": latest.MACDSignal,
	}
	for name, v := range values {
		if v.Valid {
			m.LatestIndicator.WithLabelValues(ticker, name).Set(v.Float64)
		} else {
			m.LatestIndicator.DeleteLabelValues(ticker, name)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// HealthStatus tracks the outcome of the last run.
type HealthStatus struct {
	mu        sync.RWMutex
	StartedAt time.Time
	LastRun   string
	LastRunAt time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetLastRun(status string, at time.Time) {
	h.mu.Lock()
	h.LastRun = status
	h.LastRunAt = at
	h.mu.Unlock()
}

// ServeHTTP handles /healthz. A process whose last run exhausted its
// attempts reports degraded with 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	if h.LastRun == "exhausted" {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	lastRunAt := ""
	if !h.LastRunAt.IsZero() {
		lastRunAt = h.LastRunAt.Format(time.RFC3339)
	}
	status := struct {
		Status    string `json:"status"`
		Uptime    string `json:"uptime"`
		LastRun   string `json:"last_run"`
		LastRunAt string `json:"last_run_at"`
	}{
		Status:    overall,
		Uptime:    time.Since(h.StartedAt).Round(time.Second).String(),
		LastRun:   h.LastRun,
		LastRunAt: lastRunAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	srv *http.Server
	log *logrus.Entry
}

func NewServer(addr string, m *Metrics, log *logrus.Entry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", m.Health())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("metrics server stopped")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
