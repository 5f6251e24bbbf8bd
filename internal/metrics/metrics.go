// Package metrics holds the prometheus collectors of the auth service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adminpanel"

// Metrics is passed to every component that records something. A nil
// *Metrics records nothing.
type Metrics struct {
	LoginsTotal          *prometheus.CounterVec
	RefreshesTotal       *prometheus.CounterVec
	AuthenticationsTotal *prometheus.CounterVec
	RevocationsTotal     *prometheus.CounterVec
	SweptSessionsTotal   prometheus.Counter
	RateLimitedTotal     prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
	TasksTotal           *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		LoginsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"result"}, // result=ok or an error code
		),
		RefreshesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Refresh token exchanges by outcome",
			},
			[]string{"result"},
		),
		AuthenticationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authentications_total",
				Help:      "Per-request access token checks by outcome",
			},
			[]string{"result"},
		),
		RevocationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_revocations_total",
				Help:      "Sessions revoked by reason",
			},
			[]string{"reason"}, // logout, expired, inactive, single_session, disabled, user
		),
		SweptSessionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swept_sessions_total",
				Help:      "Sessions revoked by the expiry sweeper",
			},
		),
		RateLimitedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_rate_limited_total",
				Help:      "Login requests rejected by the rate limiter",
			},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		TasksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_tasks_total",
				Help:      "Worker tasks processed by type and outcome",
			},
			[]string{"type", "result"},
		),
	}
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Refresh(result string) {
	if m != nil {
		m.RefreshesTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Authentication(result string) {
	if m != nil {
		m.AuthenticationsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Revoked(reason string, n int64) {
	if m != nil && n > 0 {
		m.RevocationsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) Swept(n int64) {
	if m != nil && n > 0 {
		m.SweptSessionsTotal.Add(float64(n))
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.RateLimitedTotal.Inc()
	}
}

func (m *Metrics) Task(taskType, result string) {
	if m != nil {
		m.TasksTotal.WithLabelValues(taskType, result).Inc()
	}
}
