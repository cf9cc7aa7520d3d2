// Package metrics собирает Prometheus метрики сервиса на отдельном registry
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/aishu/internal/rollout"
)

const namespace = "aishu"

var (
	_ rollout.Observer     = (*Metrics)(nil)
	_ rollout.DropObserver = (*Metrics)(nil)
)

// Metrics содержит все коллекторы сервиса
type Metrics struct {
	registry         *prometheus.Registry
	csrfRejections   *prometheus.CounterVec
	flagEvaluations  *prometheus.CounterVec
	analyticsDropped prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New создает registry и регистрирует коллекторы
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		csrfRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "csrf_rejections_total",
			Help:      "Requests rejected by CSRF protection, by reason.",
		}, []string{"reason"}),
		flagEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_evaluations_total",
			Help:      "Feature flag evaluations by flag, deciding rule and result.",
		}, []string{"flag", "reason", "enabled"}),
		analyticsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_analytics_dropped_total",
			Help:      "Evaluation analytics records dropped because the queue was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		m.csrfRejections,
		m.flagEvaluations,
		m.analyticsDropped,
		m.httpRequests,
		m.httpDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry возвращает registry (для тестов и дополнительных коллекторов)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCSRFRejection учитывает отклоненный запрос
func (m *Metrics) ObserveCSRFRejection(reason string) {
	m.csrfRejections.WithLabelValues(reason).Inc()
}

// ObserveEvaluation учитывает вычисление флага
func (m *Metrics) ObserveEvaluation(flag string, reason rollout.Reason, enabled bool) {
	m.flagEvaluations.WithLabelValues(flag, string(reason), strconv.FormatBool(enabled)).Inc()
}

// ObserveDropped учитывает отброшенную запись аналитики
func (m *Metrics) ObserveDropped() {
	m.analyticsDropped.Inc()
}

// ObserveHTTPRequest учитывает обработанный HTTP запрос
func (m *Metrics) ObserveHTTPRequest(method string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}
