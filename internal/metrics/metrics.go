// Package metrics описывает счётчики Prometheus для задач сверки и доставки уведомлений.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics: набор счётчиков. Nil-значение допустимо и ничего не считает.
type Metrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	skipped     *prometheus.CounterVec
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym_lifecycle",
			Name:      "job_runs_total",
			Help:      "Reconciliation job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gym_lifecycle",
			Name:      "job_duration_seconds",
			Help:      "Reconciliation job duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym_lifecycle",
			Name:      "transitions_total",
			Help:      "Committed client state transitions.",
		}, []string{"kind"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym_lifecycle",
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel, template and result.",
		}, []string{"channel", "template", "result"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym_lifecycle",
			Name:      "skipped_total",
			Help:      "Records skipped because state changed or a reminder was already sent.",
		}, []string{"job", "reason"}),
	}
}

// JobFinished учитывает завершение задачи.
func (m *Metrics) JobFinished(job string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(seconds)
}

// Transition учитывает применённый переход.
func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

// Delivery учитывает попытку доставки.
func (m *Metrics) Delivery(channel, template string, ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.deliveries.WithLabelValues(channel, template, result).Inc()
}

// Skipped учитывает пропущенную запись.
func (m *Metrics) Skipped(job, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job, reason).Inc()
}
