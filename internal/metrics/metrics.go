// Package metrics содержит счётчики Prometheus сервиса.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics объединяет метрики расхода газа, уведомлений и плановых рассылок.
// Нулевой указатель допустим: все методы становятся пустыми.
type Metrics struct {
	usageRegistrations *prometheus.CounterVec
	gasConsumed        *prometheus.CounterVec
	alertsFired        *prometheus.CounterVec
	notifyFailures     prometheus.Counter
	sweepDuration      *prometheus.HistogramVec
	sweepErrors        *prometheus.CounterVec
}

// New создаёт метрики и регистрирует их в registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		usageRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sodatrack_usage_registrations_total",
			Help: "Accepted usage registrations by dispenser kind.",
		}, []string{"dispenser"}),
		gasConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sodatrack_gas_consumed_units_total",
			Help: "Gas consumed by registered usage, in siphon units.",
		}, []string{"dispenser"}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sodatrack_alerts_fired_total",
			Help: "Threshold alerts fired by level.",
		}, []string{"level"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sodatrack_notification_failures_total",
			Help: "Notifications that could not be delivered.",
		}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sodatrack_sweep_duration_seconds",
			Help:    "Duration of scheduled sweeps.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sodatrack_sweep_errors_total",
			Help: "Scheduled sweeps that finished with an error.",
		}, []string{"job"}),
	}

	registerer.MustRegister(
		m.usageRegistrations,
		m.gasConsumed,
		m.alertsFired,
		m.notifyFailures,
		m.sweepDuration,
		m.sweepErrors,
	)
	return m
}

// ObserveUsage учитывает принятую регистрацию расхода.
func (m *Metrics) ObserveUsage(dispenser string, gasUsed float64) {
	if m == nil {
		return
	}
	if dispenser == "" {
		dispenser = "unset"
	}
	m.usageRegistrations.WithLabelValues(dispenser).Inc()
	m.gasConsumed.WithLabelValues(dispenser).Add(gasUsed)
}

// IncAlert учитывает отправленное критическое уведомление.
func (m *Metrics) IncAlert(level int) {
	if m == nil {
		return
	}
	m.alertsFired.WithLabelValues(strconv.Itoa(level)).Inc()
}

// IncNotifyFailure учитывает недоставленное уведомление.
func (m *Metrics) IncNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

// ObserveSweep учитывает длительность и результат плановой рассылки.
func (m *Metrics) ObserveSweep(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		m.sweepErrors.WithLabelValues(job).Inc()
	}
}
