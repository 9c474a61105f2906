// Package metrics exposes scheduler, reconciliation, badge and lock state as
// Prometheus collectors.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-futureme/internal/domain"
)

const namespace = "futureme"

type Metrics struct {
	registry *prometheus.Registry

	scheduleOutcomes *prometheus.CounterVec
	reconcilePasses  *prometheus.CounterVec
	reconciled       prometheus.Counter
	badge            prometheus.Gauge
	lockPending      prometheus.Gauge
	changes          *prometheus.CounterVec
}

// New builds a private registry with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		scheduleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_schedule_total",
			Help:      "Notification scheduler operations by outcome.",
		}, []string{"outcome"}),
		reconcilePasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_passes_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "letters_delivered_total",
			Help:      "Letters marked delivered by reconciliation.",
		}),
		badge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "badge_count",
			Help:      "Unread count last pushed to the badge surface.",
		}),
		lockPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lock_pending_reauth",
			Help:      "1 while the app lock is waiting for authentication.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Change notifications emitted by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.scheduleOutcomes,
		m.reconcilePasses,
		m.reconciled,
		m.badge,
		m.lockPending,
		m.changes,
	)
	return m
}

// RegisterPending exposes the number of pending notifications via fn.
func (m *Metrics) RegisterPending(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notifications_pending",
		Help:      "Notifications registered and not yet fired.",
	}, fn))
}

func (m *Metrics) ObserveSchedule(outcome string) {
	m.scheduleOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReconcile(flipped int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reconcilePasses.WithLabelValues(result).Inc()
	m.reconciled.Add(float64(flipped))
}

// SetBadge makes the gauge a badge surface.
func (m *Metrics) SetBadge(_ context.Context, n int) error {
	m.badge.Set(float64(n))
	return nil
}

// Observe is a change-bus subscriber.
func (m *Metrics) Observe(c domain.Change) {
	m.changes.WithLabelValues(string(c.Kind)).Inc()
	if c.Kind == domain.LockStateChanged {
		if c.LockState == domain.PendingReauth {
			m.lockPending.Set(1)
		} else {
			m.lockPending.Set(0)
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
