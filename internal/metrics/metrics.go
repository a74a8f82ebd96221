package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 账本相关指标，使用独立 registry
type Metrics struct {
	registry *prometheus.Registry

	RequestsSubmitted     *prometheus.CounterVec
	RequestsProcessed     *prometheus.CounterVec
	RequestsFailed        *prometheus.CounterVec
	BonusGranted          prometheus.Counter
	ActivityInconsistency prometheus.Counter
	ActivityReconciled    prometheus.Counter
	OutboxMessages        *prometheus.CounterVec
	ApprovalDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_requests_submitted_total",
			Help: "Deposit and withdrawal requests created in pending state",
		}, []string{"kind"}),
		RequestsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_requests_processed_total",
			Help: "Requests moved to a terminal state",
		}, []string{"kind", "status"}),
		RequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_requests_failed_total",
			Help: "Request operations that returned an error, by error code",
		}, []string{"kind", "code"}),
		BonusGranted: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_bonus_granted_total",
			Help: "Accounts that received the first deposit bonus",
		}),
		ActivityInconsistency: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_activity_inconsistency_total",
			Help: "Committed ledger mutations whose activity append failed",
		}),
		ActivityReconciled: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_activity_reconciled_total",
			Help: "Activity events backfilled by the reconciler",
		}),
		OutboxMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_outbox_messages_total",
			Help: "Outbox publish attempts by result",
		}, []string{"result"}),
		ApprovalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custody_approval_duration_seconds",
			Help:    "Time spent inside approve/reject operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveApproval(kind string, start time.Time) {
	m.ApprovalDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
