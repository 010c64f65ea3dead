package metrics

import (
	"net/http"
	"time"

	"microloan/go-backend/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "microloan"

// Loan collects orchestrator metrics on its own registry so tests and
// multiple daemons in one process never collide on the default one.
type Loan struct {
	registry *prometheus.Registry

	actions   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	refreshes *prometheus.CounterVec
	rpcCalls  *prometheus.CounterVec
}

func NewLoan() *Loan {
	reg := prometheus.NewRegistry()
	m := &Loan{
		registry: reg,
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Loan actions by kind and outcome (succeeded or error kind).",
		}, []string{"action", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time from submission to confirmation or failure.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"action"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "action_in_flight",
			Help:      "1 while a mutating action holds the slot.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_refreshes_total",
			Help:      "Registry view loads by view and result.",
		}, []string{"view", "result"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and status.",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(
		m.actions,
		m.latency,
		m.inFlight,
		m.refreshes,
		m.rpcCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Loan) ObserveAction(kind models.ActionKind, outcome string, elapsed time.Duration) {
	m.actions.WithLabelValues(string(kind), outcome).Inc()
	if elapsed > 0 {
		m.latency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

func (m *Loan) SetInFlight(inFlight bool) {
	if inFlight {
		m.inFlight.Set(1)
		return
	}
	m.inFlight.Set(0)
}

func (m *Loan) ObserveRefresh(view models.ViewMode, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	m.refreshes.WithLabelValues(string(view), result).Inc()
}

// ObserveRPC counts a served request. Unknown methods are folded into one
// label value to keep cardinality bounded.
func (m *Loan) ObserveRPC(method, status string, known bool) {
	if !known {
		method = "unknown"
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
}

func (m *Loan) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Loan) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
