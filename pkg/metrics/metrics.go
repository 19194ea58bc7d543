// Package metrics holds the Prometheus collectors for the auth backend and
// the session stores.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jadapache/raices-vivas/core"
)

var _ core.StoreMetrics = (*Metrics)(nil)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	Reconciles     *prometheus.CounterVec
	ForcedSignOuts *prometheus.CounterVec
	ProfileLookup  prometheus.Histogram
	ActiveStreams  prometheus.Gauge
	RouteDecisions *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		AuthOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raices_auth_operations_total",
				Help: "Auth operations by name and result",
			},
			[]string{"operation", "result"},
		),
		Reconciles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raices_session_reconciles_total",
				Help: "Session store reconciliations by outcome",
			},
			[]string{"outcome"},
		),
		ForcedSignOuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raices_forced_sign_outs_total",
				Help: "Sign-outs forced by an unresolvable profile",
			},
			[]string{"reason"},
		),
		ProfileLookup: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "raices_profile_lookup_seconds",
				Help:    "Profile lookup latency seen by session stores",
				Buckets: prometheus.DefBuckets,
			},
		),
		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "raices_dashboard_streams",
				Help: "Open dashboard event streams",
			},
		),
		RouteDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raices_route_decisions_total",
				Help: "Dashboard routing decisions by view",
			},
			[]string{"view"},
		),
	}
}

func (m *Metrics) AuthOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AuthOperations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ReconcileOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ForcedSignOut(reason string) {
	if m == nil {
		return
	}
	m.ForcedSignOuts.WithLabelValues(reason).Inc()
}

func (m *Metrics) ProfileLookupDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ProfileLookup.Observe(d.Seconds())
}

func (m *Metrics) RouteDecision(view string) {
	if m == nil {
		return
	}
	m.RouteDecisions.WithLabelValues(view).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}
