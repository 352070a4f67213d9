// Package metrics exposes relay counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rzr"

type Registry struct {
	reg *prometheus.Registry

	auth          *prometheus.CounterVec
	forward       *prometheus.CounterVec
	ready         *prometheus.GaugeVec
	workerOps     *prometheus.CounterVec
	registrations *prometheus.CounterVec
	ledgerHeight  prometheus.Gauge
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by variant and outcome.",
		}, []string{"variant", "result"}),
		forward: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwarded_frames_total",
			Help:      "Frames routed between sessions by variant and outcome.",
		}, []string{"variant", "result"}),
		ready: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_sessions",
			Help:      "Authenticated sessions per variant.",
		}, []string{"variant"}),
		workerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crypto_worker_requests_total",
			Help:      "Crypto worker requests by operation and outcome.",
		}, []string{"op", "result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Identity registration requests by outcome.",
		}, []string{"result"}),
		ledgerHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_block",
			Help:      "Block number of the latest folded ledger record.",
		}),
	}
	r.reg.MustRegister(
		r.auth, r.forward, r.ready, r.workerOps, r.registrations, r.ledgerHeight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func (r *Registry) ObserveAuth(variant string, ok bool) {
	r.auth.WithLabelValues(variant, outcome(ok)).Inc()
}

func (r *Registry) ObserveForward(variant string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "unavailable"
	}
	r.forward.WithLabelValues(variant, result).Inc()
}

func (r *Registry) SetReady(variant string, n int) {
	r.ready.WithLabelValues(variant).Set(float64(n))
}

// ObserveWorker matches the crypto worker's Observe hook.
func (r *Registry) ObserveWorker(op string, ok bool) {
	r.workerOps.WithLabelValues(op, outcome(ok)).Inc()
}

// ObserveRegistration records one registration result such as "mined",
// "rate_limited", "bad_request" or "failed".
func (r *Registry) ObserveRegistration(result string) {
	r.registrations.WithLabelValues(result).Inc()
}

func (r *Registry) SetLedgerBlock(n uint64) {
	r.ledgerHeight.Set(float64(n))
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

