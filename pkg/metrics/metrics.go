// Package metrics defines the prometheus collectors owned by the
// engine: per-discipline commit/abort/restart counters and a commit
// latency histogram. Collectors are registered against a private
// registry rather than the global default, so multiple engines (e.g.
// one per CC mode in a benchmark run) can coexist without collisions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the collectors a TxnProcessor reports through.
type Metrics struct {
	Registry *prometheus.Registry

	Committed        *prometheus.CounterVec
	Aborted          *prometheus.CounterVec
	Restarted        *prometheus.CounterVec
	CommitLatencySec *prometheus.HistogramVec
}

// New builds a Metrics with all collectors registered against a fresh
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccengine_txn_committed_total",
			Help: "Transactions that reached the COMMITTED terminal state, by CC mode.",
		}, []string{"mode"}),
		Aborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccengine_txn_aborted_total",
			Help: "Transactions that reached the ABORTED terminal state, by CC mode.",
		}, []string{"mode"}),
		Restarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccengine_txn_restarted_total",
			Help: "Transaction restarts due to lock denial or validation failure, by CC mode.",
		}, []string{"mode"}),
		CommitLatencySec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccengine_commit_latency_seconds",
			Help:    "Wall-clock time from admission to COMMITTED, by CC mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
	}

	reg.MustRegister(m.Committed, m.Aborted, m.Restarted, m.CommitLatencySec)
	return m
}
