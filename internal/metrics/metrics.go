// Package metrics exposes Prometheus counters for the write
// operations and gauges for snapshot sizes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation label values
const (
	OpSend    = "send"
	OpCreate  = "request_create"
	OpApprove = "approve"
	OpFulfill = "fulfill"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	OpsSubmitted *prometheus.CounterVec
	OpsConfirmed *prometheus.CounterVec
	OpsFailed    *prometheus.CounterVec
	SnapshotSize *prometheus.GaugeVec
}

// New creates and registers the service metrics
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krypt_operations_submitted_total",
			Help: "Write operations submitted to the chain",
		}, []string{"operation"}),
		OpsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krypt_operations_confirmed_total",
			Help: "Write operations confirmed on chain",
		}, []string{"operation"}),
		OpsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krypt_operations_failed_total",
			Help: "Write operations that failed before confirmation",
		}, []string{"operation"}),
		SnapshotSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "krypt_snapshot_entries",
			Help: "Entries in the last fetched history snapshot",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.OpsSubmitted, m.OpsConfirmed, m.OpsFailed, m.SnapshotSize)
	return m
}
