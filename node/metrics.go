package node

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// CallsTotal is the total number of calls to peers, labelled by RPC type
	// and result.
	CallsTotal *prometheus.CounterVec

	// UpdatesInbound is the total number of slot updates received from
	// peers, labelled by result ("applied" or "stale").
	UpdatesInbound *prometheus.CounterVec

	// Relays is the total number of updates relayed to other peers.
	Relays prometheus.Counter

	// RepairPushes is the total number of snapshots pushed to peers found to
	// be behind.
	RepairPushes prometheus.Counter

	// Retries is the total number of redriven calls, labelled by result
	// ("redriven" or "dropped").
	Retries *prometheus.CounterVec

	// Evictions is the total number of peers removed from the cluster.
	Evictions prometheus.Counter

	// Peers is the number of known peers, labelled by liveness.
	Peers *prometheus.GaugeVec

	// Slots is the number of slots known by the node.
	Slots prometheus.Gauge

	// MemoryUsed is the total size of the keys and values in all slots.
	MemoryUsed prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "calls_total",
				Help:      "Total number of calls to peers",
			},
			[]string{"type", "result"},
		),
		UpdatesInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "updates_inbound_total",
				Help:      "Total number of slot updates received from peers",
			},
			[]string{"result"},
		),
		Relays: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "relays_total",
				Help:      "Total number of updates relayed to peers",
			},
		),
		RepairPushes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "repair_pushes_total",
				Help:      "Total number of snapshots pushed to peers that are behind",
			},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "retries_total",
				Help:      "Total number of failed calls retried",
			},
			[]string{"result"},
		),
		Evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "evictions_total",
				Help:      "Total number of peers removed from the cluster",
			},
		),
		Peers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "peers",
				Help:      "Number of known peers",
			},
			[]string{"alive"},
		),
		Slots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "slots",
				Help:      "Number of slots",
			},
		),
		MemoryUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gossip",
				Subsystem: "node",
				Name:      "memory_used_bytes",
				Help:      "Total size of the keys and values in all slots",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.CallsTotal,
		m.UpdatesInbound,
		m.Relays,
		m.RepairPushes,
		m.Retries,
		m.Evictions,
		m.Peers,
		m.Slots,
		m.MemoryUsed,
	)
}
