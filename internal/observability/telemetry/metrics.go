// Package telemetry exposes the fleet's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StationsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsim_stations_running",
		Help: "Number of stations in the Running state",
	})

	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsim_active_transactions",
		Help: "Number of transactions currently in progress",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsim_energy_delivered_wh_total",
		Help: "Total energy metered across all transactions in Wh",
	})

	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsim_ocpp_messages_total",
		Help: "Total OCPP messages by action and direction",
	}, []string{"action", "direction"})

	CallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsim_call_errors_total",
		Help: "Total OCPP CallError frames by direction",
	}, []string{"direction"})

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsim_session_reconnects_total",
		Help: "Total CSMS session reconnects across the fleet",
	})

	RequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetsim_request_latency_seconds",
		Help:    "Round-trip latency of outgoing OCPP requests",
		Buckets: prometheus.DefBuckets,
	})

	BroadcastLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetsim_ui_broadcast_latency_seconds",
		Help:    "Time to collect all responses of one UI broadcast",
		Buckets: prometheus.DefBuckets,
	})
)
