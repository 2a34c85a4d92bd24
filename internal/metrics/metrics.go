// Package metrics declares the Prometheus instruments exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSConnections tracks currently open websocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_websocket_connections",
		Help: "Open websocket connections registered with the hub",
	})

	// OnlineUsers tracks identities currently considered online by the
	// presence registry (debounce included, so it lags closes by the
	// grace window).
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_online_users",
		Help: "Identities currently marked online",
	})

	// TransfersResolved counts transfer requests by terminal outcome:
	// settled, denied, rejected or withdrawn.
	TransfersResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_transfers_resolved_total",
		Help: "Transfer requests resolved, by outcome",
	}, []string{"outcome"})

	// EventsDelivered counts envelopes queued to websocket connections.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_events_delivered_total",
		Help: "Events queued for delivery, by event name",
	}, []string{"event"})
)
