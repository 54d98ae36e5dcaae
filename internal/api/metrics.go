// Package api exposes a read-only view of the trading core: portfolio and
// performance snapshots over HTTP, a live event stream over WebSocket, and
// Prometheus metrics.
package api

import "github.com/prometheus/client_golang/prometheus"

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_signals_total",
			Help: "Signals detected, by signal type",
		},
		[]string{"signal_type"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_orders_total",
			Help: "Orders placed, by side",
		},
		[]string{"side"},
	)

	executionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_execution_failures_total",
			Help: "Signal executions that failed order placement, by alert type",
		},
		[]string{"alert_type"},
	)

	portfolioValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_portfolio_value",
			Help: "Total portfolio value by market",
		},
		[]string{"market"},
	)

	openPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turtle_open_positions",
			Help: "Open position count by market",
		},
		[]string{"market"},
	)

	wsClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turtle_ws_clients_connected",
			Help: "Currently connected WebSocket clients on the event stream",
		},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal, ordersTotal, executionFailuresTotal, portfolioValue, openPositions, wsClientsConnected)
}
