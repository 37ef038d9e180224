// Package metrics exposes Prometheus instrumentation for the supervisor's
// tick loop: how long a tick takes, how many opportunities are found versus
// executed, and how much gas trading actually costs.
package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mmagent_tick_duration_seconds",
			Help:    "Duration of one evaluation tick, from stream message to trade submission.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pair"},
	)

	opportunitiesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mmagent_opportunities_found_total",
			Help: "Candidates surfaced by the opportunity evaluator, before optimization.",
		},
		[]string{"pair", "side"},
	)

	tradesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mmagent_trades_executed_total",
			Help: "Trades submitted by the execution adapter, partitioned by outcome.",
		},
		[]string{"pair", "outcome"},
	)

	gasSpentWei = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mmagent_gas_spent_wei_total",
			Help: "Cumulative gas cost of submitted transactions, in wei.",
		},
		[]string{"pair"},
	)

	circuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mmagent_circuit_breaker_trips_total",
			Help: "Times the supervisor's circuit breaker halted or restarted the tick loop.",
		},
		[]string{"pair", "reason"},
	)
)

// ObserveTick records how long a tick took for pair.
func ObserveTick(pair string, seconds float64) {
	tickDuration.WithLabelValues(pair).Observe(seconds)
}

// RecordOpportunity increments the found-candidates counter for one side.
func RecordOpportunity(pair, side string, n int) {
	if n <= 0 {
		return
	}
	opportunitiesFound.WithLabelValues(pair, side).Add(float64(n))
}

// RecordTrade tags a submitted trade with its outcome ("success", "reverted",
// "timeout", "transport_error", "bundle_not_included").
func RecordTrade(pair, outcome string) {
	tradesExecuted.WithLabelValues(pair, outcome).Inc()
}

// RecordGasSpent adds cost (wei) to the cumulative gas counter for pair.
// A nil or non-positive cost is ignored rather than logged as zero.
func RecordGasSpent(pair string, cost *big.Int) {
	if cost == nil || cost.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(cost).Float64()
	gasSpentWei.WithLabelValues(pair).Add(f)
}

// RecordCircuitBreakerTrip records a halt/restart decision by the
// supervisor's circuit breaker.
func RecordCircuitBreakerTrip(pair, reason string) {
	circuitBreakerTrips.WithLabelValues(pair, reason).Inc()
}
