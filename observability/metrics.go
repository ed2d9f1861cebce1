package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AuctionMetrics records bid lifecycle activity and the escrow ledger level.
type AuctionMetrics struct {
	bidOps        *prometheus.CounterVec
	escrowMoves   *prometheus.CounterVec
	escrowBalance prometheus.Gauge
	rpcRequests   *prometheus.CounterVec
	rpcLatency    *prometheus.HistogramVec
}

var (
	auctionMetricsOnce sync.Once
	auctionRegistry    *AuctionMetrics
)

// Metrics returns the lazily-initialised metrics registry shared by the
// auction engine, escrow vault and RPC server.
func Metrics() *AuctionMetrics {
	auctionMetricsOnce.Do(func() {
		auctionRegistry = &AuctionMetrics{
			bidOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeauction",
				Subsystem: "auction",
				Name:      "bid_operations_total",
				Help:      "Total bid lifecycle operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			escrowMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeauction",
				Subsystem: "escrow",
				Name:      "movements_total",
				Help:      "Total escrow fund movements segmented by direction.",
			}, []string{"direction"}),
			escrowBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakeauction",
				Subsystem: "escrow",
				Name:      "held_balance_wei",
				Help:      "Collateral currently held by the escrow vault, in wei.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeauction",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakeauction",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			auctionRegistry.bidOps,
			auctionRegistry.escrowMoves,
			auctionRegistry.escrowBalance,
			auctionRegistry.rpcRequests,
			auctionRegistry.rpcLatency,
		)
	})
	return auctionRegistry
}

// ObserveBidOp records one bid lifecycle operation.
func (m *AuctionMetrics) ObserveBidOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.bidOps.WithLabelValues(operation, outcome).Inc()
}

// ObserveEscrowMove records one fund movement through the vault.
func (m *AuctionMetrics) ObserveEscrowMove(direction string) {
	if m == nil {
		return
	}
	m.escrowMoves.WithLabelValues(direction).Inc()
}

// SetEscrowBalance publishes the current held balance. Balances beyond the
// float64 range saturate rather than wrap.
func (m *AuctionMetrics) SetEscrowBalance(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.escrowBalance.Set(value)
}

// ObserveRPC records one JSON-RPC request with its latency in seconds.
func (m *AuctionMetrics) ObserveRPC(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(seconds)
}
