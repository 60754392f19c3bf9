package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks mint requests by outcome (minted, reverted, skipped, decode_error, failed)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_mint_requests_total",
			Help: "Total number of mint requests handled, by outcome",
		},
		[]string{"phase", "outcome"},
	)

	// ItemsDrawn tracks item identifiers drawn per table
	ItemsDrawn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_items_drawn_total",
			Help: "Total number of items drawn by the lottery",
		},
		[]string{"table", "item"},
	)

	// RPCCallsTotal tracks RPC attempts per policy
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_rpc_calls_total",
			Help: "Total number of RPC attempts",
		},
		[]string{"policy"},
	)

	// RPCErrorsTotal tracks failed RPC attempts per policy and classification
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_rpc_errors_total",
			Help: "Total number of failed RPC attempts",
		},
		[]string{"policy", "action"},
	)

	// RPCLatency tracks RPC attempt latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_rpc_latency_seconds",
			Help:    "RPC attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy"},
	)

	// ContractMarker is the lastProcessedNonce read at startup
	ContractMarker = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_contract_marker",
			Help: "lastProcessedNonce read from the contract at startup",
		},
	)

	// HighWater is the highest nonce handled by this process
	HighWater = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_high_water_nonce",
			Help: "Highest request nonce handled by this process",
		},
	)

	// NextBlock is the first block of the next poll
	NextBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_next_block",
			Help: "First block the next poll will read",
		},
	)

	// ChainHead tracks the latest block seen on the chain
	ChainHead = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_chain_head",
			Help: "Latest block height seen on the chain",
		},
	)

	// Phase is 1 for the current consumer phase and 0 for the others
	Phase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_phase",
			Help: "Current consumer phase",
		},
		[]string{"phase"},
	)

	// LeaseHeld is 1 while this instance holds the consumer lease
	LeaseHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_lease_held",
			Help: "Whether this instance holds the consumer lease",
		},
	)
)
