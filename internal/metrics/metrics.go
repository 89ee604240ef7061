package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Router metrics
	RouterSwaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ammkit_router_swaps_total",
			Help: "Total number of router swaps",
		},
		[]string{"status"},
	)

	LiquidityOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ammkit_liquidity_operations_total",
			Help: "Total number of liquidity adds and removals",
		},
		[]string{"op", "status"},
	)

	ZapOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ammkit_zap_operations_total",
			Help: "Total number of single-sided deposits",
		},
		[]string{"mode", "status"},
	)

	FlashSwaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ammkit_flash_swaps_total",
			Help: "Total number of flash swaps",
		},
		[]string{"status"},
	)

	// Oracle metrics
	OracleUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ammkit_oracle_updates_total",
			Help: "Total number of TWAP oracle update attempts",
		},
		[]string{"status"},
	)

	OracleUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ammkit_oracle_update_duration_seconds",
		Help:    "Duration of oracle updates including pair reads",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	OracleLastObservation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ammkit_oracle_last_observation_timestamp",
		Help: "Block timestamp of the last stored oracle observation",
	})

	// Indexer metrics
	IndexedLogs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ammkit_indexer_logs_total",
		Help: "Total number of logs written by the indexer",
	})

	IndexerLastBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ammkit_indexer_last_block",
		Help: "Last block processed by the indexer",
	})
)

// Status returns the label value for an operation result.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
