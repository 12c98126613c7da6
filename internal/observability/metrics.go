package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SynthLedger.
type Metrics struct {
	// --- Engine ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	Sequence    prometheus.Gauge

	// --- Domain ---
	PoolLiquidity        *prometheus.GaugeVec
	TradesSettled        *prometheus.CounterVec
	LiquidationsExecuted *prometheus.CounterVec
	InsuranceSweeps      prometheus.Counter
	OraclePriceUpdates   *prometheus.CounterVec

	// --- Persistence ---
	PersistRecordsWritten prometheus.Counter
	PersistBatchSize      prometheus.Histogram
	PersistErrors         *prometheus.CounterVec
	PersistRetry          prometheus.Counter
	PersistLastSequence   prometheus.Gauge

	// --- Ingestion ---
	PricesIngested *prometheus.CounterVec
	PricesRejected *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_rejected_total",
			Help: "Operations rejected (validation, balance, safety gate)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_engine_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_engine_sequence",
			Help: "Current operation sequence number",
		}),

		PoolLiquidity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_pool_liquidity",
			Help: "Free collateral per pool",
		}, []string{"namespace", "pool"}),

		TradesSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_trades_settled_total",
			Help: "Buys and sells settled",
		}, []string{"namespace", "side"}),

		LiquidationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_liquidations_executed_total",
			Help: "Liquidations executed",
		}, []string{"namespace"}),

		InsuranceSweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_insurance_sweeps_total",
			Help: "Liquidation surpluses swept to the insurance account",
		}),

		OraclePriceUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_oracle_price_updates_total",
			Help: "Oracle price sets applied",
		}, []string{"asset"}),

		PersistRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_records_written_total",
			Help: "Operation records written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_size",
			Help:    "Records per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		PricesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_prices_ingested_total",
			Help: "Price updates accepted from the feed",
		}, []string{"asset"}),

		PricesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_prices_rejected_total",
			Help: "Price updates rejected (parse, validation)",
		}, []string{"reason"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
