package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Establo.
type Metrics struct {
	// --- Core processing ---
	OpsApplied    *prometheus.CounterVec
	OpsRejected   *prometheus.CounterVec
	OpDuration    *prometheus.HistogramVec
	OutcomesTotal *prometheus.CounterVec
	CoreSequence  prometheus.Gauge

	// --- Ledger state ---
	TotalSupply       prometheus.Gauge
	ReserveLiquid     prometheus.Gauge
	CollateralValue   prometheus.Gauge
	FeeContributions  prometheus.Gauge
	SupplyFullyBacked prometheus.Gauge

	// --- Marketplace ---
	AssetsByStatus    *prometheus.GaugeVec
	AssetCount        prometheus.Gauge
	LiquidationsTotal prometheus.Counter
	RiskWarningsTotal prometheus.Counter

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter

	// --- Persistence ---
	PersistOutcomesWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot & replay ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge
	ReplayRequests   prometheus.Counter
	ReplayDuration   prometheus.Gauge

	// --- Projections ---
	ProjectionUpdates  *prometheus.CounterVec
	ProjectionLag      prometheus.Gauge
	ProjectionErrors   prometheus.Counter

	// --- Publishing ---
	OutcomesPublished *prometheus.CounterVec
	PublishErrors     prometheus.Counter

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
			Name: "establo_core_ops_applied_total",
			Help: "Operations successfully applied by core",
		}, []string{"op_type"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "establo_core_ops_rejected_total",
			Help: "Operations rejected (dedup, validation, arithmetic)",
		}, []string{"op_type", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "establo_core_op_apply_duration_seconds",
			Help:    "Time to apply a single operation in core",
			Buckets: latencyBuckets,
		}, []string{"op_type"}),

		OutcomesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "establo_core_outcomes_total",
			Help: "Outcome records emitted",
		}, []string{"outcome_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_core_sequence",
			Help: "Current global sequence number",
		}),

		TotalSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_ledger_total_supply",
			Help: "Issued stable token supply (base units)",
		}),

		ReserveLiquid: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_ledger_reserve_liquid",
			Help: "Admin-reported liquid reserve",
		}),

		CollateralValue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_ledger_collateral_value",
			Help: "Effective collateral value (base plus asset contributions)",
		}),

		FeeContributions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_ledger_fee_contributions_total",
			Help: "Cumulative transfer fees credited to the fee recipient",
		}),

		SupplyFullyBacked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_ledger_supply_fully_backed",
			Help: "1 if reserves cover the 70/30 split for the entire supply",
		}),

		AssetsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "establo_assets_by_status",
			Help: "Collateral assets per lifecycle status",
		}, []string{"status"}),

		AssetCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_asset_count",
			Help: "Monotonic listing counter",
		}),

		LiquidationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_liquidations_total",
			Help: "Assets liquidated",
		}),

		RiskWarningsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_risk_warnings_total",
			Help: "Risk warnings emitted, including re-confirmations",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "establo_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "establo_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "establo_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_projection_drops_total",
			Help: "Outcomes dropped due to full projection channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "establo_idempotency_duplicates_total",
			Help: "Duplicates caught per tier (lru/postgres)",
		}, []string{"op_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		PersistOutcomesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_persist_outcomes_written_total",
			Help: "Outcome records written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "establo_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "establo_persist_batch_size",
			Help:    "Outcomes per batch write",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "establo_persist_errors_total",
			Help: "Persistence errors by type",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_persist_retry_total",
			Help: "Persistence batch retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_persist_last_sequence",
			Help: "Highest persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "establo_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_replay_requests_total",
			Help: "Requests replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_replay_duration_seconds",
			Help: "Total startup replay time",
		}),

		ProjectionUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "establo_projection_updates_total",
			Help: "Projection rows updated by outcome type",
		}, []string{"outcome_type"}),

		ProjectionLag: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "establo_projection_lag_sequences",
			Help: "Core sequence minus projection watermark",
		}),

		ProjectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_projection_errors_total",
			Help: "Projection update errors",
		}),

		OutcomesPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "establo_outcomes_published_total",
			Help: "Outcome records published to NATS",
		}, []string{"outcome_type"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "establo_publish_errors_total",
			Help: "NATS publish errors",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "establo_query_requests_total",
			Help: "Query requests by endpoint and status",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "establo_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
