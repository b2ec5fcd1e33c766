// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Ledger state metrics
	Price          prometheus.Gauge
	Supply         prometheus.Gauge
	Demand         prometheus.Gauge
	TotalLiquidity prometheus.Gauge
	InsuranceFunds prometheus.Gauge

	// Journal metrics
	JournalWrites   prometheus.Counter
	JournalFailures prometheus.Counter

	// Collaborator metrics
	OracleUpdates     *prometheus.CounterVec
	OracleLastPublish *prometheus.GaugeVec
	RPCCallLatency    *prometheus.HistogramVec
	TransfersReported *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Audit metrics
	AuditRuns       *prometheus.CounterVec
	AuditViolations prometheus.Gauge

	// Health metrics
	LastSuccessfulOperation prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pricing_ledger"
	}

	return &Metrics{
		// Operation metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and result code",
		}, []string{"operation", "result"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		// Ledger state metrics
		Price: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "price",
			Help:      "Current asset price",
		}),
		Supply: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "supply",
			Help:      "Remaining asset supply",
		}),
		Demand: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "demand",
			Help:      "Cumulative asset demand",
		}),
		TotalLiquidity: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "total_liquidity",
			Help:      "Aggregate liquidity across all positions",
		}),
		InsuranceFunds: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "insurance_funds",
			Help:      "Insurance pool balance",
		}),

		// Journal metrics
		JournalWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "writes_total",
			Help:      "Total number of ledger events journaled",
		}),
		JournalFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "failures_total",
			Help:      "Total number of ledger events that could not be journaled",
		}),

		// Collaborator metrics
		OracleUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "updates_total",
			Help:      "Total number of oracle price messages by feed and status",
		}, []string{"feed", "status"}),
		OracleLastPublish: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "last_publish_timestamp",
			Help:      "Publish time of the latest accepted oracle price",
		}, []string{"feed"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		TransfersReported: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "transfers_total",
			Help:      "Total number of transfers reported for settlement by reason",
		}, []string{"reason"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Audit metrics
		AuditRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Total number of state audits by result (pass, fail, error)",
		}, []string{"result"}),
		AuditViolations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "violations",
			Help:      "Failed checks in the latest state audit",
		}),

		// Health metrics
		LastSuccessfulOperation: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_operation_timestamp",
			Help:      "Unix timestamp of last committed ledger operation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records the outcome and latency of a ledger operation.
func RecordOperation(operation, result string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, result).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordCommit marks a committed operation.
func RecordCommit(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulOperation.Set(float64(unixSeconds))
}

// UpdatePriceState publishes the pricing cell.
func UpdatePriceState(price, supply, demand, totalLiquidity uint64) {
	DefaultMetrics.Price.Set(float64(price))
	DefaultMetrics.Supply.Set(float64(supply))
	DefaultMetrics.Demand.Set(float64(demand))
	DefaultMetrics.TotalLiquidity.Set(float64(totalLiquidity))
}

// UpdateInsuranceFunds publishes the insurance pool balance.
func UpdateInsuranceFunds(funds uint64) {
	DefaultMetrics.InsuranceFunds.Set(float64(funds))
}

// RecordJournalWrite records a journal append outcome.
func RecordJournalWrite(err error) {
	if err != nil {
		DefaultMetrics.JournalFailures.Inc()
		return
	}
	DefaultMetrics.JournalWrites.Inc()
}

// RecordOracleUpdate records an oracle message by status ("accepted", "bad_signature", ...).
func RecordOracleUpdate(feed, status string, publishTime int64) {
	DefaultMetrics.OracleUpdates.WithLabelValues(feed, status).Inc()
	if status == "accepted" {
		DefaultMetrics.OracleLastPublish.WithLabelValues(feed).Set(float64(publishTime))
	}
}

// RecordRPCLatency records the latency of an RPC call.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordTransfer records a transfer reported for settlement.
func RecordTransfer(reason string) {
	DefaultMetrics.TransfersReported.WithLabelValues(reason).Inc()
}

// RecordDBQuery records a database query.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordAuditRun records a state audit outcome and its failed check count.
func RecordAuditRun(result string, violations int) {
	DefaultMetrics.AuditRuns.WithLabelValues(result).Inc()
	if result != "error" {
		DefaultMetrics.AuditViolations.Set(float64(violations))
	}
}
