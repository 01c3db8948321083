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
	// Qualification metrics
	PairsSeen      prometheus.Counter
	PairsQualified prometheus.Counter
	HoldersChecked prometheus.Counter

	// Trade metrics
	BuysExecuted        prometheus.Counter
	FirstSellsExecuted  prometheus.Counter
	SecondSellsExecuted prometheus.Counter
	TradeErrors         *prometheus.CounterVec

	// Monitor metrics
	SellTriggersDetected prometheus.Counter
	LogEventsProcessed   prometheus.Counter
	WSReconnects         prometheus.Counter
	WatchedAssets        prometheus.Gauge

	// Latency metrics
	QuoteLatency   prometheus.Histogram
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sniper"
	}

	return &Metrics{
		PairsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qualify",
			Name:      "pairs_seen_total",
			Help:      "Total number of new SOL pairs observed from the pool feed",
		}),
		PairsQualified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qualify",
			Name:      "pairs_qualified_total",
			Help:      "Total number of pairs that passed holder qualification",
		}),
		HoldersChecked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qualify",
			Name:      "holders_checked_total",
			Help:      "Total number of holder wallets checked for domain names",
		}),

		BuysExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "buys_executed_total",
			Help:      "Total number of buy swaps executed",
		}),
		FirstSellsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "first_sells_executed_total",
			Help:      "Total number of first (half position) sells executed",
		}),
		SecondSellsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "second_sells_executed_total",
			Help:      "Total number of second (remainder) sells executed",
		}),
		TradeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "errors_total",
			Help:      "Total number of trade errors by stage",
		}, []string{"stage"}),

		SellTriggersDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "sell_triggers_detected_total",
			Help:      "Total number of holder balance decreases detected",
		}),
		LogEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "log_events_processed_total",
			Help:      "Total number of log notifications processed",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),
		WatchedAssets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "watched_assets",
			Help:      "Current number of mints with an active log subscription",
		}),

		QuoteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "quote_latency_seconds",
			Help:      "Aggregator quote latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSellTrigger increments the sell triggers detected counter.
func RecordSellTrigger() {
	DefaultMetrics.SellTriggersDetected.Inc()
}

// RecordReconnect increments the WebSocket reconnect counter.
func RecordReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// UpdateWatchedAssets updates the watched assets gauge.
func UpdateWatchedAssets(n int) {
	DefaultMetrics.WatchedAssets.Set(float64(n))
}

// RecordTradeError records a trade error for the given stage.
func RecordTradeError(stage string) {
	DefaultMetrics.TradeErrors.WithLabelValues(stage).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
