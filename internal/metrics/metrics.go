// Package metrics exposes the Prometheus instrumentation for the scanner.
// Collectors are registered at load time via promauto and served through
// the HTTP /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MessagesReceived counts raw messages ingested per feed source.
var MessagesReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "feed",
		Name:      "messages_received_total",
		Help:      "Total messages received from each source",
	},
	[]string{"source"},
)

// ConnectionStatus reports feed connectivity (1=connected, 0=down).
var ConnectionStatus = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "arbscan",
		Subsystem: "feed",
		Name:      "connection_status",
		Help:      "Source connection status (1=connected, 0=disconnected)",
	},
	[]string{"source"},
)

// ReconnectsTotal counts reconnection attempts per source.
var ReconnectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Total reconnection attempts per source",
	},
	[]string{"source"},
)

// BroadcastQueueDepth is the current depth of the fan-out queue.
var BroadcastQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "arbscan",
		Subsystem: "feed",
		Name:      "broadcast_queue_depth",
		Help:      "Messages waiting in the broadcast queue",
	},
)

// MessagesBroadcastTotal counts messages fanned out to sinks.
var MessagesBroadcastTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "feed",
		Name:      "messages_broadcast_total",
		Help:      "Total messages delivered to sinks",
	},
)

// SinkDropsTotal counts sinks dropped for failing to keep up.
var SinkDropsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "feed",
		Name:      "sink_drops_total",
		Help:      "Sinks dropped after send failures",
	},
)

// ScanDuration times one full detection pass over the cache.
var ScanDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "arbscan",
		Subsystem: "engine",
		Name:      "scan_duration_seconds",
		Help:      "Duration of one detection scan",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	},
)

// OpportunitiesDetected counts emitted opportunities per strategy.
var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "engine",
		Name:      "opportunities_detected_total",
		Help:      "Arbitrage opportunities detected per strategy",
	},
	[]string{"strategy"},
)

// ActiveOpportunities is the number of live opportunities after a scan.
var ActiveOpportunities = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "arbscan",
		Subsystem: "engine",
		Name:      "active_opportunities",
		Help:      "Opportunities currently tracked as active",
	},
)

// SignalsGenerated counts trading signals per strength bucket.
var SignalsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "engine",
		Name:      "signals_generated_total",
		Help:      "Trading signals generated per strength",
	},
	[]string{"strength"},
)

// AlertsGenerated counts alerts per priority.
var AlertsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "engine",
		Name:      "alerts_generated_total",
		Help:      "Alerts generated per priority",
	},
	[]string{"priority"},
)

// StaleSnapshotsSkipped counts snapshots excluded from a scan for age.
var StaleSnapshotsSkipped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "engine",
		Name:      "stale_snapshots_skipped_total",
		Help:      "Price snapshots skipped because they exceeded the staleness window",
	},
)

// BreakerState encodes the risk gate state (0=closed, 1=half_open, 2=open).
var BreakerState = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "arbscan",
		Subsystem: "risk",
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
	},
)

// TradeValidations counts validate calls by outcome.
var TradeValidations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbscan",
		Subsystem: "risk",
		Name:      "trade_validations_total",
		Help:      "Trade validations by outcome",
	},
	[]string{"outcome"}, // approved, rejected
)

// SetConnectionStatus records a source's connectivity.
func SetConnectionStatus(source string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	ConnectionStatus.WithLabelValues(source).Set(v)
}

// SetBreakerState maps a state name onto the breaker gauge.
func SetBreakerState(state string) {
	switch state {
	case "closed":
		BreakerState.Set(0)
	case "half_open":
		BreakerState.Set(1)
	case "open":
		BreakerState.Set(2)
	}
}

// RecordValidation tallies one trade validation outcome.
func RecordValidation(approved bool) {
	if approved {
		TradeValidations.WithLabelValues("approved").Inc()
		return
	}
	TradeValidations.WithLabelValues("rejected").Inc()
}
