package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TickerConnectionUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scanner_ticker_connection_up",
			Help: "1 when the full-market ticker connection of a segment is open",
		},
		[]string{"segment"},
	)

	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_reconnects_total",
			Help: "Reconnect attempts scheduled after a stream closed",
		},
		[]string{"kind", "segment"},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_stream_messages_total",
			Help: "Stream messages processed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CandleGroups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scanner_candle_groups",
			Help: "Candle connection groups by state",
		},
		[]string{"state"},
	)

	Resubscriptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_resubscriptions_total",
			Help: "Times the active subscription set was replaced",
		},
	)

	FallbackRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_fallback_requests_total",
			Help: "Historical candle requests issued by the fallback path",
		},
		[]string{"timeframe", "outcome"},
	)

	FallbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanner_fallback_request_duration_seconds",
			Help:    "Historical candle request latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)
