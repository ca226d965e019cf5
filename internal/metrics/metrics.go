// Package metrics exposes Prometheus instrumentation for tg-twitter-sync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API governance metrics

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tgx_api_call_duration_seconds",
			Help:    "Duration of governed X API calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgx_api_retries_total",
			Help: "Total retries performed by the rate governor",
		},
		[]string{"op"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgx_api_rate_limit_hits_total",
			Help: "Total rate-limited responses from the X API",
		},
		[]string{"op"},
	)

	// Business metrics

	PostsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgx_posts_sent_total",
			Help: "Total posts created on X",
		},
	)

	PostsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgx_posts_failed_total",
			Help: "Total post attempts that failed",
		},
	)

	DMEventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgx_dm_events_processed_total",
			Help: "Total inbound DM events delivered to Telegram",
		},
	)

	DMFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgx_dm_fetch_errors_total",
			Help: "Total failed inbox poll cycles",
		},
	)

	MonitorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgx_dm_monitor_running",
			Help: "Whether the DM monitor loop is running (1) or not (0)",
		},
	)

	DedupRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgx_dedup_records",
			Help: "Number of processed DM ids currently tracked",
		},
	)
)
