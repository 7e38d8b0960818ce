package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trade_engine"

//nolint:gochecknoglobals
var (
	SendOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sendall",
		Name:      "outcomes_total",
		Help:      "Per-opportunity send outcomes.",
	}, []string{"outcome", "reason"})

	SendRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sendall",
		Name:      "runs_total",
		Help:      "Finished send-all runs by final state.",
	}, []string{"state"})

	ChallengeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "confirmer",
		Name:      "challenges_total",
		Help:      "Step-up challenge handling results.",
	}, []string{"result"})

	ReconciledTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "finalized_total",
		Help:      "Pending trades moved to a terminal status.",
	}, []string{"status"})

	PendingTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "pending_trades",
		Help:      "Pending trades after the last reconciliation pass.",
	})

	PlatformRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "platform",
		Name:      "request_duration_seconds",
		Help:      "Platform RPC latency by operation and status class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})

	StoreFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "flushes_total",
		Help:      "Write-behind flushes by result.",
	}, []string{"result"})
)
