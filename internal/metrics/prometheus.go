// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the settlement and gamification engine.
var (
	// Counters.
	SettlementRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_runs_total",
			Help: "Total number of settlement batch runs",
		},
		[]string{"status"},
	)

	ChallengesSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenges_settled_total",
			Help: "Total number of challenges settled",
		},
		[]string{"type", "outcome"},
	)

	PrizePoolsDistributedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prize_pools_distributed_total",
			Help: "Total number of prize pools distributed",
		},
		[]string{"strategy"},
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge"},
	)

	StreakUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_updates_total",
			Help: "Total number of streak update events",
		},
		[]string{"result"},
	)

	FreezesUsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freezes_used_total",
			Help: "Total number of streak freezes consumed",
		},
	)

	FreezesPurchasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freezes_purchased_total",
			Help: "Total number of streak freezes purchased",
		},
		[]string{"method"},
	)

	// Gauges.
	SettlementLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "settlement_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last settlement batch run",
		},
	)

	// Histograms.
	SettlementBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settlement_batch_duration_seconds",
			Help:    "Duration of settlement batch runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)

// RecordSettlementRun records a settlement batch run with its status.
func RecordSettlementRun(status string) {
	SettlementRunsTotal.WithLabelValues(status).Inc()
	SettlementLastRunTimestamp.SetToCurrentTime()
}

// ObserveSettlementDuration records the duration of a settlement batch.
func ObserveSettlementDuration(d time.Duration) {
	SettlementBatchDuration.Observe(d.Seconds())
}

// RecordChallengeSettled records a settled challenge.
func RecordChallengeSettled(challengeType, outcome string) {
	ChallengesSettledTotal.WithLabelValues(challengeType, outcome).Inc()
}

// RecordPrizePoolDistributed records a distributed prize pool.
func RecordPrizePoolDistributed(strategy string) {
	PrizePoolsDistributedTotal.WithLabelValues(strategy).Inc()
}

// RecordBadgeAwarded records an awarded badge.
func RecordBadgeAwarded(badge string) {
	BadgesAwardedTotal.WithLabelValues(badge).Inc()
}

// RecordStreakUpdate records a streak update with its result
// (started, extended, unchanged, reset).
func RecordStreakUpdate(result string) {
	StreakUpdatesTotal.WithLabelValues(result).Inc()
}

// RecordFreezeUsed records a consumed streak freeze.
func RecordFreezeUsed() {
	FreezesUsedTotal.Inc()
}

// RecordFreezePurchased records a purchased streak freeze.
func RecordFreezePurchased(method string) {
	FreezesPurchasedTotal.WithLabelValues(method).Inc()
}
