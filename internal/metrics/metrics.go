// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spinAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_spin_attempts_total",
		Help: "Spin attempts by spin type and outcome",
	}, []string{"type", "outcome"}) // outcome=success|<failure reason>

	correctionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_prerequisite_corrections_total",
		Help: "Prerequisite corrective actions by failure reason and result",
	}, []string{"reason", "result"}) // result=corrected|skipped

	sessionConstructTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_session_construct_total",
		Help: "Session constructions by outcome",
	}, []string{"outcome"}) // outcome=ok|unauthenticated|store_contention|credential_missing

	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sa_live_sessions",
		Help: "Number of live account sessions held by the pool",
	})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_cache_lookups_total",
		Help: "Response cache lookups by data class and result",
	}, []string{"class", "result"}) // result=hit|miss

	remoteRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_remote_retries_total",
		Help: "Remote calls retried after a transient network failure",
	}, []string{"operation"})

	governorWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sa_governor_wait_seconds",
		Help:    "Time spent waiting for per-account admission",
		Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	liquidatedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_liquidated_items_total",
		Help: "Inventory items activated or exchanged",
	}, []string{"action"}) // action=activate|exchange|claim_fallback

	batchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_batch_results_total",
		Help: "Per-account batch results by workflow and outcome",
	}, []string{"workflow", "outcome"}) // outcome=success|failure

	batchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sa_batch_duration_seconds",
		Help:    "Wall time of a batch run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"workflow"})
)

func RecordSpinAttempt(spinType, outcome string) {
	spinAttemptsTotal.WithLabelValues(spinType, outcome).Inc()
}

func RecordCorrection(reason string, corrected bool) {
	result := "skipped"
	if corrected {
		result = "corrected"
	}
	correctionsTotal.WithLabelValues(reason, result).Inc()
}

func RecordSessionConstruct(outcome string) {
	sessionConstructTotal.WithLabelValues(outcome).Inc()
}

func SetLiveSessions(n int) {
	liveSessions.Set(float64(n))
}

func RecordCacheLookup(class string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(class, result).Inc()
}

func RecordRemoteRetry(operation string) {
	remoteRetriesTotal.WithLabelValues(operation).Inc()
}

func ObserveGovernorWait(d time.Duration) {
	governorWaitSeconds.Observe(d.Seconds())
}

func RecordLiquidated(action string, n int) {
	if n <= 0 {
		return
	}
	liquidatedItemsTotal.WithLabelValues(action).Add(float64(n))
}

func RecordBatchResult(workflow string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	batchResultsTotal.WithLabelValues(workflow, outcome).Inc()
}

func ObserveBatchDuration(workflow string, d time.Duration) {
	batchDurationSeconds.WithLabelValues(workflow).Observe(d.Seconds())
}

var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_job_runs_total",
		Help: "Scheduled job executions by job name and outcome",
	}, []string{"job", "outcome"}) // outcome=ok|error

	sessionReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sa_session_reloads_total",
		Help: "Credential directory reloads triggered by file changes",
	})
)

func RecordJobRun(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	jobRunsTotal.WithLabelValues(job, outcome).Inc()
}

func RecordSessionReload() {
	sessionReloadsTotal.Inc()
}
