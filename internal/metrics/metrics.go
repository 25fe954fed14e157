// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"   // progress regression or update after a terminal state
	OutcomeUnknown = "unknown" // recording id not in the store
	OutcomeDecode  = "decode_error"
	OutcomeRetry   = "retry" // durable write failed, message nacked
	OutcomeDead    = "dead_lettered"
)

var (
	// Result ingestion
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_ingest_messages_total",
			Help: "Result messages handled by the ingestor, by response kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	IngestApplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonograph_ingest_apply_duration_seconds",
			Help:    "Duration of the DuckDB transaction applying one result message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Submission and publishing
	SubmitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_submit_total",
			Help: "Analysis job submissions by outcome",
		},
		[]string{"outcome"},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_publish_total",
			Help: "Broker publishes by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	DeadLetterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_deadletter_total",
			Help: "Messages written to the dead-letter store, by reason",
		},
		[]string{"reason"},
	)

	// Worker pool
	WorkerPoolLiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonograph_workerpool_live_workers",
			Help: "Worker processes currently registered with the pool",
		},
	)

	WorkerPoolCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_workerpool_commands_total",
			Help: "Commands dispatched to workers, by outcome",
		},
		[]string{"outcome"}, // "success", "error", "timeout", "exited", "cancelled"
	)

	WorkerPoolCommandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sonograph_workerpool_command_duration_seconds",
			Help:    "Time from dispatch to reply for worker commands",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	WorkerPoolTerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_workerpool_terminations_total",
			Help: "Worker terminations by the signal that ended the process",
		},
		[]string{"method"}, // "exited", "sigterm", "sigkill"
	)

	// Analysis bridge
	AnalysisJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_analysis_jobs_total",
			Help: "Analysis requests handled by the bridge, by outcome",
		},
		[]string{"outcome"}, // "transcribed", "failed", "requeued"
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sonograph_analysis_duration_seconds",
			Help:    "Time from request receipt to the final result publish",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonograph_api_requests_total",
			Help: "HTTP API requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonograph_api_request_duration_seconds",
			Help:    "HTTP API request latency by method and route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonograph_api_active_requests",
			Help: "HTTP API requests currently being served",
		},
	)

	ProgressStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonograph_progress_streams",
			Help: "Open WebSocket progress streams",
		},
	)
)

// RecordIngest records the outcome of one result message.
func RecordIngest(kind, outcome string) {
	IngestMessagesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordIngestApply records the duration of an applied transaction.
func RecordIngestApply(kind string, duration time.Duration) {
	IngestApplyDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSubmit records a job submission.
func RecordSubmit(err error) {
	SubmitTotal.WithLabelValues(outcomeOf(err)).Inc()
}

// RecordPublish records a broker publish.
func RecordPublish(topic string, err error) {
	PublishTotal.WithLabelValues(topic, outcomeOf(err)).Inc()
}

// RecordDeadLetter records a dead-lettered message.
func RecordDeadLetter(reason string) {
	DeadLetterTotal.WithLabelValues(reason).Inc()
}

// SetLiveWorkers sets the live worker gauge.
func SetLiveWorkers(n int) {
	WorkerPoolLiveWorkers.Set(float64(n))
}

// RecordWorkerCommand records a completed worker command.
func RecordWorkerCommand(outcome string, duration time.Duration) {
	WorkerPoolCommandsTotal.WithLabelValues(outcome).Inc()
	WorkerPoolCommandDuration.Observe(duration.Seconds())
}

// RecordWorkerTermination records how a worker process ended.
func RecordWorkerTermination(method string) {
	WorkerPoolTerminationsTotal.WithLabelValues(method).Inc()
}

// RecordAnalysis records one handled analysis request.
func RecordAnalysis(outcome string, duration time.Duration) {
	AnalysisJobsTotal.WithLabelValues(outcome).Inc()
	if outcome != "requeued" {
		AnalysisDuration.Observe(duration.Seconds())
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// SetProgressStreams sets the open progress stream gauge.
func SetProgressStreams(n int) {
	ProgressStreams.Set(float64(n))
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
