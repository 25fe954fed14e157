// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIngest(t *testing.T) {
	tests := []struct {
		kind    string
		outcome string
	}{
		{"ProgressMsg", OutcomeApplied},
		{"ProgressMsg", OutcomeStale},
		{"ChannelMetrics", OutcomeUnknown},
		{"", OutcomeDecode},
		{"RecordingMetrics", OutcomeRetry},
		{"RecordingMetrics", OutcomeDead},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.outcome, func(t *testing.T) {
			before := testutil.ToFloat64(IngestMessagesTotal.WithLabelValues(tt.kind, tt.outcome))
			RecordIngest(tt.kind, tt.outcome)
			after := testutil.ToFloat64(IngestMessagesTotal.WithLabelValues(tt.kind, tt.outcome))
			if after != before+1 {
				t.Errorf("expected counter to increase by 1, got %v -> %v", before, after)
			}
		})
	}
}

func TestRecordSubmitAndPublish(t *testing.T) {
	okBefore := testutil.ToFloat64(SubmitTotal.WithLabelValues("success"))
	errBefore := testutil.ToFloat64(SubmitTotal.WithLabelValues("error"))

	RecordSubmit(nil)
	RecordSubmit(errors.New("no responders"))

	if got := testutil.ToFloat64(SubmitTotal.WithLabelValues("success")); got != okBefore+1 {
		t.Errorf("success submissions = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(SubmitTotal.WithLabelValues("error")); got != errBefore+1 {
		t.Errorf("failed submissions = %v, want %v", got, errBefore+1)
	}

	before := testutil.ToFloat64(PublishTotal.WithLabelValues("analysis.results", "error"))
	RecordPublish("analysis.results", errors.New("circuit open"))
	if got := testutil.ToFloat64(PublishTotal.WithLabelValues("analysis.results", "error")); got != before+1 {
		t.Errorf("publish errors = %v, want %v", got, before+1)
	}
}

func TestWorkerPoolMetrics(t *testing.T) {
	SetLiveWorkers(3)
	if got := testutil.ToFloat64(WorkerPoolLiveWorkers); got != 3 {
		t.Errorf("live workers = %v, want 3", got)
	}
	SetLiveWorkers(0)
	if got := testutil.ToFloat64(WorkerPoolLiveWorkers); got != 0 {
		t.Errorf("live workers = %v, want 0", got)
	}

	before := testutil.ToFloat64(WorkerPoolTerminationsTotal.WithLabelValues("sigkill"))
	RecordWorkerTermination("sigkill")
	if got := testutil.ToFloat64(WorkerPoolTerminationsTotal.WithLabelValues("sigkill")); got != before+1 {
		t.Errorf("sigkill terminations = %v, want %v", got, before+1)
	}

	RecordWorkerCommand("success", 2*time.Second)
	if testutil.CollectAndCount(WorkerPoolCommandDuration) != 1 {
		t.Error("expected the command duration histogram to be collected")
	}
}

func TestRecordAnalysis(t *testing.T) {
	before := testutil.ToFloat64(AnalysisJobsTotal.WithLabelValues("requeued"))
	RecordAnalysis("requeued", time.Second)
	if got := testutil.ToFloat64(AnalysisJobsTotal.WithLabelValues("requeued")); got != before+1 {
		t.Errorf("requeued = %v, want %v", got, before+1)
	}

	RecordAnalysis("transcribed", 30*time.Second)
	if testutil.CollectAndCount(AnalysisDuration) != 1 {
		t.Error("expected the analysis duration histogram to be collected")
	}
}

// TestConcurrentMetricRecording checks the helpers are safe from many goroutines.
func TestConcurrentMetricRecording(t *testing.T) {
	const goroutines = 20
	before := testutil.ToFloat64(DeadLetterTotal.WithLabelValues("apply"))

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordDeadLetter("apply")
			RecordIngestApply("ChannelMetrics", time.Millisecond)
			RecordAPIRequest("GET", "/api/v1/recordings/{id}", "200", time.Millisecond)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(DeadLetterTotal.WithLabelValues("apply")); got != before+goroutines {
		t.Errorf("dead letters = %v, want %v", got, before+goroutines)
	}
}

func TestAPIGauges(t *testing.T) {
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != 1 {
		t.Errorf("active requests = %v, want 1", got)
	}
	TrackActiveRequest(false)

	SetProgressStreams(3)
	if got := testutil.ToFloat64(ProgressStreams); got != 3 {
		t.Errorf("progress streams = %v, want 3", got)
	}
	SetProgressStreams(0)
}
