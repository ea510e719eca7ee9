package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSubmit_SuccessIncrementsSubmittedAndInFlight(t *testing.T) {
	before := testutil.ToFloat64(jobsSubmittedTotal.WithLabelValues("slurm"))
	beforeInFlight := testutil.ToFloat64(jobsInFlight.WithLabelValues("slurm"))

	RecordSubmit("slurm", true)

	assert.Equal(t, before+1, testutil.ToFloat64(jobsSubmittedTotal.WithLabelValues("slurm")))
	assert.Equal(t, beforeInFlight+1, testutil.ToFloat64(jobsInFlight.WithLabelValues("slurm")))
}

func TestRecordSubmit_FailureIncrementsFailedOnly(t *testing.T) {
	before := testutil.ToFloat64(jobsFailedTotal.WithLabelValues("pbs"))
	RecordSubmit("pbs", false)
	assert.Equal(t, before+1, testutil.ToFloat64(jobsFailedTotal.WithLabelValues("pbs")))
}

func TestRecordStatusPoll_TerminalDecrementsInFlight(t *testing.T) {
	RecordSubmit("slurm", true)
	before := testutil.ToFloat64(jobsInFlight.WithLabelValues("slurm"))

	RecordStatusPoll("slurm", "COMPLETED", true)

	assert.Equal(t, before-1, testutil.ToFloat64(jobsInFlight.WithLabelValues("slurm")))
}

func TestRecordStatusPoll_NonTerminalLeavesInFlightUnchanged(t *testing.T) {
	RecordSubmit("slurm", true)
	before := testutil.ToFloat64(jobsInFlight.WithLabelValues("slurm"))

	RecordStatusPoll("slurm", "RUNNING", false)

	assert.Equal(t, before, testutil.ToFloat64(jobsInFlight.WithLabelValues("slurm")))
}

func TestRecordCancel_IncrementsCancelledAndDecrementsInFlight(t *testing.T) {
	RecordSubmit("pbs", true)
	beforeCancelled := testutil.ToFloat64(jobsCancelledTotal.WithLabelValues("pbs"))
	beforeInFlight := testutil.ToFloat64(jobsInFlight.WithLabelValues("pbs"))

	RecordCancel("pbs")

	assert.Equal(t, beforeCancelled+1, testutil.ToFloat64(jobsCancelledTotal.WithLabelValues("pbs")))
	assert.Equal(t, beforeInFlight-1, testutil.ToFloat64(jobsInFlight.WithLabelValues("pbs")))
}

func TestRecordStagerCacheResult_LabelsHitAndMiss(t *testing.T) {
	beforeHit := testutil.ToFloat64(stagerCacheHitsTotal.WithLabelValues("hit"))
	beforeMiss := testutil.ToFloat64(stagerCacheHitsTotal.WithLabelValues("miss"))

	RecordStagerCacheResult(true)
	RecordStagerCacheResult(false)

	assert.Equal(t, beforeHit+1, testutil.ToFloat64(stagerCacheHitsTotal.WithLabelValues("hit")))
	assert.Equal(t, beforeMiss+1, testutil.ToFloat64(stagerCacheHitsTotal.WithLabelValues("miss")))
}
