package schedulerjob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPBSJob(t *testing.T, dir string) *PBSJob {
	t.Helper()
	nodes := 3
	cpusPerNode := 100
	job, err := Create(Options{
		Scheduler:   pbsScheduler(),
		Commands:    "echo hi",
		AccountKey:  "myaccount",
		CPUs:        300,
		Nodes:       &nodes,
		CPUsPerNode: &cpusPerNode,
		JobName:     "fixture",
		ScriptPath:  filepath.Join(dir, "fixture.sh"),
		RunPath:     dir,
		Walltime:    "12:00:00",
		Logger:      clog.NoOpLogger{},
	})
	require.NoError(t, err)
	return job.(*PBSJob)
}

func TestPBSJob_Script(t *testing.T) {
	job := newPBSJob(t, t.TempDir())
	script := job.Script()

	assert.Contains(t, script, "#PBS -S /bin/bash\n")
	assert.Contains(t, script, "#PBS -l select=3:ncpus=100,walltime=12:00:00\n")
	assert.Contains(t, script, "#PBS -q standard\n")
	assert.Contains(t, script, "#PBS -l place=scatter\n")
	assert.Contains(t, script, "echo hi\n")
}

func TestPBSJob_SubmitParsesJobID(t *testing.T) {
	dir := t.TempDir()
	withFakePATH(t, map[string]string{
		"qsub": `echo "12345.server"`,
	})

	job := newPBSJob(t, dir)
	id, err := job.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345", id)
}

func TestPBSJob_SubmitRejectsUnexpectedOutput(t *testing.T) {
	dir := t.TempDir()
	withFakePATH(t, map[string]string{
		"qsub": `echo "not-a-job-id"`,
	})

	job := newPBSJob(t, dir)
	_, err := job.Submit(context.Background())
	assert.Error(t, err)
}

func TestPBSJob_StatusParsesRunningState(t *testing.T) {
	dir := t.TempDir()
	withFakePATH(t, map[string]string{
		"qsub":  `echo "555.server"`,
		"qstat": `echo '{"Jobs":{"555.server":{"job_state":"R"}}}'`,
	})

	job := newPBSJob(t, dir)
	_, err := job.Submit(context.Background())
	require.NoError(t, err)

	status, err := job.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)
}

func TestPBSJob_StatusFailedNonzeroExit(t *testing.T) {
	dir := t.TempDir()
	withFakePATH(t, map[string]string{
		"qsub":  `echo "556.server"`,
		"qstat": `echo '{"Jobs":{"556.server":{"job_state":"F","Exit_status":1}}}'`,
	})

	job := newPBSJob(t, dir)
	_, err := job.Submit(context.Background())
	require.NoError(t, err)

	status, err := job.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)
}

func TestPBSJob_StatusCompletedZeroExit(t *testing.T) {
	dir := t.TempDir()
	withFakePATH(t, map[string]string{
		"qsub":  `echo "557.server"`,
		"qstat": `echo '{"Jobs":{"557.server":{"job_state":"F","Exit_status":0}}}'`,
	})

	job := newPBSJob(t, dir)
	_, err := job.Submit(context.Background())
	require.NoError(t, err)

	status, err := job.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
}

func TestPBSJob_CancelSkipsWhenCompleted(t *testing.T) {
	dir := t.TempDir()
	withFakePATH(t, map[string]string{
		"qsub":  `echo "558.server"`,
		"qstat": `echo '{"Jobs":{"558.server":{"job_state":"C"}}}'`,
		"qdel":  `echo "should not run" >&2; exit 1`,
	})

	job := newPBSJob(t, dir)
	_, err := job.Submit(context.Background())
	require.NoError(t, err)

	err = job.Cancel(context.Background())
	assert.NoError(t, err)
}
