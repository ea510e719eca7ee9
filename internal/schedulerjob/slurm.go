package schedulerjob

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/metrics"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/runx"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/scheduler"
)

// SlurmJob is the SLURM concrete scheduler job.
type SlurmJob struct {
	base
}

// Script emits the SBATCH batch script: shebang, directives for job
// name/output/qos-or-partition/task-distribution/account/export/mail/
// time, then each other-directive, then the command body.
func (j *SlurmJob) Script() string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", j.jobName)
	fmt.Fprintf(&b, "#SBATCH --output=%s\n", j.outputFile)

	queue, _ := j.sched.GetQueue(j.queueName)
	switch queue.(type) {
	case *scheduler.SlurmQOS:
		fmt.Fprintf(&b, "#SBATCH --qos=%s\n", j.queueName)
	case *scheduler.SlurmPartition:
		fmt.Fprintf(&b, "#SBATCH --partition=%s\n", j.queueName)
	}

	if j.sched.RequiresTaskDistribution() {
		fmt.Fprintf(&b, "#SBATCH --nodes=%d\n", j.nodes)
		fmt.Fprintf(&b, "#SBATCH --ntasks-per-node=%d\n", j.cpusPerNode)
	} else {
		fmt.Fprintf(&b, "#SBATCH --ntasks=%d\n", j.cpus)
	}

	fmt.Fprintf(&b, "#SBATCH --account=%s\n", j.accountKey)
	b.WriteString("#SBATCH --export=ALL\n")
	b.WriteString("#SBATCH --mail-type=ALL\n")
	fmt.Fprintf(&b, "#SBATCH --time=%s\n", j.walltime)

	keys := make([]string, 0, len(j.sched.OtherDirectives()))
	for k := range j.sched.OtherDirectives() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "#SBATCH %s %s\n", k, j.sched.OtherDirectives()[k])
	}

	b.WriteString("\nset -e\n")
	b.WriteString(j.commands + "\n")
	return b.String()
}

var submittedJobRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// slurmEnvAllowlist is the set of SLURM_* variables preserved when
// submitting: every other SLURM_* variable inherited from a parent
// allocation is stripped so the new job does not inherit stale context.
var slurmEnvAllowlist = map[string]bool{"SLURM_CONF": true, "SLURM_VERSION": true}

func (j *SlurmJob) Submit(ctx context.Context) (string, error) {
	if err := os.WriteFile(j.scriptPath, []byte(j.Script()), 0o755); err != nil {
		return "", cstarerrors.Subprocess("schedulerjob.SlurmJob.Submit", "write script", err.Error(), err)
	}

	env := filteredSlurmEnv()

	cmd := "sbatch"
	if len(j.dependsOn) > 0 {
		cmd += fmt.Sprintf(" --dependency=afterok:%s --kill-on-invalid-dep=yes", strings.Join(j.dependsOn, ":"))
	}
	cmd += " " + j.scriptPath

	res, err := runx.Run(ctx, cmd, runx.Options{
		Cwd: j.runPath, Env: env, Logger: j.logger,
		MsgErr: "sbatch failed", RaiseOnError: true,
	})
	if err != nil {
		metrics.RecordSubmit("slurm", false)
		return "", err
	}

	m := submittedJobRe.FindStringSubmatch(res.Stdout)
	if m == nil {
		metrics.RecordSubmit("slurm", false)
		return "", cstarerrors.Subprocess("schedulerjob.SlurmJob.Submit", cmd, res.Stdout,
			fmt.Errorf("unexpected sbatch output"))
	}
	j.id = m[1]
	j.submitted = true
	metrics.RecordSubmit("slurm", true)
	return j.id, nil
}

func filteredSlurmEnv() []string {
	kept := make([]string, 0, len(os.Environ()))
	for _, kv := range os.Environ() {
		k := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(k, "SLURM_") && !slurmEnvAllowlist[k] {
			continue
		}
		kept = append(kept, kv)
	}
	return kept
}

func (j *SlurmJob) Status(ctx context.Context) (Status, error) {
	if !j.submitted {
		return StatusUnsubmitted, nil
	}
	res, err := runx.Run(ctx, fmt.Sprintf("sacct -j %s --format=State%%20 --noheader", j.id), runx.Options{
		Logger: j.logger, RaiseOnError: true,
	})
	if err != nil {
		return StatusUnknown, err
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		metrics.RecordStatusPoll("slurm", string(StatusUnknown), isTerminal(StatusUnknown))
		return StatusUnknown, nil
	}
	out := strings.ToUpper(fields[0])
	status := statusFromSlurmState(out)
	metrics.RecordStatusPoll("slurm", string(status), isTerminal(status))
	return status, nil
}

func statusFromSlurmState(out string) Status {
	switch {
	case strings.Contains(out, "PENDING"):
		return StatusPending
	case strings.Contains(out, "RUNNING"):
		return StatusRunning
	case strings.Contains(out, "COMPLETED"):
		return StatusCompleted
	case strings.Contains(out, "CANCELLED"):
		return StatusCancelled
	case strings.Contains(out, "FAILED"):
		return StatusFailed
	default:
		return StatusUnknown
	}
}

func isTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

func (j *SlurmJob) Cancel(ctx context.Context) error {
	status, err := j.Status(ctx)
	if err != nil {
		return err
	}
	if status != StatusRunning && status != StatusPending {
		j.logger.Info("cancel skipped: job is not running or pending", "job_id", j.id, "status", status)
		return nil
	}
	_, err = runx.Run(ctx, fmt.Sprintf("scancel %s", j.id), runx.Options{
		Logger: j.logger, RaiseOnError: true,
	})
	if err != nil {
		return err
	}
	metrics.RecordCancel("slurm")
	return nil
}
