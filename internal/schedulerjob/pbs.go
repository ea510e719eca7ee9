package schedulerjob

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/metrics"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/runx"
)

// PBSJob is the PBS concrete scheduler job.
type PBSJob struct {
	base
}

func (j *PBSJob) Script() string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("#PBS -S /bin/bash\n")
	fmt.Fprintf(&b, "#PBS -N %s\n", j.jobName)
	fmt.Fprintf(&b, "#PBS -o %s\n", j.outputFile)
	fmt.Fprintf(&b, "#PBS -A %s\n", j.accountKey)
	fmt.Fprintf(&b, "#PBS -l select=%d:ncpus=%d,walltime=%s\n", j.nodes, j.cpusPerNode, j.walltime)
	fmt.Fprintf(&b, "#PBS -q %s\n", j.queueName)
	b.WriteString("#PBS -j oe\n")
	b.WriteString("#PBS -k eod\n")
	b.WriteString("#PBS -V\n")

	keys := make([]string, 0, len(j.sched.OtherDirectives()))
	for k := range j.sched.OtherDirectives() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "#PBS %s %s\n", k, j.sched.OtherDirectives()[k])
	}

	b.WriteString("\ncd ${PBS_O_WORKDIR}\n\n")
	b.WriteString(j.commands + "\n")
	return b.String()
}

var pbsJobIDRe = regexp.MustCompile(`^\d+\.\w+$`)

func (j *PBSJob) Submit(ctx context.Context) (string, error) {
	if err := os.WriteFile(j.scriptPath, []byte(j.Script()), 0o755); err != nil {
		return "", cstarerrors.Subprocess("schedulerjob.PBSJob.Submit", "write script", err.Error(), err)
	}

	cmd := fmt.Sprintf("qsub %s", j.scriptPath)
	res, err := runx.Run(ctx, cmd, runx.Options{
		Cwd: j.runPath, Logger: j.logger,
		MsgErr: "qsub failed", RaiseOnError: true,
	})
	if err != nil {
		metrics.RecordSubmit("pbs", false)
		return "", err
	}

	full := strings.TrimSpace(res.Stdout)
	if !pbsJobIDRe.MatchString(full) {
		metrics.RecordSubmit("pbs", false)
		return "", cstarerrors.Subprocess("schedulerjob.PBSJob.Submit", cmd, res.Stdout,
			fmt.Errorf("unexpected qsub output"))
	}
	j.id = strings.SplitN(full, ".", 2)[0]
	j.submitted = true
	metrics.RecordSubmit("pbs", true)
	return j.id, nil
}

type qstatResponse struct {
	Jobs map[string]struct {
		JobState   string `json:"job_state"`
		ExitStatus *int   `json:"Exit_status"`
	} `json:"Jobs"`
}

func (j *PBSJob) Status(ctx context.Context) (Status, error) {
	if !j.submitted {
		return StatusUnsubmitted, nil
	}
	res, err := runx.Run(ctx, fmt.Sprintf("qstat -x -f -F json %s", j.id), runx.Options{
		Logger: j.logger, RaiseOnError: true,
	})
	if err != nil {
		return StatusUnknown, err
	}

	var parsed qstatResponse
	if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
		return StatusUnknown, cstarerrors.Subprocess("schedulerjob.PBSJob.Status", "qstat -x -f -F json", res.Stdout, err)
	}

	var entry *struct {
		JobState   string `json:"job_state"`
		ExitStatus *int   `json:"Exit_status"`
	}
	for id, e := range parsed.Jobs {
		if strings.HasPrefix(id, j.id) {
			e := e
			entry = &e
			break
		}
	}
	if entry == nil {
		return StatusUnknown, cstarerrors.NotFound("schedulerjob.PBSJob.Status", fmt.Sprintf("job %s not found in qstat output", j.id))
	}

	var status Status
	switch entry.JobState {
	case "Q":
		status = StatusPending
	case "R":
		status = StatusRunning
	case "C":
		status = StatusCompleted
	case "H":
		status = StatusHeld
	case "E":
		status = StatusEnding
	case "F":
		if entry.ExitStatus != nil && *entry.ExitStatus == 0 {
			status = StatusCompleted
		} else {
			status = StatusFailed
		}
	default:
		status = StatusUnknown
	}
	metrics.RecordStatusPoll("pbs", string(status), isTerminal(status))
	return status, nil
}

func (j *PBSJob) Cancel(ctx context.Context) error {
	status, err := j.Status(ctx)
	if err != nil {
		return err
	}
	if status != StatusRunning && status != StatusPending && status != StatusHeld {
		j.logger.Info("cancel skipped: job is not running, pending, or held", "job_id", j.id, "status", status)
		return nil
	}
	_, err = runx.Run(ctx, fmt.Sprintf("qdel %s", j.id), runx.Options{
		Logger: j.logger, RaiseOnError: true,
	})
	if err != nil {
		return err
	}
	metrics.RecordCancel("pbs")
	return nil
}
