// Package scheduler models the Queue and Scheduler value objects: named
// resource classes exposed by a batch scheduler, and the scheduler
// itself (a set of queues, a primary queue, task-distribution policy,
// and system-wide introspected maxima). Queue and Scheduler are closed
// tagged variants (SLURM, PBS) rather than an open class hierarchy, per
// the strategy recorded for "abstract bases with properties": an
// interface (capability set) plus one concrete type per kind.
package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/runx"
)

// Queue is a named resource class exposed by a scheduler.
type Queue interface {
	Name() string
	// MaxWalltime returns the queue's canonical HH:MM:SS walltime
	// ceiling. For SLURM queues this shells out and is advisory: ok is
	// false (and the error logged, not returned) if introspection
	// fails. For PBS queues it is a pre-declared literal, and ok is false
	// only when that literal cannot be normalised.
	MaxWalltime(ctx context.Context, logger clog.Logger) (walltime string, ok bool)
}

// SlurmQOS is a SLURM quality-of-service queue.
type SlurmQOS struct {
	NameField  string
	QueryName  string // distinct name used in sacctmgr queries, if different from NameField
}

func (q *SlurmQOS) Name() string { return q.NameField }

func (q *SlurmQOS) queryName() string {
	if q.QueryName != "" {
		return q.QueryName
	}
	return q.NameField
}

func (q *SlurmQOS) MaxWalltime(ctx context.Context, logger clog.Logger) (string, bool) {
	res, err := runx.Run(ctx, fmt.Sprintf("sacctmgr show qos %s format=MaxWall --noheader", q.queryName()), runx.Options{
		Logger: logger, RaiseOnError: true,
	})
	if err != nil {
		logAdvisory(logger, "sacctmgr show qos failed", err)
		return "", false
	}
	norm, err := Normalize(strings.TrimSpace(res.Stdout))
	if err != nil {
		logAdvisory(logger, "could not normalise QOS max walltime", err)
		return "", false
	}
	return norm, true
}

// SlurmPartition is a SLURM partition queue.
type SlurmPartition struct {
	NameField string
	QueryName string
}

func (p *SlurmPartition) Name() string { return p.NameField }

func (p *SlurmPartition) queryName() string {
	if p.QueryName != "" {
		return p.QueryName
	}
	return p.NameField
}

func (p *SlurmPartition) MaxWalltime(ctx context.Context, logger clog.Logger) (string, bool) {
	res, err := runx.Run(ctx, fmt.Sprintf("sinfo -h -o '%%l' -p %s", p.queryName()), runx.Options{
		Logger: logger, RaiseOnError: true,
	})
	if err != nil {
		logAdvisory(logger, "sinfo failed", err)
		return "", false
	}
	norm, err := Normalize(strings.TrimSpace(res.Stdout))
	if err != nil {
		logAdvisory(logger, "could not normalise partition max walltime", err)
		return "", false
	}
	return norm, true
}

// PBSQueue is a PBS queue; PBS does not expose walltime ceilings
// uniformly, so the value is a pre-declared literal.
type PBSQueue struct {
	NameField          string
	MaxWalltimeLiteral string
}

func (q *PBSQueue) Name() string { return q.NameField }

func (q *PBSQueue) MaxWalltime(ctx context.Context, logger clog.Logger) (string, bool) {
	norm, err := Normalize(q.MaxWalltimeLiteral)
	if err != nil {
		return "", false
	}
	return norm, true
}

func logAdvisory(logger clog.Logger, msg string, err error) {
	if logger == nil {
		logger = clog.Default
	}
	logger.Warn(msg, "error", err)
}

// Kind identifies the scheduler family, used by the scheduler job
// factory to pick the correct concrete job type.
type Kind string

const (
	KindSlurm Kind = "slurm"
	KindPBS   Kind = "pbs"
)

// Scheduler is a set of queues, a primary queue, other-directives, and
// system-wide introspected maxima.
type Scheduler interface {
	Kind() Kind
	Queues() []Queue
	GetQueue(name string) (Queue, error)
	PrimaryQueueName() string
	OtherDirectives() map[string]string
	RequiresTaskDistribution() bool
	GlobalMaxCPUsPerNode(ctx context.Context, logger clog.Logger) (int, bool)
	GlobalMaxMemPerNodeGB(ctx context.Context, logger clog.Logger) (int, bool)
}

func getQueue(queues []Queue, name string) (Queue, error) {
	for _, q := range queues {
		if q.Name() == name {
			return q, nil
		}
	}
	return nil, cstarerrors.NotFound("scheduler.GetQueue", fmt.Sprintf("no queue named %q", name))
}

// SlurmScheduler is the SLURM scheduler variant. RequiresTaskDistribution
// is site-dependent (unlike PBS, where it is always true), so it is
// carried as a field rather than hardcoded.
type SlurmScheduler struct {
	QueueList        []Queue
	Primary          string
	Directives       map[string]string
	ReqTaskDist      bool
}

func (s *SlurmScheduler) Kind() Kind                     { return KindSlurm }
func (s *SlurmScheduler) Queues() []Queue                { return s.QueueList }
func (s *SlurmScheduler) GetQueue(name string) (Queue, error) { return getQueue(s.QueueList, name) }
func (s *SlurmScheduler) PrimaryQueueName() string       { return s.Primary }
func (s *SlurmScheduler) OtherDirectives() map[string]string { return s.Directives }
func (s *SlurmScheduler) RequiresTaskDistribution() bool { return s.ReqTaskDist }

func (s *SlurmScheduler) GlobalMaxCPUsPerNode(ctx context.Context, logger clog.Logger) (int, bool) {
	res, err := runx.Run(ctx, `scontrol show nodes | grep -o "CPUTot=[0-9]*" | cut -d= -f2 | sort -n | tail -1`, runx.Options{
		Logger: logger, RaiseOnError: true,
	})
	if err != nil {
		logAdvisory(logger, "scontrol show nodes failed", err)
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		logAdvisory(logger, "could not parse scontrol CPUTot output", err)
		return 0, false
	}
	return n, true
}

func (s *SlurmScheduler) GlobalMaxMemPerNodeGB(ctx context.Context, logger clog.Logger) (int, bool) {
	res, err := runx.Run(ctx, `scontrol show nodes | grep -o "RealMemory=[0-9]*" | cut -d= -f2 | sort -n | tail -1`, runx.Options{
		Logger: logger, RaiseOnError: true,
	})
	if err != nil {
		logAdvisory(logger, "scontrol show nodes failed", err)
		return 0, false
	}
	mib, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		logAdvisory(logger, "could not parse scontrol RealMemory output", err)
		return 0, false
	}
	return mib / 1024, true
}

// PBSScheduler is the PBS scheduler variant. PBS always requires node x
// cpus-per-node task distribution.
type PBSScheduler struct {
	QueueList  []Queue
	Primary    string
	Directives map[string]string
}

func (s *PBSScheduler) Kind() Kind                         { return KindPBS }
func (s *PBSScheduler) Queues() []Queue                    { return s.QueueList }
func (s *PBSScheduler) GetQueue(name string) (Queue, error) { return getQueue(s.QueueList, name) }
func (s *PBSScheduler) PrimaryQueueName() string           { return s.Primary }
func (s *PBSScheduler) OtherDirectives() map[string]string { return s.Directives }
func (s *PBSScheduler) RequiresTaskDistribution() bool     { return true }

var pbsNcpusRe = regexp.MustCompile(`resources_available\.ncpus = (\d+)`)
var pbsMemRe = regexp.MustCompile(`resources_available\.mem = (\d+)([kKmMgG][bB])`)

func (s *PBSScheduler) GlobalMaxCPUsPerNode(ctx context.Context, logger clog.Logger) (int, bool) {
	res, err := runx.Run(ctx, `pbsnodes -a | grep "resources_available.ncpus" | sort -t= -k2 -n | tail -1`, runx.Options{
		Logger: logger, RaiseOnError: true,
	})
	if err != nil {
		logAdvisory(logger, "pbsnodes -a failed", err)
		return 0, false
	}
	m := pbsNcpusRe.FindStringSubmatch(res.Stdout)
	if m == nil {
		logAdvisory(logger, "could not parse pbsnodes ncpus output", nil)
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	return n, true
}

func (s *PBSScheduler) GlobalMaxMemPerNodeGB(ctx context.Context, logger clog.Logger) (int, bool) {
	res, err := runx.Run(ctx, `pbsnodes -a | grep "resources_available.mem" | sort -t= -k2 -n | tail -1`, runx.Options{
		Logger: logger, RaiseOnError: true,
	})
	if err != nil {
		logAdvisory(logger, "pbsnodes -a failed", err)
		return 0, false
	}
	m := pbsMemRe.FindStringSubmatch(res.Stdout)
	if m == nil {
		logAdvisory(logger, "could not parse pbsnodes mem output", nil)
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	switch strings.ToLower(m[2]) {
	case "kb":
		return n / (1024 * 1024), true
	case "mb":
		return n / 1024, true
	default: // gb
		return n, true
	}
}
