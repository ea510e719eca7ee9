// Package hpcsystem's built-in registry (registry.go) covers the sites
// this module ships support for out of the box. This file implements
// the extension point its Register function documents: a site operator
// can drop a declarative YAML file under the systems directory of the
// user's config home (SiteDefinitionsDir), or any directory passed to
// LoadSiteDefinitionsDir, describing a system this module doesn't
// hardcode, and it is registered alongside the env_files and lmod_lists
// conventions that live under the same config home.
package hpcsystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/envvar"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/scheduler"

	"gopkg.in/yaml.v3"
)

// SiteDefinitionsDir is the conventional location for supplemental
// site-definition YAML files, alongside the per-system env_files and
// lmod_lists directories under the user's config home.
func SiteDefinitionsDir() string {
	return filepath.Join(expandHome(envvar.ConfigHome.Value()), "systems")
}

// siteDefinition is the YAML shape of one system's declarative
// definition, covering every field registry.go's map-literal Contexts
// set directly in Go.
type siteDefinition struct {
	Name          string          `yaml:"name"`
	Compiler      string          `yaml:"compiler"`
	MPIExecPrefix string          `yaml:"mpi_exec_prefix"`
	Scheduler     schedulerDefYAML `yaml:"scheduler"`
}

type schedulerDefYAML struct {
	Kind                     string            `yaml:"kind"` // "slurm" or "pbs"
	Primary                  string            `yaml:"primary_queue"`
	Directives               map[string]string `yaml:"directives"`
	RequiresTaskDistribution bool              `yaml:"requires_task_distribution"`
	Queues                   []queueDefYAML    `yaml:"queues"`
}

type queueDefYAML struct {
	Name               string `yaml:"name"`
	QueryName          string `yaml:"query_name"`
	Flavor             string `yaml:"flavor"` // "qos" or "partition", SLURM only
	MaxWalltimeLiteral string `yaml:"max_walltime"` // PBS only; required there
}

// LoadSiteDefinitionsDir parses every *.yaml/*.yml file in dir as a
// siteDefinition and registers it. A directory that does not exist is
// not an error (most installations ship no supplemental sites); a
// malformed file is a fatal Configuration error naming the file.
func LoadSiteDefinitionsDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cstarerrors.Configuration("hpcsystem.LoadSiteDefinitionsDir", err.Error())
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := loadSiteDefinitionFile(path); err != nil {
			return err
		}
	}
	return nil
}

func loadSiteDefinitionFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return cstarerrors.Configuration("hpcsystem.loadSiteDefinitionFile", err.Error())
	}
	var def siteDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return cstarerrors.Configuration("hpcsystem.loadSiteDefinitionFile",
			fmt.Sprintf("%s: %s", path, err.Error()))
	}
	ctx, err := def.toContext(path)
	if err != nil {
		return err
	}
	Register(ctx)
	return nil
}

func (d *siteDefinition) toContext(path string) (*Context, error) {
	if d.Name == "" {
		return nil, cstarerrors.Configuration("hpcsystem.siteDefinition", fmt.Sprintf("%s: missing required field name", path))
	}
	sched := d.Scheduler
	queues, err := sched.toQueues(path)
	if err != nil {
		return nil, err
	}

	var factory func() scheduler.Scheduler
	switch strings.ToLower(sched.Kind) {
	case "slurm":
		factory = func() scheduler.Scheduler {
			return &scheduler.SlurmScheduler{
				QueueList:   queues,
				Primary:     sched.Primary,
				Directives:  sched.Directives,
				ReqTaskDist: sched.RequiresTaskDistribution,
			}
		}
	case "pbs":
		factory = func() scheduler.Scheduler {
			return &scheduler.PBSScheduler{
				QueueList:  queues,
				Primary:    sched.Primary,
				Directives: sched.Directives,
			}
		}
	default:
		return nil, cstarerrors.Configuration("hpcsystem.siteDefinition",
			fmt.Sprintf("%s: unrecognised scheduler kind %q (must be slurm or pbs)", path, sched.Kind))
	}

	return &Context{
		Name:             strings.ToLower(d.Name),
		Compiler:         d.Compiler,
		MPIExecPrefix:    d.MPIExecPrefix,
		SchedulerFactory: factory,
	}, nil
}

func (s *schedulerDefYAML) toQueues(path string) ([]scheduler.Queue, error) {
	queues := make([]scheduler.Queue, 0, len(s.Queues))
	for _, q := range s.Queues {
		if q.Name == "" {
			return nil, cstarerrors.Configuration("hpcsystem.siteDefinition", fmt.Sprintf("%s: queue missing required field name", path))
		}
		switch strings.ToLower(s.Kind) {
		case "slurm":
			switch strings.ToLower(q.Flavor) {
			case "partition":
				queues = append(queues, &scheduler.SlurmPartition{NameField: q.Name, QueryName: q.QueryName})
			default:
				queues = append(queues, &scheduler.SlurmQOS{NameField: q.Name, QueryName: q.QueryName})
			}
		case "pbs":
			if q.MaxWalltimeLiteral == "" {
				return nil, cstarerrors.Configuration("hpcsystem.siteDefinition",
					fmt.Sprintf("%s: PBS queue %q requires max_walltime (PBS does not expose it uniformly)", path, q.Name))
			}
			queues = append(queues, &scheduler.PBSQueue{NameField: q.Name, MaxWalltimeLiteral: q.MaxWalltimeLiteral})
		}
	}
	return queues, nil
}
