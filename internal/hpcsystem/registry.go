// Package hpcsystem implements the system context: host detection,
// compiler/MPI-prefix/scheduler selection, layered .env configuration,
// and (on Lmod-managed hosts) environment-module loading. A module-
// level registry maps system name to system context, built at package
// init rather than via the reference implementation's import-time class
// registration (Go has no decorator-style registration hook, so the
// registry is just a map literal assembled in init).
package hpcsystem

import (
	"github.com/CWorthy-ocean/C-Star-sub001/internal/scheduler"
)

// Context is the immutable record identifying a host platform: its
// name, compiler tag, MPI launcher prefix, and a factory for its
// scheduler.
type Context struct {
	Name             string
	Compiler         string // "intel" or "gnu"
	MPIExecPrefix    string
	SchedulerFactory func() scheduler.Scheduler
}

var registry = map[string]*Context{}

func register(c *Context) { registry[c.Name] = c }

func init() {
	register(&Context{
		Name:          "perlmutter",
		Compiler:      "gnu",
		MPIExecPrefix: "srun",
		SchedulerFactory: func() scheduler.Scheduler {
			return &scheduler.SlurmScheduler{
				QueueList: []scheduler.Queue{
					&scheduler.SlurmQOS{NameField: "regular"},
					&scheduler.SlurmQOS{NameField: "shared"},
					&scheduler.SlurmQOS{NameField: "debug"},
				},
				Primary:     "regular",
				Directives:  map[string]string{"--constraint": "cpu"},
				ReqTaskDist: true,
			}
		},
	})

	register(&Context{
		Name:          "derecho",
		Compiler:      "intel",
		MPIExecPrefix: "mpirun",
		SchedulerFactory: func() scheduler.Scheduler {
			return &scheduler.PBSScheduler{
				QueueList: []scheduler.Queue{
					&scheduler.PBSQueue{NameField: "main", MaxWalltimeLiteral: "12:00:00"},
					&scheduler.PBSQueue{NameField: "develop", MaxWalltimeLiteral: "06:00:00"},
				},
				Primary:    "main",
				Directives: map[string]string{},
			}
		},
	})

	register(&Context{
		Name:          "expanse",
		Compiler:      "intel",
		MPIExecPrefix: "srun --mpi=pmi2",
		SchedulerFactory: func() scheduler.Scheduler {
			return &scheduler.SlurmScheduler{
				QueueList: []scheduler.Queue{
					&scheduler.SlurmPartition{NameField: "compute"},
					&scheduler.SlurmPartition{NameField: "shared"},
				},
				Primary:     "compute",
				Directives:  map[string]string{},
				ReqTaskDist: true,
			}
		},
	})
}

// Lookup returns the registered context for name, or ok=false if
// unregistered.
func Lookup(name string) (*Context, bool) {
	c, ok := registry[name]
	return c, ok
}

// Register exposes the registry to callers wiring in a new system
// outside this package's built-ins (e.g. a test double, or a site this
// module does not ship support for out of the box).
func Register(c *Context) { register(c) }
