package hpcsystem

import (
	"context"
	"fmt"
	"sync"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/scheduler"
)

// Manager is the resolved view of the current host: its registered
// Context, its layered Environment, and its Scheduler. It is built once
// per process and cached, since host identification and environment
// module loading are both comparatively expensive and idempotent within
// a single run.
type Manager struct {
	Name        string
	Context     *Context
	Environment *Environment
	Scheduler   scheduler.Scheduler
}

var (
	singletonMu     sync.Mutex
	singleton       *Manager
	singletonErr    error
	singletonLoaded bool
)

// Current returns the process-wide Manager, constructing it from
// HostName and the registry on first call and caching the result (and
// any construction error) for subsequent calls.
func Current(ctx context.Context, logger clog.Logger) (*Manager, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singletonLoaded {
		return singleton, singletonErr
	}
	singletonLoaded = true

	name, err := HostName()
	if err != nil {
		singletonErr = err
		return nil, err
	}

	m, err := newManager(ctx, name, logger)
	singleton, singletonErr = m, err
	return singleton, singletonErr
}

// newManager builds a Manager for an explicit system name, bypassing
// host auto-detection; Current calls it with the name HostName
// resolved.
func newManager(ctx context.Context, name string, logger clog.Logger) (*Manager, error) {
	if err := LoadSiteDefinitionsDir(SiteDefinitionsDir()); err != nil {
		return nil, err
	}
	c, ok := Lookup(name)
	if !ok {
		return nil, cstarerrors.Configuration("hpcsystem.newManager", fmt.Sprintf("no registered system context for host %q", name))
	}
	env, err := NewEnvironment(ctx, name, logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		Name:        name,
		Context:     c,
		Environment: env,
		Scheduler:   c.SchedulerFactory(),
	}, nil
}

// ResetForTest clears the cached singleton. It exists so tests can
// exercise Current under different environments without process
// restarts; it has no use outside tests.
func ResetForTest() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton, singletonErr, singletonLoaded = nil, nil, false
}
