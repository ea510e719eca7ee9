package codebase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/hpcsystem"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/runx"
)

const (
	romsEnvVar        = "ROMS_ROOT"
	romsDefaultRepo   = "https://github.com/CESR-lab/ucla-roms.git"
	romsDefaultTarget = "main"
)

// romsConfigurer compiles ROMS out of its working copy once checked
// out. Configuration is considered done when the compiled binary that
// `make` produces is already present, so repeated Configure calls after
// a successful build are no-ops.
type romsConfigurer struct {
	mgr *hpcsystem.Manager
}

// NewROMSCodebase builds the external-codebase lifecycle for the ROMS
// ocean model: ROMS_ROOT, the upstream repository, and a compiler-aware
// `make` step selected from the active system context.
func NewROMSCodebase(sourceRepo, checkoutTarget string, mgr *hpcsystem.Manager, logger clog.Logger) *CodeBase {
	return New("roms", romsEnvVar, romsDefaultRepo, romsDefaultTarget, sourceRepo, checkoutTarget,
		&romsConfigurer{mgr: mgr}, logger)
}

func (c *romsConfigurer) IsConfigured(ctx context.Context, cb *CodeBase) (bool, error) {
	if cb.WorkingCopy == nil {
		return false, cstarerrors.Validation("codebase.roms.IsConfigured", "ROMS has no local working copy")
	}
	return c.isCompiled(cb.WorkingCopy.Path())
}

// isCompiled reports whether root/Compile/roms exists, factored out of
// IsConfigured so it can be exercised directly against a test directory
// without needing a real staged working copy.
func (c *romsConfigurer) isCompiled(root string) (bool, error) {
	_, err := os.Stat(filepath.Join(root, "Compile", "roms"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, cstarerrors.Subprocess("codebase.roms.IsConfigured", "stat roms binary", err.Error(), err)
}

func (c *romsConfigurer) Configure(ctx context.Context, cb *CodeBase) error {
	makefile := fmt.Sprintf("Makefile.%s", c.mgr.Context.Compiler)
	cmd := fmt.Sprintf("make -f %s", makefile)
	_, err := runx.Run(ctx, cmd, runx.Options{
		Cwd:          filepath.Join(cb.WorkingCopy.Path(), "Compile"),
		MsgPre:       "compiling ROMS",
		MsgErr:       "ROMS compilation failed",
		RaiseOnError: true,
		Logger:       cb.Logger,
	})
	return err
}
