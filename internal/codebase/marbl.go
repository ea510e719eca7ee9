package codebase

import (
	"context"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/hpcsystem"
)

const (
	marblEnvVar        = "MARBL_ROOT"
	marblDefaultRepo   = "https://github.com/marbl-ecosys/MARBL.git"
	marblDefaultTarget = "marbl0.45.0"
)

// marblConfigurer has nothing to compile: MARBL is consumed as a source
// tree ROMS includes at its own build time, so the working copy being
// present and checked out is already "configured".
type marblConfigurer struct{}

// NewMARBLCodebase builds the external-codebase lifecycle for the MARBL
// biogeochemistry library: MARBL_ROOT and the upstream repository. It
// has no compiled artifact of its own; ROMS's Configurer consumes it at
// build time instead.
func NewMARBLCodebase(sourceRepo, checkoutTarget string, mgr *hpcsystem.Manager, logger clog.Logger) *CodeBase {
	return New("marbl", marblEnvVar, marblDefaultRepo, marblDefaultTarget, sourceRepo, checkoutTarget,
		&marblConfigurer{}, logger)
}

func (c *marblConfigurer) IsConfigured(ctx context.Context, cb *CodeBase) (bool, error) {
	return cb.WorkingCopy != nil, nil
}

func (c *marblConfigurer) Configure(ctx context.Context, cb *CodeBase) error {
	return nil
}
