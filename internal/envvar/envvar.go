// Package envvar implements the typed environment-variable descriptor
// system described for the C-Star workflow driver: a descriptor carries
// a name, a group tag, a literal default, an optional default-factory,
// and an optional indirect fallback variable, resolved in a fixed order.
//
// The reference implementation declares descriptors by annotating
// module-level string constants and discovers them via reflection over
// type annotations. Go has no equivalent of that introspection, so
// descriptors here are declared with an explicit Register call at
// package init time instead — a static, type-checked registry rather
// than a runtime reflection walk, in the same spirit as the scheduler's
// closed tagged-variant registries.
package envvar

import (
	"os"
	"strings"
	"sync"
)

// Descriptor is a typed environment-variable declaration.
type Descriptor struct {
	Name           string
	Description    string
	Group          string
	Default        string
	DefaultFactory func(d *Descriptor) string
	Indirect       string
}

// Value resolves the descriptor per the fixed order: (1) the variable's
// own value if non-empty; (2) the default-factory result if non-empty;
// (3) the indirect variable's value if non-empty; (4) the literal
// default.
func (d *Descriptor) Value() string {
	if v := os.Getenv(d.Name); v != "" {
		return v
	}
	if d.DefaultFactory != nil {
		if v := d.DefaultFactory(d); v != "" {
			return v
		}
	}
	if d.Indirect != "" {
		if v := os.Getenv(d.Indirect); v != "" {
			return v
		}
	}
	return d.Default
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Descriptor{}
)

// Register declares a descriptor, making it discoverable by name and by
// group. Called from package init for every built-in descriptor; a
// caller embedding this package for a new group may call it too.
func Register(d *Descriptor) *Descriptor {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name] = d
	return d
}

// GetEnvItem looks up a previously registered descriptor by name.
func GetEnvItem(name string) (*Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

// Discover enumerates all registered descriptors, optionally filtered to
// a single group (pass "" for every descriptor).
func Discover(group string) []*Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]*Descriptor, 0, len(registry))
	for _, d := range registry {
		if group == "" || d.Group == group {
			out = append(out, d)
		}
	}
	return out
}

// scratchDirFactory implements CSTAR_DATA_HOME's HPC-scratch fallback:
// the first non-empty of SCRATCH, SCRATCH_DIR, LOCAL_SCRATCH.
func scratchDirFactory(*Descriptor) string {
	for _, name := range []string{"SCRATCH", "SCRATCH_DIR", "LOCAL_SCRATCH"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Built-in descriptors, per the external-interfaces section's
// non-exhaustive list of recognised environment variables.
var (
	LogLevel = Register(&Descriptor{
		Name: "CSTAR_LOG_LEVEL", Description: "Logging verbosity", Group: "logging", Default: "info",
	})
	CacheHome = Register(&Descriptor{
		Name: "CSTAR_CACHE_HOME", Description: "Cache directory root", Group: "paths",
		Indirect: "XDG_CACHE_HOME", Default: "~/.cache/cstar",
	})
	ConfigHome = Register(&Descriptor{
		Name: "CSTAR_CONFIG_HOME", Description: "Config directory root", Group: "paths",
		Indirect: "XDG_CONFIG_HOME", Default: "~/.config/cstar",
	})
	DataHome = Register(&Descriptor{
		Name: "CSTAR_DATA_HOME", Description: "Data directory root", Group: "paths",
		DefaultFactory: scratchDirFactory, Indirect: "XDG_DATA_HOME", Default: "~/.local/share/cstar",
	})
	StateHome = Register(&Descriptor{
		Name: "CSTAR_STATE_HOME", Description: "Asset cache / state directory root", Group: "paths",
		Default: "~/.local/state/cstar",
	})
	ScratchDirs = Register(&Descriptor{
		Name: "CSTAR_SCRATCH_DIRS", Description: "Colon-separated scratch search path", Group: "paths",
	})
	ClobberWorkingDir = Register(&Descriptor{
		Name: "CSTAR_CLOBBER_WORKING_DIR", Description: "Allow overwriting a non-empty working directory", Group: "behaviour",
		Default: "0",
	})
	FreshCodebases = Register(&Descriptor{
		Name: "CSTAR_FRESH_CODEBASES", Description: "Force a clean checkout of external codebases", Group: "behaviour",
		Default: "0",
	})
	InActiveAllocation = Register(&Descriptor{
		Name: "CSTAR_IN_ACTIVE_ALLOCATION", Description: "Running inside an active scheduler allocation", Group: "behaviour",
		Default: "0",
	})
	NprocsPost = Register(&Descriptor{
		Name: "CSTAR_NPROCS_POST", Description: "Process count for post-processing steps", Group: "behaviour",
		Default: "1",
	})
	Interactive = Register(&Descriptor{
		Name: "CSTAR_INTERACTIVE", Description: "Allow interactive confirmation prompts", Group: "behaviour",
		Default: "1",
	})
	DeveloperMode = Register(&Descriptor{
		Name: "DEVELOPER_MODE", Description: "Force every feature flag on", Group: "flags",
		Default: "0",
	})
)

// FeatureFlagPrefix is prepended to a bare flag name to form its
// environment variable, e.g. "staging_cache" -> "CSTAR_FF_staging_cache".
const FeatureFlagPrefix = "CSTAR_FF_"

// IsFeatureEnabled reports whether the named feature flag is on. name
// may be given with or without the CSTAR_FF_ prefix. DEVELOPER_MODE
// overrides every flag to enabled. Otherwise the name's underscore-
// delimited prefixes are checked from shortest to longest (and finally
// the full name): any enabled prefix enables the flag, matching the
// hierarchical flag-name convention.
func IsFeatureEnabled(name string) bool {
	if DeveloperMode.Value() == "1" {
		return true
	}

	bare := strings.TrimPrefix(name, FeatureFlagPrefix)
	segments := strings.Split(bare, "_")

	prefix := ""
	for i, seg := range segments {
		if i == 0 {
			prefix = seg
		} else {
			prefix = prefix + "_" + seg
		}
		if os.Getenv(FeatureFlagPrefix+prefix) == "1" {
			return true
		}
	}
	return false
}
