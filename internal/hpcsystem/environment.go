package hpcsystem

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/envvar"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/runx"

	"github.com/joho/godotenv"
)

// HostName identifies the current host in priority order: LMOD_SYSHOST,
// LMOD_SYSTEM_NAME, then "<GOOS>_<GOARCH>" (used only when both are
// available, mirroring the reference implementation's requirement that
// platform and machine both be known). The result is lowercased.
func HostName() (string, error) {
	if v := os.Getenv("LMOD_SYSHOST"); v != "" {
		return strings.ToLower(v), nil
	}
	if v := os.Getenv("LMOD_SYSTEM_NAME"); v != "" {
		return strings.ToLower(v), nil
	}
	if runtime.GOOS != "" && runtime.GOARCH != "" {
		return strings.ToLower(fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)), nil
	}
	return "", cstarerrors.Configuration("hpcsystem.HostName", "could not determine host identification")
}

// userEnvPath is the fixed per-user configuration file path.
func userEnvPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cstar.env"
	}
	return filepath.Join(home, ".cstar.env")
}

// systemEnvPath is the per-system configuration file path. The
// reference implementation resolves this relative to its installed
// package directory (via importlib); Go has no equivalent package-root
// concept at runtime, so this resolves relative to the user's config
// home (envvar.ConfigHome) instead — a deliberate, documented departure
// rather than an attempt to fake Python's import machinery.
func systemEnvPath(systemName string) string {
	return filepath.Join(expandHome(envvar.ConfigHome.Value()), "env_files", systemName+".env")
}

func lmodListPath(systemName string) string {
	return filepath.Join(expandHome(envvar.ConfigHome.Value()), "lmod_lists", systemName+".lmod")
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// Environment encapsulates a host's layered .env configuration and, on
// Lmod-managed hosts, module loading.
type Environment struct {
	systemName string
	vars       map[string]string
	usesLmod   bool
	logger     clog.Logger
}

// NewEnvironment loads the system and user .env files (user overrides
// system), reflects the merge into the live process environment, and —
// if LMOD_CMD is present and the platform is Linux — runs `module
// reset` followed by `module load <m>` for each module named in the
// system's .lmod file.
func NewEnvironment(ctx context.Context, systemName string, logger clog.Logger) (*Environment, error) {
	if logger == nil {
		logger = clog.Default
	}
	e := &Environment{systemName: systemName, logger: logger}

	if err := e.load(); err != nil {
		return nil, err
	}

	e.usesLmod = runtime.GOOS == "linux" && os.Getenv("LMOD_CMD") != ""
	if e.usesLmod {
		if err := e.loadLmodModules(ctx); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Environment) load() error {
	sysVars, _ := godotenv.Read(systemEnvPath(e.systemName))
	userVars, _ := godotenv.Read(userEnvPath())

	merged := map[string]string{}
	for k, v := range sysVars {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range userVars {
		if v != "" {
			merged[k] = v
		}
	}

	for k, v := range merged {
		if err := os.Setenv(k, v); err != nil {
			return cstarerrors.Configuration("hpcsystem.Environment.load", err.Error())
		}
	}
	e.vars = merged
	return nil
}

// EnvironmentVariables returns a snapshot of the merged .env variables;
// mutating the returned map does not affect the process environment.
func (e *Environment) EnvironmentVariables() map[string]string {
	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

func (e *Environment) UsesLmod() bool { return e.usesLmod }

// SetEnvVar persists key=value to the user .env file and reloads the
// merged snapshot.
func (e *Environment) SetEnvVar(key, value string) error {
	existing, _ := godotenv.Read(userEnvPath())
	if existing == nil {
		existing = map[string]string{}
	}
	existing[key] = value
	if err := godotenv.Write(existing, userEnvPath()); err != nil {
		return cstarerrors.Configuration("hpcsystem.Environment.SetEnvVar", err.Error())
	}
	return e.load()
}

// loadLmodModules resets, then loads, every module named in the
// system's .lmod file. Each Lmod invocation in python mode emits
// assignment text whose effects on the process environment are
// replayed here by parsing it as export/unset statements, rather than
// by executing it as code.
func (e *Environment) loadLmodModules(ctx context.Context) error {
	if err := e.callLmod(ctx, "reset"); err != nil {
		return err
	}

	data, err := os.ReadFile(lmodListPath(e.systemName))
	if err != nil {
		// No .lmod file for this system is not itself fatal; there is
		// simply nothing to load beyond the reset.
		return nil
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		mod := strings.TrimSpace(scanner.Text())
		if mod == "" {
			continue
		}
		if err := e.callLmod(ctx, "load "+mod); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) callLmod(ctx context.Context, args string) error {
	lmodCmd := os.Getenv("LMOD_CMD")
	if lmodCmd == "" {
		return cstarerrors.Configuration("hpcsystem.Environment.callLmod", "LMOD_CMD is not set")
	}
	res, err := runx.Run(ctx, fmt.Sprintf("%s python %s", lmodCmd, args), runx.Options{
		Logger: e.logger, RaiseOnError: true,
		MsgErr: fmt.Sprintf("Linux Environment Modules command %q failed", args),
	})
	if err != nil {
		return err
	}
	applyLmodOutput(res.Stdout)
	return nil
}

// applyLmodOutput parses Lmod's python-mode output as a series of
// `export KEY=VALUE` / `unset KEY` statements and replays their effect
// on the process environment, rather than treating the output as
// executable code.
func applyLmodOutput(output string) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, ";"))
		switch {
		case strings.HasPrefix(line, "os.environ['"):
			// os.environ['KEY'] = 'VALUE'
			rest := strings.TrimPrefix(line, "os.environ['")
			parts := strings.SplitN(rest, "'] = '", 2)
			if len(parts) == 2 {
				key := parts[0]
				val := strings.TrimSuffix(parts[1], "'")
				os.Setenv(key, val)
			}
		case strings.HasPrefix(line, "export "):
			rest := strings.TrimPrefix(line, "export ")
			kv := strings.SplitN(rest, "=", 2)
			if len(kv) == 2 {
				os.Setenv(kv[0], strings.Trim(kv[1], `"'`))
			}
		case strings.HasPrefix(line, "unset "):
			os.Unsetenv(strings.TrimPrefix(line, "unset "))
		case strings.HasPrefix(line, "del os.environ['"):
			key := strings.TrimSuffix(strings.TrimPrefix(line, "del os.environ['"), "']")
			os.Unsetenv(key)
		}
	}
}
