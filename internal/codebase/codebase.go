// Package codebase implements the lifecycle of an external, non-Go
// scientific codebase (ROMS, MARBL, ...) that a job depends on: locating
// it via an expected environment variable, diagnosing how its local
// install relates to the configured source and checkout target, and
// driving the interactive (or auto-confirmed) prompts that install or
// repair it.
package codebase

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/gitutil"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/hpcsystem"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/source"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/staged"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/stager"
)

// Status is the local-configuration status of an external codebase
// relative to its expected environment variable, source repository, and
// checkout target.
type Status int

const (
	// StatusOK: the env var is present, points at the expected remote,
	// and HEAD is at the expected checkout hash.
	StatusOK Status = 0
	// StatusWrongRemote: the env var is present but points at a
	// different remote than expected — unresolvable without user
	// intervention.
	StatusWrongRemote Status = 1
	// StatusWrongHash: the env var is present and points at the
	// expected remote, but HEAD is not at the expected checkout hash.
	StatusWrongHash Status = 2
	// StatusNotInstalled: the env var is absent; the codebase is
	// assumed not installed locally.
	StatusNotInstalled Status = 3
)

// AnswerKind is a user's response to a confirmation prompt.
type AnswerKind int

const (
	AnswerYes AnswerKind = iota
	AnswerNo
	AnswerCustom
)

// Answer is a Confirmer's parsed response: Kind, plus CustomPath when
// Kind is AnswerCustom.
type Answer struct {
	Kind       AnswerKind
	CustomPath string
}

// Confirmer asks the user prompt and returns their answer. allowCustom
// controls whether a "custom path" response is accepted.
type Confirmer func(prompt string, allowCustom bool) (Answer, error)

// StdinConfirmer prompts on stdin; it is the default Confirmer for
// interactive sessions.
func StdinConfirmer(prompt string, allowCustom bool) (Answer, error) {
	fmt.Println(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return Answer{}, cstarerrors.InteractiveAbort("codebase.StdinConfirmer", err.Error())
	}
	resp := strings.ToLower(strings.TrimSpace(line))
	switch {
	case resp == "y" || resp == "yes" || resp == "ok":
		return Answer{Kind: AnswerYes}, nil
	case resp == "n" || resp == "no":
		return Answer{Kind: AnswerNo}, nil
	case allowCustom && resp == "custom":
		fmt.Println("Enter custom path for install:")
		pathLine, err := reader.ReadString('\n')
		if err != nil {
			return Answer{}, cstarerrors.InteractiveAbort("codebase.StdinConfirmer", err.Error())
		}
		abs, err := filepath.Abs(strings.TrimSpace(pathLine))
		if err != nil {
			return Answer{}, cstarerrors.Configuration("codebase.StdinConfirmer", err.Error())
		}
		return Answer{Kind: AnswerCustom, CustomPath: abs}, nil
	default:
		msg := "invalid selection; enter 'y' or 'n'"
		if allowCustom {
			msg = "invalid selection; enter 'y', 'n', or 'custom'"
		}
		return Answer{}, cstarerrors.Validation("codebase.StdinConfirmer", msg)
	}
}

// AutoYesConfirmer always answers yes; it is used when CSTAR_INTERACTIVE
// is false, matching the reference implementation's non-interactive
// auto-confirm behavior.
func AutoYesConfirmer(prompt string, allowCustom bool) (Answer, error) {
	return Answer{Kind: AnswerYes}, nil
}

// Configurer supplies the behavior specific to a concrete external
// codebase (ROMS, MARBL, ...): whether its local install is considered
// functionally configured beyond the repository checks this package
// already performs, and how to perform that extra configuration (e.g.
// compiling).
type Configurer interface {
	IsConfigured(ctx context.Context, cb *CodeBase) (bool, error)
	Configure(ctx context.Context, cb *CodeBase) error
}

// CodeBase is an external non-Go dependency tracked by an expected
// environment variable pointing at a git checkout.
type CodeBase struct {
	Name                  string
	DefaultSourceRepo     string
	DefaultCheckoutTarget string
	ExpectedEnvVar        string

	SourceRepo     string
	CheckoutTarget string

	Configurer Configurer
	Confirm    Confirmer
	Logger     clog.Logger

	WorkingCopy staged.Artifact
}

// New builds a CodeBase, falling back to the given defaults when
// sourceRepo/checkoutTarget are empty.
func New(name, expectedEnvVar, defaultSourceRepo, defaultCheckoutTarget, sourceRepo, checkoutTarget string, configurer Configurer, logger clog.Logger) *CodeBase {
	if sourceRepo == "" {
		sourceRepo = defaultSourceRepo
	}
	if checkoutTarget == "" {
		checkoutTarget = defaultCheckoutTarget
	}
	if logger == nil {
		logger = clog.Default
	}
	confirm := StdinConfirmer
	if !interactive() {
		confirm = AutoYesConfirmer
	}
	return &CodeBase{
		Name:                  name,
		ExpectedEnvVar:        expectedEnvVar,
		DefaultSourceRepo:     defaultSourceRepo,
		DefaultCheckoutTarget: defaultCheckoutTarget,
		SourceRepo:            sourceRepo,
		CheckoutTarget:        checkoutTarget,
		Configurer:            configurer,
		Confirm:               confirm,
		Logger:                logger,
	}
}

func interactive() bool {
	v := os.Getenv("CSTAR_INTERACTIVE")
	return v == "" || v == "1"
}

// RepoBasename is the repository's path basename with a trailing
// ".git" suffix removed.
func (cb *CodeBase) RepoBasename() string {
	base := filepath.Base(cb.SourceRepo)
	return strings.TrimSuffix(base, ".git")
}

// CheckoutHash resolves CheckoutTarget to a concrete commit hash
// against SourceRepo.
func (cb *CodeBase) CheckoutHash(ctx context.Context) (string, error) {
	res, err := gitutil.GetHashFromCheckoutTarget(ctx, cb.SourceRepo, cb.CheckoutTarget)
	if err != nil {
		return "", err
	}
	return res.Hash, nil
}

// LocalConfigStatus performs the three-step check against mgr's
// environment to determine this codebase's local configuration status.
func (cb *CodeBase) LocalConfigStatus(ctx context.Context, mgr *hpcsystem.Manager) (Status, error) {
	localRoot, present := mgr.Environment.EnvironmentVariables()[cb.ExpectedEnvVar]
	if !present || localRoot == "" {
		return StatusNotInstalled, nil
	}

	remote, err := gitutil.GetRepoRemote(ctx, localRoot)
	if err != nil {
		return 0, err
	}
	if remote != cb.SourceRepo {
		return StatusWrongRemote, nil
	}

	headHash, err := gitutil.GetRepoHeadHash(ctx, localRoot)
	if err != nil {
		return 0, err
	}
	checkoutHash, err := cb.CheckoutHash(ctx)
	if err != nil {
		return 0, err
	}
	if headHash == checkoutHash {
		return StatusOK, nil
	}
	return StatusWrongHash, nil
}

// HandleConfigStatus inspects LocalConfigStatus and takes the
// corresponding action: no-op (0), a fatal EnvironmentMismatch error
// (1), a confirm-then-checkout (2), or a confirm-then-install into a
// default or custom directory, persisting the resolved root via
// SetEnvVar (3).
func (cb *CodeBase) HandleConfigStatus(ctx context.Context, mgr *hpcsystem.Manager) error {
	status, err := cb.LocalConfigStatus(ctx, mgr)
	if err != nil {
		return err
	}
	localRoot := mgr.Environment.EnvironmentVariables()[cb.ExpectedEnvVar]

	switch status {
	case StatusOK:
		cb.Logger.Info("external codebase correctly configured; nothing to do", "codebase", cb.Name)
		return nil

	case StatusWrongRemote:
		remote, _ := gitutil.GetRepoRemote(ctx, localRoot)
		return cstarerrors.EnvironmentMismatch("codebase.HandleConfigStatus",
			fmt.Sprintf("%s points to remote %q; expected %q", cb.ExpectedEnvVar, remote, cb.SourceRepo))

	case StatusWrongHash:
		for {
			ans, err := cb.Confirm(fmt.Sprintf(
				"%s points to the correct repo %s but HEAD does not match checkout target %s. Checkout now?",
				cb.ExpectedEnvVar, cb.SourceRepo, cb.CheckoutTarget), false)
			if err != nil {
				return err
			}
			switch ans.Kind {
			case AnswerYes:
				return gitutil.Checkout(ctx, localRoot, cb.CheckoutTarget)
			case AnswerNo:
				return cstarerrors.InteractiveAbort("codebase.HandleConfigStatus", "user declined checkout")
			}
		}

	case StatusNotInstalled:
		defaultDir := filepath.Join("externals", cb.RepoBasename())
		for {
			ans, err := cb.Confirm(fmt.Sprintf(
				"%s not found. Install %s at %s, or enter a custom path?",
				cb.ExpectedEnvVar, cb.Name, defaultDir), true)
			if err != nil {
				return err
			}
			switch ans.Kind {
			case AnswerYes:
				return cb.Get(ctx, mgr, defaultDir)
			case AnswerCustom:
				return cb.Get(ctx, mgr, ans.CustomPath)
			case AnswerNo:
				return cstarerrors.InteractiveAbort("codebase.HandleConfigStatus", "user declined install")
			}
		}
	}
	return cstarerrors.Configuration("codebase.HandleConfigStatus", "unreachable status value")
}

// Get clones and checks out the codebase into targetDir, persisting
// ExpectedEnvVar=targetDir to the user .env file.
func (cb *CodeBase) Get(ctx context.Context, mgr *hpcsystem.Manager, targetDir string) error {
	if cb.WorkingCopy != nil {
		return cstarerrors.Validation("codebase.Get", fmt.Sprintf("%s is already staged at %s", cb.Name, cb.WorkingCopy.Path()))
	}

	abs, err := filepath.Abs(targetDir)
	if err != nil {
		return cstarerrors.Configuration("codebase.Get", err.Error())
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return cstarerrors.Subprocess("codebase.Get", "mkdir "+abs, err.Error(), err)
	}

	src, err := source.Classify(ctx, cb.SourceRepo, cb.CheckoutTarget)
	if err != nil {
		return err
	}
	st, err := stager.Get(src.Classification())
	if err != nil {
		return err
	}
	artifact, err := st.Stage(ctx, src, abs)
	if err != nil {
		return err
	}
	cb.WorkingCopy = artifact

	if err := mgr.Environment.SetEnvVar(cb.ExpectedEnvVar, abs); err != nil {
		return err
	}
	cb.Logger.Info("external codebase installed", "codebase", cb.Name, "path", abs)
	return nil
}

// Configure runs the codebase-specific configuration step
// (Configurer.Configure) unless Configurer.IsConfigured already reports
// true.
func (cb *CodeBase) Configure(ctx context.Context) error {
	if cb.WorkingCopy == nil {
		return cstarerrors.Validation("codebase.Configure", fmt.Sprintf("%s has no local working copy; call Get first", cb.Name))
	}
	ok, err := cb.Configurer.IsConfigured(ctx, cb)
	if err != nil {
		return err
	}
	if ok {
		cb.Logger.Info("external codebase correctly configured; nothing to do", "codebase", cb.Name)
		return nil
	}
	return cb.Configurer.Configure(ctx, cb)
}
