package codebase

import (
	"context"
	"testing"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArtifact struct{}

func (fakeArtifact) Path() string                                       { return "/tmp/fake" }
func (fakeArtifact) ChangedFromSource(ctx context.Context) (bool, error) { return false, nil }
func (fakeArtifact) Reset(ctx context.Context) error                    { return nil }
func (fakeArtifact) Unstage() error                                     { return nil }

type fakeConfigurer struct {
	configured bool
	configureN int
}

func (f *fakeConfigurer) IsConfigured(ctx context.Context, cb *CodeBase) (bool, error) {
	return f.configured, nil
}

func (f *fakeConfigurer) Configure(ctx context.Context, cb *CodeBase) error {
	f.configureN++
	f.configured = true
	return nil
}

func TestNew_DefaultsApplied(t *testing.T) {
	cb := New("ROMS", "ROMS_ROOT", "https://github.com/CESR-lab/ucla-roms.git", "main", "", "", &fakeConfigurer{}, clog.NoOpLogger{})
	assert.Equal(t, "https://github.com/CESR-lab/ucla-roms.git", cb.SourceRepo)
	assert.Equal(t, "main", cb.CheckoutTarget)
}

func TestNew_ExplicitOverridesDefault(t *testing.T) {
	cb := New("ROMS", "ROMS_ROOT", "https://github.com/CESR-lab/ucla-roms.git", "main",
		"https://github.com/fork/ucla-roms.git", "v1.0", &fakeConfigurer{}, clog.NoOpLogger{})
	assert.Equal(t, "https://github.com/fork/ucla-roms.git", cb.SourceRepo)
	assert.Equal(t, "v1.0", cb.CheckoutTarget)
}

func TestRepoBasename(t *testing.T) {
	cb := New("ROMS", "ROMS_ROOT", "https://github.com/CESR-lab/ucla-roms.git", "main", "", "", &fakeConfigurer{}, clog.NoOpLogger{})
	assert.Equal(t, "ucla-roms", cb.RepoBasename())
}

func TestConfigure_RequiresWorkingCopy(t *testing.T) {
	cb := New("ROMS", "ROMS_ROOT", "repo", "main", "", "", &fakeConfigurer{}, clog.NoOpLogger{})
	err := cb.Configure(context.Background())
	require.Error(t, err)
}

func TestConfigure_SkipsWhenAlreadyConfigured(t *testing.T) {
	fc := &fakeConfigurer{configured: true}
	cb := New("ROMS", "ROMS_ROOT", "repo", "main", "", "", fc, clog.NoOpLogger{})
	cb.WorkingCopy = fakeArtifact{}

	err := cb.Configure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fc.configureN)
}

func TestAutoYesConfirmer(t *testing.T) {
	ans, err := AutoYesConfirmer("prompt", true)
	require.NoError(t, err)
	assert.Equal(t, AnswerYes, ans.Kind)
}
