package stager

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func initBareableRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi\n"), 0o644))
	run("add", "README")
	run("commit", "-q", "-m", "initial")
	return dir
}

func newTestCachedStager(t *testing.T) *CachedRepositoryStager {
	t.Helper()
	c := NewCachedRepositoryStager(time.Hour)
	c.cacheRoot = t.TempDir()
	return c
}

func TestCachedRepositoryStager_StageClonesOnFirstCall(t *testing.T) {
	repo := initBareableRepo(t)
	c := newTestCachedStager(t)

	src := &source.Source{Location: repo}
	target := filepath.Join(t.TempDir(), "work")

	artifact, err := c.Stage(context.Background(), src, target)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(target, "README"))

	changed, err := artifact.ChangedFromSource(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCachedRepositoryStager_SecondStageReusesCache(t *testing.T) {
	repo := initBareableRepo(t)
	c := newTestCachedStager(t)

	src := &source.Source{Location: repo}
	targetA := filepath.Join(t.TempDir(), "work-a")
	targetB := filepath.Join(t.TempDir(), "work-b")

	_, err := c.Stage(context.Background(), src, targetA)
	require.NoError(t, err)

	// The TTL window covers this second call, so it should be served
	// from the shared cache directory without another clone.
	_, err = c.Stage(context.Background(), src, targetB)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(targetB, "README"))
}

func TestCachedRepositoryStager_ConcurrentStageOfSameRepoIsSerialised(t *testing.T) {
	repo := initBareableRepo(t)
	c := newTestCachedStager(t)
	src := &source.Source{Location: repo}

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		i := i
		go func() {
			target := filepath.Join(t.TempDir(), "work", string(rune('a'+i)))
			_, err := c.Stage(context.Background(), src, target)
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"https://github.com/Org/Repo.git": "https-github-com-org-repo-git",
		"git@github.com:Org/Repo.git":     "git-github-com-org-repo-git",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in))
	}
}
