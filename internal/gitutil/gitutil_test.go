package gitutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitLocationToRaw(t *testing.T) {
	cases := []struct {
		name    string
		repoURL string
		target  string
		file    string
		subdir  string
		want    string
	}{
		{
			name:    "github_root",
			repoURL: "https://github.com/CWorthy-ocean/C-Star.git",
			target:  "main",
			file:    "config.yaml",
			want:    "https://raw.githubusercontent.com/CWorthy-ocean/C-Star/main/config.yaml",
		},
		{
			name:    "github_subdir",
			repoURL: "https://github.com/CWorthy-ocean/C-Star",
			target:  "v1.0.0",
			file:    "roms.in",
			subdir:  "input/",
			want:    "https://raw.githubusercontent.com/CWorthy-ocean/C-Star/v1.0.0/input/roms.in",
		},
		{
			name:    "gitlab",
			repoURL: "https://gitlab.com/group/project.git",
			target:  "main",
			file:    "f.txt",
			want:    "https://gitlab.com/group/project/-/raw/main/f.txt",
		},
		{
			name:    "bitbucket",
			repoURL: "https://bitbucket.org/team/repo",
			target:  "main",
			file:    "f.txt",
			want:    "https://bitbucket.org/team/repo/raw/main/f.txt",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GitLocationToRaw(tc.repoURL, tc.target, tc.file, tc.subdir)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGitLocationToRaw_UnrecognisedHost(t *testing.T) {
	_, err := GitLocationToRaw("https://example.com/a/b.git", "main", "f.txt", "")
	assert.Error(t, err)
}

func TestGitLocationToRaw_NonHTTPScheme(t *testing.T) {
	_, err := GitLocationToRaw("/local/path/repo.git", "main", "f.txt", "")
	assert.Error(t, err)
}

// requireGit skips the test if no git binary is available, since these
// tests exercise real local repositories rather than mocking gitutil's
// subprocess calls.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func initLocalRepo(t *testing.T) string {
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

func TestGetRepoHeadHashAndIsDirty(t *testing.T) {
	repo := initLocalRepo(t)
	ctx := context.Background()

	head, err := GetRepoHeadHash(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, head, 40)

	dirty, err := IsDirty(ctx, repo)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "README"), []byte("changed\n"), 0o644))
	dirty, err = IsDirty(ctx, repo)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestCloneAndCheckout(t *testing.T) {
	repo := initLocalRepo(t)
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "clone")

	require.NoError(t, CloneAndCheckout(ctx, repo, dest, ""))
	head, err := GetRepoHeadHash(ctx, dest)
	require.NoError(t, err)

	origHead, err := GetRepoHeadHash(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, origHead, head)
}

func TestResetHard(t *testing.T) {
	repo := initLocalRepo(t)
	ctx := context.Background()

	origHead, err := GetRepoHeadHash(ctx, repo)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "README"), []byte("dirty\n"), 0o644))
	dirty, err := IsDirty(ctx, repo)
	require.NoError(t, err)
	require.True(t, dirty)

	require.NoError(t, ResetHard(ctx, repo, origHead))
	dirty, err = IsDirty(ctx, repo)
	require.NoError(t, err)
	assert.False(t, dirty)
}
