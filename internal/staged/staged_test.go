package staged

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStagedFile_ChangedFromSource_Unmodified(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.txt", "hello")

	f, err := NewStagedFile(nil, path, "", nil)
	require.NoError(t, err)

	changed, err := f.ChangedFromSource(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStagedFile_ChangedFromSource_ContentChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.txt", "hello")

	f, err := NewStagedFile(nil, path, "", nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("goodbye, much longer"), 0o644))
	changed, err := f.ChangedFromSource(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestStagedFile_ChangedFromSource_Missing(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.txt", "hello")

	f, err := NewStagedFile(nil, path, "", nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	changed, err := f.ChangedFromSource(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestStagedFile_PresetSHA256Skipped(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.txt", "hello")

	f, err := NewStagedFile(nil, path, "DEADBEEF", nil)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", f.sha256)
}

func TestStagedFile_Reset_NoOpWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.txt", "hello")

	restageCalled := false
	f, err := NewStagedFile(nil, path, "", func(ctx context.Context) (string, error) {
		restageCalled = true
		return path, nil
	})
	require.NoError(t, err)

	require.NoError(t, f.Reset(context.Background()))
	assert.False(t, restageCalled)
}

func TestStagedFile_Reset_RestagesWhenChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.txt", "hello")

	restageCalled := false
	f, err := NewStagedFile(nil, path, "", func(ctx context.Context) (string, error) {
		restageCalled = true
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
		return path, nil
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	require.NoError(t, f.Reset(context.Background()))
	assert.True(t, restageCalled)

	changed, err := f.ChangedFromSource(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStagedFile_Unstage(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.txt", "hello")

	f, err := NewStagedFile(nil, path, "", nil)
	require.NoError(t, err)

	require.NoError(t, f.Unstage())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Unstage is idempotent: a second call on an already-removed file
	// is not an error.
	assert.NoError(t, f.Unstage())
}

func TestNewStagedFile_MissingPath(t *testing.T) {
	_, err := NewStagedFile(nil, filepath.Join(t.TempDir(), "missing"), "", nil)
	assert.Error(t, err)
}

func TestCollection_ChangedFromSourceIsDisjunction(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.txt", "one")
	b := writeFixture(t, dir, "b.txt", "two")

	fa, err := NewStagedFile(nil, a, "", nil)
	require.NoError(t, err)
	fb, err := NewStagedFile(nil, b, "", nil)
	require.NoError(t, err)

	coll, err := NewCollection(dir, []Artifact{fa, fb})
	require.NoError(t, err)

	changed, err := coll.ChangedFromSource(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(b, []byte("two, but different now"), 0o644))
	changed, err = coll.ChangedFromSource(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestNewCollection_RejectsMismatchedParent(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	a := writeFixture(t, dir, "a.txt", "one")

	fa, err := NewStagedFile(nil, a, "", nil)
	require.NoError(t, err)

	_, err = NewCollection(other, []Artifact{fa})
	assert.Error(t, err)
}

func TestCollection_UnstageFansOut(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.txt", "one")
	b := writeFixture(t, dir, "b.txt", "two")

	fa, err := NewStagedFile(nil, a, "", nil)
	require.NoError(t, err)
	fb, err := NewStagedFile(nil, b, "", nil)
	require.NoError(t, err)

	coll, err := NewCollection(dir, []Artifact{fa, fb})
	require.NoError(t, err)

	require.NoError(t, coll.Unstage())
	_, errA := os.Stat(a)
	_, errB := os.Stat(b)
	assert.True(t, os.IsNotExist(errA))
	assert.True(t, os.IsNotExist(errB))
}
