package sink

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	out := Stream(&buf)

	_, err := io.WriteString(out, "app\n")
	require.NoError(t, err)
	require.NoError(t, out.Commit())
	assert.Equal(t, "app\n", buf.String())
}

func TestFile_CommitReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	f, err := CreateFile(path)
	require.NoError(t, err)
	_, err = io.WriteString(f, `{"schemas":[]}`)
	require.NoError(t, err)

	// Nothing visible before Commit.
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	require.NoError(t, f.Commit())
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"schemas":[]}`, string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFile_AbortLeavesTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	f, err := CreateFile(path)
	require.NoError(t, err)
	_, err = io.WriteString(f, "partial")
	require.NoError(t, err)
	require.NoError(t, f.Abort())
	require.NoError(t, f.Commit()) // no-op after Abort

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateFile_MissingDir(t *testing.T) {
	_, err := CreateFile(filepath.Join(t.TempDir(), "nope", "out.json"))
	assert.Error(t, err)
}

type recordingOutput struct {
	bytes.Buffer
	committed, aborted bool
}

func (r *recordingOutput) Commit() error { r.committed = true; return nil }
func (r *recordingOutput) Abort() error  { r.aborted = true; return nil }

func TestSpool_Commit(t *testing.T) {
	dst := &recordingOutput{}
	s, err := NewSpool(dst, t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = io.WriteString(s, `{"schemas":`)
	require.NoError(t, err)
	assert.Zero(t, dst.Len())

	_, err = io.WriteString(s, "[]}\n")
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	assert.True(t, dst.committed)
	assert.Equal(t, "{\"schemas\":[]}\n", dst.String())
	assert.Equal(t, int64(15), s.Size())

	data, err := io.ReadAll(s.Open())
	require.NoError(t, err)
	assert.Equal(t, dst.String(), string(data))
}

func TestSpool_AbortSendsNothing(t *testing.T) {
	dst := &recordingOutput{}
	s, err := NewSpool(dst, t.TempDir())
	require.NoError(t, err)

	_, err = io.WriteString(s, `{"schemas":[{"name":"app"`)
	require.NoError(t, err)
	require.NoError(t, s.Abort())
	require.NoError(t, s.Commit())

	assert.True(t, dst.aborted)
	assert.False(t, dst.committed)
	assert.Zero(t, dst.Len())
	require.NoError(t, s.Close())
}

func TestSpool_CloseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSpool(Stream(io.Discard), dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type brokenWriter struct{ aborted bool }

func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }
func (b *brokenWriter) Commit() error             { return nil }
func (b *brokenWriter) Abort() error              { b.aborted = true; return nil }

func TestSpool_CopyFailureAbortsDestination(t *testing.T) {
	dst := &brokenWriter{}
	s, err := NewSpool(dst, t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = io.WriteString(s, "data")
	require.NoError(t, err)

	err = s.Commit()
	require.Error(t, err)
	assert.True(t, dst.aborted)
}
