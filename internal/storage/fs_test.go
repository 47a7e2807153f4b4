package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	p, err := SafeJoin(root, "foo/pic.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "foo", "pic.png"), p)

	_, err = SafeJoin(root, "../outside.png")
	assert.ErrorIs(t, err, ErrPathEscapesRoot)

	_, err = SafeJoin(root, "/etc/passwd")
	assert.Error(t, err)
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	assert.True(t, Within(root, filepath.Join(root, "a", "b")))
	assert.True(t, Within(root, root))
	assert.False(t, Within(root, filepath.Dir(root)))
	assert.False(t, Within(root, root+"-sibling"))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")

	require.NoError(t, WriteFileAtomic(path, []byte("{}"), 0o644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestCopyFileIfChanged(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "out", "dst.png")
	require.NoError(t, os.WriteFile(src, []byte("png-bytes"), 0o644))

	copied, err := CopyFileIfChanged(src, dst)
	require.NoError(t, err)
	assert.True(t, copied)

	copied, err = CopyFileIfChanged(src, dst)
	require.NoError(t, err)
	assert.False(t, copied)

	require.NoError(t, os.WriteFile(src, []byte("new-bytes"), 0o644))
	copied, err = CopyFileIfChanged(src, dst)
	require.NoError(t, err)
	assert.True(t, copied)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new-bytes", string(data))
}

func TestCopyFileIfChanged_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyFileIfChanged(filepath.Join(dir, "nope"), filepath.Join(dir, "x"))
	assert.Error(t, err)
}
