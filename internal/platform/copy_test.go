package platform

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRandom(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o640))
	return data
}

func TestCopyFile(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 17},
		{"buffer_boundary", bufferSize},
		{"multi_buffer", bufferSize*2 + 123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "src.sav")
			dst := filepath.Join(dir, "dst.sav")
			want := writeRandom(t, src, tt.size)

			result, err := CopyFile(src, dst)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.size), result.BytesWritten)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(want, got), "content mismatch")

			info, err := os.Stat(dst)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
		})
	}
}

func TestCopyFileTruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("much longer old content"), 0o644))

	_, err := CopyFile(src, dst)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestCopyFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))

	_, err = CopyFile(dir, filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}

func TestCopyReadWrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	want := writeRandom(t, src, bufferSize+7)

	srcFd, err := os.Open(src)
	require.NoError(t, err)
	defer srcFd.Close()

	dstFd, err := os.Create(filepath.Join(dir, "dst"))
	require.NoError(t, err)
	defer dstFd.Close()

	result, err := copyReadWrite(dstFd, srcFd)
	require.NoError(t, err)
	assert.Equal(t, ReadWrite, result.Method)
	assert.Equal(t, int64(len(want)), result.BytesWritten)

	got, err := os.ReadFile(filepath.Join(dir, "dst"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCopyMethodString(t *testing.T) {
	assert.Equal(t, "read_write", ReadWrite.String())
	assert.Equal(t, "copy_file_range", CopyFileRange.String())
	assert.Equal(t, "sendfile", Sendfile.String())
	assert.Equal(t, "unknown", CopyMethod(99).String())
}
