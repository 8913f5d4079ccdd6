package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	h1, err := HashFile(write("a.sav", "hello world"))
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, err := HashFile(write("b.sav", "hello world"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := HashFile(write("c.sav", "different"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	// BLAKE3 of the empty input.
	empty, err := HashFile(write("empty.sav", ""))
	require.NoError(t, err)
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", empty)
}

func TestHashFileNotExist(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
