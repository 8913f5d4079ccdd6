package ui

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectNonTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, Stream{}, Inspect(f))
	assert.Equal(t, Stream{}, Inspect(nil))
}

func TestColorAllowed(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	assert.True(t, colorAllowed())

	t.Setenv("NO_COLOR", "1")
	assert.False(t, colorAllowed())
}
