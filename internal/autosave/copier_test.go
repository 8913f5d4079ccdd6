package autosave

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestToolCopierPassesReplicateArgs(t *testing.T) {
	dst := t.TempDir()
	tool := writeScript(t, `printf '%s\n' "$@" > "$3/args.txt"`)

	err := ToolCopier{Path: tool}.Copy(context.Background(), "/saves/game", dst)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dst, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"-r", "-o", dst, "-f", "/saves/game"}, strings.Fields(string(data)))
}

func TestToolCopierNonZeroExit(t *testing.T) {
	tool := writeScript(t, "echo disk full >&2\nexit 3")

	err := ToolCopier{Path: tool}.Copy(context.Background(), "src", t.TempDir())
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 3, toolErr.Code)
	assert.Equal(t, "disk full", toolErr.Output)
	assert.Equal(t, 3, ErrorCode(err))
}

func TestToolCopierLaunchFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-tool")

	err := ToolCopier{Path: missing}.Copy(context.Background(), "src", "dst")
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.ENOENT))
	assert.Equal(t, int(syscall.ENOENT), ErrorCode(err))
}

func TestToolCopierNotOnPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	err := ToolCopier{Path: "savewarden-replicate-missing"}.Copy(context.Background(), "src", "dst")
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Equal(t, int(syscall.ENOENT), ErrorCode(err))
}

func TestToolCopierCustomArgs(t *testing.T) {
	dst := t.TempDir()
	tool := writeScript(t, `printf '%s\n' "$@" > "$1/args.txt"`)

	cp := ToolCopier{
		Path: tool,
		Args: func(src, dst string) []string { return []string{dst, src} },
	}
	require.NoError(t, cp.Copy(context.Background(), "from", dst))

	data, err := os.ReadFile(filepath.Join(dst, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{dst, "from"}, strings.Fields(string(data)))
}

func TestToolCopierEmptyPath(t *testing.T) {
	assert.ErrorIs(t, ToolCopier{}.Copy(context.Background(), "a", "b"), ErrNoCopier)
}

func TestNewWithToolAndSetTool(t *testing.T) {
	dst := t.TempDir()
	tool := writeScript(t, `touch "$3/ran"`)

	c := NewWithTool(t.TempDir(), dst, "")
	c.SetTool(tool)
	require.NoError(t, c.Start())
	c.RequestCopy(0)
	waitJobs(t, c, 1)
	require.NoError(t, c.Close())

	assert.FileExists(t, filepath.Join(dst, "ran"))
}
