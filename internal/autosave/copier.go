package autosave

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/bamsammich/savewarden/internal/stats"
)

// Copier copies the source tree into the destination directory.
type Copier interface {
	Copy(ctx context.Context, src, dst string) error
}

// CopierFunc adapts a function to Copier.
type CopierFunc func(ctx context.Context, src, dst string) error

func (f CopierFunc) Copy(ctx context.Context, src, dst string) error {
	return f(ctx, src, dst)
}

// StatsReporter is implemented by copiers that can describe their last run.
type StatsReporter interface {
	LastStats() stats.Snapshot
}

// ToolError reports a copy tool that ran but exited non-zero.
type ToolError struct {
	Path   string
	Code   int
	Output string
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with status %d", e.Path, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Path, e.Code, e.Output)
}

// ReplicateArgs returns the copy tool's replicate-mode argument list.
func ReplicateArgs(src, dst string) []string {
	return []string{"-r", "-o", dst, "-f", src}
}

// maxToolOutput bounds how much tool output is kept in a ToolError.
const maxToolOutput = 512

// ToolCopier runs an external replicate tool and waits for it to exit.
// A non-zero exit status is a failure.
type ToolCopier struct {
	Path string
	// Args builds the argument list; nil means ReplicateArgs.
	Args func(src, dst string) []string
}

func (t ToolCopier) Copy(ctx context.Context, src, dst string) error {
	if t.Path == "" {
		return ErrNoCopier
	}
	args := ReplicateArgs
	if t.Args != nil {
		args = t.Args
	}

	//nolint:gosec // G204: the tool path is operator configuration
	cmd := exec.CommandContext(ctx, t.Path, args(src, dst)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		output := strings.TrimSpace(out.String())
		if len(output) > maxToolOutput {
			output = output[len(output)-maxToolOutput:]
		}
		return &ToolError{Path: t.Path, Code: exitErr.ExitCode(), Output: output}
	}
	return fmt.Errorf("launching %s: %w", t.Path, err)
}

// ErrorCode extracts a numeric code from a copy error: the tool's exit
// status or the OS errno. It returns 0 for nil and -1 when err carries
// neither. A tool missing from PATH reports ENOENT.
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Code
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if errors.Is(err, exec.ErrNotFound) {
		return int(syscall.ENOENT)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return -1
}
