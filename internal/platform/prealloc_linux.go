//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for fd. Filesystems without fallocate
// support are silently skipped.
func preallocate(fd *os.File, size int64) {
	if size <= 0 {
		return
	}
	//nolint:errcheck,gosec // advisory; fd values are small non-negative integers
	unix.Fallocate(int(fd.Fd()), 0, 0, size)
}
