//go:build unix

package main

import (
	"errors"

	"golang.org/x/sys/unix"
)

// alive reports whether pid names a live process.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
