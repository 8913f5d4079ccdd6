//go:build !unix

package main

import "os"

// alive reports whether pid names a live process. Without signal 0 the
// best check is whether the process can be found at all.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
