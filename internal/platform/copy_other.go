//go:build !linux

package platform

import "os"

// CopyFd falls back to read/write on platforms without an in-kernel copy.
func CopyFd(dst, src *os.File, size int64) (CopyResult, error) {
	preallocate(dst, size)
	return copyReadWrite(dst, src)
}
