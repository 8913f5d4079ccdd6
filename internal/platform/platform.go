// Package platform copies file contents with the fastest mechanism the OS
// offers, falling back to a buffered read/write loop.
package platform

import (
	"fmt"
	"os"
)

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota
	CopyFileRange            // Linux copy_file_range(2)
	Sendfile                 // Linux sendfile(2)
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	default:
		return "unknown"
	}
}

// CopyResult reports the outcome of a copy operation.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFile copies the regular file at src to dst, creating or truncating
// dst. The destination keeps the source permission bits.
func CopyFile(src, dst string) (CopyResult, error) {
	srcFd, err := os.Open(src)
	if err != nil {
		return CopyResult{}, err
	}
	defer srcFd.Close()

	info, err := srcFd.Stat()
	if err != nil {
		return CopyResult{}, err
	}
	if !info.Mode().IsRegular() {
		return CopyResult{}, fmt.Errorf("%s: not a regular file", src)
	}

	dstFd, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return CopyResult{}, err
	}

	result, err := CopyFd(dstFd, srcFd, info.Size())
	if closeErr := dstFd.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	return result, err
}
