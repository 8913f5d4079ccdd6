//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// CopyFd copies size bytes from the start of src to dst, trying
// copy_file_range, then sendfile, then read/write. Cross-device and
// unsupported-filesystem errors fall through to the next method.
func CopyFd(dst, src *os.File, size int64) (CopyResult, error) {
	preallocate(dst, size)

	result, err := copyFileRange(dst, src, size)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}

	result, err = copySendfile(dst, src, size)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}

	return copyReadWrite(dst, src)
}

func copyFileRange(dst, src *os.File, size int64) (CopyResult, error) {
	var roff, woff int64
	var total int64
	for total < size {
		//nolint:gosec // G115: fd values are small non-negative integers
		n, err := unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, int(size-total), 0)
		if err != nil {
			if total > 0 {
				// A partial copy cannot be retried with another method.
				return CopyResult{BytesWritten: total, Method: CopyFileRange}, unwrapFatal(err)
			}
			return CopyResult{}, err
		}
		if n == 0 {
			break
		}
		total += int64(n)
	}
	return CopyResult{BytesWritten: total, Method: CopyFileRange}, nil
}

func copySendfile(dst, src *os.File, size int64) (CopyResult, error) {
	var offset int64
	var total int64
	for total < size {
		//nolint:gosec // G115: fd values are small non-negative integers
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &offset, int(size-total))
		if err != nil {
			if total > 0 {
				return CopyResult{BytesWritten: total, Method: Sendfile}, unwrapFatal(err)
			}
			return CopyResult{}, err
		}
		if n == 0 {
			break
		}
		total += int64(n)
	}
	return CopyResult{BytesWritten: total, Method: Sendfile}, nil
}

// isFallbackErr reports whether err should trigger the next copy strategy.
func isFallbackErr(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.EOPNOTSUPP:
		return true
	}
	return false
}

// errPartialCopy marks an error after some bytes were already written.
var errPartialCopy = errors.New("partial copy")

func unwrapFatal(err error) error {
	return errors.Join(errPartialCopy, err)
}
