//go:build linux

package platform

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestIsFallbackErr(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{unix.ENOSYS, true},
		{unix.EXDEV, true},
		{unix.EINVAL, true},
		{unix.EOPNOTSUPP, true},
		{fmt.Errorf("copy_file_range: %w", unix.EXDEV), true},
		{&os.SyscallError{Syscall: "sendfile", Err: unix.EOPNOTSUPP}, true},
		{unix.EIO, false},
		{unix.ENOSPC, false},
		{os.ErrNotExist, false},
		{nil, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, isFallbackErr(tt.err))
		})
	}
}
