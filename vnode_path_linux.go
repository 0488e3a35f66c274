//go:build linux

package kqueue

import (
	"fmt"
	"os"
)

// fdPath resolves the filesystem path backing an open descriptor via the
// /proc/self/fd symlink, the only portable-enough way to go from a raw fd
// to a path on Linux.
func fdPath(fd int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
}
