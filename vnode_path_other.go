//go:build !linux

package kqueue

// fdPath has no portable fd-to-path resolution off Linux; VNODE
// registration reports fault there rather than guessing.
func fdPath(fd int) (string, error) {
	return "", ErrFault
}
