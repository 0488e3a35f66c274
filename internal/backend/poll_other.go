//go:build unix && !linux && !darwin && !freebsd && !dragonfly && !netbsd && !openbsd
// +build unix,!linux,!darwin,!freebsd,!dragonfly,!netbsd,!openbsd

package backend

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// newPlatformBackend is the portable fallback for unix-like targets without
// a richer readiness multiplexer: poll(2) plus a self-pipe wake primitive,
// the "socket-pair pacer" spec §4.5 calls out informatively.
func newPlatformBackend() (Backend, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, os.NewSyscallError("pipe2", err)
	}
	return &pollBackend{
		wakeR: fds[0],
		wakeW: fds[1],
		want:  make(map[int]Want),
		token: make(map[int]uintptr),
	}, nil
}

type pollBackend struct {
	mu     sync.Mutex
	want   map[int]Want
	token  map[int]uintptr
	wakeR  int
	wakeW  int
	ready  []Activation
	cursor int
}

func (p *pollBackend) Register(fd int, want Want, token uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.want[fd] = want
	p.token[fd] = token
	return nil
}

func (p *pollBackend) Modify(fd int, want Want, token uintptr) error {
	return p.Register(fd, want, token)
}

func (p *pollBackend) Deregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.want, fd)
	delete(p.token, fd)
	return nil
}

func (p *pollBackend) Wait(timeout *time.Duration) (int, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.want)+1)
	fds = append(fds, unix.PollFd{Fd: int32(p.wakeR), Events: unix.POLLIN})
	order := make([]int, 0, len(p.want))
	for fd, w := range p.want {
		var ev int16
		if w&Read != 0 {
			ev |= unix.POLLIN
		}
		if w&Write != 0 {
			ev |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
		order = append(order, fd)
	}
	p.mu.Unlock()

	n, err := unix.Poll(fds, MillisUntil(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return -1, errors.Wrap(os.NewSyscallError("poll", err), "backend wait failed")
	}
	if n == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	woken := false
	out := make([]Activation, 0, n)
	if fds[0].Revents != 0 {
		woken = true
		var buf [64]byte
		for {
			if _, err := unix.Read(p.wakeR, buf[:]); err != nil {
				break
			}
		}
	}
	for i, fd := range order {
		re := fds[i+1].Revents
		if re == 0 {
			continue
		}
		a := Activation{Token: p.token[fd]}
		if re&unix.POLLIN != 0 {
			a.Ready |= Read
		}
		if re&unix.POLLOUT != 0 {
			a.Ready |= Write
		}
		if re&(unix.POLLHUP|unix.POLLRDHUP) != 0 {
			a.Hup = true
		}
		if re&unix.POLLERR != 0 {
			a.Err = true
		}
		out = append(out, a)
	}
	p.ready = out
	p.cursor = 0
	if len(out) == 0 && woken {
		return 1, nil
	}
	return len(out), nil
}

func (p *pollBackend) Copyout(max int) ([]Activation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if max <= 0 || p.cursor >= len(p.ready) {
		return nil, nil
	}
	end := p.cursor + max
	if end > len(p.ready) {
		end = len(p.ready)
	}
	out := append([]Activation(nil), p.ready[p.cursor:end]...)
	p.cursor = end
	return out, nil
}

func (p *pollBackend) Wake() error {
	_, err := unix.Write(p.wakeW, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (p *pollBackend) Close() error {
	_ = unix.Close(p.wakeR)
	return os.NewSyscallError("close", unix.Close(p.wakeW))
}
