//go:build linux

package backend

import (
	"os"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/libkqueue/kqueue-go/internal/backend/event"
)

const (
	rflags            = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLPRI
	wflags            = unix.EPOLLOUT | unix.EPOLLHUP | unix.EPOLLERR
	defaultEventCount = 64
)

func newPlatformBackend() (Backend, error) {
	// Provide EPOLL_CLOEXEC flag for consistency with the Go runtime's own epoll use.
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	ep := &epollBackend{
		fd:     fd,
		wakeFD: efd,
		events: make([]event.EpollEvent, defaultEventCount),
		wakeR:  make([]byte, 8),
	}
	if err := ep.ctl(unix.EPOLL_CTL_ADD, efd, unix.EPOLLIN, 0); err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(efd)
		return nil, err
	}
	return ep, nil
}

type epollBackend struct {
	fd       int
	wakeFD   int
	events   []event.EpollEvent
	wakeR    []byte
	ready    []event.EpollEvent
	cursor   int
	readyN   int
}

func (ep *epollBackend) ctl(op int, fd int, events uint32, token uintptr) error {
	var evt event.EpollEvent
	evt.Events = events
	*(*uintptr)(unsafe.Pointer(&evt.Data)) = token
	if err := unix.EpollCtl(ep.fd, op, fd, (*unix.EpollEvent)(unsafe.Pointer(&evt))); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func wantToEpoll(want Want) uint32 {
	var e uint32
	if want&Read != 0 {
		e |= rflags
	}
	if want&Write != 0 {
		e |= wflags
	}
	return e
}

func (ep *epollBackend) Register(fd int, want Want, token uintptr) error {
	return ep.ctl(unix.EPOLL_CTL_ADD, fd, wantToEpoll(want), token)
}

func (ep *epollBackend) Modify(fd int, want Want, token uintptr) error {
	return ep.ctl(unix.EPOLL_CTL_MOD, fd, wantToEpoll(want), token)
}

func (ep *epollBackend) Deregister(fd int) error {
	if err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

func (ep *epollBackend) Wait(timeout *time.Duration) (int, error) {
	msec := MillisUntil(timeout)
	n, err := unix.EpollWait(ep.fd, ep.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return -1, errors.Wrap(os.NewSyscallError("epoll_wait", err), "backend wait failed")
	}
	woken := false
	kept := ep.events[:0]
	for i := 0; i < n; i++ {
		evt := ep.events[i]
		if *(*uintptr)(unsafe.Pointer(&evt.Data)) == 0 {
			woken = true
			continue
		}
		kept = append(kept, evt)
	}
	if woken {
		_, _ = unix.Read(ep.wakeFD, ep.wakeR)
	}
	ep.ready = kept
	ep.cursor = 0
	ep.readyN = len(kept)
	if ep.readyN == 0 && woken {
		// A pure wake-up still counts as "something happened" so the
		// engine re-acquires the lock and lets software filters copy out.
		return 1, nil
	}
	return ep.readyN, nil
}

func (ep *epollBackend) Copyout(max int) ([]Activation, error) {
	if max <= 0 || ep.cursor >= len(ep.ready) {
		return nil, nil
	}
	end := ep.cursor + max
	if end > len(ep.ready) {
		end = len(ep.ready)
	}
	out := make([]Activation, 0, end-ep.cursor)
	for _, evt := range ep.ready[ep.cursor:end] {
		a := Activation{Token: *(*uintptr)(unsafe.Pointer(&evt.Data))}
		if evt.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
			a.Ready |= Read
		}
		if evt.Events&unix.EPOLLOUT != 0 {
			a.Ready |= Write
		}
		if evt.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			a.Hup = true
		}
		if evt.Events&unix.EPOLLERR != 0 {
			a.Err = true
		}
		out = append(out, a)
	}
	ep.cursor = end
	return out, nil
}

func (ep *epollBackend) Wake() error {
	for {
		_, err := unix.Write(ep.wakeFD, []byte{1, 0, 0, 0, 0, 0, 0, 0})
		if err != unix.EINTR && err != unix.EAGAIN {
			if err != nil {
				return os.NewSyscallError("write", err)
			}
			return nil
		}
	}
}

func (ep *epollBackend) Close() error {
	if err := unix.Close(ep.wakeFD); err != nil {
		return os.NewSyscallError("close", err)
	}
	if err := unix.Close(ep.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
