//go:build freebsd || dragonfly || darwin || netbsd || openbsd
// +build freebsd dragonfly darwin netbsd openbsd

package backend

import (
	"os"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const defaultKevent = 64

// newPlatformBackend on BSD/Darwin delegates directly to the host's
// kqueue(2)/kevent(2) rather than reimplementing readiness polling: the
// native facility already matches the wire format this package exposes,
// so the only translation needed is Want <-> EVFILT_READ/EVFILT_WRITE and
// the wake primitive, implemented with EVFILT_USER exactly as a userland
// caller of this host's own kqueue would.
func newPlatformBackend() (Backend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("fcntl", err)
	}
	if _, err := unix.Kevent(fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(os.NewSyscallError("kevent", err), "register wake filter")
	}
	return &kqueueBackend{
		fd:     fd,
		events: make([]unix.Kevent_t, defaultKevent),
	}, nil
}

type kqueueBackend struct {
	fd     int
	events []unix.Kevent_t
	ready  []unix.Kevent_t
	cursor int
}

func storeToken(kev *unix.Kevent_t, token uintptr) {
	*(*uintptr)(unsafe.Pointer(&kev.Udata)) = token
}

func loadToken(kev *unix.Kevent_t) uintptr {
	return *(*uintptr)(unsafe.Pointer(&kev.Udata))
}

func (k *kqueueBackend) change(filter int16, fd int, flags uint16, token uintptr) error {
	kev := unix.Kevent_t{
		Ident:  keventIdent(fd),
		Filter: filter,
		Flags:  flags,
	}
	storeToken(&kev, token)
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{kev}, nil, nil)
	if err != nil {
		return os.NewSyscallError("kevent", err)
	}
	return nil
}

func (k *kqueueBackend) Register(fd int, want Want, token uintptr) error {
	return k.Modify(fd, want, token)
}

func (k *kqueueBackend) Modify(fd int, want Want, token uintptr) error {
	if want&Read != 0 {
		if err := k.change(unix.EVFILT_READ, fd, unix.EV_ADD|unix.EV_ENABLE|unix.EV_RECEIPT, token); err != nil {
			return err
		}
	} else {
		_ = k.change(unix.EVFILT_READ, fd, unix.EV_DELETE, token)
	}
	if want&Write != 0 {
		if err := k.change(unix.EVFILT_WRITE, fd, unix.EV_ADD|unix.EV_ENABLE|unix.EV_RECEIPT, token); err != nil {
			return err
		}
	} else {
		_ = k.change(unix.EVFILT_WRITE, fd, unix.EV_DELETE, token)
	}
	return nil
}

func (k *kqueueBackend) Deregister(fd int) error {
	_ = k.change(unix.EVFILT_READ, fd, unix.EV_DELETE, 0)
	_ = k.change(unix.EVFILT_WRITE, fd, unix.EV_DELETE, 0)
	return nil
}

func (k *kqueueBackend) Wait(timeout *time.Duration) (int, error) {
	var ts *unix.Timespec
	if timeout != nil {
		sec := int64(*timeout / time.Second)
		nsec := int64(*timeout % time.Second)
		t := unix.NsecToTimespec((sec * int64(time.Second) + nsec))
		ts = &t
	}
	n, err := unix.Kevent(k.fd, nil, k.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return -1, errors.Wrap(os.NewSyscallError("kevent", err), "backend wait failed")
	}
	woken := false
	kept := k.events[:0]
	for i := 0; i < n; i++ {
		ev := k.events[i]
		if ev.Ident == 0 && ev.Filter == unix.EVFILT_USER {
			woken = true
			continue
		}
		kept = append(kept, ev)
	}
	k.ready = kept
	k.cursor = 0
	if len(kept) == 0 && woken {
		return 1, nil
	}
	return len(kept), nil
}

func (k *kqueueBackend) Copyout(max int) ([]Activation, error) {
	if max <= 0 || k.cursor >= len(k.ready) {
		return nil, nil
	}
	end := k.cursor + max
	if end > len(k.ready) {
		end = len(k.ready)
	}
	out := make([]Activation, 0, end-k.cursor)
	for _, ev := range k.ready[k.cursor:end] {
		a := Activation{Token: loadToken(&ev)}
		switch ev.Filter {
		case unix.EVFILT_READ:
			a.Ready |= Read
		case unix.EVFILT_WRITE:
			a.Ready |= Write
		}
		if ev.Flags&unix.EV_EOF != 0 {
			a.Hup = true
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			a.Err = true
		}
		out = append(out, a)
	}
	k.cursor = end
	return out, nil
}

func (k *kqueueBackend) Wake() error {
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	if err != nil && err != unix.EINTR && err != unix.EAGAIN {
		return os.NewSyscallError("kevent", err)
	}
	return nil
}

func (k *kqueueBackend) Close() error {
	return os.NewSyscallError("close", unix.Close(k.fd))
}
