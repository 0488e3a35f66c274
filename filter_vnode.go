package kqueue

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/libkqueue/kqueue-go/metrics"
)

// vnodeFilter implements FilterVnode: ident is an open file descriptor,
// resolved to a path (fdPath, platform-specific) and watched through
// fsnotify, the same library the rest of the Go ecosystem reaches for
// when it needs portable filesystem notification.
type vnodeFilter struct {
	q       *Kqueue
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	paths   map[uint64]string // ident -> watched path, for Delete and dispatch
}

type vnodeState struct {
	mu     sync.Mutex
	ready  bool
	fflags Fflags
}

func newVnodeFilter(q *Kqueue) (*vnodeFilter, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	f := &vnodeFilter{q: q, watcher: w, paths: make(map[uint64]string)}
	go f.run()
	return f, nil
}

func (f *vnodeFilter) run() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.dispatch(ev)
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *vnodeFilter) dispatch(ev fsnotify.Event) {
	f.mu.Lock()
	var ident uint64
	var found bool
	for id, p := range f.paths {
		if p == ev.Name {
			ident, found = id, true
			break
		}
	}
	f.mu.Unlock()
	if !found {
		return
	}
	kn := f.q.table.mustIndex(FilterVnode).lookup(ident)
	if kn == nil || kn.Deleted() {
		return
	}
	bits := translateOp(ev.Op)
	if bits == 0 {
		return
	}
	st, ok := kn.State().(*vnodeState)
	if !ok {
		return
	}
	st.mu.Lock()
	st.ready = true
	st.fflags |= bits
	st.mu.Unlock()
	_ = f.q.back.Wake()
}

func translateOp(op fsnotify.Op) Fflags {
	var bits Fflags
	if op&fsnotify.Write != 0 {
		bits |= NoteWrite
	}
	if op&fsnotify.Remove != 0 {
		bits |= NoteDelete
	}
	if op&fsnotify.Rename != 0 {
		bits |= NoteRename
	}
	if op&fsnotify.Chmod != 0 {
		bits |= NoteAttrib
	}
	if op&fsnotify.Create != 0 {
		bits |= NoteExtend
	}
	return bits
}

func (f *vnodeFilter) Create(kn *Knote) error {
	path, err := fdPath(int(kn.Ident()))
	if err != nil {
		return ErrFault
	}
	if err := f.watcher.Add(path); err != nil {
		return ErrFault
	}
	f.mu.Lock()
	f.paths[kn.Ident()] = path
	f.mu.Unlock()
	kn.SetState(&vnodeState{})
	return nil
}

func (f *vnodeFilter) Modify(kn *Knote, change *Event) error { return nil }
func (f *vnodeFilter) Enable(kn *Knote) error                { return nil }
func (f *vnodeFilter) Disable(kn *Knote) error               { return nil }

func (f *vnodeFilter) Delete(kn *Knote) error {
	f.mu.Lock()
	path, ok := f.paths[kn.Ident()]
	delete(f.paths, kn.Ident())
	f.mu.Unlock()
	if ok {
		_ = f.watcher.Remove(path)
	}
	return nil
}

func (f *vnodeFilter) Copyout(out []Event, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	n := 0
	idx := f.q.table.mustIndex(FilterVnode)
	var toDelete []*Knote
	idx.each(func(kn *Knote) {
		if n >= capacity || kn.Deleted() || !kn.Enabled() {
			return
		}
		st, ok := kn.State().(*vnodeState)
		if !ok {
			return
		}
		st.mu.Lock()
		ready, fflags := st.ready, st.fflags
		st.ready, st.fflags = false, 0
		st.mu.Unlock()
		if !ready {
			return
		}
		ev := kn.Event()
		ev.Fflags = fflags
		out[n] = ev
		n++

		switch {
		case ev.Flags&FlagOneshot != 0:
			toDelete = append(toDelete, kn)
		case ev.Flags&FlagDispatch != 0:
			kn.setEnabled(false)
		}
	})
	for _, kn := range toDelete {
		_ = f.Delete(kn)
		idx.remove(kn)
		kn.markDeleted()
	}
	if n > 0 {
		metrics.Add(metrics.VnodeDeliveries, uint64(n))
	}
	return n, nil
}
