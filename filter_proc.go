package kqueue

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/libkqueue/kqueue-go/metrics"
)

// procFilter implements FilterProc: ident is a pid. Only NOTE_EXIT is
// delivered reliably in a portable way, by polling process liveness;
// NOTE_FORK/NOTE_EXEC require kernel-assisted notification this
// implementation does not have a portable source for, so a knote
// requesting only those bits never fires (documented limitation).
type procFilter struct {
	queue        *Kqueue
	pollInterval time.Duration
}

type procState struct {
	mu      sync.Mutex
	stop    chan struct{}
	ready   bool
	reason  Fflags
	stopped bool
}

func newProcFilter(q *Kqueue) *procFilter {
	return &procFilter{queue: q, pollInterval: 50 * time.Millisecond}
}

func (f *procFilter) Create(kn *Knote) error {
	kev := kn.Event()
	if kev.Fflags&NoteExit == 0 {
		// Only exit notification is supported; still install empty state
		// so Delete/Disable are safe no-ops.
		kn.SetState(&procState{})
		return nil
	}
	st := &procState{stop: make(chan struct{})}
	kn.SetState(st)
	go f.watch(kn, st, int(kev.Ident))
	return nil
}

func (f *procFilter) watch(kn *Knote, st *procState, pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			if proc.Signal(syscall.Signal(0)) != nil {
				st.mu.Lock()
				if st.stopped {
					st.mu.Unlock()
					return
				}
				st.ready = true
				st.reason = NoteExit
				st.mu.Unlock()
				_ = f.queue.back.Wake()
				return
			}
		}
	}
}

func (f *procFilter) Modify(kn *Knote, change *Event) error { return nil }
func (f *procFilter) Enable(kn *Knote) error                { return nil }
func (f *procFilter) Disable(kn *Knote) error               { return nil }

func (f *procFilter) Delete(kn *Knote) error {
	st, ok := kn.State().(*procState)
	if !ok || st.stop == nil {
		return nil
	}
	st.mu.Lock()
	if !st.stopped {
		st.stopped = true
		close(st.stop)
	}
	st.mu.Unlock()
	return nil
}

func (f *procFilter) Copyout(out []Event, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	n := 0
	idx := f.queue.table.mustIndex(FilterProc)
	var toDelete []*Knote
	idx.each(func(kn *Knote) {
		if n >= capacity || kn.Deleted() || !kn.Enabled() {
			return
		}
		st, ok := kn.State().(*procState)
		if !ok {
			return
		}
		st.mu.Lock()
		ready, reason := st.ready, st.reason
		st.ready = false
		st.mu.Unlock()
		if !ready {
			return
		}
		ev := kn.Event()
		ev.Fflags = reason
		out[n] = ev
		n++
		// A process only exits once; always auto-delete regardless of flags.
		toDelete = append(toDelete, kn)
	})
	for _, kn := range toDelete {
		_ = f.Delete(kn)
		idx.remove(kn)
		kn.markDeleted()
	}
	if n > 0 {
		metrics.Add(metrics.ProcDeliveries, uint64(n))
	}
	return n, nil
}
