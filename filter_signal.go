package kqueue

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/libkqueue/kqueue-go/metrics"
)

// signalFilter implements FilterSignal: ident is a signal number. Delivery
// runs through os/signal the way every Go process already intercepts
// signals; a dedicated channel per knote is simplest to tear down safely
// and matches the one-goroutine-per-source shape of the other software
// filters.
type signalFilter struct {
	q *Kqueue
}

type signalState struct {
	mu      sync.Mutex
	ch      chan os.Signal
	count   int64
	ready   bool
	stopped bool
}

func newSignalFilter(q *Kqueue) *signalFilter {
	return &signalFilter{q: q}
}

func (f *signalFilter) Create(kn *Knote) error {
	sig := syscall.Signal(kn.Ident())
	st := &signalState{ch: make(chan os.Signal, 1)}
	kn.SetState(st)
	signal.Notify(st.ch, sig)
	go f.watch(kn, st)
	return nil
}

func (f *signalFilter) watch(kn *Knote, st *signalState) {
	for range st.ch {
		st.mu.Lock()
		if st.stopped {
			st.mu.Unlock()
			return
		}
		st.count++
		st.ready = true
		st.mu.Unlock()
		_ = f.q.back.Wake()
	}
}

func (f *signalFilter) Modify(kn *Knote, change *Event) error { return nil }
func (f *signalFilter) Enable(kn *Knote) error                { return nil }
func (f *signalFilter) Disable(kn *Knote) error               { return nil }

func (f *signalFilter) Delete(kn *Knote) error {
	st, ok := kn.State().(*signalState)
	if !ok {
		return nil
	}
	signal.Stop(st.ch)
	st.mu.Lock()
	st.stopped = true
	st.mu.Unlock()
	close(st.ch)
	return nil
}

func (f *signalFilter) Copyout(out []Event, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	n := 0
	idx := f.q.table.mustIndex(FilterSignal)
	var toDelete []*Knote
	idx.each(func(kn *Knote) {
		if n >= capacity || kn.Deleted() || !kn.Enabled() {
			return
		}
		st, ok := kn.State().(*signalState)
		if !ok {
			return
		}
		st.mu.Lock()
		ready, count := st.ready, st.count
		st.ready, st.count = false, 0
		st.mu.Unlock()
		if !ready {
			return
		}
		ev := kn.Event()
		ev.Data = count
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
		metrics.Add(metrics.SignalDeliveries, uint64(n))
	}
	return n, nil
}
