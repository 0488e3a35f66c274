package kqueue

import (
	"unsafe"

	"github.com/libkqueue/kqueue-go/internal/backend"
	"github.com/libkqueue/kqueue-go/metrics"
)

// rwFilter backs both FilterRead and FilterWrite: one instance per
// direction is installed in the table, each told at construction which
// direction and kind it owns, and forwards registration to the queue's
// back-end. The
// token handed to the back-end is the knote's own address, so an
// Activation can be mapped straight back to its knote without scanning
// the index (spec §4.5: the back-end is opaque to everything except the
// filter that owns the registration).
type rwFilter struct {
	q     *Kqueue
	want  backend.Want
	kind  FilterKind
}

type rwState struct {
	ready bool
	hup   bool
	err   bool
	n     int64
}

func newRWFilter(q *Kqueue, kind FilterKind, want backend.Want) *rwFilter {
	return &rwFilter{q: q, want: want, kind: kind}
}

func (f *rwFilter) Create(kn *Knote) error {
	kn.SetState(&rwState{})
	token := uintptr(unsafe.Pointer(kn))
	if err := f.q.back.Register(int(kn.Ident()), f.want, token); err != nil {
		return ErrFault
	}
	return nil
}

func (f *rwFilter) Modify(kn *Knote, change *Event) error {
	token := uintptr(unsafe.Pointer(kn))
	if err := f.q.back.Modify(int(kn.Ident()), f.want, token); err != nil {
		return ErrFault
	}
	return nil
}

func (f *rwFilter) Enable(kn *Knote) error {
	if err := f.Modify(kn, nil); err == nil {
		return nil
	}
	// Disable deregistered the fd, so register it afresh.
	token := uintptr(unsafe.Pointer(kn))
	if err := f.q.back.Register(int(kn.Ident()), f.want, token); err != nil {
		return ErrFault
	}
	return nil
}

func (f *rwFilter) Disable(kn *Knote) error {
	return f.q.back.Deregister(int(kn.Ident()))
}

func (f *rwFilter) Delete(kn *Knote) error {
	_ = f.q.back.Deregister(int(kn.Ident()))
	return nil
}

// markActivation records a backend Activation against the knote it names.
// Called by the dispatch engine right after backend.Copyout, before any
// filter's Copyout hook runs.
func (f *rwFilter) markActivation(act backend.Activation) {
	kn := (*Knote)(unsafe.Pointer(act.Token))
	if kn == nil || kn.Deleted() {
		return
	}
	st, ok := kn.State().(*rwState)
	if !ok {
		return
	}
	kn.mu.Lock()
	st.ready = true
	st.hup = act.Hup
	st.err = act.Err
	if st.n == 0 {
		st.n = 1 // portable minimum: "at least one unit of readiness"
	}
	kn.mu.Unlock()
}

func (f *rwFilter) Copyout(out []Event, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	n := 0
	idx := f.q.table.mustIndex(f.kind)
	var toDelete []*Knote
	idx.each(func(kn *Knote) {
		if n >= capacity || kn.Deleted() || !kn.Enabled() {
			return
		}
		st, ok := kn.State().(*rwState)
		if !ok || !st.ready {
			return
		}
		ev := kn.Event()
		ev.Data = st.n
		if st.hup {
			ev.Flags |= FlagEOF
		}
		if st.err {
			ev.Flags |= FlagError
		}
		out[n] = ev
		n++

		st.ready = false
		kev := kn.Event()
		switch {
		case kev.Flags&FlagOneshot != 0:
			toDelete = append(toDelete, kn)
		case kev.Flags&FlagDispatch != 0:
			kn.setEnabled(false)
			_ = f.Disable(kn)
		case kev.Flags&FlagClear != 0:
			st.n = 0
		}
	})
	for _, kn := range toDelete {
		_ = f.Delete(kn)
		idx.remove(kn)
		kn.markDeleted()
	}
	if n > 0 {
		if f.kind == FilterWrite {
			metrics.Add(metrics.WriteDeliveries, uint64(n))
		} else {
			metrics.Add(metrics.ReadDeliveries, uint64(n))
		}
	}
	return n, nil
}
