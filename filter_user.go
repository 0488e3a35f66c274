package kqueue

import "github.com/libkqueue/kqueue-go/metrics"

// userFilter implements FilterUser: a software-only source with no
// back-end registration at all. A knote fires only when a change carries
// NoteTrigger; NOTE_FFAND/FFOR/FFCOPY/FFNOP
// in Event.Fflags control how the change's Fflags combine into the
// knote's stored application flags (spec §6, USER fflags).
type userFilter struct {
	q *Kqueue
}

type userState struct {
	fflags Fflags
	ready  bool
}

func newUserFilter(q *Kqueue) *userFilter {
	return &userFilter{q: q}
}

func (f *userFilter) Create(kn *Knote) error {
	st := &userState{}
	kn.SetState(st)
	f.applyFflags(st, kn.Event().Fflags)
	return nil
}

func (f *userFilter) Modify(kn *Knote, change *Event) error {
	st, ok := kn.State().(*userState)
	if !ok {
		return ErrFault
	}
	if change != nil {
		f.applyFflags(st, change.Fflags)
	}
	return nil
}

func (f *userFilter) applyFflags(st *userState, in Fflags) {
	ctrl := in & NoteFFCtrlMask
	bits := in &^ NoteFFCtrlMask &^ NoteTrigger
	switch {
	case ctrl&NoteFFAnd != 0:
		st.fflags &= bits
	case ctrl&NoteFFOr != 0:
		st.fflags |= bits
	case ctrl&NoteFFCopy != 0:
		st.fflags = bits
	}
	if in&NoteTrigger != 0 {
		st.ready = true
		_ = f.q.back.Wake()
	}
}

func (f *userFilter) Enable(kn *Knote) error  { return nil }
func (f *userFilter) Disable(kn *Knote) error { return nil }
func (f *userFilter) Delete(kn *Knote) error  { return nil }

func (f *userFilter) Copyout(out []Event, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	n := 0
	idx := f.q.table.mustIndex(FilterUser)
	var toDelete []*Knote
	idx.each(func(kn *Knote) {
		if n >= capacity || kn.Deleted() || !kn.Enabled() {
			return
		}
		st, ok := kn.State().(*userState)
		if !ok || !st.ready {
			return
		}
		ev := kn.Event()
		ev.Fflags = st.fflags
		out[n] = ev
		n++

		st.ready = false
		switch {
		case ev.Flags&FlagOneshot != 0:
			toDelete = append(toDelete, kn)
		case ev.Flags&FlagDispatch != 0:
			kn.setEnabled(false)
		}
	})
	for _, kn := range toDelete {
		idx.remove(kn)
		kn.markDeleted()
	}
	if n > 0 {
		metrics.Add(metrics.UserDeliveries, uint64(n))
	}
	return n, nil
}
