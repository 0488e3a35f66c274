package kqueue

import (
	"time"
	"unsafe"

	"github.com/libkqueue/kqueue-go/internal/backend"
	"github.com/libkqueue/kqueue-go/metrics"
)

// Kevent is the dispatch engine: it both mutates fd's registrations from
// changes and, with whatever event-list capacity remains, waits for and
// delivers ready activations into events (spec §4.1). Returns the number
// of event-list entries written, or -1 with the last recorded error if
// the event-list filled before the change-list was exhausted or the wait
// phase failed fatally.
func Kevent(fd int, changes, events []Event, timeout *time.Duration) (int, error) {
	q, ok := handles.resolve(fd)
	if !ok {
		return -1, ErrNotFound
	}
	if !q.closer.beginCall() {
		return -1, ErrClosed
	}
	defer q.closer.endCall()

	capacity := len(events)
	if capacity > q.cfg.maxEventsPerWait {
		capacity = q.cfg.maxEventsPerWait
	}

	cursor, lastErr, filled := q.applyChanges(changes, events, capacity)
	if filled {
		q.debugf("kevent: event-list filled mid change-list, returning -1")
		return -1, lastErr
	}

	remaining := capacity - cursor
	if remaining <= 0 {
		return cursor, nil
	}

	metrics.Add(metrics.WaitCalls, 1)
	n, err := q.back.Wait(timeout)
	if q.closer.closeOnce.Closed() {
		return -1, ErrClosed
	}
	if err != nil {
		metrics.Add(metrics.WaitErrors, 1)
		return -1, err
	}
	if n <= 0 {
		metrics.Add(metrics.WaitTimeouts, 1)
		return cursor, nil
	}

	q.mu.Lock()
	copied := q.copyoutLocked(events[cursor:capacity])
	q.mu.Unlock()
	for _, ev := range events[cursor : cursor+copied] {
		q.debugf("kevent: event %s", ev.String())
	}
	metrics.Add(metrics.EventsCopiedOut, uint64(copied))
	cursor += copied

	return cursor, nil
}

// applyChanges runs the change phase (spec §4.1 step 4): every change is
// applied under the queue lock, and each that errors or carried RECEIPT
// consumes one event-list slot as a synthetic ERROR/RECEIPT entry.
func (q *Kqueue) applyChanges(changes, events []Event, capacity int) (cursor int, lastErr error, filled bool) {
	if len(changes) == 0 {
		return 0, nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, c := range changes {
		err := q.applyChange(c)
		q.debugf("kevent: change %s -> %v", c.String(), err)
		metrics.Add(metrics.ChangesApplied, 1)
		if err != nil {
			metrics.Add(metrics.ChangeErrors, 1)
		}
		if err == nil && c.Flags&FlagReceipt == 0 {
			continue
		}
		if err == nil {
			metrics.Add(metrics.ReceiptsIssued, 1)
		}
		if cursor >= capacity {
			if err != nil {
				lastErr = err
			}
			return cursor, lastErr, true
		}
		synthetic := c
		synthetic.Flags |= FlagError
		synthetic.Data = errno(err)
		events[cursor] = synthetic
		cursor++
		if err != nil {
			lastErr = err
		}
	}
	return cursor, lastErr, false
}

// applyChange implements the per-change case table of spec §4.1.1. Must
// be called with q.mu held.
func (q *Kqueue) applyChange(c Event) error {
	if c.Flags&FlagDispatch != 0 && c.Flags&FlagOneshot != 0 {
		return ErrInvalidArgument
	}
	f, idx, ok := q.table.lookup(c.Filter)
	if !ok {
		return ErrInvalidArgument
	}
	if _, stub := f.(notImplementedFilter); stub {
		return ErrInvalidArgument
	}
	kn := idx.lookup(c.Ident)

	switch {
	case kn == nil && c.Flags&FlagAdd != 0:
		return q.createKnote(f, idx, c)
	case kn == nil:
		return ErrNotFound
	case c.Flags&FlagDelete != 0:
		_ = f.Delete(kn)
		idx.remove(kn)
		kn.markDeleted()
		return nil
	case c.Flags&FlagDisable != 0:
		if err := f.Disable(kn); err != nil {
			return err
		}
		kn.setEnabled(false)
		return nil
	case c.Flags&FlagEnable != 0:
		if err := f.Enable(kn); err != nil {
			return err
		}
		kn.setEnabled(true)
		return nil
	default:
		// ADD (re-arm), bare (flags == 0), or RECEIPT.
		if err := f.Modify(kn, &c); err != nil {
			return err
		}
		kn.mu.Lock()
		kn.kev.Udata = c.Udata
		if c.Flags&FlagDispatch != 0 {
			kn.kev.Flags |= FlagDispatch
		} else {
			kn.kev.Flags &^= FlagDispatch
		}
		kn.mu.Unlock()
		return nil
	}
}

// createKnote implements the absent+ADD row of §4.1.1, including the
// "disable immediately after create" path of design note 9: the queue
// lock is held across both hooks so no activation can slip in between.
func (q *Kqueue) createKnote(f Filter, idx *knoteIndex, c Event) error {
	kn := newKnote(q, c)
	kn.kev.Flags &^= FlagEnable
	kn.kev.Flags |= FlagAdd

	if err := f.Create(kn); err != nil {
		kn.markDeleted()
		freeKnote(kn)
		return ErrFault
	}
	kn.setEnabled(true)
	idx.insert(kn)

	if c.Flags&FlagDisable != 0 {
		if err := f.Disable(kn); err != nil {
			return err
		}
		kn.setEnabled(false)
	}
	return nil
}

// copyoutLocked drains ready activations into out, routing hardware
// activations to the rw filter that owns each one before asking every
// installed filter to copy out its ready knotes in turn. Must be called
// with q.mu held.
func (q *Kqueue) copyoutLocked(out []Event) int {
	acts, err := q.back.Copyout(len(out))
	if err != nil {
		return 0
	}
	for _, act := range acts {
		q.routeActivation(act)
	}

	cursor := 0
	q.table.each(func(_ FilterKind, f Filter, _ *knoteIndex) {
		if cursor >= len(out) {
			return
		}
		n, err := f.Copyout(out[cursor:], len(out)-cursor)
		if err != nil {
			return
		}
		cursor += n
	})
	return cursor
}

func (q *Kqueue) routeActivation(act backend.Activation) {
	if act.Token == 0 {
		return // the dedicated wake registration carries no knote
	}
	kn := (*Knote)(unsafe.Pointer(act.Token))
	if kn == nil || kn.Deleted() {
		return
	}
	switch kn.Filter() {
	case FilterRead:
		q.filters.read.markActivation(act)
	case FilterWrite:
		q.filters.write.markActivation(act)
	}
}
