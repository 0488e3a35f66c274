package kqueue

import (
	"sync"
	"time"

	"github.com/libkqueue/kqueue-go/internal/timerwheel"
	"github.com/libkqueue/kqueue-go/metrics"
)

// timerFilter implements FilterTimer. Event.Data on input is a period in
// milliseconds; EV_ONESHOT makes the timer fire once instead of rearming
// (real EVFILT_TIMER is periodic by default). A fired knote accumulates a
// fire count in Event.Data on output, matching the host convention of
// reporting how many expirations occurred since the last copyout. Each
// queue owns a private wheel so its expiration callbacks run through the
// queue's bounded callback pool rather than spawning bare goroutines.
type timerFilter struct {
	q     *Kqueue
	wheel *timerwheel.TimeWheel
}

type timerState struct {
	mu    sync.Mutex
	timer *timerwheel.Timer
	count int64
	ready bool
}

func newTimerFilter(q *Kqueue) (*timerFilter, error) {
	wheel, err := timerwheel.NewTimeWheel(time.Millisecond, 1024)
	if err != nil {
		return nil, err
	}
	wheel.SetDispatch(func(fn func()) {
		if err := q.pool.submit(fn); err != nil {
			go fn()
		}
	})
	wheel.Start()
	return &timerFilter{q: q, wheel: wheel}, nil
}

func (f *timerFilter) onExpire(kn *Knote) {
	st, ok := kn.State().(*timerState)
	if !ok {
		return
	}
	st.mu.Lock()
	st.count++
	st.ready = true
	st.mu.Unlock()
	_ = f.q.back.Wake()
}

func (f *timerFilter) Create(kn *Knote) error {
	kev := kn.Event()
	period := time.Duration(kev.Data) * time.Millisecond
	if period <= 0 {
		return ErrInvalidArgument
	}
	st := &timerState{}
	st.timer = timerwheel.NewTimer(kn, func(data interface{}) {
		f.onExpire(data.(*Knote))
	}, period, kev.Flags&FlagOneshot != 0)
	kn.SetState(st)
	if err := f.wheel.Add(st.timer); err != nil {
		return ErrFault
	}
	return nil
}

func (f *timerFilter) Modify(kn *Knote, change *Event) error {
	st, ok := kn.State().(*timerState)
	if !ok {
		return ErrFault
	}
	kev := kn.Event()
	if change != nil {
		kev.Data = change.Data
	}
	period := time.Duration(kev.Data) * time.Millisecond
	if period <= 0 {
		return ErrInvalidArgument
	}
	f.wheel.Del(st.timer)
	st.timer = timerwheel.NewTimer(kn, func(data interface{}) {
		f.onExpire(data.(*Knote))
	}, period, kev.Flags&FlagOneshot != 0)
	if err := f.wheel.Add(st.timer); err != nil {
		return ErrFault
	}
	kn.mu.Lock()
	kn.kev.Data = kev.Data
	kn.mu.Unlock()
	return nil
}

func (f *timerFilter) Enable(kn *Knote) error {
	st, ok := kn.State().(*timerState)
	if !ok {
		return ErrFault
	}
	return f.wheel.Add(st.timer)
}

func (f *timerFilter) Disable(kn *Knote) error {
	st, ok := kn.State().(*timerState)
	if !ok {
		return nil
	}
	f.wheel.Del(st.timer)
	return nil
}

func (f *timerFilter) Delete(kn *Knote) error {
	st, ok := kn.State().(*timerState)
	if ok {
		f.wheel.Del(st.timer)
	}
	return nil
}

func (f *timerFilter) Copyout(out []Event, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	n := 0
	idx := f.q.table.mustIndex(FilterTimer)
	var toDelete []*Knote
	idx.each(func(kn *Knote) {
		if n >= capacity || kn.Deleted() || !kn.Enabled() {
			return
		}
		st, ok := kn.State().(*timerState)
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
			f.wheel.Del(st.timer)
		}
	})
	for _, kn := range toDelete {
		idx.remove(kn)
		kn.markDeleted()
	}
	if n > 0 {
		metrics.Add(metrics.TimerDeliveries, uint64(n))
	}
	return n, nil
}
