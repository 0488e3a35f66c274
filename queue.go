package kqueue

import (
	"sync"

	"github.com/libkqueue/kqueue-go/internal/backend"
	"github.com/libkqueue/kqueue-go/log"
)

// Kqueue is one event queue: a filter table, the coarse mutex that
// covers it, and the back-end handle that multiplexes every filter's
// hardware-visible interest (spec §3: "Kqueue").
type Kqueue struct {
	mu      sync.Mutex
	table   *filterTable
	back    backend.Backend
	closer  closer
	cfg     config
	pool    *callbackPool
	log     log.Logger
	filters installedFilters
}

// handleTable is the process-wide descriptor → *Kqueue mapping (spec
// §4.4). A reader-favoring RWMutex suffices: lookups vastly outnumber
// create/close.
type handleTable struct {
	mu    sync.RWMutex
	byFD  map[int]*Kqueue
	nextFD int
}

var handles = &handleTable{byFD: make(map[int]*Kqueue)}

func (h *handleTable) register(q *Kqueue) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextFD++
	fd := h.nextFD
	h.byFD[fd] = q
	return fd
}

func (h *handleTable) resolve(fd int) (*Kqueue, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	q, ok := h.byFD[fd]
	return q, ok
}

func (h *handleTable) release(fd int) {
	h.mu.Lock()
	delete(h.byFD, fd)
	h.mu.Unlock()
}

// Create allocates a queue and returns its process-wide descriptor (spec
// §6: queue_create).
func Create(opts ...Option) (int, error) {
	cfg := config{}
	cfg.setDefault()
	for _, o := range opts {
		o.f(&cfg)
	}

	be := cfg.backend
	if be == nil {
		var err error
		be, err = backend.New()
		if err != nil {
			return -1, err
		}
	}

	pool, err := newCallbackPool(cfg.workerPoolSize, func(v any) {
		if fn, ok := v.(func()); ok {
			fn()
		}
	})
	if err != nil {
		_ = be.Close()
		return -1, err
	}

	q := &Kqueue{
		table: newFilterTable(),
		back:  be,
		cfg:   cfg,
		pool:  pool,
		log:   log.Default,
	}
	if err := installFilters(q, be); err != nil {
		pool.close()
		_ = be.Close()
		return -1, err
	}

	return handles.register(q), nil
}

// Close destroys the queue named by fd: every knote is detached via its
// filter's delete hook, any in-flight Kevent call is excluded first (spec
// §5), and the back-end handle is released.
func Close(fd int) error {
	q, ok := handles.resolve(fd)
	if !ok {
		return ErrNotFound
	}
	handles.release(fd)

	closed := q.closer.close(func() {
		_ = q.back.Wake()
	})
	if !closed {
		return ErrClosed
	}

	q.mu.Lock()
	q.table.each(func(_ FilterKind, f Filter, idx *knoteIndex) {
		idx.each(func(kn *Knote) {
			_ = f.Delete(kn)
			kn.markDeleted()
		})
	})
	q.mu.Unlock()

	q.filters.timer.wheel.Stop()
	_ = q.filters.vnode.watcher.Close()
	q.pool.close()
	return q.back.Close()
}

func (q *Kqueue) debugf(format string, args ...interface{}) {
	if q.cfg.debug {
		q.log.Debugf(format, args...)
	}
}
