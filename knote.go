package kqueue

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/libkqueue/kqueue-go/internal/knotepool"
)

var knotes = knotepool.New(resetKnote)

func resetKnote(kn *Knote) {
	kn.kev = Event{}
	kn.queue = nil
	kn.flags = 0
	kn.enabled = false
	kn.refs.Store(0)
	kn.state = nil
}

// newKnote allocates a knote for kev on q, recycling pool storage where
// possible (spec §4.3: a busy change-list loop must not pressure the GC
// on every ADD/DELETE pair).
func newKnote(q *Kqueue, kev Event) *Knote {
	kn := knotes.Get()
	kn.kev = kev
	kn.queue = q
	return kn
}

// freeKnote returns kn to the pool. Callers must hold no further
// references: the index's own reference must already have been released.
func freeKnote(kn *Knote) {
	knotes.Put(kn)
	knotes.Drain()
}

// knoteFlags tracks lifecycle state private to the engine (spec §3: "at
// minimum: DELETED").
type knoteFlags uint8

const (
	knoteDeleted knoteFlags = 1 << iota
)

// Knote is one registration: a (filter, ident) pair plus its canonical
// event descriptor, owning queue back-reference, and filter-private state.
// The owning filter's index holds the sole strong reference; any reference
// obtained during dispatch is a weak handle valid only while the queue
// lock is held (spec §3).
type Knote struct {
	mu sync.Mutex

	kev     Event // canonical registration parameters, kept in sync by applyChange
	queue   *Kqueue
	flags   knoteFlags
	enabled bool // tracked as a bool per design note, not inferred from kev.Flags

	// refs counts holders that need the knote to stay valid past a lock
	// drop: the index holds one while the knote is inserted.
	refs atomic.Int32

	// state is filter-private: the rw filter stores its readiness record,
	// the timer filter its *timerwheel.Timer, etc. Only the owning filter
	// touches it.
	state interface{}
}

// Ident returns the knote's source identity.
func (kn *Knote) Ident() uint64 { return kn.kev.Ident }

// Filter returns the knote's filter-kind.
func (kn *Knote) Filter() FilterKind { return kn.kev.Filter }

// Event returns a copy of the knote's canonical registration.
func (kn *Knote) Event() Event {
	kn.mu.Lock()
	defer kn.mu.Unlock()
	return kn.kev
}

// State returns the filter-private state block.
func (kn *Knote) State() interface{} {
	kn.mu.Lock()
	defer kn.mu.Unlock()
	return kn.state
}

// SetState installs the filter-private state block.
func (kn *Knote) SetState(s interface{}) {
	kn.mu.Lock()
	kn.state = s
	kn.mu.Unlock()
}

// Deleted reports whether the knote has been marked for removal. A knote is
// marked deleted in the same locked section that removes it from its index,
// so a transient weak reference held across a brief lock drop can detect it.
func (kn *Knote) Deleted() bool {
	kn.mu.Lock()
	defer kn.mu.Unlock()
	return kn.flags&knoteDeleted != 0
}

func (kn *Knote) markDeleted() {
	kn.mu.Lock()
	kn.flags |= knoteDeleted
	kn.mu.Unlock()
}

// Enabled reports the knote's delivery-eligible state.
func (kn *Knote) Enabled() bool {
	kn.mu.Lock()
	defer kn.mu.Unlock()
	return kn.enabled
}

func (kn *Knote) setEnabled(v bool) {
	kn.mu.Lock()
	kn.enabled = v
	kn.mu.Unlock()
}

// acquire takes a transient strong reference, valid until release.
func (kn *Knote) acquire() { kn.refs.Inc() }

func (kn *Knote) release() { kn.refs.Dec() }

// knoteIndex is the per-filter associative lookup from source identity to
// knote (spec §4.3). Keys are unique within a filter; the index is the
// sole owner of its knotes.
type knoteIndex struct {
	byIdent map[uint64]*Knote
}

func newKnoteIndex() *knoteIndex {
	return &knoteIndex{byIdent: make(map[uint64]*Knote)}
}

func (idx *knoteIndex) lookup(ident uint64) *Knote {
	return idx.byIdent[ident]
}

func (idx *knoteIndex) insert(kn *Knote) {
	kn.acquire()
	idx.byIdent[kn.Ident()] = kn
}

func (idx *knoteIndex) remove(kn *Knote) {
	if _, ok := idx.byIdent[kn.Ident()]; ok {
		delete(idx.byIdent, kn.Ident())
		kn.release()
	}
}

func (idx *knoteIndex) len() int { return len(idx.byIdent) }

// each iterates every live knote in the index. The callback must not
// mutate the index.
func (idx *knoteIndex) each(fn func(*Knote)) {
	for _, kn := range idx.byIdent {
		fn(kn)
	}
}
