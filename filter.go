package kqueue

// Filter is the six-hook contract every filter-kind plugin implements
// (spec §4.2). A filter owns one knoteIndex and whatever back-end handle
// it needs; the engine drives the hooks while holding the queue lock.
type Filter interface {
	// Create installs back-end interest for kn. The knote is considered
	// enabled on successful create; on failure the knote is discarded and
	// the change reports ErrFault.
	Create(kn *Knote) error

	// Modify updates kn's parameters in place from change. Safe to call
	// while kn is registered.
	Modify(kn *Knote, change *Event) error

	// Enable / Disable toggle delivery without disturbing state.
	Enable(kn *Knote) error
	Disable(kn *Knote) error

	// Delete detaches kn from the back-end. Best-effort: must not fail
	// fatally.
	Delete(kn *Knote) error

	// Copyout drains ready knotes on this filter into out, applying
	// ONESHOT/CLEAR/DISPATCH semantics before returning. Returns the
	// number of entries written.
	Copyout(out []Event, capacity int) (int, error)
}

// notImplementedFilter is the sentinel installed for a filter-kind a
// platform's back-end stack does not support (spec §4.2: "a filter that a
// platform does not implement ... all refuse with 'not implemented'").
type notImplementedFilter struct{}

func (notImplementedFilter) Create(*Knote) error                { return ErrInvalidArgument }
func (notImplementedFilter) Modify(*Knote, *Event) error         { return ErrInvalidArgument }
func (notImplementedFilter) Enable(*Knote) error                 { return ErrInvalidArgument }
func (notImplementedFilter) Disable(*Knote) error                { return ErrInvalidArgument }
func (notImplementedFilter) Delete(*Knote) error                 { return nil }
func (notImplementedFilter) Copyout(_ []Event, _ int) (int, error) { return 0, nil }

// filterTableSize is the number of table slots: one per defined filter-kind.
// Spec §3: "the filter numbers are a small negative-integer set; mapped to
// non-negative table slots by a documented bijection."
const filterTableSize = 8

// filterSlot maps a FilterKind to its fixed table index. Returns -1 for an
// unrecognized kind (the dispatch engine reports ErrInvalidArgument in that
// case, without ever indexing the table).
func filterSlot(kind FilterKind) int {
	switch kind {
	case FilterRead:
		return 0
	case FilterWrite:
		return 1
	case FilterAIO:
		return 2
	case FilterVnode:
		return 3
	case FilterProc:
		return 4
	case FilterSignal:
		return 5
	case FilterTimer:
		return 6
	case FilterUser:
		return 7
	default:
		return -1
	}
}

// filterTable is the fixed-size, per-queue array of installed filters
// (spec §3: "Filter table").
type filterTable struct {
	slots [filterTableSize]Filter
	index [filterTableSize]*knoteIndex
}

func newFilterTable() *filterTable {
	ft := &filterTable{}
	for i := range ft.index {
		ft.index[i] = newKnoteIndex()
	}
	return ft
}

// install places f at kind's slot. Used by queue construction.
func (ft *filterTable) install(kind FilterKind, f Filter) {
	if slot := filterSlot(kind); slot >= 0 {
		ft.slots[slot] = f
	}
}

// lookup returns the Filter and its knoteIndex for kind, or (nil, nil, false)
// if kind is outside the documented bijection or was never installed.
func (ft *filterTable) lookup(kind FilterKind) (Filter, *knoteIndex, bool) {
	slot := filterSlot(kind)
	if slot < 0 || ft.slots[slot] == nil {
		return nil, nil, false
	}
	return ft.slots[slot], ft.index[slot], true
}

// mustIndex returns kind's knoteIndex, or a fresh empty one if kind is
// outside the bijection (used by filters that know their own kind statically).
func (ft *filterTable) mustIndex(kind FilterKind) *knoteIndex {
	if slot := filterSlot(kind); slot >= 0 {
		return ft.index[slot]
	}
	return newKnoteIndex()
}

// each calls fn for every installed (kind, filter, index) triple.
func (ft *filterTable) each(fn func(kind FilterKind, f Filter, idx *knoteIndex)) {
	kinds := []FilterKind{
		FilterRead, FilterWrite, FilterAIO, FilterVnode,
		FilterProc, FilterSignal, FilterTimer, FilterUser,
	}
	for _, kind := range kinds {
		if slot := filterSlot(kind); slot >= 0 && ft.slots[slot] != nil {
			fn(kind, ft.slots[slot], ft.index[slot])
		}
	}
}
