package kqueue

import "github.com/libkqueue/kqueue-go/internal/backend"

// installedFilters holds the concrete filter instances a Kqueue needs a
// typed handle to beyond the generic filterTable: rw needs backend
// Activations routed to it, vnode owns an fsnotify.Watcher that must be
// closed explicitly.
type installedFilters struct {
	read  *rwFilter
	write *rwFilter
	vnode *vnodeFilter
	timer *timerFilter
}

// installFilters constructs and registers every filter-kind this
// implementation backs, leaving AIO as the shared not-implemented
// sentinel (spec §4.2).
func installFilters(q *Kqueue, be backend.Backend) error {
	rd := newRWFilter(q, FilterRead, backend.Read)
	wr := newRWFilter(q, FilterWrite, backend.Write)
	q.table.install(FilterRead, rd)
	q.table.install(FilterWrite, wr)

	q.table.install(FilterUser, newUserFilter(q))

	tf, err := newTimerFilter(q)
	if err != nil {
		return err
	}
	q.table.install(FilterTimer, tf)

	q.table.install(FilterSignal, newSignalFilter(q))
	q.table.install(FilterProc, newProcFilter(q))

	vn, err := newVnodeFilter(q)
	if err != nil {
		return err
	}
	q.table.install(FilterVnode, vn)

	q.table.install(FilterAIO, aioFilter)

	q.filters = installedFilters{read: rd, write: wr, vnode: vn, timer: tf}
	return nil
}
