package kqueue

import "github.com/libkqueue/kqueue-go/internal/safejob"

// closer guards a Kqueue's teardown against a concurrently blocked
// Kevent call (spec §5: closing while another thread is waiting must not
// crash; the waiting call instead returns ErrClosed). Any number of
// Kevent calls may run concurrently; Close excludes all of them before
// tearing down the back-end.
type closer struct {
	activeJob safejob.ConcurrentJob
	closeOnce safejob.OnceJob
}

// beginCall marks the start of one Kevent call. Returns false if the
// queue is already closed, in which case the caller must not proceed.
func (c *closer) beginCall() bool {
	return c.activeJob.Begin()
}

// endCall marks the end of a Kevent call started by beginCall.
func (c *closer) endCall() {
	c.activeJob.End()
}

// closed reports whether close has completed.
func (c *closer) closed() bool {
	return c.activeJob.Closed()
}

// close marks the queue closed and blocks until every in-flight Kevent
// call has observed it and returned. wake is invoked first so a call
// parked in the back-end's Wait unblocks immediately rather than riding
// out its timeout. Returns false if another goroutine already closed it.
func (c *closer) close(wake func()) bool {
	if !c.closeOnce.Begin() {
		return false
	}
	wake()
	c.activeJob.Close()
	return true
}
