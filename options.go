package kqueue

import (
	"runtime"

	"github.com/libkqueue/kqueue-go/internal/backend"
)

// Option configures a Kqueue at Create time.
type Option struct {
	f func(*config)
}

type config struct {
	debug            bool
	maxEventsPerWait int
	workerPoolSize   int
	backend          backend.Backend // non-nil only under withBackend, for tests
}

func (c *config) setDefault() {
	c.maxEventsPerWait = 1024
	c.workerPoolSize = runtime.GOMAXPROCS(0) * 4
}

// WithDebug enables logging of every change-list entry and delivered
// activation at debug level (spec §6: "a debug-mode hook that renders
// each Event via String() through the ambient logger").
func WithDebug(enable bool) Option {
	return Option{func(c *config) {
		c.debug = enable
	}}
}

// WithMaxEventsPerWait bounds how many ready activations a single Wait
// cycle drains from the back-end before returning to the caller, ahead of
// the caller-supplied event-list capacity clamp applied per-call.
func WithMaxEventsPerWait(n int) Option {
	return Option{func(c *config) {
		if n > 0 {
			c.maxEventsPerWait = n
		}
	}}
}

// WithWorkerPoolSize sets the size of the bounded goroutine pool that runs
// TIMER expiration callbacks. A size of 0 or less uses ants' default pool
// size.
func WithWorkerPoolSize(n int) Option {
	return Option{func(c *config) {
		c.workerPoolSize = n
	}}
}

// withBackend overrides the platform back-end with b. Unexported; the
// package's own tests do not use it and run against the platform back-end.
func withBackend(b backend.Backend) Option {
	return Option{func(c *config) {
		c.backend = b
	}}
}
