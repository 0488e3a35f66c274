package kqueue

import "github.com/panjf2000/ants/v2"

// callbackPool runs TIMER expiration callbacks (submitted by the queue's
// timer wheel) through a bounded goroutine pool so a burst of expirations
// on one tick cannot spawn unbounded goroutines. SIGNAL, PROC and VNODE
// delivery do not go through it; they use their own watcher goroutines.
type callbackPool struct {
	pool    *ants.PoolWithFunc
	handler func(v any)
}

// newCallbackPool creates a pool of the given size (0 = ants' default).
// handler may be installed after construction since the queue that owns
// the pool is itself still being built at this point.
func newCallbackPool(size int, handler func(any)) (*callbackPool, error) {
	if size <= 0 {
		size = ants.DefaultAntsPoolSize
	}
	cp := &callbackPool{handler: handler}
	p, err := ants.NewPoolWithFunc(size, func(v any) {
		if cp.handler != nil {
			cp.handler(v)
		}
	})
	if err != nil {
		return nil, err
	}
	cp.pool = p
	return cp, nil
}

// submit queues v for the installed handler. Blocks briefly if the pool
// is saturated, per ants' default invocation behavior.
func (c *callbackPool) submit(v any) error {
	return c.pool.Invoke(v)
}

func (c *callbackPool) close() {
	c.pool.Release()
}
