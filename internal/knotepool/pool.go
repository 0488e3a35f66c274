// Package knotepool block-allocates and recycles knote-sized values off
// the GC path, the same free-list discipline a descriptor cache uses for
// per-connection state: bulk-allocate a block, hand out values from a
// singly-linked free chain guarded by a spinlock, and batch frees behind
// a second mutex-guarded list so a hot add/delete loop never pays for
// GC churn on every registration.
package knotepool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

const blockSize = 4 * 1024

// entry wraps a pooled value with the free-list linkage and its index
// into the owning Pool's backing slice.
type entry[T any] struct {
	value T
	next  *entry[T]
	index int32
}

// Pool allocates and recycles *T values in blocks, resetting each value
// via reset before it is handed out again.
type Pool[T any] struct {
	reset func(*T)

	first  *entry[T]
	cache  []*entry[T]
	locked int32

	mu       sync.Mutex
	freeList []int32
}

// New creates a Pool. reset is called on a value immediately before
// reuse; it must leave the value as good as a zero value for T.
func New[T any](reset func(*T)) *Pool[T] {
	return &Pool[T]{
		reset: reset,
		cache: make([]*entry[T], 0, 1024),
	}
}

// Get returns a ready-to-use *T, either fresh or recycled.
func (p *Pool[T]) Get() *T {
	p.lock()
	if p.first == nil {
		const entrySize = unsafe.Sizeof(entry[T]{})
		n := blockSize / entrySize
		if n == 0 {
			n = 1
		}
		index := int32(len(p.cache))
		for i := uintptr(0); i < n; i++ {
			e := &entry[T]{index: index}
			p.cache = append(p.cache, e)
			e.next = p.first
			p.first = e
			index++
		}
	}
	e := p.first
	p.first = e.next
	p.unlock()
	return &e.value
}

// Put marks v for recycling. v must not be used again until a later Get
// returns it. Actual reclamation is deferred to Drain so a burst of Puts
// does not contend the allocation spinlock.
func (p *Pool[T]) Put(v *T) {
	e := containerOf(v)
	p.mu.Lock()
	p.freeList = append(p.freeList, e.index)
	p.mu.Unlock()
}

// Drain reclaims every value queued by Put since the last Drain.
func (p *Pool[T]) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.freeList) == 0 {
		return
	}
	p.lock()
	for _, i := range p.freeList {
		e := p.cache[i]
		if p.reset != nil {
			p.reset(&e.value)
		} else {
			var zero T
			e.value = zero
		}
		e.next = p.first
		p.first = e
	}
	p.freeList = p.freeList[:0]
	p.unlock()
}

func containerOf[T any](v *T) *entry[T] {
	return (*entry[T])(unsafe.Pointer(v))
}

func (p *Pool[T]) lock() {
	for !atomic.CompareAndSwapInt32(&p.locked, 0, 1) {
		runtime.Gosched()
	}
}

func (p *Pool[T]) unlock() {
	atomic.StoreInt32(&p.locked, 0)
}
