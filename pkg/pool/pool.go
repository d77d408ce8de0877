// Package pool provides typed object pooling.
//
// Example usage:
//
//	buffers := pool.New(
//	    func() *bytes.Buffer { return new(bytes.Buffer) },
//	    func(b *bytes.Buffer) { b.Reset() },
//	)
//	buf := buffers.Get()
//	defer buffers.Put(buf)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool is a type-safe wrapper around sync.Pool that resets objects on Put
// and counts allocations. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated atomic.Int64
		inUse     atomic.Int64
		gets      atomic.Int64
	}
}

// New creates a pool. reset may be nil.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		p.stats.allocated.Add(1)
		return newFn()
	}
	return p
}

// Get takes an object from the pool, allocating when it is empty.
func (p *Pool[T]) Get() T {
	p.stats.gets.Add(1)
	p.stats.inUse.Add(1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.stats.inUse.Add(-1)
	p.pool.Put(obj)
}

// Stats reports objects allocated, currently checked out, and total Gets.
// Gets minus allocated is the number served from the pool.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return p.stats.allocated.Load(), p.stats.inUse.Load(), p.stats.gets.Load()
}

// maxPooledBuffer caps the capacity of buffers kept by BufferPool so one
// oversized payload does not pin memory.
const maxPooledBuffer = 4 << 20

// BufferPool pools bytes.Buffers, dropping ones that grew past 4 MiB.
type BufferPool struct {
	p *Pool[*bytes.Buffer]
}

// NewBufferPool creates an empty buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{p: New(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) { b.Reset() },
	)}
}

// Get returns an empty buffer.
func (bp *BufferPool) Get() *bytes.Buffer { return bp.p.Get() }

// Put returns b to the pool.
func (bp *BufferPool) Put(b *bytes.Buffer) {
	if b.Cap() > maxPooledBuffer {
		bp.p.stats.inUse.Add(-1)
		return
	}
	bp.p.Put(b)
}

// Bytes pools fixed-size byte slices, such as scanner buffers.
type Bytes struct {
	size int
	p    *Pool[*[]byte]
}

// NewBytes creates a pool of slices with the given capacity.
func NewBytes(size int) *Bytes {
	return &Bytes{size: size, p: New(
		func() *[]byte { b := make([]byte, 0, size); return &b },
		func(b *[]byte) { *b = (*b)[:0] },
	)}
}

// Get returns an empty slice with the pool's capacity.
func (bp *Bytes) Get() *[]byte { return bp.p.Get() }

// Put returns b to the pool; slices of another capacity are dropped.
func (bp *Bytes) Put(b *[]byte) {
	if cap(*b) != bp.size {
		bp.p.stats.inUse.Add(-1)
		return
	}
	bp.p.Put(b)
}
