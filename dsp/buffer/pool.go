package buffer

import (
	"sync"
	"sync/atomic"
)

// Pool provides sync.Pool-based Buffer reuse to reduce GC pressure in the
// per-template filtering loop. It also counts outstanding checkouts so tests
// and the pipeline can assert that every buffer came back.
type Pool struct {
	pool        sync.Pool
	outstanding atomic.Int64
}

// NewPool returns a Pool ready for use.
func NewPool() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				return &Buffer{}
			},
		},
	}
}

// Get returns a Buffer with the requested length. The buffer is zeroed.
// Callers must return it via Put when done.
func (p *Pool) Get(length int) *Buffer {
	b := p.pool.Get().(*Buffer)
	b.Resize(length)
	b.Zero()
	p.outstanding.Add(1)
	return b
}

// Put returns a Buffer to the pool for reuse.
// The caller must not use the buffer after calling Put.
func (p *Pool) Put(b *Buffer) {
	if b == nil {
		return
	}
	p.outstanding.Add(-1)
	p.pool.Put(b)
}

// Outstanding is the number of buffers checked out and not yet returned.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}
