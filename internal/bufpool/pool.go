// Package bufpool hands out reusable byte buffers to the mixing pipeline.
package bufpool

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize fits one RTP packet on a standard Ethernet MTU with room
// for SRTP auth tags.
const DefaultBufferSize = 1600

type Pool struct {
	size     int
	pool     sync.Pool
	inUse    atomic.Int64
	acquired atomic.Uint64
}

func New(size int) *Pool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of length n. Requests larger than the pool's buffer
// size are served by a fresh allocation that Put will drop.
func (p *Pool) Get(n int) []byte {
	p.acquired.Add(1)
	if n > p.size {
		return make([]byte, n)
	}
	p.inUse.Add(1)
	bp := p.pool.Get().(*[]byte)
	return (*bp)[:n]
}

func (p *Pool) Put(b []byte) {
	if cap(b) != p.size {
		return
	}
	p.inUse.Add(-1)
	b = b[:cap(b)]
	p.pool.Put(&b)
}

func (p *Pool) Size() int {
	return p.size
}

// InUse is the number of pooled buffers handed out and not yet returned.
func (p *Pool) InUse() int64 {
	return p.inUse.Load()
}

func (p *Pool) Acquired() uint64 {
	return p.acquired.Load()
}
