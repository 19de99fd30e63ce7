package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"framepipe/processing/frame"
)

// bufferPool recycles fixed-size frame buffers. A buffer goes back to the
// pool when its last hold is dropped.
type bufferPool struct {
	format frame.Format
	size   int

	mu          sync.Mutex
	free        [][]byte
	outstanding int
}

func newBufferPool(format frame.Format) *bufferPool {
	return &bufferPool{
		format: format,
		size:   frame.FrameSize(format.Layout, format.Width, format.Height),
	}
}

// get returns a buffer carrying one reference owned by the caller.
func (p *bufferPool) get() *pooledBuffer {
	p.mu.Lock()
	var data []byte
	if n := len(p.free); n > 0 {
		data = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		data = make([]byte, p.size)
	}
	p.outstanding++
	p.mu.Unlock()

	b := &pooledBuffer{pool: p, data: data}
	b.refs.Store(1)
	return b
}

func (p *bufferPool) put(data []byte) {
	p.mu.Lock()
	p.free = append(p.free, data)
	p.outstanding--
	p.mu.Unlock()
}

// Outstanding counts buffers not yet returned.
func (p *bufferPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

type pooledBuffer struct {
	pool *bufferPool
	data []byte
	refs atomic.Int32
}

func (b *pooledBuffer) Ref() {
	b.refs.Add(1)
}

func (b *pooledBuffer) Unref() {
	switch n := b.refs.Add(-1); {
	case n == 0:
		b.pool.put(b.data)
	case n < 0:
		slog.Warn("capture: buffer released more often than held", "refs", n)
	}
}

func (b *pooledBuffer) Format() frame.Format {
	return b.pool.format
}

func (b *pooledBuffer) Planes() []frame.Plane {
	planes, err := frame.SplitPlanes(b.pool.format.Layout, b.pool.format.Width, b.pool.format.Height, 1, b.data)
	if err != nil {
		return nil
	}
	return planes
}
