package gencache

// bufferPool recycles read buffers of one size. It is a buffered channel,
// so Get and Put are safe for concurrent use without a lock.
type bufferPool struct {
	pool chan []byte
	size int
}

func newBufferPool(size, count int) *bufferPool {
	return &bufferPool{pool: make(chan []byte, count), size: size}
}

// Get returns a pooled buffer, or a new one when the pool is empty.
func (p *bufferPool) Get() []byte {
	select {
	case buf := <-p.pool:
		return buf
	default:
		return make([]byte, p.size)
	}
}

// Put returns buf to the pool. Buffers of another capacity, and buffers
// that find the pool full, are dropped.
func (p *bufferPool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	select {
	case p.pool <- buf[:p.size]:
	default:
	}
}
