package pool

// SegmentPool hands out fixed-size byte buffers sized to one FEC
// symbol (segSize, already including any stream-message header room
// the caller reserves). It wraps Pool[[]byte] so the buffer slice
// length callers see always equals segSize regardless of cap.
type SegmentPool struct {
	pool     *Pool[[]byte]
	segSize  int
}

// NewSegmentPool pre-allocates count buffers of segSize bytes.
func NewSegmentPool(count, segSize int) *SegmentPool {
	p := New[[]byte](count)
	p.Prime(func() []byte { return make([]byte, segSize) })
	return &SegmentPool{pool: p, segSize: segSize}
}

// Get draws one buffer, zeroed length segSize. ok is false if the
// pool is exhausted.
func (sp *SegmentPool) Get() (buf []byte, ok bool) {
	b, ok := sp.pool.Get()
	if !ok {
		return nil, false
	}
	b = b[:sp.segSize]
	for i := range b {
		b[i] = 0
	}
	return b, true
}

// Put returns a buffer previously obtained from Get.
func (sp *SegmentPool) Put(buf []byte) bool {
	return sp.pool.Put(buf[:sp.segSize])
}

// SegmentSize returns the fixed size of every buffer in the pool.
func (sp *SegmentPool) SegmentSize() int { return sp.segSize }

// Available returns the number of buffers currently free.
func (sp *SegmentPool) Available() int { return sp.pool.Len() }

// Capacity returns the pool's total buffer count.
func (sp *SegmentPool) Capacity() int { return sp.pool.Cap() }
