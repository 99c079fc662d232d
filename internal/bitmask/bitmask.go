// Package bitmask implements the circular pending/repair bit arrays used
// by transport objects and blocks (spec §9 "Bitmask semantics"). The
// array has a logical domain of 32-bit ids; only a sliding window of
// that domain is materialized, anchored at syncID. Setting an id outside
// the current window slides the window forward and implicitly clears the
// bits that fall out of it, mirroring the teacher's RingBuffer growth
// policy (now internal/ring) applied to bits instead of elements.
package bitmask

// Mask is a circular bit array over a window of ids [syncID, syncID+cap).
// Ids are compared with signed-delta (half-space) arithmetic so the
// window can slide indefinitely through a wrapping 32-bit id space.
type Mask struct {
	bits   []uint64
	cap    int // number of representable bits (window size)
	syncID uint32
	nextID uint32 // one past the highest id ever set; tracks window growth
}

// Delta returns the signed distance b-a interpreted as if both were
// samples of a wrapping counter, i.e. the NORM/KCP-style itimediff.
func Delta(a, b uint32) int32 {
	return int32(b - a)
}

// New allocates a Mask able to represent `capacity` consecutive ids,
// anchored with its window starting at syncID.
func New(capacity int, syncID uint32) *Mask {
	if capacity <= 0 {
		capacity = 1
	}
	words := (capacity + 63) / 64
	return &Mask{
		bits:   make([]uint64, words),
		cap:    words * 64,
		syncID: syncID,
		nextID: syncID,
	}
}

// Capacity returns the number of ids the window can represent.
func (m *Mask) Capacity() int { return m.cap }

// SyncID returns the lower edge of the current window.
func (m *Mask) SyncID() uint32 { return m.syncID }

// NextID returns one past the highest id the window has ever reached.
func (m *Mask) NextID() uint32 { return m.nextID }

// inWindow reports whether id currently falls inside [syncID, syncID+cap).
func (m *Mask) inWindow(id uint32) bool {
	d := Delta(m.syncID, id)
	return d >= 0 && int(d) < m.cap
}

// slideTo moves the window so that id becomes representable, sliding
// forward and clearing vacated bits (spec: "implicitly unsets the
// vacated bits").
func (m *Mask) slideTo(id uint32) {
	shift := int(Delta(m.syncID, id)) - (m.cap - 1)
	if shift <= 0 {
		return
	}
	if shift >= m.cap {
		for i := range m.bits {
			m.bits[i] = 0
		}
	} else {
		m.shiftLeft(shift)
	}
	m.syncID += uint32(shift)
}

func (m *Mask) shiftLeft(n int) {
	wordShift := n / 64
	bitShift := uint(n % 64)
	nw := len(m.bits)
	if wordShift >= nw {
		for i := range m.bits {
			m.bits[i] = 0
		}
		return
	}
	if bitShift == 0 {
		copy(m.bits, m.bits[wordShift:])
		for i := nw - wordShift; i < nw; i++ {
			m.bits[i] = 0
		}
		return
	}
	for i := 0; i < nw; i++ {
		srcLo := i + wordShift
		var lo, hi uint64
		if srcLo < nw {
			lo = m.bits[srcLo] >> bitShift
		}
		if srcLo+1 < nw {
			hi = m.bits[srcLo+1] << (64 - bitShift)
		}
		m.bits[i] = lo | hi
	}
}

func (m *Mask) wordIndex(id uint32) (word int, bit uint) {
	off := uint32(Delta(m.syncID, id))
	return int(off / 64), uint(off % 64)
}

// Set marks id as present, sliding the window forward if necessary.
func (m *Mask) Set(id uint32) {
	if !m.inWindow(id) {
		m.slideTo(id)
	}
	w, b := m.wordIndex(id)
	m.bits[w] |= 1 << b
	if Delta(m.nextID, id+1) > 0 {
		m.nextID = id + 1
	}
}

// Unset clears id. A no-op if id is outside the window or below syncID.
func (m *Mask) Unset(id uint32) {
	if !m.inWindow(id) {
		return
	}
	w, b := m.wordIndex(id)
	m.bits[w] &^= 1 << b
}

// Test reports whether id is set. Ids outside the window read as unset.
func (m *Mask) Test(id uint32) bool {
	if !m.inWindow(id) {
		return false
	}
	w, b := m.wordIndex(id)
	return m.bits[w]&(1<<b) != 0
}

// SetBits sets n consecutive ids starting at lo.
func (m *Mask) SetBits(lo uint32, n int) {
	for i := 0; i < n; i++ {
		m.Set(lo + uint32(i))
	}
}

// UnsetBits clears n consecutive ids starting at lo.
func (m *Mask) UnsetBits(lo uint32, n int) {
	for i := 0; i < n; i++ {
		m.Unset(lo + uint32(i))
	}
}

// Clear empties the mask without moving the window.
func (m *Mask) Clear() {
	for i := range m.bits {
		m.bits[i] = 0
	}
}

// IsZero reports whether no bit in the window is set.
func (m *Mask) IsZero() bool {
	for _, w := range m.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// FirstSet returns the lowest set id at or above lo, and whether one exists.
func (m *Mask) FirstSet(lo uint32) (uint32, bool) {
	return m.NextSet(lo - 1)
}

// NextSet returns the lowest set id strictly greater than after, and
// whether one exists. Search is bounded to the current window.
func (m *Mask) NextSet(after uint32) (uint32, bool) {
	start := after + 1
	if Delta(m.syncID, start) < 0 {
		start = m.syncID
	}
	if !m.inWindow(start) {
		return 0, false
	}
	w, b := m.wordIndex(start)
	word := m.bits[w] >> b
	if word != 0 {
		return start + uint32(trailingZeros64(word)), true
	}
	for i := w + 1; i < len(m.bits); i++ {
		if m.bits[i] != 0 {
			id := m.syncID + uint32(i*64) + uint32(trailingZeros64(m.bits[i]))
			return id, true
		}
	}
	return 0, false
}

// XorInto XORs the receiver's bits into dst over the overlapping window,
// used to merge overheard NACK/REPAIR_ADV state into a receiver's repair
// mask (§4.6.3).
func (m *Mask) XorInto(dst *Mask) {
	id, ok := m.FirstSet(m.syncID)
	for ok {
		if dst.Test(id) {
			dst.Unset(id)
		} else {
			dst.Set(id)
		}
		id, ok = m.NextSet(id)
	}
}

// CopyInto ORs the receiver's set bits into dst.
func (m *Mask) CopyInto(dst *Mask) {
	id, ok := m.FirstSet(m.syncID)
	for ok {
		dst.Set(id)
		id, ok = m.NextSet(id)
	}
}

func trailingZeros64(x uint64) int {
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}
