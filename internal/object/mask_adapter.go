package object

import "github.com/normproto/norm/internal/bitmask"

// maxBlockWindow bounds the memory an object-level pending/repair mask
// can consume regardless of how many blocks the object's total size
// implies; block ids beyond the window age out through the
// underlying mask's sliding semantics, matching how a stream's
// unbounded block id space is tracked with fixed memory.
const maxBlockWindow = 1 << 16

// maskAdapter narrows bitmask.Mask's circular, NodeId/uint32-shaped
// API down to the plain int-indexed set it takes to track object-
// level block pending/repair state.
type maskAdapter struct {
	m *bitmask.Mask
}

func newMaskAdapter(numBlocks int) *maskAdapter {
	cap := numBlocks
	if cap <= 0 || cap > maxBlockWindow {
		cap = maxBlockWindow
	}
	return &maskAdapter{m: bitmask.New(cap, 0)}
}

func (a *maskAdapter) set(i int)   { a.m.Set(uint32(i)) }
func (a *maskAdapter) unset(i int) { a.m.Unset(uint32(i)) }

func (a *maskAdapter) setRange(lo, hi int) {
	if hi <= lo {
		return
	}
	n := hi - lo
	if n > a.m.Capacity() {
		n = a.m.Capacity()
	}
	a.m.SetBits(uint32(lo), n)
}

func (a *maskAdapter) firstSet() (int, bool) {
	id, ok := a.m.FirstSet(0)
	return int(id), ok
}
