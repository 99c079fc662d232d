package txsess

import "github.com/normproto/norm/internal/wire"

// Watermark tracks positive-ACK collection for one flush point (spec
// §4.5.5): a set of ackers must each acknowledge (ObjectId, BlockId,
// SymbolId) before the flush is reported complete.
type Watermark struct {
	Pos      wire.Position
	ackers   map[wire.NodeId]int // remaining reqCount per acker
	acked    map[wire.NodeId]bool
	Ackers   []wire.NodeId
	RobustMax int
}

// NewWatermark arms a watermark for pos with the given acker list,
// each permitted up to robustMax repeated FLUSH attempts.
func NewWatermark(pos wire.Position, ackers []wire.NodeId, robustMax int) *Watermark {
	w := &Watermark{Pos: pos, Ackers: ackers, RobustMax: robustMax, ackers: make(map[wire.NodeId]int, len(ackers)), acked: make(map[wire.NodeId]bool, len(ackers))}
	for _, a := range ackers {
		w.ackers[a] = robustMax
	}
	return w
}

// Pending returns the node ids that still haven't acknowledged and
// still have FLUSH attempts left; exhausted ackers are not listed.
func (w *Watermark) Pending() []wire.NodeId {
	var out []wire.NodeId
	for _, a := range w.Ackers {
		if _, ok := w.ackers[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// OnFlushSent decrements every still-pending acker's remaining
// attempt count, dropping any that exhaust it.
func (w *Watermark) OnFlushSent() (exhausted []wire.NodeId) {
	for id, remaining := range w.ackers {
		remaining--
		if remaining <= 0 {
			exhausted = append(exhausted, id)
			delete(w.ackers, id)
		} else {
			w.ackers[id] = remaining
		}
	}
	return exhausted
}

// OnAck marks id satisfied if its position matches the watermark.
func (w *Watermark) OnAck(id wire.NodeId, pos wire.Position) {
	if pos != w.Pos {
		return
	}
	if _, ok := w.ackers[id]; ok {
		w.acked[id] = true
	}
	delete(w.ackers, id)
}

// Done reports whether every acker has either acknowledged or
// exhausted its attempts.
func (w *Watermark) Done() bool { return len(w.ackers) == 0 }

// Satisfied reports whether every originally-listed acker
// acknowledged (as opposed to merely exhausting retries).
func (w *Watermark) Satisfied() bool {
	for _, a := range w.Ackers {
		if !w.acked[a] {
			return false
		}
	}
	return true
}
