package rxsess

import (
	"math/rand"
	"time"

	"github.com/normproto/norm/internal/object"
	"github.com/normproto/norm/internal/wire"
)

// ExponentialRand draws a back-off delay uniformly from [0, ceiling),
// where ceiling grows with group size the way NORM's receiver
// back-off does: larger groups spread NACK timing wider to avoid
// implosion (spec §4.6.3).
func ExponentialRand(base time.Duration, groupSize float64) time.Duration {
	ceiling := base
	if groupSize > 1 {
		ceiling = time.Duration(float64(base) * (1 + logBase2(groupSize)))
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}

func logBase2(x float64) float64 {
	n := 0.0
	for x > 1 {
		x /= 2
		n++
	}
	return n
}

// Backoff is the per-node repair back-off timer (spec §4.6.3).
type Backoff struct {
	Grtt          time.Duration
	BackoffFactor float64
	Unicast       bool
	GroupSize     float64

	running  bool
	holdOff  bool
	repairMask map[wire.ObjectId]map[wire.BlockId]map[wire.SymbolId]bool
}

// NewBackoff starts idle.
func NewBackoff() *Backoff {
	return &Backoff{repairMask: make(map[wire.ObjectId]map[wire.BlockId]map[wire.SymbolId]bool)}
}

// Interval returns the back-off delay to arm on detecting a new,
// not-yet-covered repair need.
func (b *Backoff) Interval() time.Duration {
	if b.Unicast {
		return 0
	}
	return ExponentialRand(time.Duration(float64(b.Grtt)*b.BackoffFactor), b.GroupSize)
}

// StartOrExtend arms the back-off timer if idle, or leaves it running
// if already active (so the first loss in a burst sets the deadline).
func (b *Backoff) StartOrExtend() bool {
	if b.holdOff {
		return false
	}
	if b.running {
		return false
	}
	b.running = true
	return true
}

// OnOverheardNack folds another receiver's overheard NACK or
// REPAIR_ADV item into the repair mask, which suppresses duplicate
// NACKing once this node's own timer expires (spec §4.6.3). Ignored
// during hold-off.
func (b *Backoff) OnOverheardNack(objID wire.ObjectId, blockID wire.BlockId, symbolID wire.SymbolId) {
	if b.holdOff {
		return
	}
	blocks, ok := b.repairMask[objID]
	if !ok {
		blocks = make(map[wire.BlockId]map[wire.SymbolId]bool)
		b.repairMask[objID] = blocks
	}
	syms, ok := blocks[blockID]
	if !ok {
		syms = make(map[wire.SymbolId]bool)
		blocks[blockID] = syms
	}
	syms[symbolID] = true
}

// Suppressed reports whether every item in pending is already covered
// by the accumulated repair mask, i.e. repairPending = pending-repair
// is empty (spec §4.6.3 step 1).
func (b *Backoff) Suppressed(objID wire.ObjectId, pending []wire.RepairItem) bool {
	covered := b.repairMask[objID]
	for _, item := range pending {
		if covered == nil {
			return false
		}
		syms := covered[item.BlockId]
		if syms == nil || !syms[item.SymbolId] {
			return false
		}
	}
	return true
}

// Expire fires the back-off timer: the caller uses Suppressed to
// decide whether to NACK, then transitions to hold-off.
func (b *Backoff) Expire() {
	b.running = false
	b.repairMask = make(map[wire.ObjectId]map[wire.BlockId]map[wire.SymbolId]bool)
	b.holdOff = true
}

// HoldoffInterval returns the post-NACK hold-off window (spec §4.6.3
// step 4): grtt*(backoffFactor+2) on multicast, grtt+min(pktInterval,
// grtt) on unicast.
func (b *Backoff) HoldoffInterval(pktInterval time.Duration) time.Duration {
	if b.Unicast {
		m := pktInterval
		if b.Grtt < m {
			m = b.Grtt
		}
		return b.Grtt + m
	}
	return time.Duration(float64(b.Grtt) * (b.BackoffFactor + 2))
}

// EndHoldoff returns to idle, ready to arm on the next new repair.
func (b *Backoff) EndHoldoff() { b.holdOff = false }

// Running reports whether the back-off timer is currently armed.
func (b *Backoff) Running() bool { return b.running }

// HoldingOff reports whether the node is in the post-NACK hold-off
// phase, during which REPAIR_ADV traffic is ignored for scheduling.
func (b *Backoff) HoldingOff() bool { return b.holdOff }

// BuildNacks coalesces an object's pending repair items into one or
// more RepairRequests, each limited to maxBytes of encoded size
// (spec §4.6.3 step 2).
func BuildNacks(objID wire.ObjectId, obj *object.Object, maxBytes int) []wire.RepairRequest {
	items := obj.AppendRepairRequest(false)
	if len(items) == 0 {
		return nil
	}
	grouped := make(map[wire.BlockId][]wire.SymbolId)
	var order []wire.BlockId
	for _, it := range items {
		if _, ok := grouped[it.BlockId]; !ok {
			order = append(order, it.BlockId)
		}
		grouped[it.BlockId] = append(grouped[it.BlockId], it.SymbolId)
	}
	var reqs []wire.RepairRequest
	var cur wire.RepairRequest
	curLen := 4
	flush := func() {
		if len(cur.Items) > 0 {
			reqs = append(reqs, cur)
			cur = wire.RepairRequest{}
			curLen = 4
		}
	}
	blockLen := uint16(0)
	if len(items) > 0 {
		blockLen = items[0].BlockLen
	}
	for _, blockID := range order {
		req := wire.CoalesceItems(objID, blockID, blockLen, grouped[blockID])
		sz := 4 + len(req.Items)*10
		if curLen+sz > maxBytes && len(cur.Items) > 0 {
			flush()
		}
		if len(cur.Items) == 0 {
			cur = req
		} else {
			cur.Items = append(cur.Items, req.Items...)
		}
		curLen += sz
	}
	flush()
	return reqs
}
