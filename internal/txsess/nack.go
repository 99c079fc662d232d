package txsess

import (
	"time"

	"github.com/normproto/norm/internal/object"
	"github.com/normproto/norm/internal/wire"
)

// Disposition is how one NACK repair item compares against the
// sender's current transmit position (spec §4.5.4).
type Disposition int

const (
	DispositionAhead Disposition = iota
	DispositionEqual
	DispositionLate
)

// Classify compares a repair item's block id against the sender's
// current transmit index.
func Classify(item wire.RepairItem, txBlock wire.BlockId) Disposition {
	switch {
	case item.BlockId.After(txBlock):
		return DispositionAhead
	case item.BlockId == txBlock:
		return DispositionEqual
	default:
		return DispositionLate
	}
}

// RepairAggregator accumulates NACK-derived repair state across an
// aggregation window before activating repairs, then holds off to
// avoid amplifying duplicate NACKs (spec §4.5.4).
type RepairAggregator struct {
	GrttAdvertised time.Duration
	BackoffFactor  float64
	Unicast        bool

	active    bool
	holdingOff bool
	pending   map[wire.ObjectId][]wire.RepairItem
}

// NewRepairAggregator starts idle.
func NewRepairAggregator() *RepairAggregator {
	return &RepairAggregator{pending: make(map[wire.ObjectId][]wire.RepairItem)}
}

// AggregationInterval returns the duration NACKs accumulate before
// repairs activate: zero for unicast.
func (a *RepairAggregator) AggregationInterval() time.Duration {
	if a.Unicast {
		return 0
	}
	return time.Duration(float64(a.GrttAdvertised) * (a.BackoffFactor + 1))
}

// HoldoffInterval returns the post-activation window during which new
// aggregate NACKs are ignored.
func (a *RepairAggregator) HoldoffInterval() time.Duration {
	return a.GrttAdvertised
}

// Accumulate folds a repair item into the pending aggregate, provided
// the aggregator isn't in hold-off.
func (a *RepairAggregator) Accumulate(objID wire.ObjectId, item wire.RepairItem) bool {
	if a.holdingOff {
		return false
	}
	a.active = true
	a.pending[objID] = append(a.pending[objID], item)
	return true
}

// Active reports whether the aggregation timer is currently running.
func (a *RepairAggregator) Active() bool { return a.active }

// Activate promotes every accumulated repair item into the named
// object's pending transmit state, then enters hold-off.
func (a *RepairAggregator) Activate(objects map[wire.ObjectId]*object.Object) {
	for objID, items := range a.pending {
		obj, ok := objects[objID]
		if !ok {
			continue
		}
		for _, it := range items {
			obj.ReceiverRepairCheck(it.BlockId, it.SymbolId)
			obj.TxResetBlocks(it.BlockId, it.BlockId)
		}
	}
	a.pending = make(map[wire.ObjectId][]wire.RepairItem)
	a.active = false
	a.holdingOff = true
}

// EndHoldoff transitions back to idle once the hold-off window
// elapses.
func (a *RepairAggregator) EndHoldoff() { a.holdingOff = false }

// HoldingOff reports whether overheard REPAIR_ADV/NACK traffic should
// be ignored for scheduling purposes.
func (a *RepairAggregator) HoldingOff() bool { return a.holdingOff }
