// Package rxsess implements the receiver-side tracking of one remote
// sender: sync policy, object admission, NACK construction and
// back-off, the TFRC loss-event estimator, positive-ACK emission, and
// the per-sender activity timer (spec §4.6).
package rxsess

import (
	"github.com/normproto/norm/internal/object"
	"github.com/normproto/norm/internal/wire"
)

// SyncPolicy controls which packet types a receiver will synchronize
// a new remote sender on (spec §4.6.1).
type SyncPolicy int

const (
	SyncCurrent SyncPolicy = iota // default: INFO or block-zero DATA, never REPAIR
	SyncStream                    // any stream DATA
	SyncAll                       // anything
)

// maxPendingRange bounds how far back SYNC_ALL reaches when
// synchronizing on an object seen mid-stream.
const maxPendingRange = 256

// Node tracks one remote sender as observed by this receiver.
type Node struct {
	ID         wire.NodeId
	InstanceId wire.InstanceId
	Policy     SyncPolicy

	synced     bool
	syncID     wire.ObjectId
	nextID     wire.ObjectId
	maxPending wire.ObjectId

	Objects map[wire.ObjectId]*object.Object

	Backoff  *Backoff
	Loss     *LossEstimator
	Activity *ActivityTimer
}

// NewNode creates an unsynchronized remote-sender tracker.
func NewNode(id wire.NodeId, policy SyncPolicy) *Node {
	return &Node{
		ID:      id,
		Policy:  policy,
		Objects: make(map[wire.ObjectId]*object.Object),
		Backoff: NewBackoff(),
		Loss:    NewLossEstimator(),
	}
}

// ShouldSync reports whether a just-observed packet qualifies for
// initial sync under the node's configured policy (spec §4.6.1).
// isBlockZeroData means a DATA message at block 0 of its object.
func (n *Node) ShouldSync(msgType wire.MsgType, isStreamData, isBlockZeroData, isRepair bool) bool {
	switch n.Policy {
	case SyncAll:
		return true
	case SyncStream:
		return isStreamData
	default: // SyncCurrent
		if isRepair {
			return false
		}
		return msgType == wire.MsgInfo || isBlockZeroData
	}
}

// Sync synchronizes on firstSeen, recording the sync window (spec
// §4.6.1). The node keeps no per-object pending set: objects from
// sync_id to firstSeen are not marked pending here.
func (n *Node) Sync(firstSeen wire.ObjectId, isBlockZeroData bool) {
	if n.synced {
		return
	}
	lo := firstSeen
	if n.Policy == SyncAll {
		lo = firstSeen - maxPendingRange + 1
	}
	n.syncID = lo
	n.nextID = firstSeen
	n.maxPending = firstSeen
	n.synced = true
	// Object admission within [syncID, nextID] is driven by the
	// session as objects are actually observed on the wire.
}

// Synced reports whether this node has completed initial sync.
func (n *Node) Synced() bool { return n.synced }

// OnSquelch trims pending state from below to squelch.ObjectId and
// discards listed invalid objects (spec §4.6.1).
func (n *Node) OnSquelch(squelchObjectId wire.ObjectId, invalid []wire.ObjectId) {
	for id, obj := range n.Objects {
		if id.LessThan(squelchObjectId) {
			obj.Close()
			delete(n.Objects, id)
		}
	}
	for _, id := range invalid {
		if obj, ok := n.Objects[id]; ok {
			obj.Close()
			delete(n.Objects, id)
		}
	}
	if n.syncID.LessThan(squelchObjectId) {
		n.syncID = squelchObjectId
	}
}

// OnInstanceChange resets all remote-sender state on an InstanceId
// change (spec §4.6.1), returning true if this was actually a change
// the caller should notify the embedder about.
func (n *Node) OnInstanceChange(newInstance wire.InstanceId) bool {
	if n.synced && newInstance == n.InstanceId {
		return false
	}
	for _, obj := range n.Objects {
		obj.Close()
	}
	n.Objects = make(map[wire.ObjectId]*object.Object)
	n.synced = false
	n.InstanceId = newInstance
	return true
}
