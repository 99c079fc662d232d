package rxsess

import (
	"testing"
	"time"

	"github.com/normproto/norm/internal/wire"
)

func TestNodeSyncAndSquelch(t *testing.T) {
	n := NewNode(1, SyncCurrent)
	if !n.ShouldSync(wire.MsgInfo, false, false, false) {
		t.Fatal("expected sync on INFO")
	}
	if n.ShouldSync(wire.MsgData, false, false, true) {
		t.Fatal("expected no sync on REPAIR")
	}
	n.Sync(5, false)
	if !n.Synced() {
		t.Fatal("expected synced")
	}
	n.OnSquelch(10, nil)
	if !n.syncID.LessThan(11) {
		t.Fatalf("expected syncID advanced to squelch point, got %d", n.syncID)
	}
}

func TestNodeInstanceChange(t *testing.T) {
	n := NewNode(1, SyncCurrent)
	n.Sync(0, false)
	if !n.OnInstanceChange(42) {
		t.Fatal("expected first instance set to report a change")
	}
	if n.Synced() {
		t.Fatal("expected reset to clear sync state")
	}
}

func TestBackoffSuppression(t *testing.T) {
	b := NewBackoff()
	b.OnOverheardNack(1, 2, 3)
	pending := []wire.RepairItem{{ObjectId: 1, BlockId: 2, SymbolId: 3}}
	if !b.Suppressed(1, pending) {
		t.Fatal("expected suppression: overheard NACK covers pending item")
	}
	pending = append(pending, wire.RepairItem{ObjectId: 1, BlockId: 2, SymbolId: 4})
	if b.Suppressed(1, pending) {
		t.Fatal("expected no suppression: second item not covered")
	}
}

func TestBackoffStartOrExtend(t *testing.T) {
	b := NewBackoff()
	if !b.StartOrExtend() {
		t.Fatal("expected first start to succeed")
	}
	if b.StartOrExtend() {
		t.Fatal("expected already-running timer to not restart")
	}
}

func TestLossEstimatorFirstEvent(t *testing.T) {
	le := NewLossEstimator()
	now := time.Unix(0, 0)
	if !le.OnPacketArrival(now, 10*time.Millisecond, true, false) {
		t.Fatal("expected first out-of-order packet to register as a loss event")
	}
	if le.OnPacketArrival(now.Add(time.Millisecond), 10*time.Millisecond, true, false) {
		t.Fatal("expected second event within the event window to be suppressed")
	}
}

func TestLossEstimatorInitialLoss(t *testing.T) {
	le := NewLossEstimator()
	init := le.OnFirstLossEvent(0.01, 1400, 1e6, 0.05)
	if init <= 0 {
		t.Fatalf("expected positive initial loss, got %v", init)
	}
	if le.SlowStart() {
		t.Fatal("expected slow start to end")
	}
}

func TestActivityTimerExpiry(t *testing.T) {
	a := NewActivityTimer(time.Second, 4, 3, time.Unix(0, 0))
	if _, inactive := a.Expire(); inactive {
		t.Fatal("first expiry should not report inactive")
	}
	a.Expire()
	_, inactive := a.Expire()
	if !inactive {
		t.Fatal("expected inactive after rxRobustFactor expiries")
	}
}

func TestOnFlushArmsBackoff(t *testing.T) {
	pos := wire.Position{ObjectId: 1}
	pa := OnFlush(pos, false, nil, 10*time.Millisecond, time.Unix(0, 0))
	if pa == nil {
		t.Fatal("expected pending ack when repair not satisfied")
	}
	if OnFlush(pos, true, nil, 10*time.Millisecond, time.Unix(0, 0)) != nil {
		t.Fatal("expected no pending ack when already satisfied")
	}
}
