package txsess

import (
	"testing"
	"time"

	"github.com/normproto/norm/internal/wire"
)

func TestPacerClampsRate(t *testing.T) {
	p := NewPacer(1000, 10000, 500)
	if p.Rate() != 1000 {
		t.Fatalf("expected clamp to min 1000, got %v", p.Rate())
	}
	p.SetRate(50000)
	if p.Rate() != 10000 {
		t.Fatalf("expected clamp to max 10000, got %v", p.Rate())
	}
}

func TestPacerInterval(t *testing.T) {
	p := NewPacer(0, 0, 1000) // 1000 bytes/sec
	iv := p.Interval(500)
	if iv != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", iv)
	}
}

func TestGrttProberBackoffSchedule(t *testing.T) {
	g := NewGrttProber(100*time.Millisecond, time.Second, 10*time.Second)
	first := g.NextInterval()
	second := g.NextInterval()
	if second <= first {
		t.Fatalf("expected growing interval, got %v then %v", first, second)
	}
}

func TestGrttProberOnResponseSmoothing(t *testing.T) {
	g := NewGrttProber(10*time.Millisecond, time.Second, 10*time.Second)
	now := time.Unix(1000, 0)
	sendTime := now.Add(-50 * time.Millisecond)
	g.OnGrttResponse(sendTime, now, true)
	if g.grtt <= 0 {
		t.Fatal("expected nonzero grtt after response")
	}
}

func TestControllerSlowStartExitsOnLoss(t *testing.T) {
	c := NewController(1000, 100, 10*time.Millisecond)
	c.Grtt = 50 * time.Millisecond
	node := &CCNode{ID: 1, IsCLR: true, Rtt: 50 * time.Millisecond, Loss: 0.01, RecvRate: 2000}
	c.Feedback(node)
	if c.SlowStart() {
		t.Fatal("expected slow start to end on first loss report")
	}
}

func TestWatermarkCompletion(t *testing.T) {
	pos := wire.Position{ObjectId: 1, BlockId: 2, SymbolId: 3}
	w := NewWatermark(pos, []wire.NodeId{10, 20}, 3)
	w.OnAck(10, pos)
	if w.Done() {
		t.Fatal("expected watermark not done with one acker pending")
	}
	w.OnAck(20, pos)
	if !w.Done() || !w.Satisfied() {
		t.Fatal("expected watermark done and satisfied")
	}
}

func TestWatermarkExhaustion(t *testing.T) {
	pos := wire.Position{ObjectId: 1}
	w := NewWatermark(pos, []wire.NodeId{10}, 2)
	w.OnFlushSent()
	if w.Done() {
		t.Fatal("should not be done after 1 of 2 attempts")
	}
	w.OnFlushSent()
	if !w.Done() {
		t.Fatal("expected exhaustion after 2 attempts")
	}
	if w.Satisfied() {
		t.Fatal("exhaustion without ack should not be satisfied")
	}
}

func TestClassifyDisposition(t *testing.T) {
	item := wire.RepairItem{BlockId: 10}
	if Classify(item, 5) != DispositionAhead {
		t.Fatal("expected ahead")
	}
	if Classify(item, 10) != DispositionEqual {
		t.Fatal("expected equal")
	}
	if Classify(item, 20) != DispositionLate {
		t.Fatal("expected late")
	}
}
