/*
@Language: Go 1.23.4
*/

package norm

import (
	"testing"
	"time"

	"github.com/normproto/norm/internal/object"
	"github.com/normproto/norm/internal/wire"
)

func testConfig(port int) Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = port
	cfg.NodeId = 1
	cfg.Ndata = 4
	cfg.Nparity = 2
	cfg.SegmentSize = 64
	return cfg
}

func TestSessionOpenClose(t *testing.T) {
	s, err := Open(testConfig(16003))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSessionEnqueueObject(t *testing.T) {
	s, err := Open(testConfig(16004))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	if err := s.EnqueueObject(wire.ObjectId(1), object.TypeData, data, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s.mu.Lock()
	_, pending := s.sender.MsgQueue.Peek()
	s.mu.Unlock()
	_ = pending
}

func TestSessionHandlerReceivesEvents(t *testing.T) {
	s, err := Open(testConfig(16005))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	received := make(chan Event, 1)
	s.SetHandler(HandlerFunc(func(e Event) {
		select {
		case received <- e:
		default:
		}
	}))
	s.notify(Event{Type: TxFlushCompleted})

	select {
	case e := <-received:
		if e.Type != TxFlushCompleted {
			t.Fatalf("unexpected event type: %v", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}
