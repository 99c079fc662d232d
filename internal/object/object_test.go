package object

import (
	"bytes"
	"testing"

	"github.com/normproto/norm/internal/fec"
	"github.com/normproto/norm/internal/pool"
	"github.com/normproto/norm/internal/wire"
)

func newPools(t *testing.T, blocks, segs, segSize int) (*pool.Pool[*Block], *pool.SegmentPool) {
	t.Helper()
	bp := pool.New[*Block](blocks)
	bp.Prime(func() *Block { return NewBlock(0, 0, 0) })
	sp := pool.NewSegmentPool(segs, segSize)
	return bp, sp
}

func TestObjectSenderReceiverRoundTrip(t *testing.T) {
	const ndata, nparity, segSize = 4, 2, 16
	payload := bytes.Repeat([]byte("x"), ndata*segSize)

	senderCodec, err := fec.New(fec.FecIDRS8, 8)
	if err != nil {
		t.Fatalf("fec.New: %v", err)
	}
	if err := senderCodec.Init(ndata, nparity, segSize); err != nil {
		t.Fatalf("Init: %v", err)
	}
	bp, sp := newPools(t, 4, 4*nparity, segSize)

	sender, err := Open(Config{
		ID:      1,
		Role:    RoleSender,
		Type:    TypeData,
		Size:    uint64(len(payload)),
		Fec:     FecParams{FecID: fec.FecIDRS8, M: 8, Ndata: ndata, Nparity: nparity, SegSize: segSize},
		Storage: NewDataStorage(payload),
	}, senderCodec, bp, sp)
	if err != nil {
		t.Fatalf("Open sender: %v", err)
	}

	receiverCodec, err := fec.New(fec.FecIDRS8, 8)
	if err != nil {
		t.Fatalf("fec.New: %v", err)
	}
	if err := receiverCodec.Init(ndata, nparity, segSize); err != nil {
		t.Fatalf("Init: %v", err)
	}
	bp2, sp2 := newPools(t, 4, 4*nparity, segSize)
	dst := NewDataStorage(make([]byte, len(payload)))
	receiver, err := Open(Config{
		ID:      1,
		Role:    RoleReceiver,
		Type:    TypeData,
		Size:    uint64(len(payload)),
		Fec:     FecParams{FecID: fec.FecIDRS8, M: 8, Ndata: ndata, Nparity: nparity, SegSize: segSize},
		Storage: dst,
	}, receiverCodec, bp2, sp2)
	if err != nil {
		t.Fatalf("Open receiver: %v", err)
	}

	var msgs []wire.Message
	for {
		sm, ok, err := sender.NextSenderMsg([]*Object{sender})
		if err != nil {
			t.Fatalf("NextSenderMsg: %v", err)
		}
		if !ok {
			break
		}
		if sm.Msg.Header.Type == wire.MsgData {
			msgs = append(msgs, sm.Msg)
		}
		if len(msgs) >= ndata {
			break
		}
	}
	if len(msgs) != ndata {
		t.Fatalf("expected %d DATA messages, got %d", ndata, len(msgs))
	}

	// Drop one source segment to force an FEC decode; supply one parity.
	dropped := msgs[1]
	for i, m := range msgs {
		if i == 1 {
			continue
		}
		if err := receiver.HandleObjectMessage(m, []*Object{receiver}); err != nil {
			t.Fatalf("HandleObjectMessage: %v", err)
		}
	}
	_ = dropped

	// Fetch one parity symbol from the sender and deliver it.
	var parityMsg wire.Message
	for {
		sm, ok, err := sender.NextSenderMsg([]*Object{sender})
		if err != nil {
			t.Fatalf("NextSenderMsg (parity): %v", err)
		}
		if !ok {
			t.Fatal("expected parity message")
		}
		if sm.Msg.Header.Type == wire.MsgData && int(sm.Msg.Fec.SymbolId) >= ndata {
			parityMsg = sm.Msg
			break
		}
	}
	if err := receiver.HandleObjectMessage(parityMsg, []*Object{receiver}); err != nil {
		t.Fatalf("HandleObjectMessage (parity): %v", err)
	}

	if !bytes.Equal(dst.Bytes(), payload) {
		t.Fatalf("decoded payload mismatch:\ngot  %q\nwant %q", dst.Bytes(), payload)
	}
}

func TestStreamWriteReadTerminate(t *testing.T) {
	s := newStreamState(4, 2)
	n, err := s.Write([]byte("hello world"), 4, false)
	if err != nil || n != len("hello world") {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	s.Terminate()

	var out bytes.Buffer
	buf := make([]byte, 4)
	for {
		n, done, err := s.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if done {
			break
		}
		out.Write(buf[:n])
	}
	if out.String() != "hello world" {
		t.Fatalf("got %q", out.String())
	}
}

func TestGeometryLargeBlockOrdering(t *testing.T) {
	g := ComputeGeometry(1000, 100, 3)
	if g.NumSegments != 10 {
		t.Fatalf("expected 10 segments, got %d", g.NumSegments)
	}
	if g.NumBlocks != 4 {
		t.Fatalf("expected 4 blocks, got %d", g.NumBlocks)
	}
	// 10 segments / 4 blocks => small=2, rem=2 large blocks of 3.
	if g.LargeBlockCount != 2 || g.LargeBlockLen != 3 || g.SmallBlockLen != 2 {
		t.Fatalf("unexpected geometry: %+v", g)
	}
	if g.BlockLen(0) != 3 || g.BlockLen(2) != 2 {
		t.Fatalf("unexpected per-block length: b0=%d b2=%d", g.BlockLen(0), g.BlockLen(2))
	}
}
