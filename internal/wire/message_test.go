package wire

import "testing"

func baseHeader(typ MsgType) Header {
	return Header{Version: ProtocolVersion, Type: typ, Sequence: 42, SourceId: NodeId(7)}
}

func TestPackUnpackData(t *testing.T) {
	m := Message{
		Header:             baseHeader(MsgData),
		InstanceId:         InstanceId(3),
		GrttQuantized:      10,
		BackoffFactor:      4,
		GroupSizeQuantized: 20,
		ObjectId:           ObjectId(5),
		Flags:              FlagStream,
		Fec:                FecPayloadId{BlockId: BlockId(99), SymbolId: SymbolId(2), SourceBlkLen: 64},
		StreamMsgStart:     1,
		StreamLength:       128,
		StreamOffset:       4096,
		Extensions:         []Extension{FTI{FecID: 2, M: 8, ObjectSize: 1000, SegmentSize: 1400, BlockLen: 64, NumParity: 16}.Encode()},
		Payload:            []byte("segment payload bytes"),
	}
	raw, err := Pack(m)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := Unpack(raw)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got.ObjectId != m.ObjectId || got.Fec.BlockId != m.Fec.BlockId || got.StreamOffset != m.StreamOffset {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if string(got.Payload) != string(m.Payload) {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
	if len(got.Extensions) != 1 {
		t.Fatalf("expected 1 extension, got %d", len(got.Extensions))
	}
	fti, err := DecodeFTI(got.Extensions[0])
	if err != nil || fti.BlockLen != 64 {
		t.Fatalf("FTI round trip failed: %v %+v", err, fti)
	}
}

func TestPackUnpackInfo(t *testing.T) {
	m := Message{
		Header:   baseHeader(MsgInfo),
		ObjectId: ObjectId(9),
		Flags:    FlagInfo,
		Payload:  []byte("object info bytes"),
	}
	raw, err := Pack(m)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := Unpack(raw)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if string(got.Payload) != string(m.Payload) || got.ObjectId != m.ObjectId {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestPackUnpackNackWithRepairAndCCFeedback(t *testing.T) {
	req := CoalesceItems(ObjectId(1), BlockId(10), 64, []SymbolId{3, 4, 5, 6})
	m := Message{
		Header:           baseHeader(MsgNack),
		SenderId:         NodeId(55),
		HasGrttResponse:  true,
		GrttResponseUsec: 123456,
		RepairRequests:   []RepairRequest{req},
		Extensions: []Extension{CCFeedback{
			Flags:           CCFlagCLR,
			CCSequence:      7,
			RttQuantized:    100,
			LossQuantized32: 1000,
			RateQuantized:   500,
		}.Encode()},
	}
	raw, err := Pack(m)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := Unpack(raw)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !got.HasGrttResponse || got.GrttResponseUsec != 123456 {
		t.Fatalf("grtt response mismatch: %+v", got)
	}
	if len(got.RepairRequests) != 1 || got.RepairRequests[0].Form != RepairRanges {
		t.Fatalf("repair request mismatch: %+v", got.RepairRequests)
	}
	cc, err := DecodeCCFeedback(got.Extensions[0])
	if err != nil || cc.CCSequence != 7 {
		t.Fatalf("CC feedback round trip failed: %v %+v", err, cc)
	}
}

func TestPackUnpackAck(t *testing.T) {
	m := Message{
		Header:   baseHeader(MsgAck),
		SenderId: NodeId(3),
		AckPos:   Position{ObjectId: 2, BlockId: 4, SymbolId: 6},
	}
	raw, err := Pack(m)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := Unpack(raw)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got.AckPos != m.AckPos {
		t.Fatalf("ack position mismatch: %+v", got.AckPos)
	}
}

func TestPackUnpackCmdFlush(t *testing.T) {
	m := Message{
		Header:    baseHeader(MsgCmd),
		CmdFlavor: CmdFlush,
		Pos:       Position{ObjectId: 1, BlockId: 2, SymbolId: 3},
		Ackers:    []NodeId{1, 2, 3},
	}
	raw, err := Pack(m)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := Unpack(raw)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got.CmdFlavor != CmdFlush || len(got.Ackers) != 3 || got.Ackers[2] != 3 {
		t.Fatalf("flush round trip mismatch: %+v", got)
	}
}

func TestPackUnpackCmdCC(t *testing.T) {
	m := Message{
		Header:         baseHeader(MsgCmd),
		CmdFlavor:      CmdCC,
		CCSequence:     9,
		CCSendTimeUsec: 777,
		CCNodes: []CCNodeReport{
			{NodeId: 1, Flags: CCFlagCLR, RttQuantized: 10, RateQuantized: 20},
			{NodeId: 2, Flags: CCFlagPLR, RttQuantized: 30, RateQuantized: 40},
		},
	}
	raw, err := Pack(m)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := Unpack(raw)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(got.CCNodes) != 2 || got.CCNodes[1].RateQuantized != 40 {
		t.Fatalf("cc round trip mismatch: %+v", got.CCNodes)
	}
}

func TestUnpackTruncated(t *testing.T) {
	m := Message{Header: baseHeader(MsgAck), AckPos: Position{ObjectId: 1}}
	raw, _ := Pack(m)
	if _, err := Unpack(raw[:commonHeaderLen]); err == nil {
		t.Fatal("expected error unpacking truncated message")
	}
}
