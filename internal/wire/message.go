package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// CmdFlavor distinguishes the CMD message sub-types (spec §4.2).
type CmdFlavor byte

const (
	CmdFlush       CmdFlavor = 1
	CmdEot         CmdFlavor = 2
	CmdSquelch     CmdFlavor = 3
	CmdCC          CmdFlavor = 4
	CmdRepairAdv   CmdFlavor = 5
	CmdAckReq      CmdFlavor = 6
	CmdApplication CmdFlavor = 7
)

// CCNodeReport is one row of a CMD(CC) probe's per-node table.
type CCNodeReport struct {
	NodeId        NodeId
	Flags         byte
	RttQuantized  uint8
	RateQuantized uint16
}

const ccNodeReportLen = 8 // nodeId(4) + flags(1) + rtt(1) + rate(2)

// Position names a point in an object's FEC geometry, used by FLUSH,
// SQUELCH, and ACK messages (spec §4.2).
type Position struct {
	ObjectId ObjectId
	BlockId  BlockId
	SymbolId SymbolId
}

// Message is the decoded form of every NORM message flavor. Only the
// fields relevant to Header.Type (and, for CMD, CmdFlavor) are
// meaningful; Pack/Unpack only touch those.
type Message struct {
	Header Header

	// DATA/INFO common fields.
	InstanceId         InstanceId
	GrttQuantized      uint8
	BackoffFactor      uint8
	GroupSizeQuantized uint8
	ObjectId           ObjectId
	Flags              Flags

	// DATA-only.
	Fec            FecPayloadId
	StreamMsgStart uint16
	StreamLength   uint16
	StreamOffset   uint32

	// CMD.
	CmdFlavor      CmdFlavor
	Pos            Position // FLUSH/SQUELCH position
	Ackers         []NodeId // FLUSH
	InvalidObjects []ObjectId
	CCSequence     uint16
	CCSendTimeUsec uint64
	CCNodes        []CCNodeReport
	AppPayload     []byte

	// NACK/ACK.
	SenderId         NodeId
	HasGrttResponse  bool
	GrttResponseUsec uint64
	RepairRequests   []RepairRequest // NACK, REPAIR_ADV
	AckPos           Position        // ACK

	Extensions []Extension
	Payload    []byte // INFO info-bytes, DATA segment bytes
}

// Pack serializes m into a single UDP payload.
func Pack(m Message) ([]byte, error) {
	fixed, err := packFixed(m)
	if err != nil {
		return nil, err
	}
	exts := EncodeExtensions(m.Extensions)
	body, err := packBody(m)
	if err != nil {
		return nil, err
	}

	hdrBytes := commonHeaderLen + len(fixed) + len(exts)
	hdrWords := (hdrBytes + 3) / 4
	padded := hdrWords*4 - hdrBytes

	out := make([]byte, commonHeaderLen+len(fixed)+len(exts)+padded+len(body))
	hdr := m.Header
	hdr.HdrLen = byte(hdrWords)
	hdr.pack(out[:commonHeaderLen])
	off := commonHeaderLen
	copy(out[off:], fixed)
	off += len(fixed)
	copy(out[off:], exts)
	off += len(exts)
	off += padded
	copy(out[off:], body)
	return out, nil
}

// Unpack parses a received UDP payload into a Message, returning
// ErrTruncated for a short or malformed field and a descriptive error
// for an unknown message type or CMD flavor (spec §7: drop the packet,
// never propagate the detail to the embedder).
func Unpack(raw []byte) (Message, error) {
	hdr, err := unpackHeader(raw)
	if err != nil {
		return Message{}, err
	}
	hdrBytes := int(hdr.HdrLen) * 4
	if hdrBytes < commonHeaderLen || hdrBytes > len(raw) {
		return Message{}, ErrTruncated
	}
	m := Message{Header: hdr}
	fixedAndExt := raw[commonHeaderLen:hdrBytes]
	body := raw[hdrBytes:]

	fixedLen, err := unpackFixed(&m, fixedAndExt)
	if err != nil {
		return Message{}, err
	}
	if fixedLen > len(fixedAndExt) {
		return Message{}, ErrTruncated
	}
	exts, err := ParseExtensions(fixedAndExt[fixedLen:])
	if err != nil {
		return Message{}, err
	}
	m.Extensions = exts

	if err := unpackBody(&m, body); err != nil {
		return Message{}, err
	}
	return m, nil
}

func packFixed(m Message) ([]byte, error) {
	switch m.Header.Type {
	case MsgInfo, MsgData:
		b := make([]byte, 10)
		binary.BigEndian.PutUint16(b[0:2], uint16(m.InstanceId))
		b[2] = m.GrttQuantized
		b[3] = m.BackoffFactor
		b[4] = m.GroupSizeQuantized
		binary.BigEndian.PutUint16(b[5:7], uint16(m.ObjectId))
		b[7] = byte(m.Flags)
		// reserve b[8:10]
		if m.Header.Type == MsgData {
			fb := make([]byte, 10)
			binary.BigEndian.PutUint32(fb[0:4], uint32(m.Fec.BlockId))
			binary.BigEndian.PutUint16(fb[4:6], uint16(m.Fec.SymbolId))
			binary.BigEndian.PutUint16(fb[6:8], m.Fec.SourceBlkLen)
			binary.BigEndian.PutUint16(fb[8:10], 0)
			b = append(b, fb...)
			if m.Flags.Has(FlagStream) {
				sb := make([]byte, 8)
				binary.BigEndian.PutUint16(sb[0:2], m.StreamMsgStart)
				binary.BigEndian.PutUint16(sb[2:4], m.StreamLength)
				binary.BigEndian.PutUint32(sb[4:8], m.StreamOffset)
				b = append(b, sb...)
			}
		}
		return b, nil
	case MsgCmd:
		b := []byte{byte(m.CmdFlavor)}
		return b, nil
	case MsgNack, MsgAck:
		b := make([]byte, 5)
		binary.BigEndian.PutUint32(b[0:4], uint32(m.SenderId))
		b[4] = boolByte(m.HasGrttResponse)
		if m.HasGrttResponse {
			gb := make([]byte, 8)
			binary.BigEndian.PutUint64(gb, m.GrttResponseUsec)
			b = append(b, gb...)
		}
		return b, nil
	default:
		return nil, errors.Errorf("wire: unknown message type %d", m.Header.Type)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func unpackFixed(m *Message, b []byte) (int, error) {
	switch m.Header.Type {
	case MsgInfo, MsgData:
		if len(b) < 10 {
			return 0, ErrTruncated
		}
		m.InstanceId = InstanceId(binary.BigEndian.Uint16(b[0:2]))
		m.GrttQuantized = b[2]
		m.BackoffFactor = b[3]
		m.GroupSizeQuantized = b[4]
		m.ObjectId = ObjectId(binary.BigEndian.Uint16(b[5:7]))
		m.Flags = Flags(b[7])
		n := 10
		if m.Header.Type == MsgData {
			if len(b) < n+10 {
				return 0, ErrTruncated
			}
			fb := b[n : n+10]
			m.Fec.BlockId = BlockId(binary.BigEndian.Uint32(fb[0:4]))
			m.Fec.SymbolId = SymbolId(binary.BigEndian.Uint16(fb[4:6]))
			m.Fec.SourceBlkLen = binary.BigEndian.Uint16(fb[6:8])
			n += 10
			if m.Flags.Has(FlagStream) {
				if len(b) < n+8 {
					return 0, ErrTruncated
				}
				sb := b[n : n+8]
				m.StreamMsgStart = binary.BigEndian.Uint16(sb[0:2])
				m.StreamLength = binary.BigEndian.Uint16(sb[2:4])
				m.StreamOffset = binary.BigEndian.Uint32(sb[4:8])
				n += 8
			}
		}
		return n, nil
	case MsgCmd:
		if len(b) < 1 {
			return 0, ErrTruncated
		}
		m.CmdFlavor = CmdFlavor(b[0])
		return 1, nil
	case MsgNack, MsgAck:
		if len(b) < 5 {
			return 0, ErrTruncated
		}
		m.SenderId = NodeId(binary.BigEndian.Uint32(b[0:4]))
		m.HasGrttResponse = b[4] != 0
		n := 5
		if m.HasGrttResponse {
			if len(b) < n+8 {
				return 0, ErrTruncated
			}
			m.GrttResponseUsec = binary.BigEndian.Uint64(b[n : n+8])
			n += 8
		}
		return n, nil
	default:
		return 0, errors.Errorf("wire: unknown message type %d", m.Header.Type)
	}
}

func packBody(m Message) ([]byte, error) {
	switch m.Header.Type {
	case MsgInfo, MsgData:
		return m.Payload, nil
	case MsgCmd:
		switch m.CmdFlavor {
		case CmdFlush, CmdSquelch:
			b := make([]byte, 2+4+2)
			binary.BigEndian.PutUint16(b[0:2], uint16(m.Pos.ObjectId))
			binary.BigEndian.PutUint32(b[2:6], uint32(m.Pos.BlockId))
			binary.BigEndian.PutUint16(b[6:8], uint16(m.Pos.SymbolId))
			if m.CmdFlavor == CmdFlush {
				cb := make([]byte, 2)
				binary.BigEndian.PutUint16(cb, uint16(len(m.Ackers)))
				b = append(b, cb...)
				for _, a := range m.Ackers {
					ab := make([]byte, 4)
					binary.BigEndian.PutUint32(ab, uint32(a))
					b = append(b, ab...)
				}
			} else {
				cb := make([]byte, 2)
				binary.BigEndian.PutUint16(cb, uint16(len(m.InvalidObjects)))
				b = append(b, cb...)
				for _, o := range m.InvalidObjects {
					ob := make([]byte, 2)
					binary.BigEndian.PutUint16(ob, uint16(o))
					b = append(b, ob...)
				}
			}
			return b, nil
		case CmdEot, CmdAckReq:
			b := make([]byte, 2)
			binary.BigEndian.PutUint16(b, uint16(m.ObjectId))
			return b, nil
		case CmdCC:
			b := make([]byte, 2+8)
			binary.BigEndian.PutUint16(b[0:2], m.CCSequence)
			binary.BigEndian.PutUint64(b[2:10], m.CCSendTimeUsec)
			cb := make([]byte, 2)
			binary.BigEndian.PutUint16(cb, uint16(len(m.CCNodes)))
			b = append(b, cb...)
			for _, n := range m.CCNodes {
				nb := make([]byte, ccNodeReportLen)
				binary.BigEndian.PutUint32(nb[0:4], uint32(n.NodeId))
				nb[4] = n.Flags
				nb[5] = n.RttQuantized
				binary.BigEndian.PutUint16(nb[6:8], n.RateQuantized)
				b = append(b, nb...)
			}
			return b, nil
		case CmdRepairAdv:
			return EncodeRepairRequests(m.RepairRequests), nil
		case CmdApplication:
			return m.AppPayload, nil
		default:
			return nil, errors.Errorf("wire: unknown cmd flavor %d", m.CmdFlavor)
		}
	case MsgNack:
		return EncodeRepairRequests(m.RepairRequests), nil
	case MsgAck:
		b := make([]byte, 2+4+2)
		binary.BigEndian.PutUint16(b[0:2], uint16(m.AckPos.ObjectId))
		binary.BigEndian.PutUint32(b[2:6], uint32(m.AckPos.BlockId))
		binary.BigEndian.PutUint16(b[6:8], uint16(m.AckPos.SymbolId))
		return b, nil
	default:
		return nil, errors.Errorf("wire: unknown message type %d", m.Header.Type)
	}
}

func unpackBody(m *Message, b []byte) error {
	switch m.Header.Type {
	case MsgInfo, MsgData:
		m.Payload = b
		return nil
	case MsgCmd:
		switch m.CmdFlavor {
		case CmdFlush, CmdSquelch:
			if len(b) < 10 {
				return ErrTruncated
			}
			m.Pos = Position{
				ObjectId: ObjectId(binary.BigEndian.Uint16(b[0:2])),
				BlockId:  BlockId(binary.BigEndian.Uint32(b[2:6])),
				SymbolId: SymbolId(binary.BigEndian.Uint16(b[6:8])),
			}
			count := int(binary.BigEndian.Uint16(b[8:10]))
			off := 10
			if m.CmdFlavor == CmdFlush {
				if len(b) < off+count*4 {
					return ErrTruncated
				}
				m.Ackers = make([]NodeId, count)
				for i := 0; i < count; i++ {
					m.Ackers[i] = NodeId(binary.BigEndian.Uint32(b[off : off+4]))
					off += 4
				}
			} else {
				if len(b) < off+count*2 {
					return ErrTruncated
				}
				m.InvalidObjects = make([]ObjectId, count)
				for i := 0; i < count; i++ {
					m.InvalidObjects[i] = ObjectId(binary.BigEndian.Uint16(b[off : off+2]))
					off += 2
				}
			}
			return nil
		case CmdEot, CmdAckReq:
			if len(b) < 2 {
				return ErrTruncated
			}
			m.ObjectId = ObjectId(binary.BigEndian.Uint16(b[0:2]))
			return nil
		case CmdCC:
			if len(b) < 12 {
				return ErrTruncated
			}
			m.CCSequence = binary.BigEndian.Uint16(b[0:2])
			m.CCSendTimeUsec = binary.BigEndian.Uint64(b[2:10])
			count := int(binary.BigEndian.Uint16(b[10:12]))
			off := 12
			if len(b) < off+count*ccNodeReportLen {
				return ErrTruncated
			}
			m.CCNodes = make([]CCNodeReport, count)
			for i := 0; i < count; i++ {
				nb := b[off : off+ccNodeReportLen]
				m.CCNodes[i] = CCNodeReport{
					NodeId:        NodeId(binary.BigEndian.Uint32(nb[0:4])),
					Flags:         nb[4],
					RttQuantized:  nb[5],
					RateQuantized: binary.BigEndian.Uint16(nb[6:8]),
				}
				off += ccNodeReportLen
			}
			return nil
		case CmdRepairAdv:
			reqs, err := DecodeRepairRequests(b)
			if err != nil {
				return err
			}
			m.RepairRequests = reqs
			return nil
		case CmdApplication:
			m.AppPayload = b
			return nil
		default:
			return errors.Errorf("wire: unknown cmd flavor %d", m.CmdFlavor)
		}
	case MsgNack:
		reqs, err := DecodeRepairRequests(b)
		if err != nil {
			return err
		}
		m.RepairRequests = reqs
		return nil
	case MsgAck:
		if len(b) < 8 {
			return ErrTruncated
		}
		m.AckPos = Position{
			ObjectId: ObjectId(binary.BigEndian.Uint16(b[0:2])),
			BlockId:  BlockId(binary.BigEndian.Uint32(b[2:6])),
			SymbolId: SymbolId(binary.BigEndian.Uint16(b[6:8])),
		}
		return nil
	default:
		return errors.Errorf("wire: unknown message type %d", m.Header.Type)
	}
}
