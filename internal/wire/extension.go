package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ExtType identifies a header extension's typed payload (spec §9
// "Header-extension iteration").
type ExtType byte

const (
	ExtFTI        ExtType = 1
	ExtCCRate     ExtType = 2
	ExtCCFeedback ExtType = 3
	ExtAppAck     ExtType = 4
)

// Extension is one {type, length, payload} header-extension record. The
// length byte counts 4-byte words of payload, matching the common
// header's hdrLen convention.
type Extension struct {
	Type    ExtType
	Payload []byte
}

// ParseExtensions decodes a zero-copy sequence of extensions from b,
// enforcing monotonic parse progress (each record consumes at least 2
// bytes) so a malformed length cannot spin the iterator.
func ParseExtensions(b []byte) ([]Extension, error) {
	var exts []Extension
	for len(b) > 0 {
		if b[0] == 0 {
			// A zero type byte starts the padding Pack adds to reach a
			// 4-byte header boundary; no extension uses type 0.
			break
		}
		if len(b) < 2 {
			return nil, ErrTruncated
		}
		typ := ExtType(b[0])
		words := int(b[1])
		n := 2 + words*4
		if n > len(b) {
			return nil, ErrTruncated
		}
		exts = append(exts, Extension{Type: typ, Payload: b[2:n]})
		b = b[n:]
	}
	return exts, nil
}

// EncodeExtensions packs a sequence of extensions back into wire bytes.
func EncodeExtensions(exts []Extension) []byte {
	var out []byte
	for _, e := range exts {
		words := (len(e.Payload) + 3) / 4
		padded := make([]byte, words*4)
		copy(padded, e.Payload)
		out = append(out, byte(e.Type), byte(words))
		out = append(out, padded...)
	}
	return out
}

// FTI carries FEC Object Transmission Information (spec §4.6.2): the
// object's FEC geometry, deferred or preset by the embedder until
// carried on an INFO-bearing packet.
type FTI struct {
	FecID        byte
	M            byte
	ObjectSize   uint64
	SegmentSize  uint16
	BlockLen     uint16 // ndata
	NumParity    uint16
}

func (f FTI) Encode() Extension {
	p := make([]byte, 16)
	p[0] = f.FecID
	p[1] = f.M
	binary.BigEndian.PutUint64(p[2:10], f.ObjectSize)
	binary.BigEndian.PutUint16(p[10:12], f.SegmentSize)
	binary.BigEndian.PutUint16(p[12:14], f.BlockLen)
	binary.BigEndian.PutUint16(p[14:16], f.NumParity)
	return Extension{Type: ExtFTI, Payload: p}
}

func DecodeFTI(e Extension) (FTI, error) {
	if e.Type != ExtFTI || len(e.Payload) < 16 {
		return FTI{}, errors.Wrap(ErrTruncated, "FTI extension")
	}
	p := e.Payload
	return FTI{
		FecID:       p[0],
		M:           p[1],
		ObjectSize:  binary.BigEndian.Uint64(p[2:10]),
		SegmentSize: binary.BigEndian.Uint16(p[10:12]),
		BlockLen:    binary.BigEndian.Uint16(p[12:14]),
		NumParity:   binary.BigEndian.Uint16(p[14:16]),
	}, nil
}

// CC congestion-control node flags (spec §4.2 CMD(CC)).
const (
	CCFlagCLR   byte = 1 << 0
	CCFlagPLR   byte = 1 << 1
	CCFlagRTT   byte = 1 << 2
	CCFlagStart byte = 1 << 3
	CCFlagLimit byte = 1 << 4
)

// CCFeedback is the NACK/ACK CC_FEEDBACK header extension (spec §4.2).
type CCFeedback struct {
	Flags           byte
	CCSequence      uint16
	RttQuantized    uint8
	LossQuantized32 uint32
	RateQuantized   uint16
}

func (c CCFeedback) Encode() Extension {
	p := make([]byte, 10)
	p[0] = c.Flags
	binary.BigEndian.PutUint16(p[1:3], c.CCSequence)
	p[3] = c.RttQuantized
	binary.BigEndian.PutUint32(p[4:8], c.LossQuantized32)
	binary.BigEndian.PutUint16(p[8:10], c.RateQuantized)
	return Extension{Type: ExtCCFeedback, Payload: p}
}

func DecodeCCFeedback(e Extension) (CCFeedback, error) {
	if e.Type != ExtCCFeedback || len(e.Payload) < 10 {
		return CCFeedback{}, errors.Wrap(ErrTruncated, "CC_FEEDBACK extension")
	}
	p := e.Payload
	return CCFeedback{
		Flags:           p[0],
		CCSequence:      binary.BigEndian.Uint16(p[1:3]),
		RttQuantized:    p[3],
		LossQuantized32: binary.BigEndian.Uint32(p[4:8]),
		RateQuantized:   binary.BigEndian.Uint16(p[8:10]),
	}, nil
}

// CCRate is the simpler CC_RATE extension: a single quantized rate.
// Nothing in this package attaches it to a message; CMD(CC) node tables
// carry rates in CCNodeReport rows.
type CCRate struct {
	RateQuantized uint16
}

func (c CCRate) Encode() Extension {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, c.RateQuantized)
	return Extension{Type: ExtCCRate, Payload: p}
}

func DecodeCCRate(e Extension) (CCRate, error) {
	if e.Type != ExtCCRate || len(e.Payload) < 2 {
		return CCRate{}, errors.Wrap(ErrTruncated, "CC_RATE extension")
	}
	return CCRate{RateQuantized: binary.BigEndian.Uint16(e.Payload[:2])}, nil
}

// AppAck carries an opaque application positive-ack payload (NormAppAck,
// spec §4.6.5), forwarded to the embedder as RX_ACK_REQUEST.
type AppAck struct {
	Payload []byte
}

func (a AppAck) Encode() Extension {
	return Extension{Type: ExtAppAck, Payload: a.Payload}
}

func DecodeAppAck(e Extension) (AppAck, error) {
	if e.Type != ExtAppAck {
		return AppAck{}, errors.Wrap(ErrTruncated, "APP_ACK extension")
	}
	return AppAck{Payload: e.Payload}, nil
}
