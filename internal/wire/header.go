package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MsgType is the NORM common-header message type (spec §4.2, §6).
type MsgType byte

const (
	MsgInfo   MsgType = 1
	MsgData   MsgType = 2
	MsgCmd    MsgType = 3
	MsgNack   MsgType = 4
	MsgAck    MsgType = 5
	MsgReport MsgType = 6
)

// ProtocolVersion is the NORM wire version this codec speaks.
const ProtocolVersion = 1

// commonHeaderLen is the fixed 8-byte common header: version/type
// nibble, hdrLen in 4-byte words, 16-bit sequence, 32-bit sourceId.
const commonHeaderLen = 8

// ErrTruncated is returned for a packet shorter than its declared
// structure; the caller must drop the packet (spec §7 "wire-format
// errors... drop the packet").
var ErrTruncated = errors.New("wire: truncated message")

// Header is the common NORM message header shared by every flavor.
type Header struct {
	Version  byte
	Type     MsgType
	HdrLen   byte // whole header length (common header, fixed fields, extensions), in 4-byte words
	Sequence uint16
	SourceId NodeId
}

func (h Header) pack(b []byte) {
	b[0] = (h.Version << 4) | byte(h.Type)&0x0F
	b[1] = h.HdrLen
	binary.BigEndian.PutUint16(b[2:4], h.Sequence)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.SourceId))
}

func unpackHeader(b []byte) (Header, error) {
	if len(b) < commonHeaderLen {
		return Header{}, ErrTruncated
	}
	return Header{
		Version:  b[0] >> 4,
		Type:     MsgType(b[0] & 0x0F),
		HdrLen:   b[1],
		Sequence: binary.BigEndian.Uint16(b[2:4]),
		SourceId: NodeId(binary.BigEndian.Uint32(b[4:8])),
	}, nil
}

// Flags are the per-message bit flags carried on DATA/INFO (spec §4.2).
type Flags byte

const (
	FlagStream Flags = 1 << 0
	FlagFile   Flags = 1 << 1
	FlagInfo   Flags = 1 << 2 // DATA-bearing INFO
	FlagRepair Flags = 1 << 3
	FlagSyn    Flags = 1 << 4
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
