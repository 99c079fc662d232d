// Package wire implements the NORM on-the-wire message codec (spec
// §4.2/§6): the common header, DATA/INFO/CMD/NACK/ACK message flavors,
// header extensions, repair-request encoding, and the fixed-point
// quantization tables for RTT/rate/loss/group-size. All multi-byte
// fields are network byte order, matching RFC 5740.
package wire

// NodeId is a 32-bit opaque sender/receiver identifier.
type NodeId uint32

const (
	NodeIdAny  NodeId = 0xFFFFFFFF
	NodeIdNone NodeId = 0x00000000
)

// ObjectId is a 16-bit sequence number within one sender instance; it
// wraps modulo 2^16, compared with a signed-delta half-space rule.
type ObjectId uint16

// Delta returns b-a as a signed half-space distance: positive when b is
// "ahead" of a in the wrapping 16-bit sequence space.
func (a ObjectId) Delta(b ObjectId) int16 {
	return int16(b - a)
}

func (a ObjectId) LessThan(b ObjectId) bool { return a.Delta(b) > 0 }
func (a ObjectId) After(b ObjectId) bool    { return b.Delta(a) > 0 }

// BlockId is a block number within an object; field width (24 or 32
// bits on the wire) depends on the FEC scheme's m parameter, but it is
// always carried here as a 32-bit value with wraparound comparisons.
type BlockId uint32

func (a BlockId) Delta(b BlockId) int32 {
	return int32(b - a)
}

func (a BlockId) LessThan(b BlockId) bool { return a.Delta(b) > 0 }
func (a BlockId) After(b BlockId) bool    { return b.Delta(a) > 0 }

// SymbolId indexes a symbol within a block: 0..ndata-1 are source
// symbols, ndata..ndata+nparity-1 are parity symbols. Field width is 8
// or 16 bits depending on the FEC scheme's m, carried here as uint16.
type SymbolId uint16

// InstanceId is a 16-bit sender session instance; a change implies the
// receiver must resync (spec §4.6.1).
type InstanceId uint16

// FecPayloadId identifies a DATA segment's place within the FEC block
// geometry (spec §4.2: "(blockId, symbolId, sourceBlockLen)").
type FecPayloadId struct {
	BlockId       BlockId
	SymbolId      SymbolId
	SourceBlkLen  uint16 // number of source symbols in this block ("ndata" for this block)
}
