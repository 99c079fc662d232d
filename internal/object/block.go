package object

import "github.com/normproto/norm/internal/wire"

// Block holds one FEC block's segment buffers and transmit/receive
// bookkeeping. Segments 0..ndata-1 are source symbols; ndata..ndata+
// nparity-1 are parity symbols, materialized lazily as encoding
// proceeds.
type Block struct {
	ID       wire.BlockId
	segments [][]byte // len == ndata+nparity; nil entries are not yet present
	ndata    int
	nparity  int

	// parityReadiness counts how many source symbols have been folded
	// into the incremental FEC encode so far (spec §4.4 "Block-parity
	// readiness"): transmitting parity symbol k needs
	// parityReadiness >= ndata, or an explicit one-shot encode.
	parityReadiness int

	// erasureCount is the receiver-side count of source symbols still
	// missing for this block.
	erasureCount int
	// repairCount mirrors erasureCount's complement on parity arrival,
	// tracking how many parity symbols have been cached so decode can
	// be attempted once erasureCount <= repairCount.
	repairCount int

	pending []bool // per-segment pending-for-transmission (sender) or pending-for-receipt (receiver)
	decoded bool

	delivered bool
}

// NewBlock allocates a block with ndata+nparity empty segment slots.
func NewBlock(id wire.BlockId, ndata, nparity int) *Block {
	return &Block{
		ID:      id,
		segments: make([][]byte, ndata+nparity),
		ndata:   ndata,
		nparity: nparity,
		pending: make([]bool, ndata+nparity),
	}
}

// Reset clears a block for reuse by the pool (stealing or recycling
// after release), dropping all segment references.
func (b *Block) Reset(id wire.BlockId, ndata, nparity int) {
	b.ID = id
	b.ndata = ndata
	b.nparity = nparity
	if len(b.segments) < ndata+nparity {
		b.segments = make([][]byte, ndata+nparity)
	} else {
		b.segments = b.segments[:ndata+nparity]
		for i := range b.segments {
			b.segments[i] = nil
		}
	}
	if len(b.pending) < ndata+nparity {
		b.pending = make([]bool, ndata+nparity)
	} else {
		b.pending = b.pending[:ndata+nparity]
		for i := range b.pending {
			b.pending[i] = false
		}
	}
	b.parityReadiness = 0
	b.erasureCount = 0
	b.repairCount = 0
	b.decoded = false
	b.delivered = false
}

// SetSegment installs a segment buffer at position i (source symbol if
// i < ndata, parity otherwise).
func (b *Block) SetSegment(i int, seg []byte) { b.segments[i] = seg }

// Segment returns the segment buffer at position i, or nil.
func (b *Block) Segment(i int) []byte { return b.segments[i] }

// NumData returns the source symbol count configured for this block.
func (b *Block) NumData() int { return b.ndata }

// NumParity returns the parity symbol count configured for this block.
func (b *Block) NumParity() int { return b.nparity }

// SetPending marks segment i pending.
func (b *Block) SetPending(i int) { b.pending[i] = true }

// ClearPending unmarks segment i pending.
func (b *Block) ClearPending(i int) { b.pending[i] = false }

// IsPending reports whether segment i is pending.
func (b *Block) IsPending(i int) bool { return b.pending[i] }

// AnyPending reports whether any segment up to n is still pending.
func (b *Block) AnyPending(n int) bool {
	for i := 0; i < n && i < len(b.pending); i++ {
		if b.pending[i] {
			return true
		}
	}
	return false
}

// ParityReady reports whether parity symbol at data-relative index i
// (0-based among the nparity slots) can be transmitted: every source
// symbol has already fed the incremental encode, or a one-shot encode
// has forced full readiness via SetParityReadiness.
func (b *Block) ParityReady(i int) bool {
	return b.parityReadiness >= b.ndata
}

// AdvanceParityReadiness records that source symbol index has been
// folded into the incremental encode.
func (b *Block) AdvanceParityReadiness() {
	if b.parityReadiness < b.ndata {
		b.parityReadiness++
	}
}

// SetParityReadiness forces full readiness, used after a one-shot
// encode of every parity segment at once.
func (b *Block) SetParityReadiness() { b.parityReadiness = b.ndata }

// Decoded reports whether this block's erasures have already been
// repaired by an FEC decode pass.
func (b *Block) Decoded() bool { return b.decoded }

// MarkDecoded records that this block has been decoded.
func (b *Block) MarkDecoded() { b.decoded = true }

// ErasureCount returns the number of source symbols still missing.
func (b *Block) ErasureCount() int { return b.erasureCount }

// SetErasureCount overwrites the erasure count, recomputed by the
// caller from the pending mask on each arrival.
func (b *Block) SetErasureCount(n int) { b.erasureCount = n }

// RepairCount returns the number of parity symbols cached so far.
func (b *Block) RepairCount() int { return b.repairCount }

// IncRepairCount records a newly-cached parity symbol.
func (b *Block) IncRepairCount() { b.repairCount++ }

// Delivered reports whether this block's content has already been
// handed to storage, so a receiver doesn't double-write or
// double-count completion on a duplicate arrival.
func (b *Block) Delivered() bool { return b.delivered }

// MarkDelivered records that this block's content has been handed to
// storage.
func (b *Block) MarkDelivered() { b.delivered = true }

// IsRepairPending reports whether this block still needs data, used
// by the stealing policy to prefer non-pending victims (spec §4.4).
func (b *Block) IsRepairPending() bool {
	return b.AnyPending(b.ndata + b.nparity)
}
