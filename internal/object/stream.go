package object

import (
	"github.com/pkg/errors"

	"github.com/normproto/norm/internal/wire"
)

// ErrStreamStalled is returned by Write when the stream's write
// window has run ahead of what the transmit side has drained and the
// caller did not request push mode (spec §4.4 "write blocks").
var ErrStreamStalled = errors.New("object: stream write window full")

// streamRingBudget bounds how many blocks of un-drained application
// data a stream may buffer before Write stalls the writer (spec §4.4:
// "(writeIndex.block − txIndex.block) > txPool/2").
const streamRingBudget = 64

type streamSegment struct {
	data []byte
	eof  bool
}

// streamState backs a NORM_OBJECT_STREAM object: an open-ended ring
// of blocks fed by the application's Write calls and drained either
// by the sender's transmit path or, on the receiver side, delivered
// to Read in arrival order.
type streamState struct {
	ndata, nparity int

	ring map[wire.BlockId]map[wire.SymbolId]*streamSegment

	writeIndex struct {
		block  wire.BlockId
		symbol wire.SymbolId
	}
	writeOffset uint32

	readIndex struct {
		block  wire.BlockId
		symbol wire.SymbolId
	}
	readOffset uint32

	txBlock wire.BlockId

	terminated bool
}

func newStreamState(ndata, nparity int) *streamState {
	return &streamState{
		ndata:   ndata,
		nparity: nparity,
		ring:    make(map[wire.BlockId]map[wire.SymbolId]*streamSegment),
	}
}

func (s *streamState) advance(block *wire.BlockId, symbol *wire.SymbolId) {
	*symbol++
	if int(*symbol) >= s.ndata {
		*symbol = 0
		*block++
	}
}

// Write appends application bytes to the stream, splitting them into
// segments at the object's segment size. When the write window is
// full and push is false it accepts nothing and returns 0 with
// ErrStreamStalled; otherwise it accepts all of p (after evicting the
// oldest block in push mode).
func (s *streamState) Write(p []byte, segSize int, push bool) (int, error) {
	if s.terminated {
		return 0, errors.New("object: write after stream terminate")
	}
	if int(s.writeIndex.block-s.txBlock) > streamRingBudget/2 {
		if !push {
			return 0, ErrStreamStalled
		}
		s.evictOldest()
	}
	written := 0
	for len(p) > 0 {
		n := len(p)
		if n > segSize {
			n = segSize
		}
		seg := make([]byte, n)
		copy(seg, p[:n])
		blk := s.ring[s.writeIndex.block]
		if blk == nil {
			blk = make(map[wire.SymbolId]*streamSegment)
			s.ring[s.writeIndex.block] = blk
		}
		blk[s.writeIndex.symbol] = &streamSegment{data: seg}
		s.advance(&s.writeIndex.block, &s.writeIndex.symbol)
		s.writeOffset += uint32(n)
		written += n
		p = p[n:]
	}
	return written, nil
}

func (s *streamState) evictOldest() {
	delete(s.ring, s.txBlock)
	s.txBlock++
}

// Terminate appends a zero-length sentinel segment; receivers deliver
// a stream-completion notification on seeing it (spec §4.4).
func (s *streamState) Terminate() {
	if s.terminated {
		return
	}
	blk := s.ring[s.writeIndex.block]
	if blk == nil {
		blk = make(map[wire.SymbolId]*streamSegment)
		s.ring[s.writeIndex.block] = blk
	}
	blk[s.writeIndex.symbol] = &streamSegment{eof: true}
	s.advance(&s.writeIndex.block, &s.writeIndex.symbol)
	s.terminated = true
}

// readSegment returns the application bytes queued at (block,
// symbol), used by the sender's NextSenderMsg path.
func (s *streamState) readSegment(block wire.BlockId, symbol wire.SymbolId) ([]byte, error) {
	blk, ok := s.ring[block]
	if !ok {
		return nil, errors.New("object: stream has no buffered data at this position")
	}
	seg, ok := blk[symbol]
	if !ok {
		return nil, errors.New("object: stream has no buffered data at this position")
	}
	s.txBlock = block
	if seg.eof {
		return nil, nil
	}
	return seg.data, nil
}

// writeSegment is the receiver path: a decoded segment lands in the
// ring for Read to drain in order.
func (s *streamState) writeSegment(block wire.BlockId, symbol wire.SymbolId, data []byte) error {
	blk := s.ring[block]
	if blk == nil {
		blk = make(map[wire.SymbolId]*streamSegment)
		s.ring[block] = blk
	}
	if len(data) == 0 {
		blk[symbol] = &streamSegment{eof: true}
	} else {
		blk[symbol] = &streamSegment{data: data}
	}
	return nil
}

// Ready reports whether the stream has a segment available at the
// reader's current position (spec §4.4 "ready to read").
func (s *streamState) Ready() bool {
	blk, ok := s.ring[s.readIndex.block]
	if !ok {
		return false
	}
	_, ok = blk[s.readIndex.symbol]
	return ok
}

// Read drains one available segment's bytes into buf, advancing the
// read cursor. It reports done=true once the terminal sentinel has
// been consumed.
func (s *streamState) Read(buf []byte) (n int, done bool, err error) {
	blk, ok := s.ring[s.readIndex.block]
	if !ok {
		return 0, false, nil
	}
	seg, ok := blk[s.readIndex.symbol]
	if !ok {
		return 0, false, nil
	}
	delete(blk, s.readIndex.symbol)
	if len(blk) == 0 {
		delete(s.ring, s.readIndex.block)
	}
	prevBlock, prevSymbol := s.readIndex.block, s.readIndex.symbol
	s.advance(&s.readIndex.block, &s.readIndex.symbol)
	if seg.eof {
		return 0, true, nil
	}
	n = copy(buf, seg.data)
	s.readOffset += uint32(n)
	_ = prevBlock
	_ = prevSymbol
	return n, false, nil
}
