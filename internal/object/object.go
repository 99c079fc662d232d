package object

import (
	"github.com/pkg/errors"

	"github.com/normproto/norm/internal/fec"
	"github.com/normproto/norm/internal/pool"
	"github.com/normproto/norm/internal/wire"
)

// Role distinguishes which side of the protocol an Object serves.
// getFreeBlock's stealing policy is currently the same for both roles.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// Type is the NORM object class (spec §3).
type Type int

const (
	TypeData Type = iota
	TypeFile
	TypeStream
)

// FecParams is an object's fixed FEC geometry.
type FecParams struct {
	FecID   byte
	M       byte
	Ndata   int
	Nparity int
	SegSize int
}

// Object is the shared sender/receiver unit of transport: a named
// byte stream split into FEC blocks and segments (spec §4.4).
type Object struct {
	ID      wire.ObjectId
	Role    Role
	Type    Type
	Size    uint64
	Info    []byte
	Fec     FecParams
	Geom    Geometry
	codec   fec.Codec
	storage Storage
	stream  *streamState

	blockPool *pool.Pool[*Block]
	segPool   *pool.SegmentPool

	pending *bitMask // object-level block pending mask
	repair  *bitMask // object-level block repair mask

	blocks map[wire.BlockId]*Block

	txNextBlock  wire.BlockId
	txNextSymbol wire.SymbolId

	infoPending bool
	nackingMode NackingMode

	completedBlocks int
	queued          bool
}

// NackingMode controls how deep a receiver descends into an object's
// repair state when building NACKs (spec §4.6.3).
type NackingMode int

const (
	NackNone NackingMode = iota
	NackInfoOnly
	NackNormal
)

// bitMask is a thin rename to keep this package's exported surface
// free of the bitmask package's own naming; Object always tracks
// pending/repair state at block granularity using it.
type bitMask = maskAdapter

// Config bundles the parameters open() needs beyond what's already on
// Object, so callers don't have to know Object's internal field
// layout.
type Config struct {
	ID      wire.ObjectId
	Role    Role
	Type    Type
	Size    uint64
	Info    []byte
	Fec     FecParams
	Storage Storage
}

// Open computes an object's blocking geometry, allocates its pending/
// repair masks and (for streams) its stream ring, and wires it to the
// session-shared block/segment pools (spec §4.4 "open").
func Open(cfg Config, codec fec.Codec, blockPool *pool.Pool[*Block], segPool *pool.SegmentPool) (*Object, error) {
	if cfg.Fec.SegSize <= 0 || cfg.Fec.Ndata <= 0 {
		return nil, errors.New("object: invalid FEC geometry")
	}
	o := &Object{
		ID:        cfg.ID,
		Role:      cfg.Role,
		Type:      cfg.Type,
		Size:      cfg.Size,
		Info:      cfg.Info,
		Fec:       cfg.Fec,
		codec:     codec,
		storage:   cfg.Storage,
		blockPool: blockPool,
		segPool:   segPool,
		blocks:    make(map[wire.BlockId]*Block),
	}
	if cfg.Type == TypeStream {
		o.Geom = Geometry{NumBlocks: 1 << 30, SmallBlockLen: cfg.Fec.Ndata, LargeBlockLen: cfg.Fec.Ndata, FinalSegSize: cfg.Fec.SegSize}
		o.stream = newStreamState(cfg.Fec.Ndata, cfg.Fec.Nparity)
	} else {
		o.Geom = ComputeGeometry(cfg.Size, cfg.Fec.SegSize, cfg.Fec.Ndata)
	}
	o.pending = newMaskAdapter(o.Geom.NumBlocks)
	o.repair = newMaskAdapter(o.Geom.NumBlocks)
	o.pending.setRange(0, o.Geom.NumBlocks)
	o.infoPending = len(o.Info) > 0
	o.nackingMode = NackNormal
	return o, nil
}

// getFreeBlock implements the block stealing policy: try the shared
// pool first, then steal the lowest-numbered block that is not
// repair-pending from the lowest-id sibling object, and failing that
// any block of the highest-id sibling. The policy does not depend on
// the object's Role, and siblings are not limited to objects older or
// newer than this one.
func (o *Object) getFreeBlock(id wire.BlockId, siblings []*Object) (*Block, error) {
	if b, ok := o.blockPool.Get(); ok {
		b.Reset(id, o.Fec.Ndata, o.Fec.Nparity)
		return b, nil
	}
	var victim *Object
	var victimBlock wire.BlockId
	found := false
	for _, other := range siblings {
		if other == o || len(other.blocks) == 0 {
			continue
		}
		for bid, blk := range other.blocks {
			if blk.IsRepairPending() {
				continue
			}
			switch o.Role {
			case RoleSender, RoleReceiver:
				if !found || (other.ID < victim.ID) || (other.ID == victim.ID && bid < victimBlock) {
					victim, victimBlock, found = other, bid, true
				}
			}
		}
	}
	if !found {
		for _, other := range siblings {
			if other == o || len(other.blocks) == 0 {
				continue
			}
			for bid, blk := range other.blocks {
				_ = blk
				if !found || (other.ID > victim.ID) || (other.ID == victim.ID && bid > victimBlock) {
					victim, victimBlock, found = other, bid, true
				}
			}
		}
	}
	if !found {
		return nil, errors.New("object: no free block available")
	}
	stolen := victim.blocks[victimBlock]
	delete(victim.blocks, victimBlock)
	stolen.Reset(id, o.Fec.Ndata, o.Fec.Nparity)
	return stolen, nil
}

func (o *Object) getOrCreateBlock(id wire.BlockId, siblings []*Object) (*Block, error) {
	if b, ok := o.blocks[id]; ok {
		return b, nil
	}
	b, err := o.getFreeBlock(id, siblings)
	if err != nil {
		return nil, err
	}
	o.blocks[id] = b
	return b, nil
}

// SenderMsg is the outcome of NextSenderMsg: a wire.Message ready for
// pacing. Its payload aliases the segment buffer that stays attached
// to the block.
type SenderMsg struct {
	Msg wire.Message
}

// NextSenderMsg emits the next pending symbol of this object. A block
// materialized here starts with all of its source and parity symbols
// pending. It returns ok=false if nothing is pending or the next
// pending parity symbol is not ready yet. It returns an error when a
// stream has no buffered data at the next position or when no block
// or segment buffer can be obtained; no flow-control delay check is
// made before a block is stolen.
func (o *Object) NextSenderMsg(siblings []*Object) (SenderMsg, bool, error) {
	if o.infoPending {
		o.infoPending = false
		return SenderMsg{Msg: wire.Message{
			Header:   wire.Header{Type: wire.MsgInfo},
			ObjectId: o.ID,
			Flags:    wire.FlagInfo,
			Payload:  o.Info,
		}}, true, nil
	}
	blockID, symbolID, ok := o.nextPendingSymbol()
	if !ok {
		return SenderMsg{}, false, nil
	}
	_, resident := o.blocks[blockID]
	blk, err := o.getOrCreateBlock(blockID, siblings)
	if err != nil {
		return SenderMsg{}, false, err
	}
	blockLen := o.Geom.BlockLen(blockID)
	if o.Type == TypeStream {
		blockLen = o.Fec.Ndata
	}
	if !resident {
		for i := 0; i < blockLen+blk.NumParity(); i++ {
			blk.SetPending(i)
		}
	}

	var payload []byte
	if int(symbolID) < blockLen {
		payload, err = o.readSourceSegment(blk, blockID, symbolID)
		if err != nil {
			return SenderMsg{}, false, err
		}
		blk.SetSegment(int(symbolID), payload)
		if err := o.codec.Encode(int(symbolID), payload, o.collectParitySlots(blk)); err != nil {
			return SenderMsg{}, false, err
		}
		blk.AdvanceParityReadiness()
		if int(symbolID) == blockLen-1 {
			if err := o.foldVirtualTail(blk, blockLen); err != nil {
				return SenderMsg{}, false, err
			}
		}
	} else {
		parityIdx := int(symbolID) - blockLen
		if !blk.ParityReady(parityIdx) {
			return SenderMsg{}, false, nil
		}
		payload = blk.Segment(blockLen + parityIdx)
		if payload == nil {
			seg, ok := o.segPool.Get()
			if !ok {
				return SenderMsg{}, false, errors.New("object: segment pool exhausted")
			}
			payload = seg
			blk.SetSegment(blockLen+parityIdx, payload)
		}
	}
	blk.ClearPending(int(symbolID))
	o.advancePendingAfter(blockID, symbolID, blockLen)

	msg := wire.Message{
		Header:   wire.Header{Type: wire.MsgData},
		ObjectId: o.ID,
		Fec: wire.FecPayloadId{
			BlockId:      blockID,
			SymbolId:     symbolID,
			SourceBlkLen: uint16(blockLen),
		},
		Payload: payload,
	}
	if o.Type == TypeStream {
		msg.Flags = wire.FlagStream
		msg.StreamOffset = o.stream.writeOffset
	}
	o.txNextBlock, o.txNextSymbol = blockID, symbolID
	return SenderMsg{Msg: msg}, true, nil
}

func (o *Object) collectParitySlots(blk *Block) [][]byte {
	out := make([][]byte, blk.NumParity())
	for i := 0; i < blk.NumParity(); i++ {
		seg := blk.Segment(blk.NumData() + i)
		if seg == nil {
			s, ok := o.segPool.Get()
			if !ok {
				continue
			}
			seg = s
			blk.SetSegment(blk.NumData()+i, seg)
		}
		out[i] = seg
	}
	return out
}

// foldVirtualTail zero-encodes the source symbol positions beyond a
// partial final block's real length, so the FEC codec (whose k is
// fixed per object at Ndata) sees a full ndata-symbol codeword even
// though the virtual tail symbols are never materialized or sent
// (spec §3: the last block of an object may be shorter than ndata).
func (o *Object) foldVirtualTail(blk *Block, blockLen int) error {
	zero := make([]byte, o.Fec.SegSize)
	for i := blockLen; i < blk.NumData(); i++ {
		if err := o.codec.Encode(i, zero, o.collectParitySlots(blk)); err != nil {
			return err
		}
		blk.AdvanceParityReadiness()
	}
	return nil
}

func (o *Object) readSourceSegment(blk *Block, blockID wire.BlockId, symbolID wire.SymbolId) ([]byte, error) {
	if o.Type == TypeStream {
		return o.stream.readSegment(blockID, symbolID)
	}
	seg, ok := o.segPool.Get()
	if !ok {
		return nil, errors.New("object: segment pool exhausted")
	}
	offset := int64(blockID)*int64(o.Fec.Ndata)*int64(o.Fec.SegSize) + int64(symbolID)*int64(o.Fec.SegSize)
	n, err := o.storage.ReadAt(seg, offset)
	if err != nil {
		return nil, errors.Wrap(err, "object: read source segment")
	}
	return seg[:n], nil
}

// nextPendingSymbol finds the lowest (blockID, symbolID) still marked
// pending across the object.
func (o *Object) nextPendingSymbol() (wire.BlockId, wire.SymbolId, bool) {
	blockIdx, ok := o.pending.firstSet()
	if !ok {
		return 0, 0, false
	}
	blockID := wire.BlockId(blockIdx)
	if blk, exists := o.blocks[blockID]; exists {
		n := blk.NumData() + blk.NumParity()
		for i := 0; i < n; i++ {
			if blk.IsPending(i) {
				return blockID, wire.SymbolId(i), true
			}
		}
		o.pending.unset(blockIdx)
		return o.nextPendingSymbol()
	}
	return blockID, 0, true
}

func (o *Object) advancePendingAfter(blockID wire.BlockId, symbolID wire.SymbolId, blockLen int) {
	blk, ok := o.blocks[blockID]
	if !ok {
		return
	}
	n := blk.NumData() + blk.NumParity()
	for i := 0; i < n; i++ {
		if blk.IsPending(i) {
			return
		}
	}
	o.pending.unset(int(blockID))
}

// TxReset marks the entire object pending again for retransmission.
func (o *Object) TxReset() {
	o.pending.setRange(0, o.Geom.NumBlocks)
	for _, blk := range o.blocks {
		n := blk.NumData() + blk.NumParity()
		for i := 0; i < n; i++ {
			blk.SetPending(i)
		}
	}
}

// TxResetBlocks marks blocks [lo,hi] pending again (spec §4.4
// "txReset/txResetBlocks"). Resident blocks get every symbol marked
// pending; a block that isn't resident only gets its object-level
// pending bit, and its symbols become pending when NextSenderMsg
// materializes it.
func (o *Object) TxResetBlocks(lo, hi wire.BlockId) {
	for b := lo; b <= hi; b++ {
		o.pending.set(int(b))
		if blk, ok := o.blocks[b]; ok {
			n := blk.NumData() + blk.NumParity()
			for i := 0; i < n; i++ {
				blk.SetPending(i)
			}
		}
	}
}

// HandleObjectMessage is the receiver path: it caches source and
// parity symbols in the block and attempts an FEC decode once a
// block's erasure count drops to or below its cached parity count.
// Source symbols are not written through on arrival; storage receives
// a block's source symbols only once all of them are present or have
// been recovered by the decode.
func (o *Object) HandleObjectMessage(msg wire.Message, siblings []*Object) error {
	if msg.Header.Type == wire.MsgInfo {
		o.Info = append([]byte(nil), msg.Payload...)
		return nil
	}
	blockID := msg.Fec.BlockId
	symbolID := msg.Fec.SymbolId
	blockLen := int(msg.Fec.SourceBlkLen)
	if o.Type == TypeStream {
		blockLen = o.Fec.Ndata
	}

	blk, err := o.getOrCreateBlock(blockID, siblings)
	if err != nil {
		return err
	}
	if int(symbolID) < blockLen {
		if blk.IsPending(int(symbolID)) || blk.Segment(int(symbolID)) == nil {
			blk.SetSegment(int(symbolID), msg.Payload)
		} else {
			return nil // duplicate
		}
	} else {
		parityIdx := int(symbolID) - blockLen
		if blk.Segment(blockLen+parityIdx) == nil {
			blk.SetSegment(blockLen+parityIdx, msg.Payload)
			blk.IncRepairCount()
		}
	}
	blk.ClearPending(int(symbolID))

	erasures := 0
	for i := 0; i < blockLen; i++ {
		if blk.Segment(i) == nil {
			erasures++
		}
	}
	blk.SetErasureCount(erasures)

	if erasures == 0 {
		return o.deliverBlock(blk, blockID, blockLen)
	}
	if erasures <= blk.RepairCount() && !blk.Decoded() {
		if err := o.decodeBlock(blk, blockLen); err != nil {
			return err
		}
		return o.deliverBlock(blk, blockID, blockLen)
	}
	return nil
}

func (o *Object) decodeBlock(blk *Block, blockLen int) error {
	vectors := make([][]byte, blk.NumData()+blk.NumParity())
	var erasureLocs []int
	for i := 0; i < blockLen; i++ {
		seg := blk.Segment(i)
		vectors[i] = seg
		if seg == nil {
			erasureLocs = append(erasureLocs, i)
		}
	}
	for i := blockLen; i < blk.NumData(); i++ {
		vectors[i] = make([]byte, o.Fec.SegSize) // virtual zero tail, see foldVirtualTail
	}
	for i := 0; i < blk.NumParity(); i++ {
		vectors[blk.NumData()+i] = blk.Segment(blk.NumData() + i)
	}
	if err := o.codec.Decode(vectors, blockLen, len(erasureLocs), erasureLocs); err != nil {
		return errors.Wrap(err, "object: FEC decode")
	}
	for _, loc := range erasureLocs {
		blk.SetSegment(loc, vectors[loc])
	}
	blk.MarkDecoded()
	blk.SetErasureCount(0)
	return nil
}

func (o *Object) deliverBlock(blk *Block, blockID wire.BlockId, blockLen int) error {
	if blk.Delivered() {
		return nil
	}
	if o.Type == TypeStream {
		for i := 0; i < blockLen; i++ {
			if err := o.stream.writeSegment(blockID, wire.SymbolId(i), blk.Segment(i)); err != nil {
				return err
			}
		}
		blk.MarkDelivered()
		return nil
	}
	for i := 0; i < blockLen; i++ {
		seg := blk.Segment(i)
		if seg == nil {
			continue
		}
		offset := int64(blockID)*int64(o.Fec.Ndata)*int64(o.Fec.SegSize) + int64(i)*int64(o.Fec.SegSize)
		if _, err := o.storage.WriteAt(seg, offset); err != nil {
			return errors.Wrap(err, "object: write decoded segment")
		}
	}
	blk.MarkDelivered()
	o.completedBlocks++
	return nil
}

// Complete reports whether a receiver has delivered every block of a
// finite (Data/File) object. Streams have no finite end short of
// Terminate, so they never report complete here.
func (o *Object) Complete() bool {
	return o.Type != TypeStream && o.completedBlocks >= o.Geom.NumBlocks
}

// Queued reports whether this object has already been handed to the
// embedder, so a late duplicate arrival on an already-complete object
// doesn't queue it a second time.
func (o *Object) Queued() bool { return o.queued }

// MarkQueued records that this object has been queued for the embedder.
func (o *Object) MarkQueued() { o.queued = true }

// AppendRepairRequest builds this object's contribution to an
// outgoing NACK: one item per pending symbol of each resident block.
// The object's repair mask is not consulted, so already-covered
// repair state is not subtracted here (spec §4.6.3 coalescing is
// applied by the caller across the returned endpoints).
func (o *Object) AppendRepairRequest(flush bool) []wire.RepairItem {
	if o.nackingMode == NackNone {
		return nil
	}
	var items []wire.RepairItem
	if o.nackingMode == NackInfoOnly {
		if o.infoPending {
			items = append(items, wire.RepairItem{ObjectId: o.ID})
		}
		return items
	}
	for blockID, blk := range o.blocks {
		n := blk.NumData() + blk.NumParity()
		for i := 0; i < n; i++ {
			if blk.IsPending(i) {
				items = append(items, wire.RepairItem{
					ObjectId: o.ID,
					BlockId:  blockID,
					BlockLen: uint16(blk.NumData()),
					SymbolId: wire.SymbolId(i),
				})
			}
		}
	}
	return items
}

// ReceiverRepairCheck advances the per-object repair bookkeeping on
// notification of a new loss (spec §4.6.3); it marks the block/
// symbol repair-pending and reports whether this newly extends the
// repair state (so the caller knows to (re)start its back-off timer).
func (o *Object) ReceiverRepairCheck(blockID wire.BlockId, symbolID wire.SymbolId) bool {
	blk, ok := o.blocks[blockID]
	if !ok {
		o.pending.set(int(blockID))
		return true
	}
	if blk.IsPending(int(symbolID)) {
		return false
	}
	blk.SetPending(int(symbolID))
	o.pending.set(int(blockID))
	return true
}

// SetNackingMode overrides the per-object nacking descent depth.
func (o *Object) SetNackingMode(m NackingMode) { o.nackingMode = m }

// Close releases the object's storage handle.
func (o *Object) Close() error {
	if o.storage != nil {
		return o.storage.Close()
	}
	return nil
}
