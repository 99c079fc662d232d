package txsess

import (
	"time"

	"github.com/normproto/norm/internal/bitmask"
	"github.com/normproto/norm/internal/object"
	"github.com/normproto/norm/internal/ring"
	"github.com/normproto/norm/internal/wire"
)

// CmdQueued is an application-defined CMD awaiting transmission,
// repeated up to txRobustFactor times (spec §4.5.1 step 3). Serve emits
// one repeat on each call that finds the outgoing queue empty; repeats
// are not spaced by the advertised GRTT.
type CmdQueued struct {
	Flavor  wire.CmdFlavor
	Payload []byte
	Remaining int
}

// Sender is the sender-side engine: the transmit object table, its
// pending/repair bitmasks, and the per-tick service loop (spec §4.5).
type Sender struct {
	NodeId wire.NodeId

	txLo          wire.ObjectId
	txCacheMax    int
	objects       map[wire.ObjectId]*object.Object
	order         []*object.Object // insertion order, for lowest-pending scan
	txPending     *bitmask.Mask

	aggregator *RepairAggregator
	watermark  *Watermark
	cmd        *CmdQueued

	txRobustFactor int
	flushCount     int

	// txPos is the (blockId, symbolId) of the last DATA symbol actually
	// emitted, tracked here rather than by the caller so the watermark
	// check in Serve and the NACK disposition in HandleNack always
	// compare against the sender's real transmit position (spec
	// §4.5.1 step 2, §4.5.4).
	txPos wire.Position

	// ftiSent records which objects have already carried FTI on an
	// outgoing INFO or first DATA message, so a receiver admitting the
	// object can resolve its FEC geometry (spec §4.6.2).
	ftiSent map[wire.ObjectId]bool

	MsgQueue *ring.Buffer[wire.Message] // outgoing queue awaiting pacing
}

// NewSender creates an empty transmit table with a window of
// txCacheMax object ids.
func NewSender(nodeID wire.NodeId, txCacheMax, txRobustFactor int) *Sender {
	return &Sender{
		NodeId:         nodeID,
		txCacheMax:     txCacheMax,
		objects:        make(map[wire.ObjectId]*object.Object),
		txPending:      bitmask.New(txCacheMax, 0),
		aggregator:     NewRepairAggregator(),
		txRobustFactor: txRobustFactor,
		ftiSent:        make(map[wire.ObjectId]bool),
		MsgQueue:       ring.New[wire.Message](8),
	}
}

// TxPos returns the (blockId, symbolId) of the last DATA symbol this
// sender actually emitted.
func (s *Sender) TxPos() wire.Position { return s.txPos }

// AddObject enrolls a new object for transmission, marking it pending.
func (s *Sender) AddObject(obj *object.Object) {
	s.objects[obj.ID] = obj
	s.order = append(s.order, obj)
	s.txPending.Set(uint32(obj.ID))
}

// siblings returns every tracked object, for the block-stealing policy.
func (s *Sender) siblings() []*object.Object { return s.order }

// SetWatermark arms a new positive-ACK collection point (spec §4.5.5).
func (s *Sender) SetWatermark(pos wire.Position, ackers []wire.NodeId) {
	s.watermark = NewWatermark(pos, ackers, s.txRobustFactor)
}

// QueueCmd enqueues an application-defined CMD for repeated emission.
func (s *Sender) QueueCmd(flavor wire.CmdFlavor, payload []byte) {
	s.cmd = &CmdQueued{Flavor: flavor, Payload: payload, Remaining: s.txRobustFactor}
}

// Serve implements the per-tick priority order of spec §4.5.1.
func (s *Sender) Serve(currentTxIndex wire.Position) {
	if !s.MsgQueue.Empty() {
		return
	}
	if s.watermark != nil && !currentTxIndex.BlockId.LessThan(s.watermark.Pos.BlockId) {
		s.emitFlush()
		return
	}
	if s.cmd != nil && s.cmd.Remaining > 0 {
		s.MsgQueue.Push(wire.Message{
			Header:    wire.Header{Type: wire.MsgCmd, SourceId: s.NodeId},
			CmdFlavor: s.cmd.Flavor,
			AppPayload: s.cmd.Payload,
		})
		s.cmd.Remaining--
		if s.cmd.Remaining == 0 {
			s.cmd = nil
		}
		return
	}
	if obj := s.lowestPending(); obj != nil {
		sm, ok, err := obj.NextSenderMsg(s.siblings())
		if err == nil && ok {
			s.attachFTI(obj, &sm.Msg)
			if sm.Msg.Header.Type == wire.MsgData {
				s.txPos = wire.Position{ObjectId: sm.Msg.ObjectId, BlockId: sm.Msg.Fec.BlockId, SymbolId: sm.Msg.Fec.SymbolId}
			}
			s.MsgQueue.Push(sm.Msg)
			return
		}
	}
	s.emitInactivityFlush()
}

// attachFTI carries the object's FEC Object Transmission Information on
// its first INFO or DATA message, once per object, so a receiver can
// resolve the FEC geometry needed to admit it (spec §4.6.2).
func (s *Sender) attachFTI(obj *object.Object, msg *wire.Message) {
	if s.ftiSent[obj.ID] || (msg.Header.Type != wire.MsgInfo && msg.Header.Type != wire.MsgData) {
		return
	}
	msg.Extensions = append(msg.Extensions, wire.FTI{
		FecID:       obj.Fec.FecID,
		M:           obj.Fec.M,
		ObjectSize:  obj.Size,
		SegmentSize: uint16(obj.Fec.SegSize),
		BlockLen:    uint16(obj.Fec.Ndata),
		NumParity:   uint16(obj.Fec.Nparity),
	}.Encode())
	s.ftiSent[obj.ID] = true
}

func (s *Sender) lowestPending() *object.Object {
	id, ok := s.txPending.FirstSet(0)
	if !ok {
		return nil
	}
	return s.objects[wire.ObjectId(id)]
}

func (s *Sender) emitFlush() {
	pending := s.watermark.Pending()
	exhausted := s.watermark.OnFlushSent()
	_ = exhausted
	s.MsgQueue.Push(wire.Message{
		Header:    wire.Header{Type: wire.MsgCmd, SourceId: s.NodeId},
		CmdFlavor: wire.CmdFlush,
		Pos:       s.watermark.Pos,
		Ackers:    pending,
	})
	if s.watermark.Done() {
		if s.watermark.Satisfied() {
			s.flushCount = s.txRobustFactor
		}
		s.watermark = nil
	}
}

func (s *Sender) emitInactivityFlush() {
	if s.flushCount > s.txRobustFactor {
		return
	}
	s.MsgQueue.Push(wire.Message{
		Header:    wire.Header{Type: wire.MsgCmd, SourceId: s.NodeId},
		CmdFlavor: wire.CmdFlush,
	})
	s.flushCount++
}

// ResetInactivityFlush clears the inactivity-flush counter once new
// data becomes available to send.
func (s *Sender) ResetInactivityFlush() { s.flushCount = 0 }

// HandleNack applies the three-way disposition of spec §4.5.4 to an
// incoming NACK's repair requests.
func (s *Sender) HandleNack(senderMsg wire.Message, txBlock wire.BlockId) {
	for _, req := range senderMsg.RepairRequests {
		for _, item := range req.Items {
			obj, ok := s.objects[item.ObjectId]
			if !ok {
				continue
			}
			switch Classify(item, txBlock) {
			case DispositionAhead:
				obj.TxResetBlocks(item.BlockId, item.BlockId)
				s.txPending.Set(uint32(item.ObjectId))
			case DispositionEqual:
				s.aggregator.Accumulate(item.ObjectId, item)
			case DispositionLate:
				// ignored as late
			}
		}
	}
}

// ActivateRepairs promotes the aggregator's accumulated state into
// the transmit pending set once the aggregation timer expires.
func (s *Sender) ActivateRepairs() {
	s.aggregator.Activate(s.objects)
	for id := range s.objects {
		s.txPending.Set(uint32(id))
	}
}

// OnAck forwards a received positive ACK to the active watermark, if
// any (spec §4.5.5).
func (s *Sender) OnAck(id wire.NodeId, pos wire.Position) {
	if s.watermark != nil {
		s.watermark.OnAck(id, pos)
	}
}

// AggregatorActive reports whether repair items have accumulated and
// are awaiting the aggregation timer (spec §4.5.4).
func (s *Sender) AggregatorActive() bool { return s.aggregator.Active() }

// AggregationInterval is how long to wait after the first accumulated
// repair item before calling ActivateRepairs.
func (s *Sender) AggregationInterval() time.Duration { return s.aggregator.AggregationInterval() }

// HoldoffInterval is how long ActivateRepairs's hold-off window lasts
// before EndRepairHoldoff should be called.
func (s *Sender) HoldoffInterval() time.Duration { return s.aggregator.HoldoffInterval() }

// EndRepairHoldoff transitions the aggregator back to idle once its
// hold-off window elapses.
func (s *Sender) EndRepairHoldoff() { s.aggregator.EndHoldoff() }

// SetAggregatorParams configures the aggregation/hold-off schedule from
// the sender's GRTT estimate and configured backoff factor (spec
// §4.5.4).
func (s *Sender) SetAggregatorParams(grtt time.Duration, backoffFactor float64, unicast bool) {
	s.aggregator.GrttAdvertised = grtt
	s.aggregator.BackoffFactor = backoffFactor
	s.aggregator.Unicast = unicast
}
