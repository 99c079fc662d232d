/*
@Language: Go 1.23.4
*/

// Package norm implements a NACK-Oriented Reliable Multicast (NORM)
// protocol engine: reliable, FEC-protected bulk object transport over
// UDP multicast or unicast (spec §1-§7).
package norm

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"

	"github.com/normproto/norm/internal/fec"
	"github.com/normproto/norm/internal/object"
	"github.com/normproto/norm/internal/pool"
	"github.com/normproto/norm/internal/rxsess"
	"github.com/normproto/norm/internal/txsess"
	"github.com/normproto/norm/internal/wire"
)

const (
	// mtuLimit is the nominal ceiling for a single NORM packet. No
	// packet or segment size is checked against it.
	mtuLimit = 1500

	// acceptBacklog bounds queued completed RX objects awaiting
	// Session.ReadObject.
	acceptBacklog = 128
)

var (
	errInvalidOperation = errors.New("norm: invalid operation")
	errClosed           = errors.New("norm: session closed")
)

// Session is one NORM protocol instance: a socket bound to a
// multicast or unicast address, the local Sender engine, every
// tracked remote sender's rxsess.Node, and the two goroutines that
// drive them (spec §4.7): a receive loop that dispatches packets and a
// timer-driven event loop, sharing state under mu.
type Session struct {
	cfg    Config
	nodeID wire.NodeId

	conn    net.PacketConn
	xconn   batchConn
	xconnWriteError error

	sender *txsess.Sender

	grttProber *txsess.GrttProber
	ccCtrl     *txsess.Controller
	ccSequence uint16

	aggregationArmed bool

	rxMu  sync.Mutex
	remoteNodes map[wire.NodeId]*rxsess.Node
	rxBuf map[wire.NodeId]*rxsess.BufferShared
	rxFTI map[wire.NodeId]wire.FTI

	grtt       time.Duration
	instanceID wire.InstanceId
	sequence   uint16

	rxSegPool *pool.SegmentPool
	rxObjects chan *object.Object

	timer *Timer
	timerIDs map[string]int

	handler Handler
	logger  *slog.Logger
	snmp    Snmp

	die     chan struct{}
	dieOnce sync.Once
	wg      sync.WaitGroup

	mu sync.Mutex
}

// Open binds a Session's socket, joins a multicast group if Address
// is one, and starts the event loop. Callers must call Close when
// finished.
func Open(cfg Config, opts ...Option) (*Session, error) {
	for _, o := range opts {
		o(&cfg)
	}

	pc, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	s := &Session{
		cfg:       cfg,
		nodeID:    wire.NodeId(cfg.NodeId),
		conn:      pc,
		sender:    txsess.NewSender(wire.NodeId(cfg.NodeId), cfg.TxCacheCountMax, cfg.TxRobustFactor),
		grttProber: txsess.NewGrttProber(cfg.GrttIntervalMin, cfg.GrttIntervalMax, cfg.GrttMax),
		ccCtrl:     txsess.NewController(cfg.TxRate, cfg.TxRateMin, cfg.TickMin),
		remoteNodes: make(map[wire.NodeId]*rxsess.Node),
		rxBuf:     make(map[wire.NodeId]*rxsess.BufferShared),
		rxFTI:     make(map[wire.NodeId]wire.FTI),
		rxSegPool: pool.NewSegmentPool(64, cfg.SegmentSize+512),
		rxObjects: make(chan *object.Object, acceptBacklog),
		timer:     NewTimer(),
		timerIDs:  make(map[string]int),
		logger:    discardLogger(),
		grtt:      500 * time.Millisecond,
		die:       make(chan struct{}),
	}
	s.grttProber.SetCCEnabled(cfg.CCEnabled)
	s.ccCtrl.Grtt = s.grttProber.Grtt()
	s.sender.SetAggregatorParams(s.grttProber.Grtt(), cfg.BackoffFactor, cfg.Unicast)

	p := ipv4.NewPacketConn(pc)
	if addr := net.ParseIP(cfg.Address); addr != nil && addr.IsMulticast() {
		ief, err := defaultMulticastInterface()
		if err == nil {
			_ = p.JoinGroup(ief, &net.UDPAddr{IP: addr})
		}
		_ = p.SetMulticastTTL(cfg.Ttl)
		_ = p.SetMulticastLoopback(true)
	}
	if err := p.SetControlMessage(ipv4.FlagTOS, true); err == nil {
		s.xconn = p
	}

	s.wg.Add(2)
	go s.recvLoop()
	go s.eventLoop()
	return s, nil
}

// SetHandler installs the embedder's event callback.
func (s *Session) SetHandler(h Handler) { s.handler = h }

// SetLogger installs a structured logger; the default discards output.
func (s *Session) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// EnqueueObject hands a locally-originated object to the Sender
// engine for transmission (spec §4.5).
func (s *Session) EnqueueObject(id wire.ObjectId, typ object.Type, data []byte, info []byte) error {
	codec, err := newSenderCodec(s.cfg)
	if err != nil {
		return err
	}
	blockCount := pool.ComputeBlockCount(len(data), s.cfg.Nparity, s.cfg.SegmentSize, 0)
	segCount := pool.ComputeSegmentCount(blockCount, s.cfg.Nparity)
	bp := pool.New[*object.Block](blockCount)
	bp.Prime(func() *object.Block { return object.NewBlock(0, 0, 0) })
	sp := pool.NewSegmentPool(segCount, s.cfg.SegmentSize)

	obj, err := object.Open(object.Config{
		ID:   id,
		Role: object.RoleSender,
		Type: typ,
		Size: uint64(len(data)),
		Info: info,
		Fec: object.FecParams{
			FecID: s.cfg.FecID, M: s.cfg.FecM,
			Ndata: s.cfg.Ndata, Nparity: s.cfg.Nparity, SegSize: s.cfg.SegmentSize,
		},
		Storage: object.NewDataStorage(data),
	}, codec, bp, sp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sender.AddObject(obj)
	s.mu.Unlock()
	return nil
}

// ReadObject blocks until a remote sender completes an object,
// returning it for the embedder to extract.
func (s *Session) ReadObject() (*object.Object, bool) {
	select {
	case obj, ok := <-s.rxObjects:
		return obj, ok
	case <-s.die:
		return nil, false
	}
}

func newSenderCodec(cfg Config) (fec.Codec, error) {
	c, err := fec.New(int(cfg.FecID), int(cfg.FecM))
	if err != nil {
		return nil, err
	}
	if err := c.Init(cfg.Ndata, cfg.Nparity, cfg.SegmentSize); err != nil {
		return nil, err
	}
	return c, nil
}

// Close shuts down the event loop and socket. Safe to call more than
// once.
func (s *Session) Close() error {
	s.dieOnce.Do(func() {
		close(s.die)
		s.timer.Close()
		_ = s.conn.Close()
	})
	s.wg.Wait()
	return nil
}

func (s *Session) recvLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.die:
			return
		default:
		}
		pkts, err := s.rx()
		if err != nil {
			atomic.AddUint64(&s.snmp.RecvErrors, 1)
			continue
		}
		for _, p := range pkts {
			s.dispatch(p)
		}
	}
}

func (s *Session) eventLoop() {
	defer s.wg.Done()
	s.armTick("pace", s.cfg.TickMin)
	s.armTick("grtt", s.cfg.GrttIntervalMin)
	s.armTick("report", s.cfg.ReportInterval)
	for {
		select {
		case <-s.die:
			return
		case t := <-s.timer.Ready():
			t.execute()
		}
	}
}

func (s *Session) armTick(name string, d time.Duration) {
	id := s.timer.Put(func() { s.onTick(name, d) }, time.Now().Add(d))
	s.timerIDs[name] = id
}

func (s *Session) onTick(name string, interval time.Duration) {
	switch name {
	case "pace":
		s.servePacing()
	case "grtt":
		interval = s.serveGrttProbe()
	case "report":
		s.serveReport()
	}
	s.armTick(name, interval)
}

func (s *Session) servePacing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender.Serve(s.sender.TxPos())
	for {
		msg, ok := s.sender.MsgQueue.Pop()
		if !ok {
			break
		}
		s.sendMessage(msg)
	}
}

// serveGrttProbe drives the independent GRTT probe timer of spec
// §4.5.3: it emits a CMD(CC) round-trip probe carrying the current
// send time, decays the smoothed RTT estimate, and returns the
// interval the probe schedule wants to wait before the next probe. The
// session never marks data active on the prober, so that schedule is
// always the 1.5x backoff; the RTT-tracking schedule is not used.
func (s *Session) serveGrttProbe() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ccSequence++
	s.sender.MsgQueue.Push(wire.Message{
		Header:         wire.Header{Type: wire.MsgCmd},
		CmdFlavor:      wire.CmdCC,
		CCSequence:     s.ccSequence,
		CCSendTimeUsec: uint64(time.Now().UnixMicro()),
	})
	for {
		msg, ok := s.sender.MsgQueue.Pop()
		if !ok {
			break
		}
		s.sendMessage(msg)
	}
	s.grttProber.Decay()
	if pruned := s.ccCtrl.Prune(time.Now(), s.grttProber.ProbeCount()); len(pruned) > 0 {
		for _, id := range pruned {
			s.notify(Event{Type: CCInactive, NodeId: uint32(id)})
		}
	}
	return s.grttProber.NextInterval()
}

func (s *Session) serveReport() {
	s.logger.Info("norm session report", "snmp", s.snmp.Copy())
}

func (s *Session) sendMessage(msg wire.Message) {
	msg.Header.Sequence = s.sequence
	s.sequence++
	msg.Header.SourceId = s.nodeID
	buf, err := wire.Pack(msg)
	if err != nil {
		s.logger.Error("pack failed", "err", err)
		return
	}
	dest := s.destAddr()
	s.tx([]outPacket{{addr: dest, buf: buf}})
	if msg.Header.Type == wire.MsgData || msg.Header.Type == wire.MsgInfo {
		atomic.AddUint64(&s.snmp.SegsSent, 1)
	}
}

func (s *Session) destAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(s.cfg.Address), Port: s.cfg.Port}
}

func (s *Session) dispatch(p inPacket) {
	msg, err := wire.Unpack(p.buf[:p.n])
	s.rxSegPool.Put(p.buf)
	if err != nil {
		atomic.AddUint64(&s.snmp.TruncatedMsgs, 1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Header.Type {
	case wire.MsgNack, wire.MsgReport:
		s.sender.HandleNack(msg, s.sender.TxPos().BlockId)
		s.handleGrttResponse(msg)
		s.handleCCFeedback(msg)
		if !s.aggregationArmed && s.sender.AggregatorActive() {
			s.aggregationArmed = true
			s.armAggregation(s.sender.AggregationInterval())
		}
	case wire.MsgAck:
		atomic.AddUint64(&s.snmp.AcksReceived, 1)
		if msg.SenderId == s.nodeID {
			s.sender.OnAck(msg.Header.SourceId, msg.AckPos)
		}
		s.handleGrttResponse(msg)
		s.handleCCFeedback(msg)
	default:
		s.dispatchRemoteSender(msg)
	}
}

// handleGrttResponse folds a NACK/ACK's echoed probe send time into the
// GRTT prober's smoothed RTT estimate (spec §4.5.3) and refreshes the
// aggregation schedule that estimate feeds.
func (s *Session) handleGrttResponse(msg wire.Message) {
	if !msg.HasGrttResponse {
		return
	}
	sendTime := time.UnixMicro(int64(msg.GrttResponseUsec))
	s.grttProber.OnGrttResponse(sendTime, time.Now(), s.cfg.Unicast)
	s.ccCtrl.Grtt = s.grttProber.Grtt()
	s.sender.SetAggregatorParams(s.grttProber.Grtt(), s.cfg.BackoffFactor, s.cfg.Unicast)
	s.notify(Event{Type: GrttUpdated, NodeId: uint32(msg.Header.SourceId)})
}

// handleCCFeedback decodes a CC_FEEDBACK header extension, if present,
// and folds it into the TFRC rate controller (spec §4.5.6).
func (s *Session) handleCCFeedback(msg wire.Message) {
	for _, ext := range msg.Extensions {
		if ext.Type != wire.ExtCCFeedback {
			continue
		}
		fb, err := wire.DecodeCCFeedback(ext)
		if err != nil {
			continue
		}
		node := &txsess.CCNode{
			ID:           msg.Header.SourceId,
			IsCLR:        fb.Flags&wire.CCFlagCLR != 0,
			IsPLR:        fb.Flags&wire.CCFlagPLR != 0,
			Rtt:          time.Duration(wire.UnquantizeRtt(fb.RttQuantized) * float64(time.Second)),
			Loss:         wire.UnquantizeLoss32(fb.LossQuantized32),
			RecvRate:     wire.UnquantizeRate(fb.RateQuantized),
			LastFeedback: time.Now(),
			CCSequence:   fb.CCSequence,
		}
		s.ccCtrl.Feedback(node)
		s.notify(Event{Type: CCActive, NodeId: uint32(msg.Header.SourceId)})
	}
}

// armAggregation schedules ActivateRepairs after the NACK aggregation
// window elapses, then EndRepairHoldoff once the hold-off window that
// follows it elapses (spec §4.5.4).
func (s *Session) armAggregation(d time.Duration) {
	s.timer.Put(func() { s.onAggregationExpire() }, time.Now().Add(d))
}

func (s *Session) onAggregationExpire() {
	s.mu.Lock()
	s.sender.ActivateRepairs()
	holdoff := s.sender.HoldoffInterval()
	s.mu.Unlock()
	s.timer.Put(func() { s.onHoldoffExpire() }, time.Now().Add(holdoff))
}

func (s *Session) onHoldoffExpire() {
	s.mu.Lock()
	s.sender.EndRepairHoldoff()
	s.aggregationArmed = false
	s.mu.Unlock()
}

// resolveFTI scans a message's header extensions for FTI (spec §4.6.2).
func resolveFTI(exts []wire.Extension) (wire.FTI, bool) {
	for _, e := range exts {
		if e.Type == wire.ExtFTI {
			if fti, err := wire.DecodeFTI(e); err == nil {
				return fti, true
			}
		}
	}
	return wire.FTI{}, false
}

// admitObject resolves FTI-gated admission for the first DATA/INFO of
// an unknown object from a remote sender (spec §4.6.2): the node's
// shared per-sender buffer pools are built from the first FTI seen (or
// reused from one already cached for this node), and the object is
// opened against them.
func (s *Session) admitObject(node *rxsess.Node, msg wire.Message) (*object.Object, error) {
	fti, hasFTI := resolveFTI(msg.Extensions)
	shared, ok := s.rxBuf[node.ID]
	if !ok {
		if !hasFTI {
			return nil, rxsess.ErrFtiUnknown
		}
		built, err := rxsess.NewBufferShared(fti, s.cfg.BufferSpaceBytes)
		if err != nil {
			return nil, err
		}
		s.rxBuf[node.ID] = built
		s.rxFTI[node.ID] = fti
		shared = built
	} else if !hasFTI {
		fti = s.rxFTI[node.ID]
	}

	typ := object.TypeData
	switch {
	case msg.Flags.Has(wire.FlagStream):
		typ = object.TypeStream
	case msg.Flags.Has(wire.FlagFile):
		typ = object.TypeFile
	}

	var storage object.Storage
	if typ != object.TypeStream {
		storage = object.NewDataStorage(make([]byte, fti.ObjectSize))
	}
	return rxsess.Admit(msg.ObjectId, typ, fti.ObjectSize, fti, storage, shared)
}

func (s *Session) dispatchRemoteSender(msg wire.Message) {
	node, ok := s.remoteNodes[msg.Header.SourceId]
	if !ok {
		node = rxsess.NewNode(msg.Header.SourceId, s.cfg.SyncPolicy)
		s.remoteNodes[msg.Header.SourceId] = node
		s.notify(Event{Type: RemoteSenderNew, NodeId: uint32(msg.Header.SourceId)})
	}
	if node.OnInstanceChange(msg.InstanceId) {
		s.notify(Event{Type: RemoteSenderActive, NodeId: uint32(msg.Header.SourceId)})
	}

	isBlockZero := msg.Header.Type == wire.MsgData && msg.Fec.BlockId == 0
	if !node.Synced() && node.ShouldSync(msg.Header.Type, false, isBlockZero, false) {
		node.Sync(msg.ObjectId, isBlockZero)
	}

	obj, ok := node.Objects[msg.ObjectId]
	if !ok {
		var err error
		obj, err = s.admitObject(node, msg)
		if err != nil {
			s.logger.Debug("object admission deferred", "objectId", msg.ObjectId, "err", err)
			return
		}
		node.Objects[msg.ObjectId] = obj
		s.notify(Event{Type: RxObjectNew, NodeId: uint32(msg.Header.SourceId), ObjectId: uint64(msg.ObjectId)})
	}

	if err := obj.HandleObjectMessage(msg, siblingsOf(node)); err != nil {
		s.logger.Warn("object message rejected", "err", err)
		return
	}
	atomic.AddUint64(&s.snmp.SegsReceived, 1)

	if obj.Complete() && !obj.Queued() {
		select {
		case s.rxObjects <- obj:
			obj.MarkQueued()
			s.notify(Event{Type: RxObjectCompleted, NodeId: uint32(msg.Header.SourceId), ObjectId: uint64(msg.ObjectId)})
		default:
			s.logger.Warn("rxObjects backlog full, dropping completed object", "objectId", msg.ObjectId)
		}
	}
}

func siblingsOf(n *rxsess.Node) []*object.Object {
	out := make([]*object.Object, 0, len(n.Objects))
	for _, o := range n.Objects {
		out = append(out, o)
	}
	return out
}

func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagUp != 0 {
			return &iface, nil
		}
	}
	return nil, errors.New("norm: no multicast-capable interface")
}
