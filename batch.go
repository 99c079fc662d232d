/*
@Language: Go 1.23.4
*/

package norm

import (
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

const batchSize = 16

// batchConn is satisfied by *ipv4.PacketConn. A session probes for it
// at socket-open time; platforms without recvmmsg/sendmmsg support
// fall back to per-packet WriteTo/ReadFrom.
type batchConn interface {
	WriteBatch(ms []ipv4.Message, flags int) (int, error)
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
}

// outPacket is one encoded wire message queued for transmission to a
// specific destination (the session's multicast group, or a unicast
// repair destination).
type outPacket struct {
	addr net.Addr
	buf  []byte
}

// tx drains txqueue over the batch connection if available, falling
// back to the unbatched path on the first write error so a transient
// sendmmsg failure degrades gracefully instead of stalling.
func (s *Session) tx(txqueue []outPacket) {
	if len(txqueue) == 0 {
		return
	}
	if s.xconn != nil {
		s.batchTx(txqueue)
	} else {
		s.defaultTx(txqueue)
	}
}

func (s *Session) defaultTx(txqueue []outPacket) {
	nbytes, npkts := 0, 0

	for k := range txqueue {
		if n, err := s.conn.WriteTo(txqueue[k].buf, txqueue[k].addr); err == nil {
			nbytes += n
			npkts++
		} else {
			s.notifyWriteError(errors.WithStack(err))
			break
		}
	}

	atomic.AddUint64(&s.snmp.PktsSent, uint64(npkts))
	atomic.AddUint64(&s.snmp.BytesSent, uint64(nbytes))
}

func (s *Session) batchTx(txqueue []outPacket) {
	ms := make([]ipv4.Message, len(txqueue))
	for k := range txqueue {
		ms[k].Buffers = [][]byte{txqueue[k].buf}
		ms[k].Addr = txqueue[k].addr
	}

	if _, err := s.xconn.WriteBatch(ms, 0); err == nil {
		nbytes := 0
		for k := range txqueue {
			nbytes += len(txqueue[k].buf)
		}
		atomic.AddUint64(&s.snmp.PktsSent, uint64(len(txqueue)))
		atomic.AddUint64(&s.snmp.BytesSent, uint64(nbytes))
	} else {
		s.xconnWriteError = err
		s.defaultTx(txqueue)
	}
}

// inPacket is one received datagram handed from the receive path to
// the session's dispatch loop, along with its source address for
// remote-sender resolution.
type inPacket struct {
	addr net.Addr
	buf  []byte
	n    int
	ecn  bool
}

// rx drains up to batchSize datagrams per call. It returns the
// packets it read; the caller is responsible for recycling buf once
// dispatch has consumed it.
func (s *Session) rx() ([]inPacket, error) {
	if s.xconn != nil {
		return s.batchRx()
	}
	return s.defaultRx()
}

func (s *Session) defaultRx() ([]inPacket, error) {
	buf, ok := s.rxSegPool.Get()
	if !ok {
		buf = make([]byte, s.cfg.SegmentSize+512)
	}
	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	atomic.AddUint64(&s.snmp.PktsReceived, 1)
	atomic.AddUint64(&s.snmp.BytesReceived, uint64(n))
	return []inPacket{{addr: addr, buf: buf, n: n}}, nil
}

func (s *Session) batchRx() ([]inPacket, error) {
	ms := make([]ipv4.Message, 0, batchSize)
	bufs := make([][]byte, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		buf, ok := s.rxSegPool.Get()
		if !ok {
			buf = make([]byte, s.cfg.SegmentSize+512)
		}
		bufs = append(bufs, buf)
		ms = append(ms, ipv4.Message{Buffers: [][]byte{buf}})
	}

	n, err := s.xconn.ReadBatch(ms, 0)
	if err != nil {
		for _, b := range bufs {
			s.rxSegPool.Put(b)
		}
		return nil, errors.WithStack(err)
	}

	pkts := make([]inPacket, 0, n)
	nbytes := 0
	for i := 0; i < n; i++ {
		nbytes += ms[i].N
		ecn := ms[i].OOB != nil && len(ms[i].OOB) > 0 && isECNCongested(ms[i].OOB)
		pkts = append(pkts, inPacket{addr: ms[i].Addr, buf: bufs[i], n: ms[i].N, ecn: ecn})
	}
	for i := n; i < batchSize; i++ {
		s.rxSegPool.Put(bufs[i])
	}

	atomic.AddUint64(&s.snmp.PktsReceived, uint64(n))
	atomic.AddUint64(&s.snmp.BytesReceived, uint64(nbytes))
	return pkts, nil
}

// isECNCongested inspects an out-of-band control message for the
// Congestion Experienced codepoint (spec's domain-stack ECN wiring
// for CC feedback). It is conservative: any parse failure reports no
// congestion rather than risking a false CE signal.
func isECNCongested(oob []byte) bool {
	cm := new(ipv4.ControlMessage)
	if err := cm.Parse(oob); err != nil {
		return false
	}
	return cm.TOS&0x03 == 0x03
}
