/*
@Language: Go 1.23.4
*/

package norm

import (
	"fmt"
	"sync/atomic"
)

// Snmp holds a session's protocol counters. Every field is a uint64
// updated with atomic operations so the session's single-threaded
// event loop and any reporting goroutine can read consistently.
type Snmp struct {
	// Traffic.
	BytesSent     uint64
	BytesReceived uint64
	PktsSent      uint64
	PktsReceived  uint64

	// DATA/INFO segments.
	SegsSent     uint64
	SegsReceived uint64
	ParitySent   uint64

	// Repair traffic.
	NacksSent      uint64
	NacksReceived  uint64
	RepairAdvSent  uint64
	SegsRetransmitted uint64

	// FEC outcomes.
	BlocksDecoded   uint64
	DecodeFailures  uint64
	ErasuresFilled  uint64

	// Acking.
	FlushSent    uint64
	AcksSent     uint64
	AcksReceived uint64

	// Remote sender bookkeeping.
	RemoteSendersActive   uint64
	RemoteSendersInactive uint64

	// Errors.
	RecvErrors    uint64
	TruncatedMsgs uint64
}

// NewSnmp returns a zeroed counter block.
func NewSnmp() *Snmp { return new(Snmp) }

// Header returns the column headers matching ToSlice's order, for
// tabular reporting.
func (s *Snmp) Header() []string {
	return []string{
		"BytesSent", "BytesReceived", "PktsSent", "PktsReceived",
		"SegsSent", "SegsReceived", "ParitySent",
		"NacksSent", "NacksReceived", "RepairAdvSent", "SegsRetransmitted",
		"BlocksDecoded", "DecodeFailures", "ErasuresFilled",
		"FlushSent", "AcksSent", "AcksReceived",
		"RemoteSendersActive", "RemoteSendersInactive",
		"RecvErrors", "TruncatedMsgs",
	}
}

// ToSlice snapshots every counter as a string, in Header order.
func (s *Snmp) ToSlice() []string {
	c := s.Copy()
	return []string{
		fmt.Sprint(c.BytesSent), fmt.Sprint(c.BytesReceived), fmt.Sprint(c.PktsSent), fmt.Sprint(c.PktsReceived),
		fmt.Sprint(c.SegsSent), fmt.Sprint(c.SegsReceived), fmt.Sprint(c.ParitySent),
		fmt.Sprint(c.NacksSent), fmt.Sprint(c.NacksReceived), fmt.Sprint(c.RepairAdvSent), fmt.Sprint(c.SegsRetransmitted),
		fmt.Sprint(c.BlocksDecoded), fmt.Sprint(c.DecodeFailures), fmt.Sprint(c.ErasuresFilled),
		fmt.Sprint(c.FlushSent), fmt.Sprint(c.AcksSent), fmt.Sprint(c.AcksReceived),
		fmt.Sprint(c.RemoteSendersActive), fmt.Sprint(c.RemoteSendersInactive),
		fmt.Sprint(c.RecvErrors), fmt.Sprint(c.TruncatedMsgs),
	}
}

// Copy returns an atomically-consistent snapshot.
func (s *Snmp) Copy() *Snmp {
	d := NewSnmp()
	d.BytesSent = atomic.LoadUint64(&s.BytesSent)
	d.BytesReceived = atomic.LoadUint64(&s.BytesReceived)
	d.PktsSent = atomic.LoadUint64(&s.PktsSent)
	d.PktsReceived = atomic.LoadUint64(&s.PktsReceived)
	d.SegsSent = atomic.LoadUint64(&s.SegsSent)
	d.SegsReceived = atomic.LoadUint64(&s.SegsReceived)
	d.ParitySent = atomic.LoadUint64(&s.ParitySent)
	d.NacksSent = atomic.LoadUint64(&s.NacksSent)
	d.NacksReceived = atomic.LoadUint64(&s.NacksReceived)
	d.RepairAdvSent = atomic.LoadUint64(&s.RepairAdvSent)
	d.SegsRetransmitted = atomic.LoadUint64(&s.SegsRetransmitted)
	d.BlocksDecoded = atomic.LoadUint64(&s.BlocksDecoded)
	d.DecodeFailures = atomic.LoadUint64(&s.DecodeFailures)
	d.ErasuresFilled = atomic.LoadUint64(&s.ErasuresFilled)
	d.FlushSent = atomic.LoadUint64(&s.FlushSent)
	d.AcksSent = atomic.LoadUint64(&s.AcksSent)
	d.AcksReceived = atomic.LoadUint64(&s.AcksReceived)
	d.RemoteSendersActive = atomic.LoadUint64(&s.RemoteSendersActive)
	d.RemoteSendersInactive = atomic.LoadUint64(&s.RemoteSendersInactive)
	d.RecvErrors = atomic.LoadUint64(&s.RecvErrors)
	d.TruncatedMsgs = atomic.LoadUint64(&s.TruncatedMsgs)
	return d
}

// Reset zeroes every counter.
func (s *Snmp) Reset() {
	atomic.StoreUint64(&s.BytesSent, 0)
	atomic.StoreUint64(&s.BytesReceived, 0)
	atomic.StoreUint64(&s.PktsSent, 0)
	atomic.StoreUint64(&s.PktsReceived, 0)
	atomic.StoreUint64(&s.SegsSent, 0)
	atomic.StoreUint64(&s.SegsReceived, 0)
	atomic.StoreUint64(&s.ParitySent, 0)
	atomic.StoreUint64(&s.NacksSent, 0)
	atomic.StoreUint64(&s.NacksReceived, 0)
	atomic.StoreUint64(&s.RepairAdvSent, 0)
	atomic.StoreUint64(&s.SegsRetransmitted, 0)
	atomic.StoreUint64(&s.BlocksDecoded, 0)
	atomic.StoreUint64(&s.DecodeFailures, 0)
	atomic.StoreUint64(&s.ErasuresFilled, 0)
	atomic.StoreUint64(&s.FlushSent, 0)
	atomic.StoreUint64(&s.AcksSent, 0)
	atomic.StoreUint64(&s.AcksReceived, 0)
	atomic.StoreUint64(&s.RemoteSendersActive, 0)
	atomic.StoreUint64(&s.RemoteSendersInactive, 0)
	atomic.StoreUint64(&s.RecvErrors, 0)
	atomic.StoreUint64(&s.TruncatedMsgs, 0)
}
