package rxsess

import (
	"math/rand"
	"time"

	"github.com/normproto/norm/internal/wire"
)

// PendingAck tracks a FLUSH-triggered positive-ACK obligation for one
// watermark position (spec §4.6.5).
type PendingAck struct {
	Pos       wire.Position
	AppAck    []byte // forwarded to the embedder as RX_ACK_REQUEST before emission
	deadline  time.Time
	armed     bool
}

// OnFlush evaluates an incoming FLUSH against the receiver's current
// repair state; if the watermark position is not already satisfied,
// it arms a bounded Uniform(grtt) back-off before ACK emission (spec
// §4.6.5).
func OnFlush(pos wire.Position, repairSatisfied bool, appAck []byte, grtt time.Duration, now time.Time) *PendingAck {
	if repairSatisfied {
		return nil
	}
	delay := time.Duration(rand.Int63n(int64(grtt) + 1))
	return &PendingAck{Pos: pos, AppAck: appAck, deadline: now.Add(delay), armed: true}
}

// Ready reports whether the back-off has elapsed and the ACK should
// be emitted now.
func (p *PendingAck) Ready(now time.Time) bool {
	return p.armed && !now.Before(p.deadline)
}
