// Package txsess implements the sender-side engine: the transmit
// object table, pacing, GRTT probing, NACK-driven repair, watermark
// positive-ACK collection, and TFRC-derived congestion control (spec
// §4.5).
package txsess

import "time"

// Pacer computes the inter-packet departure interval implied by the
// sender's current rate (spec §4.5.2). The transmit sequence number
// is advanced by the caller only for packets actually handed to the
// socket.
type Pacer struct {
	RateMin float64 // bytes/sec
	RateMax float64
	rate    float64 // bytes/sec
	suspended bool
}

// NewPacer builds a pacer clamped to [rateMin, rateMax].
func NewPacer(rateMin, rateMax, initialRate float64) *Pacer {
	p := &Pacer{RateMin: rateMin, RateMax: rateMax}
	p.SetRate(initialRate)
	return p
}

// SetRate clamps and installs a new transmit rate.
func (p *Pacer) SetRate(rate float64) {
	if p.RateMin > 0 && rate < p.RateMin {
		rate = p.RateMin
	}
	if p.RateMax > 0 && rate > p.RateMax {
		rate = p.RateMax
	}
	p.rate = rate
}

// Rate returns the current transmit rate in bytes/sec.
func (p *Pacer) Rate() float64 { return p.rate }

// Interval returns the departure interval for a message of msgLen
// bytes at the current rate.
func (p *Pacer) Interval(msgLen int) time.Duration {
	if p.rate <= 0 {
		return 0
	}
	secs := float64(msgLen) / p.rate
	return time.Duration(secs * float64(time.Second))
}

// Suspend deactivates the pacer after a would-block send (spec §5).
func (p *Pacer) Suspend() { p.suspended = true }

// Resume reactivates the pacer on a socket-writable notification.
func (p *Pacer) Resume() { p.suspended = false }

// Suspended reports whether the pacer is currently waiting on a
// socket-writable notification.
func (p *Pacer) Suspended() bool { return p.suspended }
