package txsess

import (
	"time"

	"github.com/normproto/norm/internal/wire"
)

// GrttProber drives the independent probe timer that emits CMD(CC)
// messages and maintains the sender's smoothed round-trip estimate
// (spec §4.5.3).
type GrttProber struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
	Max         time.Duration

	interval time.Duration
	grtt     time.Duration
	peak     time.Duration

	ccEnabled  bool
	dataActive bool
	clrRtt     time.Duration
	probeCount int // 1..3
}

// NewGrttProber starts at IntervalMin.
func NewGrttProber(min, max, cap time.Duration) *GrttProber {
	return &GrttProber{IntervalMin: min, IntervalMax: max, Max: cap, interval: min, grtt: min, peak: min, probeCount: 1}
}

// NextInterval computes the next probe interval (spec §4.5.3): the
// unconditional backoff schedule multiplies by 1.5 each probe and
// clamps to [IntervalMin, IntervalMax]; when CC is enabled and data is
// actively flowing, the interval instead tracks the measured RTT.
func (g *GrttProber) NextInterval() time.Duration {
	if g.ccEnabled && g.dataActive {
		base := g.grtt
		if g.clrRtt < base {
			base = g.clrRtt
		}
		pc := g.probeCount
		if pc < 1 {
			pc = 1
		}
		g.interval = base / time.Duration(pc)
		return g.interval
	}
	next := time.Duration(float64(g.interval) * 1.5)
	if next < g.IntervalMin {
		next = g.IntervalMin
	}
	if next > g.IntervalMax {
		next = g.IntervalMax
	}
	g.interval = next
	return next
}

// Grtt returns the current smoothed round-trip estimate.
func (g *GrttProber) Grtt() time.Duration { return g.grtt }

// ProbeCount returns the probe count used to scale the probe interval
// and the CC feedback staleness threshold (spec §4.5.6). It starts at
// 1 and nothing in GrttProber changes it, so it does not vary with the
// measured RTT.
func (g *GrttProber) ProbeCount() int { return g.probeCount }

// SetDataActive records whether the sender currently has data to
// transmit, gating the RTT-tracking probe schedule.
func (g *GrttProber) SetDataActive(active bool) { g.dataActive = active }

// SetCCEnabled toggles congestion-control-driven probing.
func (g *GrttProber) SetCCEnabled(enabled bool) { g.ccEnabled = enabled }

// OnGrttResponse updates the smoothed RTT estimate from a received
// NACK/ACK's GrttResponse timestamp (spec §4.5.3).
func (g *GrttProber) OnGrttResponse(sendTime, now time.Time, unicast bool) {
	rcvrRtt := now.Sub(sendTime)
	if rcvrRtt < 0 {
		rcvrRtt = 0
	}
	if rcvrRtt > g.grtt || unicast {
		g.grtt = time.Duration(0.25*float64(g.grtt) + 0.75*float64(rcvrRtt))
	}
	if g.grtt > g.peak {
		g.peak = g.grtt
	}
	if rcvrRtt > g.clrRtt {
		g.clrRtt = rcvrRtt
	}
}

// Decay shrinks the smoothed estimate by 10% on each probe interval
// that elapses without a fresher measurement, never below one tenth
// of the highest estimate seen so far.
func (g *GrttProber) Decay() {
	g.grtt = time.Duration(float64(g.grtt) * 0.9)
	if g.grtt < g.peak/10 {
		g.grtt = g.peak / 10
	}
}

// Advertised returns the GRTT value to carry on the wire: quantized
// upward, capped by Max, and floored by the per-packet pacing
// interval (44+segSz)/txRate (spec §4.5.3).
func (g *GrttProber) Advertised(segSize int, txRate float64) (uint8, time.Duration) {
	floor := g.grtt
	if txRate > 0 {
		pktInterval := time.Duration(float64(44+segSize) / txRate * float64(time.Second))
		if pktInterval > floor {
			floor = pktInterval
		}
	}
	if floor > g.Max {
		floor = g.Max
	}
	q := wire.QuantizeRtt(floor.Seconds())
	return q, time.Duration(wire.UnquantizeRtt(q) * float64(time.Second))
}
