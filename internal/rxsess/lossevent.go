package rxsess

import (
	"math"
	"time"
)

// lossEventWeights are the 8-slot TFRC weighted window (spec §4.6.4).
var lossEventWeights = [8]float64{1, 1, 1, 1, 0.8, 0.6, 0.4, 0.2}

// LossEstimator implements the TFRC loss-event estimator of spec
// §4.6.4: a sliding window of loss-interval lengths, weighted to
// compute a smoothed loss fraction robust to short bursts.
type LossEstimator struct {
	history    [8]float64 // interval lengths in packets, history[0] is most recent
	lastEvent  time.Time
	eventSeq   uint32
	inSlowStart bool

	seenEvent bool
}

// NewLossEstimator starts with no loss events observed.
func NewLossEstimator() *LossEstimator {
	return &LossEstimator{inSlowStart: true}
}

// OnPacketArrival feeds one more packet into the current interval and
// reports whether this arrival constitutes a new loss event: the
// first out-of-order or ECN-CE packet after an RTT-sized event window
// since the last event (spec §4.6.4). reordered/ecnCE flag the
// triggering condition; seq is tolerated within +-0x8000 for dup/
// reorder detection by the caller before this is invoked.
func (le *LossEstimator) OnPacketArrival(now time.Time, eventWindow time.Duration, reordered, ecnCE bool) bool {
	if !reordered && !ecnCE {
		le.history[0]++
		return false
	}
	if !le.lastEvent.IsZero() && now.Sub(le.lastEvent) < eventWindow {
		return false
	}
	le.shiftHistory()
	le.lastEvent = now
	le.seenEvent = true
	return true
}

func (le *LossEstimator) shiftHistory() {
	for i := len(le.history) - 1; i > 0; i-- {
		le.history[i] = le.history[i-1]
	}
	le.history[0] = 1
}

// LossFraction computes 1/max(s0,s1) where s0 is the discounted
// weighted mean including the current interval and s1 excludes it
// (spec §4.6.4).
func (le *LossEstimator) LossFraction() float64 {
	s0 := le.weightedMean(le.history[:], true)
	tail := le.history[1:]
	var shifted [8]float64
	copy(shifted[:7], tail)
	s1 := le.weightedMean(shifted[:], true)

	discount := 1.0
	if le.history[0] > 0 {
		discount = (2 * s1) / le.history[0]
		if discount > 1 {
			discount = 1
		}
		if discount < 0.5 {
			discount = 0.5
		}
	}
	s0 *= discount

	m := s0
	if s1 > m {
		m = s1
	}
	if m <= 0 {
		return 0
	}
	return 1 / m
}

func (le *LossEstimator) weightedMean(intervals []float64, includeCurrent bool) float64 {
	var num, den float64
	for i, w := range lossEventWeights {
		if i >= len(intervals) {
			break
		}
		if i == 0 && !includeCurrent {
			continue
		}
		num += w * intervals[i]
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// OnFirstLossEvent ends slow start and computes the initial loss
// fraction used to dampen overshoot (spec §4.6.4):
// max(altInit, 3*(segSz/(recvRate*rtt))^2/2).
func (le *LossEstimator) OnFirstLossEvent(altInit, segSz, recvRate, rtt float64) float64 {
	le.inSlowStart = false
	if recvRate <= 0 || rtt <= 0 {
		return altInit
	}
	x := segSz / (recvRate * rtt)
	computed := 3 * x * x / 2
	return math.Max(altInit, computed)
}

// SlowStart reports whether no loss event has been observed yet.
func (le *LossEstimator) SlowStart() bool { return le.inSlowStart }
