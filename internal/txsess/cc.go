package txsess

import (
	"math"
	"time"

	"github.com/normproto/norm/internal/wire"
)

// CCNode tracks one receiver's feedback for congestion control (spec
// §4.5.6).
type CCNode struct {
	ID           wire.NodeId
	IsCLR        bool
	IsPLR        bool
	Rtt          time.Duration
	Loss         float64
	RecvRate     float64 // bytes/sec
	LastFeedback time.Time
	CCSequence   uint16
}

// Controller implements the TFRC-derived rate control of spec §4.5.6.
type Controller struct {
	nominalPacketSize float64 // EWMA of sent packet sizes, alpha=0.01
	slowStart         bool
	rate              float64 // bytes/sec
	prevRate          float64
	rttMeanSquare     float64

	RateMin float64
	TickMin time.Duration
	Grtt    time.Duration

	nodes map[wire.NodeId]*CCNode
	clr   wire.NodeId
}

// NewController starts in slow start with the given initial rate.
func NewController(initialRate, rateMin float64, tickMin time.Duration) *Controller {
	return &Controller{
		nominalPacketSize: 1024,
		slowStart:         true,
		rate:              initialRate,
		RateMin:           rateMin,
		TickMin:           tickMin,
		nodes:             make(map[wire.NodeId]*CCNode),
	}
}

// OnPacketSent updates the nominal packet size EWMA.
func (c *Controller) OnPacketSent(size int) {
	const alpha = 0.01
	c.nominalPacketSize = (1-alpha)*c.nominalPacketSize + alpha*float64(size)
}

// rateEquation implements spec §4.5.6's TFRC throughput equation.
func rateEquation(size, rtt, p float64) float64 {
	if p <= 0 || rtt <= 0 {
		return math.Inf(1)
	}
	denom := rtt * (math.Sqrt(2*p/3) + 12*p*(1+32*p*p)*math.Sqrt(3*p/8))
	if denom <= 0 {
		return math.Inf(1)
	}
	return size / denom
}

// Feedback applies one CC-node's reported loss/rate/RTT, updating the
// CLR selection and overall sender rate.
func (c *Controller) Feedback(node *CCNode) {
	c.nodes[node.ID] = node

	if c.slowStart {
		if node.Loss > 0 {
			c.slowStart = false
			c.rate = rateEquation(c.nominalPacketSize, node.Rtt.Seconds(), node.Loss)
		} else if node.IsCLR || c.clr == 0 {
			c.rate = 2 * node.RecvRate
		}
		c.clampAndCommit(node.Rtt)
		return
	}

	candidate := c.selectCLR()
	if candidate == nil {
		return
	}
	c.clr = candidate.ID
	nominal := rateEquation(c.nominalPacketSize, candidate.Rtt.Seconds(), candidate.Loss)
	damper := c.damper(candidate.Rtt)
	nominal *= damper

	if c.prevRate > 0 && nominal > 2*c.prevRate {
		nominal = 2 * c.prevRate
	}
	c.clampAndCommit(candidate.Rtt)
	c.prevRate = c.rate
	c.rate = nominal
	c.clampAndCommit(candidate.Rtt)
}

// selectCLR picks the Current Limiting Receiver: highest priority
// (existing CLR first), then lowest advertised rate, ties broken by
// highest RTT (spec §4.5.6).
func (c *Controller) selectCLR() *CCNode {
	var best *CCNode
	for _, n := range c.nodes {
		if best == nil {
			best = n
			continue
		}
		if n.ID == c.clr && best.ID != c.clr {
			best = n
			continue
		}
		if best.ID == c.clr && n.ID != c.clr {
			continue
		}
		if n.RecvRate < best.RecvRate {
			best = n
		} else if n.RecvRate == best.RecvRate && n.Rtt > best.Rtt {
			best = n
		}
	}
	return best
}

// damper dampens oscillation: sqrt(rttMeanSquare)/sqrt(rttSample),
// clamped to [0.5, 2.0].
func (c *Controller) damper(rttSample time.Duration) float64 {
	s := rttSample.Seconds()
	if s <= 0 {
		return 1
	}
	const alpha = 0.1
	c.rttMeanSquare = (1-alpha)*c.rttMeanSquare + alpha*s*s
	d := math.Sqrt(c.rttMeanSquare) / math.Sqrt(s)
	if d < 0.5 {
		d = 0.5
	}
	if d > 2.0 {
		d = 2.0
	}
	return d
}

func (c *Controller) clampAndCommit(rtt time.Duration) {
	lowerBound := c.RateMin
	if c.Grtt > 0 {
		perGrtt := c.nominalPacketSize / c.Grtt.Seconds()
		if perGrtt < lowerBound {
			lowerBound = perGrtt
		}
	}
	perSecond := c.nominalPacketSize
	if perSecond < lowerBound {
		lowerBound = perSecond
	}
	if c.rate < lowerBound {
		c.rate = lowerBound
	}
}

// Rate returns the current sender rate in bytes/sec.
func (c *Controller) Rate() float64 { return c.rate }

// SlowStart reports whether the controller is still in the initial
// slow-start phase.
func (c *Controller) SlowStart() bool { return c.slowStart }

// CLR returns the currently selected Current Limiting Receiver, if any.
func (c *Controller) CLR() wire.NodeId { return c.clr }

// DeactivationAge is the threshold past which a CC node's feedback is
// considered stale enough to drop, provided its CC sequence has also
// advanced enough to rule out sender idleness (spec §4.5.6).
func (c *Controller) DeactivationAge(rtt time.Duration) time.Duration {
	tenTick := 10 * c.TickMin
	grttOrRtt := c.Grtt
	if rtt > grttOrRtt {
		grttOrRtt = rtt
	}
	twenty := 20 * grttOrRtt
	if tenTick > twenty {
		return tenTick
	}
	return twenty
}

// Prune drops nodes whose feedback has aged out, provided their
// ccSequence also advanced enough to distinguish staleness from
// sender idleness, and returns the dropped node ids.
func (c *Controller) Prune(now time.Time, probeCount int) []wire.NodeId {
	var pruned []wire.NodeId
	for id, n := range c.nodes {
		age := now.Sub(n.LastFeedback)
		if age > c.DeactivationAge(n.Rtt) && int(n.CCSequence) > 20*probeCount {
			delete(c.nodes, id)
			if id == c.clr {
				c.clr = 0
			}
			pruned = append(pruned, id)
		}
	}
	return pruned
}
