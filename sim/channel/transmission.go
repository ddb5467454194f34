package channel

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/wipesim/wipesim/sim"
)

// Transmission is one frame occupying a frequency resource over [Start, End).
type Transmission struct {
	ID       uint64
	Sender   sim.EntityID
	Dest     sim.EntityID // sim.NoEntity broadcasts
	Resource int
	Payload  any
	Bits     int
	PowerDBm float64
	Start    sim.Time
	End      sim.Time

	// Corrupted is the sender-side outcome, set when the transmission ends.
	Corrupted bool

	origin   r2.Vec
	overlaps []*Transmission
}

// Duration returns End - Start.
func (t *Transmission) Duration() sim.Time { return t.End - t.Start }

// Origin returns the sender position when the transmission started.
func (t *Transmission) Origin() r2.Vec { return t.origin }

// Overlaps returns the transmissions on the same resource that shared airtime.
func (t *Transmission) Overlaps() []*Transmission { return t.overlaps }

// Collided reports whether any other transmission shared airtime with t.
func (t *Transmission) Collided() bool { return len(t.overlaps) > 0 }

// OverlapsWith reports whether the half-open intervals of t and o intersect.
// Simultaneous starts overlap; back-to-back transmissions do not.
func (t *Transmission) OverlapsWith(o *Transmission) bool {
	return t.Resource == o.Resource && t.Start < o.End && o.Start < t.End
}

// Delivery is the payload of a receive event.
type Delivery struct {
	Transmission *Transmission
	Receiver     sim.EntityID
	// SINRDB is the SINR at the receiver. It is +Inf under policies that
	// do not model power.
	SINRDB float64
}

// TxRequest describes a transmission a sender wants to start now.
type TxRequest struct {
	Dest     sim.EntityID
	Resource int
	Payload  any
	Bits     int
	PowerDBm float64
	// Duration overrides the airtime derived from Bits and the medium bitrate.
	Duration sim.Time
}
