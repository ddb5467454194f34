package workload

import (
	"fmt"
	"math"
	"math/rand"
)

// Source draws successive packets for one traffic stream.
type Source struct {
	arrival ArrivalSampler
	size    SizeSampler
	rng     *rand.Rand
	start   int64
	limit   int64
	copies  int
	seq     int64
	emitted int64
}

// Packet is one generated packet before it enters a node queue.
type Packet struct {
	Seq   int64
	Bytes int
}

// NewSource validates spec and binds it to rng.
func NewSource(spec TrafficSpec, rng *rand.Rand) (*Source, error) {
	if err := spec.Validate("traffic"); err != nil {
		return nil, err
	}
	arrival, err := NewArrivalSampler(spec.Arrival, spec.Rate)
	if err != nil {
		return nil, fmt.Errorf("traffic arrival: %w", err)
	}
	size, err := NewSizeSampler(spec.Size)
	if err != nil {
		return nil, fmt.Errorf("traffic size: %w", err)
	}
	return &Source{
		arrival: arrival,
		size:    size,
		rng:     rng,
		start:   int64(math.Round(spec.Start * 1e6)),
		limit:   spec.MaxPackets,
		copies:  max(spec.Multiplicity, 1),
	}, nil
}

// FirstDelay returns the ticks until the first packet.
func (s *Source) FirstDelay() int64 {
	return s.start + s.arrival.SampleIAT(s.rng)
}

// Next returns the packets of the next arrival and the delay until the one
// after it. Every packet of a burst carries the same sequence number and
// its own size. ok is false once MaxPackets arrivals have been produced.
func (s *Source) Next() (burst []Packet, nextDelay int64, ok bool) {
	if s.limit > 0 && s.seq >= s.limit {
		return nil, 0, false
	}
	s.seq++
	burst = make([]Packet, s.copies)
	for i := range burst {
		burst[i] = Packet{Seq: s.seq, Bytes: s.size.Sample(s.rng)}
	}
	s.emitted += int64(s.copies)
	if s.limit > 0 && s.seq >= s.limit {
		return burst, 0, true
	}
	return burst, s.arrival.SampleIAT(s.rng), true
}

// Arrivals returns how many arrivals the source produced.
func (s *Source) Arrivals() int64 { return s.seq }

// Emitted returns how many packets the source produced, copies included.
func (s *Source) Emitted() int64 { return s.emitted }
