package network

import (
	"fmt"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/workload"
)

// TrafficGenerator offers packets to one node. It only schedules enqueue
// events on the node and never touches the node's queue itself.
type TrafficGenerator struct {
	sim.BaseEntity

	node sim.EntityID
	src  *workload.Source
}

// NewTrafficGenerator registers a generator feeding node and schedules its
// first packet. index selects the RNG stream.
func NewTrafficGenerator(s *sim.Simulator, node sim.EntityID, index int, spec workload.TrafficSpec) (*TrafficGenerator, error) {
	src, err := workload.NewSource(spec, s.RNG().ForSubsystem(sim.SubsystemTraffic(index)))
	if err != nil {
		return nil, fmt.Errorf("traffic for node %d: %w", index, err)
	}
	g := &TrafficGenerator{
		BaseEntity: sim.NewBaseEntity(s, fmt.Sprintf("traffic-%d", index)),
		node:       node,
		src:        src,
	}
	if err := s.Register(g); err != nil {
		return nil, err
	}
	if _, err := s.Schedule(g.ID(), sim.Time(src.FirstDelay()), KindGenerate, nil); err != nil {
		return nil, err
	}
	return g, nil
}

// Emitted returns how many packets were offered so far.
func (g *TrafficGenerator) Emitted() int64 { return g.src.Emitted() }

func (g *TrafficGenerator) OnEvent(s *sim.Simulator, ev *sim.Event) error {
	if ev.Kind() != KindGenerate {
		return fmt.Errorf("unexpected event %q", ev.Kind())
	}
	burst, next, ok := g.src.Next()
	if !ok {
		return nil
	}
	for _, p := range burst {
		if _, err := s.Schedule(g.node, 0, KindEnqueue, p); err != nil {
			return err
		}
	}
	if next > 0 {
		_, err := s.Schedule(g.ID(), sim.Time(next), KindGenerate, nil)
		return err
	}
	return nil
}
