package cmd

import (
	"fmt"
	"math/rand"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/env"
)

// Agent picks the next action from the last observation.
type Agent interface {
	Name() string
	Reset()
	Act(obs []float64) []float64
}

// newAgent builds a built-in agent for space. fixed is the constant agent's
// action and the power level suffix of the others; seed keys the random
// agent.
func newAgent(name string, space env.Space, numNodes int, fixed []float64, seed int64) (Agent, error) {
	width := space.Shape()[0]
	if fixed == nil {
		fixed = make([]float64, width)
	}
	if len(fixed) != width || !space.Contains(fixed) {
		return nil, fmt.Errorf("action %v is not in %s", fixed, space)
	}
	switch name {
	case "constant":
		return constantAgent{action: fixed}, nil
	case "round-robin":
		return &roundRobinAgent{n: numNodes, suffix: fixed[1:]}, nil
	case "random":
		rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed)).ForSubsystem(sim.SubsystemAgent)
		return randomAgent{space: space, rng: rng}, nil
	case "longest-queue":
		return longestQueueAgent{n: numNodes, suffix: fixed[1:]}, nil
	default:
		return nil, fmt.Errorf("unknown agent %q; valid: constant, round-robin, random, longest-queue", name)
	}
}

type constantAgent struct{ action []float64 }

func (a constantAgent) Name() string              { return "constant" }
func (a constantAgent) Reset()                    {}
func (a constantAgent) Act(_ []float64) []float64 { return a.action }

type roundRobinAgent struct {
	n      int
	next   int
	suffix []float64
}

func (a *roundRobinAgent) Name() string { return "round-robin" }
func (a *roundRobinAgent) Reset()       { a.next = 0 }

func (a *roundRobinAgent) Act(_ []float64) []float64 {
	node := a.next
	a.next = (a.next + 1) % a.n
	return append([]float64{float64(node)}, a.suffix...)
}

type randomAgent struct {
	space env.Space
	rng   *rand.Rand
}

func (a randomAgent) Name() string              { return "random" }
func (a randomAgent) Reset()                    {}
func (a randomAgent) Act(_ []float64) []float64 { return a.space.Sample(a.rng) }

// longestQueueAgent grants the node with the fullest queue, lowest index
// first on ties. Queue fill leads the observation vector.
type longestQueueAgent struct {
	n      int
	suffix []float64
}

func (a longestQueueAgent) Name() string { return "longest-queue" }
func (a longestQueueAgent) Reset()       {}

func (a longestQueueAgent) Act(obs []float64) []float64 {
	best := 0
	for i := 1; i < a.n && i < len(obs); i++ {
		if obs[i] > obs[best] {
			best = i
		}
	}
	return append([]float64{float64(best)}, a.suffix...)
}
