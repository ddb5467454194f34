package env

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/wipesim/wipesim/sim"
)

// Reward names accepted by reward_fn.
const (
	RewardThroughput        = "throughput"
	RewardDeliveryRatio     = "delivery-ratio"
	RewardCollisionPenalty  = "collision-penalty"
	RewardBacklog           = "backlog"
	RewardCounterDifference = "counter-difference"
)

var validRewards = map[string]bool{
	RewardThroughput:        true,
	RewardDeliveryRatio:     true,
	RewardCollisionPenalty:  true,
	RewardBacklog:           true,
	RewardCounterDifference: true,
}

func rewardNames() string {
	names := make([]string, 0, len(validRewards))
	for n := range validRewards {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// StepStats is what reward and termination policies see after each step.
// Per-node slices are indexed by node position in the cell and count only
// what happened during the step unless noted.
type StepStats struct {
	Step     int
	Now      sim.Time
	Elapsed  sim.Time
	Node     int
	Decision string

	Delivered []float64
	Failed    []float64
	Dropped   []float64
	// Backlog is the queue length at the end of the step.
	Backlog       []float64
	QueueCapacity int
	Busy          sim.Time
	Collisions    int
	// LastSeq is the highest sequence number the gateway decoded from each
	// node since the episode started.
	LastSeq []int64
	// GatewayFrames counts every frame decoded at the gateway this episode.
	GatewayFrames int
}

// Utilization is the busy fraction of the step, capped to 1.
func (st *StepStats) Utilization() float64 {
	if st.Elapsed <= 0 {
		return 0
	}
	u := float64(st.Busy) / float64(st.Elapsed)
	if u > 1 {
		return 1
	}
	return u
}

// RewardPolicy turns step statistics into a scalar reward. Reset is called
// at the start of every episode.
type RewardPolicy interface {
	Name() string
	Reset()
	Reward(st *StepStats) float64
}

// RewardFunc adapts a stateless function to RewardPolicy.
type RewardFunc func(st *StepStats) float64

func (f RewardFunc) Name() string                 { return "func" }
func (f RewardFunc) Reset()                       {}
func (f RewardFunc) Reward(st *StepStats) float64 { return f(st) }

// NewRewardPolicy returns the built-in policy called name.
func NewRewardPolicy(name string) (RewardPolicy, error) {
	switch name {
	case RewardThroughput:
		return named{RewardThroughput, throughput}, nil
	case RewardDeliveryRatio:
		return named{RewardDeliveryRatio, deliveryRatio}, nil
	case RewardCollisionPenalty:
		return named{RewardCollisionPenalty, collisionPenalty}, nil
	case RewardBacklog:
		return named{RewardBacklog, backlog}, nil
	case RewardCounterDifference:
		return &counterDifference{}, nil
	default:
		return nil, sim.ConfigErrorf("reward_fn", "unknown reward %q; valid: %s", name, rewardNames())
	}
}

type named struct {
	name string
	fn   RewardFunc
}

func (n named) Name() string                 { return n.name }
func (n named) Reset()                       {}
func (n named) Reward(st *StepStats) float64 { return n.fn(st) }

// throughput counts frames delivered during the step.
func throughput(st *StepStats) float64 {
	return floats.Sum(st.Delivered)
}

func deliveryRatio(st *StepStats) float64 {
	d, f := floats.Sum(st.Delivered), floats.Sum(st.Failed)
	if d+f == 0 {
		return 0
	}
	return d / (d + f)
}

// collisionPenalty rewards deliveries and charges one unit per lost frame.
func collisionPenalty(st *StepStats) float64 {
	return floats.Sum(st.Delivered) - floats.Sum(st.Failed)
}

// backlog is minus the mean queue fill, or minus the total backlog for
// unbounded queues.
func backlog(st *StepStats) float64 {
	total := floats.Sum(st.Backlog)
	if st.QueueCapacity <= 0 || len(st.Backlog) == 0 {
		return -total
	}
	return -total / float64(st.QueueCapacity*len(st.Backlog))
}

// counterDifference rewards shrinking the spread between the newest
// sequence numbers the gateway decoded from each node.
type counterDifference struct {
	last int64
}

func (c *counterDifference) Name() string { return RewardCounterDifference }
func (c *counterDifference) Reset()       { c.last = 0 }

func (c *counterDifference) Reward(st *StepStats) float64 {
	if len(st.LastSeq) == 0 {
		return 0
	}
	lo, hi := st.LastSeq[0], st.LastSeq[0]
	for _, v := range st.LastSeq[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	spread := hi - lo
	r := float64(c.last - spread)
	c.last = spread
	return r
}
