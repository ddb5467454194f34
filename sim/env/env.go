// Package env exposes a wireless cell as a reinforcement-learning
// environment. Each Step grants one node the channel for a time quantum,
// runs the simulation to the controller's decision boundary and scores
// what happened.
package env

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/channel"
	"github.com/wipesim/wipesim/sim/network"
	"github.com/wipesim/wipesim/sim/telemetry"
	"github.com/wipesim/wipesim/sim/trace"
)

var (
	// ErrEpisodeDone is returned by Step after an episode ended until Reset.
	ErrEpisodeDone = errors.New("episode is done; call Reset")
	// ErrNotReset is returned by Step before the first Reset.
	ErrNotReset = errors.New("environment has not been reset")
)

// DecisionQuantum is the decision reason reported when the step deadline
// passed without a controller signal.
const DecisionQuantum = "quantum"

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation []float64
	Reward      float64
	Done        bool
	Info        map[string]any
}

// Option configures optional Env hooks.
type Option func(*Env)

// WithCollector publishes step metrics to c.
func WithCollector(c *telemetry.Collector) Option {
	return func(e *Env) { e.collector = c }
}

// WithTrace records steps and transmissions into t.
func WithTrace(t *trace.EpisodeTrace) Option {
	return func(e *Env) { e.trace = t }
}

// WithReward overrides the configured reward policy.
func WithReward(p RewardPolicy) Option {
	return func(e *Env) { e.reward = p }
}

// WithTermination overrides the configured termination policy.
func WithTermination(p TerminationPolicy) Option {
	return func(e *Env) { e.term = p }
}

// Env is a single-threaded environment. Independent Env values share no
// state.
type Env struct {
	cfg       Config
	seed      int64
	quantum   sim.Time
	reward    RewardPolicy
	term      TerminationPolicy
	collector *telemetry.Collector
	trace     *trace.EpisodeTrace

	actionSpace Space
	obsSpace    Box
	// powerDim and durationDim index the optional action dimensions; -1
	// when the dimension is absent.
	powerDim    int
	durationDim int
	durations   []sim.Time

	s      *sim.Simulator
	medium *channel.Medium
	ctrl   *network.Controller
	nodes  []*network.Node

	episode   int
	episodeID uuid.UUID
	step      int
	started   bool
	done      bool
	prev      snapshot
	lastObs   []float64
}

type snapshot struct {
	now        sim.Time
	nodes      []network.NodeStats
	busy       sim.Time
	collisions int
}

// New validates cfg and resolves its policies. Call Reset before Step.
func New(cfg Config, opts ...Option) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Env{
		cfg:     cfg,
		seed:    cfg.RandomSeed,
		quantum: sim.FromSeconds(cfg.StepQuantum),
		reward:  cfg.Reward,
		term:    cfg.Terminate,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reward == nil {
		p, err := NewRewardPolicy(cfg.RewardFn)
		if err != nil {
			return nil, err
		}
		e.reward = p
	}
	if e.term == nil {
		p, err := NewTerminationPolicy(cfg.Termination)
		if err != nil {
			return nil, err
		}
		e.term = p
	}
	nvec := []int{cfg.NumNodes}
	e.powerDim, e.durationDim = -1, -1
	if len(cfg.TxPowerLevelsDBm) > 0 {
		e.powerDim = len(nvec)
		nvec = append(nvec, len(cfg.TxPowerLevelsDBm))
	}
	if len(cfg.DurationLevels) > 0 {
		e.durationDim = len(nvec)
		nvec = append(nvec, len(cfg.DurationLevels))
		for _, d := range cfg.DurationLevels {
			e.durations = append(e.durations, sim.FromSeconds(d))
		}
	}
	if len(nvec) > 1 {
		e.actionSpace = MultiDiscrete{Nvec: nvec}
	} else {
		e.actionSpace = Discrete{N: cfg.NumNodes}
	}
	e.obsSpace = observationSpace(cfg.NumNodes, cfg.QueueCapacity)
	return e, nil
}

// ActionSpace returns the declared action space.
func (e *Env) ActionSpace() Space { return e.actionSpace }

// ObservationSpace returns the declared observation space.
func (e *Env) ObservationSpace() Space { return e.obsSpace }

// Config returns the validated configuration.
func (e *Env) Config() Config { return e.cfg }

// Seed sets the seed used by the next Reset and returns it.
func (e *Env) Seed(seed int64) []int64 {
	e.seed = seed
	return []int64{seed}
}

// Episode returns the number of the current episode, starting at 1.
func (e *Env) Episode() int { return e.episode }

// EpisodeID returns the deterministic identifier of the current episode.
func (e *Env) EpisodeID() uuid.UUID { return e.episodeID }

// Now returns the simulated time of the current episode.
func (e *Env) Now() sim.Time {
	if e.s == nil {
		return 0
	}
	return e.s.Now()
}

// Reset starts a fresh episode and returns its initial observation.
func (e *Env) Reset() ([]float64, error) {
	return e.ResetContext(context.Background())
}

// ResetContext is Reset with a context for tracing and cancellation.
func (e *Env) ResetContext(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := telemetry.Tracer().Start(ctx, "env.reset")
	defer span.End()

	if err := e.build(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.episode++
	e.episodeID = episodeID(e.seed, e.episode)
	e.step = 0
	e.started = true
	e.done = false
	e.prev = e.snapshot()
	e.reward.Reset()
	e.term.Reset()
	e.collector.EpisodeStarted()

	st := e.stats(e.prev, e.prev, -1, "")
	e.lastObs = observe(st)
	span.SetAttributes(
		attribute.Int("wipesim.episode", e.episode),
		attribute.String("wipesim.episode_id", e.episodeID.String()),
		attribute.Int64("wipesim.seed", e.seed),
	)
	logrus.Debugf("[tick %07d] episode %d (%s) reset with seed %d", 0, e.episode, e.episodeID, e.seed)
	return append([]float64(nil), e.lastObs...), nil
}

// Step applies action and runs the cell to the next decision boundary.
func (e *Env) Step(action []float64) (StepResult, error) {
	return e.StepContext(context.Background(), action)
}

// StepContext is Step with a context for tracing and cancellation.
func (e *Env) StepContext(ctx context.Context, action []float64) (StepResult, error) {
	if !e.started {
		return StepResult{}, ErrNotReset
	}
	if e.done {
		return StepResult{}, ErrEpisodeDone
	}
	if !e.actionSpace.Contains(action) {
		return StepResult{}, &sim.InvalidActionError{
			Action: append([]float64(nil), action...),
			Space:  e.actionSpace.String(),
			Reason: "out of bounds or not integral",
		}
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	_, span := telemetry.Tracer().Start(ctx, "env.step")
	defer span.End()

	nodeIdx := int(action[0])
	a := network.Assignment{Node: e.nodes[nodeIdx].ID(), Duration: e.quantum}
	if e.powerDim >= 0 {
		p := e.cfg.TxPowerLevelsDBm[int(action[e.powerDim])]
		a.PowerDBm = &p
	}
	if e.durationDim >= 0 {
		a.Duration = e.durations[int(action[e.durationDim])]
	}
	span.SetAttributes(
		attribute.Int("wipesim.episode", e.episode),
		attribute.Int("wipesim.step", e.step+1),
		attribute.Int("wipesim.node", nodeIdx),
		attribute.Int64("wipesim.duration_us", int64(a.Duration)),
	)

	fail := func(err error) (StepResult, error) {
		e.done = true
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return StepResult{}, err
	}
	if _, err := e.s.Schedule(e.ctrl.ID(), 0, network.KindAssign, a); err != nil {
		return fail(err)
	}
	deadline := e.s.Now() + e.ctrl.Cycle(a.Duration)
	d, err := e.s.RunUntilDecision(deadline)
	if err != nil {
		return fail(fmt.Errorf("episode %d step %d: %w", e.episode, e.step+1, err))
	}
	reason := DecisionQuantum
	if d != nil {
		reason = d.Reason
	}

	e.step++
	cur := e.snapshot()
	st := e.stats(e.prev, cur, nodeIdx, reason)
	e.prev = cur

	obs := observe(st)
	reward := e.reward.Reward(st)
	e.done = e.term.Done(st)
	e.lastObs = obs

	delivered, failed, dropped := sum(st.Delivered), sum(st.Failed), sum(st.Dropped)
	info := map[string]any{
		"episode":     e.episode,
		"episode_id":  e.episodeID.String(),
		"step":        e.step,
		"time_us":     int64(st.Now),
		"decision":    reason,
		"duration_us": int64(a.Duration),
		"delivered":   delivered,
		"failed":      failed,
		"dropped":     dropped,
	}

	e.collector.ObserveStep(reward, st.Elapsed.Seconds())
	e.collector.SetUtilization(st.Utilization())
	for i, n := range e.nodes {
		e.collector.SetQueueDepth(n.Name(), int(st.Backlog[i]))
	}
	e.trace.RecordStep(trace.StepRecord{
		Episode:   e.episode,
		Step:      e.step,
		Clock:     int64(st.Now),
		Action:    intAction(action),
		Node:      e.nodes[nodeIdx].Name(),
		Reason:    reason,
		Reward:    reward,
		Delivered: delivered,
		Failed:    failed,
		Done:      e.done,
	})
	span.SetAttributes(attribute.Float64("wipesim.reward", reward), attribute.Bool("wipesim.done", e.done))
	logrus.Debugf("[tick %07d] step %d granted %s: reward %.3f, delivered %d, failed %d", st.Now, e.step, e.nodes[nodeIdx].Name(), reward, delivered, failed)

	return StepResult{Observation: obs, Reward: reward, Done: e.done, Info: info}, nil
}

func (e *Env) build() error {
	cfg := e.cfg
	s := sim.NewSimulator(sim.Config{Seed: e.seed})
	policy, err := channel.NewInterferencePolicy(cfg.Interference)
	if err != nil {
		return sim.ConfigErrorf("interference", "%v", err)
	}
	atten, err := channel.NewAttenuationModel(cfg.Attenuation, cfg.Frequency)
	if err != nil {
		return sim.ConfigErrorf("attenuation", "%v", err)
	}
	medium, err := channel.NewMedium(s, channel.Config{
		FrequencyHz: cfg.Frequency,
		BandwidthHz: cfg.ChannelBandwidth,
		BitrateBps:  cfg.Bitrate,
		Policy:      policy,
		Attenuation: atten,
	})
	if err != nil {
		return err
	}
	ctrl, err := network.NewController(s, medium, network.ControllerConfig{
		AnnounceAirtime: sim.FromSeconds(cfg.AnnounceAirtime),
	})
	if err != nil {
		return err
	}

	nodes := make([]*network.Node, cfg.NumNodes)
	for i := range nodes {
		node, err := network.NewNode(s, medium, i, network.NodeConfig{
			Position:      e.position(i),
			MAC:           network.MACMode(cfg.MAC),
			QueueCapacity: cfg.QueueCapacity,
			TxPowerDBm:    cfg.TxPowerDBm,
			Dest:          ctrl.ID(),
			HeaderBits:    cfg.HeaderBits,
			Persistence:   cfg.AlohaPersistence,
			Backoff:       sim.FromSeconds(cfg.AlohaBackoff),
		})
		if err != nil {
			return err
		}
		ctrl.Manage(node)
		nodes[i] = node
		if spec, ok := cfg.trafficFor(i); ok {
			if _, err := network.NewTrafficGenerator(s, node.ID(), i, spec); err != nil {
				return err
			}
		}
	}
	medium.Observe(e.observeTransmission)

	e.s, e.medium, e.ctrl, e.nodes = s, medium, ctrl, nodes
	return nil
}

func (e *Env) position(i int) r2.Vec {
	if len(e.cfg.Positions) > 0 {
		p := e.cfg.Positions[i]
		return r2.Vec{X: p[0], Y: p[1]}
	}
	angle := 2 * math.Pi * float64(i) / float64(e.cfg.NumNodes)
	return r2.Vec{X: math.Cos(angle), Y: math.Sin(angle)}
}

func (e *Env) observeTransmission(tx *channel.Transmission) {
	e.collector.ObserveTransmission(tx.Corrupted)
	if !e.trace.WantsTransmissions() {
		return
	}
	sender := fmt.Sprintf("entity-%d", tx.Sender)
	if ent, ok := e.s.Entity(tx.Sender); ok {
		sender = ent.Name()
	}
	e.trace.RecordTransmission(trace.TransmissionRecord{
		Episode:   e.episode,
		ID:        tx.ID,
		Sender:    sender,
		Resource:  tx.Resource,
		Start:     int64(tx.Start),
		End:       int64(tx.End),
		PowerDBm:  tx.PowerDBm,
		Overlaps:  len(tx.Overlaps()),
		Corrupted: tx.Corrupted,
	})
}

func (e *Env) snapshot() snapshot {
	sn := snapshot{
		now:        e.s.Now(),
		nodes:      make([]network.NodeStats, len(e.nodes)),
		busy:       e.medium.BusyTime(),
		collisions: e.medium.Collisions(),
	}
	for i, n := range e.nodes {
		sn.nodes[i] = n.Stats()
	}
	return sn
}

// stats builds the per-step view between two snapshots.
func (e *Env) stats(prev, cur snapshot, node int, reason string) *StepStats {
	n := len(e.nodes)
	st := &StepStats{
		Step:          e.step,
		Now:           cur.now,
		Elapsed:       cur.now - prev.now,
		Node:          node,
		Decision:      reason,
		Delivered:     make([]float64, n),
		Failed:        make([]float64, n),
		Dropped:       make([]float64, n),
		Backlog:       make([]float64, n),
		QueueCapacity: e.cfg.QueueCapacity,
		Busy:          cur.busy - prev.busy,
		Collisions:    cur.collisions - prev.collisions,
		LastSeq:       make([]int64, n),
	}
	for i, nd := range e.nodes {
		st.Delivered[i] = float64(cur.nodes[i].Delivered - prev.nodes[i].Delivered)
		st.Failed[i] = float64(cur.nodes[i].Failed - prev.nodes[i].Failed)
		st.Dropped[i] = float64(cur.nodes[i].Dropped - prev.nodes[i].Dropped)
		st.Backlog[i] = float64(nd.Queue().Len())
		gw := e.ctrl.Received(nd.ID())
		st.LastSeq[i] = gw.LastSeq
		st.GatewayFrames += gw.Frames
	}
	return st
}

// episodeID derives a stable UUID from the seed and episode number.
func episodeID(seed int64, episode int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("wipesim://episode/%d/%d", seed, episode)))
}

func sum(xs []float64) int {
	total := 0
	for _, x := range xs {
		total += int(x)
	}
	return total
}

func intAction(action []float64) []int {
	out := make([]int, len(action))
	for i, v := range action {
		out[i] = int(v)
	}
	return out
}
