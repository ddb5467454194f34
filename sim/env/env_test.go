package env

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/internal/testutil"
	"github.com/wipesim/wipesim/sim/telemetry"
	"github.com/wipesim/wipesim/sim/trace"
)

func newEnv(t *testing.T, cfg Config, opts ...Option) *Env {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	return e
}

func runActions(t *testing.T, e *Env, action []float64, n int) (rewards []float64, obs [][]float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		res, err := e.Step(action)
		require.NoError(t, err, "step %d", i+1)
		rewards = append(rewards, res.Reward)
		obs = append(obs, res.Observation)
	}
	return rewards, obs
}

func TestEnv_ResetReturnsInitialObservation(t *testing.T) {
	e := newEnv(t, DefaultConfig())

	obs, err := e.Reset()

	require.NoError(t, err)
	assert.Len(t, obs, 3*2+1)
	assert.True(t, e.ObservationSpace().Contains(obs))
	for i, v := range obs {
		assert.Zero(t, v, "element %d", i)
	}
	assert.Equal(t, 1, e.Episode())
	assert.Equal(t, sim.Time(0), e.Now())
}

func TestEnv_Seed42ReferenceRewards(t *testing.T) {
	// GIVEN the default two-node cell with seed 42 and a sensor packet per
	// millisecond at each node
	cfg := DefaultConfig()
	cfg.RandomSeed = 42
	e := newEnv(t, cfg)
	_, err := e.Reset()
	require.NoError(t, err)

	// WHEN node 0 is granted the channel ten times
	rewards, obs := runActions(t, e, []float64{0}, 10)

	// THEN the first grant is too early for any packet and every later one
	// carries exactly the packet that missed the previous grant
	assert.Equal(t, []float64{0, 1, 1, 1, 1, 1, 1, 1, 1, 1}, rewards)
	assert.Equal(t, sim.Time(10*1001), e.Now())
	// node 0 holds the packet that just missed the grant, node 1 is never
	// granted and keeps one packet per elapsed millisecond
	assert.InDelta(t, 1.0/64, obs[9][0], 1e-12)
	assert.InDelta(t, 10.0/64, obs[9][1], 1e-12)
}

func TestEnv_ResetIsDeterministic(t *testing.T) {
	// GIVEN a poisson workload and a fixed action sequence
	cfg := DefaultConfig()
	cfg.Traffic[0].Arrival.Process = "poisson"
	cfg.Termination = TerminationSpec{Policy: TerminateNever}
	actions := [][]float64{{0}, {1}, {1}, {0}, {1}, {0}, {0}, {1}, {0}, {1}, {1}, {1}}

	run := func(e *Env) ([]float64, [][]float64) {
		_, err := e.Reset()
		require.NoError(t, err)
		var rewards []float64
		var obs [][]float64
		for _, a := range actions {
			res, err := e.Step(a)
			require.NoError(t, err)
			rewards = append(rewards, res.Reward)
			obs = append(obs, res.Observation)
		}
		return rewards, obs
	}

	// WHEN the same sequence runs on two environments and again after Reset
	e1 := newEnv(t, cfg)
	r1, o1 := run(e1)
	r2, o2 := run(newEnv(t, cfg))
	r3, o3 := run(e1)

	// THEN observations and rewards are bit-identical
	assert.Equal(t, r1, r2)
	assert.Equal(t, o1, o2)
	assert.Equal(t, r1, r3)
	assert.Equal(t, o1, o3)
}

func TestEnv_SeedChangesEpisodeIdentity(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, err := e.Reset()
	require.NoError(t, err)
	first := e.EpisodeID()

	assert.Equal(t, []int64{7}, e.Seed(7))
	_, err = e.Reset()
	require.NoError(t, err)

	assert.NotEqual(t, first, e.EpisodeID())
	assert.Equal(t, episodeID(7, 2), e.EpisodeID())
	assert.Equal(t, episodeID(42, 1), first)
}

func TestEnv_InvalidActions(t *testing.T) {
	tests := []struct {
		name   string
		action []float64
	}{
		{"node out of range", []float64{2}},
		{"negative", []float64{-1}},
		{"fractional", []float64{0.5}},
		{"empty", nil},
		{"too long", []float64{0, 0}},
		{"NaN", []float64{math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, DefaultConfig())
			_, err := e.Reset()
			require.NoError(t, err)

			_, err = e.Step(tt.action)

			var ae *sim.InvalidActionError
			require.ErrorAs(t, err, &ae)
			assert.ErrorIs(t, err, sim.ErrInvalidAction)
			assert.Equal(t, "Discrete(2)", ae.Space)
			assert.Equal(t, sim.Time(0), e.Now(), "invalid action must not advance time")
		})
	}
}

func TestEnv_StepAfterDoneAndBeforeReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Termination = TerminationSpec{Policy: TerminateMaxSteps, MaxSteps: 2}
	e := newEnv(t, cfg)

	_, err := e.Step([]float64{0})
	assert.ErrorIs(t, err, ErrNotReset)

	_, err = e.Reset()
	require.NoError(t, err)
	res, err := e.Step([]float64{0})
	require.NoError(t, err)
	assert.False(t, res.Done)
	res, err = e.Step([]float64{0})
	require.NoError(t, err)
	assert.True(t, res.Done)

	_, err = e.Step([]float64{0})
	assert.ErrorIs(t, err, ErrEpisodeDone)

	_, err = e.Reset()
	require.NoError(t, err)
	_, err = e.Step([]float64{0})
	assert.NoError(t, err)
}

func TestEnv_InfoKeys(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, err := e.Reset()
	require.NoError(t, err)
	_, err = e.Step([]float64{0})
	require.NoError(t, err)

	res, err := e.Step([]float64{0})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Info["episode"])
	assert.Equal(t, e.EpisodeID().String(), res.Info["episode_id"])
	assert.Equal(t, 2, res.Info["step"])
	assert.Equal(t, int64(2002), res.Info["time_us"])
	assert.Equal(t, "assignment_over", res.Info["decision"])
	assert.Equal(t, int64(1000), res.Info["duration_us"])
	assert.Equal(t, 1, res.Info["delivered"])
	assert.Equal(t, 0, res.Info["failed"])
	assert.Equal(t, 0, res.Info["dropped"])
}

func TestEnv_AlohaCollisionsArePenalised(t *testing.T) {
	// GIVEN aloha nodes whose periodic packets always start together
	cfg := DefaultConfig()
	cfg.MAC = "aloha"
	cfg.RewardFn = RewardCollisionPenalty
	e := newEnv(t, cfg)
	_, err := e.Reset()
	require.NoError(t, err)

	// WHEN stepping
	rewards, obs := runActions(t, e, []float64{0}, 5)

	// THEN every frame collides
	assert.Equal(t, 0.0, rewards[0])
	for i, r := range rewards[1:] {
		assert.Equal(t, -2.0, r, "step %d", i+2)
	}
	assert.Equal(t, 0.0, obs[4][2], "no deliveries at node 0")
	assert.Equal(t, 1.0, obs[4][4], "one failure at node 0")
}

func TestEnv_PowerLevelsExtendActionSpace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TxPowerLevelsDBm = []float64{0, 10, 20}
	tr := trace.NewEpisodeTrace(trace.TraceConfig{Level: trace.TraceLevelTransmissions})
	e := newEnv(t, cfg, WithTrace(tr))

	assert.Equal(t, MultiDiscrete{Nvec: []int{2, 3}}, e.ActionSpace())
	_, err := e.Reset()
	require.NoError(t, err)

	_, err = e.Step([]float64{1, 2})
	require.NoError(t, err)
	_, err = e.Step([]float64{1, 2})
	require.NoError(t, err)
	_, err = e.Step([]float64{0})
	assert.ErrorIs(t, err, sim.ErrInvalidAction)

	require.Len(t, tr.Transmissions, 1)
	assert.Equal(t, "node-1", tr.Transmissions[0].Sender)
	assert.Equal(t, 20.0, tr.Transmissions[0].PowerDBm)
	assert.Equal(t, uint64(1), tr.Transmissions[0].ID)
	require.Len(t, tr.Steps, 2)
	assert.Equal(t, []int{1, 2}, tr.Steps[1].Action)
}

func TestEnv_CustomRewardAndTermination(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RewardFn = "not-a-reward"
	cfg.Reward = RewardFunc(func(st *StepStats) float64 { return float64(st.Step) * 10 })
	e := newEnv(t, cfg, WithTermination(TerminationFunc(func(st *StepStats) bool { return st.Now > 3000 })))
	_, err := e.Reset()
	require.NoError(t, err)

	rewards, _ := runActions(t, e, []float64{1}, 3)
	_, err = e.Step([]float64{1})

	assert.Equal(t, []float64{10, 20, 30}, rewards)
	assert.ErrorIs(t, err, ErrEpisodeDone)
}

func TestEnv_TerminationPolicies(t *testing.T) {
	tests := []struct {
		name  string
		spec  TerminationSpec
		steps int
	}{
		{"horizon at 5 ms", TerminationSpec{Policy: TerminateHorizon, Horizon: 0.005}, 5},
		{"three packets decoded", TerminationSpec{Policy: TerminateDeliveredTarget, DeliveredTarget: 3}, 4},
		{"max steps", TerminationSpec{Policy: TerminateMaxSteps, MaxSteps: 6}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Termination = tt.spec
			e := newEnv(t, cfg)
			_, err := e.Reset()
			require.NoError(t, err)

			steps := 0
			for done := false; !done && steps < 100; steps++ {
				res, err := e.Step([]float64{0})
				require.NoError(t, err)
				done = res.Done
			}

			assert.Equal(t, tt.steps, steps)
		})
	}
}

func TestEnv_CollectorObservesSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := telemetry.NewCollector(reg)
	require.NoError(t, err)
	e := newEnv(t, DefaultConfig(), WithCollector(c))
	_, err = e.Reset()
	require.NoError(t, err)

	runActions(t, e, []float64{0}, 4)

	assert.Equal(t, 4.0, promtestutil.ToFloat64(c.Steps))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.Episodes))
	assert.Equal(t, 3.0, promtestutil.ToFloat64(c.Transmissions.WithLabelValues(telemetry.OutcomeDelivered)))
	assert.Equal(t, 4.0, promtestutil.ToFloat64(c.QueueDepth.WithLabelValues("node-1")))
}

func TestEnv_CancelledContext(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ResetContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = e.Reset()
	require.NoError(t, err)
	_, err = e.StepContext(ctx, []float64{0})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, sim.Time(0), e.Now())
}

func TestEnv_GoldenEpisodes(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	require.NotEmpty(t, dataset.Episodes)

	for _, golden := range dataset.Episodes {
		t.Run(golden.Name, func(t *testing.T) {
			// GIVEN the golden config over the default cell
			cfg := DefaultConfig()
			require.NoError(t, golden.Config.Decode(&cfg))
			e := newEnv(t, cfg)
			_, err := e.Reset()
			require.NoError(t, err)

			// WHEN the golden action is repeated
			rewards, _ := runActions(t, e, golden.Action, golden.Steps)

			// THEN rewards and the clock match the reference run
			require.Len(t, rewards, len(golden.Rewards))
			for i, want := range golden.Rewards {
				testutil.AssertFloat64Equal(t, fmt.Sprintf("reward[%d]", i), want, rewards[i], 1e-9)
			}
			assert.Equal(t, sim.Time(golden.FinalTimeUs), e.Now())
		})
	}
}

func TestEnv_DurationLevelsSetAssignmentLength(t *testing.T) {
	// GIVEN power and duration choices on top of the node index
	cfg := DefaultConfig()
	cfg.TxPowerLevelsDBm = []float64{0, 10, 20}
	cfg.DurationLevels = []float64{0.0005, 0.002}
	e := newEnv(t, cfg)
	assert.Equal(t, MultiDiscrete{Nvec: []int{2, 3, 2}}, e.ActionSpace())
	_, err := e.Reset()
	require.NoError(t, err)

	// WHEN node 0 is granted 2 ms and then 0.5 ms
	long, err := e.Step([]float64{0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, sim.Time(2001), e.Now())
	short, err := e.Step([]float64{0, 2, 0})
	require.NoError(t, err)

	// THEN each step lasts its chosen grant plus the guard tick
	assert.Equal(t, sim.Time(2001+501), e.Now())
	assert.Equal(t, int64(2000), long.Info["duration_us"])
	assert.Equal(t, int64(500), short.Info["duration_us"])
	assert.Equal(t, 1.0, long.Reward)
	assert.Equal(t, 1.0, short.Reward)

	_, err = e.Step([]float64{0, 0, 2})
	assert.ErrorIs(t, err, sim.ErrInvalidAction)
}

type faultyEntity struct{ sim.BaseEntity }

func (f *faultyEntity) OnEvent(*sim.Simulator, *sim.Event) error {
	return errors.New("sensor firmware crashed")
}

func TestEnv_EntityFaultAbortsEpisode(t *testing.T) {
	// GIVEN an entity in the cell that fails 500 µs into the first step
	e := newEnv(t, DefaultConfig())
	_, err := e.Reset()
	require.NoError(t, err)
	f := &faultyEntity{BaseEntity: sim.NewBaseEntity(e.s, "faulty")}
	require.NoError(t, e.s.Register(f))
	_, err = e.s.Schedule(f.ID(), 500, "tick", nil)
	require.NoError(t, err)

	// WHEN stepping
	_, err = e.Step([]float64{0})

	// THEN the step fails with the entity and the tick it failed at
	var se *sim.SimulationError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, sim.ErrSimulation)
	assert.Equal(t, f.ID(), se.EntityID)
	assert.Equal(t, sim.Time(500), se.Time)
	assert.Equal(t, "tick", se.EventKind)

	// AND the episode is over until the next Reset
	_, err = e.Step([]float64{0})
	assert.ErrorIs(t, err, ErrEpisodeDone)
	_, err = e.Reset()
	require.NoError(t, err)
	_, err = e.Step([]float64{0})
	assert.NoError(t, err)
}
