package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wipesim/wipesim/sim"
)

func TestBuiltinRewards(t *testing.T) {
	st := &StepStats{
		Elapsed:       1000,
		Busy:          1500,
		Delivered:     []float64{3, 1},
		Failed:        []float64{0, 4},
		Backlog:       []float64{2, 6},
		QueueCapacity: 8,
	}
	tests := []struct {
		name string
		want float64
	}{
		{RewardThroughput, 4},
		{RewardDeliveryRatio, 0.5},
		{RewardCollisionPenalty, 0},
		{RewardBacklog, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewRewardPolicy(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, p.Name())
			assert.Equal(t, tt.want, p.Reward(st))
		})
	}
	assert.Equal(t, 1.0, st.Utilization(), "utilization is capped")
}

func TestDeliveryRatio_NoOutcomes(t *testing.T) {
	st := &StepStats{Delivered: []float64{0}, Failed: []float64{0}}
	assert.Equal(t, 0.0, deliveryRatio(st))
}

func TestBacklog_UnboundedQueues(t *testing.T) {
	st := &StepStats{Backlog: []float64{2, 5}}
	assert.Equal(t, -7.0, backlog(st))
}

func TestCounterDifference_RewardsShrinkingSpread(t *testing.T) {
	// GIVEN the counter-difference reward
	p, err := NewRewardPolicy(RewardCounterDifference)
	require.NoError(t, err)

	// WHEN the spread between the newest decoded counters grows then shrinks
	steps := [][]int64{{0, 0}, {4, 0}, {4, 3}, {9, 3}}
	var got []float64
	for _, seq := range steps {
		got = append(got, p.Reward(&StepStats{LastSeq: seq}))
	}

	// THEN the reward is the change in spread
	assert.Equal(t, []float64{0, -4, 3, -5}, got)

	// AND Reset forgets the previous spread
	p.Reset()
	assert.Equal(t, -2.0, p.Reward(&StepStats{LastSeq: []int64{2, 0}}))
}

func TestNewRewardPolicy_Unknown(t *testing.T) {
	_, err := NewRewardPolicy("latency")
	assert.ErrorIs(t, err, sim.ErrConfiguration)
}

func TestTerminationPolicies_Predicates(t *testing.T) {
	horizon, err := NewTerminationPolicy(TerminationSpec{Policy: TerminateHorizon, Horizon: 0.5})
	require.NoError(t, err)
	assert.False(t, horizon.Done(&StepStats{Now: 499_999}))
	assert.True(t, horizon.Done(&StepStats{Now: 500_000}))

	never, err := NewTerminationPolicy(TerminationSpec{Policy: TerminateNever})
	require.NoError(t, err)
	assert.False(t, never.Done(&StepStats{Step: 1 << 30}))
	assert.Equal(t, TerminateNever, never.Name())

	_, err = NewTerminationPolicy(TerminationSpec{Policy: "sometimes"})
	assert.ErrorIs(t, err, sim.ErrConfiguration)
}
