package workload

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSizeSampler_Types(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tests := []struct {
		name     string
		spec     DistSpec
		min, max int
	}{
		{"constant", DistSpec{Type: "constant", Params: map[string]float64{"value": 64}}, 64, 64},
		{"uniform", DistSpec{Type: "uniform", Params: map[string]float64{"min": 10, "max": 20}}, 10, 20},
		{"gaussian", DistSpec{Type: "gaussian", Params: map[string]float64{"mean": 100, "std_dev": 30, "min": 50, "max": 150}}, 50, 150},
		{"exponential", DistSpec{Type: "exponential", Params: map[string]float64{"mean": 40}}, 1, 1 << 30},
		{"empirical", DistSpec{Type: "empirical", Weights: map[int]float64{8: 1, 1500: 3}}, 8, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSizeSampler(tt.spec)
			require.NoError(t, err)
			for i := 0; i < 1000; i++ {
				v := s.Sample(rng)
				if v < tt.min || v > tt.max {
					t.Fatalf("sample %d outside [%d, %d]", v, tt.min, tt.max)
				}
			}
		})
	}
}

func TestEmpiricalSize_FollowsWeights(t *testing.T) {
	// GIVEN sizes 8 and 1500 weighted 1:3
	rng := rand.New(rand.NewSource(1))
	s := NewEmpiricalSize(map[int]float64{8: 1, 1500: 3, 99: 0})

	// WHEN sampling many times
	large := 0
	n := 10000
	for i := 0; i < n; i++ {
		if s.Sample(rng) == 1500 {
			large++
		}
	}

	// THEN about three quarters are large and the zero-weight size never appears
	assert.InDelta(t, 0.75, float64(large)/float64(n), 0.02)
	assert.Equal(t, []int{8, 1500}, s.values)
}

func TestNewSizeSampler_MissingParams(t *testing.T) {
	_, err := NewSizeSampler(DistSpec{Type: "gaussian", Params: map[string]float64{"mean": 1}})
	assert.Error(t, err)
	_, err = NewSizeSampler(DistSpec{Type: "empirical"})
	assert.Error(t, err)
	_, err = NewSizeSampler(DistSpec{Type: "zipf"})
	assert.Error(t, err)
}
