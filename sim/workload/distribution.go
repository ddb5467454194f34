package workload

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SizeSampler generates packet sizes in bytes.
type SizeSampler interface {
	// Sample returns a positive size (>= 1).
	Sample(rng *rand.Rand) int
}

// FixedSize always returns the same size.
type FixedSize struct {
	value int
}

func (s *FixedSize) Sample(_ *rand.Rand) int {
	if s.value < 1 {
		return 1
	}
	return s.value
}

// UniformSize draws uniformly from [min, max].
type UniformSize struct {
	min, max int
}

func (s *UniformSize) Sample(rng *rand.Rand) int {
	if s.max <= s.min {
		return clampSize(float64(s.min))
	}
	return clampSize(float64(s.min + rng.Intn(s.max-s.min+1)))
}

// GaussianSize produces clamped Gaussian sizes.
type GaussianSize struct {
	mean, stdDev float64
	min, max     int
}

func (s *GaussianSize) Sample(rng *rand.Rand) int {
	if s.min == s.max {
		return clampSize(float64(s.min))
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	return clampSize(math.Min(float64(s.max), math.Max(float64(s.min), val)))
}

// ExponentialSize produces exponentially-distributed sizes.
type ExponentialSize struct {
	mean float64
}

func (s *ExponentialSize) Sample(rng *rand.Rand) int {
	return clampSize(rng.ExpFloat64() * s.mean)
}

// EmpiricalSize samples from a discrete PMF by inverse CDF.
type EmpiricalSize struct {
	values []int
	cdf    []float64
}

// NewEmpiricalSize builds a sampler from size → weight. Weights are normalized.
func NewEmpiricalSize(pmf map[int]float64) *EmpiricalSize {
	keys := make([]int, 0, len(pmf))
	for k := range pmf {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	total := 0.0
	for _, k := range keys {
		if pmf[k] > 0 {
			total += pmf[k]
		}
	}
	values := make([]int, 0, len(keys))
	cdf := make([]float64, 0, len(keys))
	cumulative := 0.0
	for _, k := range keys {
		p := pmf[k]
		if p <= 0 {
			continue
		}
		cumulative += p / total
		values = append(values, k)
		cdf = append(cdf, cumulative)
	}
	if len(cdf) > 0 {
		cdf[len(cdf)-1] = 1.0
	}
	return &EmpiricalSize{values: values, cdf: cdf}
}

func (s *EmpiricalSize) Sample(rng *rand.Rand) int {
	if len(s.values) == 0 {
		return 1
	}
	idx := sort.SearchFloat64s(s.cdf, rng.Float64())
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	}
	return s.values[idx]
}

func clampSize(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}

func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewSizeSampler creates a SizeSampler from a DistSpec.
func NewSizeSampler(spec DistSpec) (SizeSampler, error) {
	switch spec.Type {
	case "constant", "":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		return &FixedSize{value: int(spec.Params["value"])}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		return &UniformSize{min: int(spec.Params["min"]), max: int(spec.Params["max"])}, nil

	case "gaussian":
		if err := requireParam(spec.Params, "mean", "std_dev", "min", "max"); err != nil {
			return nil, err
		}
		return &GaussianSize{
			mean:   spec.Params["mean"],
			stdDev: spec.Params["std_dev"],
			min:    int(spec.Params["min"]),
			max:    int(spec.Params["max"]),
		}, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean"); err != nil {
			return nil, err
		}
		return &ExponentialSize{mean: spec.Params["mean"]}, nil

	case "empirical":
		if len(spec.Weights) == 0 {
			return nil, fmt.Errorf("empirical distribution has no weights")
		}
		return NewEmpiricalSize(spec.Weights), nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
