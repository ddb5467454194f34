package env

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Space declares the shape and bounds of actions or observations.
// Values are always flat float64 vectors; discrete spaces hold integral
// values.
type Space interface {
	Contains(x []float64) bool
	Shape() []int
	Sample(rng *rand.Rand) []float64
	String() string
}

// Discrete is the set {0, ..., N-1} as a one-element vector.
type Discrete struct {
	N int
}

func (d Discrete) Contains(x []float64) bool {
	return len(x) == 1 && inRange(x[0], d.N)
}

func (d Discrete) Shape() []int { return []int{1} }

func (d Discrete) Sample(rng *rand.Rand) []float64 {
	return []float64{float64(rng.Intn(d.N))}
}

func (d Discrete) String() string { return fmt.Sprintf("Discrete(%d)", d.N) }

// MultiDiscrete is a product of discrete spaces; element i ranges over
// {0, ..., Nvec[i]-1}.
type MultiDiscrete struct {
	Nvec []int
}

func (m MultiDiscrete) Contains(x []float64) bool {
	if len(x) != len(m.Nvec) {
		return false
	}
	for i, v := range x {
		if !inRange(v, m.Nvec[i]) {
			return false
		}
	}
	return true
}

func (m MultiDiscrete) Shape() []int { return []int{len(m.Nvec)} }

func (m MultiDiscrete) Sample(rng *rand.Rand) []float64 {
	out := make([]float64, len(m.Nvec))
	for i, n := range m.Nvec {
		out[i] = float64(rng.Intn(n))
	}
	return out
}

func (m MultiDiscrete) String() string { return fmt.Sprintf("MultiDiscrete(%v)", m.Nvec) }

// Box is a vector bounded element-wise by Low and High, both inclusive.
// Bounds may be infinite.
type Box struct {
	Low  []float64
	High []float64
}

// NewBox builds a box of n elements sharing the same bounds.
func NewBox(n int, low, high float64) Box {
	b := Box{Low: make([]float64, n), High: make([]float64, n)}
	floats.AddConst(low, b.Low)
	floats.AddConst(high, b.High)
	return b
}

func (b Box) Contains(x []float64) bool {
	if len(x) != len(b.Low) || floats.HasNaN(x) {
		return false
	}
	for i, v := range x {
		if v < b.Low[i] || v > b.High[i] {
			return false
		}
	}
	return true
}

func (b Box) Shape() []int { return []int{len(b.Low)} }

// Sample draws uniformly inside finite bounds and exponentially away from
// a single finite bound.
func (b Box) Sample(rng *rand.Rand) []float64 {
	out := make([]float64, len(b.Low))
	for i := range out {
		lo, hi := b.Low[i], b.High[i]
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			out[i] = lo + rng.Float64()*(hi-lo)
		case !math.IsInf(lo, 0):
			out[i] = lo + rng.ExpFloat64()
		case !math.IsInf(hi, 0):
			out[i] = hi - rng.ExpFloat64()
		default:
			out[i] = rng.NormFloat64()
		}
	}
	return out
}

func (b Box) String() string {
	if len(b.Low) == 0 {
		return "Box(0)"
	}
	return fmt.Sprintf("Box(%d, low=[%g..%g], high=[%g..%g])", len(b.Low),
		floats.Min(b.Low), floats.Max(b.Low), floats.Min(b.High), floats.Max(b.High))
}

func inRange(v float64, n int) bool {
	return v == math.Trunc(v) && v >= 0 && v < float64(n)
}
