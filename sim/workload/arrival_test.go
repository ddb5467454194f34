package workload

import (
	"math"
	"math/rand"
	"testing"
)

func TestPoissonSampler_MeanIAT_MatchesRate(t *testing.T) {
	// GIVEN a Poisson sampler at 10 packets/s
	rng := rand.New(rand.NewSource(42))
	sampler, err := NewArrivalSampler(ArrivalSpec{Process: "poisson"}, 10.0)
	if err != nil {
		t.Fatal(err)
	}

	// WHEN 10000 IATs are sampled
	n := 10000
	sum := int64(0)
	for i := 0; i < n; i++ {
		sum += sampler.SampleIAT(rng)
	}
	meanIAT := float64(sum) / float64(n)

	// THEN mean IAT ≈ 1/rate = 100000 µs (within 5%)
	expected := 1e6 / 10.0
	if math.Abs(meanIAT-expected)/expected > 0.05 {
		t.Errorf("mean IAT = %.0f µs, want ≈ %.0f µs (within 5%%)", meanIAT, expected)
	}
}

func TestConstantSampler_FixedPeriod(t *testing.T) {
	// GIVEN a constant process at 1000 packets/s
	sampler, err := NewArrivalSampler(ArrivalSpec{Process: "constant"}, 1000)
	if err != nil {
		t.Fatal(err)
	}

	// THEN every IAT is exactly one millisecond
	for i := 0; i < 5; i++ {
		if got := sampler.SampleIAT(nil); got != 1000 {
			t.Errorf("IAT = %d, want 1000", got)
		}
	}
}

func TestGammaSampler_HighCV_ProducesBurstierArrivals(t *testing.T) {
	// GIVEN a Gamma sampler with CV=3.5 and a Poisson sampler at same rate
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	cv := 3.5
	gamma, err := NewArrivalSampler(ArrivalSpec{Process: "gamma", CV: &cv}, 10)
	if err != nil {
		t.Fatal(err)
	}
	poisson, err := NewArrivalSampler(ArrivalSpec{Process: "poisson"}, 10)
	if err != nil {
		t.Fatal(err)
	}

	// WHEN 10000 IATs sampled from each
	n := 10000
	gammaIATs := make([]float64, n)
	poissonIATs := make([]float64, n)
	for i := 0; i < n; i++ {
		gammaIATs[i] = float64(gamma.SampleIAT(rng1))
		poissonIATs[i] = float64(poisson.SampleIAT(rng2))
	}

	// THEN Gamma CV > 2.0 and Poisson CV ≈ 1.0
	if c := coefficientOfVariation(gammaIATs); c < 2.0 {
		t.Errorf("gamma CV = %.2f, want > 2.0", c)
	}
	if c := coefficientOfVariation(poissonIATs); c < 0.8 || c > 1.2 {
		t.Errorf("poisson CV = %.2f, want ≈ 1.0", c)
	}
}

func TestWeibullSampler_MeanMatchesRate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cv := 0.5
	sampler, err := NewArrivalSampler(ArrivalSpec{Process: "weibull", CV: &cv}, 100)
	if err != nil {
		t.Fatal(err)
	}
	n := 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(sampler.SampleIAT(rng))
	}
	mean := sum / float64(n)
	if math.Abs(mean-10000)/10000 > 0.05 {
		t.Errorf("weibull mean IAT = %.0f, want ≈ 10000", mean)
	}
}

func TestNewArrivalSampler_RejectsBadInput(t *testing.T) {
	if _, err := NewArrivalSampler(ArrivalSpec{Process: "poisson"}, 0); err == nil {
		t.Error("expected error for zero rate")
	}
	if _, err := NewArrivalSampler(ArrivalSpec{Process: "bursty"}, 1); err == nil {
		t.Error("expected error for unknown process")
	}
}

func coefficientOfVariation(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	variance := 0.0
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance) / mean
}
