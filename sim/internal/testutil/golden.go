// Package testutil provides shared test infrastructure for the wipesim
// packages: golden episode fixtures and assertion helpers.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gopkg.in/yaml.v3"
)

// GoldenDataset represents the structure of testdata/golden_episodes.yaml.
type GoldenDataset struct {
	Episodes []GoldenEpisode `yaml:"episodes"`
}

// GoldenEpisode is one reference run: a config overlay on the default
// environment, the action repeated every step, and what the run must yield.
type GoldenEpisode struct {
	Name string `yaml:"name"`
	// Config is decoded over the default environment config.
	Config      yaml.Node `yaml:"config"`
	Action      []float64 `yaml:"action"`
	Steps       int       `yaml:"steps"`
	Rewards     []float64 `yaml:"rewards"`
	FinalTimeUs int64     `yaml:"final_time_us"`
}

// LoadGoldenDataset loads the golden episodes from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "golden_episodes.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := yaml.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
