package workload

import (
	"fmt"
	"math"
)

// TrafficSpec configures the packets offered to one node.
type TrafficSpec struct {
	Arrival ArrivalSpec `yaml:"arrival"`
	// Rate is the mean packet rate in packets per second.
	Rate float64  `yaml:"rate"`
	Size DistSpec `yaml:"size"`
	// Start delays the first packet, in seconds.
	Start float64 `yaml:"start,omitempty"`
	// MaxPackets stops the source after this many arrivals. 0 = unlimited.
	MaxPackets int64 `yaml:"max_packets,omitempty"`
	// Multiplicity sends every arrival as this many copies carrying the
	// same sequence number. 0 means 1.
	Multiplicity int `yaml:"multiplicity,omitempty"`
}

// ArrivalSpec configures the inter-arrival time process.
type ArrivalSpec struct {
	Process string   `yaml:"process"`
	CV      *float64 `yaml:"cv,omitempty"`
}

// DistSpec parameterizes a packet size distribution in bytes.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
	// Weights is the size → weight table of the empirical type.
	Weights map[int]float64 `yaml:"weights,omitempty"`
}

// Valid value registries.
var (
	validArrivalProcesses = map[string]bool{
		"": true, "poisson": true, "gamma": true, "weibull": true, "constant": true,
	}
	validDistTypes = map[string]bool{
		"": true, "constant": true, "uniform": true, "gaussian": true, "exponential": true, "empirical": true,
	}
)

// DefaultTraffic is a sensor reporting a small counter packet every millisecond.
func DefaultTraffic() TrafficSpec {
	return TrafficSpec{
		Arrival: ArrivalSpec{Process: "constant"},
		Rate:    1000,
		Size:    DistSpec{Type: "constant", Params: map[string]float64{"value": 8}},
	}
}

// Validate checks that every traffic field is valid. prefix names the
// traffic stream in error messages.
func (t *TrafficSpec) Validate(prefix string) error {
	if !validArrivalProcesses[t.Arrival.Process] {
		return fmt.Errorf("%s: unknown arrival process %q; valid: poisson, gamma, weibull, constant", prefix, t.Arrival.Process)
	}
	if t.Arrival.Process == "weibull" && t.Arrival.CV != nil {
		cv := *t.Arrival.CV
		if cv < 0.01 || cv > 10.4 {
			return fmt.Errorf("%s: weibull CV must be in [0.01, 10.4], got %f", prefix, cv)
		}
	}
	if t.Arrival.CV != nil {
		if err := validateFinitePositive(prefix+".cv", *t.Arrival.CV); err != nil {
			return err
		}
	}
	if err := validateFinitePositive(prefix+".rate", t.Rate); err != nil {
		return err
	}
	if t.Start < 0 || math.IsNaN(t.Start) {
		return fmt.Errorf("%s.start must be non-negative, got %f", prefix, t.Start)
	}
	if t.MaxPackets < 0 {
		return fmt.Errorf("%s.max_packets must be non-negative, got %d", prefix, t.MaxPackets)
	}
	if t.Multiplicity < 0 {
		return fmt.Errorf("%s.multiplicity must be non-negative, got %d", prefix, t.Multiplicity)
	}
	if !validDistTypes[t.Size.Type] {
		return fmt.Errorf("%s.size: unknown distribution type %q; valid: constant, uniform, gaussian, exponential, empirical", prefix, t.Size.Type)
	}
	for name, val := range t.Size.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.size.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	if _, err := NewSizeSampler(t.Size); err != nil {
		return fmt.Errorf("%s.size: %w", prefix, err)
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
