package env

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/channel"
	"github.com/wipesim/wipesim/sim/network"
	"github.com/wipesim/wipesim/sim/workload"
)

// TerminationSpec selects when an episode ends.
type TerminationSpec struct {
	Policy string `yaml:"policy"`
	// MaxSteps bounds max-steps episodes.
	MaxSteps int `yaml:"max_steps,omitempty"`
	// Horizon bounds horizon episodes, in seconds of simulated time.
	Horizon float64 `yaml:"horizon,omitempty"`
	// DeliveredTarget ends delivered-target episodes once the gateway has
	// decoded that many packets.
	DeliveredTarget int `yaml:"delivered_target,omitempty"`
}

// Config describes one environment. Durations are in seconds and rates in
// Hz or bit/s unless a field says otherwise.
type Config struct {
	NumNodes         int     `yaml:"num_nodes"`
	ChannelBandwidth float64 `yaml:"channel_bandwidth"`
	Frequency        float64 `yaml:"frequency"`
	Bitrate          float64 `yaml:"bitrate"`
	StepQuantum      float64 `yaml:"step_quantum"`
	RandomSeed       int64   `yaml:"random_seed"`
	RewardFn         string  `yaml:"reward_fn"`

	Termination TerminationSpec `yaml:"termination"`

	MAC              string  `yaml:"mac"`
	AlohaPersistence float64 `yaml:"aloha_persistence"`
	AlohaBackoff     float64 `yaml:"aloha_backoff"`
	QueueCapacity    int     `yaml:"queue_capacity"`
	HeaderBits       int     `yaml:"header_bits"`
	AnnounceAirtime  float64 `yaml:"announce_airtime"`

	Interference     channel.InterferenceSpec `yaml:"interference"`
	Attenuation      channel.AttenuationSpec  `yaml:"attenuation"`
	TxPowerDBm       float64                  `yaml:"tx_power_dbm"`
	TxPowerLevelsDBm []float64                `yaml:"tx_power_levels_dbm"`
	// DurationLevels, when set, lets the agent pick the assignment length
	// from these values in seconds instead of always using StepQuantum.
	DurationLevels []float64 `yaml:"duration_levels"`

	// Positions holds one [x, y] pair in metres per node. When empty, nodes
	// sit on a circle of radius 1 around the controller at the origin.
	Positions [][2]float64 `yaml:"positions"`
	// Traffic holds one spec per node, or a single spec shared by all.
	Traffic []workload.TrafficSpec `yaml:"traffic"`

	// Reward and Terminate override RewardFn and Termination when set.
	Reward    RewardPolicy      `yaml:"-"`
	Terminate TerminationPolicy `yaml:"-"`
}

// DefaultConfig returns a two-node scheduled cell at 1 Mbit/s with 1 ms
// steps and a throughput reward.
func DefaultConfig() Config {
	return Config{
		NumNodes:         2,
		ChannelBandwidth: channel.DefaultBandwidthHz,
		Frequency:        channel.DefaultFrequencyHz,
		Bitrate:          channel.DefaultBitrateBps,
		StepQuantum:      0.001,
		RandomSeed:       42,
		RewardFn:         RewardThroughput,
		Termination:      TerminationSpec{Policy: TerminateMaxSteps, MaxSteps: 100},
		MAC:              string(network.MACScheduled),
		QueueCapacity:    64,
		TxPowerDBm:       0,
		Traffic:          []workload.TrafficSpec{workload.DefaultTraffic()},
	}
}

// LoadConfig reads a YAML config over DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, &sim.ConfigurationError{Field: path, Reason: err.Error()}
	}
	return cfg, nil
}

// Validate checks every field and returns a *sim.ConfigurationError for the
// first bad one.
func (c *Config) Validate() error {
	if c.NumNodes <= 0 {
		return sim.ConfigErrorf("num_nodes", "must be positive, got %d", c.NumNodes)
	}
	if err := positive("channel_bandwidth", c.ChannelBandwidth); err != nil {
		return err
	}
	if err := positive("frequency", c.Frequency); err != nil {
		return err
	}
	if err := positive("bitrate", c.Bitrate); err != nil {
		return err
	}
	if err := positive("step_quantum", c.StepQuantum); err != nil {
		return err
	}
	if sim.FromSeconds(c.StepQuantum) < 1 {
		return sim.ConfigErrorf("step_quantum", "must be at least one microsecond, got %v", c.StepQuantum)
	}
	if c.Reward == nil && !validRewards[c.RewardFn] {
		return sim.ConfigErrorf("reward_fn", "unknown reward %q; valid: %s", c.RewardFn, rewardNames())
	}
	if c.Terminate == nil {
		if err := c.Termination.validate(); err != nil {
			return err
		}
	}
	if !network.ValidMACModes[network.MACMode(c.MAC)] {
		return sim.ConfigErrorf("mac", "unknown mode %q; valid: scheduled, aloha", c.MAC)
	}
	if c.AlohaPersistence < 0 || c.AlohaPersistence > 1 || math.IsNaN(c.AlohaPersistence) {
		return sim.ConfigErrorf("aloha_persistence", "must be in [0, 1], got %v", c.AlohaPersistence)
	}
	if c.AlohaBackoff < 0 || math.IsNaN(c.AlohaBackoff) {
		return sim.ConfigErrorf("aloha_backoff", "must be non-negative, got %v", c.AlohaBackoff)
	}
	if c.QueueCapacity < 0 {
		return sim.ConfigErrorf("queue_capacity", "must be non-negative, got %d", c.QueueCapacity)
	}
	if c.HeaderBits < 0 {
		return sim.ConfigErrorf("header_bits", "must be non-negative, got %d", c.HeaderBits)
	}
	if c.AnnounceAirtime < 0 || math.IsNaN(c.AnnounceAirtime) {
		return sim.ConfigErrorf("announce_airtime", "must be non-negative, got %v", c.AnnounceAirtime)
	}
	if _, err := channel.NewInterferencePolicy(c.Interference); err != nil {
		return sim.ConfigErrorf("interference", "%v", err)
	}
	if _, err := channel.NewAttenuationModel(c.Attenuation, c.Frequency); err != nil {
		return sim.ConfigErrorf("attenuation", "%v", err)
	}
	if math.IsNaN(c.TxPowerDBm) || math.IsInf(c.TxPowerDBm, 0) {
		return sim.ConfigErrorf("tx_power_dbm", "must be finite, got %v", c.TxPowerDBm)
	}
	for i, p := range c.TxPowerLevelsDBm {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return sim.ConfigErrorf(fmt.Sprintf("tx_power_levels_dbm[%d]", i), "must be finite, got %v", p)
		}
	}
	for i, d := range c.DurationLevels {
		field := fmt.Sprintf("duration_levels[%d]", i)
		if err := positive(field, d); err != nil {
			return err
		}
		if sim.FromSeconds(d) < 1 {
			return sim.ConfigErrorf(field, "must be at least one microsecond, got %v", d)
		}
	}
	if len(c.Positions) != 0 && len(c.Positions) != c.NumNodes {
		return sim.ConfigErrorf("positions", "need %d entries, got %d", c.NumNodes, len(c.Positions))
	}
	if len(c.Traffic) != 0 && len(c.Traffic) != 1 && len(c.Traffic) != c.NumNodes {
		return sim.ConfigErrorf("traffic", "need 1 or %d entries, got %d", c.NumNodes, len(c.Traffic))
	}
	for i := range c.Traffic {
		if err := c.Traffic[i].Validate(fmt.Sprintf("traffic[%d]", i)); err != nil {
			return &sim.ConfigurationError{Field: "traffic", Reason: err.Error()}
		}
	}
	return nil
}

func (t TerminationSpec) validate() error {
	switch t.Policy {
	case TerminateMaxSteps:
		if t.MaxSteps <= 0 {
			return sim.ConfigErrorf("termination.max_steps", "must be positive, got %d", t.MaxSteps)
		}
	case TerminateHorizon:
		if err := positive("termination.horizon", t.Horizon); err != nil {
			return err
		}
	case TerminateDeliveredTarget:
		if t.DeliveredTarget <= 0 {
			return sim.ConfigErrorf("termination.delivered_target", "must be positive, got %d", t.DeliveredTarget)
		}
	case TerminateNever:
	default:
		return sim.ConfigErrorf("termination.policy", "unknown policy %q; valid: max-steps, horizon, delivered-target, never", t.Policy)
	}
	return nil
}

// trafficFor returns the traffic spec of node i, or false when the node
// generates nothing.
func (c *Config) trafficFor(i int) (workload.TrafficSpec, bool) {
	switch len(c.Traffic) {
	case 0:
		return workload.TrafficSpec{}, false
	case 1:
		return c.Traffic[0], true
	default:
		return c.Traffic[i], true
	}
}

func positive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return sim.ConfigErrorf(field, "must be a positive finite number, got %v", v)
	}
	return nil
}
