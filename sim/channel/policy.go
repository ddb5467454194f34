package channel

import (
	"fmt"
	"math"
)

// InterferencePolicy decides whether a transmission is corrupted. rx is the
// receiving radio, or nil for the medium-level verdict used when nobody in
// particular is addressed.
type InterferencePolicy interface {
	Corrupted(m *Medium, tx *Transmission, rx Radio) bool
	Name() string
}

// CollisionPolicy corrupts every transmission that overlapped another one
// on the same resource, regardless of power or distance.
type CollisionPolicy struct{}

func (CollisionPolicy) Corrupted(_ *Medium, tx *Transmission, _ Radio) bool {
	return tx.Collided()
}

func (CollisionPolicy) Name() string { return "collision" }

// SINRPolicy corrupts a transmission when its SINR at the receiver falls
// below ThresholdDB or, with an MCS, when the resulting bit error rate is
// beyond what the code corrects.
type SINRPolicy struct {
	ThresholdDB float64
	MCS         MCS
}

func (p SINRPolicy) Corrupted(m *Medium, tx *Transmission, rx Radio) bool {
	if rx == nil {
		return tx.Collided()
	}
	sinr := m.SINR(tx, rx)
	if sinr < p.ThresholdDB {
		return true
	}
	if p.MCS != nil {
		ber := p.MCS.BitErrorRate(sinr, m.cfg.BandwidthHz, m.cfg.BitrateBps)
		return ber > p.MCS.MaxCorrectableBER()
	}
	return false
}

func (SINRPolicy) Name() string { return "sinr" }

// InterferenceSpec selects a policy from configuration.
type InterferenceSpec struct {
	Policy        string  `yaml:"policy"`
	SINRThreshold float64 `yaml:"sinr_threshold_db,omitempty"`
	// CodeN and CodeK configure a BPSK (N, K) block code for the sinr policy.
	CodeN int `yaml:"code_n,omitempty"`
	CodeK int `yaml:"code_k,omitempty"`
}

// ValidInterferencePolicies lists the names NewInterferencePolicy accepts.
var ValidInterferencePolicies = map[string]bool{
	"":          true,
	"collision": true,
	"sinr":      true,
}

// NewInterferencePolicy builds the policy named by spec. Empty means collision.
func NewInterferencePolicy(spec InterferenceSpec) (InterferencePolicy, error) {
	switch spec.Policy {
	case "", "collision":
		return CollisionPolicy{}, nil
	case "sinr":
		p := SINRPolicy{ThresholdDB: spec.SINRThreshold}
		if spec.CodeN > 0 {
			mcs, err := NewBPSK(spec.CodeN, spec.CodeK)
			if err != nil {
				return nil, fmt.Errorf("sinr policy: %w", err)
			}
			p.MCS = mcs
		}
		if math.IsNaN(p.ThresholdDB) {
			return nil, fmt.Errorf("sinr policy: threshold is NaN")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown interference policy %q", spec.Policy)
	}
}
