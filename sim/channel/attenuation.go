package channel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// AttenuationModel returns the path loss in dB between two positions (meters).
type AttenuationModel interface {
	Attenuation(from, to r2.Vec) float64
}

// FSPL is free-space path loss at a carrier frequency:
// 20·log10(d) + 20·log10(f) − 147.55.
type FSPL struct {
	FrequencyHz float64
}

func (m FSPL) Attenuation(from, to r2.Vec) float64 {
	d := r2.Norm(r2.Sub(to, from))
	if d == 0 {
		return 0
	}
	loss := 20*math.Log10(d) + 20*math.Log10(m.FrequencyHz) - 147.55
	// below ~λ/4π the far-field formula goes negative
	return math.Max(loss, 0)
}

// LogDistance is the log-distance model: RefLossDB at RefDistance plus
// 10·Exponent·log10(d/RefDistance) beyond it.
type LogDistance struct {
	RefDistance float64
	RefLossDB   float64
	Exponent    float64
}

func (m LogDistance) Attenuation(from, to r2.Vec) float64 {
	d := r2.Norm(r2.Sub(to, from))
	if d <= m.RefDistance || m.RefDistance <= 0 {
		return m.RefLossDB
	}
	return m.RefLossDB + 10*m.Exponent*math.Log10(d/m.RefDistance)
}

// Fixed applies the same loss to every link.
type Fixed struct {
	DB float64
}

func (m Fixed) Attenuation(_, _ r2.Vec) float64 { return m.DB }

// Joined sums the losses of its models, e.g. path loss plus a wall.
type Joined []AttenuationModel

func (j Joined) Attenuation(from, to r2.Vec) float64 {
	total := 0.0
	for _, m := range j {
		total += m.Attenuation(from, to)
	}
	return total
}

// AttenuationSpec selects an attenuation model from configuration.
type AttenuationSpec struct {
	Model       string            `yaml:"model"`
	RefDistance float64           `yaml:"ref_distance,omitempty"`
	RefLossDB   float64           `yaml:"ref_loss_db,omitempty"`
	Exponent    float64           `yaml:"exponent,omitempty"`
	FixedDB     float64           `yaml:"fixed_db,omitempty"`
	Parts       []AttenuationSpec `yaml:"parts,omitempty"`
}

// ValidAttenuationModels lists the names NewAttenuationModel accepts.
var ValidAttenuationModels = map[string]bool{
	"":             true,
	"fspl":         true,
	"log-distance": true,
	"fixed":        true,
	"joined":       true,
}

// NewAttenuationModel builds the model named by spec. An empty name is FSPL.
func NewAttenuationModel(spec AttenuationSpec, frequencyHz float64) (AttenuationModel, error) {
	switch spec.Model {
	case "", "fspl":
		return FSPL{FrequencyHz: frequencyHz}, nil
	case "log-distance":
		if spec.Exponent <= 0 {
			return nil, fmt.Errorf("log-distance attenuation requires a positive exponent, got %v", spec.Exponent)
		}
		ref := spec.RefDistance
		if ref <= 0 {
			ref = 1
		}
		refLoss := spec.RefLossDB
		if refLoss == 0 {
			refLoss = FSPL{FrequencyHz: frequencyHz}.Attenuation(r2.Vec{}, r2.Vec{X: ref})
		}
		return LogDistance{RefDistance: ref, RefLossDB: refLoss, Exponent: spec.Exponent}, nil
	case "fixed":
		return Fixed{DB: spec.FixedDB}, nil
	case "joined":
		if len(spec.Parts) == 0 {
			return nil, fmt.Errorf("joined attenuation requires at least one part")
		}
		joined := make(Joined, 0, len(spec.Parts))
		for i, part := range spec.Parts {
			m, err := NewAttenuationModel(part, frequencyHz)
			if err != nil {
				return nil, fmt.Errorf("joined part %d: %w", i, err)
			}
			joined = append(joined, m)
		}
		return joined, nil
	default:
		return nil, fmt.Errorf("unknown attenuation model %q", spec.Model)
	}
}
