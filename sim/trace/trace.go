package trace

// TraceLevel controls the verbosity of episode tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSteps captures every agent decision.
	TraceLevelSteps TraceLevel = "steps"
	// TraceLevelTransmissions captures decisions and every transmission.
	TraceLevelTransmissions TraceLevel = "transmissions"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:          true,
	TraceLevelSteps:         true,
	TraceLevelTransmissions: true,
	"":                      true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel `yaml:"level"`
}

// EpisodeTrace collects records across one or more episodes.
type EpisodeTrace struct {
	Config        TraceConfig          `yaml:"config"`
	Steps         []StepRecord         `yaml:"steps"`
	Transmissions []TransmissionRecord `yaml:"transmissions,omitempty"`
}

// NewEpisodeTrace creates an EpisodeTrace ready for recording.
func NewEpisodeTrace(config TraceConfig) *EpisodeTrace {
	return &EpisodeTrace{
		Config:        config,
		Steps:         make([]StepRecord, 0),
		Transmissions: make([]TransmissionRecord, 0),
	}
}

// RecordStep appends a decision record unless tracing is off.
func (et *EpisodeTrace) RecordStep(record StepRecord) {
	if !et.wants(TraceLevelSteps) {
		return
	}
	et.Steps = append(et.Steps, record)
}

// RecordTransmission appends a transmission record when the level asks for them.
func (et *EpisodeTrace) RecordTransmission(record TransmissionRecord) {
	if !et.wants(TraceLevelTransmissions) {
		return
	}
	et.Transmissions = append(et.Transmissions, record)
}

// WantsTransmissions reports whether transmission records are kept.
func (et *EpisodeTrace) WantsTransmissions() bool {
	return et.wants(TraceLevelTransmissions)
}

func (et *EpisodeTrace) wants(level TraceLevel) bool {
	if et == nil {
		return false
	}
	switch et.Config.Level {
	case TraceLevelTransmissions:
		return true
	case TraceLevelSteps:
		return level == TraceLevelSteps
	default:
		return false
	}
}
