package trace

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// WriteYAML encodes the trace and its summary to w.
func (et *EpisodeTrace) WriteYAML(w io.Writer) error {
	doc := struct {
		Summary *TraceSummary `yaml:"summary"`
		Trace   *EpisodeTrace `yaml:"trace"`
	}{Summarize(et), et}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	return enc.Close()
}

// SaveYAML writes the trace to path.
func (et *EpisodeTrace) SaveYAML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	if err := et.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
