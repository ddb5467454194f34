package cmd

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/env"
)

//go:embed presets.yaml
var presetsYAML []byte

// presetFile is the structure of presets.yaml. Each preset is decoded over
// env.DefaultConfig with strict field checking.
type presetFile struct {
	Version string               `yaml:"version"`
	Presets map[string]yaml.Node `yaml:"presets"`
}

func loadPresets() (*presetFile, error) {
	var pf presetFile
	decoder := yaml.NewDecoder(bytes.NewReader(presetsYAML))
	decoder.KnownFields(true)
	if err := decoder.Decode(&pf); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	return &pf, nil
}

// PresetNames lists the built-in scenarios.
func PresetNames() []string {
	pf, err := loadPresets()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(pf.Presets))
	for name := range pf.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns the named scenario applied over env.DefaultConfig.
func GetPreset(name string) (env.Config, error) {
	cfg := env.DefaultConfig()
	pf, err := loadPresets()
	if err != nil {
		return cfg, err
	}
	node, ok := pf.Presets[name]
	if !ok {
		return cfg, sim.ConfigErrorf("preset", "unknown preset %q; valid: %s", name, strings.Join(PresetNames(), ", "))
	}
	raw, err := yaml.Marshal(&node)
	if err != nil {
		return cfg, fmt.Errorf("preset %s: %w", name, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, &sim.ConfigurationError{Field: "preset " + name, Reason: err.Error()}
	}
	return cfg, nil
}

// resolveConfig loads --config, else --preset, else the default cell, and
// applies --seed when it was given explicitly.
func resolveConfig(cmd *cobra.Command) (env.Config, error) {
	var (
		cfg env.Config
		err error
	)
	switch {
	case configPath != "" && presetName != "":
		return cfg, fmt.Errorf("--config and --preset are mutually exclusive")
	case configPath != "":
		cfg, err = env.LoadConfig(configPath)
	case presetName != "":
		cfg, err = GetPreset(presetName)
	default:
		cfg = env.DefaultConfig()
	}
	if err != nil {
		return cfg, err
	}
	if cmd != nil && cmd.Flags().Changed("seed") {
		cfg.RandomSeed = seed
	}
	return cfg, cfg.Validate()
}
