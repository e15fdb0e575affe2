// Package config provides configuration loading for signal sources.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SignalSourcesFile represents the structure of the sources.yaml file.
type SignalSourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one trigger signal source the dispatcher runs.
type SourceConfig struct {
	Type          string         `yaml:"type"` // queue or kafka
	Name          string         `yaml:"name"`
	Configuration map[string]any `yaml:"configuration"`
}

// LoadSignalSources loads the signal source list from a YAML file.
func LoadSignalSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file SignalSourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	for i, source := range file.Sources {
		if source.Type != "queue" && source.Type != "kafka" {
			return nil, fmt.Errorf("source %d has unknown type %q", i, source.Type)
		}

		if file.Sources[i].Configuration == nil {
			file.Sources[i].Configuration = make(map[string]any)
		}
	}

	return file.Sources, nil
}
