package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jaxxstorm/deployver"
)

// strategyFile is the on-disk strategy definition. Either a preset name or a
// format string with components may be given; JSON files decode the same way.
//
//	format: "{package-version}-{branch}.{commit-count}"
//	components:
//	  commitCount:
//	    mode: all
//	    padding: 3
type strategyFile struct {
	Preset     string               `yaml:"preset"`
	Format     string               `yaml:"format"`
	Components deployver.Components `yaml:"components"`
}

func loadStrategyFile(path string) (deployver.Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return deployver.Strategy{}, fmt.Errorf("reading strategy file: %w", err)
	}
	return parseStrategy(data)
}

func parseStrategy(data []byte) (deployver.Strategy, error) {
	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return deployver.Strategy{}, fmt.Errorf("parsing strategy file: %w", err)
	}

	switch {
	case file.Preset != "":
		return deployver.Preset(file.Preset)
	case file.Format != "":
		return deployver.NewStrategy(file.Format, file.Components), nil
	default:
		return deployver.Strategy{}, fmt.Errorf("strategy file must set preset or format")
	}
}
