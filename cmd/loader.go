package cmd

import (
	_ "embed" // Required for go:embed
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-feed-service/feedservice/config"
)

//go:embed feedservice/config.yaml
var configFile []byte

// Load parses the embedded configuration file and applies environment
// overrides, producing the final service configuration.
func Load() (*config.AppConfig, error) {
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded yaml config: %w", err)
	}

	appCfg, err := config.NewConfigFromYaml(&yamlCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	if err := appCfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}

	return appCfg, nil
}
