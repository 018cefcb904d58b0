package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tileworld/internal/config"
)

// Environment variables carrying a whole configuration document, for
// deployments that cannot mount a file.
const (
	envConfigJSON    = "TILEWORLD_CONFIG_JSON"
	envConfigYAMLB64 = "TILEWORLD_CONFIG_YAML_B64"
)

func writeConfigFromEnv(cfgPath string) (bool, error) {
	jsonPayload := os.Getenv(envConfigJSON)
	yamlPayload := os.Getenv(envConfigYAMLB64)

	if jsonPayload == "" && yamlPayload == "" {
		return false, nil
	}
	if cfgPath == "" {
		return false, errors.New("configuration provided in the environment but no --config path supplied")
	}

	var (
		cfg *config.Config
		err error
	)
	if jsonPayload != "" {
		cfg, err = config.Decode([]byte(jsonPayload), config.FormatJSON)
	} else {
		data, decodeErr := base64.StdEncoding.DecodeString(yamlPayload)
		if decodeErr != nil {
			return false, fmt.Errorf("decode %s: %w", envConfigYAMLB64, decodeErr)
		}
		cfg, err = config.Decode(data, config.FormatYAML)
	}
	if err != nil {
		return false, fmt.Errorf("environment config: %w", err)
	}

	dir := filepath.Dir(cfgPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal config json: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}
