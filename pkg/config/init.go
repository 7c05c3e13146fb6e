package config

import (
	"fmt"
	"os"
)

const configHeader = `# dittosmb configuration file
#
# Environment variables override any value here using the DITTOSMB_ prefix,
# e.g. DITTOSMB_LOGGING_LEVEL=DEBUG or DITTOSMB_SERVER_LISTEN_ADDRESS=:1445.

`

// InitConfig writes a default configuration to path (the default location
// when empty). sharePath, when set, replaces the default share's directory.
// Existing files are only overwritten when force is set.
func InitConfig(path, sharePath string, force bool) (string, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	cfg := GetDefaultConfig()
	if sharePath != "" {
		cfg.Shares[0].Path = sharePath
	}
	if err := Validate(cfg); err != nil {
		return "", err
	}

	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read back config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
