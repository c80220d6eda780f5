package config

import (
	"fmt"
	"os"
)

const (
	// EnvConfig names the environment variable holding a config path.
	EnvConfig = "TASKENGINE_CONFIG"
	// DefaultFileName is looked up in the working directory.
	DefaultFileName = "taskengine.yaml"
)

// Discover finds the config file by checking standard locations.
// Priority order: --config flag, $TASKENGINE_CONFIG, ./taskengine.yaml.
// An empty path with a nil error means no config exists and defaults apply.
func Discover(flagPath string) (string, error) {
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("config %s: %w", flagPath, err)
		}
		return flagPath, nil
	}

	if path := os.Getenv(EnvConfig); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("$%s points to %s: %w", EnvConfig, path, err)
		}
		return path, nil
	}

	if fileExists(DefaultFileName) {
		return DefaultFileName, nil
	}
	return "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
