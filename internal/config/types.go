package config

import "time"

// Config represents the complete taskengine runtime configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Engine  EngineConfig  `yaml:"engine"`
	Worker  WorkerConfig  `yaml:"worker"`

	// Path is the file the configuration was loaded from; empty for defaults.
	Path string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig defines step execution settings.
type EngineConfig struct {
	Concurrency int           `yaml:"concurrency"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
}

// WorkerConfig defines queue worker settings.
type WorkerConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	MetricsListen string        `yaml:"metrics_listen"` // empty disables /metrics
}

// Defaults returns a Config with the built-in defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "taskengine",
			LogLevel: "info",
		},
		State: StateConfig{
			Path: "./taskengine.db",
		},
		Engine: EngineConfig{
			Concurrency: 1,
			JobTimeout:  24 * time.Hour,
		},
		Worker: WorkerConfig{
			PollInterval: time.Second,
		},
	}
}
