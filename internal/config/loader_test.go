package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "full config",
			yaml: `
service:
  name: lab
  log_level: DEBUG
state:
  path: /var/lib/taskengine/state.db
engine:
  concurrency: 4
  job_timeout: 30m
worker:
  poll_interval: 250ms
  metrics_listen: 127.0.0.1:9100
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "lab", cfg.Service.Name)
				assert.Equal(t, "debug", cfg.Service.LogLevel)
				assert.Equal(t, "/var/lib/taskengine/state.db", cfg.State.Path)
				assert.Equal(t, 4, cfg.Engine.Concurrency)
				assert.Equal(t, 30*time.Minute, cfg.Engine.JobTimeout)
				assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
				assert.Equal(t, "127.0.0.1:9100", cfg.Worker.MetricsListen)
			},
		},
		{
			name: "defaults fill empty sections",
			yaml: "service: {name: lab}\n",
			checkFn: func(t *testing.T, cfg *Config) {
				d := Defaults()
				assert.Equal(t, d.State, cfg.State)
				assert.Equal(t, d.Engine, cfg.Engine)
				assert.Equal(t, d.Worker, cfg.Worker)
				assert.Equal(t, "info", cfg.Service.LogLevel)
			},
		},
		{
			name: "env interpolation",
			yaml: "state:\n  path: ${TE_TEST_STATE}/jobs.db\n",
			env:  map[string]string{"TE_TEST_STATE": "/data"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/data/jobs.db", cfg.State.Path)
			},
		},
		{
			name:    "unset env var",
			yaml:    "state:\n  path: ${TE_TEST_MISSING_VAR}/jobs.db\n",
			wantErr: "environment variable ${TE_TEST_MISSING_VAR} is not set",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "negative concurrency",
			yaml:    "engine:\n  concurrency: -2\n",
			wantErr: "engine.concurrency",
		},
		{
			name:    "malformed yaml",
			yaml:    "service: [\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, t.TempDir(), tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, path, cfg.Path)
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "engine: {concurrency: 2}\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.Concurrency)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(EnvConfig, "")

	path, err := Discover("")
	require.NoError(t, err)
	assert.Empty(t, path, "no config anywhere")

	cfg, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)

	local := writeConfig(t, dir, "engine: {concurrency: 3}\n")
	path, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFileName, path)

	other := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("engine: {concurrency: 5}\n"), 0o600))
	t.Setenv(EnvConfig, other)
	path, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, other, path)

	path, err = Discover(local)
	require.NoError(t, err)
	assert.Equal(t, local, path, "flag wins over environment")

	cfg, err = Resolve(local)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Concurrency)

	t.Setenv(EnvConfig, filepath.Join(dir, "nope.yaml"))
	_, err = Discover("")
	assert.Error(t, err)
}
