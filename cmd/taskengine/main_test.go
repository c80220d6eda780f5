package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskengine/internal/config"
	"github.com/mattjoyce/taskengine/internal/lock"
)

const pipelineDoc = `
parameters:
  sigma: 0.0
tasks:
  add_noise:
    plugin: builtins.add_noise
    inputs:
      - {name: array, type: list}
      - {name: scale, type: float, required: false}
    outputs:
      noisy: list
  print_stats:
    plugin: builtins.print_stats
    inputs:
      - {name: array, type: list}
    outputs:
      stats: mapping
graph:
  stats:
    print_stats:
      array: $noise.outputs.noisy
  noise:
    add_noise:
      array: [1.0, 2.0, 3.0]
      scale: $sigma
`

const cyclicDoc = `
tasks:
  t: {plugin: builtins.identity, inputs: [{name: value, type: float}], outputs: {value: float}}
graph:
  a: {t: {value: $b.value}}
  b: {t: {value: $a.value}}
`

const failingDoc = `
tasks:
  fail:
    plugin: builtins.fail
    inputs: [{name: message, type: string}]
    outputs: {never: string}
graph:
  broken:
    fail: {message: disk full}
`

const swapDoc = `
tasks:
  fgm: {plugin: builtins.scale, inputs: [{name: array, type: list}, {name: factor, type: float}], outputs: {scaled: list}}
  pgd: {plugin: builtins.scale, inputs: [{name: array, type: list}, {name: factor, type: float}], outputs: {scaled: list}}
graph:
  attack:
    ?attack:
      fgm: {array: [1], factor: 1}
      pgd: {array: [1], factor: 2}
`

type result struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// isolate points config discovery at a fresh state database.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.DefaultFileName)
	cfg := "state:\n  path: " + filepath.Join(dir, "state.db") + "\nworker:\n  poll_interval: 10ms\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	t.Setenv(config.EnvConfig, cfgPath)
	return cfgPath
}

func TestValidateExitCodes(t *testing.T) {
	isolate(t)
	good := writeFile(t, "good.yaml", pipelineDoc)
	cyclic := writeFile(t, "cyclic.yaml", cyclicDoc)
	broken := writeFile(t, "broken.yaml", "graph: [oops\n")

	res := execute(t, "", "validate", good)
	assert.Equal(t, exitOK, res.code)
	assert.Equal(t, "Document valid.\n", res.stdout)

	res = execute(t, "", "validate", cyclic)
	assert.Equal(t, exitIssues, res.code)
	assert.Contains(t, res.stdout, "Document invalid (1 error(s)")
	assert.Empty(t, res.stderr)

	res = execute(t, "", "validate", broken)
	assert.Equal(t, exitException, res.code)
	assert.Contains(t, res.stderr, "Error:")

	res = execute(t, "", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, exitException, res.code)
}

func TestValidateQuietAndJSON(t *testing.T) {
	isolate(t)
	good := writeFile(t, "good.yaml", pipelineDoc)
	cyclic := writeFile(t, "cyclic.yaml", cyclicDoc)
	broken := writeFile(t, "broken.yaml", "graph: [oops\n")

	res := execute(t, "", "validate", "-q", good)
	assert.Equal(t, exitOK, res.code)
	assert.Equal(t, "no issues\n", res.stdout)

	res = execute(t, "", "validate", "-q", cyclic)
	assert.Equal(t, exitIssues, res.code)
	assert.Equal(t, "1 issue(s): 1 error(s), 0 warning(s)\n", res.stdout)

	for _, path := range []string{cyclic, broken} {
		res = execute(t, "", "validate", "-qq", path)
		assert.NotEqual(t, exitOK, res.code)
		assert.Empty(t, res.stdout)
		assert.Empty(t, res.stderr)
	}

	res = execute(t, "", "validate", "--json", cyclic)
	assert.Equal(t, exitIssues, res.code)
	var report struct {
		Valid  bool `json:"valid"`
		Issues []struct {
			Type     string `json:"type"`
			Severity string `json:"severity"`
		} `json:"issues"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.False(t, report.Valid)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "SEMANTIC", report.Issues[0].Type)
}

func TestValidateSwapsAndStdin(t *testing.T) {
	isolate(t)

	res := execute(t, swapDoc, "validate", "--swap", "attack=pgd", "-")
	assert.Equal(t, exitOK, res.code, res.stdout+res.stderr)

	res = execute(t, swapDoc, "validate", "-q", "-s", "attack=bim", "-")
	assert.Equal(t, exitIssues, res.code)
	assert.Equal(t, "1 issue(s): 1 error(s), 0 warning(s)\n", res.stdout)

	res = execute(t, swapDoc, "validate", "-s", "attack=bim", "-")
	assert.Equal(t, exitIssues, res.code)
	assert.Contains(t, res.stdout, "task `bim` requested for swap but not found")
	assert.NotContains(t, res.stdout, "unresolved variant group")

	res = execute(t, swapDoc, "validate", "--swap", "attack", "-")
	assert.Equal(t, exitException, res.code)
	assert.Contains(t, res.stderr, "want group=variant")
}

func TestPlan(t *testing.T) {
	isolate(t)
	good := writeFile(t, "good.yaml", pipelineDoc)

	res := execute(t, "", "plan", good)
	require.Equal(t, exitOK, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "fingerprint: "))
	assert.Equal(t, "tier 0: noise (add_noise)", lines[1])
	assert.Equal(t, "tier 1: stats (print_stats)", lines[2])

	res = execute(t, "", "plan", "--json", good)
	require.Equal(t, exitOK, res.code)
	var plan planOutput
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &plan))
	assert.Equal(t, [][]string{{"noise"}, {"stats"}}, plan.Tiers)

	res = execute(t, "", "plan", writeFile(t, "cyclic.yaml", cyclicDoc))
	assert.Equal(t, exitIssues, res.code)
	assert.Contains(t, res.stderr, "Document invalid")
}

func TestRun(t *testing.T) {
	isolate(t)

	res := execute(t, "", "run", writeFile(t, "good.yaml", pipelineDoc))
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "STEP")
	assert.Contains(t, res.stdout, "SUCCEEDED")

	res = execute(t, "", "run", "--json", "-p", "sigma=loud", writeFile(t, "good.yaml", pipelineDoc))
	assert.Equal(t, exitIssues, res.code)
	var out struct {
		Status string `json:"status"`
		Steps  []struct {
			Step   string `json:"step"`
			Status string `json:"status"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "FAILED", out.Status)

	res = execute(t, "", "run", writeFile(t, "fail.yaml", failingDoc))
	assert.Equal(t, exitIssues, res.code)
	assert.Contains(t, res.stdout, "disk full")
}

func TestSubmitWorkerJobs(t *testing.T) {
	cfgPath := isolate(t)
	good := writeFile(t, "good.yaml", pipelineDoc)
	failing := writeFile(t, "fail.yaml", failingDoc)

	res := execute(t, "", "--config", cfgPath, "submit", good)
	require.Equal(t, exitOK, res.code, res.stderr)
	okID := strings.TrimSpace(res.stdout)
	require.NotEmpty(t, okID)

	res = execute(t, "", "submit", "--dedupe", good)
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, okID, strings.TrimSpace(res.stdout))
	assert.Contains(t, res.stderr, "already pending")

	res = execute(t, "", "submit", failing)
	require.Equal(t, exitOK, res.code, res.stderr)
	failID := strings.TrimSpace(res.stdout)

	res = execute(t, "", "submit", "--depends-on", failID[:8], good)
	require.Equal(t, exitOK, res.code, res.stderr)
	blockedID := strings.TrimSpace(res.stdout)

	res = execute(t, "", "submit", writeFile(t, "cyclic.yaml", cyclicDoc))
	assert.Equal(t, exitIssues, res.code)

	res = execute(t, "", "worker", "--once")
	require.Equal(t, exitOK, res.code, res.stderr)

	res = execute(t, "", "jobs", "--json")
	require.Equal(t, exitOK, res.code, res.stderr)
	var jobs []jobView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &jobs))
	require.Len(t, jobs, 3)
	statuses := map[string]string{}
	for _, j := range jobs {
		statuses[j.ID] = string(j.Status)
	}
	assert.Equal(t, "succeeded", statuses[okID])
	assert.Equal(t, "failed", statuses[failID])
	assert.Equal(t, "failed", statuses[blockedID])

	res = execute(t, "", "jobs", "--status", "failed")
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, failID)
	assert.NotContains(t, res.stdout, okID)

	res = execute(t, "", "jobs", okID[:8])
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "status:      succeeded")
	assert.Contains(t, res.stdout, "noise")
	assert.Contains(t, res.stdout, "print_stats")

	res = execute(t, "", "jobs", failID)
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "disk full")

	res = execute(t, "", "jobs", "ffffffff-0000")
	assert.Equal(t, exitIssues, res.code)

	res = execute(t, "", "inspect", blockedID)
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Hops        : 2\n")
	assert.Contains(t, res.stdout, "[1] "+failID+" (failed, depth 1)")
	assert.Contains(t, res.stdout, "dependency job failed")
}

func TestDoctor(t *testing.T) {
	isolate(t)

	res := execute(t, "", "doctor")
	require.Equal(t, exitOK, res.code, res.stdout+res.stderr)
	assert.Equal(t, "Configuration valid.\n", res.stdout)

	bad := writeFile(t, "bad.yaml", "worker:\n  metrics_listen: \"9090\"\n")
	res = execute(t, "", "--config", bad, "doctor", "--json")
	assert.Equal(t, exitIssues, res.code)
	assert.Contains(t, res.stdout, `"field": "worker.metrics_listen"`)
}

func TestWorkerLock(t *testing.T) {
	cfgPath := isolate(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	held, err := lock.Acquire(lock.PathFor(cfg.State.Path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release() })

	res := execute(t, "", "worker", "--once")
	assert.Equal(t, exitException, res.code)
	assert.Contains(t, res.stderr, "lock held by another process")
}

func TestPlugins(t *testing.T) {
	isolate(t)

	res := execute(t, "", "plugins")
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "builtins.add_noise")
	assert.Contains(t, res.stdout, "array:list")

	res = execute(t, "", "plugins", "--document", "builtins.scale")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "tasks:")
	assert.Contains(t, res.stdout, "plugin: builtins.scale")

	// The generated document is itself valid.
	doc := writeFile(t, "tasks.yaml", res.stdout)
	res = execute(t, "", "validate", "-q", doc)
	assert.Equal(t, exitOK, res.code, res.stdout)

	res = execute(t, "", "plugins", "--document", "builtins.nope")
	assert.Equal(t, exitIssues, res.code)
}

func TestVersion(t *testing.T) {
	res := execute(t, "", "version")
	require.Equal(t, exitOK, res.code)
	assert.True(t, strings.HasPrefix(res.stdout, "taskengine "+version))

	res = execute(t, "", "version", "--json")
	require.Equal(t, exitOK, res.code)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &v))
	assert.Equal(t, version, v["version"])
}
