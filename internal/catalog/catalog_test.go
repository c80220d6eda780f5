package catalog

import (
	"testing"

	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/model"
	"github.com/mattjoyce/taskengine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogDoc = `
parameters:
  seed: 42
  ratio: {type: float, default: 0.5}
  free:
  config: {type: mapping, extra: 1}
tasks:
  add_noise:
    plugin: builtins.add_noise
    inputs:
      - {name: array, type: list}
      - {name: scale, type: float, default: 0.1}
      - {name: seed, type: integer, required: false}
    outputs:
      noisy: list
  stats:
    plugin: builtins.print_stats
    inputs:
      - {name: array, type: list}
      - {name: array, type: list}
    outputs: mapping
  pair:
    plugin: builtins.identity
    outputs:
      - first: float
      - second: float
      - first: float
graph: {}
`

func buildCatalog(t *testing.T) (*Catalog, []diag.Issue) {
	t.Helper()
	doc, _, err := document.Load([]byte(catalogDoc))
	require.NoError(t, err)
	return Build(doc)
}

func TestBuildParameters(t *testing.T) {
	c, _ := buildCatalog(t)

	names := []string{}
	for _, p := range c.Parameters() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"seed", "ratio", "free", "config"}, names)

	seed, _ := c.Parameter("seed")
	assert.Equal(t, types.Named(types.Integer), seed.Type)
	assert.False(t, seed.Explicit)

	ratio, _ := c.Parameter("ratio")
	assert.True(t, ratio.Explicit)
	assert.Equal(t, types.Named(types.Float), ratio.Type)
	assert.Equal(t, 0.5, ratio.Default)

	free, _ := c.Parameter("free")
	assert.True(t, free.Type.IsUntyped())
	assert.False(t, free.HasDefault)

	// Extra keys make the mapping a literal default, not a declaration.
	config, _ := c.Parameter("config")
	assert.False(t, config.Explicit)
	assert.Equal(t, types.Named(types.Mapping), config.Type)
}

func TestBuildTasks(t *testing.T) {
	c, issues := buildCatalog(t)

	require.Len(t, issues, 2)
	assert.Equal(t, diag.Semantic, issues[0].Type)
	assert.Contains(t, issues[0].Message, "input `array` more than once")
	assert.Contains(t, issues[1].Message, "output `first` more than once")

	noise, ok := c.Task("add_noise")
	require.True(t, ok)
	assert.Equal(t, "builtins.add_noise", noise.Plugin)
	require.Len(t, noise.Inputs, 3)
	assert.True(t, noise.Inputs[0].NeedsBinding())
	assert.False(t, noise.Inputs[1].NeedsBinding())
	assert.False(t, noise.Inputs[2].NeedsBinding())
	_, ok = noise.Output("noisy")
	assert.True(t, ok)

	stats, _ := c.Task("stats")
	require.Len(t, stats.Outputs, 1)
	assert.Equal(t, ImplicitOutput, stats.Outputs[0].Name)

	pair, _ := c.Task("pair")
	require.Len(t, pair.Outputs, 2)
	assert.Equal(t, "second", pair.Outputs[1].Name)

	assert.Equal(t, "add_noise(array: list, scale: float?, seed: integer?) -> noisy: list", noise.Describe())
}

func TestBind(t *testing.T) {
	c, _ := buildCatalog(t)
	noise, _ := c.Task("add_noise")

	kw := &model.Invocation{Task: "add_noise", Form: model.ArgsKeyword, Args: []model.Arg{
		{Name: "array", Value: []any{1}},
		{Name: "bogus", Value: 1},
		{Name: "array", Value: []any{2}},
	}}
	b := noise.Bind(kw)
	assert.Len(t, b.Args, 1)
	assert.Equal(t, []string{"bogus"}, b.Unknown)
	assert.Equal(t, []string{"array"}, b.Duplicate)
	assert.Empty(t, b.Missing)

	pos := &model.Invocation{Task: "add_noise", Form: model.ArgsPositional, Args: []model.Arg{
		{Value: []any{1}}, {Value: 0.2}, {Value: 7}, {Value: "extra"},
	}}
	b = noise.Bind(pos)
	assert.Len(t, b.Args, 3)
	assert.Equal(t, 1, b.Extra)
	assert.Equal(t, "scale", b.Args[1].Input.Name)

	b = noise.Bind(&model.Invocation{Task: "add_noise"})
	assert.Equal(t, []string{"array"}, b.Missing)
	assert.False(t, b.Bound("array"))
}
