package validate

import (
	"strings"
	"testing"

	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/swap"
	"github.com/mattjoyce/taskengine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noiseTasks = `
tasks:
  add_noise:
    plugin: builtins.add_noise
    inputs:
      - {name: array, type: list}
      - {name: scale, type: float, default: 0.1}
    outputs:
      noisy: list
  print_stats:
    plugin: builtins.print_stats
    inputs:
      - {name: array, type: list}
    outputs:
      stats: mapping
  count:
    plugin: builtins.identity
    inputs:
      - {name: n, type: integer}
    outputs: integer
`

func load(t *testing.T, text string) *document.Document {
	t.Helper()
	doc, issues, err := document.Load([]byte(text))
	require.NoError(t, err)
	require.Empty(t, issues)
	return doc
}

func messages(issues []diag.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.String())
	}
	return out
}

func only(t *testing.T, issues []diag.Issue, typ diag.Type) []diag.Issue {
	t.Helper()
	var out []diag.Issue
	for _, i := range issues {
		if i.Type == typ {
			out = append(out, i)
		}
	}
	return out
}

func TestEndToEndDocumentIsClean(t *testing.T) {
	doc := load(t, noiseTasks+`
graph:
  step_b:
    print_stats:
      array: $step_a.outputs.noisy
  step_a:
    add_noise:
      array: [1.0, 2.0, 3.0]
`)
	res := Check(doc)
	require.Empty(t, res.Issues, messages(res.Issues))
	assert.True(t, res.Valid())
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, []string{"step_a"}, res.Graph.Dependencies("step_b"))
}

func TestValidateIsIdempotent(t *testing.T) {
	doc := load(t, noiseTasks+`
unknown_section: 1
graph:
  a:
    add_noise: {array: "nope", scale: "x"}
  b:
    missing_task: {}
  c:
    print_stats: {array: $ghost.out}
`)
	first := Validate(doc)
	second := Validate(doc)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestTwoStepCycleIsOneSemanticError(t *testing.T) {
	doc := load(t, `
tasks:
  t:
    plugin: p
    inputs: [{name: x, type: float}]
    outputs: {out: float}
graph:
  a:
    t: {x: $b.out}
  b:
    t: {x: $a.out}
`)
	res := Check(doc)
	require.Len(t, res.Issues, 1, messages(res.Issues))
	assert.Equal(t, diag.Semantic, res.Issues[0].Type)
	assert.Equal(t, diag.Error, res.Issues[0].Severity)
	assert.Contains(t, res.Issues[0].Message, "`a`, `b`")
}

func TestIntegerLiteralCoercion(t *testing.T) {
	bad := load(t, noiseTasks+`
graph:
  s:
    count: {n: "abc"}
`)
	issues := Validate(bad)
	require.Len(t, issues, 1, messages(issues))
	assert.Equal(t, diag.TypeErr, issues[0].Type)
	assert.Equal(t, diag.Error, issues[0].Severity)

	good := load(t, noiseTasks+`
graph:
  s:
    count: {n: "42"}
`)
	assert.Empty(t, Validate(good))
}

func TestSemanticIssues(t *testing.T) {
	doc := load(t, noiseTasks+`
graph:
  a:
    add_noise: {array: $a.noisy}
  b:
    print_stats: {array: $a.missing}
  c:
    print_stats: {array: $nowhere.noisy}
  d:
    unknown_task: {}
  e:
    print_stats: {array: $undeclared}
  a:
    add_noise: {array: []}
`)
	sem := messages(only(t, Validate(doc), diag.Semantic))
	assert.Equal(t, []string{
		"semantic.error: duplicate step name `a`",
		"semantic.error: step `a` references its own output `noisy`",
		"semantic.error: step `b` references unknown output `missing` of step `a` (task `add_noise`)",
		"semantic.error: step `c` references unknown step `nowhere`",
		"semantic.error: step `d` uses unknown task `unknown_task`",
		"semantic.error: step `e` references unknown parameter `undeclared`",
	}, sem)
}

func TestSchemaIssues(t *testing.T) {
	doc := load(t, noiseTasks+`
extra: true
_comment: fine
graph:
  too_many:
    count: [1, 2]
  unknown_kw:
    count: {n: 1, m: 2}
  two:
    count: {n: 1}
    print_stats: {array: []}
  variant:
    ?attack:
      fgm: {}
`)
	schema := messages(only(t, Validate(doc), diag.Schema))
	joined := strings.Join(schema, "\n")
	assert.Contains(t, joined, "extra")
	assert.Contains(t, joined, "step `too_many` passes 2 positional argument(s) to task `count`, which declares 1 input(s)")
	assert.Contains(t, joined, "step `unknown_kw`: task `count` has no input `m`")
	assert.Contains(t, joined, "step `two` must have exactly one task invocation, found 2")
	assert.Contains(t, joined, "step `variant` has unresolved variant group `attack`")
	assert.NotContains(t, joined, "_comment")
}

func TestSchemaRejectsBadTaskShape(t *testing.T) {
	doc := load(t, `
tasks:
  t:
    inputs: [{name: x}]
    outputs: 42
graph: {}
`)
	joined := strings.Join(messages(only(t, Validate(doc), diag.Schema)), "\n")
	assert.Contains(t, joined, "tasks.t: ")
	assert.Contains(t, joined, "tasks.t.inputs.0")
	assert.Contains(t, joined, "tasks.t.outputs")
}

func TestSyntaxIssues(t *testing.T) {
	doc := load(t, noiseTasks+`
graph:
  1:
    count: {n: 1}
  ok:
    count: {2: 1}
`)
	syntax := only(t, Validate(doc), diag.Syntax)
	require.Len(t, syntax, 2)
	assert.Contains(t, syntax[0].Message, "graph: key 1")
	assert.Contains(t, syntax[1].Message, "graph.ok.count: key 2")
}

func TestTypeIssues(t *testing.T) {
	doc := load(t, noiseTasks+`
types:
  point: {fields: {x: float, y: float}}
  string: {list: float}
  broken: {tuple: [1]}
  mystery: {list: tensor}
parameters:
  flag: true
  ratio: {type: float, default: "high"}
  where: {type: path, default: /tmp}
graph:
  a:
    count: {n: $flag}
  b:
    add_noise: {array: 3}
  c:
    print_stats: {}
  d:
    count: {n: $c.stats}
`)
	issues := only(t, Validate(doc), diag.TypeErr)
	got := messages(issues)
	assert.Equal(t, []string{
		"type.error: type `string` shadows a builtin type",
		"type.error: type `broken`: unknown structure form \"tuple\"",
		"type.error: type `mystery` uses unknown type `tensor`",
		"type.error: parameter `ratio` default: cannot coerce \"high\" to float",
		"type.warning: parameter `where` uses deprecated type `path`, treated as `string`",
		"type.error: step `a` input `n` expects integer, parameter `flag` is boolean",
		"type.error: step `b` input `array`: expected list, got integer 3",
		"type.error: step `c`: required input `array` of task `print_stats` is not bound",
		"type.error: step `d` input `n` expects integer, output `c.stats` is mapping",
	}, got)
}

func TestWarningsDoNotInvalidate(t *testing.T) {
	doc := load(t, `
tasks:
  open:
    plugin: builtins.identity
    inputs: [{name: target, type: uri}]
    outputs: string
graph:
  s:
    open: {target: "http://example.com"}
`)
	res := Check(doc)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, diag.Warning, res.Issues[0].Severity)
	assert.True(t, res.Valid())

	strict := Check(doc, WithMigration(types.MigrationNone))
	assert.False(t, strict.Valid())
}

func TestSwapThenValidate(t *testing.T) {
	doc := load(t, `
tasks:
  fgm:
    plugin: attacks.fgm
    inputs: [{name: eps, type: float}]
    outputs: {adv: list}
  pgd:
    plugin: attacks.pgd
    inputs: [{name: eps, type: float}, {name: steps, type: integer}]
    outputs: {adv: list}
graph:
  attack:
    ?attack:
      fgm: {eps: 0.1}
      pgd: {eps: 0.2, steps: 10}
`)
	resolved, issues := swap.ResolveDocument(doc, map[string]string{"attack": "pgd"})
	require.Empty(t, issues)
	res := Check(resolved)
	require.Empty(t, res.Issues, messages(res.Issues))
	assert.Equal(t, "pgd", res.Steps[0].Fixed.Task)

	unresolved, issues := swap.ResolveDocument(doc, nil)
	require.Len(t, issues, 1)
	res = Check(unresolved)
	assert.Equal(t, []string{"schema.error: step `attack` has unresolved variant group `attack`"}, messages(res.Issues))
	res = Check(unresolved, WithSwapsResolved())
	assert.Empty(t, res.Issues, messages(res.Issues))
}

func TestBuiltDocumentValidates(t *testing.T) {
	spec := document.BuildSpec{
		Types: []document.TypeSpec{
			{Name: "point", Structure: map[string]any{"fields": map[string]any{"x": "float", "y": "float"}}},
		},
		Parameters: []document.ParameterSpec{
			{Name: "scale", Default: 0.5},
			{Name: "origin", Type: "point", Default: map[string]any{"x": 0.0, "y": 0.0}},
		},
		Tasks: []document.TaskSpec{
			{
				Name:    "add_noise",
				Plugin:  "builtins.add_noise",
				Inputs:  []document.InputSpec{{Name: "array", Type: "list"}, {Name: "scale", Type: "float", Optional: true}},
				Outputs: []document.OutputSpec{{Name: "noisy", Type: "list"}},
			},
			{
				Name:    "print_stats",
				Plugin:  "builtins.print_stats",
				Inputs:  []document.InputSpec{{Name: "array", Type: "list"}},
				Outputs: []document.OutputSpec{{Name: "stats", Type: "mapping"}},
			},
		},
		Graph: document.Mapping{
			{Key: "step_a", Value: map[string]any{"add_noise": map[string]any{"array": []any{1.0, 2.0}, "scale": "$scale"}}},
			{Key: "step_b", Value: map[string]any{"print_stats": []any{"$step_a.noisy"}}},
		},
	}

	text, err := document.Build(spec)
	require.NoError(t, err)
	doc, issues, err := document.Load(text)
	require.NoError(t, err)
	require.Empty(t, issues)
	assert.Empty(t, Validate(doc), string(text))
}

func TestNilDocument(t *testing.T) {
	issues := Validate(nil)
	require.Len(t, issues, 1)
	assert.Equal(t, diag.Syntax, issues[0].Type)
}
