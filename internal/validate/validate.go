// Package validate runs the ordered diagnostic passes over a resolved
// document: syntax, schema, semantic and type. Passes never stop at the first
// problem; every issue found is returned, grouped by pass in that order.
package validate

import (
	"github.com/mattjoyce/taskengine/internal/catalog"
	"github.com/mattjoyce/taskengine/internal/dag"
	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/model"
	"github.com/mattjoyce/taskengine/internal/types"
)

// Result is the outcome of validation together with the structures built on
// the way, so execution does not rebuild them.
type Result struct {
	Issues   []diag.Issue
	Types    *types.Registry
	Catalog  *catalog.Catalog
	Steps    []*model.Step
	Bindings map[string]*catalog.Binding
	Graph    *dag.Graph
}

// Valid reports whether no ERROR issue was found.
func (r *Result) Valid() bool { return !diag.HasErrors(r.Issues) }

type options struct {
	migration     types.Migration
	swapsResolved bool
}

// Option tunes validation.
type Option func(*options)

// WithMigration sets the retired type policy. MigrationV1 is the default.
func WithMigration(m types.Migration) Option {
	return func(o *options) { o.migration = m }
}

// WithSwapsResolved marks doc as the output of the swap resolver. Variant
// groups still present were already reported there and are not reported
// again as unresolved.
func WithSwapsResolved() Option {
	return func(o *options) { o.swapsResolved = true }
}

// Validate returns the issues of doc.
func Validate(doc *document.Document, opts ...Option) []diag.Issue {
	return Check(doc, opts...).Issues
}

// Check validates doc and returns the issues plus the built registry,
// catalog, steps, bindings and dependency graph.
func Check(doc *document.Document, opts ...Option) *Result {
	o := options{migration: types.MigrationV1}
	for _, opt := range opts {
		opt(&o)
	}

	res := &Result{Bindings: make(map[string]*catalog.Binding)}
	if doc == nil {
		res.Issues = []diag.Issue{diag.Errorf(diag.Syntax, "no document to validate")}
		return res
	}

	c := &checker{
		doc:     doc,
		res:     res,
		reg:     types.NewRegistry(types.WithMigration(o.migration)),
		buckets: make(map[diag.Type][]diag.Issue),
		opts:    o,
	}
	res.Types = c.reg

	c.syntaxPass()
	c.schemaPass()
	c.semanticPass()
	c.typePass()

	for _, t := range []diag.Type{diag.Syntax, diag.Schema, diag.Semantic, diag.TypeErr} {
		res.Issues = append(res.Issues, c.buckets[t]...)
	}
	if res.Issues == nil {
		res.Issues = []diag.Issue{}
	}
	return res
}

type checker struct {
	doc     *document.Document
	res     *Result
	reg     *types.Registry
	buckets map[diag.Type][]diag.Issue
	opts    options

	// unique holds the first step of each name, in declaration order.
	unique []*model.Step
	byName map[string]*model.Step
}

func (c *checker) add(issues ...diag.Issue) {
	for _, i := range issues {
		c.buckets[i.Type] = append(c.buckets[i.Type], i)
	}
}
