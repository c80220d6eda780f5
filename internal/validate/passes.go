package validate

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/taskengine/internal/catalog"
	"github.com/mattjoyce/taskengine/internal/dag"
	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/model"
	"github.com/mattjoyce/taskengine/internal/types"
)

// syntaxPass reports every non-string mapping key.
func (c *checker) syntaxPass() {
	for _, e := range c.doc.Root {
		key, ok := e.Key.(string)
		if !ok {
			c.add(diag.Errorf(diag.Syntax, "top-level key %v (%s, line %d) is not a string", e.Key, document.KindOf(e.Key), e.Line))
			continue
		}
		c.add(document.NonStringKeys(key, e.Value)...)
	}
}

// schemaPass checks document shape, decodes the catalog and steps, and
// matches step arguments against task inputs.
func (c *checker) schemaPass() {
	c.add(schemaIssues(c.doc)...)

	cat, issues := catalog.Build(c.doc)
	c.res.Catalog = cat
	c.add(issues...)

	steps, problems := model.ParseGraph(c.doc.Graph())
	c.res.Steps = steps
	for _, p := range problems {
		c.add(diag.Errorf(diag.Schema, "%s", p))
	}

	c.byName = make(map[string]*model.Step, len(steps))
	for _, s := range steps {
		if _, dup := c.byName[s.Name]; dup {
			continue
		}
		c.byName[s.Name] = s
		c.unique = append(c.unique, s)
	}

	for _, s := range c.unique {
		if s.Variant != nil {
			if !c.opts.swapsResolved {
				c.add(diag.Errorf(diag.Schema, "step `%s` has unresolved variant group `%s`", s.Name, s.Variant.Group))
			}
			continue
		}
		if s.Fixed == nil {
			continue
		}
		task, ok := cat.Task(s.Fixed.Task)
		if !ok {
			continue
		}

		b := task.Bind(s.Fixed)
		c.res.Bindings[s.Name] = b
		if b.Extra > 0 {
			c.add(diag.Errorf(diag.Schema, "step `%s` passes %d positional argument(s) to task `%s`, which declares %d input(s)",
				s.Name, len(s.Fixed.Args), task.Name, len(task.Inputs)))
		}
		for _, name := range b.Unknown {
			c.add(diag.Errorf(diag.Schema, "step `%s`: task `%s` has no input `%s`", s.Name, task.Name, name))
		}
		for _, name := range b.Duplicate {
			c.add(diag.Errorf(diag.Schema, "step `%s` binds input `%s` more than once", s.Name, name))
		}
	}
}

// semanticPass checks names and references and reports dependency cycles.
func (c *checker) semanticPass() {
	seen := make(map[string]bool)
	for _, s := range c.res.Steps {
		if seen[s.Name] {
			c.add(diag.Errorf(diag.Semantic, "duplicate step name `%s`", s.Name))
		}
		seen[s.Name] = true
	}

	cat := c.res.Catalog
	for _, s := range c.unique {
		if s.Fixed == nil {
			continue
		}
		if _, ok := cat.Task(s.Fixed.Task); !ok {
			c.add(diag.Errorf(diag.Semantic, "step `%s` uses unknown task `%s`", s.Name, s.Fixed.Task))
		}

		for _, ref := range s.Fixed.Refs() {
			switch ref.Kind {
			case model.RefInvalid:
				c.add(diag.Errorf(diag.Semantic, "step `%s` has malformed reference `%s`", s.Name, ref.Raw))
			case model.RefParam:
				if _, ok := cat.Parameter(ref.Param); !ok {
					c.add(diag.Errorf(diag.Semantic, "step `%s` references unknown parameter `%s`", s.Name, ref.Param))
				}
			case model.RefStep:
				c.checkStepRef(s, ref)
			}
		}
	}

	g := dag.Build(c.unique)
	c.res.Graph = g
	for _, cycle := range g.FindCycles() {
		c.add(diag.Errorf(diag.Semantic, "dependency cycle between steps %s", quoteList(cycle)))
	}
}

func (c *checker) checkStepRef(s *model.Step, ref model.Ref) {
	if ref.Step == s.Name {
		c.add(diag.Errorf(diag.Semantic, "step `%s` references its own output `%s`", s.Name, ref.Output))
		return
	}
	up, ok := c.byName[ref.Step]
	if !ok {
		c.add(diag.Errorf(diag.Semantic, "step `%s` references unknown step `%s`", s.Name, ref.Step))
		return
	}
	if up.Fixed == nil {
		return
	}
	task, ok := c.res.Catalog.Task(up.Fixed.Task)
	if !ok {
		return
	}
	if _, ok := task.Output(ref.Output); !ok {
		c.add(diag.Errorf(diag.Semantic, "step `%s` references unknown output `%s` of step `%s` (task `%s`)",
			s.Name, ref.Output, ref.Step, task.Name))
	}
}

// typePass registers custom types, then checks every type reference, default,
// literal binding and reference binding.
func (c *checker) typePass() {
	c.registerTypes()

	for _, p := range c.res.Catalog.Parameters() {
		where := fmt.Sprintf("parameter `%s`", p.Name)
		if p.Explicit && !c.checkTypeRef(where, p.Type) {
			continue
		}
		if p.HasDefault {
			if _, err := c.reg.Coerce(p.Default, p.Type); err != nil {
				c.add(diag.Errorf(diag.TypeErr, "%s default: %v", where, err))
			}
		}
	}

	for _, task := range c.res.Catalog.Tasks() {
		for _, in := range task.Inputs {
			where := fmt.Sprintf("task `%s` input `%s`", task.Name, in.Name)
			if !c.checkTypeRef(where, in.Type) || !in.HasDefault {
				continue
			}
			if _, err := c.reg.Coerce(in.Default, in.Type); err != nil {
				c.add(diag.Errorf(diag.TypeErr, "%s default: %v", where, err))
			}
		}
		for _, out := range task.Outputs {
			c.checkTypeRef(fmt.Sprintf("task `%s` output `%s`", task.Name, out.Name), out.Type)
		}
	}

	for _, s := range c.unique {
		b, ok := c.res.Bindings[s.Name]
		if !ok {
			continue
		}
		for _, arg := range b.Args {
			c.checkBinding(s, arg)
		}
		for _, name := range b.Missing {
			c.add(diag.Errorf(diag.TypeErr, "step `%s`: required input `%s` of task `%s` is not bound", s.Name, name, s.Fixed.Task))
		}
	}
}

func (c *checker) registerTypes() {
	type declared struct {
		name string
		s    *types.Structure
	}
	var decls []declared

	for _, e := range c.doc.Types() {
		name, ok := e.Key.(string)
		if !ok || document.IsComment(name) {
			continue
		}
		s, err := types.ParseStructure(e.Value)
		if err != nil {
			c.add(diag.Errorf(diag.TypeErr, "type `%s`: %v", name, err))
			continue
		}
		if types.IsBuiltin(name) {
			c.add(diag.Errorf(diag.TypeErr, "type `%s` shadows a builtin type", name))
			continue
		}
		if err := c.reg.Register(name, types.KindStructured, s); err != nil {
			c.add(diag.Errorf(diag.TypeErr, "type `%s`: %v", name, err))
			continue
		}
		decls = append(decls, declared{name: name, s: s})
	}
	c.reg.Freeze()

	for _, d := range decls {
		c.checkTypeRef(fmt.Sprintf("type `%s`", d.name), types.Expr{Inline: d.s})
	}
}

// checkTypeRef reports unknown and retired type names used by e. It returns
// false when any name is unknown.
func (c *checker) checkTypeRef(where string, e types.Expr) bool {
	if e.IsUntyped() {
		return true
	}
	ok := true
	for _, name := range e.References() {
		if target, retired := c.reg.Retired(name); retired {
			c.add(diag.Warnf(diag.TypeErr, "%s uses deprecated type `%s`, treated as `%s`", where, name, target))
			continue
		}
		if _, err := c.reg.Resolve(name); err != nil {
			c.add(diag.Errorf(diag.TypeErr, "%s uses unknown type `%s`", where, name))
			ok = false
		}
	}
	return ok
}

func (c *checker) resolvable(e types.Expr) bool {
	if e.IsUntyped() {
		return true
	}
	for _, name := range e.References() {
		if _, err := c.reg.Resolve(name); err != nil {
			return false
		}
	}
	return true
}

func (c *checker) checkBinding(s *model.Step, arg catalog.BoundArg) {
	in := arg.Input
	if !c.resolvable(in.Type) {
		return
	}
	where := fmt.Sprintf("step `%s` input `%s`", s.Name, in.Name)

	if str, ok := arg.Value.(string); ok {
		if ref, isRef := model.ParseRef(str); isRef {
			c.checkRefType(where, in, ref)
			return
		}
	}

	if len(model.Refs(arg.Value)) > 0 {
		if !c.reg.AcceptsContainer(arg.Value, in.Type) {
			c.add(diag.Errorf(diag.TypeErr, "%s expects %s, got %s", where, in.Type, document.KindOf(arg.Value)))
		}
		return
	}

	if _, err := c.reg.Coerce(arg.Value, in.Type); err != nil {
		c.add(diag.Errorf(diag.TypeErr, "%s: %v", where, err))
	}
}

func (c *checker) checkRefType(where string, in *catalog.Input, ref model.Ref) {
	switch ref.Kind {
	case model.RefParam:
		p, ok := c.res.Catalog.Parameter(ref.Param)
		if !ok || !c.resolvable(p.Type) {
			return
		}
		if !c.reg.Assignable(p.Type, in.Type) {
			c.add(diag.Errorf(diag.TypeErr, "%s expects %s, parameter `%s` is %s", where, in.Type, p.Name, p.Type))
		}
	case model.RefStep:
		up, ok := c.byName[ref.Step]
		if !ok || up.Fixed == nil || ref.Step == "" {
			return
		}
		task, ok := c.res.Catalog.Task(up.Fixed.Task)
		if !ok {
			return
		}
		out, ok := task.Output(ref.Output)
		if !ok || !c.resolvable(out.Type) {
			return
		}
		if !c.reg.Assignable(out.Type, in.Type) {
			c.add(diag.Errorf(diag.TypeErr, "%s expects %s, output `%s.%s` is %s", where, in.Type, ref.Step, ref.Output, out.Type))
		}
	}
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}
