package types

// Assignable reports whether a value of type from may flow into an input of
// type to. Identical types, integer to float, list structures to list, field
// structures to mapping and membership of a union are accepted. Untyped
// sources match anything.
func (r *Registry) Assignable(from, to Expr) bool {
	return r.assignable(from, to, 0)
}

func (r *Registry) assignable(from, to Expr, depth int) bool {
	if depth > maxDepth {
		return false
	}
	if from.IsUntyped() || to.IsUntyped() {
		return true
	}

	from = r.unalias(from, depth)
	to = r.unalias(to, depth)

	if from.Inline == nil && to.Inline == nil && r.Canonical(from.Name) == r.Canonical(to.Name) {
		return true
	}

	fs, fb, ferr := r.structureOf(from)
	ts, tb, terr := r.structureOf(to)
	if ferr != nil || terr != nil {
		// Unknown names are reported separately; avoid a second issue.
		return true
	}

	// A union source must fit the target in every case.
	if fs != nil && fs.Form == FormUnion {
		for _, m := range fs.Members {
			if !r.assignable(m, to, depth+1) {
				return false
			}
		}
		return true
	}
	if ts != nil && ts.Form == FormUnion {
		for _, m := range ts.Members {
			if r.assignable(from, m, depth+1) {
				return true
			}
		}
		return false
	}

	switch {
	case fs == nil && ts == nil:
		return fb == tb || (fb == Integer && tb == Float)
	case fs != nil && ts == nil:
		return (fs.Form == FormList && tb == List) || (fs.Form == FormFields && tb == Mapping)
	case fs == nil && ts != nil:
		return false
	}

	if fs.Form != ts.Form {
		return false
	}
	switch fs.Form {
	case FormList:
		return r.assignable(fs.Elem, ts.Elem, depth+1)
	case FormFields:
		for _, tf := range ts.Fields {
			found := false
			for _, ff := range fs.Fields {
				if ff.Name == tf.Name {
					if !r.assignable(ff.Type, tf.Type, depth+1) {
						return false
					}
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return false
}

// unalias follows alias declarations to the expression they name.
func (r *Registry) unalias(e Expr, depth int) Expr {
	for i := depth; i <= maxDepth; i++ {
		s, _, err := r.structureOf(e)
		if err != nil || s == nil || s.Form != FormAlias {
			return e
		}
		e = s.Elem
	}
	return e
}
