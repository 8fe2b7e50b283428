package order

import (
	"github.com/funvibe/funcore/internal/instance"
	"github.com/funvibe/funcore/internal/term"
)

// References collects the definitions e refers to. Constructors and fields
// count as their data type and class. Instance arguments count as their
// class; classes is told about them separately.
func References(e term.Expr, defs, classes func(term.Definition)) {
	var walk func(term.Expr)
	walk = func(e term.Expr) {
		switch e := e.(type) {
		case nil:
			return
		case *term.FunCall:
			defs(e.Def)
		case *term.ConCall:
			defs(e.Con.Data)
		case *term.DataCall:
			defs(e.Data)
		case *term.ClassCall:
			defs(e.Class)
		case *term.FieldCall:
			defs(e.Field.Class)
		case *term.InstanceHole:
			defs(e.Class)
			if classes != nil {
				classes(e.Class)
			}
		case *term.Case:
			for _, c := range e.Body.Clauses {
				patternRefs(c.Patterns, defs)
			}
		}
		term.Children(e, walk)
	}
	walk(e)
}

func patternRefs(ps []term.Pattern, defs func(term.Definition)) {
	for _, p := range ps {
		if c, ok := p.(*term.ConPattern); ok {
			defs(c.Con.Data)
			patternRefs(c.Args, defs)
		}
	}
}

// unitRefs walks everything a unit mentions: its header, its body and, for
// data types and classes, constructors and fields.
func unitRefs(u *term.Unit, defs, classes func(term.Definition)) {
	link := func(l *term.DependentLink) {
		for _, n := range l.Links() {
			if n.IsTyped() {
				References(n.Type(), defs, classes)
			}
		}
	}
	link(u.Def.Parameters())
	switch d := u.Def.(type) {
	case *term.FunctionDef:
		References(d.Result, defs, classes)
	case *term.DataDef:
		for _, c := range d.Constructors {
			link(c.Parameters())
		}
	case *term.ClassDef:
		for _, f := range d.Fields {
			References(f.Type, defs, classes)
		}
	}
	References(u.Body, defs, classes)
	if u.Elim != nil {
		for _, c := range u.Elim.Clauses {
			patternRefs(c.Patterns, defs)
			References(c.Body, defs, classes)
		}
	}
}

// Units orders units for checking and returns the waves of groups. A unit
// that takes an instance argument of a class depends on every instance of
// that class among units.
func Units(units []*term.Unit) [][][]*term.Unit {
	byDef := make(map[term.Definition]*term.Unit, len(units))
	instances := make(map[*term.ClassDef][]*term.Unit)
	g := New[*term.Unit]()
	for _, u := range units {
		byDef[u.Def] = u
		g.Add(u)
		if f, ok := u.Def.(*term.FunctionDef); ok && f.Kind == term.KindInstance {
			if c := instance.InstanceClass(f); c != nil {
				instances[c] = append(instances[c], u)
			}
		}
	}
	for _, u := range units {
		use := func(d term.Definition) {
			if v, ok := byDef[d]; ok && v != u {
				g.Edge(u, v)
			}
		}
		class := func(d term.Definition) {
			if c, ok := d.(*term.ClassDef); ok {
				for _, inst := range instances[c] {
					if inst != u {
						g.Edge(u, inst)
					}
				}
			}
		}
		unitRefs(u, use, class)
	}
	return g.Waves()
}
