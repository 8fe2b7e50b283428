package termination

import (
	"strings"

	"github.com/funvibe/funcore/internal/term"
)

// Step is one call site on a path of the call graph.
type Step struct {
	Caller *term.FunctionDef
	Call   *term.FunCall
}

func (s Step) String() string {
	return s.Caller.Name() + " -> " + s.Call.String()
}

// CallMatrix is an edge of the call graph from Domain to Codomain. A direct
// call has a single step; a composite edge lists the calls it was built from.
type CallMatrix struct {
	Domain   *term.FunctionDef
	Codomain *term.FunctionDef
	Matrix   *Matrix
	Steps    []Step
}

func (c *CallMatrix) Composite() bool { return len(c.Steps) > 1 }

func (c *CallMatrix) Label() string {
	parts := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

// Then is the edge that follows c and then next.
func (c *CallMatrix) Then(next *CallMatrix) *CallMatrix {
	steps := make([]Step, 0, len(c.Steps)+len(next.Steps))
	steps = append(append(steps, c.Steps...), next.Steps...)
	return &CallMatrix{
		Domain:   c.Domain,
		Codomain: next.Codomain,
		Matrix:   Compose(c.Matrix, next.Matrix),
		Steps:    steps,
	}
}

// view says that a parameter of the caller is known to have the shape of
// pattern, up to rel.
type view struct {
	param   int
	pattern term.Pattern
	rel     Rel
}

type collector struct {
	caller *term.FunctionDef
	group  map[*term.FunctionDef]bool
	out    []*CallMatrix
}

// CollectCalls returns the matrices of all calls between members of group.
func CollectCalls(group []*term.FunctionDef) []*CallMatrix {
	members := make(map[*term.FunctionDef]bool, len(group))
	for _, d := range group {
		members[d] = true
	}
	var out []*CallMatrix
	for _, d := range group {
		c := &collector{caller: d, group: members}
		params := d.Parameters().Links()
		if body := d.ElimBody(); body != nil {
			for _, cl := range body.Clauses {
				var views []view
				for j, p := range cl.Patterns {
					if j < len(params) {
						views = append(views, view{param: j, pattern: p, rel: Equal})
					}
				}
				c.walk(cl.Body, views)
			}
		} else if d.Body() != nil {
			views := make([]view, len(params))
			for j, l := range params {
				views[j] = view{param: j, pattern: &term.VarPattern{Binding: l.Binding()}, rel: Equal}
			}
			c.walk(d.Body(), views)
		}
		out = append(out, c.out...)
	}
	return out
}

func (c *collector) walk(e term.Expr, views []view) {
	switch e := e.(type) {
	case nil:
		return
	case *term.FunCall:
		if c.group[e.Def] {
			c.out = append(c.out, c.matrix(e, views))
		}
	case *term.Case:
		for _, a := range e.Args {
			c.walk(a, views)
		}
		if e.Result != nil {
			c.walk(e.Result, views)
		}
		for _, cl := range e.Body.Clauses {
			c.walk(cl.Body, caseViews(e.Args, cl.Patterns, views))
		}
		return
	}
	term.Children(e, func(x term.Expr) { c.walk(x, views) })
}

// caseViews extends views inside a case clause: a scrutinee related to a
// parameter makes the clause pattern a view of that parameter.
func caseViews(args []term.Expr, patterns []term.Pattern, views []view) []view {
	out := append([]view(nil), views...)
	for i, p := range patterns {
		if i >= len(args) {
			break
		}
		for _, v := range views {
			if r := relate(args[i], v.pattern).Then(v.rel); r != Unknown {
				out = append(out, view{param: v.param, pattern: p, rel: r})
			}
		}
	}
	return out
}

func (c *collector) matrix(call *term.FunCall, views []view) *CallMatrix {
	m := NewMatrix(call.Def.Parameters().Size(), c.caller.Parameters().Size())
	for i, a := range call.Args {
		if i >= m.Rows() {
			break
		}
		for _, v := range views {
			if r := relate(a, v.pattern).Then(v.rel); r != Unknown {
				m.Improve(i, v.param, r)
			}
		}
	}
	return &CallMatrix{
		Domain:   c.caller,
		Codomain: call.Def,
		Matrix:   m,
		Steps:    []Step{{Caller: c.caller, Call: call}},
	}
}

// relate compares an argument with the pattern a parameter was matched
// against: Equal when the argument rebuilds the pattern, Less when it is a
// proper part of it.
func relate(e term.Expr, p term.Pattern) Rel {
	switch p := p.(type) {
	case *term.VarPattern:
		if r, ok := e.(*term.Ref); ok && p.Binding != nil && r.Binding.ID() == p.Binding.ID() {
			return Equal
		}
	case *term.ConPattern:
		if sameShape(e, p) {
			return Equal
		}
		for _, a := range p.Args {
			if relate(e, a) != Unknown {
				return Less
			}
		}
	}
	return Unknown
}

func sameShape(e term.Expr, p *term.ConPattern) bool {
	switch e := e.(type) {
	case *term.ConCall:
		if e.Con != p.Con || len(e.Args) != len(p.Args) {
			return false
		}
		for i := range e.Args {
			if relate(e.Args[i], p.Args[i]) != Equal {
				return false
			}
		}
		return true
	case *term.IntegerLit:
		return p.Con == term.Zero && e.Value.Sign() == 0
	}
	return false
}
