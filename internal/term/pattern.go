package term

import "strings"

// Pattern is a clause pattern.
type Pattern interface {
	String() string
	isPattern()
}

// VarPattern binds the matched value. A nil Binding is a wildcard.
type VarPattern struct {
	Binding *Binding
}

// ConPattern matches a constructor and its arguments.
type ConPattern struct {
	Con  *Constructor
	Args []Pattern
}

func (*VarPattern) isPattern() {}
func (*ConPattern) isPattern() {}

func (p *VarPattern) String() string {
	if p.Binding == nil {
		return "_"
	}
	return p.Binding.Name()
}

func (p *ConPattern) String() string {
	if len(p.Args) == 0 {
		return p.Con.Name()
	}
	parts := make([]string, 0, len(p.Args)+1)
	parts = append(parts, p.Con.Name())
	for _, a := range p.Args {
		s := a.String()
		if c, ok := a.(*ConPattern); ok && len(c.Args) > 0 {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Clause is one branch of an elimination body.
type Clause struct {
	Patterns []Pattern
	Body     Expr
}

// ElimBody is a list of clauses tried in order; the first matching clause
// wins.
type ElimBody struct {
	Clauses []*Clause
}

func (c *Clause) String() string {
	ps := make([]string, len(c.Patterns))
	for i, p := range c.Patterns {
		ps[i] = p.String()
	}
	return "| " + strings.Join(ps, ", ") + " => " + exprString(c.Body)
}

// PatternBindings lists the variables bound by ps from left to right.
func PatternBindings(ps []Pattern) []*Binding {
	var out []*Binding
	var walk func(Pattern)
	walk = func(p Pattern) {
		switch p := p.(type) {
		case *VarPattern:
			if p.Binding != nil {
				out = append(out, p.Binding)
			}
		case *ConPattern:
			for _, a := range p.Args {
				walk(a)
			}
		}
	}
	for _, p := range ps {
		walk(p)
	}
	return out
}

// PatternExpr converts a pattern to the expression it matches. Wildcards
// become fresh hidden variables.
func PatternExpr(p Pattern) Expr {
	switch p := p.(type) {
	case *VarPattern:
		if p.Binding == nil {
			return NewRef(NewHiddenBinding("_", nil))
		}
		return NewRef(p.Binding)
	case *ConPattern:
		args := make([]Expr, len(p.Args))
		for i, a := range p.Args {
			args[i] = PatternExpr(a)
		}
		return &ConCall{Con: p.Con, Args: args}
	}
	panic("term: unknown pattern")
}
