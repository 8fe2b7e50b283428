package term

import (
	"strconv"
	"strings"
)

// A plain debugging printer. Diagnostics carry expressions, not text, and
// render them on demand.

func exprString(e Expr) string {
	if e == nil {
		return "_"
	}
	var p printer
	p.expr(e)
	return p.sb.String()
}

type printer struct {
	sb strings.Builder
}

func (p *printer) write(ss ...string) {
	for _, s := range ss {
		p.sb.WriteString(s)
	}
}

func isAtom(e Expr) bool {
	switch e := e.(type) {
	case *Ref, *Universe, *IntegerLit, *ErrorExpr, *Hole, *InstanceHole, *Tuple, *Proj, *FieldCall:
		return true
	case *FunCall:
		return len(e.Args) == 0
	case *ConCall:
		return len(e.Args) == 0
	case *DataCall:
		return len(e.Args) == 0
	case *ClassCall:
		return len(e.impls) == 0
	}
	return false
}

func (p *printer) arg(e Expr) {
	if isAtom(e) {
		p.expr(e)
		return
	}
	p.write("(")
	p.expr(e)
	p.write(")")
}

func (p *printer) call(name string, args []Expr) {
	p.write(name)
	for _, a := range args {
		p.write(" ")
		p.arg(a)
	}
}

func (p *printer) link(l *DependentLink) {
	p.write(l.String())
}

func (p *printer) expr(e Expr) {
	switch e := e.(type) {
	case *Ref:
		p.write(e.Binding.String())
	case *FunCall:
		p.call(e.Def.Name(), e.Args)
	case *ConCall:
		p.call(e.Con.Name(), e.Args)
	case *DataCall:
		p.call(e.Data.Name(), e.Args)
	case *ClassCall:
		p.write(e.Class.Name())
		if len(e.impls) > 0 {
			p.write(" {")
			for i, impl := range e.impls {
				if i > 0 {
					p.write(", ")
				}
				p.write(impl.Field.Name(), " => ")
				p.expr(impl.Expr)
			}
			p.write("}")
		}
	case *FieldCall:
		p.arg(e.Arg)
		p.write(".", e.Field.Name())
	case *New:
		p.write(`\new `)
		p.expr(e.Call)
	case *Lam:
		p.write(`\lam `)
		p.link(e.Param)
		p.write(" => ")
		p.expr(e.Body)
	case *Pi:
		if e.Param.Size() == 1 && e.Param.binding.hidden {
			p.arg(e.Param.Type())
		} else {
			p.write(`\Pi `)
			p.link(e.Param)
		}
		p.write(" -> ")
		p.expr(e.Cod)
	case *Sigma:
		p.write(`\Sigma`)
		if e.Params != nil {
			p.write(" ")
			p.link(e.Params)
		}
	case *Tuple:
		p.write("(")
		for i, f := range e.Fields {
			if i > 0 {
				p.write(", ")
			}
			p.expr(f)
		}
		p.write(")")
	case *Proj:
		p.arg(e.Tuple)
		p.write(".", strconv.Itoa(e.Index+1))
	case *App:
		p.expr(e.Fun)
		p.write(" ")
		p.arg(e.Arg)
	case *Universe:
		p.write(e.Sort.String())
	case *Let:
		p.write(`\let `)
		for i, c := range e.Clauses {
			if i > 0 {
				p.write(" | ")
			}
			p.write(c.Binding.Name(), " => ")
			p.expr(c.Expr)
		}
		p.write(` \in `)
		p.expr(e.Body)
	case *Case:
		p.write(`\case `)
		for i, a := range e.Args {
			if i > 0 {
				p.write(", ")
			}
			p.expr(a)
		}
		p.write(` \with {`)
		for _, c := range e.Body.Clauses {
			p.write(" ", c.String())
		}
		p.write(" }")
	case *IntegerLit:
		p.write(e.Value.String())
	case *ErrorExpr:
		if e.IsGoal {
			p.write("{?", e.Goal, "}")
		} else {
			p.write("{?error}")
		}
	case *Hole:
		p.write(e.Var.String())
	case *InstanceHole:
		p.write("{instance ", e.Class.Name(), "}")
	default:
		p.write("<unknown>")
	}
}

func (e *Ref) String() string          { return exprString(e) }
func (e *FunCall) String() string      { return exprString(e) }
func (e *ConCall) String() string      { return exprString(e) }
func (e *DataCall) String() string     { return exprString(e) }
func (e *ClassCall) String() string    { return exprString(e) }
func (e *FieldCall) String() string    { return exprString(e) }
func (e *New) String() string          { return exprString(e) }
func (e *Lam) String() string          { return exprString(e) }
func (e *Pi) String() string           { return exprString(e) }
func (e *Sigma) String() string        { return exprString(e) }
func (e *Tuple) String() string        { return exprString(e) }
func (e *Proj) String() string         { return exprString(e) }
func (e *App) String() string          { return exprString(e) }
func (e *Universe) String() string     { return exprString(e) }
func (e *Let) String() string          { return exprString(e) }
func (e *Case) String() string         { return exprString(e) }
func (e *IntegerLit) String() string   { return exprString(e) }
func (e *ErrorExpr) String() string    { return exprString(e) }
func (e *Hole) String() string         { return exprString(e) }
func (e *InstanceHole) String() string { return exprString(e) }
