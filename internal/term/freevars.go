package term

import (
	set "github.com/hashicorp/go-set/v3"
)

// visitor receives the immediate structure of an expression: subexpressions,
// binders it introduces and level arguments it carries.
type visitor struct {
	expr   func(Expr)
	binder func(*Binding)
	sort   func(Sort)
}

func (v *visitor) visitLink(l *DependentLink) {
	for ; l != nil; l = l.next {
		if v.binder != nil {
			v.binder(l.binding)
		}
		if l.typed {
			if t := l.binding.typ; t != nil {
				v.expr(t)
			}
		}
	}
}

func (v *visitor) visitSort(s Sort) {
	if v.sort != nil {
		v.sort(s)
	}
}

func (v *visitor) visitAll(es []Expr) {
	for _, e := range es {
		v.expr(e)
	}
}

func (v *visitor) visitPatterns(ps []Pattern) {
	for _, b := range PatternBindings(ps) {
		if v.binder != nil {
			v.binder(b)
		}
		if b.typ != nil {
			v.expr(b.typ)
		}
	}
}

// children calls v for the immediate parts of e.
func (v *visitor) children(e Expr) {
	switch e := e.(type) {
	case *FunCall:
		v.visitSort(e.Levels)
		v.visitAll(e.Args)
	case *ConCall:
		v.visitSort(e.Levels)
		v.visitAll(e.DataArgs)
		v.visitAll(e.Args)
	case *DataCall:
		v.visitSort(e.Levels)
		v.visitAll(e.Args)
	case *ClassCall:
		v.visitSort(e.Levels)
		if v.binder != nil {
			v.binder(e.this)
		}
		for _, impl := range e.impls {
			v.expr(impl.Expr)
		}
	case *FieldCall:
		v.expr(e.Arg)
	case *New:
		v.expr(e.Call)
	case *Lam:
		v.visitLink(e.Param)
		v.expr(e.Body)
	case *Pi:
		v.visitLink(e.Param)
		v.expr(e.Cod)
	case *Sigma:
		v.visitLink(e.Params)
	case *Tuple:
		v.visitAll(e.Fields)
		if e.Type != nil {
			v.expr(e.Type)
		}
	case *Proj:
		v.expr(e.Tuple)
	case *App:
		v.expr(e.Fun)
		v.expr(e.Arg)
	case *Universe:
		v.visitSort(e.Sort)
	case *Let:
		for _, c := range e.Clauses {
			if v.binder != nil {
				v.binder(c.Binding)
			}
			v.expr(c.Expr)
		}
		v.expr(e.Body)
	case *Case:
		v.visitAll(e.Args)
		v.visitLink(e.Params)
		if e.Result != nil {
			v.expr(e.Result)
		}
		for _, c := range e.Body.Clauses {
			v.visitPatterns(c.Patterns)
			if c.Body != nil {
				v.expr(c.Body)
			}
		}
	case *ErrorExpr:
		if e.Expr != nil {
			v.expr(e.Expr)
		}
	}
}

// Children calls f for every immediate subexpression of e, including the
// types of the binders e introduces.
func Children(e Expr, f func(Expr)) {
	v := visitor{expr: f}
	v.children(e)
}

// collect walks e and records referenced and bound variables.
func collect(e Expr, refs, bound *set.Set[BindingID]) {
	var v visitor
	v.expr = func(x Expr) {
		if r, ok := x.(*Ref); ok {
			if refs != nil {
				refs.Insert(r.Binding.id)
			}
			return
		}
		v.children(x)
	}
	if bound != nil {
		v.binder = func(b *Binding) { bound.Insert(b.id) }
	}
	v.expr(e)
}

// FreeBindings returns the variables referenced in e but not bound inside it.
// Binders are unique, so a variable is free iff no binder of e introduces it.
func FreeBindings(e Expr) *set.Set[BindingID] {
	refs := set.New[BindingID](0)
	bound := set.New[BindingID](0)
	collect(e, refs, bound)
	free := set.New[BindingID](refs.Size())
	for _, id := range refs.Slice() {
		if !bound.Contains(id) {
			free.Insert(id)
		}
	}
	return free
}

// BoundBindings returns every variable introduced by a binder inside e.
func BoundBindings(e Expr) *set.Set[BindingID] {
	bound := set.New[BindingID](0)
	collect(e, nil, bound)
	return bound
}

// Occurs reports whether e refers to the variable id.
func Occurs(e Expr, id BindingID) bool {
	found := false
	var v visitor
	v.expr = func(x Expr) {
		if found {
			return
		}
		if r, ok := x.(*Ref); ok {
			found = r.Binding.id == id
			return
		}
		v.children(x)
	}
	v.expr(e)
	return found
}

// OccursHole reports whether e mentions the metavariable hv.
func OccursHole(e Expr, hv *InferenceVar) bool {
	found := false
	var v visitor
	v.expr = func(x Expr) {
		if found {
			return
		}
		if h, ok := x.(*Hole); ok {
			found = h.Var == hv
			return
		}
		v.children(x)
	}
	v.expr(e)
	return found
}

// mentions reports whether substituting s into e can change it.
func (s *Substitution) mentions(e Expr) bool {
	found := false
	var v visitor
	v.expr = func(x Expr) {
		if found {
			return
		}
		if r, ok := x.(*Ref); ok {
			_, found = s.Exprs[r.Binding.id]
			return
		}
		v.children(x)
	}
	if len(s.Levels) > 0 {
		v.sort = func(so Sort) {
			if so.PLevel.Var != nil && hasLevel(s.Levels, so.PLevel.Var) ||
				so.HLevel.Var != nil && hasLevel(s.Levels, so.HLevel.Var) {
				found = true
			}
		}
	}
	v.expr(e)
	return found
}

func hasLevel(ls LevelSubst, v *LevelVar) bool {
	_, ok := ls[v]
	return ok
}
