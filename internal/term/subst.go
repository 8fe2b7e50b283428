package term

import "maps"

// Substitution maps variables to expressions and level variables to levels.
type Substitution struct {
	Exprs  map[BindingID]Expr
	Levels LevelSubst
}

func NewSubstitution() *Substitution {
	return &Substitution{Exprs: make(map[BindingID]Expr)}
}

func (s *Substitution) Add(b *Binding, e Expr) *Substitution {
	s.Exprs[b.id] = e
	return s
}

func (s *Substitution) AddLevels(ls LevelSubst) *Substitution {
	if len(ls) == 0 {
		return s
	}
	if s.Levels == nil {
		s.Levels = make(LevelSubst, len(ls))
	}
	maps.Copy(s.Levels, ls)
	return s
}

func (s *Substitution) Lookup(b *Binding) (Expr, bool) {
	e, ok := s.Exprs[b.id]
	return e, ok
}

func (s *Substitution) IsEmpty() bool {
	return s == nil || len(s.Exprs) == 0 && len(s.Levels) == 0
}

// Subst applies s to e. Every binder crossed on the way to a replaced
// variable is renamed to a fresh binding, so no free variable of a
// replacement can be captured. Subtrees that s does not touch are returned
// as is, and so is e when nothing changes.
func Subst(e Expr, s *Substitution) Expr {
	if s.IsEmpty() || e == nil {
		return e
	}
	st := &substituter{exprs: maps.Clone(s.Exprs), levels: s.Levels}
	return st.expr(e)
}

// Substitute is Subst over a binding-keyed map and a level substitution.
func Substitute(e Expr, exprs map[*Binding]Expr, levels LevelSubst) Expr {
	s := NewSubstitution().AddLevels(levels)
	for b, x := range exprs {
		s.Add(b, x)
	}
	return Subst(e, s)
}

// SubstOne replaces b with x in e.
func SubstOne(e Expr, b *Binding, x Expr) Expr {
	return Subst(e, NewSubstitution().Add(b, x))
}

// SubstLink renames every parameter of l, substituting s into the types. The
// returned substitution extends s with the renaming and is meant for the
// scope of l.
func SubstLink(l *DependentLink, s *Substitution) (*DependentLink, *Substitution) {
	ext := &Substitution{Exprs: maps.Clone(s.Exprs), Levels: s.Levels}
	if ext.Exprs == nil {
		ext.Exprs = make(map[BindingID]Expr)
	}
	st := &substituter{exprs: ext.Exprs, levels: s.Levels}
	return st.link(l), ext
}

// SubstSort applies the level part of s.
func SubstSort(so Sort, s *Substitution) Sort {
	if s == nil {
		return so
	}
	return so.Subst(s.Levels)
}

type substituter struct {
	exprs  map[BindingID]Expr
	levels LevelSubst
	holes  func(*InferenceVar) (Expr, bool)
}

// ResolveHoles replaces every solved metavariable of e by its solution and
// applies the level substitution.
func ResolveHoles(e Expr, solution func(*InferenceVar) (Expr, bool), levels LevelSubst) Expr {
	if e == nil {
		return nil
	}
	st := &substituter{exprs: make(map[BindingID]Expr), levels: levels, holes: solution}
	return st.expr(e)
}

// ResolveHolesElim is ResolveHoles for an elimination body.
func ResolveHolesElim(b *ElimBody, solution func(*InferenceVar) (Expr, bool), levels LevelSubst) *ElimBody {
	if b == nil {
		return nil
	}
	st := &substituter{exprs: make(map[BindingID]Expr), levels: levels, holes: solution}
	return st.elimBody(b)
}

// touches reports whether the walk can change e.
func (st *substituter) touches(e Expr) bool {
	return st.holes != nil || st.subst().mentions(e)
}

func (st *substituter) subst() *Substitution {
	return &Substitution{Exprs: st.exprs, Levels: st.levels}
}

// rename allocates a fresh copy of b with the substituted type and maps b to
// it for the rest of the walk. Bindings are unique, so the mapping never
// shadows an outer one and is left in place.
func (st *substituter) rename(b *Binding, typ Expr) *Binding {
	nb := b.Rename(typ)
	st.exprs[b.id] = NewRef(nb)
	return nb
}

func (st *substituter) link(l *DependentLink) *DependentLink {
	if l == nil {
		return nil
	}
	var nodes []*DependentLink
	for n := l; n != nil; {
		group := []*DependentLink{}
		for ; !n.typed; n = n.next {
			group = append(group, n)
		}
		group = append(group, n)
		n = n.next
		var typ Expr
		if t := n0type(group); t != nil {
			typ = st.expr(t)
		}
		for _, g := range group {
			nodes = append(nodes, &DependentLink{
				binding:  st.rename(g.binding, typ),
				explicit: g.explicit,
				typed:    g.typed,
			})
		}
	}
	for i := 0; i+1 < len(nodes); i++ {
		nodes[i].next = nodes[i+1]
	}
	return nodes[0]
}

func n0type(group []*DependentLink) Expr {
	return group[len(group)-1].binding.Type()
}

func (st *substituter) all(es []Expr) ([]Expr, bool) {
	var out []Expr
	for i, e := range es {
		ne := st.expr(e)
		if ne != e && out == nil {
			out = make([]Expr, len(es))
			copy(out, es[:i])
		}
		if out != nil {
			out[i] = ne
		}
	}
	if out == nil {
		return es, false
	}
	return out, true
}

func (st *substituter) sort(s Sort) (Sort, bool) {
	if len(st.levels) == 0 {
		return s, false
	}
	ns := s.Subst(st.levels)
	return ns, !ns.Equal(s)
}

func (st *substituter) expr(e Expr) Expr {
	switch e := e.(type) {
	case *Ref:
		if r, ok := st.exprs[e.Binding.id]; ok {
			return r
		}
		return e
	case *FunCall:
		args, c1 := st.all(e.Args)
		lv, c2 := st.sort(e.Levels)
		if !c1 && !c2 {
			return e
		}
		return &FunCall{Def: e.Def, Levels: lv, Args: args}
	case *ConCall:
		dargs, c1 := st.all(e.DataArgs)
		args, c2 := st.all(e.Args)
		lv, c3 := st.sort(e.Levels)
		if !c1 && !c2 && !c3 {
			return e
		}
		return &ConCall{Con: e.Con, Levels: lv, DataArgs: dargs, Args: args}
	case *DataCall:
		args, c1 := st.all(e.Args)
		lv, c2 := st.sort(e.Levels)
		if !c1 && !c2 {
			return e
		}
		return &DataCall{Data: e.Data, Levels: lv, Args: args}
	case *ClassCall:
		if !st.touches(e) {
			return e
		}
		lv, _ := st.sort(e.Levels)
		cc := &ClassCall{Class: e.Class, Levels: lv}
		cc.this = NewLazyBinding(e.this.name, func() Expr { return cc })
		st.exprs[e.this.id] = NewRef(cc.this)
		cc.impls = make([]Implementation, len(e.impls))
		for i, impl := range e.impls {
			cc.impls[i] = Implementation{Field: impl.Field, Expr: st.expr(impl.Expr)}
		}
		return cc
	case *FieldCall:
		arg := st.expr(e.Arg)
		if arg == e.Arg {
			return e
		}
		return MakeFieldCall(e.Field, arg)
	case *New:
		call := st.expr(e.Call)
		if call == Expr(e.Call) {
			return e
		}
		return &New{Call: call.(*ClassCall)}
	case *Lam:
		if !st.touches(e) {
			return e
		}
		p := st.link(e.Param)
		return &Lam{Param: p, Body: st.expr(e.Body)}
	case *Pi:
		if !st.touches(e) {
			return e
		}
		p := st.link(e.Param)
		return &Pi{Param: p, Cod: st.expr(e.Cod)}
	case *Sigma:
		if !st.touches(e) {
			return e
		}
		return &Sigma{Params: st.link(e.Params)}
	case *Tuple:
		fields, c1 := st.all(e.Fields)
		var typ *Sigma
		c2 := false
		if e.Type != nil {
			nt := st.expr(e.Type)
			typ, c2 = nt.(*Sigma), nt != Expr(e.Type)
		}
		if !c1 && !c2 {
			return e
		}
		return &Tuple{Fields: fields, Type: typ}
	case *Proj:
		t := st.expr(e.Tuple)
		if t == e.Tuple {
			return e
		}
		return &Proj{Tuple: t, Index: e.Index}
	case *App:
		f, a := st.expr(e.Fun), st.expr(e.Arg)
		if f == e.Fun && a == e.Arg {
			return e
		}
		return &App{Fun: f, Arg: a}
	case *Universe:
		s, ok := st.sort(e.Sort)
		if !ok {
			return e
		}
		return &Universe{Sort: s}
	case *Let:
		if !st.touches(e) {
			return e
		}
		clauses := make([]*LetClause, len(e.Clauses))
		for i, c := range e.Clauses {
			x := st.expr(c.Expr)
			var typ Expr
			if t := c.Binding.Type(); t != nil {
				typ = st.expr(t)
			}
			clauses[i] = &LetClause{Binding: st.rename(c.Binding, typ), Expr: x}
		}
		return &Let{Clauses: clauses, Body: st.expr(e.Body)}
	case *Case:
		if !st.touches(e) {
			return e
		}
		args, _ := st.all(e.Args)
		params := st.link(e.Params)
		var result Expr
		if e.Result != nil {
			result = st.expr(e.Result)
		}
		return &Case{Args: args, Params: params, Result: result, Body: st.elimBody(e.Body)}
	case *ErrorExpr:
		if e.Expr == nil {
			return e
		}
		x := st.expr(e.Expr)
		if x == e.Expr {
			return e
		}
		return &ErrorExpr{Expr: x, Goal: e.Goal, IsGoal: e.IsGoal}
	case *Hole:
		if st.holes != nil {
			if sol, ok := st.holes(e.Var); ok {
				return st.expr(sol)
			}
		}
		return e
	case *IntegerLit, *InstanceHole:
		return e
	}
	panic("term: unknown expression in substitution")
}

func (st *substituter) elimBody(b *ElimBody) *ElimBody {
	out := &ElimBody{Clauses: make([]*Clause, len(b.Clauses))}
	for i, c := range b.Clauses {
		ps := make([]Pattern, len(c.Patterns))
		for j, p := range c.Patterns {
			ps[j] = st.pattern(p)
		}
		var body Expr
		if c.Body != nil {
			body = st.expr(c.Body)
		}
		out.Clauses[i] = &Clause{Patterns: ps, Body: body}
	}
	return out
}

func (st *substituter) pattern(p Pattern) Pattern {
	switch p := p.(type) {
	case *VarPattern:
		if p.Binding == nil {
			return p
		}
		var typ Expr
		if t := p.Binding.Type(); t != nil {
			typ = st.expr(t)
		}
		return &VarPattern{Binding: st.rename(p.Binding, typ)}
	case *ConPattern:
		args := make([]Pattern, len(p.Args))
		for i, a := range p.Args {
			args[i] = st.pattern(a)
		}
		return &ConPattern{Con: p.Con, Args: args}
	}
	return p
}
