// Package normalize computes weak head normal forms and full normal forms of
// core terms and explains why a term cannot reduce.
package normalize

import (
	"math/big"

	"github.com/funvibe/funcore/internal/term"
)

// State is what the normalizer needs to know about the checking session.
type State interface {
	// InProgress reports whether def is currently being checked; such
	// definitions are never unfolded.
	InProgress(def term.Definition) bool
	// Solution returns the solution of a metavariable, if it has one.
	Solution(v *term.InferenceVar) (term.Expr, bool)
}

// Static is a State with no definitions in progress and no solutions.
type Static struct{}

func (Static) InProgress(term.Definition) bool               { return false }
func (Static) Solution(*term.InferenceVar) (term.Expr, bool) { return nil, false }

type memoEntry struct {
	whnf     term.Expr
	decision term.Decision
	decided  bool
}

// Normalizer reduces terms. Results are memoized by expression identity;
// entries that depend on an unsolved metavariable are indexed by it and
// dropped by Invalidate. A Normalizer is not safe for concurrent use.
type Normalizer struct {
	state   State
	memo    map[term.Expr]*memoEntry
	blocked map[*term.InferenceVar][]term.Expr
}

func New(state State) *Normalizer {
	if state == nil {
		state = Static{}
	}
	return &Normalizer{
		state:   state,
		memo:    make(map[term.Expr]*memoEntry),
		blocked: make(map[*term.InferenceVar][]term.Expr),
	}
}

func (n *Normalizer) entry(e term.Expr) *memoEntry {
	m, ok := n.memo[e]
	if !ok {
		m = &memoEntry{}
		n.memo[e] = m
	}
	return m
}

// Invalidate forgets every memoized result that was blocked on v. It is
// called when v gets solved.
func (n *Normalizer) Invalidate(v *term.InferenceVar) {
	for _, e := range n.blocked[v] {
		delete(n.memo, e)
	}
	delete(n.blocked, v)
}

// Forget drops every memoized result. It is needed when solutions are
// withdrawn, since results computed through a solution are not indexed.
func (n *Normalizer) Forget() {
	clear(n.memo)
	clear(n.blocked)
}

func (n *Normalizer) remember(e, w term.Expr) {
	n.entry(e).whnf = w
	n.entry(w).whnf = w
	if h := n.blockingHole(w); h != nil {
		n.blocked[h] = append(n.blocked[h], e, w)
	}
}

func (n *Normalizer) blockingHole(w term.Expr) *term.InferenceVar {
	if h, ok := n.StuckExpression(w).(*term.Hole); ok {
		return h.Var
	}
	return nil
}

// WHNF reduces e until its head cannot reduce further. WHNF of a result
// returns the very same expression.
func (n *Normalizer) WHNF(e term.Expr) term.Expr {
	if m, ok := n.memo[e]; ok && m.whnf != nil {
		return m.whnf
	}
	w := e
	for {
		next, ok := n.step(w)
		if !ok {
			break
		}
		w = next
		if m, ok := n.memo[w]; ok && m.whnf != nil {
			w = m.whnf
			break
		}
	}
	n.remember(e, w)
	return w
}

// step performs one head reduction. The boolean is false when no rule
// applies.
func (n *Normalizer) step(e term.Expr) (term.Expr, bool) {
	switch e := e.(type) {
	case *term.Hole:
		return n.state.Solution(e.Var)
	case *term.App:
		fun := n.WHNF(e.Fun)
		if lam, ok := fun.(*term.Lam); ok {
			return beta(lam, e.Arg), true
		}
		if fun != e.Fun {
			return &term.App{Fun: fun, Arg: e.Arg}, true
		}
	case *term.Let:
		s := term.NewSubstitution()
		for _, c := range e.Clauses {
			s.Add(c.Binding, term.Subst(c.Expr, s))
		}
		return term.Subst(e.Body, s), true
	case *term.Proj:
		t := n.WHNF(e.Tuple)
		if tuple, ok := t.(*term.Tuple); ok && e.Index < len(tuple.Fields) {
			return tuple.Fields[e.Index], true
		}
		if t != e.Tuple {
			return &term.Proj{Tuple: t, Index: e.Index}, true
		}
	case *term.FieldCall:
		return n.stepField(e)
	case *term.FunCall:
		return n.unfold(e)
	case *term.Case:
		res := n.matchClauses(e.Body, e.Args)
		if res.clause != nil {
			return term.Subst(res.clause.Body, res.subst), true
		}
	case *term.ConCall:
		// Numerals built from constructors become literals.
		switch {
		case e.Con == term.Zero:
			return term.NewInt(0), true
		case e.Con == term.Suc && len(e.Args) == 1:
			if lit, ok := n.WHNF(e.Args[0]).(*term.IntegerLit); ok {
				return term.SucOf(lit), true
			}
		}
	}
	return nil, false
}

func beta(lam *term.Lam, arg term.Expr) term.Expr {
	p := lam.Param
	var rest term.Expr = lam.Body
	if p.Next() != nil {
		rest = &term.Lam{Param: p.Next(), Body: lam.Body}
	}
	return term.SubstOne(rest, p.Binding(), arg)
}

func (n *Normalizer) stepField(e *term.FieldCall) (term.Expr, bool) {
	if e.Field.Property {
		return nil, false
	}
	arg := n.WHNF(e.Arg)
	if r := term.MakeFieldCall(e.Field, arg); !isFieldCall(r) {
		return r, true
	}
	if ref, ok := arg.(*term.Ref); ok {
		if t := ref.Binding.Type(); t != nil {
			if cc, ok := n.WHNF(t).(*term.ClassCall); ok {
				if impl, ok := cc.ImplementationAt(e.Field, arg); ok {
					return impl, true
				}
			}
		}
	}
	if arg != e.Arg {
		return &term.FieldCall{Field: e.Field, Arg: arg}, true
	}
	return nil, false
}

func isFieldCall(e term.Expr) bool {
	_, ok := e.(*term.FieldCall)
	return ok
}

// unfoldable reports whether calls of def may be replaced by its body.
func (n *Normalizer) unfoldable(def *term.FunctionDef) bool {
	if def.Opaque || !def.HasBody() || def.Status() == term.StatusNonTerminating {
		return false
	}
	return !n.state.InProgress(def)
}

func (n *Normalizer) unfold(call *term.FunCall) (term.Expr, bool) {
	def := call.Def
	if def.Builtin != nil {
		args := make([]term.Expr, len(call.Args))
		for i, a := range call.Args {
			args[i] = n.WHNF(a)
		}
		if r, ok := def.Builtin(args); ok {
			return r, true
		}
	}
	if !n.unfoldable(def) {
		return nil, false
	}
	if body := def.ElimBody(); body != nil {
		res := n.matchClauses(body, call.Args)
		if res.clause == nil {
			return nil, false
		}
		res.subst.AddLevels(call.Levels.ToSubst())
		return term.Subst(res.clause.Body, res.subst), true
	}
	s := term.ParamSubst(def.Parameters(), call.Args).AddLevels(call.Levels.ToSubst())
	return term.Subst(def.Body(), s), true
}

// Decide classifies e without reducing it fully: Yes when e is in WHNF, No
// when a reduction rule applies, Maybe when reduction is blocked on an
// unsolved metavariable, an instance argument or a variable of unknown type.
func (n *Normalizer) Decide(e term.Expr) term.Decision {
	if m, ok := n.memo[e]; ok && m.decided {
		return m.decision
	}
	d := term.Yes
	if _, ok := n.step(e); ok {
		d = term.No
	} else {
		switch s := n.StuckExpression(e).(type) {
		case *term.Hole:
			d = term.Maybe
			n.blocked[s.Var] = append(n.blocked[s.Var], e)
		case *term.InstanceHole:
			d = term.Maybe
		case *term.Ref:
			if s.Binding.Type() == nil {
				d = term.Maybe
			}
		}
	}
	m := n.entry(e)
	m.decision, m.decided = d, true
	return d
}

// StuckExpression returns the innermost subterm that keeps e from reducing,
// or nil when e is a head normal form that is not blocked on anything.
func (n *Normalizer) StuckExpression(e term.Expr) term.Expr {
	w := e
	if m, ok := n.memo[e]; ok && m.whnf != nil {
		w = m.whnf
	}
	switch w := w.(type) {
	case *term.Hole:
		if sol, ok := n.state.Solution(w.Var); ok {
			return n.StuckExpression(n.WHNF(sol))
		}
		return w
	case *term.InstanceHole, *term.Ref, *term.ErrorExpr:
		return w
	case *term.App:
		return n.StuckExpression(n.WHNF(w.Fun))
	case *term.Proj:
		return n.StuckExpression(n.WHNF(w.Tuple))
	case *term.FieldCall:
		if w.Field.Property {
			return nil
		}
		return n.StuckExpression(n.WHNF(w.Arg))
	case *term.FunCall:
		if body := w.Def.ElimBody(); body != nil && n.unfoldable(w.Def) {
			return n.matchClauses(body, w.Args).stuck
		}
		if w.Def.Builtin != nil {
			for _, a := range w.Args {
				if s := n.StuckExpression(n.WHNF(a)); s != nil {
					return s
				}
			}
		}
	case *term.Case:
		return n.matchClauses(w.Body, w.Args).stuck
	}
	return nil
}

// Normalize computes the full normal form of e. Binders are renamed when
// their types change.
func (n *Normalizer) Normalize(e term.Expr) term.Expr {
	switch w := n.WHNF(e).(type) {
	case *term.Ref, *term.Universe, *term.IntegerLit, *term.Hole, *term.InstanceHole:
		return w
	case *term.ErrorExpr:
		return w
	case *term.FunCall:
		return &term.FunCall{Def: w.Def, Levels: w.Levels, Args: n.all(w.Args)}
	case *term.ConCall:
		args := n.all(w.Args)
		switch {
		case w.Con == term.Zero:
			return &term.IntegerLit{Value: new(big.Int)}
		case w.Con == term.Suc && len(args) == 1:
			return term.SucOf(args[0])
		}
		return &term.ConCall{Con: w.Con, Levels: w.Levels, DataArgs: n.all(w.DataArgs), Args: args}
	case *term.DataCall:
		return &term.DataCall{Data: w.Data, Levels: w.Levels, Args: n.all(w.Args)}
	case *term.ClassCall:
		return n.normalizeClassCall(w)
	case *term.New:
		return &term.New{Call: n.normalizeClassCall(w.Call)}
	case *term.FieldCall:
		return &term.FieldCall{Field: w.Field, Arg: n.Normalize(w.Arg)}
	case *term.Lam:
		p, s := n.link(w.Param)
		return &term.Lam{Param: p, Body: n.Normalize(term.Subst(w.Body, s))}
	case *term.Pi:
		p, s := n.link(w.Param)
		return &term.Pi{Param: p, Cod: n.Normalize(term.Subst(w.Cod, s))}
	case *term.Sigma:
		p, _ := n.link(w.Params)
		return &term.Sigma{Params: p}
	case *term.Tuple:
		var typ *term.Sigma
		if w.Type != nil {
			typ = n.Normalize(w.Type).(*term.Sigma)
		}
		return &term.Tuple{Fields: n.all(w.Fields), Type: typ}
	case *term.Proj:
		return &term.Proj{Tuple: n.Normalize(w.Tuple), Index: w.Index}
	case *term.App:
		return &term.App{Fun: n.Normalize(w.Fun), Arg: n.Normalize(w.Arg)}
	case *term.Case:
		return &term.Case{Args: n.all(w.Args), Params: w.Params, Result: w.Result, Body: w.Body}
	default:
		return w
	}
}

func (n *Normalizer) all(es []term.Expr) []term.Expr {
	out := make([]term.Expr, len(es))
	for i, e := range es {
		out[i] = n.Normalize(e)
	}
	return out
}

func (n *Normalizer) link(l *term.DependentLink) (*term.DependentLink, *term.Substitution) {
	s := term.NewSubstitution()
	links := l.Links()
	bs := make([]*term.Binding, len(links))
	for i, node := range links {
		var typ term.Expr
		if t := node.Type(); t != nil {
			typ = n.Normalize(term.Subst(t, s))
		}
		bs[i] = node.Binding().Rename(typ)
		s.Add(node.Binding(), term.NewRef(bs[i]))
	}
	var out *term.DependentLink
	for i := len(links) - 1; i >= 0; i-- {
		out = term.Typed(links[i].Explicit(), bs[i], out)
	}
	return out, s
}

func (n *Normalizer) normalizeClassCall(cc *term.ClassCall) *term.ClassCall {
	var result *term.ClassCall
	this := term.NewLazyBinding("this", func() term.Expr { return result })
	impls := make([]term.Implementation, 0, cc.NumImplemented())
	for _, impl := range cc.Implementations() {
		body := term.SubstOne(impl.Expr, cc.ThisBinding(), term.NewRef(this))
		impls = append(impls, term.Implementation{Field: impl.Field, Expr: n.Normalize(body)})
	}
	result = term.WithThis(cc.Class, cc.Levels, impls, this)
	return result
}
