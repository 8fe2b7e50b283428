package check

import (
	"github.com/funvibe/funcore/internal/compare"
	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

// CheckExpr elaborates e against expected and returns the elaborated term
// and its type. With a nil expected type the type is inferred. A term that
// does not check is reported and replaced by an error placeholder, and
// checking goes on.
func (s *Session) CheckExpr(e, expected term.Expr) (term.Expr, term.Expr) {
	r, typ := s.infer(e, expected)
	if expected == nil {
		if typ == nil {
			typ = &term.ErrorExpr{}
		}
		return r, typ
	}
	if isError(r) || typ == nil {
		return r, expected
	}
	if !s.cmp.Compare(compare.LE, typ, expected, nil) {
		s.mismatch(expected, typ, e)
		return &term.ErrorExpr{Expr: r}, expected
	}
	return r, expected
}

// Infer elaborates e and returns its type.
func (s *Session) Infer(e term.Expr) (term.Expr, term.Expr) {
	return s.CheckExpr(e, nil)
}

func isError(e term.Expr) bool {
	_, ok := e.(*term.ErrorExpr)
	return ok
}

func fail(e term.Expr) (term.Expr, term.Expr) {
	return &term.ErrorExpr{Expr: e}, nil
}

func (s *Session) mismatch(expected, actual, e term.Expr) {
	exp := s.norm.Normalize(s.resolve(expected))
	act := s.norm.Normalize(s.resolve(actual))
	s.report(diagnostics.NewError(diagnostics.ErrT001, term.Position{}, exp, act).
		WithPayload(&diagnostics.TypeMismatch{Expected: exp, Actual: act, Term: e}))
}

// checkType elaborates a term that must be a type and returns its sort.
func (s *Session) checkType(e term.Expr) (term.Expr, term.Sort) {
	if e == nil {
		s.errorf("missing type")
		return &term.ErrorExpr{}, term.Sort{}
	}
	r, typ := s.Infer(e)
	if isError(r) {
		return r, term.Sort{}
	}
	switch w := s.WHNF(typ).(type) {
	case *term.Universe:
		return r, w.Sort
	case *term.ErrorExpr:
		return r, term.Sort{}
	case *term.Hole:
		so := term.Sort{
			PLevel: term.VarLevel(term.NewInferenceLevel(term.PLevelKind), 0),
			HLevel: term.VarLevel(term.NewInferenceLevel(term.HLevelKind), 0),
		}
		if s.cmp.Equal(w, &term.Universe{Sort: so}, nil) {
			return r, so
		}
	}
	s.mismatch(&term.Universe{Sort: term.StdSort()}, typ, e)
	return &term.ErrorExpr{Expr: r}, term.Sort{}
}

func (s *Session) infer(e, expected term.Expr) (term.Expr, term.Expr) {
	switch e := e.(type) {
	case *term.Ref:
		t := e.Binding.Type()
		if t == nil {
			s.errorf("cannot infer the type of %s", e.Binding.Name())
			return fail(e)
		}
		return e, t
	case *term.IntegerLit:
		return e, term.NatType()
	case *term.Universe:
		return e, &term.Universe{Sort: e.Sort.Succ()}
	case *term.ErrorExpr:
		if e.IsGoal {
			return s.goal(e, expected)
		}
		return e, expected
	case *term.Hole:
		return s.hole(e, expected)
	case *term.InstanceHole:
		return s.instanceArg(e, expected)
	case *term.FunCall:
		return s.funCall(e)
	case *term.ConCall:
		return s.conCall(e, expected)
	case *term.DataCall:
		return s.dataCall(e)
	case *term.ClassCall:
		cc := s.classCall(e)
		return cc, &term.Universe{Sort: cc.Class.Sort.Subst(cc.Levels.ToSubst())}
	case *term.New:
		return s.newExpr(e, expected)
	case *term.FieldCall:
		return s.fieldCall(e)
	case *term.Lam:
		return s.lam(e, expected)
	case *term.Pi:
		return s.pi(e)
	case *term.Sigma:
		restore := s.scope()
		defer restore()
		params, so := s.telescope(e.Params)
		return &term.Sigma{Params: params}, &term.Universe{Sort: so}
	case *term.Tuple:
		return s.tuple(e, expected)
	case *term.Proj:
		return s.proj(e)
	case *term.App:
		return s.app(e)
	case *term.Let:
		return s.let(e, expected)
	case *term.Case:
		return s.caseExpr(e, expected)
	}
	s.errorf("unexpected expression %s", e)
	return fail(e)
}

func (s *Session) hole(e *term.Hole, expected term.Expr) (term.Expr, term.Expr) {
	v := e.Var
	if v.Type == nil {
		if expected == nil {
			s.errorf("cannot infer the type of %s", v)
			return fail(e)
		}
		v.Type = expected
		s.metas = append(s.metas, v)
	}
	return e, v.Type
}

// args checks arguments against a telescope, extending sub with the
// parameter-to-argument mapping.
func (s *Session) args(name string, params *term.DependentLink, args []term.Expr, sub *term.Substitution) ([]term.Expr, bool) {
	links := params.Links()
	if len(args) != len(links) {
		s.errorf("%s expects %d arguments, got %d", name, len(links), len(args))
		return nil, false
	}
	out := make([]term.Expr, len(args))
	for i, l := range links {
		a, _ := s.CheckExpr(args[i], term.Subst(l.Type(), sub))
		out[i] = a
		sub.Add(l.Binding(), a)
	}
	return out, true
}

func (s *Session) funCall(e *term.FunCall) (term.Expr, term.Expr) {
	def := e.Def
	if !s.EnsureHeader(def) {
		return fail(e)
	}
	sub := term.NewSubstitution().AddLevels(e.Levels.ToSubst())
	args, ok := s.args(def.Name(), def.Parameters(), e.Args, sub)
	if !ok {
		return fail(e)
	}
	if def.Result == nil {
		s.errorf("the type of %s is not known yet", def.Name())
		return fail(e)
	}
	return &term.FunCall{Def: def, Levels: e.Levels, Args: args}, term.Subst(def.Result, sub)
}

func (s *Session) conCall(e *term.ConCall, expected term.Expr) (term.Expr, term.Expr) {
	con, data := e.Con, e.Con.Data
	if !s.EnsureHeader(data) {
		return fail(e)
	}
	dataArgs := e.DataArgs
	if len(dataArgs) == 0 && data.Parameters() != nil {
		if expected != nil {
			if dc, ok := s.WHNF(expected).(*term.DataCall); ok && dc.Data == data {
				dataArgs = dc.Args
			}
		}
		if dataArgs == nil {
			for _, l := range data.Parameters().Links() {
				dataArgs = append(dataArgs, &term.Hole{Var: term.NewInferenceVar(l.Name(), nil)})
			}
		}
	}
	sub := term.NewSubstitution().AddLevels(e.Levels.ToSubst())
	dargs, ok := s.args(data.Name(), data.Parameters(), dataArgs, sub)
	if !ok {
		return fail(e)
	}
	args, ok := s.args(con.Name(), con.Parameters(), e.Args, sub)
	if !ok {
		return fail(e)
	}
	if con.Reflexivity && len(dargs) >= 2 {
		l, r := dargs[len(dargs)-2], dargs[len(dargs)-1]
		if !s.cmp.Equal(l, r, nil) {
			s.mismatch(l, r, e)
			return fail(e)
		}
	}
	call := &term.ConCall{Con: con, Levels: e.Levels, DataArgs: dargs, Args: args}
	return call, &term.DataCall{Data: data, Levels: e.Levels, Args: dargs}
}

func (s *Session) dataCall(e *term.DataCall) (term.Expr, term.Expr) {
	if !s.EnsureHeader(e.Data) {
		return fail(e)
	}
	levels := e.Levels.ToSubst()
	args, ok := s.args(e.Data.Name(), e.Data.Parameters(), e.Args, term.NewSubstitution().AddLevels(levels))
	if !ok {
		return fail(e)
	}
	return &term.DataCall{Data: e.Data, Levels: e.Levels, Args: args}, &term.Universe{Sort: e.Data.Sort.Subst(levels)}
}

// classCall checks the implementations of a class call. The result gets a
// this binding of its own, typed by the elaborated call.
func (s *Session) classCall(e *term.ClassCall) *term.ClassCall {
	var cc *term.ClassCall
	this := term.NewLazyBinding("this", func() term.Expr { return cc })
	ref := term.NewRef(this)
	impls := make([]term.Implementation, 0, e.NumImplemented())
	for _, impl := range e.Implementations() {
		raw := impl.Expr
		if old := e.ThisBinding(); old != nil {
			raw = term.SubstOne(raw, old, ref)
		}
		x, _ := s.CheckExpr(raw, impl.Field.TypeAt(ref))
		impls = append(impls, term.Implementation{Field: impl.Field, Expr: x})
	}
	cc = term.WithThis(e.Class, e.Levels, impls, this)
	return cc
}

func (s *Session) newExpr(e *term.New, expected term.Expr) (term.Expr, term.Expr) {
	call := e.Call
	if expected != nil {
		if ec, ok := s.WHNF(expected).(*term.ClassCall); ok && ec.Class == call.Class {
			impls := append([]term.Implementation(nil), call.Implementations()...)
			this := call.ThisBinding()
			for _, impl := range ec.Implementations() {
				if call.IsImplemented(impl.Field) {
					continue
				}
				x := impl.Expr
				if from := ec.ThisBinding(); from != nil && this != nil {
					x = term.SubstOne(x, from, term.NewRef(this))
				}
				impls = append(impls, term.Implementation{Field: impl.Field, Expr: x})
			}
			if len(impls) > call.NumImplemented() {
				call = term.WithThis(call.Class, call.Levels, impls, call.ThisBinding())
			}
		}
	}
	cc := s.classCall(call)
	if !cc.IsComplete() {
		var missing []string
		for _, f := range cc.Class.Fields {
			if !cc.IsImplemented(f) {
				missing = append(missing, f.Name())
			}
		}
		s.errorf("fields of %s are not implemented: %v", cc.Class.Name(), missing)
		return fail(e)
	}
	return &term.New{Call: cc}, cc
}

func (s *Session) fieldCall(e *term.FieldCall) (term.Expr, term.Expr) {
	arg, typ := s.Infer(e.Arg)
	if isError(arg) {
		return fail(e)
	}
	cc, ok := s.WHNF(typ).(*term.ClassCall)
	if !ok || cc.Class != e.Field.Class {
		s.mismatch(term.MustClassCall(e.Field.Class, term.Sort{}), typ, e.Arg)
		return fail(e)
	}
	return term.MakeFieldCall(e.Field, arg), e.Field.TypeAt(arg)
}

func splitPi(p *term.Pi) (*term.DependentLink, term.Expr) {
	if next := p.Param.Next(); next != nil {
		return p.Param, &term.Pi{Param: next, Cod: p.Cod}
	}
	return p.Param, p.Cod
}

// lam checks one parameter at a time against the expected function type.
func (s *Session) lam(e *term.Lam, expected term.Expr) (term.Expr, term.Expr) {
	p := e.Param
	var rest term.Expr = e.Body
	if p.Next() != nil {
		rest = &term.Lam{Param: p.Next(), Body: e.Body}
	}
	var piParam *term.DependentLink
	var cod term.Expr
	if expected != nil {
		if pi, ok := s.WHNF(expected).(*term.Pi); ok {
			piParam, cod = splitPi(pi)
		}
	}

	b := p.Binding()
	explicit := p.Explicit()
	var typ term.Expr
	switch raw := p.Type(); {
	case raw != nil:
		typ, _ = s.checkType(raw)
		if piParam != nil && !s.cmp.Equal(typ, piParam.Type(), nil) {
			s.mismatch(piParam.Type(), typ, e)
			return fail(e)
		}
	case piParam != nil:
		typ, explicit = piParam.Type(), piParam.Explicit()
	default:
		s.errorf("cannot infer the type of parameter %s", b.Name())
		return fail(e)
	}
	if piParam != nil && piParam.Explicit() != explicit {
		s.errorf("parameter %s must be %s", b.Name(), visibility(piParam.Explicit()))
		return fail(e)
	}
	b.SetType(typ)

	restore := s.scope()
	s.bind(b)
	var bodyExpected term.Expr
	if piParam != nil {
		bodyExpected = term.SubstOne(cod, piParam.Binding(), term.NewRef(b))
	}
	body, bodyType := s.CheckExpr(rest, bodyExpected)
	restore()

	pb := b.Rename(typ)
	return &term.Lam{Param: term.Typed(explicit, b, nil), Body: body},
		&term.Pi{Param: term.Typed(explicit, pb, nil), Cod: term.SubstOne(bodyType, b, term.NewRef(pb))}
}

func visibility(explicit bool) string {
	if explicit {
		return "explicit"
	}
	return "implicit"
}

func (s *Session) pi(e *term.Pi) (term.Expr, term.Expr) {
	restore := s.scope()
	defer restore()
	params, ps := s.telescope(e.Param)
	cod, cs := s.checkType(e.Cod)
	so := term.Sort{PLevel: s.maxLevel(term.PLevelKind, ps.PLevel, cs.PLevel), HLevel: cs.HLevel}
	return &term.Pi{Param: params, Cod: cod}, &term.Universe{Sort: so}
}

// telescope elaborates the parameter types of l in order, retypes the
// bindings and brings them into scope. It returns the rebuilt telescope and
// the least sort containing every parameter type.
func (s *Session) telescope(l *term.DependentLink) (*term.DependentLink, term.Sort) {
	type node struct {
		b               *term.Binding
		typed, explicit bool
	}
	var nodes []node
	var pending []*term.Binding
	var so term.Sort
	for n := l; n != nil; n = n.Next() {
		pending = append(pending, n.Binding())
		if !n.IsTyped() {
			nodes = append(nodes, node{b: n.Binding()})
			continue
		}
		nodes = append(nodes, node{b: n.Binding(), typed: true, explicit: n.Explicit()})
		typ, ts := s.checkType(n.Binding().Type())
		so = term.Sort{
			PLevel: s.maxLevel(term.PLevelKind, so.PLevel, ts.PLevel),
			HLevel: s.maxLevel(term.HLevelKind, so.HLevel, ts.HLevel),
		}
		for _, b := range pending {
			b.SetType(typ)
			s.bind(b)
		}
		pending = pending[:0]
	}
	var out *term.DependentLink
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].typed {
			out = term.Typed(nodes[i].explicit, nodes[i].b, out)
		} else {
			out = term.Untyped(nodes[i].b, out)
		}
	}
	return out, so
}

// maxLevel is the least upper bound of a and b, introduced as a new
// inference variable when it is not a single level.
func (s *Session) maxLevel(kind term.LevelKind, a, b term.Level) term.Level {
	if m, ok := term.MaxLevel(a, b); ok {
		return m
	}
	v := term.VarLevel(term.NewInferenceLevel(kind), 0)
	s.eqs.Require(compare.LE, a, v)
	s.eqs.Require(compare.LE, b, v)
	return v
}

func (s *Session) tuple(e *term.Tuple, expected term.Expr) (term.Expr, term.Expr) {
	var sig *term.Sigma
	if e.Type != nil {
		t, _ := s.checkType(e.Type)
		sig, _ = t.(*term.Sigma)
	}
	if sig == nil && expected != nil {
		sig, _ = s.WHNF(expected).(*term.Sigma)
	}
	if sig == nil {
		fields := make([]term.Expr, len(e.Fields))
		types := make([]term.Expr, len(e.Fields))
		for i, f := range e.Fields {
			fields[i], types[i] = s.Infer(f)
		}
		var params *term.DependentLink
		for i := len(types) - 1; i >= 0; i-- {
			params = term.Typed(true, term.NewHiddenBinding("_", types[i]), params)
		}
		sig = &term.Sigma{Params: params}
		return &term.Tuple{Fields: fields, Type: sig}, sig
	}

	links := sig.Params.Links()
	if len(links) != len(e.Fields) {
		s.errorf("expected a tuple of %d fields, got %d", len(links), len(e.Fields))
		return fail(e)
	}
	sub := term.NewSubstitution()
	fields := make([]term.Expr, len(e.Fields))
	for i, l := range links {
		fields[i], _ = s.CheckExpr(e.Fields[i], term.Subst(l.Type(), sub))
		sub.Add(l.Binding(), fields[i])
	}
	return &term.Tuple{Fields: fields, Type: sig}, sig
}

func (s *Session) proj(e *term.Proj) (term.Expr, term.Expr) {
	t, typ := s.Infer(e.Tuple)
	if isError(t) {
		return fail(e)
	}
	sig, ok := s.WHNF(typ).(*term.Sigma)
	if !ok {
		s.errorf("expected a tuple, got %s of type %s", t, typ)
		return fail(e)
	}
	links := sig.Params.Links()
	if e.Index < 0 || e.Index >= len(links) {
		s.errorf("index %d is out of range for %s", e.Index+1, sig)
		return fail(e)
	}
	sub := term.NewSubstitution()
	for i := 0; i < e.Index; i++ {
		sub.Add(links[i].Binding(), &term.Proj{Tuple: t, Index: i})
	}
	return &term.Proj{Tuple: t, Index: e.Index}, term.Subst(links[e.Index].Type(), sub)
}

func (s *Session) app(e *term.App) (term.Expr, term.Expr) {
	f, ft := s.Infer(e.Fun)
	if isError(f) {
		return fail(e)
	}
	pi, ok := s.WHNF(ft).(*term.Pi)
	if !ok {
		s.errorf("expected a function, got %s of type %s", f, ft)
		return fail(e)
	}
	param, cod := splitPi(pi)
	arg, _ := s.CheckExpr(e.Arg, param.Type())
	return &term.App{Fun: f, Arg: arg}, term.SubstOne(cod, param.Binding(), arg)
}

func (s *Session) let(e *term.Let, expected term.Expr) (term.Expr, term.Expr) {
	restore := s.scope()
	defer restore()
	clauses := make([]*term.LetClause, len(e.Clauses))
	sub := term.NewSubstitution()
	for i, c := range e.Clauses {
		var x, t term.Expr
		if ann := c.Binding.Type(); ann != nil {
			at, _ := s.checkType(ann)
			x, t = s.CheckExpr(c.Expr, at)
		} else {
			x, t = s.Infer(c.Expr)
		}
		c.Binding.SetType(t)
		s.bind(c.Binding)
		clauses[i] = &term.LetClause{Binding: c.Binding, Expr: x}
		sub.Add(c.Binding, term.Subst(x, sub))
	}
	body, typ := s.CheckExpr(e.Body, expected)
	return &term.Let{Clauses: clauses, Body: body}, term.Subst(typ, sub)
}

func (s *Session) caseExpr(e *term.Case, expected term.Expr) (term.Expr, term.Expr) {
	restore := s.scope()
	defer restore()
	if e.Params.Size() != len(e.Args) {
		s.errorf("\\case has %d parameters and %d arguments", e.Params.Size(), len(e.Args))
		return fail(e)
	}
	params, _ := s.telescope(e.Params)
	argSub := term.NewSubstitution()
	args := make([]term.Expr, len(e.Args))
	for i, l := range params.Links() {
		args[i], _ = s.CheckExpr(e.Args[i], term.Subst(l.Type(), argSub))
		argSub.Add(l.Binding(), args[i])
	}
	var result term.Expr
	switch {
	case e.Result != nil:
		result, _ = s.checkType(e.Result)
	case expected != nil:
		result = expected
	default:
		s.errorf("cannot infer the result type of \\case")
		return fail(e)
	}
	body := s.clauses(params, e.Body, result)
	return &term.Case{Args: args, Params: params, Result: result, Body: body}, term.Subst(result, argSub)
}

// goal reports a named placeholder with its expected type and local
// context. Errors in the goal's own expression are attached to it.
func (s *Session) goal(e *term.ErrorExpr, expected term.Expr) (term.Expr, term.Expr) {
	var inner term.Expr
	var errs []*diagnostics.DiagnosticError
	if e.Expr != nil {
		n := len(s.failures)
		s.quiet++
		inner, _ = s.CheckExpr(e.Expr, expected)
		s.quiet--
		errs = append(errs, s.failures[n:]...)
		s.failures = s.failures[:n]
	}
	g := &diagnostics.Goal{Name: e.Goal, Context: s.context(), Errors: errs}
	if expected != nil {
		g.Expected = s.norm.Normalize(s.resolve(expected))
	}
	s.report(diagnostics.NewError(diagnostics.ErrT005, term.Position{}, goalName(e.Goal)).WithPayload(g))
	return &term.ErrorExpr{Expr: inner, Goal: e.Goal, IsGoal: true}, expected
}

func goalName(name string) string {
	if name == "" {
		return "{?}"
	}
	return "{?" + name + "}"
}

func (s *Session) context() []diagnostics.ContextEntry {
	var out []diagnostics.ContextEntry
	for _, b := range s.locals {
		if b.Hidden() {
			continue
		}
		var t term.Expr
		if bt := b.Type(); bt != nil {
			t = s.resolve(bt)
		}
		out = append(out, diagnostics.ContextEntry{Name: b.Name(), Type: t})
	}
	return out
}
