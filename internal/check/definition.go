package check

import (
	"github.com/funvibe/funcore/internal/compare"
	"github.com/funvibe/funcore/internal/term"
	"github.com/funvibe/funcore/internal/termination"
)

// CheckGroup checks a group of mutually recursive definitions: every header
// first, then every body, then termination of the functions that checked.
// A definition that fails does not stop the others.
func (s *Session) CheckGroup(units []*term.Unit) {
	s.group = units
	for _, u := range units {
		s.units[u.Def] = u
	}
	for _, u := range units {
		s.EnsureHeader(u.Def)
	}
	for _, u := range units {
		s.fork().checkBody(u)
	}

	var funcs []*term.FunctionDef
	for _, u := range units {
		if f, ok := u.Def.(*term.FunctionDef); ok && f.Status() == term.StatusDone && f.HasBody() {
			funcs = append(funcs, f)
		}
	}
	termination.Apply(termination.Check(funcs), s.reporter, s.logger)
}

func (s *Session) checkHeader(u *term.Unit) bool {
	def := u.Def
	def.SetStatus(term.StatusHeaderChecking)
	s.def = def
	before := s.errors
	s.logger.Debug("checking header", "definition", def.Name())

	restore := s.scope()
	var params *term.DependentLink
	switch d := def.(type) {
	case *term.FunctionDef:
		params, _ = s.telescope(d.Parameters())
		d.SetParameters(params)
		if d.Result != nil {
			d.Result, _ = s.checkType(d.Result)
		}
		switch d.Kind {
		case term.KindInstance:
			if _, ok := s.WHNF(d.Result).(*term.ClassCall); !ok {
				s.errorf("the result type of instance %s must be a class", d.Name())
			}
		case term.KindLemma:
			d.Opaque = true
		}
	case *term.DataDef:
		params, _ = s.telescope(d.Parameters())
		d.SetParameters(params)
	case *term.ClassDef:
		s.fields(d)
	}
	restore()

	levels := s.finish(before)
	for _, b := range params.Bindings() {
		b.SetType(term.ResolveHoles(b.Type(), s.Solution, levels))
	}
	if f, ok := def.(*term.FunctionDef); ok && f.Result != nil {
		f.Result = term.ResolveHoles(f.Result, s.Solution, levels)
	}

	if s.errors > before {
		def.SetStatus(term.StatusHeaderFailed)
		if f, ok := def.(*term.FunctionDef); ok && !f.HasBody() {
			_ = f.SetBody(&term.ErrorExpr{})
		}
		return false
	}
	if _, ok := def.(*term.ClassDef); ok {
		def.SetStatus(term.StatusDone)
	} else {
		def.SetStatus(term.StatusHeaderOK)
	}
	return true
}

// fields checks the field types of a class. A field type may refer to the
// earlier fields through its this binding.
func (s *Session) fields(d *term.ClassDef) {
	for _, f := range d.Fields {
		restore := s.scope()
		s.bind(f.ThisBinding())
		f.Type, _ = s.checkType(f.Type)
		restore()
	}
}

func (s *Session) checkBody(u *term.Unit) {
	def := u.Def
	if def.Status() != term.StatusHeaderOK {
		return
	}
	def.SetStatus(term.StatusBodyChecking)
	s.def = def
	before := s.errors
	s.logger.Debug("checking body", "definition", def.Name())

	switch d := def.(type) {
	case *term.FunctionDef:
		s.functionBody(d, u, before)
		return
	case *term.DataDef:
		s.constructors(d)
	}
	s.finish(before)
	if s.errors > before {
		def.SetStatus(term.StatusBodyFailed)
		return
	}
	def.SetStatus(term.StatusDone)
}

func (s *Session) functionBody(d *term.FunctionDef, u *term.Unit, before int) {
	restore := s.scope()
	s.pool.Local().Push()
	for _, b := range d.Parameters().Bindings() {
		s.bind(b)
		s.localInstance(b)
	}

	var body term.Expr
	var elim *term.ElimBody
	switch {
	case u.Elim != nil:
		if d.Result == nil {
			s.errorf("%s is defined by pattern matching and needs a result type", d.Name())
			break
		}
		elim = s.clauses(d.Parameters(), u.Elim, d.Result)
	case u.Body != nil:
		var typ term.Expr
		body, typ = s.CheckExpr(u.Body, d.Result)
		if d.Result == nil {
			d.Result = typ
		}
		if d.Kind == term.KindInstance {
			s.classifyingImplemented(d, body)
		}
	case d.Kind != term.KindAxiom:
		s.errorf("%s has no body", d.Name())
	}
	s.pool.Local().Pop()
	restore()

	levels := s.finish(before)
	if s.errors > before {
		_ = d.SetBody(&term.ErrorExpr{Expr: body})
		d.SetStatus(term.StatusBodyFailed)
		return
	}
	if d.Result != nil {
		d.Result = term.ResolveHoles(d.Result, s.Solution, levels)
	}
	switch {
	case elim != nil:
		_ = d.SetElimBody(term.ResolveHolesElim(elim, s.Solution, levels))
	case body != nil:
		_ = d.SetBody(term.ResolveHoles(body, s.Solution, levels))
	}
	d.SetStatus(term.StatusDone)
}

// classifyingImplemented requires an instance to implement the classifying
// field of its class, in its result type or in its body.
func (s *Session) classifyingImplemented(d *term.FunctionDef, body term.Expr) {
	cc, ok := d.Result.(*term.ClassCall)
	if !ok {
		return
	}
	f := cc.Class.ClassifyingField()
	if f == nil || cc.IsImplemented(f) {
		return
	}
	if n, ok := body.(*term.New); ok && n.Call.IsImplemented(f) {
		return
	}
	s.errorf("instance %s does not implement the classifying field %s", d.Name(), f.Name())
}

// constructors checks the constructors of a data type. Their parameter
// types must live in the universe of the data type.
func (s *Session) constructors(d *term.DataDef) {
	restore := s.scope()
	defer restore()
	for _, b := range d.Parameters().Bindings() {
		s.bind(b)
	}
	for _, c := range d.Constructors {
		inner := s.scope()
		params, so := s.telescope(c.Parameters())
		c.SetParameters(params)
		if !s.cmp.Compare(compare.LE, &term.Universe{Sort: so}, &term.Universe{Sort: d.Sort}, nil) {
			s.errorf("constructor %s does not fit in the universe %s of %s", c.Name(), d.Sort, d.Name())
		}
		inner()
	}
}

// finish closes the current definition: it retries postponed equations,
// resolves deferred instances and solves the universe level equations.
// Leftovers are reported. Unsolved metavariables are only reported when the
// definition has no other errors.
func (s *Session) finish(before int) term.LevelSubst {
	s.cmp.SolvePostponed()
	s.resolveDeferred()
	s.cmp.SolvePostponed()

	for _, eq := range s.eqs.Failed {
		s.mismatch(eq.Right, eq.Left, nil)
	}
	for _, eq := range s.eqs.Postponed {
		s.errorf("cannot solve %s %s %s", s.resolve(eq.Left), eq.Cmp, s.resolve(eq.Right))
	}
	if s.errors == before {
		for _, v := range s.metas {
			if _, ok := s.solutions[v]; !ok {
				s.errorf("cannot infer %s", v)
			}
		}
	}
	levels, failed := s.eqs.SolveLevels()
	for _, eq := range failed {
		s.errorf("universe level constraint %s is violated", eq)
	}

	s.eqs.Reset()
	s.metas = s.metas[:0]
	s.deferred = s.deferred[:0]
	return levels
}
