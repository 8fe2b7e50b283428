package check

import (
	"errors"
	"strings"

	"github.com/funvibe/funcore/internal/compare"
	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/instance"
	"github.com/funvibe/funcore/internal/term"
)

var errCandidate = errors.New("instance candidate does not check")

// instanceArg resolves an implicit instance argument. When the classifying
// implementation of the expected class is not known yet, the argument
// becomes a deferred metavariable that is resolved as soon as a comparison
// fixes it, or at the end of the definition.
func (s *Session) instanceArg(h *term.InstanceHole, expected term.Expr) (term.Expr, term.Expr) {
	var cc *term.ClassCall
	if expected != nil {
		var ok bool
		if cc, ok = s.WHNF(expected).(*term.ClassCall); !ok || cc.Class != h.Class {
			s.errorf("an instance of %s cannot have type %s", h.Class.Name(), expected)
			return fail(h)
		}
	} else {
		cc = term.MustClassCall(h.Class, term.Sort{})
	}

	classifying, known := s.classifyingOf(cc)
	if !known {
		v := term.NewInferenceVar("instance", cc)
		v.Class, v.Trail = h.Class, h.Trail
		s.metas = append(s.metas, v)
		s.deferred = append(s.deferred, &deferredInstance{v: v, expected: cc})
		s.logger.Debug("instance deferred", "class", h.Class.Name(), "var", v.String())
		return &term.Hole{Var: v}, cc
	}
	r, err := s.pool.Resolve(s, instance.Request{Class: h.Class, Classifying: classifying, Expected: cc, Trail: h.Trail})
	if err != nil {
		s.instanceError(err)
		return &term.ErrorExpr{}, cc
	}
	return r, cc
}

// classifyingOf returns the classifying implementation of cc. known is
// false when the class has a classifying field whose implementation is
// missing or stuck on an unsolved metavariable.
func (s *Session) classifyingOf(cc *term.ClassCall) (term.Expr, bool) {
	f := cc.Class.ClassifyingField()
	if f == nil {
		return nil, true
	}
	impl, ok := cc.Implementation(f)
	if !ok {
		return nil, false
	}
	switch st := s.norm.StuckExpression(s.WHNF(impl)).(type) {
	case *term.Hole:
		if _, solved := s.solutions[st.Var]; !solved {
			return impl, false
		}
	case *term.InstanceHole:
		return impl, false
	}
	return impl, true
}

func (s *Session) findDeferred(v *term.InferenceVar) *deferredInstance {
	for _, d := range s.deferred {
		if d.v == v {
			return d
		}
	}
	return nil
}

// ResolveDeferred resolves a deferred instance metavariable once a
// comparison has fixed its classifying implementation.
func (s *Session) ResolveDeferred(v *term.InferenceVar, classifying term.Expr) bool {
	d := s.findDeferred(v)
	if d == nil {
		return false
	}
	if _, ok := s.solutions[v]; ok {
		return false
	}
	r, err := s.pool.Resolve(s, instance.Request{Class: v.Class, Classifying: classifying, Expected: d.expected, Trail: v.Trail})
	if err != nil {
		s.logger.Debug("deferred instance unresolved", "var", v.String(), "error", err.Error())
		return false
	}
	return s.Solve(v, r)
}

// resolveDeferred resolves what is left of the deferred instances. Failures
// are reported and the metavariable is solved with an error placeholder.
func (s *Session) resolveDeferred() {
	for _, d := range s.deferred {
		if _, ok := s.solutions[d.v]; ok {
			continue
		}
		classifying, _ := s.classifyingOf(d.expected)
		r, err := s.pool.Resolve(s, instance.Request{Class: d.v.Class, Classifying: classifying, Expected: d.expected, Trail: d.v.Trail})
		if err != nil {
			s.instanceError(err)
			r = &term.ErrorExpr{}
		}
		s.Solve(d.v, r)
		s.norm.Invalidate(d.v)
	}
}

func (s *Session) instanceError(err *instance.ResolveError) {
	s.report(diagnostics.NewError(diagnostics.ErrT003, term.Position{}, err.Class.Name(), err.Error()).
		WithPayload(&diagnostics.InstanceFailure{
			Class:       err.Class.Name(),
			Classifying: err.Classifying,
			Reason:      err.Reason.String(),
			Trail:       err.Trail,
			Candidates:  names(err.Candidates),
			Cause:       err,
		}))
}

func names(defs []*term.FunctionDef) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name()
	}
	return out
}

// CheckInstance elaborates an instantiated candidate quietly. On failure
// every solution and postponed equation it produced is withdrawn and the
// first error is returned.
func (s *Session) CheckInstance(e, expected term.Expr) (term.Expr, error) {
	m := s.mark()
	s.quiet++
	r, typ := s.infer(e, expected)
	ok := len(s.failures) == m.failures && !isError(r)
	if ok && typ != nil && expected != nil {
		ok = s.cmp.Compare(compare.LE, typ, expected, nil)
	}
	s.quiet--
	if ok {
		return r, nil
	}
	var cause error = errCandidate
	if len(s.failures) > m.failures {
		cause = s.failures[m.failures]
	}
	s.rollback(m)
	return nil, cause
}

func (s *Session) Ambiguous(class *term.ClassDef, chosen *term.FunctionDef, others []*term.FunctionDef) {
	rest := names(others)
	s.report(diagnostics.NewError(diagnostics.WarnW001, term.Position{}, class.Name(), chosen.Name(), strings.Join(rest, ", ")).
		WithPayload(&diagnostics.InstanceFailure{
			Class:      class.Name(),
			Reason:     "ambiguous",
			Candidates: append([]string{chosen.Name()}, rest...),
		}))
}

// EnsureHeader checks the header of a group member on first use. Headers of
// definitions outside the group are already checked.
func (s *Session) EnsureHeader(def term.Definition) bool {
	switch def.Status() {
	case term.StatusHeaderFailed:
		return false
	case term.StatusHeaderChecking:
		s.errorf("%s is used in its own header", def.Name())
		return false
	case term.StatusNone:
		if u, ok := s.units[def]; ok {
			return s.fork().checkHeader(u)
		}
	}
	return true
}

// localInstance adds a class-typed parameter to the local pool.
func (s *Session) localInstance(b *term.Binding) {
	cc, ok := s.WHNF(b.Type()).(*term.ClassCall)
	if !ok {
		return
	}
	inst := instance.LocalInstance{Class: cc.Class, Value: term.NewRef(b)}
	if f := cc.Class.ClassifyingField(); f != nil {
		if impl, ok := cc.Implementation(f); ok {
			inst.Classifying = impl
		} else {
			inst.Classifying = term.MakeFieldCall(f, term.NewRef(b))
		}
	}
	s.pool.Local().Add(inst)
}
