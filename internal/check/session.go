// Package check elaborates core definitions: it infers and checks the types
// of terms, solves metavariables through the comparer, resolves instance
// arguments through the instance pool and runs the termination checker on
// every group of mutually recursive definitions.
//
// A Session is private to one group and single-threaded. Comparisons that
// get stuck on an unknown are postponed and retried when the group's
// definition is finished. Groups are run in parallel by the Scheduler.
package check

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/funvibe/funcore/internal/compare"
	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/instance"
	"github.com/funvibe/funcore/internal/normalize"
	"github.com/funvibe/funcore/internal/term"
)

// Options configure a session.
type Options struct {
	MaxInstanceDepth int
	// Provider lists instances of definitions outside the group.
	Provider instance.Provider
	Reporter *diagnostics.Reporter
	Logger   *slog.Logger
}

type deferredInstance struct {
	v        *term.InferenceVar
	expected *term.ClassCall
}

// Session is the state of checking one group of definitions.
type Session struct {
	ID       uuid.UUID
	opts     Options
	logger   *slog.Logger
	reporter *diagnostics.Reporter
	provider instance.Provider

	norm *normalize.Normalizer
	eqs  *compare.Equations
	cmp  *compare.Comparer
	pool *instance.Pool

	solutions map[*term.InferenceVar]term.Expr
	solved    []*term.InferenceVar
	metas     []*term.InferenceVar
	deferred  []*deferredInstance

	locals []*term.Binding
	def    term.Definition
	group  []*term.Unit
	units  map[term.Definition]*term.Unit
	errors int

	quiet    int
	failures []*diagnostics.DiagnosticError
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = diagnostics.NewReporter()
	}
	s := &Session{
		ID:        uuid.New(),
		opts:      opts,
		reporter:  reporter,
		provider:  opts.Provider,
		solutions: make(map[*term.InferenceVar]term.Expr),
		units:     make(map[term.Definition]*term.Unit),
	}
	s.logger = logger.With("section", "check", "session", s.ID.String())
	s.norm = normalize.New(s)
	s.eqs = &compare.Equations{}
	s.cmp = compare.New(s.norm, s, s.eqs)
	s.pool = instance.NewPool(s, nil, opts.MaxInstanceDepth, logger)
	return s
}

// fork returns a session for checking one more definition of the same
// group with its own metavariables and equations.
func (s *Session) fork() *Session {
	c := NewSession(Options{
		MaxInstanceDepth: s.opts.MaxInstanceDepth,
		Provider:         s.provider,
		Reporter:         s.reporter,
		Logger:           s.opts.Logger,
	})
	c.group, c.units = s.group, s.units
	return c
}

func (s *Session) Reporter() *diagnostics.Reporter   { return s.reporter }
func (s *Session) Normalizer() *normalize.Normalizer { return s.norm }

// InProgress reports whether def is part of the group and not finished yet.
// Such definitions are never unfolded.
func (s *Session) InProgress(def term.Definition) bool {
	if _, ok := s.units[def]; !ok {
		return def.Status().InProgress()
	}
	switch def.Status() {
	case term.StatusDone, term.StatusBodyFailed, term.StatusNonTerminating:
		return false
	}
	return true
}

func (s *Session) Solution(v *term.InferenceVar) (term.Expr, bool) {
	e, ok := s.solutions[v]
	return e, ok
}

// Solve records a solution of v.
func (s *Session) Solve(v *term.InferenceVar, e term.Expr) bool {
	if _, ok := s.solutions[v]; ok {
		return false
	}
	s.solutions[v] = e
	s.solved = append(s.solved, v)
	s.logger.Debug("solved", "var", v.String(), "solution", e.String())
	return true
}

// Instances lists the instances of the group before those of the provider.
func (s *Session) Instances(class *term.ClassDef) []*term.FunctionDef {
	var out []*term.FunctionDef
	for _, u := range s.group {
		if f, ok := u.Def.(*term.FunctionDef); ok && f.Kind == term.KindInstance && instance.InstanceClass(f) == class {
			out = append(out, f)
		}
	}
	if s.provider != nil {
		out = append(out, s.provider.Instances(class)...)
	}
	return out
}

func (s *Session) WHNF(e term.Expr) term.Expr { return s.norm.WHNF(e) }

func (s *Session) StrictEqual(a, b term.Expr) bool {
	return s.cmp.Strict().Equal(a, b, nil)
}

// NewHole creates a metavariable that must be solved by the end of the
// current definition.
func (s *Session) NewHole(name string, typ term.Expr) term.Expr {
	v := term.NewInferenceVar(name, typ)
	s.metas = append(s.metas, v)
	return &term.Hole{Var: v}
}

// report records a diagnostic against the current definition. While
// checking an instance candidate, errors are kept aside and warnings are
// dropped.
func (s *Session) report(err *diagnostics.DiagnosticError) {
	if s.def != nil {
		if err.Definition == "" {
			err.In(s.def.Name())
		}
		if err.Pos == (term.Position{}) {
			err.Pos = s.def.Pos()
		}
	}
	if s.quiet > 0 {
		if err.Level == diagnostics.LevelError {
			s.failures = append(s.failures, err)
		}
		return
	}
	if err.Level == diagnostics.LevelError {
		s.errors++
	}
	s.reporter.Report(err)
}

func (s *Session) errorf(format string, args ...any) {
	s.report(diagnostics.NewError(diagnostics.ErrT006, term.Position{}, fmt.Sprintf(format, args...)))
}

// mark is a point the session can roll back to.
type mark struct {
	solved, metas, deferred, failures int
	eqs                               compare.Mark
}

func (s *Session) mark() mark {
	return mark{
		solved:   len(s.solved),
		metas:    len(s.metas),
		deferred: len(s.deferred),
		eqs:      s.eqs.Mark(),
		failures: len(s.failures),
	}
}

func (s *Session) rollback(m mark) {
	if len(s.solved) > m.solved {
		for _, v := range s.solved[m.solved:] {
			delete(s.solutions, v)
		}
		s.norm.Forget()
	}
	s.solved = s.solved[:m.solved]
	s.metas = s.metas[:m.metas]
	s.deferred = s.deferred[:m.deferred]
	s.eqs.Rollback(m.eqs)
	s.failures = s.failures[:m.failures]
}

// scope saves the local context; the returned function restores it.
func (s *Session) scope() func() {
	n := len(s.locals)
	return func() { s.locals = s.locals[:n] }
}

func (s *Session) bind(b *term.Binding) { s.locals = append(s.locals, b) }

// resolve replaces solved metavariables in e.
func (s *Session) resolve(e term.Expr) term.Expr {
	return term.ResolveHoles(e, s.Solution, nil)
}
