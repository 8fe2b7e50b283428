// Package instance resolves implicit class instance arguments.
//
// A request names the expected class and, when the class has one, the
// classifying expression. Lexically scoped local instances shadow global
// ones. Global candidates are matched by the head of their classifying
// implementation; the first matching candidate is the only one checked, and
// its failure is the failure of the request. Parameters of a
// candidate that are themselves instances become instance holes whose trail
// records every (instance, class, classifying) step taken so far; a step
// that is already on the trail is a cycle and fails that branch.
package instance

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/funvibe/funcore/internal/term"
)

// Context is the checking session seen from the pool. The pool calls back
// into it to check candidates, which may resolve further instances.
type Context interface {
	WHNF(e term.Expr) term.Expr
	// StrictEqual compares without solving or postponing anything.
	StrictEqual(a, b term.Expr) bool
	// EnsureHeader makes sure the parameters and result type of def are
	// checked. It reports false when the header failed.
	EnsureHeader(def term.Definition) bool
	// NewHole creates a metavariable of the given type.
	NewHole(name string, typ term.Expr) term.Expr
	// CheckInstance elaborates an instantiated candidate against the
	// expected type without reporting diagnostics.
	CheckInstance(e, expected term.Expr) (term.Expr, error)
	// Ambiguous is told when more than one candidate matched.
	Ambiguous(class *term.ClassDef, chosen *term.FunctionDef, others []*term.FunctionDef)
}

// Provider lists the global instances of a class in declaration order.
type Provider interface {
	Instances(class *term.ClassDef) []*term.FunctionDef
}

// Request is a single resolution request.
type Request struct {
	Class       *term.ClassDef
	Classifying term.Expr
	Expected    term.Expr
	Trail       []term.TrailEntry
}

type Reason int

const (
	NoInstance Reason = iota
	Cyclic
	DepthExceeded
	Unclassifiable
	CheckFailed
)

func (r Reason) String() string {
	switch r {
	case Cyclic:
		return "cyclic instance dependency"
	case DepthExceeded:
		return "instance search is too deep"
	case Unclassifiable:
		return "classifying expression cannot be classified"
	case CheckFailed:
		return "matching instance does not check"
	}
	return "no matching instance"
}

// ResolveError explains why a request is unresolved.
type ResolveError struct {
	Reason      Reason
	Class       *term.ClassDef
	Classifying term.Expr
	Trail       []term.TrailEntry
	Candidates  []*term.FunctionDef
	Cause       error
}

func (e *ResolveError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s for %s", e.Reason, e.Class.Name())
	if e.Classifying != nil {
		fmt.Fprintf(&sb, " at %s", e.Classifying)
	}
	if len(e.Trail) > 0 {
		sb.WriteString(" (via ")
		for i, t := range e.Trail {
			if i > 0 {
				sb.WriteString(" -> ")
			}
			sb.WriteString(t.Instance.Name())
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *ResolveError) Unwrap() error { return e.Cause }

// Pool resolves requests against a local pool and a provider of global
// instances.
type Pool struct {
	provider Provider
	local    *LocalPool
	maxDepth int
	logger   *slog.Logger
}

func NewPool(provider Provider, local *LocalPool, maxDepth int, logger *slog.Logger) *Pool {
	if local == nil {
		local = NewLocalPool()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{provider: provider, local: local, maxDepth: maxDepth, logger: logger.With("section", "instance")}
}

func (p *Pool) Local() *LocalPool { return p.local }

// Resolve finds an instance for req.
func (p *Pool) Resolve(ctx Context, req Request) (term.Expr, *ResolveError) {
	fail := func(r Reason, cause error, cands ...*term.FunctionDef) *ResolveError {
		return &ResolveError{Reason: r, Class: req.Class, Classifying: req.Classifying, Trail: req.Trail, Candidates: cands, Cause: cause}
	}

	if v, ok := p.local.Find(ctx, req.Class, req.Classifying); ok {
		return v, nil
	}
	if p.maxDepth > 0 && len(req.Trail) >= p.maxDepth {
		return nil, fail(DepthExceeded, nil)
	}

	var query term.Expr
	if req.Class.ClassifyingField() != nil {
		if req.Classifying == nil {
			return nil, fail(Unclassifiable, nil)
		}
		query = unwrapLambdas(ctx, req.Classifying)
		if !classifiable(query) {
			return nil, fail(Unclassifiable, nil)
		}
	}

	var matches []*term.FunctionDef
	for _, cand := range p.provider.Instances(req.Class) {
		if !ctx.EnsureHeader(cand) {
			continue
		}
		if query == nil || headMatch(query, candidateClassifying(ctx, cand)) {
			matches = append(matches, cand)
		}
	}
	if len(matches) == 0 {
		return nil, fail(NoInstance, nil)
	}

	cand := matches[0]
	if len(matches) > 1 {
		ctx.Ambiguous(req.Class, cand, matches[1:])
	}
	step := term.TrailEntry{Instance: cand, Class: req.Class, Classifying: query}
	if onTrail(ctx, req.Trail, step) {
		p.logger.Debug("instance cycle", "instance", cand.Name(), "class", req.Class.Name(), "depth", len(req.Trail))
		return nil, fail(Cyclic, nil, cand)
	}
	trail := append(append([]term.TrailEntry(nil), req.Trail...), step)
	result, err := ctx.CheckInstance(p.instantiate(ctx, cand, trail), req.Expected)
	if err != nil {
		reason := CheckFailed
		var inner *ResolveError
		if errors.As(err, &inner) && inner.Reason == Cyclic {
			reason = Cyclic
		}
		return nil, fail(reason, err, cand)
	}
	p.logger.Debug("instance resolved", "class", req.Class.Name(), "instance", cand.Name(), "depth", len(req.Trail))
	return result, nil
}

// instantiate applies cand to fresh arguments: instance holes for class
// typed parameters and metavariables for the rest.
func (p *Pool) instantiate(ctx Context, cand *term.FunctionDef, trail []term.TrailEntry) term.Expr {
	s := term.NewSubstitution()
	var args []term.Expr
	for _, l := range cand.Parameters().Links() {
		typ := term.Subst(l.Type(), s)
		var arg term.Expr
		if cc, ok := ctx.WHNF(typ).(*term.ClassCall); ok {
			arg = &term.InstanceHole{Class: cc.Class, Trail: trail}
		} else {
			arg = ctx.NewHole(l.Name(), typ)
		}
		s.Add(l.Binding(), arg)
		args = append(args, arg)
	}
	levels := term.Sort{
		PLevel: term.VarLevel(term.NewInferenceLevel(term.PLevelKind), 0),
		HLevel: term.VarLevel(term.NewInferenceLevel(term.HLevelKind), 0),
	}
	return &term.FunCall{Def: cand, Levels: levels, Args: args}
}

// InstanceClass returns the class an instance definition implements.
func InstanceClass(def *term.FunctionDef) *term.ClassDef {
	if cc, ok := def.Result.(*term.ClassCall); ok {
		return cc.Class
	}
	return nil
}

// candidateClassifying is the classifying implementation declared by cand,
// taken from its result type or else from its body.
func candidateClassifying(ctx Context, cand *term.FunctionDef) term.Expr {
	if cc, ok := cand.Result.(*term.ClassCall); ok {
		if e, ok := cc.Classifying(); ok {
			return unwrapLambdas(ctx, e)
		}
	}
	if n, ok := cand.Body().(*term.New); ok {
		if e, ok := n.Call.Classifying(); ok {
			return unwrapLambdas(ctx, e)
		}
	}
	return nil
}

func unwrapLambdas(ctx Context, e term.Expr) term.Expr {
	e = ctx.WHNF(e)
	for {
		lam, ok := e.(*term.Lam)
		if !ok {
			return e
		}
		e = ctx.WHNF(lam.Body)
	}
}

func classifiable(e term.Expr) bool {
	switch e.(type) {
	case *term.FunCall, *term.DataCall, *term.ConCall, *term.ClassCall, *term.Sigma, *term.Universe, *term.IntegerLit:
		return true
	}
	return false
}

// headMatch compares the heads of a query and a candidate's classifying
// expression.
func headMatch(query, cand term.Expr) bool {
	switch q := query.(type) {
	case *term.Universe:
		_, ok := cand.(*term.Universe)
		return ok
	case *term.Sigma:
		_, ok := cand.(*term.Sigma)
		return ok
	case *term.IntegerLit:
		switch c := cand.(type) {
		case *term.IntegerLit:
			return q.Value.Cmp(c.Value) == 0
		case *term.ConCall:
			return c.Con == term.Zero && q.Value.Sign() == 0 || c.Con == term.Suc && q.Value.Sign() > 0
		}
	case *term.ConCall:
		switch c := cand.(type) {
		case *term.ConCall:
			return q.Con == c.Con
		case *term.IntegerLit:
			return q.Con == term.Zero && c.Value.Sign() == 0 || q.Con == term.Suc && c.Value.Sign() > 0
		}
	case *term.FunCall:
		c, ok := cand.(*term.FunCall)
		return ok && c.Def == q.Def
	case *term.DataCall:
		c, ok := cand.(*term.DataCall)
		return ok && c.Data == q.Data
	case *term.ClassCall:
		c, ok := cand.(*term.ClassCall)
		return ok && c.Class == q.Class
	}
	return false
}

// onTrail reports whether step is already on the trail, comparing
// classifying expressions by shape.
func onTrail(ctx Context, trail []term.TrailEntry, step term.TrailEntry) bool {
	for _, t := range trail {
		if t.Instance != step.Instance || t.Class != step.Class {
			continue
		}
		if t.Classifying == nil || step.Classifying == nil {
			if t.Classifying == step.Classifying {
				return true
			}
			continue
		}
		if ctx.StrictEqual(t.Classifying, step.Classifying) {
			return true
		}
	}
	return false
}
