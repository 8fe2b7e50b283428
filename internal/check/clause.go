package check

import (
	set "github.com/hashicorp/go-set/v3"

	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

// clauses checks an elimination body against the telescope params. Clause
// bodies must have type result, with the parameters replaced by the
// clause's patterns.
func (s *Session) clauses(params *term.DependentLink, body *term.ElimBody, result term.Expr) *term.ElimBody {
	out := &term.ElimBody{}
	if body == nil {
		return out
	}
	links := params.Links()
	for _, c := range body.Clauses {
		out.Clauses = append(out.Clauses, s.clause(links, c, result))
	}
	return out
}

type patternChecker struct {
	s *Session
	// sub maps parameters to the expressions of their patterns.
	sub *term.Substitution
	// elim maps pattern variables eliminated by idp patterns to the other
	// endpoint.
	elim *term.Substitution
	free *set.Set[term.BindingID]
}

func (pc *patternChecker) typeOf(e term.Expr) term.Expr {
	return term.Subst(term.Subst(e, pc.sub), pc.elim)
}

func (s *Session) clause(links []*term.DependentLink, c *term.Clause, result term.Expr) *term.Clause {
	restore := s.scope()
	defer restore()
	failed := &term.Clause{Patterns: c.Patterns, Body: &term.ErrorExpr{Expr: c.Body}}
	if len(c.Patterns) != len(links) {
		s.errorf("expected %d patterns, got %d", len(links), len(c.Patterns))
		return failed
	}
	pc := &patternChecker{
		s:    s,
		sub:  term.NewSubstitution(),
		elim: term.NewSubstitution(),
		free: set.New[term.BindingID](4),
	}
	patterns := make([]term.Pattern, len(links))
	for i, l := range links {
		p, e, ok := pc.pattern(c.Patterns[i], pc.typeOf(l.Type()), l.Binding())
		if !ok {
			return failed
		}
		patterns[i] = p
		pc.sub.Add(l.Binding(), e)
	}
	if c.Body == nil {
		s.errorf("clause %s has no body", c)
		return failed
	}
	body, _ := s.CheckExpr(term.Subst(c.Body, pc.elim), pc.typeOf(result))
	return &term.Clause{Patterns: patterns, Body: body}
}

// pattern checks p against typ and returns the checked pattern with the
// expression it stands for.
func (pc *patternChecker) pattern(p term.Pattern, typ term.Expr, param *term.Binding) (term.Pattern, term.Expr, bool) {
	s := pc.s
	switch p := p.(type) {
	case *term.VarPattern:
		b := p.Binding
		if b == nil {
			return p, term.NewRef(term.NewHiddenBinding("_", typ)), true
		}
		b.SetType(typ)
		s.bind(b)
		pc.free.Insert(b.ID())
		return p, term.NewRef(b), true

	case *term.ConPattern:
		dc, ok := s.WHNF(typ).(*term.DataCall)
		if !ok || dc.Data != p.Con.Data {
			s.mismatch(typ, &term.DataCall{Data: p.Con.Data}, term.PatternExpr(p))
			return nil, nil, false
		}
		if p.Con.Reflexivity {
			return pc.idp(p, dc, param)
		}
		links := p.Con.Parameters().Links()
		if len(links) != len(p.Args) {
			s.errorf("constructor %s expects %d patterns, got %d", p.Con.Name(), len(links), len(p.Args))
			return nil, nil, false
		}
		sub := term.ParamSubst(dc.Data.Parameters(), dc.Args).AddLevels(dc.Levels.ToSubst())
		args := make([]term.Pattern, len(p.Args))
		exprs := make([]term.Expr, len(p.Args))
		for i, l := range links {
			a, e, ok := pc.pattern(p.Args[i], term.Subst(l.Type(), sub), nil)
			if !ok {
				return nil, nil, false
			}
			args[i], exprs[i] = a, e
			sub.Add(l.Binding(), e)
		}
		con := &term.ConCall{Con: p.Con, Levels: dc.Levels, DataArgs: dc.Args, Args: exprs}
		return &term.ConPattern{Con: p.Con, Args: args}, con, true
	}
	s.errorf("unexpected pattern %s", p)
	return nil, nil, false
}

// idp matches a path with the reflexivity constructor. One endpoint must be
// a pattern variable of the clause, which is then replaced by the other.
func (pc *patternChecker) idp(p *term.ConPattern, dc *term.DataCall, param *term.Binding) (term.Pattern, term.Expr, bool) {
	s := pc.s
	if param == nil {
		param = term.NewHiddenBinding("_", dc)
	}
	n := len(dc.Args)
	if n < 2 {
		s.errorf("%s is not a path type", dc)
		return nil, nil, false
	}
	left, right := pc.typeOf(dc.Args[n-2]), pc.typeOf(dc.Args[n-1])
	sub, err := s.cmp.UnifyPatternEndpoints(param, p, left, right, func(b *term.Binding) bool {
		return pc.free.Contains(b.ID())
	})
	if err != nil {
		s.report(diagnostics.NewError(diagnostics.ErrT002, term.Position{}, err.Error()).WithPayload(err))
		return nil, nil, false
	}
	for id, e := range sub.Exprs {
		pc.elim.Exprs[id] = e
		pc.free.Remove(id)
	}
	args := make([]term.Expr, n)
	for i, a := range dc.Args {
		args[i] = pc.typeOf(a)
	}
	return p, &term.ConCall{Con: p.Con, Levels: dc.Levels, DataArgs: args}, true
}
