package normalize

import (
	"math/big"

	"github.com/funvibe/funcore/internal/term"
)

type matchOutcome int

const (
	matchOK matchOutcome = iota
	matchFail
	matchStuck
)

type clauseMatch struct {
	clause *term.Clause
	subst  *term.Substitution
	// stuck is the subterm that prevents choosing a clause.
	stuck term.Expr
}

// matchClauses selects the first clause whose patterns match args. If a
// clause can neither be accepted nor rejected, matching stops there.
func (n *Normalizer) matchClauses(body *term.ElimBody, args []term.Expr) clauseMatch {
	for _, c := range body.Clauses {
		if len(c.Patterns) != len(args) || c.Body == nil {
			continue
		}
		s := term.NewSubstitution()
		outcome := matchOK
		var stuck term.Expr
		for i, p := range c.Patterns {
			outcome, stuck = n.match(p, args[i], s)
			if outcome != matchOK {
				break
			}
		}
		switch outcome {
		case matchOK:
			return clauseMatch{clause: c, subst: s}
		case matchStuck:
			return clauseMatch{stuck: stuck}
		}
	}
	return clauseMatch{}
}

var one = big.NewInt(1)

func (n *Normalizer) match(p term.Pattern, e term.Expr, s *term.Substitution) (matchOutcome, term.Expr) {
	switch p := p.(type) {
	case *term.VarPattern:
		if p.Binding != nil {
			s.Add(p.Binding, e)
		}
		return matchOK, nil
	case *term.ConPattern:
		w := n.WHNF(e)
		switch w := w.(type) {
		case *term.ConCall:
			if w.Con != p.Con {
				return matchFail, nil
			}
			for i, sub := range p.Args {
				if i >= len(w.Args) {
					return matchFail, nil
				}
				if outcome, stuck := n.match(sub, w.Args[i], s); outcome != matchOK {
					return outcome, stuck
				}
			}
			return matchOK, nil
		case *term.IntegerLit:
			switch p.Con {
			case term.Zero:
				if w.Value.Sign() == 0 {
					return matchOK, nil
				}
			case term.Suc:
				if w.Value.Sign() > 0 && len(p.Args) == 1 {
					pred := &term.IntegerLit{Value: new(big.Int).Sub(w.Value, one)}
					return n.match(p.Args[0], pred, s)
				}
			}
			return matchFail, nil
		case *term.Lam, *term.Pi, *term.Sigma, *term.Tuple, *term.Universe, *term.DataCall, *term.ClassCall, *term.New:
			return matchFail, nil
		}
		stuck := n.StuckExpression(w)
		if stuck == nil {
			stuck = w
		}
		return matchStuck, stuck
	}
	return matchFail, nil
}
