package compare

import (
	"fmt"

	"github.com/funvibe/funcore/internal/term"
)

// PatternUnificationError means a reflexivity pattern forces two endpoints
// to be equal and neither of them is a variable the match could eliminate.
type PatternUnificationError struct {
	Param   *term.Binding
	Pattern term.Pattern
	Left    term.Expr
	Right   term.Expr
}

func (e *PatternUnificationError) Error() string {
	return fmt.Sprintf("Cannot unify parameter '%s' with pattern %s since the parameter is matched by an idp constructor (%s vs %s)",
		e.Param.Name(), e.Pattern, e.Left, e.Right)
}

// UnifyPatternEndpoints makes the endpoints of a path matched by an idp
// pattern equal. free reports whether a variable may be eliminated by the
// match. The result maps the eliminated variable to the other endpoint; it is
// empty when the endpoints are already equal.
func (c *Comparer) UnifyPatternEndpoints(param *term.Binding, pattern term.Pattern, left, right term.Expr, free func(*term.Binding) bool) (*term.Substitution, error) {
	s := term.NewSubstitution()
	if c.Strict().Equal(left, right, nil) {
		return s, nil
	}
	wl, wr := c.norm.WHNF(left), c.norm.WHNF(right)
	if b := eliminable(wr, wl, free); b != nil {
		return s.Add(b, wl), nil
	}
	if b := eliminable(wl, wr, free); b != nil {
		return s.Add(b, wr), nil
	}
	return nil, &PatternUnificationError{Param: param, Pattern: pattern, Left: left, Right: right}
}

func eliminable(v, other term.Expr, free func(*term.Binding) bool) *term.Binding {
	ref, ok := v.(*term.Ref)
	if !ok || !free(ref.Binding) || term.Occurs(other, ref.Binding.ID()) {
		return nil
	}
	return ref.Binding
}
