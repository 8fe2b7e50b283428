// Package compare decides definitional equality of core terms.
package compare

import (
	"fmt"

	"github.com/funvibe/funcore/internal/term"
)

// CMP is the direction of a comparison. LE allows universe cumulativity and
// class subtyping on the left.
type CMP int

const (
	LE CMP = iota - 1
	EQ
	GE
)

func (c CMP) String() string {
	switch c {
	case LE:
		return "<="
	case GE:
		return ">="
	}
	return "=="
}

// Flip swaps the direction.
func (c CMP) Flip() CMP { return -c }

// Equation is a comparison that could not be decided yet because one side is
// stuck on an unsolved metavariable.
type Equation struct {
	Cmp   CMP
	Left  term.Expr
	Right term.Expr
	Type  term.Expr
}

func (e Equation) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Cmp, e.Right)
}

// LevelEquation is a constraint between two universe levels.
type LevelEquation struct {
	Cmp   CMP
	Left  term.Level
	Right term.Level
}

func (e LevelEquation) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Cmp, e.Right)
}

// Satisfied decides a constraint between constant levels. The second result
// is false when the constraint mentions a level variable.
func (e LevelEquation) Satisfied() (ok, decided bool) {
	l, r := e.Left, e.Right
	if l.Infinity || r.Infinity {
		switch e.Cmp {
		case LE:
			return r.Infinity, true
		case GE:
			return l.Infinity, true
		}
		return l.Infinity == r.Infinity, true
	}
	if l.Var != nil || r.Var != nil {
		if l.Var == r.Var {
			return levelCmp(e.Cmp, l.Const, r.Const), true
		}
		return false, false
	}
	return levelCmp(e.Cmp, l.Const, r.Const), true
}

func levelCmp(c CMP, l, r int) bool {
	switch c {
	case LE:
		return l <= r
	case GE:
		return l >= r
	}
	return l == r
}

// Equations collects everything a comparison left for later: postponed
// expression equations and the level constraints it generated.
type Equations struct {
	Postponed []Equation
	// Failed are postponed equations that turned out false once their
	// metavariables were solved.
	Failed   []Equation
	Levels   []LevelEquation
	violated bool
}

// Result is a snapshot of the collected equations.
type Result struct {
	OK        bool
	Postponed []Equation
	Levels    []LevelEquation
}

// Result reports OK when nothing is postponed and no constant level
// constraint was violated.
func (e *Equations) Result() Result {
	return Result{
		OK:        len(e.Postponed) == 0 && len(e.Failed) == 0 && !e.violated,
		Postponed: append([]Equation(nil), e.Postponed...),
		Levels:    append([]LevelEquation(nil), e.Levels...),
	}
}

func (e *Equations) postpone(eq Equation) {
	e.Postponed = append(e.Postponed, eq)
}

// addLevel records a level constraint and decides it immediately when it is
// between constants.
func (e *Equations) addLevel(cmp CMP, l, r term.Level) bool {
	eq := LevelEquation{Cmp: cmp, Left: l, Right: r}
	e.Levels = append(e.Levels, eq)
	if ok, decided := eq.Satisfied(); decided && !ok {
		e.violated = true
		return false
	}
	return true
}

func (e *Equations) addSort(cmp CMP, l, r term.Sort) bool {
	ok := e.addLevel(cmp, l.PLevel, r.PLevel)
	return e.addLevel(cmp, l.HLevel, r.HLevel) && ok
}

// Mark is a point the equation set can be truncated back to.
type Mark struct {
	postponed, failed, levels int
	violated                  bool
}

func (e *Equations) Mark() Mark {
	return Mark{postponed: len(e.Postponed), failed: len(e.Failed), levels: len(e.Levels), violated: e.violated}
}

// Rollback drops what was collected after m.
func (e *Equations) Rollback(m Mark) {
	if len(e.Postponed) > m.postponed {
		e.Postponed = e.Postponed[:m.postponed]
	}
	if len(e.Failed) > m.failed {
		e.Failed = e.Failed[:m.failed]
	}
	if len(e.Levels) > m.levels {
		e.Levels = e.Levels[:m.levels]
	}
	e.violated = m.violated
}

// Reset drops everything collected so far.
func (e *Equations) Reset() {
	e.Postponed, e.Failed, e.Levels, e.violated = nil, nil, nil, false
}

// Require records the constraint l cmp r.
func (e *Equations) Require(cmp CMP, l, r term.Level) bool {
	return e.addLevel(cmp, l, r)
}

// SolveLevels assigns every inference level variable the least level
// satisfying the recorded constraints. It returns the assignment and the
// constraints that still fail under it.
func (e *Equations) SolveLevels() (term.LevelSubst, []LevelEquation) {
	sol := make(term.LevelSubst)
	var bounds []LevelEquation
	for _, eq := range e.Levels {
		for _, v := range []*term.LevelVar{eq.Left.Var, eq.Right.Var} {
			if v != nil && v.Infer {
				if _, ok := sol[v]; !ok {
					sol[v] = term.ConstLevel(0)
				}
			}
		}
		switch eq.Cmp {
		case LE:
			bounds = append(bounds, eq)
		case GE:
			bounds = append(bounds, LevelEquation{Cmp: LE, Left: eq.Right, Right: eq.Left})
		default:
			bounds = append(bounds,
				LevelEquation{Cmp: LE, Left: eq.Left, Right: eq.Right},
				LevelEquation{Cmp: LE, Left: eq.Right, Right: eq.Left})
		}
	}

	// Raising a variable can only raise others, so the loop stops after at
	// most one pass per bound unless the constraints are cyclic and
	// unsatisfiable.
	for pass := 0; pass <= len(bounds); pass++ {
		changed := false
		for _, b := range bounds {
			r := b.Right
			if r.Var == nil || !r.Var.Infer || r.Infinity {
				continue
			}
			l := b.Left.Subst(sol)
			if l.Infinity {
				continue
			}
			need := term.Level{Var: l.Var, Const: max(l.Const-r.Const, 0)}
			cur := sol[r.Var]
			next, ok := term.MaxLevel(cur, need)
			if ok && !next.Equal(cur) {
				sol[r.Var] = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var failed []LevelEquation
	for _, eq := range e.Levels {
		s := LevelEquation{Cmp: eq.Cmp, Left: eq.Left.Subst(sol), Right: eq.Right.Subst(sol)}
		if ok, decided := s.Satisfied(); decided && !ok {
			failed = append(failed, eq)
		}
	}
	return sol, failed
}
