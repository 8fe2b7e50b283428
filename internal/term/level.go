package term

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

type LevelKind int

const (
	PLevelKind LevelKind = iota // predicative
	HLevelKind                  // homotopy
)

// LevelVar is a universe-polymorphic level variable. Standard variables are
// the level parameters of a definition; inference variables are generated
// while checking and constrained by level equations.
type LevelVar struct {
	Name  string
	Kind  LevelKind
	Infer bool
}

func (v *LevelVar) String() string { return v.Name }

var (
	StdPLevel = &LevelVar{Name: `\lp`, Kind: PLevelKind}
	StdHLevel = &LevelVar{Name: `\lh`, Kind: HLevelKind}
)

var lastLevelVar atomic.Int64

// NewInferenceLevel creates a fresh inference level variable.
func NewInferenceLevel(kind LevelKind) *LevelVar {
	n := lastLevelVar.Add(1)
	prefix := "?p"
	if kind == HLevelKind {
		prefix = "?h"
	}
	return &LevelVar{Name: prefix + strconv.FormatInt(n, 10), Kind: kind, Infer: true}
}

// Level is either a constant, `var + constant`, or infinity (homotopy only).
type Level struct {
	Var      *LevelVar
	Const    int
	Infinity bool
}

func ConstLevel(n int) Level           { return Level{Const: n} }
func VarLevel(v *LevelVar, n int) Level { return Level{Var: v, Const: n} }
func InfLevel() Level                  { return Level{Infinity: true} }

func (l Level) IsClosed() bool { return l.Var == nil }

func (l Level) Add(n int) Level {
	if l.Infinity {
		return l
	}
	l.Const += n
	return l
}

func (l Level) Equal(o Level) bool {
	if l.Infinity || o.Infinity {
		return l.Infinity == o.Infinity
	}
	return l.Var == o.Var && l.Const == o.Const
}

// Subst replaces the variable of l if it is in s.
func (l Level) Subst(s LevelSubst) Level {
	if l.Var == nil || l.Infinity {
		return l
	}
	if r, ok := s[l.Var]; ok {
		return r.Add(l.Const)
	}
	return l
}

// MaxLevel returns the least upper bound of a and b when it is expressible
// as a single level.
func MaxLevel(a, b Level) (Level, bool) {
	switch {
	case a.Infinity || b.Infinity:
		return InfLevel(), true
	case a.Var == b.Var:
		return Level{Var: a.Var, Const: max(a.Const, b.Const)}, true
	case a.Var == nil && a.Const <= b.Const:
		return b, true
	case b.Var == nil && b.Const <= a.Const:
		return a, true
	}
	return Level{}, false
}

func (l Level) String() string {
	switch {
	case l.Infinity:
		return `\oo`
	case l.Var == nil:
		return strconv.Itoa(l.Const)
	case l.Const == 0:
		return l.Var.Name
	}
	return fmt.Sprintf("%s+%d", l.Var.Name, l.Const)
}

// Sort is the level pair of a universe: predicative level × homotopy level.
// It is also used as the level arguments of definition calls.
type Sort struct {
	PLevel Level
	HLevel Level
}

func NewSort(p, h int) Sort { return Sort{PLevel: ConstLevel(p), HLevel: ConstLevel(h)} }

// StdSort is the sort of the standard level parameters.
func StdSort() Sort { return Sort{PLevel: VarLevel(StdPLevel, 0), HLevel: VarLevel(StdHLevel, 0)} }

func (s Sort) Succ() Sort { return Sort{PLevel: s.PLevel.Add(1), HLevel: s.HLevel.Add(1)} }

func (s Sort) Subst(ls LevelSubst) Sort {
	if len(ls) == 0 {
		return s
	}
	return Sort{PLevel: s.PLevel.Subst(ls), HLevel: s.HLevel.Subst(ls)}
}

func (s Sort) Equal(o Sort) bool { return s.PLevel.Equal(o.PLevel) && s.HLevel.Equal(o.HLevel) }

// ToSubst maps the standard level variables to the components of s.
func (s Sort) ToSubst() LevelSubst {
	return LevelSubst{StdPLevel: s.PLevel, StdHLevel: s.HLevel}
}

func (s Sort) String() string {
	return fmt.Sprintf(`\Type %s %s`, s.PLevel, s.HLevel)
}

// LevelSubst maps level variables to levels.
type LevelSubst map[*LevelVar]Level
