package term

import (
	"fmt"
	"math/big"
)

// Expr is a fully elaborated core term. The set of implementations is closed;
// every operation over terms switches exhaustively on the concrete type.
// Expressions are immutable once constructed.
type Expr interface {
	fmt.Stringer
	isExpr()
}

// Decision says whether an expression is already in weak head normal form.
type Decision int

const (
	// Maybe means reduction is blocked on something unknown (an unsolved
	// hole, an unknown binding type) and must be decided again later.
	Maybe Decision = iota
	Yes
	No
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "YES"
	case No:
		return "NO"
	}
	return "MAYBE"
}

// Ref is a reference to a variable.
type Ref struct {
	Binding *Binding
}

// FunCall is a saturated call of a function (or instance) definition.
type FunCall struct {
	Def    *FunctionDef
	Levels Sort
	Args   []Expr
}

// ConCall is a constructor call. DataArgs are the parameters of the data type.
type ConCall struct {
	Con      *Constructor
	Levels   Sort
	DataArgs []Expr
	Args     []Expr
}

// DataCall is a data type applied to its parameters.
type DataCall struct {
	Data   *DataDef
	Levels Sort
	Args   []Expr
}

// FieldCall projects a field out of a class instance.
type FieldCall struct {
	Field *ClassField
	Arg   Expr
}

// New is a literal record construction; its class call implements every field.
type New struct {
	Call *ClassCall
}

type Lam struct {
	Param *DependentLink
	Body  Expr
}

type Pi struct {
	Param *DependentLink
	Cod   Expr
}

type Sigma struct {
	Params *DependentLink
}

type Tuple struct {
	Fields []Expr
	Type   *Sigma
}

// Proj is the Index-th projection of a tuple.
type Proj struct {
	Tuple Expr
	Index int
}

type App struct {
	Fun Expr
	Arg Expr
}

type Universe struct {
	Sort Sort
}

type LetClause struct {
	Binding *Binding
	Expr    Expr
}

// Let binds its clauses sequentially; each clause sees the previous ones.
type Let struct {
	Clauses []*LetClause
	Body    Expr
}

// Case matches Args against the clauses of Body. Params bind the scrutinees
// in Result.
type Case struct {
	Args   []Expr
	Params *DependentLink
	Result Expr
	Body   *ElimBody
}

// IntegerLit is a built-in natural number.
type IntegerLit struct {
	Value *big.Int
}

// ErrorExpr stands in for a term that failed to check. Expr optionally keeps
// the original term for error recovery; a named goal is an ErrorExpr with
// IsGoal set.
type ErrorExpr struct {
	Expr   Expr
	Goal   string
	IsGoal bool
}

// Hole is a reference to a metavariable. Solutions are kept by the checking
// session, never in the node.
type Hole struct {
	Var *InferenceVar
}

// TrailEntry records one step of recursive instance search.
type TrailEntry struct {
	Instance    *FunctionDef
	Class       *ClassDef
	Classifying Expr
}

// InstanceHole is an implicit instance argument that still has to be
// resolved. Trail lists the instance searches that led to it.
type InstanceHole struct {
	Class *ClassDef
	Trail []TrailEntry
}

func (*Ref) isExpr()          {}
func (*FunCall) isExpr()      {}
func (*ConCall) isExpr()      {}
func (*DataCall) isExpr()     {}
func (*ClassCall) isExpr()    {}
func (*FieldCall) isExpr()    {}
func (*New) isExpr()          {}
func (*Lam) isExpr()          {}
func (*Pi) isExpr()           {}
func (*Sigma) isExpr()        {}
func (*Tuple) isExpr()        {}
func (*Proj) isExpr()         {}
func (*App) isExpr()          {}
func (*Universe) isExpr()     {}
func (*Let) isExpr()          {}
func (*Case) isExpr()         {}
func (*IntegerLit) isExpr()   {}
func (*ErrorExpr) isExpr()    {}
func (*Hole) isExpr()         {}
func (*InstanceHole) isExpr() {}

func NewRef(b *Binding) *Ref { return &Ref{Binding: b} }

func NewInt(n int64) *IntegerLit { return &IntegerLit{Value: big.NewInt(n)} }

func NewBigInt(n *big.Int) *IntegerLit { return &IntegerLit{Value: new(big.Int).Set(n)} }

// Apps applies f to args one at a time.
func Apps(f Expr, args ...Expr) Expr {
	for _, a := range args {
		f = &App{Fun: f, Arg: a}
	}
	return f
}

// Arrow is the non-dependent function type.
func Arrow(dom, cod Expr) *Pi {
	return &Pi{Param: Typed(true, NewHiddenBinding("_", dom), nil), Cod: cod}
}

// MakeFieldCall builds a projection, reducing it right away when the argument
// is a literal record or a variable whose class type implements the field.
func MakeFieldCall(f *ClassField, arg Expr) Expr {
	if f.Property {
		return &FieldCall{Field: f, Arg: arg}
	}
	switch a := arg.(type) {
	case *New:
		if impl, ok := a.Call.ImplementationAt(f, arg); ok {
			return impl
		}
	case *Ref:
		if cc, ok := a.Binding.Type().(*ClassCall); ok {
			if impl, ok := cc.ImplementationAt(f, arg); ok {
				return impl
			}
		}
	case *ErrorExpr:
		if a.Expr != nil {
			return &FieldCall{Field: f, Arg: &ErrorExpr{Goal: a.Goal, IsGoal: a.IsGoal}}
		}
	}
	return &FieldCall{Field: f, Arg: arg}
}

// IsZero reports whether e is the literal 0 or the zero constructor.
func IsZero(e Expr) bool {
	switch x := e.(type) {
	case *IntegerLit:
		return x.Value.Sign() == 0
	case *ConCall:
		return x.Con == Zero
	}
	return false
}
