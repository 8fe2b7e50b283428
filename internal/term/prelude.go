package term

import "math/big"

// Built-in definitions every module can refer to.
var (
	Nat   *DataDef
	Zero  *Constructor
	Suc   *Constructor
	Path  *DataDef
	Idp   *Constructor
	Plus  *FunctionDef
	Mul   *FunctionDef
	Minus *FunctionDef
)

// Prelude lists the built-in definitions by name.
var Prelude = map[string]Definition{}

func init() {
	Nat = NewData("Nat")
	Nat.Sort = NewSort(0, 0)
	Zero = Nat.AddConstructor("zero", nil)
	Suc = Nat.AddConstructor("suc", Param("n", NatType()))

	a := NewBinding("A", &Universe{Sort: StdSort()})
	lhs := NewBinding("a", NewRef(a))
	rhs := NewBinding("a'", NewRef(a))
	Path = NewData("=")
	Path.Sort = StdSort()
	Path.SetParameters(Params(
		ParamGroup{Bindings: []*Binding{a}},
		ParamGroup{Bindings: []*Binding{lhs, rhs}, Explicit: true},
	))
	Idp = Path.AddConstructor("idp", nil)
	Idp.Reflexivity = true

	Plus = arith("+", func(x, y *big.Int) *big.Int { return new(big.Int).Add(x, y) },
		func(self *FunctionDef) *ElimBody {
			x1, x2, y := natVar("x"), natVar("x"), natVar("y")
			return &ElimBody{Clauses: []*Clause{
				{Patterns: []Pattern{&VarPattern{x1}, conPat(Zero)}, Body: NewRef(x1)},
				{Patterns: []Pattern{&VarPattern{x2}, conPat(Suc, &VarPattern{y})},
					Body: SucOf(&FunCall{Def: self, Args: []Expr{NewRef(x2), NewRef(y)}})},
			}}
		})
	Mul = arith("*", func(x, y *big.Int) *big.Int { return new(big.Int).Mul(x, y) },
		func(self *FunctionDef) *ElimBody {
			x2, y := natVar("x"), natVar("y")
			return &ElimBody{Clauses: []*Clause{
				{Patterns: []Pattern{&VarPattern{}, conPat(Zero)}, Body: NewInt(0)},
				{Patterns: []Pattern{&VarPattern{x2}, conPat(Suc, &VarPattern{y})},
					Body: &FunCall{Def: Plus, Args: []Expr{
						&FunCall{Def: self, Args: []Expr{NewRef(x2), NewRef(y)}}, NewRef(x2)}}},
			}}
		})
	// Truncated subtraction.
	Minus = arith("-", func(x, y *big.Int) *big.Int {
		if x.Cmp(y) < 0 {
			return new(big.Int)
		}
		return new(big.Int).Sub(x, y)
	}, func(self *FunctionDef) *ElimBody {
		x1, x, y := natVar("x"), natVar("x"), natVar("y")
		return &ElimBody{Clauses: []*Clause{
			{Patterns: []Pattern{&VarPattern{x1}, conPat(Zero)}, Body: NewRef(x1)},
			{Patterns: []Pattern{conPat(Zero), &VarPattern{}}, Body: NewInt(0)},
			{Patterns: []Pattern{conPat(Suc, &VarPattern{x}), conPat(Suc, &VarPattern{y})},
				Body: &FunCall{Def: self, Args: []Expr{NewRef(x), NewRef(y)}}},
		}}
	})

	for _, d := range []Definition{Nat, Zero, Suc, Path, Idp, Plus, Mul, Minus} {
		d.SetStatus(StatusDone)
		Prelude[d.Name()] = d
	}
}

func conPat(c *Constructor, args ...Pattern) *ConPattern {
	return &ConPattern{Con: c, Args: args}
}

func natVar(name string) *Binding { return NewBinding(name, NatType()) }

func arith(name string, op func(x, y *big.Int) *big.Int, body func(self *FunctionDef) *ElimBody) *FunctionDef {
	f := NewFunction(name, KindFunc)
	f.SetParameters(Params(ParamGroup{Bindings: []*Binding{natVar("x"), natVar("y")}, Explicit: true}))
	f.Result = NatType()
	f.Builtin = func(args []Expr) (Expr, bool) {
		if len(args) != 2 {
			return nil, false
		}
		l, ok1 := args[0].(*IntegerLit)
		r, ok2 := args[1].(*IntegerLit)
		if !ok1 || !ok2 {
			return nil, false
		}
		return &IntegerLit{Value: op(l.Value, r.Value)}, true
	}
	_ = f.SetElimBody(body(f))
	return f
}

// NatType is the type of natural numbers.
func NatType() *DataCall { return &DataCall{Data: Nat} }

// PathType is the path type a = b in A.
func PathType(typ, a, b Expr) *DataCall {
	return &DataCall{Data: Path, Args: []Expr{typ, a, b}}
}

// IdpOf is the reflexivity path at a.
func IdpOf(typ, a Expr) *ConCall {
	return &ConCall{Con: Idp, DataArgs: []Expr{typ, a, a}}
}

// SucOf is the successor of e, folded when e is a literal.
func SucOf(e Expr) Expr {
	if lit, ok := e.(*IntegerLit); ok {
		return &IntegerLit{Value: new(big.Int).Add(lit.Value, big.NewInt(1))}
	}
	return &ConCall{Con: Suc, Args: []Expr{e}}
}
