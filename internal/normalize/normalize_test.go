package normalize

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/funvibe/funcore/internal/term"
)

type testState struct {
	solutions  map[*term.InferenceVar]term.Expr
	inProgress map[term.Definition]bool
}

func newTestState() *testState {
	return &testState{
		solutions:  make(map[*term.InferenceVar]term.Expr),
		inProgress: make(map[term.Definition]bool),
	}
}

func (s *testState) InProgress(d term.Definition) bool { return s.inProgress[d] }

func (s *testState) Solution(v *term.InferenceVar) (term.Expr, bool) {
	e, ok := s.solutions[v]
	return e, ok
}

func plus(a, b term.Expr) term.Expr {
	return &term.FunCall{Def: term.Plus, Args: []term.Expr{a, b}}
}

// double (n : Nat) : Nat | zero => zero | suc m => suc (suc (double m))
func double() *term.FunctionDef {
	f := term.NewFunction("double", term.KindFunc)
	f.SetParameters(term.Param("n", term.NatType()))
	f.Result = term.NatType()
	m := term.NewBinding("m", term.NatType())
	_ = f.SetElimBody(&term.ElimBody{Clauses: []*term.Clause{
		{Patterns: []term.Pattern{&term.ConPattern{Con: term.Zero}}, Body: &term.ConCall{Con: term.Zero}},
		{Patterns: []term.Pattern{&term.ConPattern{Con: term.Suc, Args: []term.Pattern{&term.VarPattern{Binding: m}}}},
			Body: term.SucOf(term.SucOf(&term.FunCall{Def: f, Args: []term.Expr{term.NewRef(m)}}))},
	}})
	f.SetStatus(term.StatusDone)
	return f
}

func TestWHNFIdempotent(t *testing.T) {
	n := New(nil)
	x := term.NewBinding("x", term.NatType())
	lam := &term.Lam{Param: term.Typed(true, x, nil), Body: term.SucOf(term.NewRef(x))}

	exprs := []term.Expr{
		term.Apps(lam, term.NewInt(3)),
		plus(term.NewInt(2), term.NewInt(3)),
		plus(term.NewRef(x), term.SucOf(term.NewRef(x))),
		&term.FunCall{Def: double(), Args: []term.Expr{term.NewInt(2)}},
		term.NewRef(x),
	}
	for _, e := range exprs {
		w := n.WHNF(e)
		if again := n.WHNF(w); again != w {
			t.Errorf("WHNF(WHNF(%s)) = %s, want the same expression %s", e, again, w)
		}
	}
}

func TestLiteralArithmetic(t *testing.T) {
	n := New(nil)
	tests := []struct {
		expr term.Expr
		want string
	}{
		{plus(term.NewInt(2), term.NewInt(40)), "42"},
		{&term.FunCall{Def: term.Mul, Args: []term.Expr{term.NewInt(6), term.NewInt(7)}}, "42"},
		{&term.FunCall{Def: term.Minus, Args: []term.Expr{term.NewInt(2), term.NewInt(5)}}, "0"},
		{term.SucOf(term.NewInt(9)), "10"},
		{&term.ConCall{Con: term.Suc, Args: []term.Expr{term.NewInt(9)}}, "10"},
		{&term.FunCall{Def: double(), Args: []term.Expr{term.NewInt(3)}}, "6"},
	}
	for _, tt := range tests {
		if got := n.Normalize(tt.expr).String(); got != tt.want {
			t.Errorf("Normalize(%s) = %s, want %s", tt.expr, got, tt.want)
		}
	}
}

func TestConstructorNumeralsFoldToLiterals(t *testing.T) {
	n := New(nil)
	zero := &term.ConCall{Con: term.Zero}
	two := &term.ConCall{Con: term.Suc, Args: []term.Expr{&term.ConCall{Con: term.Suc, Args: []term.Expr{zero}}}}
	tests := []struct {
		expr term.Expr
		want int64
	}{
		{zero, 0},
		{two, 2},
		{plus(two, two), 4},
		{&term.ConCall{Con: term.Suc, Args: []term.Expr{plus(term.NewInt(1), zero)}}, 2},
	}
	for _, tt := range tests {
		lit, ok := n.WHNF(tt.expr).(*term.IntegerLit)
		if !ok || lit.Value.Int64() != tt.want {
			t.Errorf("WHNF(%s) = %s, want the literal %d", tt.expr, n.WHNF(tt.expr), tt.want)
		}
	}

	x := term.NewBinding("x", term.NatType())
	if _, ok := n.WHNF(term.SucOf(term.NewRef(x))).(*term.ConCall); !ok {
		t.Errorf("suc x should stay a constructor")
	}
}

func TestUnfoldWithVariable(t *testing.T) {
	n := New(nil)
	x := term.NewBinding("x", term.NatType())
	// x + suc 0 reduces to suc (x + 0) by the second clause of +.
	w := n.WHNF(plus(term.NewRef(x), &term.ConCall{Con: term.Suc, Args: []term.Expr{&term.ConCall{Con: term.Zero}}}))
	con, ok := w.(*term.ConCall)
	if !ok || con.Con != term.Suc {
		t.Fatalf("WHNF = %s, want suc (...)", w)
	}
	if got := n.Normalize(w).String(); got != "suc x" {
		t.Errorf("Normalize = %s, want suc x", got)
	}
}

func TestStuckOnVariable(t *testing.T) {
	n := New(nil)
	x := term.NewBinding("x", term.NatType())
	e := plus(term.NewInt(1), term.NewRef(x))
	w := n.WHNF(e)
	if _, ok := w.(*term.FunCall); !ok {
		t.Fatalf("expected a stuck call, got %s", w)
	}
	stuck, ok := n.StuckExpression(w).(*term.Ref)
	if !ok || stuck.Binding != x {
		t.Errorf("stuck expression = %v, want x", n.StuckExpression(w))
	}
	if d := n.Decide(w); d != term.Yes {
		t.Errorf("Decide = %s, want YES", d)
	}
}

func TestStuckOnHoleAndInvalidate(t *testing.T) {
	st := newTestState()
	n := New(st)
	h := term.NewInferenceVar("h", term.NatType())
	e := &term.FunCall{Def: double(), Args: []term.Expr{&term.Hole{Var: h}}}

	if d := n.Decide(e); d != term.Maybe {
		t.Fatalf("Decide = %s, want MAYBE", d)
	}
	if stuck, ok := n.StuckExpression(n.WHNF(e)).(*term.Hole); !ok || stuck.Var != h {
		t.Fatalf("stuck expression should be the hole, got %s", spew.Sdump(n.StuckExpression(e)))
	}

	st.solutions[h] = term.NewInt(2)
	n.Invalidate(h)

	if d := n.Decide(e); d != term.No {
		t.Errorf("after solving, Decide = %s, want NO", d)
	}
	if got := n.Normalize(e).String(); got != "4" {
		t.Errorf("after solving, Normalize = %s, want 4", got)
	}
}

func TestInProgressIsNotUnfolded(t *testing.T) {
	st := newTestState()
	n := New(st)
	f := double()
	st.inProgress[f] = true
	e := &term.FunCall{Def: f, Args: []term.Expr{term.NewInt(1)}}
	if w := n.WHNF(e); w != term.Expr(e) {
		t.Errorf("definition in progress was unfolded to %s", w)
	}
	if d := n.Decide(e); d != term.Yes {
		t.Errorf("Decide = %s, want YES", d)
	}
}

func TestOpaqueAndNonTerminatingAreNotUnfolded(t *testing.T) {
	n := New(nil)
	opaque := double()
	opaque.Opaque = true
	looping := double()
	looping.SetStatus(term.StatusNonTerminating)
	for _, f := range []*term.FunctionDef{opaque, looping} {
		e := &term.FunCall{Def: f, Args: []term.Expr{term.NewInt(1)}}
		if w := n.WHNF(e); w != term.Expr(e) {
			t.Errorf("%s was unfolded to %s", f.Name(), w)
		}
	}
}

func TestFieldProjection(t *testing.T) {
	n := New(nil)
	c := term.NewClass("C")
	f := c.AddField("f", true, true)
	g := c.AddField("g", false, true)
	cc := term.MustClassCall(c, term.Sort{}, term.Implementation{Field: f, Expr: plus(term.NewInt(1), term.NewInt(1))})

	// Projection out of a literal record.
	if got := n.WHNF(&term.FieldCall{Field: f, Arg: &term.New{Call: cc}}); got.String() != "2" {
		t.Errorf("projection on \\new = %s, want 2", got)
	}

	// Projection out of a variable whose class type implements the field.
	i := term.NewBinding("i", cc)
	if got := n.WHNF(&term.FieldCall{Field: f, Arg: term.NewRef(i)}); got.String() != "2" {
		t.Errorf("projection on a variable = %s, want 2", got)
	}

	// Unimplemented field is stuck on the variable.
	fc := &term.FieldCall{Field: g, Arg: term.NewRef(i)}
	if got := n.WHNF(fc); got != term.Expr(fc) {
		t.Errorf("unimplemented projection reduced to %s", got)
	}
	if _, ok := n.StuckExpression(fc).(*term.Ref); !ok {
		t.Errorf("unimplemented projection should be stuck on the variable")
	}

	// A variable of unknown type leaves the decision open.
	u := term.NewBinding("u", nil)
	if d := n.Decide(&term.FieldCall{Field: g, Arg: term.NewRef(u)}); d != term.Maybe {
		t.Errorf("Decide = %s, want MAYBE", d)
	}
}

func TestBetaAndLet(t *testing.T) {
	n := New(nil)
	x := term.NewBinding("x", term.NatType())
	y := term.NewBinding("y", term.NatType())
	lam := &term.Lam{
		Param: term.Params(term.ParamGroup{Bindings: []*term.Binding{x, y}, Explicit: true}),
		Body:  plus(term.NewRef(x), term.NewRef(y)),
	}
	if got := n.Normalize(term.Apps(lam, term.NewInt(1), term.NewInt(2))).String(); got != "3" {
		t.Errorf("beta = %s, want 3", got)
	}

	z := term.NewBinding("z", term.NatType())
	let := &term.Let{
		Clauses: []*term.LetClause{{Binding: z, Expr: term.NewInt(5)}},
		Body:    term.SucOf(term.NewRef(z)),
	}
	if got := n.Normalize(let).String(); got != "6" {
		t.Errorf("let = %s, want 6", got)
	}
}

func TestCaseStuckOnScrutinee(t *testing.T) {
	n := New(nil)
	x := term.NewBinding("x", term.NatType())
	m := term.NewBinding("m", term.NatType())
	c := &term.Case{
		Args:   []term.Expr{term.NewRef(x)},
		Result: term.NatType(),
		Body: &term.ElimBody{Clauses: []*term.Clause{
			{Patterns: []term.Pattern{&term.ConPattern{Con: term.Zero}}, Body: term.NewInt(1)},
			{Patterns: []term.Pattern{&term.ConPattern{Con: term.Suc, Args: []term.Pattern{&term.VarPattern{Binding: m}}}}, Body: term.NewRef(m)},
		}},
	}
	if stuck, ok := n.StuckExpression(n.WHNF(c)).(*term.Ref); !ok || stuck.Binding != x {
		t.Errorf("case should be stuck on its scrutinee")
	}

	applied := term.SubstOne(c, x, term.NewInt(5))
	if got := n.Normalize(applied).String(); got != "4" {
		t.Errorf("case on 5 = %s, want 4", got)
	}
}
