package check

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/normalize"
	"github.com/funvibe/funcore/internal/term"
)

func nat() term.Expr { return term.NatType() }

// checkEach checks every unit in a group of its own, publishing to table as
// it goes.
func checkEach(t *testing.T, table *Table, units ...*term.Unit) *diagnostics.Reporter {
	t.Helper()
	r := diagnostics.NewReporter()
	for _, u := range units {
		s := NewSession(Options{Provider: table, Reporter: r, MaxInstanceDepth: 8})
		s.CheckGroup([]*term.Unit{u})
		if err := table.Publish(u.Def); err != nil {
			t.Fatalf("publish %s: %v", u.Def.Name(), err)
		}
	}
	return r
}

func noErrors(t *testing.T, r *diagnostics.Reporter) {
	t.Helper()
	for _, d := range r.Diagnostics() {
		if d.Level == diagnostics.LevelError {
			t.Errorf("unexpected diagnostic: %v", d)
		}
	}
}

func fun(name string, params *term.DependentLink, result term.Expr) *term.FunctionDef {
	f := term.NewFunction(name, term.KindFunc)
	f.SetParameters(params)
	f.Result = result
	return f
}

func whnf(e term.Expr) term.Expr {
	return normalize.New(normalize.Static{}).Normalize(e)
}

func TestCheckFunction(t *testing.T) {
	// \func double (n : Nat) : Nat => n + n
	double := fun("double", term.Param("n", nat()), nat())
	n := term.NewRef(double.Parameters().Binding())
	u := &term.Unit{Def: double, Body: &term.FunCall{Def: term.Plus, Args: []term.Expr{n, n}}}

	r := checkEach(t, NewTable(), u)
	noErrors(t, r)
	if double.Status() != term.StatusDone {
		t.Fatalf("status = %s", double.Status())
	}
	got := whnf(&term.FunCall{Def: double, Args: []term.Expr{term.NewInt(21)}})
	if lit, ok := got.(*term.IntegerLit); !ok || lit.Value.Int64() != 42 {
		t.Errorf("double 21 = %s", spew.Sdump(got))
	}
}

func TestTypeMismatch(t *testing.T) {
	bad := fun("bad", nil, nat())
	r := checkEach(t, NewTable(), &term.Unit{Def: bad, Body: &term.Universe{Sort: term.NewSort(0, 0)}})

	ds := r.ByCode(diagnostics.ErrT001)
	if len(ds) != 1 {
		t.Fatalf("diagnostics = %v", r.Diagnostics())
	}
	if ds[0].Definition != "bad" {
		t.Errorf("definition = %q", ds[0].Definition)
	}
	if _, ok := ds[0].Payload.(*diagnostics.TypeMismatch); !ok {
		t.Errorf("payload = %T", ds[0].Payload)
	}
	if bad.Status() != term.StatusBodyFailed {
		t.Errorf("status = %s", bad.Status())
	}
	if _, ok := bad.Body().(*term.ErrorExpr); !ok {
		t.Errorf("body = %s, want an error placeholder", bad.Body())
	}
}

func TestLambdaAgainstPi(t *testing.T) {
	// \func k : Nat -> Nat -> Nat => \lam x y => x
	x, y := term.NewBinding("x", nil), term.NewBinding("y", nil)
	k := fun("k", nil, term.Arrow(nat(), term.Arrow(nat(), nat())))
	body := &term.Lam{Param: term.Untyped(x, term.Typed(true, y, nil)), Body: term.NewRef(x)}
	// y is typed with a nil type so both parameters take their types from
	// the expected Pi.
	r := checkEach(t, NewTable(), &term.Unit{Def: k, Body: body})
	noErrors(t, r)

	got := whnf(term.Apps(&term.FunCall{Def: k}, term.NewInt(1), term.NewInt(2)))
	if lit, ok := got.(*term.IntegerLit); !ok || lit.Value.Int64() != 1 {
		t.Errorf("k 1 2 = %s", got)
	}
}

func TestGoalReportsContext(t *testing.T) {
	// \func g (n : Nat) : Nat => {?todo}
	g := fun("g", term.Param("n", nat()), nat())
	r := checkEach(t, NewTable(), &term.Unit{Def: g, Body: &term.ErrorExpr{IsGoal: true, Goal: "todo"}})

	ds := r.ByCode(diagnostics.ErrT005)
	if len(ds) != 1 {
		t.Fatalf("diagnostics = %v", r.Diagnostics())
	}
	goal, ok := ds[0].Payload.(*diagnostics.Goal)
	if !ok {
		t.Fatalf("payload = %T", ds[0].Payload)
	}
	if goal.Name != "todo" || goal.Expected == nil || goal.Expected.String() != "Nat" {
		t.Errorf("goal = %s", spew.Sdump(goal))
	}
	if len(goal.Context) != 1 || goal.Context[0].Name != "n" {
		t.Errorf("context = %v", goal.Context)
	}
	if r.HasErrors() {
		t.Errorf("a goal is not an error: %v", r.Diagnostics())
	}
}

func TestGoalCollectsErrors(t *testing.T) {
	g := fun("g", nil, nat())
	inner := &term.Universe{Sort: term.NewSort(0, 0)}
	r := checkEach(t, NewTable(), &term.Unit{Def: g, Body: &term.ErrorExpr{IsGoal: true, Expr: inner}})

	ds := r.ByCode(diagnostics.ErrT005)
	if len(ds) != 1 {
		t.Fatalf("diagnostics = %v", r.Diagnostics())
	}
	if goal := ds[0].Payload.(*diagnostics.Goal); len(goal.Errors) != 1 || goal.Errors[0].Code != diagnostics.ErrT001 {
		t.Errorf("goal errors = %v", goal.Errors)
	}
	if len(r.ByCode(diagnostics.ErrT001)) != 0 {
		t.Errorf("errors inside a goal must not be reported on their own")
	}
}

func TestIdpPatternEliminatesVariable(t *testing.T) {
	// \func sym (a b : Nat) (p : a = b) : b = a | a, b, idp => idp
	a, b := term.NewBinding("a", nat()), term.NewBinding("b", nat())
	p := term.NewBinding("p", term.PathType(nat(), term.NewRef(a), term.NewRef(b)))
	sym := fun("sym", term.Typed(true, a, term.Typed(true, b, term.Typed(true, p, nil))),
		term.PathType(nat(), term.NewRef(b), term.NewRef(a)))
	pa, pb := term.NewBinding("a", nil), term.NewBinding("b", nil)
	elim := &term.ElimBody{Clauses: []*term.Clause{{
		Patterns: []term.Pattern{&term.VarPattern{Binding: pa}, &term.VarPattern{Binding: pb}, &term.ConPattern{Con: term.Idp}},
		Body:     &term.ConCall{Con: term.Idp},
	}}}

	r := checkEach(t, NewTable(), &term.Unit{Def: sym, Elim: elim})
	noErrors(t, r)
	if sym.Status() != term.StatusDone {
		t.Errorf("status = %s", sym.Status())
	}
}

func TestIdpPatternOnDistinctConstants(t *testing.T) {
	// \func bad (p : 0 = 1) : Nat | idp => 0
	bad := fun("bad", term.Param("p", term.PathType(nat(), term.NewInt(0), term.NewInt(1))), nat())
	elim := &term.ElimBody{Clauses: []*term.Clause{{
		Patterns: []term.Pattern{&term.ConPattern{Con: term.Idp}},
		Body:     term.NewInt(0),
	}}}

	r := checkEach(t, NewTable(), &term.Unit{Def: bad, Elim: elim})
	ds := r.ByCode(diagnostics.ErrT002)
	if len(ds) != 1 {
		t.Fatalf("diagnostics = %v", r.Diagnostics())
	}
	if ds[0].Unwrap() == nil {
		t.Errorf("the pattern unification error should be reachable")
	}
	if bad.Status() != term.StatusBodyFailed {
		t.Errorf("status = %s", bad.Status())
	}
}

func TestPatternCountMismatch(t *testing.T) {
	f := fun("f", term.Param("n", nat()), nat())
	elim := &term.ElimBody{Clauses: []*term.Clause{{Body: term.NewInt(0)}}}
	r := checkEach(t, NewTable(), &term.Unit{Def: f, Elim: elim})
	if len(r.ByCode(diagnostics.ErrT006)) == 0 {
		t.Errorf("diagnostics = %v", r.Diagnostics())
	}
}

func TestGroupFailureIsolation(t *testing.T) {
	good := fun("good", nil, nat())
	bad := fun("bad", nil, nat())
	user := fun("user", nil, nat())
	units := []*term.Unit{
		{Def: good, Body: term.NewInt(1)},
		{Def: bad, Body: &term.Universe{}},
		{Def: user, Body: &term.FunCall{Def: term.Plus, Args: []term.Expr{&term.FunCall{Def: good}, &term.FunCall{Def: bad}}}},
	}
	r := diagnostics.NewReporter()
	NewSession(Options{Reporter: r}).CheckGroup(units)

	if good.Status() != term.StatusDone || user.Status() != term.StatusDone {
		t.Errorf("statuses: good=%s user=%s", good.Status(), user.Status())
	}
	if bad.Status() != term.StatusBodyFailed {
		t.Errorf("bad status = %s", bad.Status())
	}
	if n := len(r.ByCode(diagnostics.ErrT001)); n != 1 {
		t.Errorf("got %d mismatches, want 1", n)
	}
}

func TestNonTerminatingGroup(t *testing.T) {
	loop := fun("loop", term.Param("x", nat()), nat())
	x := term.NewRef(loop.Parameters().Binding())
	r := diagnostics.NewReporter()
	NewSession(Options{Reporter: r}).CheckGroup([]*term.Unit{{Def: loop, Body: &term.FunCall{Def: loop, Args: []term.Expr{x}}}})

	if loop.Status() != term.StatusNonTerminating {
		t.Errorf("status = %s", loop.Status())
	}
	if len(r.ByCode(diagnostics.ErrT004)) != 1 {
		t.Errorf("diagnostics = %v", r.Diagnostics())
	}
	// non-terminating definitions are never unfolded
	call := &term.FunCall{Def: loop, Args: []term.Expr{term.NewInt(0)}}
	if got := whnf(call); got.String() != call.String() {
		t.Errorf("loop 0 reduced to %s", got)
	}
}

// classWithParam is \class name (X : Nat) { | value : Nat }.
func classWithParam(name, value string) (*term.ClassDef, *term.ClassField, *term.ClassField) {
	c := term.NewClass(name)
	c.Sort = term.NewSort(0, 0)
	x := c.AddField("X", true, true)
	x.Type = nat()
	v := c.AddField(value, false, false)
	v.Type = nat()
	return c, x, v
}

func impl(f *term.ClassField, e term.Expr) term.Implementation {
	return term.Implementation{Field: f, Expr: e}
}

// recursiveInstances builds
//
//	\class A (X : Nat) { | a : Nat }
//	\class B (X : Nat) { | b : Nat }
//	\instance B-inst : B 0 | b => 0
//	\instance A-inst {inst : B 0} : A 0 | a => inst.b
//	\func getA {inst : A 0} : Nat => inst.a
//	\func test : Nat => getA
func recursiveInstances() (units []*term.Unit, test *term.FunctionDef) {
	A, ax, aa := classWithParam("A", "a")
	B, bx, bb := classWithParam("B", "b")
	zero := term.NewInt(0)

	bInst := term.NewFunction("B-inst", term.KindInstance)
	bInst.Result = term.MustClassCall(B, term.Sort{}, impl(bx, zero))
	bInstBody := &term.New{Call: term.MustClassCall(B, term.Sort{}, impl(bx, zero), impl(bb, zero))}

	aInst := term.NewFunction("A-inst", term.KindInstance)
	inst := term.NewBinding("inst", term.MustClassCall(B, term.Sort{}, impl(bx, zero)))
	aInst.SetParameters(term.Typed(false, inst, nil))
	aInst.Result = term.MustClassCall(A, term.Sort{}, impl(ax, zero))
	aInstBody := &term.New{Call: term.MustClassCall(A, term.Sort{},
		impl(ax, zero), impl(aa, &term.FieldCall{Field: bb, Arg: term.NewRef(inst)}))}

	getA := term.NewFunction("getA", term.KindFunc)
	ainst := term.NewBinding("inst", term.MustClassCall(A, term.Sort{}, impl(ax, zero)))
	getA.SetParameters(term.Typed(false, ainst, nil))
	getA.Result = nat()

	test = fun("test", nil, nat())
	units = []*term.Unit{
		{Def: A},
		{Def: B},
		{Def: bInst, Body: bInstBody},
		{Def: aInst, Body: aInstBody},
		{Def: getA, Body: &term.FieldCall{Field: aa, Arg: term.NewRef(ainst)}},
		{Def: test, Body: &term.FunCall{Def: getA, Args: []term.Expr{&term.InstanceHole{Class: A}}}},
	}
	return units, test
}

func TestRecursiveInstances(t *testing.T) {
	units, test := recursiveInstances()
	r := checkEach(t, NewTable(), units...)
	noErrors(t, r)
	if test.Status() != term.StatusDone {
		t.Fatalf("status = %s", test.Status())
	}
	if got := whnf(&term.FunCall{Def: test}); !term.IsZero(got) {
		t.Errorf("test = %s, want 0", spew.Sdump(got))
	}
}

func TestInstanceAtOtherClassifyingValue(t *testing.T) {
	units, _ := recursiveInstances()
	A := units[0].Def.(*term.ClassDef)
	ax := A.Field("X")

	// \func other {inst : A 1} : Nat => inst.a; \func use : Nat => other
	ainst := term.NewBinding("inst", term.MustClassCall(A, term.Sort{}, impl(ax, term.NewInt(1))))
	other := fun("other", term.Typed(false, ainst, nil), nat())
	use := fun("use", nil, nat())
	units = append(units[:4],
		&term.Unit{Def: other, Body: &term.FieldCall{Field: A.Field("a"), Arg: term.NewRef(ainst)}},
		&term.Unit{Def: use, Body: &term.FunCall{Def: other, Args: []term.Expr{&term.InstanceHole{Class: A}}}},
	)

	r := checkEach(t, NewTable(), units...)
	ds := r.ByCode(diagnostics.ErrT003)
	if len(ds) != 1 || ds[0].Definition != "use" {
		t.Fatalf("diagnostics = %v", r.Diagnostics())
	}
	failure, ok := ds[0].Payload.(*diagnostics.InstanceFailure)
	if !ok || failure.Class != "A" {
		t.Errorf("payload = %s", spew.Sdump(ds[0].Payload))
	}
	if use.Status() != term.StatusBodyFailed {
		t.Errorf("status = %s", use.Status())
	}
}

func TestDeferredInstance(t *testing.T) {
	// \class C (X : Nat) { | c : Nat }
	// \instance C-inst : C 0 | c => 7
	// \func useC (n : Nat) {inst : C n} (p : n = 0) : Nat => inst.c
	// \func test : Nat => useC {?n} idp
	C, cx, cc := classWithParam("C", "c")
	cInst := term.NewFunction("C-inst", term.KindInstance)
	cInst.Result = term.MustClassCall(C, term.Sort{}, impl(cx, term.NewInt(0)))
	cInstBody := &term.New{Call: term.MustClassCall(C, term.Sort{}, impl(cx, term.NewInt(0)), impl(cc, term.NewInt(7)))}

	n := term.NewBinding("n", nat())
	inst := term.NewBinding("inst", term.MustClassCall(C, term.Sort{}, impl(cx, term.NewRef(n))))
	p := term.NewBinding("p", term.PathType(nat(), term.NewRef(n), term.NewInt(0)))
	useC := fun("useC", term.Typed(true, n, term.Typed(false, inst, term.Typed(true, p, nil))), nat())

	test := fun("test", nil, nat())
	hole := &term.Hole{Var: term.NewInferenceVar("n", nil)}
	units := []*term.Unit{
		{Def: C},
		{Def: cInst, Body: cInstBody},
		{Def: useC, Body: &term.FieldCall{Field: cc, Arg: term.NewRef(inst)}},
		{Def: test, Body: &term.FunCall{Def: useC, Args: []term.Expr{hole, &term.InstanceHole{Class: C}, &term.ConCall{Con: term.Idp}}}},
	}

	r := checkEach(t, NewTable(), units...)
	noErrors(t, r)
	got := whnf(&term.FunCall{Def: test})
	if lit, ok := got.(*term.IntegerLit); !ok || lit.Value.Int64() != 7 {
		t.Errorf("test = %s, want 7", spew.Sdump(got))
	}
}

func TestUnsolvedMetavariable(t *testing.T) {
	// \func g : Nat => (\lam y => 0) ?h, where nothing fixes ?h
	g := fun("g", nil, nat())
	hole := &term.Hole{Var: term.NewInferenceVar("h", nil)}
	r := checkEach(t, NewTable(), &term.Unit{Def: g, Body: &term.App{
		Fun: &term.Lam{Param: term.Typed(true, term.NewBinding("y", nat()), nil), Body: term.NewInt(0)},
		Arg: hole,
	}})
	ds := r.ByCode(diagnostics.ErrT006)
	if len(ds) != 1 {
		t.Fatalf("diagnostics = %v", r.Diagnostics())
	}
	if g.Status() != term.StatusBodyFailed {
		t.Errorf("status = %s", g.Status())
	}
}

func TestTablePublishesOnce(t *testing.T) {
	table := NewTable()
	f := fun("f", nil, nat())
	if err := table.Publish(f); err != nil {
		t.Fatal(err)
	}
	if err := table.Publish(fun("f", nil, nat())); err == nil {
		t.Errorf("second publication of f should fail")
	}
	if d, ok := table.Lookup("f"); !ok || d != f {
		t.Errorf("lookup = %v", d)
	}
	if table.Len() != 1 {
		t.Errorf("len = %d", table.Len())
	}
}

func TestTableInstancesInDeclarationOrder(t *testing.T) {
	C, cx, _ := classWithParam("C", "c")
	mk := func(name string, line int) *term.FunctionDef {
		f := term.NewFunction(name, term.KindInstance)
		f.Result = term.MustClassCall(C, term.Sort{}, impl(cx, term.NewInt(0)))
		f.SetPos(term.Position{File: "m.yaml", Line: line})
		return f
	}
	table := NewTable()
	late, early := mk("late", 20), mk("early", 3)
	if err := table.Publish(late, early); err != nil {
		t.Fatal(err)
	}
	got := table.Instances(C)
	if len(got) != 2 || got[0] != early || got[1] != late {
		t.Errorf("instances = %v", names(got))
	}
}

func TestSchedulerRunsWaves(t *testing.T) {
	units, test := recursiveInstances()
	waves := [][][]*term.Unit{
		{{units[0]}, {units[1]}},
		{{units[2]}},
		{{units[3]}},
		{{units[4]}},
		{{units[5]}},
	}
	table := NewTable()
	r := diagnostics.NewReporter()
	sc := &Scheduler{Table: table, Reporter: r, Workers: 2, MaxInstanceDepth: 8}
	if err := sc.Run(context.Background(), waves); err != nil {
		t.Fatal(err)
	}
	noErrors(t, r)
	if table.Len() != len(units) {
		t.Errorf("published %d definitions, want %d", table.Len(), len(units))
	}
	if got := whnf(&term.FunCall{Def: test}); !term.IsZero(got) {
		t.Errorf("test = %s, want 0", got)
	}
}

func TestSchedulerChecksDefinitionsSharingAName(t *testing.T) {
	f1, f2 := fun("f", nil, nat()), fun("f", nil, nat())
	f1.SetPos(term.Position{File: "a.yaml", Line: 1})
	f2.SetPos(term.Position{File: "b.yaml", Line: 1})
	waves := [][][]*term.Unit{{
		{{Def: f1, Body: term.NewInt(1)}},
		{{Def: f2, Body: &term.Universe{Sort: term.NewSort(0, 0)}}},
	}}
	table := NewTable()
	r := diagnostics.NewReporter()
	sc := &Scheduler{Table: table, Reporter: r, Workers: 1}
	if err := sc.Run(context.Background(), waves); err != nil {
		t.Fatalf("run: %v", err)
	}
	if f2.Status() != term.StatusBodyFailed {
		t.Errorf("second f status = %v, want body-failed", f2.Status())
	}
	if n := len(r.ByCode(diagnostics.ErrT001)); n != 1 {
		t.Errorf("T001 count = %d, want 1", n)
	}
	dups := r.ByCode(diagnostics.ErrT006)
	if len(dups) != 1 || dups[0].Pos.File != "b.yaml" {
		t.Errorf("duplicate not reported: %v", r.Diagnostics())
	}
	if d, _ := table.Lookup("f"); d != f1 {
		t.Errorf("table holds %v, want the first f", d)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	units, _ := recursiveInstances()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sc := &Scheduler{Table: NewTable(), Reporter: diagnostics.NewReporter()}
	if err := sc.Run(ctx, [][][]*term.Unit{{{units[0]}}}); err == nil {
		t.Errorf("expected the cancellation error")
	}
}
