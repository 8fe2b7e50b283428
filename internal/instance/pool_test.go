package instance

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/funvibe/funcore/internal/compare"
	"github.com/funvibe/funcore/internal/normalize"
	"github.com/funvibe/funcore/internal/term"
)

// fakeCtx elaborates a candidate by resolving its instance holes against
// the parameter types, which is what the checker does.
type fakeCtx struct {
	pool      *Pool
	norm      *normalize.Normalizer
	ambiguous []string
	checked   int
	badHeader map[*term.FunctionDef]bool
}

func newFakeCtx(provider Provider, maxDepth int) *fakeCtx {
	ctx := &fakeCtx{norm: normalize.New(nil), badHeader: map[*term.FunctionDef]bool{}}
	ctx.pool = NewPool(provider, nil, maxDepth, nil)
	return ctx
}

func (c *fakeCtx) InProgress(term.Definition) bool                    { return false }
func (c *fakeCtx) Solution(*term.InferenceVar) (term.Expr, bool)      { return nil, false }
func (c *fakeCtx) Solve(*term.InferenceVar, term.Expr) bool           { return false }
func (c *fakeCtx) ResolveDeferred(*term.InferenceVar, term.Expr) bool { return false }
func (c *fakeCtx) WHNF(e term.Expr) term.Expr                         { return c.norm.WHNF(e) }
func (c *fakeCtx) NewHole(name string, typ term.Expr) term.Expr       { return &term.Hole{Var: term.NewInferenceVar(name, typ)} }
func (c *fakeCtx) EnsureHeader(d term.Definition) bool                { return !c.badHeader[d.(*term.FunctionDef)] }
func (c *fakeCtx) StrictEqual(a, b term.Expr) bool                    { return compare.New(c.norm, c, nil).Strict().Equal(a, b, nil) }
func (c *fakeCtx) Ambiguous(_ *term.ClassDef, chosen *term.FunctionDef, _ []*term.FunctionDef) {
	c.ambiguous = append(c.ambiguous, chosen.Name())
}

func (c *fakeCtx) CheckInstance(e, expected term.Expr) (term.Expr, error) {
	c.checked++
	call := e.(*term.FunCall)
	s := term.NewSubstitution()
	args := make([]term.Expr, len(call.Args))
	links := call.Def.Parameters().Links()
	for i, a := range call.Args {
		args[i] = a
		if h, ok := a.(*term.InstanceHole); ok {
			cc := c.WHNF(term.Subst(links[i].Type(), s)).(*term.ClassCall)
			classifying, _ := cc.Classifying()
			v, err := c.pool.Resolve(c, Request{Class: h.Class, Classifying: classifying, Expected: cc, Trail: h.Trail})
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		s.Add(links[i].Binding(), args[i])
	}
	return &term.FunCall{Def: call.Def, Levels: call.Levels, Args: args}, nil
}

func (c *fakeCtx) resolve(class *term.ClassDef, classifying term.Expr) (term.Expr, *ResolveError) {
	var expected term.Expr = term.MustClassCall(class, term.Sort{})
	return c.pool.Resolve(c, Request{Class: class, Classifying: classifying, Expected: expected})
}

// classWithParam creates a class whose first field X : Nat is classifying.
func classWithParam(name string) (*term.ClassDef, *term.ClassField) {
	c := term.NewClass(name)
	x := c.AddField("X", true, true)
	x.Type = term.NatType()
	c.SetStatus(term.StatusDone)
	return c, x
}

func classCall(c *term.ClassDef, impls ...term.Implementation) *term.ClassCall {
	return term.MustClassCall(c, term.Sort{}, impls...)
}

func instance(name string, params *term.DependentLink, result *term.ClassCall, body term.Expr) *term.FunctionDef {
	f := term.NewFunction(name, term.KindInstance)
	f.SetParameters(params)
	f.Result = result
	_ = f.SetBody(body)
	f.SetStatus(term.StatusDone)
	return f
}

func TestRecursiveInstanceScenario(t *testing.T) {
	// \class A { a : Nat }  \class B
	// \instance B-inst : B
	// \instance A-inst {b : B} : A | a => 0
	a := term.NewClass("A")
	fa := a.AddField("a", false, true)
	fa.Type = term.NatType()
	b := term.NewClass("B")

	bInst := instance("B-inst", nil, classCall(b), &term.New{Call: classCall(b)})
	bParam := term.Typed(false, term.NewBinding("b", classCall(b)), nil)
	aInst := instance("A-inst", bParam, classCall(a),
		&term.New{Call: classCall(a, term.Implementation{Field: fa, Expr: term.NewInt(0)})})

	ctx := newFakeCtx(List{bInst, aInst}, 16)
	v, err := ctx.resolve(a, nil)
	if err != nil {
		t.Fatalf("resolve A: %v", err)
	}
	call, ok := v.(*term.FunCall)
	if !ok || call.Def != aInst {
		t.Fatalf("resolved to %s, want A-inst", spew.Sdump(v))
	}
	if inner, ok := call.Args[0].(*term.FunCall); !ok || inner.Def != bInst {
		t.Errorf("implicit argument = %s, want B-inst", call.Args[0])
	}
	if got := ctx.norm.Normalize(&term.FieldCall{Field: fa, Arg: v}); got.String() != "0" {
		t.Errorf("a = %s, want 0", got)
	}
}

func TestClassifyingMismatch(t *testing.T) {
	b, x := classWithParam("B")
	b0 := classCall(b, term.Implementation{Field: x, Expr: term.NewInt(0)})
	bInst := instance("B-inst", nil, b0, &term.New{Call: b0})

	ctx := newFakeCtx(List{bInst}, 16)
	if _, err := ctx.resolve(b, term.NewInt(1)); err == nil || err.Reason != NoInstance {
		t.Fatalf("B 1 should not be resolved by B-inst : B 0, got %v", err)
	}
	if v, err := ctx.resolve(b, term.NewInt(0)); err != nil || v.(*term.FunCall).Def != bInst {
		t.Errorf("B 0 should resolve to B-inst, got %v", err)
	}
}

func TestCycleIsRejected(t *testing.T) {
	// \instance A-loop {a : A 0} : A 0
	a, x := classWithParam("A")
	a0 := func() *term.ClassCall { return classCall(a, term.Implementation{Field: x, Expr: term.NewInt(0)}) }
	p := term.NewBinding("a", a0())
	loop := instance("A-loop", term.Typed(false, p, nil), a0(), term.NewRef(p))

	ctx := newFakeCtx(List{loop}, 64)
	_, err := ctx.resolve(a, term.NewInt(0))
	if err == nil {
		t.Fatalf("cyclic instance should not resolve")
	}
	if err.Reason != Cyclic {
		t.Errorf("reason = %s, want %s", err.Reason, Cyclic)
	}
	if ctx.checked > 2 {
		t.Errorf("search did not stop at the cycle: %d checks", ctx.checked)
	}
}

func TestRecursionAtDifferentClassifyingArguments(t *testing.T) {
	// \instance C0 : C 0   \instance C1 {c : C 0} : C 1
	c, x := classWithParam("C")
	at := func(n int64) *term.ClassCall { return classCall(c, term.Implementation{Field: x, Expr: term.NewInt(n)}) }
	c0 := instance("C0", nil, at(0), &term.New{Call: at(0)})
	c1 := instance("C1", term.Typed(false, term.NewBinding("c", at(0)), nil), at(1), &term.New{Call: at(1)})

	ctx := newFakeCtx(List{c1, c0}, 16)
	v, err := ctx.resolve(c, term.NewInt(1))
	if err != nil {
		t.Fatalf("resolve C 1: %v", err)
	}
	if call := v.(*term.FunCall); call.Def != c1 || call.Args[0].(*term.FunCall).Def != c0 {
		t.Errorf("resolved to %s", v)
	}
}

func TestDepthBound(t *testing.T) {
	c, x := classWithParam("C")
	at := func(n int64) *term.ClassCall { return classCall(c, term.Implementation{Field: x, Expr: term.NewInt(n)}) }
	var list List
	list = append(list, instance("C0", nil, at(0), &term.New{Call: at(0)}))
	for i := int64(1); i <= 4; i++ {
		list = append(list, instance("C", term.Typed(false, term.NewBinding("c", at(i-1)), nil), at(i), &term.New{Call: at(i)}))
	}

	if _, err := newFakeCtx(list, 16).resolve(c, term.NewInt(4)); err != nil {
		t.Fatalf("chain of depth 4 should resolve with bound 16: %v", err)
	}
	_, err := newFakeCtx(list, 2).resolve(c, term.NewInt(4))
	if err == nil {
		t.Fatalf("chain of depth 4 should fail with bound 2")
	}
	if err.Reason != CheckFailed || err.Cause == nil {
		t.Errorf("reason = %s, want a failed check caused by the depth bound", err.Reason)
	}
}

func TestLocalPoolShadowsGlobal(t *testing.T) {
	b, x := classWithParam("B")
	b0 := classCall(b, term.Implementation{Field: x, Expr: term.NewInt(0)})
	global := instance("B-inst", nil, b0, &term.New{Call: b0})
	ctx := newFakeCtx(List{global}, 16)

	local := term.NewRef(term.NewBinding("local", b0))
	ctx.pool.Local().Push()
	ctx.pool.Local().Add(LocalInstance{Class: b, Classifying: term.NewInt(0), Value: local})
	v, err := ctx.resolve(b, term.NewInt(0))
	if err != nil || v != term.Expr(local) {
		t.Errorf("local instance should win, got %v (%v)", v, err)
	}
	if ctx.checked != 0 {
		t.Errorf("global candidates should not be checked")
	}

	ctx.pool.Local().Pop()
	if v, _ := ctx.resolve(b, term.NewInt(0)); v == term.Expr(local) {
		t.Errorf("local instance visible after its scope was popped")
	}
}

func TestAmbiguityFirstMatchWins(t *testing.T) {
	b, x := classWithParam("B")
	b0 := classCall(b, term.Implementation{Field: x, Expr: term.NewInt(0)})
	first := instance("first", nil, b0, &term.New{Call: b0})
	second := instance("second", nil, b0, &term.New{Call: b0})

	ctx := newFakeCtx(List{first, second}, 16)
	v, err := ctx.resolve(b, term.NewInt(0))
	if err != nil || v.(*term.FunCall).Def != first {
		t.Fatalf("first candidate should win")
	}
	if len(ctx.ambiguous) != 1 || ctx.ambiguous[0] != "first" {
		t.Errorf("ambiguity not reported: %v", ctx.ambiguous)
	}
}

func TestFailingFirstMatchIsNotSkipped(t *testing.T) {
	// \instance bad {b : B 0} : A 0   \instance good : A 0, and no B
	a, ax := classWithParam("A")
	b, bx := classWithParam("B")
	a0 := func() *term.ClassCall { return classCall(a, term.Implementation{Field: ax, Expr: term.NewInt(0)}) }
	b0 := classCall(b, term.Implementation{Field: bx, Expr: term.NewInt(0)})
	bad := instance("bad", term.Typed(false, term.NewBinding("b", b0), nil), a0(), &term.New{Call: a0()})
	good := instance("good", nil, a0(), &term.New{Call: a0()})

	ctx := newFakeCtx(List{bad, good}, 16)
	v, err := ctx.resolve(a, term.NewInt(0))
	if err == nil {
		t.Fatalf("resolved to %s, want the failure of bad", v)
	}
	if err.Reason != CheckFailed || len(err.Candidates) != 1 || err.Candidates[0] != bad {
		t.Errorf("error = %s, candidates %v", err, err.Candidates)
	}
	if len(ctx.ambiguous) != 1 || ctx.ambiguous[0] != "bad" {
		t.Errorf("ambiguity not reported: %v", ctx.ambiguous)
	}
	if ctx.checked != 1 {
		t.Errorf("checked %d candidates, want only the first", ctx.checked)
	}
}

func TestHeadMatching(t *testing.T) {
	c := term.NewClass("Show")
	x := c.AddField("T", true, true)
	x.Type = &term.Universe{}
	natInst := instance("Show-Nat", nil, classCall(c, term.Implementation{Field: x, Expr: term.NatType()}), nil)
	uniInst := instance("Show-Type", nil, classCall(c, term.Implementation{Field: x, Expr: &term.Universe{}}), nil)
	ctx := newFakeCtx(List{natInst, uniInst}, 16)

	y := term.NewBinding("y", term.NatType())
	tests := []struct {
		name        string
		classifying term.Expr
		want        *term.FunctionDef
		reason      Reason
	}{
		{"data call", term.NatType(), natInst, 0},
		{"universe", &term.Universe{Sort: term.NewSort(3, 0)}, uniInst, 0},
		{"under lambda", &term.Lam{Param: term.Typed(true, y, nil), Body: term.NatType()}, natInst, 0},
		{"pi is not classifiable", term.Arrow(term.NatType(), term.NatType()), nil, Unclassifiable},
		{"sigma has no instance", &term.Sigma{Params: term.Param("p", term.NatType())}, nil, NoInstance},
	}
	for _, tt := range tests {
		v, err := ctx.resolve(c, tt.classifying)
		if tt.want == nil {
			if err == nil || err.Reason != tt.reason {
				t.Errorf("%s: got %v, want %s", tt.name, v, tt.reason)
			}
			continue
		}
		if err != nil || v.(*term.FunCall).Def != tt.want {
			t.Errorf("%s: got %v (%v), want %s", tt.name, v, err, tt.want.Name())
		}
	}
}

func TestFailedHeaderIsSkipped(t *testing.T) {
	b, x := classWithParam("B")
	b0 := classCall(b, term.Implementation{Field: x, Expr: term.NewInt(0)})
	broken := instance("broken", nil, b0, &term.New{Call: b0})
	good := instance("good", nil, b0, &term.New{Call: b0})
	ctx := newFakeCtx(List{broken, good}, 16)
	ctx.badHeader[broken] = true

	v, err := ctx.resolve(b, term.NewInt(0))
	if err != nil || v.(*term.FunCall).Def != good {
		t.Errorf("instance with a failed header should be skipped")
	}
	if len(ctx.ambiguous) != 0 {
		t.Errorf("skipped instance counted as ambiguous")
	}
}
