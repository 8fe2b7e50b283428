package compare

import (
	"math/big"

	"github.com/funvibe/funcore/internal/normalize"
	"github.com/funvibe/funcore/internal/term"
)

// Context is the part of the checking session the comparer works against.
type Context interface {
	normalize.State
	// Solve assigns e to the unsolved metavariable v.
	Solve(v *term.InferenceVar, e term.Expr) bool
	// ResolveDeferred is called when the classifying field of a deferred
	// instance metavariable is compared with a known expression. It reports
	// whether v got solved.
	ResolveDeferred(v *term.InferenceVar, classifying term.Expr) bool
}

// Comparer decides definitional equality. Comparisons stuck on an unsolved
// metavariable are postponed into the equation set and count as success.
type Comparer struct {
	norm   *normalize.Normalizer
	ctx    Context
	eqs    *Equations
	strict bool
}

func New(norm *normalize.Normalizer, ctx Context, eqs *Equations) *Comparer {
	if eqs == nil {
		eqs = &Equations{}
	}
	return &Comparer{norm: norm, ctx: ctx, eqs: eqs}
}

// Strict returns a comparer that neither solves nor postpones. Its level
// constraints go to a scratch set.
func (c *Comparer) Strict() *Comparer {
	return &Comparer{norm: c.norm, ctx: c.ctx, eqs: &Equations{}, strict: true}
}

func (c *Comparer) Equations() *Equations { return c.eqs }

// Equal is Compare with EQ.
func (c *Comparer) Equal(a, b, typ term.Expr) bool {
	return c.Compare(EQ, a, b, typ)
}

// Compare reports whether a cmp b holds at type typ (which may be nil).
func (c *Comparer) Compare(cmp CMP, a, b, typ term.Expr) bool {
	if cmp == GE {
		return c.Compare(LE, b, a, typ)
	}
	if a == b {
		return true
	}
	if isError(a) || isError(b) {
		return true
	}
	wa, wb := c.norm.WHNF(a), c.norm.WHNF(b)
	if wa == wb || isError(wa) || isError(wb) {
		return true
	}

	if ok, done := c.solveHoles(wa, wb); done {
		return ok
	}
	if ok, done := c.deferred(cmp, wa, wb, typ); done {
		return ok
	}
	if c.stuckOnHole(wa) || c.stuckOnHole(wb) {
		if c.Strict().structural(cmp, wa, wb) {
			return true
		}
		if c.strict {
			return false
		}
		c.eqs.postpone(Equation{Cmp: cmp, Left: wa, Right: wb, Type: typ})
		return true
	}

	if ok, done := c.eta(wa, wb, typ); done {
		return ok
	}
	if c.structural(cmp, wa, wb) {
		return true
	}
	if typ == nil {
		typ = varType(wa, wb)
	}
	if typ != nil {
		if cc, ok := c.norm.WHNF(typ).(*term.ClassCall); ok {
			return c.classEta(cc.Class, wa, wb)
		}
	}
	return false
}

func isError(e term.Expr) bool {
	_, ok := e.(*term.ErrorExpr)
	return ok
}

func (c *Comparer) unsolved(e term.Expr) *term.InferenceVar {
	if h, ok := e.(*term.Hole); ok {
		if _, solved := c.ctx.Solution(h.Var); !solved {
			return h.Var
		}
	}
	return nil
}

func (c *Comparer) stuckOnHole(e term.Expr) bool {
	switch s := c.norm.StuckExpression(e).(type) {
	case *term.Hole:
		return c.unsolved(s) != nil
	case *term.InstanceHole:
		return true
	}
	return false
}

// solveHoles handles an unsolved metavariable on either side.
func (c *Comparer) solveHoles(wa, wb term.Expr) (ok, done bool) {
	va, vb := c.unsolved(wa), c.unsolved(wb)
	if va == nil && vb == nil {
		return false, false
	}
	if va != nil && va == vb {
		return true, true
	}
	if c.strict {
		return false, true
	}
	if va != nil {
		return c.solve(va, wb), true
	}
	return c.solve(vb, wa), true
}

func (c *Comparer) solve(v *term.InferenceVar, e term.Expr) bool {
	if term.OccursHole(c.norm.Normalize(e), v) {
		return false
	}
	if !c.ctx.Solve(v, e) {
		return false
	}
	c.norm.Invalidate(v)
	return true
}

// deferred triggers resolution of a deferred instance when its classifying
// field meets a known expression.
func (c *Comparer) deferred(cmp CMP, wa, wb, typ term.Expr) (ok, done bool) {
	if c.strict {
		return false, false
	}
	try := func(x, other term.Expr) bool {
		fc, ok := x.(*term.FieldCall)
		if !ok {
			return false
		}
		v := c.unsolved(fc.Arg)
		if v == nil || v.Class == nil || v.Class.ClassifyingField() != fc.Field {
			return false
		}
		if c.stuckOnHole(other) || !c.ctx.ResolveDeferred(v, other) {
			return false
		}
		c.norm.Invalidate(v)
		return true
	}
	if try(wa, wb) || try(wb, wa) {
		return c.Compare(cmp, wa, wb, typ), true
	}
	return false, false
}

// eta applies the eta laws for functions, pairs and records.
func (c *Comparer) eta(wa, wb, typ term.Expr) (ok, done bool) {
	if lam, ok := wa.(*term.Lam); ok {
		return c.piEta(lam, wa, wb), true
	}
	if lam, ok := wb.(*term.Lam); ok {
		return c.piEta(lam, wa, wb), true
	}
	if t, ok := wa.(*term.Tuple); ok {
		return c.sigmaEta(len(t.Fields), wa, wb), true
	}
	if t, ok := wb.(*term.Tuple); ok {
		return c.sigmaEta(len(t.Fields), wa, wb), true
	}
	if n, ok := wa.(*term.New); ok {
		if _, ok := wb.(*term.New); !ok {
			return c.classEta(n.Call.Class, wa, wb), true
		}
	}
	if n, ok := wb.(*term.New); ok {
		return c.classEta(n.Call.Class, wa, wb), true
	}
	return false, false
}

// piEta compares two functions on a fresh argument.
func (c *Comparer) piEta(lam *term.Lam, wa, wb term.Expr) bool {
	x := term.NewRef(lam.Param.Binding().Rename(lam.Param.Type()))
	return c.Compare(EQ, term.Apps(wa, x), term.Apps(wb, x), nil)
}

// sigmaEta compares pairs component-wise.
func (c *Comparer) sigmaEta(n int, wa, wb term.Expr) bool {
	for i := 0; i < n; i++ {
		if !c.Compare(EQ, &term.Proj{Tuple: wa, Index: i}, &term.Proj{Tuple: wb, Index: i}, nil) {
			return false
		}
	}
	return true
}

// classEta compares records on every field, implemented or not.
func (c *Comparer) classEta(class *term.ClassDef, wa, wb term.Expr) bool {
	for _, f := range class.Fields {
		if f.Property {
			continue
		}
		if !c.Compare(EQ, term.MakeFieldCall(f, wa), term.MakeFieldCall(f, wb), f.TypeAt(wa)) {
			return false
		}
	}
	return true
}

// varType is the type of two distinct variables compared without a type,
// so that records held in variables still compare by eta.
func varType(wa, wb term.Expr) term.Expr {
	a, ok := wa.(*term.Ref)
	if !ok {
		return nil
	}
	if _, ok := wb.(*term.Ref); !ok {
		return nil
	}
	return a.Binding.Type()
}

func (c *Comparer) all(as, bs []term.Expr) bool {
	return c.args(nil, nil, as, bs)
}

// args compares two argument lists at the parameter types of params, each
// instantiated with the arguments before it. sub may carry the
// instantiation of enclosing parameters. Arguments past the end of params
// are compared without a type.
func (c *Comparer) args(params *term.DependentLink, sub *term.Substitution, as, bs []term.Expr) bool {
	if len(as) != len(bs) {
		return false
	}
	if sub == nil {
		sub = term.NewSubstitution()
	}
	links := params.Links()
	for i := range as {
		var typ term.Expr
		if i < len(links) {
			typ = term.Subst(links[i].Type(), sub)
			sub.Add(links[i].Binding(), as[i])
		}
		if !c.Compare(EQ, as[i], bs[i], typ) {
			return false
		}
	}
	return true
}

func (c *Comparer) levels(cmp CMP, a, b term.Sort) bool {
	return c.eqs.addSort(cmp, a, b)
}

// structural compares heads of two WHNF terms.
func (c *Comparer) structural(cmp CMP, wa, wb term.Expr) bool {
	switch a := wa.(type) {
	case *term.Ref:
		b, ok := wb.(*term.Ref)
		return ok && a.Binding.ID() == b.Binding.ID()
	case *term.Hole:
		b, ok := wb.(*term.Hole)
		return ok && a.Var == b.Var
	case *term.InstanceHole:
		return wa == wb
	case *term.FunCall:
		b, ok := wb.(*term.FunCall)
		return ok && a.Def == b.Def && c.levels(EQ, a.Levels, b.Levels) && c.args(a.Def.Parameters(), nil, a.Args, b.Args)
	case *term.DataCall:
		b, ok := wb.(*term.DataCall)
		return ok && a.Data == b.Data && c.levels(cmp, a.Levels, b.Levels) && c.args(a.Data.Parameters(), nil, a.Args, b.Args)
	case *term.ConCall:
		if lit, ok := wb.(*term.IntegerLit); ok {
			return c.conLiteral(a, lit)
		}
		b, ok := wb.(*term.ConCall)
		if !ok || a.Con != b.Con {
			return false
		}
		sub := term.ParamSubst(a.Con.Data.Parameters(), a.DataArgs)
		return c.args(a.Con.Parameters(), sub, a.Args, b.Args)
	case *term.IntegerLit:
		switch b := wb.(type) {
		case *term.IntegerLit:
			return a.Value.Cmp(b.Value) == 0
		case *term.ConCall:
			return c.conLiteral(b, a)
		}
		return false
	case *term.ClassCall:
		b, ok := wb.(*term.ClassCall)
		return ok && c.classCalls(cmp, a, b)
	case *term.New:
		b, ok := wb.(*term.New)
		return ok && c.classCalls(EQ, a.Call, b.Call)
	case *term.FieldCall:
		b, ok := wb.(*term.FieldCall)
		if !ok || a.Field != b.Field {
			return false
		}
		// Eta on two variables would project this same field again.
		ra, aRef := a.Arg.(*term.Ref)
		rb, bRef := b.Arg.(*term.Ref)
		if aRef && bRef {
			return ra.Binding.ID() == rb.Binding.ID()
		}
		return c.Compare(EQ, a.Arg, b.Arg, nil)
	case *term.Pi:
		b, ok := wb.(*term.Pi)
		return ok && c.pis(cmp, a, b)
	case *term.Sigma:
		b, ok := wb.(*term.Sigma)
		return ok && c.sigmas(a, b)
	case *term.Universe:
		b, ok := wb.(*term.Universe)
		return ok && c.levels(cmp, a.Sort, b.Sort)
	case *term.Proj:
		b, ok := wb.(*term.Proj)
		return ok && a.Index == b.Index && c.Compare(EQ, a.Tuple, b.Tuple, nil)
	case *term.App:
		b, ok := wb.(*term.App)
		return ok && c.Compare(EQ, a.Fun, b.Fun, nil) && c.Compare(EQ, a.Arg, b.Arg, nil)
	case *term.Case:
		b, ok := wb.(*term.Case)
		return ok && a.Body == b.Body && c.all(a.Args, b.Args)
	case *term.Tuple:
		b, ok := wb.(*term.Tuple)
		return ok && c.all(a.Fields, b.Fields)
	}
	return false
}

var one = big.NewInt(1)

// conLiteral compares a constructor form with a literal: zero is 0 and
// suc x is k when x is k-1.
func (c *Comparer) conLiteral(con *term.ConCall, lit *term.IntegerLit) bool {
	switch con.Con {
	case term.Zero:
		return lit.Value.Sign() == 0
	case term.Suc:
		if lit.Value.Sign() <= 0 || len(con.Args) != 1 {
			return false
		}
		return c.Compare(EQ, con.Args[0], &term.IntegerLit{Value: new(big.Int).Sub(lit.Value, one)}, term.NatType())
	}
	return false
}

// splitPi peels off the first parameter of a Pi type.
func splitPi(p *term.Pi) (*term.DependentLink, term.Expr) {
	if next := p.Param.Next(); next != nil {
		return p.Param, &term.Pi{Param: next, Cod: p.Cod}
	}
	return p.Param, p.Cod
}

func (c *Comparer) pis(cmp CMP, a, b *term.Pi) bool {
	pa, ra := splitPi(a)
	pb, rb := splitPi(b)
	if pa.Explicit() != pb.Explicit() {
		return false
	}
	if !c.Compare(EQ, pa.Type(), pb.Type(), nil) {
		return false
	}
	x := term.NewRef(pa.Binding().Rename(pa.Type()))
	ca := term.SubstOne(ra, pa.Binding(), x)
	cb := term.SubstOne(rb, pb.Binding(), x)
	return c.Compare(cmp, ca, cb, nil)
}

func (c *Comparer) sigmas(a, b *term.Sigma) bool {
	la, lb := a.Params.Links(), b.Params.Links()
	if len(la) != len(lb) {
		return false
	}
	sa, sb := term.NewSubstitution(), term.NewSubstitution()
	for i := range la {
		ta, tb := term.Subst(la[i].Type(), sa), term.Subst(lb[i].Type(), sb)
		if !c.Compare(EQ, ta, tb, nil) {
			return false
		}
		x := term.NewRef(la[i].Binding().Rename(ta))
		sa.Add(la[i].Binding(), x)
		sb.Add(lb[i].Binding(), x)
	}
	return true
}

// classCalls compares implementations under a shared this binding. With LE,
// a may implement more fields than b.
func (c *Comparer) classCalls(cmp CMP, a, b *term.ClassCall) bool {
	if a.Class != b.Class {
		return false
	}
	if cmp == EQ && a.NumImplemented() != b.NumImplemented() {
		return false
	}
	if !c.levels(cmp, a.Levels, b.Levels) {
		return false
	}
	this := term.NewRef(term.NewBinding("this", a))
	for _, impl := range b.Implementations() {
		ia, ok := a.ImplementationAt(impl.Field, this)
		if !ok {
			return false
		}
		ib := term.SubstOne(impl.Expr, b.ThisBinding(), this)
		if !c.Compare(EQ, ia, ib, impl.Field.TypeAt(this)) {
			return false
		}
	}
	return true
}

// SolvePostponed retries postponed equations until no more progress is
// made. Equations that fail on retry are moved to Failed and the result is
// false.
func (c *Comparer) SolvePostponed() bool {
	ok := true
	for {
		pending := c.eqs.Postponed
		if len(pending) == 0 {
			return ok
		}
		c.eqs.Postponed = nil
		for _, eq := range pending {
			if !c.Compare(eq.Cmp, eq.Left, eq.Right, eq.Type) {
				c.eqs.Failed = append(c.eqs.Failed, eq)
				ok = false
			}
		}
		if len(c.eqs.Postponed) >= len(pending) {
			return ok
		}
	}
}
