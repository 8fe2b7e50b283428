package corefile

import (
	"math/big"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/funcore/internal/term"
)

// env is the chain of local variables in scope.
type env struct {
	name   string
	b      *term.Binding
	parent *env
}

func (e *env) bind(b *term.Binding) *env {
	return &env{name: b.Name(), b: b, parent: e}
}

func (e *env) lookup(name string) *term.Binding {
	for ; e != nil; e = e.parent {
		if e.name == name {
			return e.b
		}
	}
	return nil
}

// builder turns the YAML of one definition into terms. Errors mark the
// definition as failed; building continues to find further errors.
type builder struct {
	r      *Reader
	file   string
	failed bool
}

func (b *builder) errorf(n *yaml.Node, format string, args ...any) {
	b.failed = true
	b.r.errorf(b.file, n, format, args...)
}

func present(n *yaml.Node) bool { return n != nil && n.Kind != 0 }

func (b *builder) unit(p pending) *term.Unit {
	raw := p.raw
	switch d := p.def.(type) {
	case *term.FunctionDef:
		params, scope := b.params(&raw.Params, nil, true)
		d.SetParameters(params)
		if present(&raw.Result) {
			d.Result = b.expr(&raw.Result, scope)
		}
		u := &term.Unit{Def: d}
		switch {
		case present(&raw.Body) && raw.Clauses != nil:
			b.errorf(p.node, "%s has both a body and clauses", d.Name())
		case present(&raw.Body):
			u.Body = b.expr(&raw.Body, scope)
		case raw.Clauses != nil:
			u.Elim = b.elim(raw.Clauses, scope)
		}
		return u

	case *term.DataDef:
		params, scope := b.params(&raw.Params, nil, true)
		d.SetParameters(params)
		d.Sort = b.sort(p.node, raw.Sort)
		for i, c := range raw.Constructors {
			cp, _ := b.params(&c.Params, scope, true)
			d.Constructors[i].SetParameters(cp)
		}
		return &term.Unit{Def: d}

	case *term.ClassDef:
		d.Sort = b.sort(p.node, raw.Sort)
		for i, f := range raw.Fields {
			field := d.Fields[i]
			if !present(&f.Type) {
				b.errorf(p.node, "field %s of %s has no type", f.Name, d.Name())
				continue
			}
			var top *env
			field.Type = b.expr(&f.Type, top.bind(field.ThisBinding()))
		}
		return &term.Unit{Def: d}
	}
	return nil
}

func (b *builder) sort(n *yaml.Node, s []int) term.Sort {
	switch len(s) {
	case 0:
		return term.NewSort(0, 0)
	case 2:
		return term.NewSort(s[0], s[1])
	}
	b.errorf(n, "sort must be [plevel, hlevel]")
	return term.Sort{}
}

func (b *builder) elim(raw []rawClause, scope *env) *term.ElimBody {
	body := &term.ElimBody{}
	for _, c := range raw {
		pats := make([]term.Pattern, len(c.Patterns))
		local := scope
		for i := range c.Patterns {
			pats[i], local = b.pattern(&c.Patterns[i], local)
		}
		clause := &term.Clause{Patterns: pats}
		if present(&c.Body) {
			clause.Body = b.expr(&c.Body, local)
		}
		body.Clauses = append(body.Clauses, clause)
	}
	return body
}

// pattern reads a variable, a wildcard, a nullary constructor or a
// sequence [constructor, patterns...].
func (b *builder) pattern(n *yaml.Node, scope *env) (term.Pattern, *env) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "_" {
			return &term.VarPattern{}, scope
		}
		if d, ok := b.r.Lookup(n.Value); ok {
			if con, ok := d.(*term.Constructor); ok {
				return &term.ConPattern{Con: con}, scope
			}
		}
		v := term.NewBinding(n.Value, nil)
		return &term.VarPattern{Binding: v}, scope.bind(v)
	case yaml.SequenceNode:
		if len(n.Content) == 0 || n.Content[0].Kind != yaml.ScalarNode {
			break
		}
		d, _ := b.r.Lookup(n.Content[0].Value)
		con, ok := d.(*term.Constructor)
		if !ok {
			b.errorf(n, "%s is not a constructor", n.Content[0].Value)
			return &term.VarPattern{}, scope
		}
		p := &term.ConPattern{Con: con}
		for _, a := range n.Content[1:] {
			var sub term.Pattern
			sub, scope = b.pattern(a, scope)
			p.Args = append(p.Args, sub)
		}
		return p, scope
	}
	b.errorf(n, "malformed pattern")
	return &term.VarPattern{}, scope
}

type paramSpec struct {
	Name     string    `yaml:"name"`
	Names    []string  `yaml:"names"`
	Type     yaml.Node `yaml:"type"`
	Implicit bool      `yaml:"implicit"`
}

// params reads a telescope. An item is a bare name (lambda parameters
// only), a one-key map {x: A}, or {name|names, type, implicit}.
func (b *builder) params(n *yaml.Node, scope *env, needTypes bool) (*term.DependentLink, *env) {
	if !present(n) {
		return nil, scope
	}
	if n.Kind != yaml.SequenceNode {
		b.errorf(n, "parameters must be a list")
		return nil, scope
	}
	var groups []term.ParamGroup
	for _, item := range n.Content {
		var ps paramSpec
		switch {
		case item.Kind == yaml.ScalarNode:
			ps.Name = item.Value
		case item.Kind == yaml.MappingNode && len(item.Content) == 2 && !isSpecKey(item.Content[0].Value):
			ps.Name = item.Content[0].Value
			ps.Type = *item.Content[1]
		case item.Kind == yaml.MappingNode:
			if err := item.Decode(&ps); err != nil {
				b.errorf(item, "%v", err)
				continue
			}
		default:
			b.errorf(item, "malformed parameter")
			continue
		}
		names := ps.Names
		if ps.Name != "" {
			names = append([]string{ps.Name}, names...)
		}
		if len(names) == 0 {
			b.errorf(item, "parameter without a name")
			continue
		}
		var typ term.Expr
		if present(&ps.Type) {
			typ = b.expr(&ps.Type, scope)
		} else if needTypes {
			b.errorf(item, "parameter %s has no type", names[0])
			continue
		}
		g := term.ParamGroup{Explicit: !ps.Implicit}
		for _, name := range names {
			v := term.NewBinding(name, typ)
			if name == "_" {
				v = term.NewHiddenBinding(name, typ)
			}
			g.Bindings = append(g.Bindings, v)
			scope = scope.bind(v)
		}
		groups = append(groups, g)
	}
	return term.Params(groups...), scope
}

func isSpecKey(k string) bool {
	return k == "name" || k == "names" || k == "type" || k == "implicit"
}

// expr reads an expression. Scalars are literals, names, holes (_), goals
// (?name) and the universe Type; a sequence applies its head to the rest;
// a map is one of the special forms.
func (b *builder) expr(n *yaml.Node, scope *env) term.Expr {
	switch n.Kind {
	case yaml.AliasNode:
		return b.expr(n.Alias, scope)
	case yaml.ScalarNode:
		return b.scalar(n, scope)
	case yaml.SequenceNode:
		if len(n.Content) == 0 {
			b.errorf(n, "empty application")
			return &term.ErrorExpr{}
		}
		args := b.exprs(n.Content[1:], scope)
		head := n.Content[0]
		if head.Kind == yaml.ScalarNode && scope.lookup(head.Value) == nil {
			if d, ok := b.r.Lookup(head.Value); ok {
				return b.call(head, d, term.Sort{}, args, nil)
			}
			if f := b.field(head, head.Value, false); f != nil {
				return b.fieldCall(head, f, args)
			}
		}
		return term.Apps(b.expr(head, scope), args...)
	case yaml.MappingNode:
		return b.form(n, scope)
	}
	b.errorf(n, "malformed expression")
	return &term.ErrorExpr{}
}

func (b *builder) exprs(ns []*yaml.Node, scope *env) []term.Expr {
	out := make([]term.Expr, len(ns))
	for i, a := range ns {
		out[i] = b.expr(a, scope)
	}
	return out
}

func (b *builder) scalar(n *yaml.Node, scope *env) term.Expr {
	v := n.Value
	if n.ShortTag() == "!!int" {
		i, ok := new(big.Int).SetString(strings.ReplaceAll(v, "_", ""), 0)
		if !ok || i.Sign() < 0 {
			b.errorf(n, "%s is not a natural number", v)
			return &term.ErrorExpr{}
		}
		return term.NewBigInt(i)
	}
	switch {
	case v == "_":
		return &term.Hole{Var: term.NewInferenceVar("_", nil)}
	case strings.HasPrefix(v, "?"):
		return &term.ErrorExpr{IsGoal: true, Goal: v[1:]}
	}
	if local := scope.lookup(v); local != nil {
		return term.NewRef(local)
	}
	if v == "Type" {
		return &term.Universe{Sort: term.StdSort()}
	}
	if d, ok := b.r.Lookup(v); ok {
		return b.call(n, d, term.Sort{}, nil, nil)
	}
	b.errorf(n, "unknown name %s", v)
	return &term.ErrorExpr{}
}

// call applies a global definition to args. Extra arguments of a function
// become applications.
func (b *builder) call(n *yaml.Node, d term.Definition, levels term.Sort, args, dataArgs []term.Expr) term.Expr {
	switch d := d.(type) {
	case *term.FunctionDef:
		k := min(len(args), d.Parameters().Size())
		return term.Apps(&term.FunCall{Def: d, Levels: levels, Args: args[:k]}, args[k:]...)
	case *term.Constructor:
		return &term.ConCall{Con: d, Levels: levels, DataArgs: dataArgs, Args: args}
	case *term.DataDef:
		return &term.DataCall{Data: d, Levels: levels, Args: args}
	case *term.ClassDef:
		var impls []term.Implementation
		i := 0
		for _, f := range d.Fields {
			if i == len(args) {
				break
			}
			if f.Parameter && f.Explicit {
				impls = append(impls, term.Implementation{Field: f, Expr: args[i]})
				i++
			}
		}
		if i < len(args) {
			b.errorf(n, "class %s has fewer than %d explicit parameters", d.Name(), len(args))
		}
		cc, err := term.NewClassCall(d, levels, impls)
		if err != nil {
			b.errorf(n, "%v", err)
			return &term.ErrorExpr{}
		}
		return cc
	}
	b.errorf(n, "%s cannot be used here", d.Name())
	return &term.ErrorExpr{}
}

// field finds a class field by bare or qualified name.
func (b *builder) field(n *yaml.Node, name string, report bool) *term.ClassField {
	f, known := b.r.fields[name]
	if !known {
		f = b.externalField(name)
		known = f != nil
	}
	if f == nil && report {
		if known {
			b.errorf(n, "field name %s is ambiguous", name)
		} else {
			b.errorf(n, "unknown field %s", name)
		}
	}
	return f
}

// externalField resolves Class.field against the external scope.
func (b *builder) externalField(name string) *term.ClassField {
	i := strings.LastIndex(name, ".")
	if i <= 0 || b.r.ext == nil {
		return nil
	}
	d, ok := b.r.ext.Lookup(name[:i])
	if !ok {
		return nil
	}
	if c, ok := d.(*term.ClassDef); ok {
		return c.Field(name[i+1:])
	}
	return nil
}

func (b *builder) fieldCall(n *yaml.Node, f *term.ClassField, args []term.Expr) term.Expr {
	if len(args) == 0 {
		b.errorf(n, "field %s needs an argument", f.Name())
		return &term.ErrorExpr{}
	}
	return term.Apps(&term.FieldCall{Field: f, Arg: args[0]}, args[1:]...)
}

type mapping map[string]*yaml.Node

func keys(n *yaml.Node) mapping {
	m := make(mapping, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		m[n.Content[i].Value] = n.Content[i+1]
	}
	return m
}

func (b *builder) form(n *yaml.Node, scope *env) term.Expr {
	m := keys(n)
	switch {
	case m["universe"] != nil:
		var s []int
		if err := m["universe"].Decode(&s); err != nil {
			b.errorf(n, "%v", err)
		}
		return &term.Universe{Sort: b.sort(n, s)}

	case m["lam"] != nil:
		params, inner := b.params(m["lam"], scope, false)
		if params == nil {
			b.errorf(n, "lambda without parameters")
			return &term.ErrorExpr{}
		}
		return &term.Lam{Param: params, Body: b.required(n, m, "body", inner)}

	case m["pi"] != nil:
		params, inner := b.params(m["pi"], scope, true)
		return piOf(params, b.required(n, m, "cod", inner))

	case m["arrow"] != nil:
		parts := m["arrow"]
		if parts.Kind != yaml.SequenceNode || len(parts.Content) < 2 {
			b.errorf(n, "arrow needs at least two types")
			return &term.ErrorExpr{}
		}
		ts := b.exprs(parts.Content, scope)
		out := ts[len(ts)-1]
		for i := len(ts) - 2; i >= 0; i-- {
			out = term.Arrow(ts[i], out)
		}
		return out

	case m["sigma"] != nil:
		params, _ := b.params(m["sigma"], scope, true)
		return &term.Sigma{Params: params}

	case m["tuple"] != nil:
		return &term.Tuple{Fields: b.exprs(m["tuple"].Content, scope)}

	case m["proj"] != nil:
		var idx int
		if m["index"] == nil || m["index"].Decode(&idx) != nil {
			b.errorf(n, "proj needs an integer index")
		}
		return &term.Proj{Tuple: b.expr(m["proj"], scope), Index: idx}

	case m["let"] != nil:
		let := &term.Let{}
		for _, c := range m["let"].Content {
			if c.Kind != yaml.MappingNode || len(c.Content) != 2 {
				b.errorf(c, "let clause must be {name: expr}")
				continue
			}
			v := term.NewBinding(c.Content[0].Value, nil)
			let.Clauses = append(let.Clauses, &term.LetClause{Binding: v, Expr: b.expr(c.Content[1], scope)})
			scope = scope.bind(v)
		}
		let.Body = b.required(n, m, "in", scope)
		return let

	case m["case"] != nil:
		args := b.exprs(m["case"].Content, scope)
		if m["params"] == nil {
			b.errorf(n, "case needs params naming its scrutinees")
			return &term.ErrorExpr{}
		}
		params, inner := b.params(m["params"], scope, true)
		e := &term.Case{Args: args, Params: params}
		if m["result"] != nil {
			e.Result = b.expr(m["result"], inner)
		}
		var raw []rawClause
		if m["clauses"] == nil || m["clauses"].Decode(&raw) != nil {
			b.errorf(n, "case needs clauses")
			return &term.ErrorExpr{}
		}
		e.Body = b.elim(raw, scope)
		return e

	case m["field"] != nil:
		f := b.field(m["field"], m["field"].Value, true)
		if f == nil {
			return &term.ErrorExpr{}
		}
		return &term.FieldCall{Field: f, Arg: b.required(n, m, "of", scope)}

	case m["new"] != nil, m["class"] != nil:
		isNew := m["new"] != nil
		name := m["class"]
		if isNew {
			name = m["new"]
		}
		cc := b.classCall(name, m["impls"], scope)
		if cc == nil {
			return &term.ErrorExpr{}
		}
		if isNew {
			return &term.New{Call: cc}
		}
		return cc

	case m["instance"] != nil:
		d, _ := b.r.Lookup(m["instance"].Value)
		c, ok := d.(*term.ClassDef)
		if !ok {
			b.errorf(n, "%s is not a class", m["instance"].Value)
			return &term.ErrorExpr{}
		}
		return &term.InstanceHole{Class: c}

	case m["app"] != nil:
		parts := b.exprs(m["app"].Content, scope)
		if len(parts) == 0 {
			b.errorf(n, "empty application")
			return &term.ErrorExpr{}
		}
		return term.Apps(parts[0], parts[1:]...)

	case m["goal"] != nil:
		g := &term.ErrorExpr{IsGoal: true, Goal: m["goal"].Value}
		if m["expr"] != nil {
			g.Expr = b.expr(m["expr"], scope)
		}
		return g

	case m["hole"] != nil:
		return &term.Hole{Var: term.NewInferenceVar(m["hole"].Value, nil)}

	case m["call"] != nil:
		d, ok := b.r.Lookup(m["call"].Value)
		if !ok {
			b.errorf(n, "unknown name %s", m["call"].Value)
			return &term.ErrorExpr{}
		}
		var levels []int
		if m["levels"] != nil {
			if err := m["levels"].Decode(&levels); err != nil {
				b.errorf(n, "%v", err)
			}
		}
		var args, dataArgs []term.Expr
		if m["args"] != nil {
			args = b.exprs(m["args"].Content, scope)
		}
		if m["data"] != nil {
			dataArgs = b.exprs(m["data"].Content, scope)
		}
		var sort term.Sort
		if levels != nil {
			sort = b.sort(n, levels)
		}
		return b.call(n, d, sort, args, dataArgs)
	}
	b.errorf(n, "unknown expression form")
	return &term.ErrorExpr{}
}

func (b *builder) required(n *yaml.Node, m mapping, key string, scope *env) term.Expr {
	if m[key] == nil {
		b.errorf(n, "missing %s", key)
		return &term.ErrorExpr{}
	}
	return b.expr(m[key], scope)
}

// classCall reads {class|new: Name, impls: {field: expr}}. Implementations
// may refer to the instance being built as this.
func (b *builder) classCall(name, impls *yaml.Node, scope *env) *term.ClassCall {
	d, _ := b.r.Lookup(name.Value)
	c, ok := d.(*term.ClassDef)
	if !ok {
		b.errorf(name, "%s is not a class", name.Value)
		return nil
	}
	this := term.NewBinding("this", nil)
	inner := scope.bind(this)
	var list []term.Implementation
	if impls != nil {
		m := keys(impls)
		for i := 0; i+1 < len(impls.Content); i += 2 {
			key := impls.Content[i]
			f := c.Field(key.Value)
			if f == nil {
				b.errorf(key, "class %s has no field %s", c.Name(), key.Value)
				continue
			}
			list = append(list, term.Implementation{Field: f, Expr: b.expr(m[key.Value], inner)})
		}
	}
	if _, err := term.NewClassCall(c, term.Sort{}, list); err != nil {
		b.errorf(name, "%v", err)
		return nil
	}
	cc := term.WithThis(c, term.Sort{}, list, this)
	this.SetType(cc)
	return cc
}

// piOf is cod when there are no parameters.
func piOf(params *term.DependentLink, cod term.Expr) term.Expr {
	if params == nil {
		return cod
	}
	return &term.Pi{Param: params, Cod: cod}
}
