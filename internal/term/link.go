package term

import "strings"

// DependentLink is one node of a parameter telescope. A nil *DependentLink is
// the empty telescope.
//
// Untyped nodes (the x in `x y : A`) have no type of their own; Type and
// Explicit delegate to the next typed node. Every run of untyped nodes ends in
// exactly one typed node.
type DependentLink struct {
	binding  *Binding
	explicit bool
	typed    bool
	next     *DependentLink
}

// Typed creates a typed node for b followed by next.
func Typed(explicit bool, b *Binding, next *DependentLink) *DependentLink {
	return &DependentLink{binding: b, explicit: explicit, typed: true, next: next}
}

// Untyped creates a node sharing the type of the next typed node.
func Untyped(b *Binding, next *DependentLink) *DependentLink {
	if next == nil {
		panic("term: untyped parameter " + b.Name() + " must be followed by a typed parameter")
	}
	return &DependentLink{binding: b, next: next}
}

// ParamGroup is a run of parameters sharing one type, as in `{x y : A}`.
type ParamGroup struct {
	Bindings []*Binding
	Explicit bool
}

// Params builds a telescope from groups. All bindings of a group must already
// carry the group's type; the last one becomes the typed node.
func Params(groups ...ParamGroup) *DependentLink {
	var result *DependentLink
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if len(g.Bindings) == 0 {
			continue
		}
		last := len(g.Bindings) - 1
		result = Typed(g.Explicit, g.Bindings[last], result)
		for j := last - 1; j >= 0; j-- {
			result = Untyped(g.Bindings[j], result)
		}
	}
	return result
}

// Tele creates fresh bindings for names, all of type typ, in front of rest.
func Tele(explicit bool, names []string, typ Expr, rest *DependentLink) *DependentLink {
	bs := make([]*Binding, len(names))
	for i, n := range names {
		bs[i] = NewBinding(n, typ)
	}
	g := Params(ParamGroup{Bindings: bs, Explicit: explicit})
	if g == nil {
		return rest
	}
	last := g
	for last.next != nil {
		last = last.next
	}
	last.next = rest
	return g
}

// Param is a single explicit parameter of the given name and type.
func Param(name string, typ Expr) *DependentLink {
	return Typed(true, NewBinding(name, typ), nil)
}

func (l *DependentLink) HasNext() bool        { return l != nil }
func (l *DependentLink) Next() *DependentLink { return l.next }
func (l *DependentLink) Binding() *Binding    { return l.binding }
func (l *DependentLink) Name() string         { return l.binding.Name() }
func (l *DependentLink) IsTyped() bool        { return l.typed }

// NextTyped returns the typed node this node takes its type from.
func (l *DependentLink) NextTyped() *DependentLink {
	for l != nil && !l.typed {
		l = l.next
	}
	return l
}

func (l *DependentLink) Type() Expr {
	t := l.NextTyped()
	if t == nil {
		return nil
	}
	return t.binding.Type()
}

func (l *DependentLink) Explicit() bool {
	t := l.NextTyped()
	return t != nil && t.explicit
}

// Size is the number of parameters.
func (l *DependentLink) Size() int {
	n := 0
	for ; l != nil; l = l.next {
		n++
	}
	return n
}

// Links returns the nodes of the telescope in order.
func (l *DependentLink) Links() []*DependentLink {
	var out []*DependentLink
	for ; l != nil; l = l.next {
		out = append(out, l)
	}
	return out
}

// Bindings returns the variables of the telescope in order.
func (l *DependentLink) Bindings() []*Binding {
	var out []*Binding
	for ; l != nil; l = l.next {
		out = append(out, l.binding)
	}
	return out
}

// Get returns the i-th node or nil.
func (l *DependentLink) Get(i int) *DependentLink {
	for ; l != nil && i > 0; i-- {
		l = l.next
	}
	return l
}

// ParamSubst maps every parameter of l to the corresponding argument.
// Missing arguments are left unmapped.
func ParamSubst(l *DependentLink, args []Expr) *Substitution {
	s := NewSubstitution()
	for i := 0; l != nil && i < len(args); i, l = i+1, l.next {
		s.Add(l.binding, args[i])
	}
	return s
}

func (l *DependentLink) String() string {
	var sb strings.Builder
	for n := l; n != nil; {
		open, closeBr := "(", ")"
		if !n.Explicit() {
			open, closeBr = "{", "}"
		}
		sb.WriteString(open)
		for ; n != nil && !n.typed; n = n.next {
			sb.WriteString(n.Name())
			sb.WriteByte(' ')
		}
		if n == nil {
			break
		}
		sb.WriteString(n.Name())
		sb.WriteString(" : ")
		sb.WriteString(exprString(n.binding.Type()))
		sb.WriteString(closeBr)
		n = n.next
		if n != nil {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}
