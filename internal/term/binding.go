package term

import (
	"sync"
	"sync/atomic"
)

// BindingID is the identity of a variable. Handles are allocated from a
// process-wide counter and never reused, so equal handles always denote the
// same binder.
type BindingID uint64

var lastBindingID atomic.Uint64

func nextBindingID() BindingID {
	return BindingID(lastBindingID.Add(1))
}

// Binding is a typed variable. Two bindings are the same variable iff their
// IDs are equal; the name is only used for display.
type Binding struct {
	id     BindingID
	name   string
	hidden bool

	typ     Expr
	resolve func() Expr
	once    sync.Once
}

// NewBinding allocates a fresh variable of the given type. The type may be nil
// when it is not known yet (pattern variables before checking).
func NewBinding(name string, typ Expr) *Binding {
	return &Binding{id: nextBindingID(), name: name, typ: typ}
}

// NewLazyBinding allocates a variable whose type is computed on first use.
func NewLazyBinding(name string, resolve func() Expr) *Binding {
	return &Binding{id: nextBindingID(), name: name, resolve: resolve}
}

// NewHiddenBinding allocates a variable excluded from displayed contexts.
func NewHiddenBinding(name string, typ Expr) *Binding {
	b := NewBinding(name, typ)
	b.hidden = true
	return b
}

func (b *Binding) ID() BindingID { return b.id }
func (b *Binding) Name() string  { return b.name }
func (b *Binding) Hidden() bool  { return b.hidden }

// Type returns the type of the variable, resolving a lazy type at most once.
func (b *Binding) Type() Expr {
	if b.resolve != nil {
		b.once.Do(func() {
			b.typ = b.resolve()
			b.resolve = nil
		})
	}
	return b.typ
}

// SetType assigns the elaborated type of a binding. The checker calls it
// while the enclosing definition is being checked, before anything else can
// observe the binding. Lazy bindings keep their resolver.
func (b *Binding) SetType(typ Expr) {
	if b.resolve == nil {
		b.typ = typ
	}
}

// Rename returns a fresh binding with the same name and hidden flag and the
// given type.
func (b *Binding) Rename(typ Expr) *Binding {
	nb := NewBinding(b.name, typ)
	nb.hidden = b.hidden
	return nb
}

func (b *Binding) String() string {
	if b == nil {
		return "_"
	}
	return b.name
}
