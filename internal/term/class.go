package term

import "fmt"

// Implementation assigns an expression to a class field. The expression may
// refer to the this binding of the enclosing class call.
type Implementation struct {
	Field *ClassField
	Expr  Expr
}

// ClassCall is a class type with some of its fields implemented.
type ClassCall struct {
	Class  *ClassDef
	Levels Sort
	impls  []Implementation
	this   *Binding
}

// NewClassCall checks that every implemented field belongs to class and is
// implemented at most once.
func NewClassCall(class *ClassDef, levels Sort, impls []Implementation) (*ClassCall, error) {
	seen := make(map[*ClassField]bool, len(impls))
	for _, impl := range impls {
		if impl.Field.Class != class {
			return nil, fmt.Errorf("field %s does not belong to class %s", impl.Field.Name(), class.Name())
		}
		if seen[impl.Field] {
			return nil, fmt.Errorf("field %s of %s is implemented twice", impl.Field.Name(), class.Name())
		}
		seen[impl.Field] = true
	}
	return newClassCall(class, levels, impls, nil), nil
}

// MustClassCall is NewClassCall for statically known implementations.
func MustClassCall(class *ClassDef, levels Sort, impls ...Implementation) *ClassCall {
	cc, err := NewClassCall(class, levels, impls)
	if err != nil {
		panic(err)
	}
	return cc
}

func newClassCall(class *ClassDef, levels Sort, impls []Implementation, this *Binding) *ClassCall {
	cc := &ClassCall{Class: class, Levels: levels, impls: impls}
	if this == nil {
		this = NewLazyBinding("this", func() Expr { return cc })
	}
	cc.this = this
	return cc
}

// WithThis rebuilds the call around a this binding b created by the caller;
// the implementations must already refer to b.
func WithThis(class *ClassDef, levels Sort, impls []Implementation, b *Binding) *ClassCall {
	return newClassCall(class, levels, impls, b)
}

func (c *ClassCall) Implementations() []Implementation { return c.impls }

func (c *ClassCall) ThisBinding() *Binding { return c.this }

// Implementation returns the raw implementation of f, which may mention the
// this binding.
func (c *ClassCall) Implementation(f *ClassField) (Expr, bool) {
	for _, impl := range c.impls {
		if impl.Field == f {
			return impl.Expr, true
		}
	}
	return nil, false
}

// ImplementationAt returns the implementation of f with this replaced by arg.
func (c *ClassCall) ImplementationAt(f *ClassField, arg Expr) (Expr, bool) {
	impl, ok := c.Implementation(f)
	if !ok {
		return nil, false
	}
	return SubstOne(impl, c.this, arg), true
}

func (c *ClassCall) IsImplemented(f *ClassField) bool {
	_, ok := c.Implementation(f)
	return ok
}

// NumImplemented is the number of implemented fields.
func (c *ClassCall) NumImplemented() int { return len(c.impls) }

// IsComplete reports whether every field of the class is implemented.
func (c *ClassCall) IsComplete() bool { return len(c.impls) == len(c.Class.Fields) }

// Classifying returns the implementation of the classifying field, if any.
func (c *ClassCall) Classifying() (Expr, bool) {
	f := c.Class.ClassifyingField()
	if f == nil {
		return nil, false
	}
	return c.Implementation(f)
}
