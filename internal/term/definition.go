package term

import (
	"fmt"
	"sync/atomic"
)

// Position anchors a definition or term in the source it was read from.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Status tracks how far a definition has been checked.
type Status int32

const (
	StatusNone Status = iota
	StatusHeaderChecking
	StatusHeaderOK
	StatusBodyChecking
	StatusDone
	StatusHeaderFailed
	StatusBodyFailed
	StatusNonTerminating
)

func (s Status) HeaderIsOK() bool {
	return s == StatusHeaderOK || s == StatusBodyChecking || s == StatusDone ||
		s == StatusBodyFailed || s == StatusNonTerminating
}

// InProgress reports whether the definition is currently being checked.
func (s Status) InProgress() bool {
	return s == StatusHeaderChecking || s == StatusBodyChecking
}

func (s Status) String() string {
	switch s {
	case StatusHeaderChecking:
		return "header-checking"
	case StatusHeaderOK:
		return "header-ok"
	case StatusBodyChecking:
		return "body-checking"
	case StatusDone:
		return "done"
	case StatusHeaderFailed:
		return "header-failed"
	case StatusBodyFailed:
		return "body-failed"
	case StatusNonTerminating:
		return "non-terminating"
	}
	return "none"
}

// Definition is a global definition referenced by call expressions.
type Definition interface {
	Name() string
	Parameters() *DependentLink
	Pos() Position
	Status() Status
	SetStatus(Status)
	isDefinition()
}

type defBase struct {
	name   string
	pos    Position
	params *DependentLink
	status atomic.Int32
}

func (d *defBase) Name() string                   { return d.name }
func (d *defBase) Pos() Position                  { return d.pos }
func (d *defBase) Parameters() *DependentLink     { return d.params }
func (d *defBase) SetParameters(p *DependentLink) { d.params = p }
func (d *defBase) Status() Status                 { return Status(d.status.Load()) }
func (d *defBase) SetStatus(s Status)             { d.status.Store(int32(s)) }
func (d *defBase) SetPos(p Position)              { d.pos = p }

type FunctionKind int

const (
	KindFunc FunctionKind = iota
	KindInstance
	KindLemma
	KindAxiom
)

func (k FunctionKind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindLemma:
		return "lemma"
	case KindAxiom:
		return "axiom"
	}
	return "func"
}

// FunctionDef is a function, lemma or instance. The body is either a plain
// expression or an ElimBody and is assigned exactly once.
type FunctionDef struct {
	defBase
	Kind   FunctionKind
	Result Expr
	// Opaque functions are never unfolded by the normalizer.
	Opaque bool
	// Builtin computes the call directly when it can, e.g. arithmetic on
	// literals.
	Builtin func(args []Expr) (Expr, bool)

	body     Expr
	elimBody *ElimBody
	hasBody  bool
}

func NewFunction(name string, kind FunctionKind) *FunctionDef {
	return &FunctionDef{defBase: defBase{name: name}, Kind: kind}
}

func (d *FunctionDef) isDefinition() {}

func (d *FunctionDef) SetBody(body Expr) error {
	if d.hasBody {
		return fmt.Errorf("body of %s is already set", d.name)
	}
	d.body, d.hasBody = body, true
	return nil
}

func (d *FunctionDef) SetElimBody(body *ElimBody) error {
	if d.hasBody {
		return fmt.Errorf("body of %s is already set", d.name)
	}
	d.elimBody, d.hasBody = body, true
	return nil
}

func (d *FunctionDef) Body() Expr          { return d.body }
func (d *FunctionDef) ElimBody() *ElimBody { return d.elimBody }
func (d *FunctionDef) HasBody() bool       { return d.hasBody }

// ReplaceBody swaps a failed body for an error placeholder. It is the only
// mutation allowed after SetBody and is used by the checker on failure.
func (d *FunctionDef) ReplaceBody(body Expr) {
	d.body, d.elimBody, d.hasBody = body, nil, true
}

// DataDef is an inductive data type.
type DataDef struct {
	defBase
	Sort         Sort
	Constructors []*Constructor
}

func NewData(name string) *DataDef { return &DataDef{defBase: defBase{name: name}} }

func (d *DataDef) isDefinition() {}

// AddConstructor creates a constructor of d with the given parameters. The
// parameter types may refer to the parameters of d.
func (d *DataDef) AddConstructor(name string, params *DependentLink) *Constructor {
	c := &Constructor{defBase: defBase{name: name, params: params}, Data: d}
	d.Constructors = append(d.Constructors, c)
	return c
}

func (d *DataDef) Constructor(name string) *Constructor {
	for _, c := range d.Constructors {
		if c.name == name {
			return c
		}
	}
	return nil
}

type Constructor struct {
	defBase
	Data *DataDef
	// Reflexivity marks the constructor of the path type whose patterns
	// force their endpoints to be unified.
	Reflexivity bool
}

func (c *Constructor) isDefinition() {}

func (c *Constructor) Status() Status { return c.Data.Status() }

// ClassDef is a class (record) type. Parameters of a class are fields.
type ClassDef struct {
	defBase
	Sort        Sort
	Fields      []*ClassField
	classifying *ClassField
	explicitCls bool
}

func NewClass(name string) *ClassDef { return &ClassDef{defBase: defBase{name: name}} }

func (c *ClassDef) isDefinition() {}

// AddField appends a field. typ may refer to the class's this binding
// (ThisBinding of the field) to mention earlier fields.
func (c *ClassDef) AddField(name string, parameter, explicit bool) *ClassField {
	f := &ClassField{defBase: defBase{name: name}, Class: c, Parameter: parameter, Explicit: explicit}
	f.this = NewLazyBinding("this", func() Expr { return &ClassCall{Class: c} })
	c.Fields = append(c.Fields, f)
	if !c.explicitCls && c.classifying == nil && parameter && explicit {
		c.classifying = f
	}
	return f
}

// SetClassifyingField overrides the default classifying field (the first
// explicit parameter). nil means the class has none.
func (c *ClassDef) SetClassifyingField(f *ClassField) {
	c.classifying, c.explicitCls = f, true
}

// ClassifyingField determines which instances apply during resolution.
func (c *ClassDef) ClassifyingField() *ClassField { return c.classifying }

func (c *ClassDef) Field(name string) *ClassField {
	for _, f := range c.Fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

type ClassField struct {
	defBase
	Class     *ClassDef
	Type      Expr
	Parameter bool
	Explicit  bool
	// Property fields never reduce.
	Property bool
	this     *Binding
}

func (f *ClassField) isDefinition() {}

func (f *ClassField) Status() Status { return f.Class.Status() }

// ThisBinding is the variable Type may use to refer to the enclosing instance.
func (f *ClassField) ThisBinding() *Binding { return f.this }

// TypeAt is the type of the field projected out of arg.
func (f *ClassField) TypeAt(arg Expr) Expr {
	if f.Type == nil {
		return nil
	}
	s := NewSubstitution()
	s.Add(f.this, arg)
	return Subst(f.Type, s)
}

// InferenceVar is a metavariable. Class is set for instance metavariables
// whose resolution was deferred until their classifying expression is known.
type InferenceVar struct {
	id    BindingID
	Name  string
	Type  Expr
	Class *ClassDef
	Trail []TrailEntry
}

func NewInferenceVar(name string, typ Expr) *InferenceVar {
	return &InferenceVar{id: nextBindingID(), Name: name, Type: typ}
}

func (v *InferenceVar) ID() BindingID { return v.id }

func (v *InferenceVar) String() string { return "?" + v.Name }
