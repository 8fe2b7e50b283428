// Package corefile reads elaborated core definitions written as YAML.
//
// A core file is a list of definitions:
//
//	definitions:
//	  - data: Bool
//	    constructors:
//	      - name: tt
//	      - name: ff
//	  - func: not
//	    params: [{b: Bool}]
//	    result: Bool
//	    clauses:
//	      - {patterns: [tt], body: ff}
//	      - {patterns: [ff], body: tt}
//
// Definitions of all files added to one Reader may refer to each other in
// any order; everything else is looked up in the external scope and then in
// the prelude.
package corefile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

// Scope resolves names defined outside the files of a Reader, typically
// the definitions of already loaded libraries.
type Scope interface {
	Lookup(name string) (term.Definition, bool)
}

type document struct {
	Definitions []yaml.Node `yaml:"definitions"`
}

type rawDef struct {
	Func     string `yaml:"func"`
	Lemma    string `yaml:"lemma"`
	Axiom    string `yaml:"axiom"`
	Instance string `yaml:"instance"`
	Data     string `yaml:"data"`
	Class    string `yaml:"class"`

	Params  yaml.Node   `yaml:"params"`
	Result  yaml.Node   `yaml:"result"`
	Body    yaml.Node   `yaml:"body"`
	Clauses []rawClause `yaml:"clauses"`

	Sort         []int      `yaml:"sort"`
	Constructors []rawCon   `yaml:"constructors"`
	Fields       []rawField `yaml:"fields"`
	Classifying  *string    `yaml:"classifying"`
}

type rawClause struct {
	Patterns []yaml.Node `yaml:"patterns"`
	Body     yaml.Node   `yaml:"body"`
}

type rawCon struct {
	Name   string    `yaml:"name"`
	Params yaml.Node `yaml:"params"`
}

type rawField struct {
	Name      string    `yaml:"name"`
	Type      yaml.Node `yaml:"type"`
	Parameter bool      `yaml:"parameter"`
	Explicit  *bool     `yaml:"explicit"`
	Property  bool      `yaml:"property"`
}

type pending struct {
	raw  *rawDef
	def  term.Definition
	file string
	node *yaml.Node
}

// Reader collects the definitions of a set of core files.
type Reader struct {
	ext     Scope
	names   map[string]term.Definition
	fields  map[string]*term.ClassField
	pending []pending
	errs    []*diagnostics.DiagnosticError
}

func NewReader(ext Scope) *Reader {
	return &Reader{
		ext:    ext,
		names:  make(map[string]term.Definition),
		fields: make(map[string]*term.ClassField),
	}
}

func (r *Reader) errorf(file string, n *yaml.Node, format string, args ...any) {
	pos := term.Position{File: file}
	if n != nil {
		pos.Line, pos.Column = n.Line, n.Column
	}
	r.errs = append(r.errs, diagnostics.NewError(diagnostics.ErrC001, pos, fmt.Sprintf(format, args...)))
}

// ReadFile reads path and adds its definitions.
func (r *Reader) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading core file %s: %w", path, err)
	}
	r.Add(path, data)
	return nil
}

// Add declares the definitions of one file. Malformed definitions are
// reported by Units and skipped.
func (r *Reader) Add(file string, data []byte) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		r.errorf(file, nil, "parsing %s: %v", file, err)
		return
	}
	for i := range doc.Definitions {
		node := &doc.Definitions[i]
		raw := new(rawDef)
		if err := node.Decode(raw); err != nil {
			r.errorf(file, node, "%v", err)
			continue
		}
		def := r.declare(file, node, raw)
		if def != nil {
			r.pending = append(r.pending, pending{raw: raw, def: def, file: file, node: node})
		}
	}
}

func (r *Reader) declare(file string, node *yaml.Node, raw *rawDef) term.Definition {
	type head struct {
		name string
		make func(string) term.Definition
	}
	fn := func(kind term.FunctionKind) func(string) term.Definition {
		return func(n string) term.Definition { return term.NewFunction(n, kind) }
	}
	var found []head
	for _, h := range []head{
		{raw.Func, fn(term.KindFunc)},
		{raw.Lemma, fn(term.KindLemma)},
		{raw.Axiom, fn(term.KindAxiom)},
		{raw.Instance, fn(term.KindInstance)},
		{raw.Data, func(n string) term.Definition { return term.NewData(n) }},
		{raw.Class, func(n string) term.Definition { return term.NewClass(n) }},
	} {
		if h.name != "" {
			found = append(found, h)
		}
	}
	if len(found) != 1 {
		r.errorf(file, node, "a definition must have exactly one of func, lemma, axiom, instance, data or class")
		return nil
	}
	def := found[0].make(found[0].name)
	pos := term.Position{File: file, Line: node.Line, Column: node.Column}
	if !r.define(file, node, def) {
		return nil
	}
	switch d := def.(type) {
	case *term.FunctionDef:
		d.SetPos(pos)
	case *term.DataDef:
		d.SetPos(pos)
		for _, c := range raw.Constructors {
			con := d.AddConstructor(c.Name, nil)
			con.SetPos(pos)
			r.define(file, node, con)
		}
	case *term.ClassDef:
		d.SetPos(pos)
		for _, f := range raw.Fields {
			explicit := f.Explicit == nil || *f.Explicit
			field := d.AddField(f.Name, f.Parameter, explicit)
			field.Property = f.Property
			field.SetPos(pos)
			r.fields[d.Name()+"."+f.Name] = field
			if _, ok := r.fields[f.Name]; ok {
				r.fields[f.Name] = nil
			} else {
				r.fields[f.Name] = field
			}
		}
		if raw.Classifying != nil {
			if *raw.Classifying == "" {
				d.SetClassifyingField(nil)
			} else if f := d.Field(*raw.Classifying); f != nil {
				d.SetClassifyingField(f)
			} else {
				r.errorf(file, node, "class %s has no field %s", d.Name(), *raw.Classifying)
			}
		}
	}
	return def
}

func (r *Reader) define(file string, node *yaml.Node, d term.Definition) bool {
	if d.Name() == "" {
		r.errorf(file, node, "definition without a name")
		return false
	}
	if _, ok := r.names[d.Name()]; ok {
		r.errorf(file, node, "%s is defined twice", d.Name())
		return false
	}
	r.names[d.Name()] = d
	return true
}

// Lookup resolves a global name: definitions of this reader first, then
// the external scope, then the prelude.
func (r *Reader) Lookup(name string) (term.Definition, bool) {
	if d, ok := r.names[name]; ok {
		return d, true
	}
	if r.ext != nil {
		if d, ok := r.ext.Lookup(name); ok {
			return d, true
		}
	}
	d, ok := term.Prelude[name]
	return d, ok
}

// Units builds the definitions declared so far and returns them in file
// order together with every error found while reading.
func (r *Reader) Units() ([]*term.Unit, []*diagnostics.DiagnosticError) {
	var units []*term.Unit
	for _, p := range r.pending {
		b := &builder{r: r, file: p.file}
		u := b.unit(p)
		if b.failed {
			continue
		}
		units = append(units, u)
	}
	r.pending = nil
	return units, r.errs
}

// Definitions returns the definitions declared by the added files.
func (r *Reader) Definitions() map[string]term.Definition {
	out := make(map[string]term.Definition, len(r.names))
	for k, v := range r.names {
		out[k] = v
	}
	return out
}

// ReadFiles reads a set of core files that may refer to each other.
func ReadFiles(ext Scope, paths ...string) ([]*term.Unit, []*diagnostics.DiagnosticError) {
	r := NewReader(ext)
	for _, p := range paths {
		if err := r.ReadFile(p); err != nil {
			r.errorf(p, nil, "%v", err)
		}
	}
	return r.Units()
}
