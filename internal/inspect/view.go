// Package inspect exposes checked definitions to external tools: a
// read-only View of each definition, and a gRPC service serving views.
package inspect

import (
	"fmt"
	"sort"

	"github.com/funvibe/funcore/internal/pipeline"
	"github.com/funvibe/funcore/internal/term"
)

// Param is one parameter of a definition.
type Param struct {
	Name     string
	Type     string
	Explicit bool
}

// View is what external code may know about a definition.
type View struct {
	Name             string
	Kind             string
	Status           string
	Type             string
	Parameters       []Param
	Body             string
	Universe         string
	ClassifyingField string
	Instances        []string
	Constructors     []string
	Position         string
}

func kindOf(d term.Definition) string {
	switch d := d.(type) {
	case *term.FunctionDef:
		return d.Kind.String()
	case *term.DataDef:
		return "data"
	case *term.ClassDef:
		return "class"
	case *term.Constructor:
		return "constructor"
	case *term.ClassField:
		return "field"
	}
	return "unknown"
}

func params(l *term.DependentLink) []Param {
	var out []Param
	for _, n := range l.Links() {
		out = append(out, Param{Name: n.Name(), Type: exprText(n.Type()), Explicit: n.Explicit()})
	}
	return out
}

func exprText(e term.Expr) string {
	if e == nil {
		return ""
	}
	return fmt.Sprint(e)
}

func bodyShape(d *term.FunctionDef) string {
	switch {
	case !d.HasBody():
		return "none"
	case d.ElimBody() != nil:
		return fmt.Sprintf("clauses(%d)", len(d.ElimBody().Clauses))
	}
	if _, ok := d.Body().(*term.ErrorExpr); ok {
		return "error"
	}
	return "expression"
}

func typeText(l *term.DependentLink, result term.Expr) string {
	if result == nil || l == nil {
		return exprText(result)
	}
	return l.String() + " -> " + exprText(result)
}

// NewView describes d. instances lists the instances of a class and may
// be nil.
func NewView(d term.Definition, instances func(*term.ClassDef) []*term.FunctionDef) View {
	v := View{
		Name:       d.Name(),
		Kind:       kindOf(d),
		Status:     d.Status().String(),
		Parameters: params(d.Parameters()),
	}
	if p := d.Pos(); p.File != "" || p.Line > 0 {
		v.Position = p.String()
	}
	switch d := d.(type) {
	case *term.FunctionDef:
		v.Type = typeText(d.Parameters(), d.Result)
		v.Body = bodyShape(d)
	case *term.DataDef:
		v.Universe = d.Sort.String()
		for _, c := range d.Constructors {
			v.Constructors = append(v.Constructors, c.Name())
		}
	case *term.ClassDef:
		v.Universe = d.Sort.String()
		if f := d.ClassifyingField(); f != nil {
			v.ClassifyingField = f.Name()
		}
		for _, f := range d.Fields {
			v.Parameters = append(v.Parameters, Param{Name: f.Name(), Type: exprText(f.Type), Explicit: f.Explicit})
		}
		if instances != nil {
			for _, inst := range instances(d) {
				v.Instances = append(v.Instances, inst.Name())
			}
		}
	}
	return v
}

// Views describes every definition of the table, sorted by name.
func Views(t pipeline.DefinitionTable) []View {
	defs := t.Definitions()
	out := make([]View, len(defs))
	for i, d := range defs {
		out[i] = NewView(d, t.Instances)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
