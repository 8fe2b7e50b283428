package instance

import "github.com/funvibe/funcore/internal/term"

// LocalInstance is an instance available in the current lexical scope, such
// as a class-typed parameter of the definition being checked.
type LocalInstance struct {
	Class       *term.ClassDef
	Classifying term.Expr
	Value       term.Expr
}

// LocalPool is a stack of scopes of local instances.
type LocalPool struct {
	scopes [][]LocalInstance
}

func NewLocalPool() *LocalPool {
	return &LocalPool{scopes: [][]LocalInstance{nil}}
}

func (p *LocalPool) Push() { p.scopes = append(p.scopes, nil) }

// Pop drops the innermost scope. The outermost scope is never dropped.
func (p *LocalPool) Pop() {
	if len(p.scopes) > 1 {
		p.scopes = p.scopes[:len(p.scopes)-1]
	}
}

func (p *LocalPool) Add(inst LocalInstance) {
	top := len(p.scopes) - 1
	p.scopes[top] = append(p.scopes[top], inst)
}

// Len is the number of visible local instances.
func (p *LocalPool) Len() int {
	n := 0
	for _, s := range p.scopes {
		n += len(s)
	}
	return n
}

// Find returns the innermost, most recently added instance of class whose
// classifying expression equals classifying. An instance without a
// classifying expression matches any request of its class, and so does a
// request without one.
func (p *LocalPool) Find(ctx Context, class *term.ClassDef, classifying term.Expr) (term.Expr, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		scope := p.scopes[i]
		for j := len(scope) - 1; j >= 0; j-- {
			inst := scope[j]
			if inst.Class != class {
				continue
			}
			if inst.Classifying == nil || classifying == nil || ctx.StrictEqual(inst.Classifying, classifying) {
				return inst.Value, true
			}
		}
	}
	return nil, false
}

// List provides the instances of a fixed slice of definitions.
type List []*term.FunctionDef

func (l List) Instances(class *term.ClassDef) []*term.FunctionDef {
	var out []*term.FunctionDef
	for _, d := range l {
		if InstanceClass(d) == class {
			out = append(out, d)
		}
	}
	return out
}
