package check

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/funvibe/funcore/internal/instance"
	"github.com/funvibe/funcore/internal/term"
)

// Table holds the checked definitions of a run. It is append-only: a name
// is published once and never replaced. It provides the global instances
// to every session.
type Table struct {
	defs sync.Map // string -> term.Definition
	sf   singleflight.Group

	mu        sync.Mutex
	order     []string
	instances map[*term.ClassDef][]*term.FunctionDef
}

func NewTable() *Table {
	return &Table{instances: make(map[*term.ClassDef][]*term.FunctionDef)}
}

// DuplicateError lists definitions that were not published because another
// definition of the same name was published first.
type DuplicateError struct {
	Defs     []term.Definition
	Existing []term.Definition
}

func (e *DuplicateError) Error() string {
	names := make([]string, len(e.Defs))
	for i, d := range e.Defs {
		names[i] = d.Name()
	}
	return fmt.Sprintf("already published: %s", strings.Join(names, ", "))
}

// Publish adds checked definitions to the table. A definition whose name is
// taken by a different definition is skipped and reported in a
// *DuplicateError; the others are still published.
func (t *Table) Publish(defs ...term.Definition) error {
	var dup *DuplicateError
	for _, d := range defs {
		if prev, loaded := t.defs.LoadOrStore(d.Name(), d); loaded {
			if prev.(term.Definition) == d {
				continue
			}
			if dup == nil {
				dup = &DuplicateError{}
			}
			dup.Defs = append(dup.Defs, d)
			dup.Existing = append(dup.Existing, prev.(term.Definition))
			continue
		}
		t.mu.Lock()
		t.order = append(t.order, d.Name())
		if f, ok := d.(*term.FunctionDef); ok && f.Kind == term.KindInstance {
			if class := instance.InstanceClass(f); class != nil {
				t.instances[class] = insertInstance(t.instances[class], f)
			}
		}
		t.mu.Unlock()
	}
	if dup != nil {
		return dup
	}
	return nil
}

// Published reports whether d itself, not just its name, is in the table.
func (t *Table) Published(d term.Definition) bool {
	v, ok := t.defs.Load(d.Name())
	return ok && v.(term.Definition) == d
}

// insertInstance keeps instances in declaration order.
func insertInstance(list []*term.FunctionDef, f *term.FunctionDef) []*term.FunctionDef {
	i := sort.Search(len(list), func(i int) bool { return declaredBefore(f, list[i]) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = f
	return list
}

func declaredBefore(a, b *term.FunctionDef) bool {
	pa, pb := a.Pos(), b.Pos()
	if pa.File != pb.File {
		return pa.File < pb.File
	}
	if pa.Line != pb.Line {
		return pa.Line < pb.Line
	}
	if pa.Column != pb.Column {
		return pa.Column < pb.Column
	}
	return a.Name() < b.Name()
}

func (t *Table) Lookup(name string) (term.Definition, bool) {
	v, ok := t.defs.Load(name)
	if !ok {
		return nil, false
	}
	return v.(term.Definition), true
}

// Definitions returns the published definitions in publication order.
func (t *Table) Definitions() []term.Definition {
	t.mu.Lock()
	names := append([]string(nil), t.order...)
	t.mu.Unlock()
	out := make([]term.Definition, 0, len(names))
	for _, n := range names {
		if d, ok := t.Lookup(n); ok {
			out = append(out, d)
		}
	}
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Instances implements instance.Provider.
func (t *Table) Instances(class *term.ClassDef) []*term.FunctionDef {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*term.FunctionDef(nil), t.instances[class]...)
}

// CheckOnce runs fn for key unless a call for the same key is already in
// flight, in which case it waits for that call and shares its error.
func (t *Table) CheckOnce(key string, fn func() error) error {
	_, err, _ := t.sf.Do(key, func() (any, error) {
		return nil, fn()
	})
	return err
}
