package order

import (
	"reflect"
	"testing"

	"github.com/funvibe/funcore/internal/term"
)

func TestComponents(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  [][]string
	}{
		{
			name:  "independent",
			nodes: []string{"a", "b"},
			want:  [][]string{{"a"}, {"b"}},
		},
		{
			name:  "chain",
			nodes: []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  [][]string{{"c"}, {"b"}, {"a"}},
		},
		{
			name:  "cycle keeps insertion order",
			nodes: []string{"even", "odd", "main"},
			edges: [][2]string{{"odd", "even"}, {"even", "odd"}, {"main", "even"}},
			want:  [][]string{{"even", "odd"}, {"main"}},
		},
		{
			name:  "self loop",
			nodes: []string{"loop"},
			edges: [][2]string{{"loop", "loop"}},
			want:  [][]string{{"loop"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New[string]()
			for _, n := range tt.nodes {
				g.Add(n)
			}
			for _, e := range tt.edges {
				g.Edge(e[0], e[1])
			}
			if got := g.Components(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Components() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWaves(t *testing.T) {
	g := New[string]()
	for _, n := range []string{"a", "b", "c", "d"} {
		g.Add(n)
	}
	g.Edge("c", "a")
	g.Edge("c", "b")
	g.Edge("d", "c")

	want := [][][]string{
		{{"a"}, {"b"}},
		{{"c"}},
		{{"d"}},
	}
	if got := g.Waves(); !reflect.DeepEqual(got, want) {
		t.Errorf("Waves() = %v, want %v", got, want)
	}
}

func TestEdgeAddsNodes(t *testing.T) {
	g := New[int]()
	g.Edge(1, 2)
	g.Edge(1, 2)
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
	if got := len(g.edges[0]); got != 1 {
		t.Errorf("duplicate edge recorded %d times", got)
	}
}

func nat() term.Expr { return term.NatType() }

func names(waves [][][]*term.Unit) [][][]string {
	out := make([][][]string, len(waves))
	for i, w := range waves {
		for _, g := range w {
			var group []string
			for _, u := range g {
				group = append(group, u.Def.Name())
			}
			out[i] = append(out[i], group)
		}
	}
	return out
}

func TestUnitsMutualRecursion(t *testing.T) {
	even := term.NewFunction("even", term.KindFunc)
	odd := term.NewFunction("odd", term.KindFunc)
	main := term.NewFunction("main", term.KindFunc)
	for _, f := range []*term.FunctionDef{even, odd} {
		f.SetParameters(term.Param("n", nat()))
		f.Result = nat()
	}
	main.Result = nat()

	units := []*term.Unit{
		{Def: main, Body: &term.FunCall{Def: even, Args: []term.Expr{term.NewInt(2)}}},
		{Def: even, Body: &term.FunCall{Def: odd, Args: []term.Expr{term.NewInt(1)}}},
		{Def: odd, Body: &term.FunCall{Def: even, Args: []term.Expr{term.NewInt(0)}}},
	}
	want := [][][]string{{{"even", "odd"}}, {{"main"}}}
	if got := names(Units(units)); !reflect.DeepEqual(got, want) {
		t.Errorf("Units() = %v, want %v", got, want)
	}
}

func TestUnitsPatternAndTypeReferences(t *testing.T) {
	d := term.NewData("Bool")
	tt := d.AddConstructor("true", nil)
	d.AddConstructor("false", nil)

	not := term.NewFunction("not", term.KindFunc)
	x := term.NewBinding("x", &term.DataCall{Data: d})
	not.SetParameters(term.Typed(true, x, nil))
	not.Result = &term.DataCall{Data: d}

	units := []*term.Unit{
		{Def: not, Elim: &term.ElimBody{Clauses: []*term.Clause{
			{Patterns: []term.Pattern{&term.ConPattern{Con: tt}}, Body: &term.ConCall{Con: tt}},
		}}},
		{Def: d},
	}
	want := [][][]string{{{"Bool"}}, {{"not"}}}
	if got := names(Units(units)); !reflect.DeepEqual(got, want) {
		t.Errorf("Units() = %v, want %v", got, want)
	}
}

func TestUnitsInstanceArgumentsDependOnInstances(t *testing.T) {
	c := term.NewClass("Pointed")
	x := c.AddField("X", true, true)
	x.Type = &term.Universe{Sort: term.NewSort(0, 0)}
	p := c.AddField("point", false, true)
	p.Type = term.MakeFieldCall(x, term.NewRef(p.ThisBinding()))

	inst := term.NewFunction("natPointed", term.KindInstance)
	inst.Result = term.MustClassCall(c, term.NewSort(0, 0), term.Implementation{Field: x, Expr: nat()})

	use := term.NewFunction("use", term.KindFunc)
	use.Result = nat()

	units := []*term.Unit{
		{Def: use, Body: &term.FieldCall{Field: p, Arg: &term.InstanceHole{Class: c}}},
		{Def: inst, Body: &term.New{Call: term.MustClassCall(c, term.NewSort(0, 0),
			term.Implementation{Field: x, Expr: nat()},
			term.Implementation{Field: p, Expr: term.NewInt(0)})}},
		{Def: c},
	}
	want := [][][]string{{{"Pointed"}}, {{"natPointed"}}, {{"use"}}}
	if got := names(Units(units)); !reflect.DeepEqual(got, want) {
		t.Errorf("Units() = %v, want %v", got, want)
	}
}
