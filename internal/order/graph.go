// Package order arranges definitions for checking: mutually recursive
// definitions form a group, groups come after the groups they depend on,
// and groups that do not depend on each other share a wave.
package order

import "sort"

// Graph is a dependency graph. An edge from a to b means a uses b.
type Graph[K comparable] struct {
	nodes []K
	index map[K]int
	edges [][]int
}

func New[K comparable]() *Graph[K] {
	return &Graph[K]{index: make(map[K]int)}
}

// Add adds a node. Adding a node twice has no effect.
func (g *Graph[K]) Add(k K) int {
	if i, ok := g.index[k]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, k)
	g.index[k] = i
	g.edges = append(g.edges, nil)
	return i
}

// Edge records that from uses to.
func (g *Graph[K]) Edge(from, to K) {
	i, j := g.Add(from), g.Add(to)
	for _, e := range g.edges[i] {
		if e == j {
			return
		}
	}
	g.edges[i] = append(g.edges[i], j)
}

func (g *Graph[K]) Len() int { return len(g.nodes) }

// components returns the strongly connected components as index lists,
// dependencies first. Nodes of a component keep insertion order.
func (g *Graph[K]) components() [][]int {
	var (
		counter int
		stack   []int
		out     [][]int
	)
	num := make([]int, len(g.nodes))
	low := make([]int, len(g.nodes))
	onStack := make([]bool, len(g.nodes))
	for i := range num {
		num[i] = -1
	}

	var visit func(v int)
	visit = func(v int) {
		num[v], low[v] = counter, counter
		counter++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range g.edges[v] {
			switch {
			case num[w] < 0:
				visit(w)
				low[v] = min(low[v], low[w])
			case onStack[w]:
				low[v] = min(low[v], num[w])
			}
		}
		if low[v] != num[v] {
			return
		}
		var comp []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		sort.Ints(comp)
		out = append(out, comp)
	}
	for v := range g.nodes {
		if num[v] < 0 {
			visit(v)
		}
	}
	return out
}

func (g *Graph[K]) keys(idx []int) []K {
	out := make([]K, len(idx))
	for i, n := range idx {
		out[i] = g.nodes[n]
	}
	return out
}

// Components returns the groups of mutually dependent nodes, every group
// after the groups it depends on.
func (g *Graph[K]) Components() [][]K {
	comps := g.components()
	out := make([][]K, len(comps))
	for i, c := range comps {
		out[i] = g.keys(c)
	}
	return out
}

// Waves partitions the components into waves. A component is in the wave
// after the last wave containing one of its dependencies.
func (g *Graph[K]) Waves() [][][]K {
	comps := g.components()
	compOf := make([]int, len(g.nodes))
	for ci, c := range comps {
		for _, n := range c {
			compOf[n] = ci
		}
	}
	level := make([]int, len(comps))
	var waves [][][]K
	for ci, c := range comps {
		l := 0
		for _, n := range c {
			for _, m := range g.edges[n] {
				if d := compOf[m]; d != ci {
					l = max(l, level[d]+1)
				}
			}
		}
		level[ci] = l
		for len(waves) <= l {
			waves = append(waves, nil)
		}
		waves[l] = append(waves[l], g.keys(c))
	}
	return waves
}
