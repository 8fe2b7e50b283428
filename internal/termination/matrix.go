// Package termination certifies that recursive definitions terminate using
// size-change matrices.
//
// Every recursive call site yields a matrix relating the arguments of the
// call to the parameters of the enclosing definition. Matrices are composed
// along paths of the call graph until no new matrix appears; a definition is
// accepted when every idempotent matrix from it to itself has a strictly
// decreasing entry on its diagonal.
package termination

import (
	"strings"
)

// Rel is the size relation between an argument and a parameter.
type Rel int8

const (
	Unknown Rel = iota
	Equal
	Less
)

func (r Rel) String() string {
	switch r {
	case Equal:
		return "="
	case Less:
		return "<"
	}
	return "?"
}

// Then composes two relations along a path. Unknown absorbs everything and
// a single decrease makes the whole path decreasing.
func (r Rel) Then(o Rel) Rel {
	if r == Unknown || o == Unknown {
		return Unknown
	}
	if r == Less || o == Less {
		return Less
	}
	return Equal
}

// Best combines relations obtained along alternative paths.
func (r Rel) Best(o Rel) Rel {
	if o > r {
		return o
	}
	return r
}

// Matrix has a row per callee parameter and a column per caller parameter.
type Matrix struct {
	rows, cols int
	cells      []Rel
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, cells: make([]Rel, rows*cols)}
}

// Identity relates every parameter of a definition to itself.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, Equal)
	}
	return m
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

func (m *Matrix) At(i, j int) Rel         { return m.cells[i*m.cols+j] }
func (m *Matrix) Set(i, j int, r Rel)     { m.cells[i*m.cols+j] = r }
func (m *Matrix) Improve(i, j int, r Rel) { m.Set(i, j, m.At(i, j).Best(r)) }

// Compose returns the matrix of the path that follows first and then next:
// first relates the parameters of g to those of f, next those of h to g, and
// the result those of h to f.
func Compose(first, next *Matrix) *Matrix {
	if next.cols != first.rows {
		panic("termination: incompatible matrices")
	}
	out := NewMatrix(next.rows, first.cols)
	for i := 0; i < next.rows; i++ {
		for j := 0; j < first.cols; j++ {
			r := Unknown
			for k := 0; k < next.cols; k++ {
				r = r.Best(next.At(i, k).Then(first.At(k, j)))
			}
			out.Set(i, j, r)
		}
	}
	return out
}

func (m *Matrix) Equal(o *Matrix) bool {
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i := range m.cells {
		if m.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// Idempotent reports whether composing m with itself gives m.
func (m *Matrix) Idempotent() bool {
	return m.rows == m.cols && Compose(m, m).Equal(m)
}

// HasDecreasingDiagonal reports whether some parameter strictly decreases.
func (m *Matrix) HasDecreasingDiagonal() bool {
	for i := 0; i < m.rows && i < m.cols; i++ {
		if m.At(i, i) == Less {
			return true
		}
	}
	return false
}

// Key is a compact rendering used to recognise matrices already seen.
func (m *Matrix) Key() string {
	var sb strings.Builder
	for i, c := range m.cells {
		if i > 0 && i%m.cols == 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}

func (m *Matrix) String() string {
	var sb strings.Builder
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(m.At(i, j).String())
		}
	}
	return sb.String()
}
