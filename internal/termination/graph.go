package termination

import (
	"log/slog"

	set "github.com/hashicorp/go-set/v3"

	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

// RecursiveBehavior witnesses possible non-termination: a path from a
// definition back to itself whose matrix is idempotent and does not decrease
// any parameter.
type RecursiveBehavior struct {
	Definition *term.FunctionDef
	Path       *CallMatrix
}

func (b RecursiveBehavior) String() string {
	if b.Path.Composite() {
		return "Problematic sequence of recursive calls: " + b.Path.Label()
	}
	return "Problematic recursive call: " + b.Path.Label()
}

// Diagnostic renders the behaviors of one definition as a termination error.
func Diagnostic(def *term.FunctionDef, behaviors []RecursiveBehavior) *diagnostics.DiagnosticError {
	return diagnostics.NewError(diagnostics.ErrT004, def.Pos(), def.Name()).
		In(def.Name()).
		WithPayload(behaviors)
}

type edgeKey struct {
	from, to *term.FunctionDef
	matrix   string
}

// Check runs the termination checker on a group of mutually recursive
// definitions and returns, per failing definition, its shortest witness.
func Check(group []*term.FunctionDef) []RecursiveBehavior {
	return CheckCalls(group, CollectCalls(group))
}

// CheckCalls closes edges under composition. Edges are processed in FIFO
// order, so shorter paths are found before longer ones with the same
// matrix.
func CheckCalls(group []*term.FunctionDef, edges []*CallMatrix) []RecursiveBehavior {
	seen := set.New[edgeKey](len(edges))
	var queue []*CallMatrix
	add := func(e *CallMatrix) {
		k := edgeKey{from: e.Domain, to: e.Codomain, matrix: e.Matrix.Key()}
		if seen.Contains(k) {
			return
		}
		seen.Insert(k)
		queue = append(queue, e)
	}
	for _, e := range edges {
		add(e)
	}

	from := make(map[*term.FunctionDef][]*CallMatrix)
	to := make(map[*term.FunctionDef][]*CallMatrix)
	witness := make(map[*term.FunctionDef]*CallMatrix)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e.Domain == e.Codomain && witness[e.Domain] == nil &&
			e.Matrix.Idempotent() && !e.Matrix.HasDecreasingDiagonal() {
			witness[e.Domain] = e
		}
		from[e.Domain] = append(from[e.Domain], e)
		to[e.Codomain] = append(to[e.Codomain], e)
		for _, next := range from[e.Codomain] {
			add(e.Then(next))
		}
		for _, prev := range to[e.Domain] {
			add(prev.Then(e))
		}
	}

	var out []RecursiveBehavior
	for _, d := range group {
		if w := witness[d]; w != nil {
			out = append(out, RecursiveBehavior{Definition: d, Path: w})
		}
	}
	return out
}

// Apply marks failing definitions as non-terminating and reports them.
// Other members of the group are left alone.
func Apply(behaviors []RecursiveBehavior, reporter *diagnostics.Reporter, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	byDef := make(map[*term.FunctionDef][]RecursiveBehavior)
	var order []*term.FunctionDef
	for _, b := range behaviors {
		if _, ok := byDef[b.Definition]; !ok {
			order = append(order, b.Definition)
		}
		byDef[b.Definition] = append(byDef[b.Definition], b)
	}
	for _, d := range order {
		d.SetStatus(term.StatusNonTerminating)
		logger.Debug("termination check failed", "section", "termination", "definition", d.Name(), "witness", byDef[d][0].String())
		if reporter != nil {
			reporter.Report(Diagnostic(d, byDef[d]))
		}
	}
}
