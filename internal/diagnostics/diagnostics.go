package diagnostics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/funvibe/funcore/internal/term"
)

type ErrorCode string

const (
	// Typechecking
	ErrT001 ErrorCode = "T001" // type mismatch
	ErrT002 ErrorCode = "T002" // pattern unification
	ErrT003 ErrorCode = "T003" // instance inference
	ErrT004 ErrorCode = "T004" // termination
	ErrT005 ErrorCode = "T005" // goal
	ErrT006 ErrorCode = "T006" // other typechecking errors

	// Warnings
	WarnW001 ErrorCode = "W001" // ambiguous instance

	// Libraries
	ErrL001 ErrorCode = "L001" // library load failure
	ErrL002 ErrorCode = "L002" // unsupported language version

	// Core files
	ErrC001 ErrorCode = "C001"
)

var messages = map[ErrorCode]string{
	ErrT001:  "type mismatch: expected %s, got %s",
	ErrT002:  "%s",
	ErrT003:  "cannot infer an instance of class %s: %s",
	ErrT004:  "termination check failed for %s",
	ErrT005:  "goal %s",
	ErrT006:  "%s",
	WarnW001: "ambiguous instance of class %s: %s is used, %s also matches",
	ErrL001:  "cannot load library %s: %s",
	ErrL002:  "library %s requires language version %s, running %s",
	ErrC001:  "%s",
}

// Level is the severity of a diagnostic.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelGoal
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelGoal:
		return "goal"
	}
	return "error"
}

func levelOf(code ErrorCode) Level {
	switch {
	case code == ErrT005:
		return LevelGoal
	case strings.HasPrefix(string(code), "W"):
		return LevelWarning
	}
	return LevelError
}

// DiagnosticError is a structured diagnostic. Payload carries the data a
// renderer needs (expressions, trails, call sequences); Message is a plain
// fallback rendering.
type DiagnosticError struct {
	Code       ErrorCode
	Level      Level
	Pos        term.Position
	Definition string
	Message    string
	Payload    any
}

// NewError formats the message registered for code with args.
func NewError(code ErrorCode, pos term.Position, args ...any) *DiagnosticError {
	format, ok := messages[code]
	if !ok {
		format = "%v"
	}
	return &DiagnosticError{
		Code:    code,
		Level:   levelOf(code),
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithPayload attaches structured data and returns e.
func (e *DiagnosticError) WithPayload(p any) *DiagnosticError {
	e.Payload = p
	return e
}

// In records the definition the diagnostic belongs to and returns e.
func (e *DiagnosticError) In(def string) *DiagnosticError {
	e.Definition = def
	return e
}

func (e *DiagnosticError) Error() string {
	var sb strings.Builder
	if e.Pos.File != "" || e.Pos.Line > 0 {
		sb.WriteString(e.Pos.String())
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "%s %s: %s", e.Level, e.Code, e.Message)
	if e.Definition != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Definition)
	}
	return sb.String()
}

// Unwrap exposes an error payload to errors.As.
func (e *DiagnosticError) Unwrap() error {
	if err, ok := e.Payload.(error); ok {
		return err
	}
	return nil
}

func (e *DiagnosticError) key() string {
	return fmt.Sprintf("%s:%d:%d:%s:%s:%s", e.Pos.File, e.Pos.Line, e.Pos.Column, e.Code, e.Definition, e.Message)
}

// TypeMismatch is the payload of ErrT001.
type TypeMismatch struct {
	Expected term.Expr
	Actual   term.Expr
	Term     term.Expr
}

// InstanceFailure is the payload of ErrT003 and WarnW001. Cause is the
// resolver's own error, reachable through errors.As.
type InstanceFailure struct {
	Class       string
	Classifying term.Expr
	Reason      string
	Trail       []term.TrailEntry
	Candidates  []string
	Cause       error
}

func (f *InstanceFailure) Error() string {
	if f.Cause != nil {
		return f.Cause.Error()
	}
	return f.Reason
}

func (f *InstanceFailure) Unwrap() error { return f.Cause }

// ContextEntry is one variable of a goal's local context.
type ContextEntry struct {
	Name string
	Type term.Expr
}

// Goal is the payload of ErrT005.
type Goal struct {
	Name     string
	Expected term.Expr
	Context  []ContextEntry
	Errors   []*DiagnosticError
}

// Reporter collects diagnostics. Identical diagnostics are kept once; the
// output is sorted by position.
type Reporter struct {
	mu    sync.Mutex
	set   map[string]*DiagnosticError
	order []string
}

func NewReporter() *Reporter {
	return &Reporter{set: make(map[string]*DiagnosticError)}
}

func (r *Reporter) Report(err *DiagnosticError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := err.key()
	if _, ok := r.set[k]; !ok {
		r.order = append(r.order, k)
	}
	r.set[k] = err
}

// Merge adds every diagnostic of other.
func (r *Reporter) Merge(other *Reporter) {
	for _, err := range other.Diagnostics() {
		r.Report(err)
	}
}

// Diagnostics returns all diagnostics sorted by file, line and column, in
// report order otherwise.
func (r *Reporter) Diagnostics() []*DiagnosticError {
	r.mu.Lock()
	result := make([]*DiagnosticError, 0, len(r.order))
	for _, k := range r.order {
		result = append(result, r.set[k])
	}
	r.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].Pos, result[j].Pos
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return result
}

// Count returns the number of diagnostics of the given level.
func (r *Reporter) Count(level Level) int {
	n := 0
	for _, d := range r.Diagnostics() {
		if d.Level == level {
			n++
		}
	}
	return n
}

func (r *Reporter) HasErrors() bool { return r.Count(LevelError) > 0 }

// ByCode returns the diagnostics with the given code.
func (r *Reporter) ByCode(code ErrorCode) []*DiagnosticError {
	var out []*DiagnosticError
	for _, d := range r.Diagnostics() {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}
