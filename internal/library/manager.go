package library

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/funvibe/funcore/internal/corefile"
	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

// Library is a library after loading. A library that failed to load keeps
// Loaded false and contributes no definitions.
type Library struct {
	Header *Header
	Units  []*term.Unit
	Loaded bool

	defs map[string]term.Definition
}

// Lookup finds a definition of the library by name.
func (l *Library) Lookup(name string) (term.Definition, bool) {
	d, ok := l.defs[name]
	return d, ok
}

// CycleError is returned when libraries depend on each other.
type CycleError struct {
	Stack []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Stack, " -> ")
}

// Manager loads libraries by name. Each library is loaded at most once;
// a failure is confined to the failing library and its dependents.
type Manager struct {
	version  *semver.Version
	reporter *diagnostics.Reporter
	logger   *slog.Logger

	headers map[string]*Header
	libs    map[string]*Library
	order   []*Library
	loading []string
}

func NewManager(version *semver.Version, reporter *diagnostics.Reporter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		version:  version,
		reporter: reporter,
		logger:   logger.With("section", "library"),
		headers:  make(map[string]*Header),
		libs:     make(map[string]*Library),
	}
}

// Register reads the header in dir and makes the library loadable by name.
func (m *Manager) Register(dir string) (*Header, error) {
	h, err := LoadHeader(dir)
	if err != nil {
		return nil, err
	}
	if prev, ok := m.headers[h.Name]; ok {
		return nil, fmt.Errorf("library %s is registered twice: %s and %s", h.Name, prev.Dir, h.Dir)
	}
	m.headers[h.Name] = h
	return h, nil
}

func (m *Manager) fail(lib *Library, pos term.Position, code diagnostics.ErrorCode, args ...any) *Library {
	m.reporter.Report(diagnostics.NewError(code, pos, args...))
	m.logger.Warn("library not loaded", "library", lib.Header.Name, "code", code)
	lib.Loaded = false
	lib.Units = nil
	lib.defs = nil
	return lib
}

// Load loads a registered library and its dependencies. The returned
// library is nil only when name is unknown.
func (m *Manager) Load(name string) *Library {
	if lib, ok := m.libs[name]; ok {
		return lib
	}
	h, ok := m.headers[name]
	if !ok {
		m.reporter.Report(diagnostics.NewError(diagnostics.ErrL001, term.Position{}, name, "library not found"))
		return nil
	}
	pos := term.Position{File: h.Dir}
	lib := &Library{Header: h}
	for i, n := range m.loading {
		if n == name {
			err := &CycleError{Stack: append(append([]string(nil), m.loading[i:]...), name)}
			return m.fail(lib, pos, diagnostics.ErrL001, name, err.Error())
		}
	}
	if !h.Supports(m.version) {
		m.libs[name] = lib
		return m.fail(lib, pos, diagnostics.ErrL002, name, h.LangVersion, m.version)
	}

	m.loading = append(m.loading, name)
	deps := make([]*Library, 0, len(h.Dependencies))
	var failedDep string
	for _, dep := range h.Dependencies {
		d := m.Load(dep)
		if d == nil || !d.Loaded {
			failedDep = dep
			break
		}
		deps = append(deps, d)
	}
	m.loading = m.loading[:len(m.loading)-1]
	m.libs[name] = lib
	if failedDep != "" {
		return m.fail(lib, pos, diagnostics.ErrL001, name, "dependency "+failedDep+" is not loaded")
	}

	files, err := h.ModuleFiles()
	if err != nil {
		return m.fail(lib, pos, diagnostics.ErrL001, name, err.Error())
	}
	r := corefile.NewReader(scope(m.closure(deps)))
	var missing []string
	for _, f := range files {
		if err := r.ReadFile(f); err != nil {
			missing = append(missing, err.Error())
		}
	}
	if len(missing) > 0 {
		return m.fail(lib, pos, diagnostics.ErrL001, name, strings.Join(missing, "; "))
	}
	units, errs := r.Units()
	if len(errs) > 0 {
		for _, e := range errs {
			m.reporter.Report(e)
		}
		return m.fail(lib, pos, diagnostics.ErrL001, name, fmt.Sprintf("%d errors in module files", len(errs)))
	}

	lib.Units = units
	lib.defs = r.Definitions()
	lib.Loaded = true
	m.order = append(m.order, lib)
	m.logger.Debug("library loaded", "library", name, "modules", len(files), "definitions", len(units))
	return lib
}

// LoadAll loads every registered library in name order.
func (m *Manager) LoadAll() {
	names := make([]string, 0, len(m.headers))
	for n := range m.headers {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		m.Load(n)
	}
}

// Loaded returns the loaded libraries, every library after its
// dependencies.
func (m *Manager) Loaded() []*Library {
	return append([]*Library(nil), m.order...)
}

// Units returns the units of all loaded libraries.
func (m *Manager) Units() []*term.Unit {
	var out []*term.Unit
	for _, lib := range m.order {
		out = append(out, lib.Units...)
	}
	return out
}

// closure is deps together with everything they depend on.
func (m *Manager) closure(deps []*Library) []*Library {
	seen := make(map[*Library]bool)
	var out []*Library
	var visit func(*Library)
	visit = func(l *Library) {
		if seen[l] {
			return
		}
		seen[l] = true
		out = append(out, l)
		for _, d := range l.Header.Dependencies {
			if dl := m.libs[d]; dl != nil && dl.Loaded {
				visit(dl)
			}
		}
	}
	for _, d := range deps {
		visit(d)
	}
	return out
}

// scope resolves names against a list of libraries, earlier ones first.
type scope []*Library

func (s scope) Lookup(name string) (term.Definition, bool) {
	for _, l := range s {
		if d, ok := l.Lookup(name); ok {
			return d, true
		}
	}
	return nil, false
}

// Scope resolves names against every loaded library.
func (m *Manager) Scope() corefile.Scope {
	return scope(m.Loaded())
}
