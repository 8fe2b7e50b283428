// Package library loads libraries of core files. A library is a directory
// with a library.yaml header naming its modules, the libraries it depends
// on and the range of language versions it supports.
package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/funcore/internal/config"
)

// Header represents library.yaml.
type Header struct {
	// Name identifies the library in dependency lists.
	Name string `yaml:"name"`

	// LangVersion is a semver constraint on the language version,
	// e.g. ">= 1.2, < 2". Empty accepts every version.
	LangVersion string `yaml:"lang_version,omitempty"`

	// SourcesDir holds the module files, relative to the library directory.
	// Defaults to the library directory itself.
	SourcesDir string `yaml:"sources_dir,omitempty"`

	// Modules lists module names; A.B is read from A/B.yaml. When empty,
	// every core file under SourcesDir is a module.
	Modules []string `yaml:"modules,omitempty"`

	// Dependencies names the libraries this one refers to.
	Dependencies []string `yaml:"dependencies,omitempty"`

	// Dir is the library directory. Not read from YAML.
	Dir string `yaml:"-"`

	constraint *semver.Constraints
}

// LoadHeader reads dir/library.yaml.
func LoadHeader(dir string) (*Header, error) {
	path := filepath.Join(dir, config.LibraryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading library header %s: %w", path, err)
	}
	return ParseHeader(data, path)
}

// ParseHeader parses library.yaml content. The path argument is used for
// error messages and to locate the library directory.
func ParseHeader(data []byte, path string) (*Header, error) {
	var h Header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := h.validate(path); err != nil {
		return nil, err
	}
	h.Dir = filepath.Dir(path)
	if h.SourcesDir == "" {
		h.SourcesDir = "."
	}
	return &h, nil
}

func (h *Header) validate(path string) error {
	if h.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}
	if h.LangVersion != "" {
		c, err := semver.NewConstraint(h.LangVersion)
		if err != nil {
			return fmt.Errorf("%s: lang_version %q: %w", path, h.LangVersion, err)
		}
		h.constraint = c
	}
	if filepath.IsAbs(h.SourcesDir) {
		return fmt.Errorf("%s: sources_dir must be relative", path)
	}
	seen := make(map[string]bool)
	for i, dep := range h.Dependencies {
		switch {
		case dep == "":
			return fmt.Errorf("%s: dependencies[%d]: name is required", path, i)
		case dep == h.Name:
			return fmt.Errorf("%s: library %s depends on itself", path, h.Name)
		case seen[dep]:
			return fmt.Errorf("%s: dependency %s is listed twice", path, dep)
		}
		seen[dep] = true
	}
	return nil
}

// Supports reports whether the library accepts language version v.
func (h *Header) Supports(v *semver.Version) bool {
	return h.constraint == nil || h.constraint.Check(v)
}

// ModuleFiles returns the files of the library's modules.
func (h *Header) ModuleFiles() ([]string, error) {
	root := filepath.Join(h.Dir, h.SourcesDir)
	if len(h.Modules) > 0 {
		files := make([]string, len(h.Modules))
		for i, m := range h.Modules {
			files[i] = filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(m, ".", "/"))+config.CoreFileExt)
		}
		return files, nil
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !config.IsCoreFile(d.Name()) || d.Name() == config.LibraryFileName {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing modules of %s: %w", h.Name, err)
	}
	sort.Strings(files)
	return files, nil
}
