package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/funcore/internal/check"
	"github.com/funvibe/funcore/internal/config"
	"github.com/funvibe/funcore/internal/corefile"
	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/library"
	"github.com/funvibe/funcore/internal/order"
	"github.com/funvibe/funcore/internal/pipeline"
	"github.com/funvibe/funcore/internal/reportdb"
)

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

// flags are shared by check, watch and serve. Zero values leave the
// configuration alone.
type flags struct {
	config   string
	libs     stringList
	workers  int
	logLevel string
	color    string
	record   bool
	addr     string
}

func (f *flags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "path to funcore.yaml (default: search upwards)")
	fs.Var(&f.libs, "lib", "library directory; may be repeated")
	fs.IntVar(&f.workers, "workers", 0, "definition groups checked at once")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.color, "color", "", "auto, always or never")
	fs.BoolVar(&f.record, "record", false, "record the run in "+config.ReportDBName)
	fs.StringVar(&f.addr, "addr", "", "listen address of serve")
}

func printFlags(w io.Writer) {
	fs := flag.NewFlagSet("funcore", flag.ContinueOnError)
	fs.SetOutput(w)
	(&flags{}).register(fs)
	fs.PrintDefaults()
}

// options is a resolved command line.
type options struct {
	flags     flags
	args      []string
	cfg       *config.Config
	logger    *slog.Logger
	color     bool
	libraries []string
	paths     []string
	files     []string
}

func parseOptions(name string, args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts.flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.args = fs.Args()
	if err := opts.resolve(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	return opts, nil
}

// reload resolves the same command line again, picking up changes to the
// configuration and to the set of core files.
func (o *options) reload() (*options, error) {
	fresh := &options{flags: o.flags, args: o.args}
	return fresh, fresh.resolve()
}

func (o *options) resolve() error {
	cfg, err := loadConfig(o.flags.config)
	if err != nil {
		return err
	}
	if o.flags.workers > 0 {
		cfg.Workers = o.flags.workers
	}
	if o.flags.logLevel != "" {
		cfg.LogLevel = o.flags.logLevel
	}
	if o.flags.color != "" {
		cfg.Color = o.flags.color
	}
	if o.flags.record && cfg.ReportDB == "" {
		cfg.ReportDB = config.ReportDBName
	}
	if o.flags.addr != "" {
		cfg.ServeAddr = o.flags.addr
	}
	o.cfg = cfg
	o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	o.color = useColor(cfg.Color, os.Stdout)

	o.paths = o.args
	if len(o.paths) == 0 {
		o.paths = []string{"."}
	}
	libs := append(cfg.LibraryDirs(), o.flags.libs...)
	o.libraries, o.files, err = collectInputs(libs, o.paths)
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		found, err := config.FindConfig(wd)
		if err != nil {
			return nil, err
		}
		if found == "" {
			return config.Default(), nil
		}
		path = found
	}
	return config.LoadConfig(path)
}

func useColor(mode string, f *os.File) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func isLibrary(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, config.LibraryFileName))
	return err == nil
}

// collectInputs sorts paths into library directories and loose core files.
// A directory holding library.yaml is a library; other directories are
// searched for core files and nested libraries.
func collectInputs(libs, paths []string) ([]string, []string, error) {
	seen := make(map[string]bool)
	var libraries, files []string
	addLib := func(dir string) {
		key := filepath.Clean(dir)
		if !seen[key] {
			seen[key] = true
			libraries = append(libraries, dir)
		}
	}
	for _, l := range libs {
		addLib(l)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				switch {
				case seen[filepath.Clean(path)]:
					return filepath.SkipDir
				case path != p && strings.HasPrefix(name, "."):
					return filepath.SkipDir
				case isLibrary(path):
					addLib(path)
					return filepath.SkipDir
				}
				return nil
			}
			if config.IsCoreFile(name) && name != config.ConfigFileName && name != "funcore.yml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("collecting core files in %s: %w", p, err)
		}
	}
	if len(libraries) == 0 && len(files) == 0 {
		return nil, nil, errors.New("no core files or libraries found")
	}
	return libraries, files, nil
}

func newPipeline() *pipeline.Pipeline {
	return pipeline.New(
		&library.Processor{},
		&corefile.Processor{},
		&order.Processor{},
		&check.Processor{},
		&reportdb.Processor{},
	)
}

func runCheck(ctx context.Context, opts *options) *pipeline.PipelineContext {
	pctx := pipeline.NewPipelineContext(ctx, opts.cfg)
	pctx.Logger = opts.logger
	pctx.Libraries = opts.libraries
	pctx.Files = opts.files
	return newPipeline().Run(pctx)
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiDim    = "\033[2m"
)

func paint(on bool, code, s string) string {
	if !on {
		return s
	}
	return code + s + ansiReset
}

func levelColor(l diagnostics.Level) string {
	switch l {
	case diagnostics.LevelWarning:
		return ansiYellow
	case diagnostics.LevelGoal:
		return ansiCyan
	}
	return ansiRed
}

// printDiagnostic writes d and the details its payload carries.
func printDiagnostic(w io.Writer, d *diagnostics.DiagnosticError, color bool) {
	fmt.Fprintln(w, paint(color, levelColor(d.Level), d.Error()))
	switch p := d.Payload.(type) {
	case *diagnostics.TypeMismatch:
		fmt.Fprintf(w, "  expected: %v\n  actual:   %v\n", p.Expected, p.Actual)
	case *diagnostics.InstanceFailure:
		for _, e := range p.Trail {
			if e.Instance == nil {
				continue
			}
			fmt.Fprintln(w, paint(color, ansiDim, fmt.Sprintf("  via %s for %v", e.Instance.Name(), e.Classifying)))
		}
		if len(p.Candidates) > 0 {
			fmt.Fprintf(w, "  candidates: %s\n", strings.Join(p.Candidates, ", "))
		}
	case *diagnostics.Goal:
		for _, c := range p.Context {
			fmt.Fprintf(w, "  %s : %v\n", c.Name, c.Type)
		}
		if p.Expected != nil {
			fmt.Fprintf(w, "  ---------\n  %v\n", p.Expected)
		}
		for _, e := range p.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
}

func printResult(w io.Writer, ctx *pipeline.PipelineContext, color bool) {
	for _, d := range ctx.Reporter.Diagnostics() {
		printDiagnostic(w, d, color)
	}
	for _, err := range ctx.Errors {
		fmt.Fprintln(w, paint(color, ansiRed, "funcore: "+err.Error()))
	}
	defs := 0
	if ctx.Table != nil {
		defs = len(ctx.Table.Definitions())
	}
	r := ctx.Reporter
	fmt.Fprintf(w, "%d definitions, %d errors, %d warnings, %d goals (run %s)\n",
		defs, r.Count(diagnostics.LevelError), r.Count(diagnostics.LevelWarning), r.Count(diagnostics.LevelGoal), ctx.RunID)
}
