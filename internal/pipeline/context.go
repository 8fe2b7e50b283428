package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/funvibe/funcore/internal/config"
	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

// Processor is one stage of a checking run.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// Scope resolves names of definitions read by earlier stages.
type Scope interface {
	Lookup(name string) (term.Definition, bool)
}

// DefinitionTable is where checked definitions are published.
type DefinitionTable interface {
	Scope
	Definitions() []term.Definition
	Instances(class *term.ClassDef) []*term.FunctionDef
}

// PipelineContext carries the state of one checking run between stages.
type PipelineContext struct {
	Context context.Context
	RunID   string
	Started time.Time
	Config  *config.Config
	Logger  *slog.Logger

	// Inputs
	Libraries []string // library directories
	Files     []string // loose core files

	Scope  Scope        // definitions of loaded libraries
	Units  []*term.Unit // everything to check, in reading order
	Waves  [][][]*term.Unit
	Table  DefinitionTable
	Loaded []string // names of loaded libraries

	Reporter *diagnostics.Reporter
	// Errors are failures of the run itself, not of the checked code.
	Errors []error
}

func NewPipelineContext(ctx context.Context, cfg *config.Config) *PipelineContext {
	if cfg == nil {
		cfg = config.Default()
	}
	return &PipelineContext{
		Context:  ctx,
		RunID:    uuid.NewString(),
		Started:  time.Now(),
		Config:   cfg,
		Logger:   slog.Default(),
		Reporter: diagnostics.NewReporter(),
	}
}

// Failed reports whether the run or the checked code has errors.
func (c *PipelineContext) Failed() bool {
	return len(c.Errors) > 0 || c.Reporter.HasErrors()
}
