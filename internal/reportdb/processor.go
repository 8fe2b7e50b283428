package reportdb

import (
	"time"

	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/pipeline"
)

// Processor records the run in the report database named by the
// configuration. It does nothing when recording is disabled.
type Processor struct{}

func (p *Processor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	path := ctx.Config.ReportPath()
	if path == "" {
		return ctx
	}
	store, err := Open(ctx.Context, path)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	defer store.Close()

	r := ctx.Reporter
	run := Run{
		ID:       ctx.RunID,
		Started:  ctx.Started,
		Duration: time.Since(ctx.Started),
		Errors:   r.Count(diagnostics.LevelError),
		Warnings: r.Count(diagnostics.LevelWarning),
		Goals:    r.Count(diagnostics.LevelGoal),
		Inputs:   append(append([]string(nil), ctx.Libraries...), ctx.Files...),
	}
	if ctx.Table != nil {
		run.Definitions = len(ctx.Table.Definitions())
	}
	if err := store.RecordRun(ctx.Context, run, r.Diagnostics()); err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Logger.Debug("run recorded", "section", "reportdb", "run", run.ID, "path", path)
	return ctx
}
