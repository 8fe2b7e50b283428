package corefile

import (
	"github.com/funvibe/funcore/internal/pipeline"
)

// Processor reads the loose core files of a run. They may refer to the
// definitions of the libraries loaded before.
type Processor struct{}

func (p *Processor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if len(ctx.Files) == 0 {
		return ctx
	}
	var ext Scope
	if ctx.Scope != nil {
		ext = ctx.Scope
	}
	units, errs := ReadFiles(ext, ctx.Files...)
	for _, e := range errs {
		ctx.Reporter.Report(e)
	}
	ctx.Units = append(ctx.Units, units...)
	return ctx
}
