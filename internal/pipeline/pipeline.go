package pipeline

import (
	"fmt"
	"time"
)

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline. A stage that reports errors does not stop the
// run: a failed library or definition must not hide the diagnostics of the
// others. Cancellation of ctx.Context does.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		if ctx.Context != nil && ctx.Context.Err() != nil {
			ctx.Errors = append(ctx.Errors, ctx.Context.Err())
			break
		}
		start := time.Now()
		ctx = processor.Process(ctx)
		if ctx.Logger != nil {
			ctx.Logger.Debug("stage done", "section", "pipeline", "run", ctx.RunID,
				"stage", fmt.Sprintf("%T", processor), "took", time.Since(start),
				"diagnostics", len(ctx.Reporter.Diagnostics()))
		}
	}
	return ctx
}
