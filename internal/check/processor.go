package check

import (
	"github.com/funvibe/funcore/internal/pipeline"
)

// Processor checks the waves of a run and publishes the results to Table,
// which is created when nil.
type Processor struct {
	Table *Table
}

func (p *Processor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if p.Table == nil {
		p.Table = NewTable()
	}
	ctx.Table = p.Table
	sc := &Scheduler{
		Table:            p.Table,
		Reporter:         ctx.Reporter,
		Workers:          ctx.Config.Workers,
		MaxInstanceDepth: ctx.Config.MaxInstanceDepth,
		Logger:           ctx.Logger,
	}
	if err := sc.Run(ctx.Context, ctx.Waves); err != nil {
		ctx.Errors = append(ctx.Errors, err)
	}
	return ctx
}
