package order

import (
	"github.com/funvibe/funcore/internal/pipeline"
)

// Processor groups the units of a run into waves of independent groups.
type Processor struct{}

func (p *Processor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	ctx.Waves = Units(ctx.Units)
	return ctx
}
