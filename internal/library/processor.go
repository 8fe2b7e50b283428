package library

import (
	"github.com/funvibe/funcore/internal/pipeline"
)

// Processor loads the libraries of a run and collects their units.
type Processor struct{}

func (p *Processor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if len(ctx.Libraries) == 0 {
		return ctx
	}
	m := NewManager(ctx.Config.Version(), ctx.Reporter, ctx.Logger)
	for _, dir := range ctx.Libraries {
		if _, err := m.Register(dir); err != nil {
			ctx.Errors = append(ctx.Errors, err)
		}
	}
	m.LoadAll()
	for _, lib := range m.Loaded() {
		ctx.Loaded = append(ctx.Loaded, lib.Header.Name)
	}
	ctx.Units = append(ctx.Units, m.Units()...)
	ctx.Scope = m.Scope()
	return ctx
}
