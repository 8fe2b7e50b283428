package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

// Scheduler checks groups of definitions wave by wave. The groups of one
// wave do not depend on each other and run in parallel, each in a session
// of its own; a wave starts when the previous one is published.
type Scheduler struct {
	Table            *Table
	Reporter         *diagnostics.Reporter
	Workers          int
	MaxInstanceDepth int
	Logger           *slog.Logger
}

func (sc *Scheduler) logger() *slog.Logger {
	if sc.Logger == nil {
		return slog.Default()
	}
	return sc.Logger
}

// Run checks every wave. It stops early only when ctx is cancelled; checking
// errors go to the reporter.
func (sc *Scheduler) Run(ctx context.Context, waves [][][]*term.Unit) error {
	logger := sc.logger().With("section", "scheduler")
	for i, wave := range waves {
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		if sc.Workers > 0 {
			g.SetLimit(sc.Workers)
		}
		for _, group := range wave {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return sc.checkGroup(group)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("wave %d: %w", i, err)
		}
		logger.Debug("wave checked", "wave", i, "groups", len(wave), "elapsed", time.Since(start))
	}
	return nil
}

func (sc *Scheduler) checkGroup(group []*term.Unit) error {
	if len(group) == 0 {
		return nil
	}
	// Keyed by identity: definitions read by different readers may share
	// a name and must each be checked.
	key := fmt.Sprintf("%p", group[0].Def)
	return sc.Table.CheckOnce(key, func() error {
		if sc.Table.Published(group[0].Def) {
			return nil
		}
		s := NewSession(Options{
			MaxInstanceDepth: sc.MaxInstanceDepth,
			Provider:         sc.Table,
			Reporter:         sc.Reporter,
			Logger:           sc.Logger,
		})
		s.CheckGroup(group)
		defs := make([]term.Definition, len(group))
		for i, u := range group {
			defs[i] = u.Def
		}
		err := sc.Table.Publish(defs...)
		var dup *DuplicateError
		if errors.As(err, &dup) {
			for i, d := range dup.Defs {
				sc.Reporter.Report(diagnostics.NewError(diagnostics.ErrT006, d.Pos(),
					fmt.Sprintf("%s is already defined at %s", d.Name(), dup.Existing[i].Pos())).In(d.Name()))
			}
			return nil
		}
		return err
	})
}
