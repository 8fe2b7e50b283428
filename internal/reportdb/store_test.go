package reportdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/funvibe/funcore/internal/config"
	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/pipeline"
	"github.com/funvibe/funcore/internal/term"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := Run{ID: "r1", Started: base, Duration: time.Second, Definitions: 3, Inputs: []string{"a.yaml"}}
	second := Run{ID: "r2", Started: base.Add(time.Minute), Definitions: 4, Errors: 1, Inputs: []string{"lib", "b.yaml"}}
	diags := []*diagnostics.DiagnosticError{
		diagnostics.NewError(diagnostics.ErrC001, term.Position{File: "b.yaml", Line: 3, Column: 5}, "unknown name x"),
		diagnostics.NewError(diagnostics.ErrT005, term.Position{}, "goal").In("f"),
	}
	if err := s.RecordRun(ctx, first, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordRun(ctx, second, diags); err != nil {
		t.Fatalf("record: %v", err)
	}

	runs, err := s.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "r2" || runs[1].ID != "r1" {
		t.Fatalf("runs = %+v, want r2 then r1", runs)
	}
	if got := runs[0]; got.Errors != 1 || got.Definitions != 4 || len(got.Inputs) != 2 || got.Inputs[0] != "lib" {
		t.Errorf("r2 = %+v", got)
	}
	if !runs[1].Started.Equal(base) || runs[1].Duration != time.Second {
		t.Errorf("r1 timing = %v %v", runs[1].Started, runs[1].Duration)
	}

	limited, err := s.Runs(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("limited = %v, %v", limited, err)
	}

	recs, err := s.Diagnostics(ctx, "r2")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %v", recs)
	}
	if recs[0].Code != "C001" || recs[0].Line != 3 || recs[0].File != "b.yaml" {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Level != "goal" || recs[1].Definition != "f" {
		t.Errorf("second record = %+v", recs[1])
	}
	if want := "b.yaml:3:5: error C001: unknown name x"; recs[0].String() != want {
		t.Errorf("String() = %q, want %q", recs[0].String(), want)
	}
}

func TestRecordRunTwiceFails(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	run := Run{ID: "same", Started: time.Now()}
	if err := s.RecordRun(ctx, run, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRun(ctx, run, nil); err == nil {
		t.Error("expected a duplicate id error")
	}
}

func TestProcessorRecordsRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dir = dir
	cfg.ReportDB = config.ReportDBName

	pctx := pipeline.NewPipelineContext(context.Background(), cfg)
	pctx.Files = []string{"main.yaml"}
	pctx.Reporter.Report(diagnostics.NewError(diagnostics.ErrC001, term.Position{File: "main.yaml", Line: 1}, "broken"))
	pctx = (&Processor{}).Process(pctx)
	if len(pctx.Errors) != 0 {
		t.Fatalf("errors = %v", pctx.Errors)
	}

	s, err := Open(context.Background(), cfg.ReportPath())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	runs, err := s.Runs(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != pctx.RunID || runs[0].Errors != 1 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestProcessorDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.ReportDB = ""
	pctx := (&Processor{}).Process(pipeline.NewPipelineContext(context.Background(), cfg))
	if len(pctx.Errors) != 0 {
		t.Errorf("errors = %v", pctx.Errors)
	}
}
