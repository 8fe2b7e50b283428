package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/funvibe/funcore/internal/config"
	"github.com/funvibe/funcore/internal/reportdb"
	"github.com/funvibe/funcore/internal/watch"
)

const usage = `funcore checks core files and libraries.

Usage:
  funcore check [flags] [path...]   check once; exit status 1 on errors
  funcore watch [flags] [path...]   check again whenever a core file changes
  funcore serve [flags] [path...]   check, then serve the inspection API
  funcore runs  [flags] [run-id]    list recorded runs, or one run's diagnostics
  funcore help                      show this text

A path is a core file, a directory of core files, or a library directory
(one holding library.yaml). With no paths the current directory is used.

Flags:
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		printFlags(os.Stderr)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "check":
		os.Exit(handleCheck(args))
	case "watch":
		os.Exit(handleWatch(args))
	case "serve":
		os.Exit(handleServe(args))
	case "runs":
		os.Exit(handleRuns(args))
	case "help", "-help", "--help", "-h":
		fmt.Print(usage)
		printFlags(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "funcore: unknown command %q (see funcore help)\n", cmd)
		os.Exit(2)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func handleCheck(args []string) int {
	opts, err := parseOptions("check", args)
	if err != nil {
		return 2
	}
	ctx, stop := signalContext()
	defer stop()
	res := runCheck(ctx, opts)
	printResult(os.Stdout, res, opts.color)
	if res.Failed() {
		return 1
	}
	return 0
}

func handleWatch(args []string) int {
	opts, err := parseOptions("watch", args)
	if err != nil {
		return 2
	}
	ctx, stop := signalContext()
	defer stop()

	roots := append(append([]string(nil), opts.libraries...), opts.paths...)
	w := &watch.Watcher{
		Roots:  roots,
		Logger: opts.logger,
		Run: func(ctx context.Context) {
			// Inputs are collected again so new files are picked up.
			fresh, err := opts.reload()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return
			}
			printResult(os.Stdout, runCheck(ctx, fresh), fresh.color)
		},
	}
	if err := w.Watch(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func handleRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to funcore.yaml (default: search upwards)")
	limit := fs.Int("n", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg.ReportDB == "" {
		cfg.ReportDB = config.ReportDBName
	}

	ctx := context.Background()
	store, err := reportdb.Open(ctx, cfg.ReportPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer store.Close()

	if fs.NArg() > 0 {
		recs, err := store.Diagnostics(ctx, fs.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, r := range recs {
			fmt.Println(r)
		}
		return 0
	}

	runs, err := store.Runs(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tDEFS\tERRORS\tWARNINGS\tGOALS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", r.ID, r.Started.Format(time.DateTime),
			r.Duration.Round(time.Millisecond), r.Definitions, r.Errors, r.Warnings, r.Goals)
	}
	tw.Flush()
	return 0
}
