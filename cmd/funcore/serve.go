package main

import (
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"github.com/funvibe/funcore/internal/inspect"
)

// handleServe checks once and serves the resulting definitions until
// interrupted. The table is not refreshed; restart to pick up changes.
func handleServe(args []string) int {
	opts, err := parseOptions("serve", args)
	if err != nil {
		return 2
	}
	ctx, stop := signalContext()
	defer stop()

	res := runCheck(ctx, opts)
	printResult(os.Stdout, res, opts.color)
	if res.Table == nil {
		return 1
	}

	srv, err := inspect.NewServer(res.Table, opts.logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	lis, err := net.Listen("tcp", opts.cfg.ServeAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listening on %s: %v\n", opts.cfg.ServeAddr, err)
		return 1
	}
	g := grpc.NewServer()
	srv.Register(g)

	go func() {
		<-ctx.Done()
		g.GracefulStop()
	}()
	opts.logger.Info("serving", "section", "inspect", "addr", lis.Addr().String(), "service", inspect.ServiceName)
	if err := g.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
