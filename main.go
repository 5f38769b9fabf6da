package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kent2980/aoi-data-manager/cmd"
	"github.com/kent2980/aoi-data-manager/internal/buildinfo"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

// Set at build time with -ldflags.
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(buildinfo.New(version, buildDate))
	err := cmd.RootCommand(rt).ExecuteContext(ctx)
	if cerr := rt.Close(); cerr != nil && err == nil {
		err = cerr
		fmt.Fprintln(os.Stderr, "Error:", cerr)
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}
