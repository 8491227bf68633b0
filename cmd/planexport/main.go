package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"planexport/internal/app"
	"planexport/internal/task/engine"
	logx "planexport/pkg/logx"
)

func main() {
	var (
		cfgPath  string
		req      app.Request
		daemon   bool
		progress string
	)
	flag.StringVar(&cfgPath, "config", "./planexport.yaml", "path to config (json, yaml or toml)")
	flag.StringVar(&req.Project, "project", "", "project file to export (json or yaml)")
	flag.StringVar(&req.Format, "format", "", "export format; defaults to the output extension")
	flag.StringVar(&req.Output, "o", "", "output file")
	flag.StringVar(&req.Range, "range", "", `export range "START END" (ISO-8601 dates)`)
	flag.BoolVar(&req.ExpandResources, "expand-resources", false, "write per-resource details")
	flag.StringVar(&progress, "progress", "", "progress display: tui, log or none")
	flag.BoolVar(&daemon, "daemon", false, "run scheduled exports until stopped")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.NewConsole(os.Stderr, "info")
	a, err := app.New(cfgPath)
	if err != nil {
		boot.Error("startup failed", logx.String("config", cfgPath), logx.Err(err))
		os.Exit(1)
	}
	defer a.Close()

	if daemon {
		if err := a.Serve(ctx); err != nil {
			boot.Error("serve stopped", logx.Err(err))
			a.Close()
			os.Exit(1)
		}
		return
	}

	if req.Project == "" || req.Output == "" {
		fmt.Fprintln(os.Stderr, "usage: planexport -project FILE -o OUTPUT [-format F] [-range \"START END\"] | -daemon")
		fmt.Fprintln(os.Stderr, "formats:", strings.Join(a.Formats(), ", "))
		a.Close()
		os.Exit(2)
	}
	req.CommandLine = true
	req.Progress = progress

	res, err := a.Export(ctx, req)
	for _, f := range res.Files {
		fmt.Println(f)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		code := 1
		if errors.Is(err, engine.ErrCanceled) {
			code = 130
		}
		a.Close()
		os.Exit(code)
	}
}
