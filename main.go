// Package main implements the main entry point for the NSO module loader
package main

import (
	"context"
	"errors"
	"os"

	"github.com/retroenv/nsoload/internal/cli"
	"github.com/retroenv/nsoload/internal/config"
	"github.com/retroenv/nsoload/internal/fileprocessor"
	"github.com/retroenv/nsoload/internal/loader"
	"github.com/retroenv/nsoload/internal/options"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	cmd := cli.NewCommand(buildinfo.Version(version, commit, date), run)
	err := cmd.Run(ctx, os.Args)
	if err == nil {
		return
	}

	logger := config.CreateLogger(false, false)
	var usageErr *cli.UsageError
	switch {
	case errors.As(err, &usageErr):
		logger.Error("Invalid arguments", log.Err(err))
		usageErr.ShowUsage()
	case errors.Is(err, context.Canceled):
		logger.Info("Operation cancelled")
		return
	default:
		logger.Error("Loading failed", log.Err(err))
	}
	os.Exit(1)
}

func run(ctx context.Context, opts options.Program, cfg loader.Config) error {
	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	fileprocessor.PrintBanner(logger, opts, version, commit, date)

	result, err := fileprocessor.ProcessInput(ctx, logger, opts, cfg, os.Stdout)
	if err != nil {
		return err
	}

	logger.Info("Loading finished",
		log.Int("loaded", result.Report.Loaded),
		log.String("next_base", result.Report.NextBase.String()))
	return nil
}
