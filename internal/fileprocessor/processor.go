// Package fileprocessor handles the loading workflow of an input directory or file
package fileprocessor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/retroenv/nsoload/internal/addrspace"
	"github.com/retroenv/nsoload/internal/exefs"
	"github.com/retroenv/nsoload/internal/loader"
	"github.com/retroenv/nsoload/internal/options"
	"github.com/retroenv/nsoload/internal/report"
	"github.com/retroenv/nsoload/internal/writer"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
)

// Result contains the state of a processed input.
type Result struct {
	Report   *report.Report
	Space    *addrspace.Space
	Outcomes []loader.Outcome
	Images   []string // paths of the written program images
}

// ProcessInput handles the complete loading workflow. The input is either an
// ExeFS directory or a single module file. The report is written to out.
func ProcessInput(ctx context.Context, logger *log.Logger, opts options.Program,
	cfg loader.Config, out io.Writer) (*Result, error) {

	paths, name, err := modulePaths(logger, opts, &cfg)
	if err != nil {
		return nil, err
	}

	space := addrspace.New(addrspace.Options{
		Is64Bit: cfg.Is64Bit,
		ABI:     cfg.ABI,
		StartIP: cfg.BaseAddress,
	})
	ldr := loader.New(logger, cfg, space)

	outcomes, err := ldr.LoadAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Report:   report.New(name, cfg, outcomes),
		Space:    space,
		Outcomes: outcomes,
	}

	if opts.Output != "" {
		images, err := writeImages(ctx, logger, opts, outcomes)
		if err != nil {
			return nil, err
		}
		result.Images = images
	}

	if opts.JSON {
		err = result.Report.WriteJSON(out)
	} else {
		err = result.Report.WriteText(out)
	}
	if err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	return result, nil
}

// modulePaths returns the paths of the modules to load and the name of the program.
// For an ExeFS directory the process metadata is read to detect the address space width.
func modulePaths(logger *log.Logger, opts options.Program, cfg *loader.Config) ([]string, string, error) {
	info, err := os.Stat(opts.Input)
	if err != nil {
		return nil, "", fmt.Errorf("checking input %s: %w", opts.Input, err)
	}

	if !info.IsDir() {
		return []string{opts.Input}, filepath.Base(opts.Input), nil
	}

	name := filepath.Base(opts.Input)
	if !opts.Force {
		detector := exefs.NewDetector(logger)
		npdm, err := detector.Detect(opts.Input)
		if err != nil {
			return nil, "", fmt.Errorf("detecting ExeFS: %w", err)
		}
		cfg.Is64Bit = npdm.Is64Bit()
		if appName := npdm.ApplicationName(); appName != "" {
			name = appName
		}
	}

	return exefs.ModulePaths(opts.Input, cfg.Modules), name, nil
}

func writeImages(ctx context.Context, logger *log.Logger, opts options.Program,
	outcomes []loader.Outcome) ([]string, error) {

	w := writer.New(opts.Output, writer.Options{Compress: opts.Compress})

	var images []string
	for _, outcome := range outcomes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("writing images: %w", err)
		}

		loaded, ok := outcome.(loader.Loaded)
		if !ok {
			continue
		}

		path, err := w.WriteImage(loaded.Name, loaded.CodeSet)
		if err != nil {
			return nil, fmt.Errorf("writing image of module %s: %w", loaded.Name, err)
		}
		logger.Debug("Wrote program image",
			log.String("module", loaded.Name),
			log.String("file", path))
		images = append(images, path)
	}
	return images, nil
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	logger.Info("nsoload", log.String("version", buildinfo.Version(version, commit, date)))
}
