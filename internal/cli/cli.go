// Package cli handles command line interface logic
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/retroenv/nsoload/internal/config"
	"github.com/retroenv/nsoload/internal/loader"
	"github.com/retroenv/nsoload/internal/options"
	"github.com/urfave/cli/v3"
)

// Action is called with the parsed program options and the loader configuration.
type Action func(ctx context.Context, opts options.Program, cfg loader.Config) error

// UsageError represents an error that should show usage information
type UsageError struct {
	cmd *cli.Command
	msg string
}

func (e *UsageError) Error() string {
	return e.msg
}

// ShowUsage prints the help of the command.
func (e *UsageError) ShowUsage() {
	_ = cli.ShowAppHelp(e.cmd)
}

// NewCommand creates the command line interface of the loader.
func NewCommand(version string, action Action) *cli.Command {
	return &cli.Command{
		Name:      "nsoload",
		Usage:     "load the NSO modules of a Switch ExeFS into an address space",
		ArgsUsage: "<exefs directory or module file>",
		Version:   version,
		Flags:     flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, cfg, err := parseCommand(cmd)
			if err != nil {
				return err
			}
			return action(ctx, opts, cfg)
		},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "o", Usage: "directory to write the loaded program images to"},
		&cli.StringFlag{Name: "c", Usage: "YAML config file with the loader settings"},
		&cli.StringFlag{Name: "base", Usage: "base address of the first module", Value: fmt.Sprintf("0x%X", loader.DefaultBaseAddress)},
		&cli.StringFlag{Name: "modules", Usage: "comma separated module names in load order"},
		&cli.BoolFlag{Name: "parallel", Usage: "decompress the segments of a module concurrently"},
		&cli.BoolFlag{Name: "verify", Usage: "verify the segment hashes of the modules"},
		&cli.BoolFlag{Name: "compress", Usage: "zstd compress the written program images"},
		&cli.BoolFlag{Name: "force", Usage: "load the modules even if the directory has no valid main.npdm"},
		&cli.BoolFlag{Name: "json", Usage: "print the load report as JSON"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debugging options for extended logging"},
		&cli.BoolFlag{Name: "q", Usage: "perform operations quietly"},
	}
}

// parseCommand collects the program options and builds the loader configuration.
// Values of the config file are used unless the matching flag is set explicitly.
func parseCommand(cmd *cli.Command) (options.Program, loader.Config, error) {
	var opts options.Program
	args := cmd.Args()
	if args.Len() == 0 {
		return opts, loader.Config{}, &UsageError{cmd: cmd, msg: "no input given"}
	}
	if args.Len() > 1 {
		return opts, loader.Config{}, &UsageError{
			cmd: cmd,
			msg: fmt.Sprintf("Potential argument %s found after input, please pass the input as last argument", args.Get(1)),
		}
	}

	opts.Input = args.First()
	opts.Output = cmd.String("o")
	opts.Config = cmd.String("c")
	opts.Compress = cmd.Bool("compress")
	opts.Force = cmd.Bool("force")
	opts.JSON = cmd.Bool("json")
	opts.Debug = cmd.Bool("debug")
	opts.Quiet = cmd.Bool("q")

	cfg := loader.DefaultConfig()
	if opts.Config != "" {
		file, err := config.LoadFile(opts.Config)
		if err != nil {
			return opts, loader.Config{}, err
		}
		file.Apply(&cfg)
	}

	if cmd.IsSet("base") {
		base, err := ParseAddress(cmd.String("base"))
		if err != nil {
			return opts, loader.Config{}, err
		}
		cfg.BaseAddress = base
	}
	if cmd.IsSet("modules") {
		cfg.Modules = SplitModules(cmd.String("modules"))
	}
	if cmd.IsSet("parallel") {
		cfg.Parallel = cmd.Bool("parallel")
	}
	if cmd.IsSet("verify") {
		cfg.VerifyHashes = cmd.Bool("verify")
	}

	if len(cfg.Modules) == 0 {
		return opts, loader.Config{}, &UsageError{cmd: cmd, msg: "no modules to load"}
	}

	opts.BaseAddress = cfg.BaseAddress
	opts.Modules = cfg.Modules
	opts.Parallel = cfg.Parallel
	opts.Verify = cfg.VerifyHashes
	return opts, cfg, nil
}

// ParseAddress parses a decimal, hexadecimal (0x) or octal (0o) address.
func ParseAddress(s string) (uint64, error) {
	address, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address '%s': %w", s, err)
	}
	return address, nil
}

// SplitModules splits a comma separated list of module names.
func SplitModules(s string) []string {
	var modules []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			modules = append(modules, name)
		}
	}
	return modules
}
