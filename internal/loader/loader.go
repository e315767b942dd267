// Package loader handles loading NSO module files at sequential base addresses.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retroenv/nsoload/internal/exefs"
	"github.com/retroenv/nsoload/internal/nso"
	"github.com/retroenv/retrogolib/log"
)

// DefaultBaseAddress is the address that the first module is loaded at.
const DefaultBaseAddress = 0x08000000

// DefaultABI is the compiler ABI type library used for Switch executables.
const DefaultABI = "gnulnx_arm64"

// Config is the process wide configuration of a loading run.
type Config struct {
	BaseAddress  uint64   // base address of the first module
	Modules      []string // module names in load order
	Is64Bit      bool
	ABI          string
	Parallel     bool   // decompress the segments of a module concurrently
	VerifyHashes bool   // verify segment hashes if the header requests it
	MaxImageSize uint64 // 0 selects the default limit
}

// DefaultConfig returns the configuration for loading a Switch ExeFS.
func DefaultConfig() Config {
	return Config{
		BaseAddress: DefaultBaseAddress,
		Modules:     exefs.DefaultModules(),
		Is64Bit:     true,
		ABI:         DefaultABI,
	}
}

// Mapper commits placed program images into an address space.
type Mapper interface {
	Map(name string, cs *nso.CodeSet) error
}

// Outcome is the result of loading a single module, either Loaded or Skipped.
type Outcome interface {
	// Module returns the name of the module.
	Module() string
	// NextBase returns the base address for the following module.
	NextBase() uint64

	outcome()
}

// Loaded is the outcome of a module that was loaded at Base.
type Loaded struct {
	Name    string
	Path    string
	Base    uint64
	Next    uint64
	CodeSet *nso.CodeSet
}

// Skipped is the outcome of a module that could not be loaded. It does not use
// any address space.
type Skipped struct {
	Name   string
	Path   string
	Base   uint64
	Reason error
}

func (l Loaded) Module() string   { return l.Name }
func (l Loaded) NextBase() uint64 { return l.Next }
func (Loaded) outcome()           {}

func (s Skipped) Module() string   { return s.Name }
func (s Skipped) NextBase() uint64 { return s.Base }
func (Skipped) outcome()           {}

// Missing returns whether the module was skipped because its file does not exist.
func (s Skipped) Missing() bool {
	return errors.Is(s.Reason, os.ErrNotExist)
}

// Loader loads module files and places them at sequential base addresses.
type Loader struct {
	logger  *log.Logger
	config  Config
	builder *nso.Builder
	mapper  Mapper
}

// New creates a new module loader. The mapper is optional, if it is nil the
// loaded images are not committed anywhere.
func New(logger *log.Logger, config Config, mapper Mapper) *Loader {
	return &Loader{
		logger: logger,
		config: config,
		builder: nso.NewBuilder(
			nso.WithParallel(config.Parallel),
			nso.WithHashVerification(config.VerifyHashes),
			nso.WithMaxImageSize(config.MaxImageSize),
		),
		mapper: mapper,
	}
}

// Load loads the module file at the given base address. Any error results in a
// Skipped outcome that returns the unchanged base address as next base.
func (l *Loader) Load(path string, base uint64) Outcome {
	name := filepath.Base(path)

	cs, err := l.build(path)
	if err == nil {
		cs.Place(base)
		if l.mapper != nil {
			if err = l.mapper.Map(name, cs); err != nil {
				err = fmt.Errorf("mapping module: %w", err)
			}
		}
	}

	if err != nil {
		return Skipped{
			Name:   name,
			Path:   path,
			Base:   base,
			Reason: err,
		}
	}

	return Loaded{
		Name:    name,
		Path:    path,
		Base:    base,
		Next:    base + nso.PageAlign(cs.Size()),
		CodeSet: cs,
	}
}

// LoadAll loads the module files in order, starting at the configured base address.
// Every module is loaded at the address following the previously loaded module.
// Cancelling the context stops the loading between modules, the outcomes of the
// modules processed so far are returned together with the context error.
func (l *Loader) LoadAll(ctx context.Context, paths []string) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(paths))
	base := l.config.BaseAddress

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("loading modules: %w", err)
		}

		outcome := l.Load(path, base)
		outcomes = append(outcomes, outcome)

		switch o := outcome.(type) {
		case Loaded:
			l.logger.Info("Loaded module",
				log.String("module", o.Name),
				log.String("base", fmt.Sprintf("0x%X", o.Base)),
				log.String("size", fmt.Sprintf("0x%X", o.CodeSet.Size())))
		case Skipped:
			if o.Missing() {
				l.logger.Debug("Module not present", log.String("module", o.Name))
			} else {
				l.logger.Warn("Skipped module", log.String("module", o.Name), log.Err(o.Reason))
			}
		}

		base = outcome.NextBase()
	}

	return outcomes, nil
}

func (l *Loader) build(path string) (*nso.CodeSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	cs, err := l.builder.Build(file)
	if err != nil {
		return nil, fmt.Errorf("building image of %s: %w", path, err)
	}
	return cs, nil
}
