// Package config handles application configuration and setup
package config

import (
	"fmt"
	"os"

	"github.com/retroenv/nsoload/internal/loader"
	"github.com/retroenv/retrogolib/log"
	"gopkg.in/yaml.v3"
)

// File is the YAML configuration file. All fields are pointers or slices so that
// unset values keep the defaults.
type File struct {
	BaseAddress      *uint64  `yaml:"base_address"`
	Modules          []string `yaml:"modules"`
	Is64Bit          *bool    `yaml:"is_64bit"`
	ABI              string   `yaml:"abi"`
	ParallelSegments *bool    `yaml:"parallel_segments"`
	VerifyHashes     *bool    `yaml:"verify_hashes"`
	MaxImageSize     *uint64  `yaml:"max_image_size"`
}

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// LoadFile reads the YAML configuration file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return f, nil
}

// Apply sets all values of the configuration file that are set on the loader config.
func (f File) Apply(cfg *loader.Config) {
	if f.BaseAddress != nil {
		cfg.BaseAddress = *f.BaseAddress
	}
	if len(f.Modules) > 0 {
		cfg.Modules = f.Modules
	}
	if f.Is64Bit != nil {
		cfg.Is64Bit = *f.Is64Bit
	}
	if f.ABI != "" {
		cfg.ABI = f.ABI
	}
	if f.ParallelSegments != nil {
		cfg.Parallel = *f.ParallelSegments
	}
	if f.VerifyHashes != nil {
		cfg.VerifyHashes = *f.VerifyHashes
	}
	if f.MaxImageSize != nil {
		cfg.MaxImageSize = *f.MaxImageSize
	}
}
