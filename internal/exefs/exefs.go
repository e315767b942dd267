// Package exefs handles the detection of ExeFS directories and the modules they contain.
package exefs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/retroenv/retrogolib/log"
)

// NPDMFileName is the name of the process metadata file of an ExeFS.
const NPDMFileName = "main.npdm"

// DefaultModules returns the module names of an ExeFS in load order.
func DefaultModules() []string {
	return []string{
		"rtld", "main",
		"subsdk0", "subsdk1", "subsdk2", "subsdk3",
		"subsdk4", "subsdk5", "subsdk6", "subsdk7",
		"sdk",
	}
}

// Detector checks whether a directory is an ExeFS.
type Detector struct {
	logger *log.Logger
}

// NewDetector creates a new ExeFS detector.
func NewDetector(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
	}
}

// Detect reads the main.npdm of the directory and returns its header.
// It returns an error wrapping ErrNotExeFS if the file is missing or invalid.
func (d *Detector) Detect(dir string) (*NPDM, error) {
	path := filepath.Join(dir, NPDMFileName)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening file %s: %v", ErrNotExeFS, path, err)
	}
	defer func() { _ = file.Close() }()

	npdm, err := ReadNPDM(file)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	d.logger.Debug("Detected ExeFS",
		log.String("name", npdm.ApplicationName()),
		log.String("dir", dir),
		log.Int("category", int(npdm.ProcessCategory)))
	return npdm, nil
}

// ModulePaths returns the paths of the named modules inside the directory.
func ModulePaths(dir string, names []string) []string {
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths
}
