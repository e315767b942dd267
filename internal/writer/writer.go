// Package writer implements writing loaded program images to files.
package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/retroenv/nsoload/internal/nso"
)

const (
	imageExtension      = ".bin"
	compressedExtension = ".zst"
)

// Options of the writer.
type Options struct {
	Compress bool // write zstd compressed images
}

// Writer writes program images into an output directory.
type Writer struct {
	dir     string
	options Options
}

// New creates a new writer for the given output directory.
func New(dir string, options Options) *Writer {
	return &Writer{
		dir:     dir,
		options: options,
	}
}

// FileName returns the name of the file that the image of a module is written to.
func (w *Writer) FileName(module string) string {
	name := module + imageExtension
	if w.options.Compress {
		name += compressedExtension
	}
	return filepath.Join(w.dir, name)
}

// WriteImage writes the program image of the module and returns the written file name.
func (w *Writer) WriteImage(module string, cs *nso.CodeSet) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", w.dir, err)
	}

	name := w.FileName(module)
	file, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("creating file %s: %w", name, err)
	}

	if err := w.write(file, cs.Memory); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("writing file %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing file %s: %w", name, err)
	}
	return name, nil
}

func (w *Writer) write(out io.Writer, data []byte) error {
	if !w.options.Compress {
		_, err := out.Write(data)
		return err
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return fmt.Errorf("compressing image: %w", err)
	}
	return enc.Close()
}
