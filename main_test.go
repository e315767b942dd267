package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/nsoload/internal/loader"
	"github.com/retroenv/nsoload/internal/nso/nsotest"
	"github.com/retroenv/nsoload/internal/options"
	"github.com/retroenv/retrogolib/assert"
)

func TestRunCanceled(t *testing.T) {
	container := nsotest.Container{
		Segments: [3]nsotest.Segment{
			{Location: 0x0, Data: nsotest.Pattern(0x800, 1)},
			{Location: 0x1000, Data: nsotest.Pattern(0x100, 2)},
			{Location: 0x2000, Data: nsotest.Pattern(0x100, 3)},
		},
	}
	path := filepath.Join(t.TempDir(), "main")
	if err := os.WriteFile(path, container.MustBytes(), 0600); err != nil {
		t.Fatalf("Failed to create module file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := options.Program{
		Parameters: options.Parameters{Input: path},
		Flags:      options.Flags{Quiet: true},
	}
	err := run(ctx, opts, loader.DefaultConfig())
	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
