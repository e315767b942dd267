package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/opencontainers/go-digest"
	"github.com/retroenv/nsoload/internal/loader"
	"github.com/retroenv/nsoload/internal/nso"
	"github.com/retroenv/retrogolib/assert"
)

func testOutcomes() []loader.Outcome {
	cs := &nso.CodeSet{
		Header:       &nso.Header{},
		Memory:       make([]byte, 0x3000),
		BssSize:      0x1000,
		HasModHeader: true,
		ModHeader: nso.ModHeader{
			Magic:          nso.ModMagic,
			BssStartOffset: 0x2000,
			BssEndOffset:   0x2800,
		},
	}
	cs.Header.BuildID[0] = 0xab
	cs.Segments[nso.Code] = nso.Segment{Offset: 0, Size: 0x1000}
	cs.Segments[nso.ROData] = nso.Segment{Offset: 0x1000, Size: 0x1000}
	cs.Segments[nso.Data] = nso.Segment{Offset: 0x2000, Size: 0x1000}
	cs.Place(0x8000000)

	return []loader.Outcome{
		loader.Loaded{Name: "main", Base: 0x8000000, Next: 0x8003000, CodeSet: cs},
		loader.Skipped{Name: "subsdk0", Base: 0x8003000, Reason: fmt.Errorf("opening file: %w", os.ErrNotExist)},
		loader.Skipped{Name: "sdk", Base: 0x8003000, Reason: errors.New("invalid nso format")},
	}
}

func TestNew(t *testing.T) {
	config := loader.DefaultConfig()
	r := New("Application", config, testOutcomes())

	assert.Equal(t, 1, r.Loaded)
	assert.Equal(t, 3, len(r.Modules))
	assert.Equal(t, Hex(0x8003000), r.NextBase)
	assert.Equal(t, Hex(loader.DefaultBaseAddress), r.StartIP)
	assert.Equal(t, loader.DefaultABI, r.ABI)

	loaded := r.Modules[0]
	assert.Equal(t, StatusLoaded, loaded.Status)
	assert.Equal(t, Hex(0x3000), loaded.Size)
	assert.Equal(t, Hex(0x8000000), loaded.Entrypoint)
	assert.Equal(t, Hex(0x8002000), loaded.Segments[nso.Data].Address)
	assert.Equal(t, "data", loaded.Segments[nso.Data].Name)
	assert.Equal(t, digest.FromBytes(make([]byte, 0x3000)), loaded.Digest)
	assert.True(t, strings.HasPrefix(loaded.BuildID, "ab00"))
	assert.True(t, loaded.ModHeader != nil)
	assert.Equal(t, Hex(0x2800), loaded.ModHeader.BssEndOffset)

	assert.Equal(t, StatusMissing, r.Modules[1].Status)
	assert.Equal(t, StatusSkipped, r.Modules[2].Status)
	assert.Equal(t, "invalid nso format", r.Modules[2].Reason)
}

func TestWriteJSON(t *testing.T) {
	r := New("Application", loader.DefaultConfig(), testOutcomes())

	var buf bytes.Buffer
	assert.NoError(t, r.WriteJSON(&buf))

	var decoded struct {
		Name    string `json:"name"`
		Loaded  int    `json:"loaded"`
		Modules []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			Base   string `json:"base"`
			Size   string `json:"size"`
			Digest string `json:"digest"`
		} `json:"modules"`
	}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Application", decoded.Name)
	assert.Equal(t, 1, decoded.Loaded)
	assert.Equal(t, 3, len(decoded.Modules))
	assert.Equal(t, "0x8000000", decoded.Modules[0].Base)
	assert.Equal(t, "0x3000", decoded.Modules[0].Size)
	assert.True(t, strings.HasPrefix(decoded.Modules[0].Digest, "sha256:"))
	assert.Equal(t, "missing", decoded.Modules[1].Status)
	assert.Equal(t, "", decoded.Modules[1].Size)
}

func TestWriteText(t *testing.T) {
	r := New("", loader.DefaultConfig(), testOutcomes())

	var buf bytes.Buffer
	assert.NoError(t, r.WriteText(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, 4, len(lines))
	assert.True(t, strings.HasPrefix(lines[0], "MODULE"))
	assert.Contains(t, lines[1], "main")
	assert.Contains(t, lines[1], "0x8002000")
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[2], "missing")
	assert.Contains(t, lines[3], "skipped")
}
