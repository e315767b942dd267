// Package report summarizes the outcome of a loading run as text or JSON.
package report

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/opencontainers/go-digest"
	"github.com/retroenv/nsoload/internal/loader"
	"github.com/retroenv/nsoload/internal/nso"
)

// Status values of a module.
const (
	StatusLoaded  = "loaded"
	StatusSkipped = "skipped"
	StatusMissing = "missing"
)

// Segment is the placement of a segment in the address space.
type Segment struct {
	Name    string `json:"name"`
	Address Hex    `json:"address"`
	Size    Hex    `json:"size"`
}

// ModHeader contains the offsets of the MOD0 header.
type ModHeader struct {
	DynamicOffset   Hex `json:"dynamic_offset"`
	BssStartOffset  Hex `json:"bss_start_offset"`
	BssEndOffset    Hex `json:"bss_end_offset"`
	EhFrameHdrStart Hex `json:"eh_frame_hdr_start"`
	EhFrameHdrEnd   Hex `json:"eh_frame_hdr_end"`
	ModuleOffset    Hex `json:"module_offset"`
}

// Module is the report entry of a single module.
type Module struct {
	Name       string        `json:"name"`
	Status     string        `json:"status"`
	Base       Hex           `json:"base"`
	Size       Hex           `json:"size,omitempty"`
	Entrypoint Hex           `json:"entrypoint,omitempty"`
	BssSize    Hex           `json:"bss_size,omitempty"`
	BuildID    string        `json:"build_id,omitempty"`
	Digest     digest.Digest `json:"digest,omitempty"`
	Segments   []Segment     `json:"segments,omitempty"`
	ModHeader  *ModHeader    `json:"mod_header,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// Report is the summary of a loading run.
type Report struct {
	Name     string   `json:"name,omitempty"`
	Is64Bit  bool     `json:"is_64bit"`
	ABI      string   `json:"abi"`
	StartIP  Hex      `json:"start_ip"`
	Modules  []Module `json:"modules"`
	Loaded   int      `json:"loaded"`
	NextBase Hex      `json:"next_base"`
}

// Hex is a number that is printed in hexadecimal notation.
type Hex uint64

func (h Hex) String() string {
	return fmt.Sprintf("0x%X", uint64(h))
}

// MarshalJSON encodes the number as hexadecimal string.
func (h Hex) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// New creates a report from the outcomes of a loading run.
func New(name string, config loader.Config, outcomes []loader.Outcome) *Report {
	r := &Report{
		Name:     name,
		Is64Bit:  config.Is64Bit,
		ABI:      config.ABI,
		StartIP:  Hex(config.BaseAddress),
		Modules:  make([]Module, 0, len(outcomes)),
		NextBase: Hex(config.BaseAddress),
	}

	for _, outcome := range outcomes {
		switch o := outcome.(type) {
		case loader.Loaded:
			r.Modules = append(r.Modules, loadedModule(o))
			r.Loaded++
		case loader.Skipped:
			m := Module{
				Name:   o.Name,
				Status: StatusSkipped,
				Base:   Hex(o.Base),
				Reason: o.Reason.Error(),
			}
			if o.Missing() {
				m.Status = StatusMissing
			}
			r.Modules = append(r.Modules, m)
		}
		r.NextBase = Hex(outcome.NextBase())
	}

	return r
}

func loadedModule(o loader.Loaded) Module {
	cs := o.CodeSet
	m := Module{
		Name:       o.Name,
		Status:     StatusLoaded,
		Base:       Hex(o.Base),
		Size:       Hex(cs.Size()),
		Entrypoint: Hex(cs.Entrypoint),
		BssSize:    Hex(cs.BssSize),
		Digest:     digest.FromBytes(cs.Memory),
	}
	if cs.Header != nil {
		m.BuildID = hex.EncodeToString(cs.Header.BuildID[:])
	}

	for i, seg := range cs.Segments {
		m.Segments = append(m.Segments, Segment{
			Name:    nso.SegmentIndex(i).String(),
			Address: Hex(seg.Addr),
			Size:    Hex(seg.Size),
		})
	}

	if cs.HasModHeader {
		mod := cs.ModHeader
		m.ModHeader = &ModHeader{
			DynamicOffset:   Hex(mod.DynamicOffset),
			BssStartOffset:  Hex(mod.BssStartOffset),
			BssEndOffset:    Hex(mod.BssEndOffset),
			EhFrameHdrStart: Hex(mod.EhFrameHdrStart),
			EhFrameHdrEnd:   Hex(mod.EhFrameHdrEnd),
			ModuleOffset:    Hex(mod.ModuleOffset),
		}
	}
	return m
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteText writes the report as table.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODULE\tSTATUS\tBASE\tSIZE\tCODE\tRODATA\tDATA\tBSS\tMOD0")

	for _, m := range r.Modules {
		if m.Status != StatusLoaded {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t-\t-\t-\n", m.Name, m.Status, m.Base)
			continue
		}

		mod := "no"
		if m.ModHeader != nil {
			mod = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Name, m.Status, m.Base, m.Size,
			m.Segments[nso.Code].Address, m.Segments[nso.ROData].Address, m.Segments[nso.Data].Address,
			m.BssSize, mod)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
