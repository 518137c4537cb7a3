package parser

import (
	"github.com/statreader/statreader/internal/format"
	"github.com/statreader/statreader/internal/metadata"
)

// Fake is a deterministic, in-memory Parser implementation that drives
// the on_metadata/on_variable/on_value_label/on_value callback sequence
// from pre-built rows. It stands in for a real cgo-backed byte parser in
// tests (SPEC_FULL.md §4.1): the core must not care which is wired in.
type Fake struct {
	FileKind format.FileKind
	Meta     *metadata.Store
	// Rows[row][variableIndex] holds one RawValue per variable, in file
	// variable order.
	Rows [][]RawValue
	// CorruptAtRow, if >= 0, makes Parse return a Corrupt error once the
	// callback loop reaches that row index (before any value of that row
	// is delivered), simulating a byte-level decode failure mid-file.
	CorruptAtRow int64
}

func NewFake(kind format.FileKind, meta *metadata.Store, rows [][]RawValue) *Fake {
	return &Fake{FileKind: kind, Meta: meta, Rows: rows, CorruptAtRow: -1}
}

func (f *Fake) Kind() format.FileKind { return f.FileKind }

func (f *Fake) Parse(opts Options, cb Callbacks) error {
	if act := cb.OnMetadata(f.Meta); act == ActionAbort {
		return &Error{Kind: KindUserAbort, Message: "aborted in on_metadata"}
	}

	for _, v := range f.Meta.Vars {
		if act := cb.OnVariable(v.Index, v); act == ActionAbort {
			return &Error{Kind: KindUserAbort, Message: "aborted in on_variable"}
		}
	}

	for _, set := range f.Meta.ValueLabelSets {
		for key, label := range set.Labels {
			if act := cb.OnValueLabel(set.Name, key, label); act == ActionAbort {
				return &Error{Kind: KindUserAbort, Message: "aborted in on_value_label"}
			}
		}
	}

	limit := opts.RowLimit
	total := int64(len(f.Rows))
	end := total
	if limit > 0 && opts.RowOffset+limit < end {
		end = opts.RowOffset + limit
	}

	// Every variable of every row is delivered, projected or not: Projection
	// is only a decode hint for a real byte-level parser, never a filter on
	// which callbacks fire. The consumer looks up its own projected_pos and
	// discards what it doesn't need (SPEC_FULL.md §4.5 step 2); row
	// completion depends on every variable index being seen in order.
	for row := opts.RowOffset; row < end; row++ {
		if row < 0 || row >= total {
			continue
		}
		if f.CorruptAtRow >= 0 && row == f.CorruptAtRow {
			return &Error{Kind: KindCorrupt, Message: "simulated corruption"}
		}
		values := f.Rows[row]
		for varIdx := 0; varIdx < len(values); varIdx++ {
			act := cb.OnValue(int(row), varIdx, values[varIdx])
			if act == ActionAbort {
				return &Error{Kind: KindUserAbort, Message: "aborted in on_value"}
			}
		}
	}

	return nil
}
