// Package chunkbuilder drives one row range through the Parser Adapter
// and Column Accumulator, emitting fixed-size batches to a sink.
package chunkbuilder

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/statreader/statreader/internal/accumulator"
	"github.com/statreader/statreader/internal/format"
	"github.com/statreader/statreader/internal/metadata"
	"github.com/statreader/statreader/internal/parser"
)

// Chunk is an ordered set of columns, all the same length, corresponding
// one-to-one with the projected schema, tagged with its index within the
// owning worker's range.
type Chunk struct {
	LocalIndex int
	Columns    []*accumulator.Column
}

// Len returns the chunk's row count (0 for an empty chunk).
func (c *Chunk) Len() int {
	if len(c.Columns) == 0 {
		return 0
	}
	return c.Columns[0].Len()
}

// Sink receives sealed chunks as they are built.
type Sink interface {
	Send(c Chunk) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(c Chunk) error

func (f SinkFunc) Send(c Chunk) error { return f(c) }

// Builder owns one parser run and one set of accumulators over a single
// contiguous row range.
type Builder struct {
	Meta                 *metadata.Store
	Parser               parser.Parser
	Path                 string
	Reader               io.ReaderAt // the File Source handle this worker reads through
	Size                 int64
	RowOffset            int64
	RowLimit             int64
	ChunkSize            int
	ProjectedIndices     []int // source variable indices, in projected order
	ProjectedNames       []string
	ProjectedPos         []int // variable_index -> projected_pos, -1 = skip
	ValueLabelsAsStrings bool
	MissingStringAsNull  bool
	Cancelled            *atomic.Bool
}

// Run drives the configured row range through the parser, sealing batches
// of at most ChunkSize rows to sink. It implements the algorithm and
// tie-breaks of SPEC_FULL.md §4.5 verbatim.
func (b *Builder) Run(sink Sink) error {
	if b.ChunkSize <= 0 {
		return fmt.Errorf("chunkbuilder: chunk_size must be >= 1")
	}

	remaining := b.RowLimit
	if remaining <= 0 {
		remaining = b.Meta.RowCount - b.RowOffset
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining == 0 {
		return nil
	}

	state := &builderState{
		b:            b,
		sink:         sink,
		remaining:    remaining,
		lastVarIndex: len(b.Meta.Vars) - 1,
	}
	state.allocate(minInt(b.ChunkSize, int(remaining)))

	opts := parser.Options{
		Path:      b.Path,
		RowOffset: b.RowOffset,
		RowLimit:  remaining,
		Reader:    b.Reader,
		Size:      b.Size,
	}
	if b.ProjectedIndices != nil {
		opts.Projection = b.ProjectedIndices
	}

	err := b.Parser.Parse(opts, state)
	if err != nil {
		return err
	}
	if state.firstErr != nil {
		return state.firstErr
	}

	if state.rowsInCurrent > 0 {
		if err := state.seal(); err != nil {
			return err
		}
	}
	return nil
}

// builderState implements parser.Callbacks for one Builder.Run call.
type builderState struct {
	b    *Builder
	sink Sink

	accs          []*accumulator.Accumulator
	remaining     int64
	rowsInCurrent int
	curCap        int
	localChunkIdx int
	lastVarIndex  int // file-order index of the row's last variable; completes the row
	firstErr      error
}

func (s *builderState) allocate(size int) {
	b := s.b
	s.accs = make([]*accumulator.Accumulator, len(b.ProjectedNames))
	for i, name := range b.ProjectedNames {
		srcIdx := b.ProjectedIndices[i]
		v := b.Meta.Vars[srcIdx]
		typ := v.Semantic()
		if b.ValueLabelsAsStrings && v.ValueLabelSetName != "" {
			typ = metadata.SemString
		}
		s.accs[i] = accumulator.New(name, typ, size)
	}
	s.rowsInCurrent = 0
	s.curCap = size
}

func (s *builderState) OnMetadata(meta *metadata.Store) parser.Action {
	return parser.ActionOK
}

func (s *builderState) OnVariable(index int, v metadata.Variable) parser.Action {
	return parser.ActionOK
}

func (s *builderState) OnValueLabel(setName string, key metadata.LabelKey, label string) parser.Action {
	return parser.ActionOK
}

// OnValue dispatches one delivered value to its accumulator, if it is
// projected, and detects row completion by variable index rather than by
// counting values written: the parser fires this callback for every
// variable of every row regardless of projection (SPEC_FULL.md §4.5 step
// 2), so an unprojected variable still arrives here — it is just not
// written to an accumulator.
func (s *builderState) OnValue(rowIndex, variableIndex int, value parser.RawValue) parser.Action {
	if s.b.Cancelled != nil && s.b.Cancelled.Load() {
		return parser.ActionAbort
	}

	pos := -1
	if variableIndex < len(s.b.ProjectedPos) {
		pos = s.b.ProjectedPos[variableIndex]
	}
	if pos != -1 {
		acc := s.accs[pos]
		v := s.b.Meta.Vars[variableIndex]
		if err := pushValue(acc, v, s.b.Meta, value, s.b.ValueLabelsAsStrings, s.b.MissingStringAsNull); err != nil {
			s.firstErr = err
			return parser.ActionAbort
		}
	}

	if variableIndex == s.lastVarIndex {
		s.rowsInCurrent++
		if s.rowsInCurrent == s.curCap {
			if err := s.seal(); err != nil {
				s.firstErr = err
				return parser.ActionAbort
			}
		}
	}
	return parser.ActionOK
}

func (s *builderState) seal() error {
	b := s.b
	cols := make([]*accumulator.Column, len(s.accs))
	n := s.accs[0].Len()
	for i, acc := range s.accs {
		if acc.Len() != n {
			return fmt.Errorf("chunkbuilder: internal invariant violated: column %q has length %d, expected %d", acc.Name(), acc.Len(), n)
		}
		cols[i] = acc.Finish()
	}

	chunk := Chunk{LocalIndex: s.localChunkIdx, Columns: cols}
	s.localChunkIdx++
	s.remaining -= int64(n)

	nextSize := b.ChunkSize
	if s.remaining > 0 && int64(nextSize) > s.remaining {
		nextSize = int(s.remaining)
	}
	if s.remaining > 0 {
		s.allocate(nextSize)
	} else {
		s.rowsInCurrent = 0
	}

	return s.sink.Send(chunk)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// pushValue converts and pushes one callback-delivered raw value into acc,
// applying epoch translation, value-label resolution and missing-string
// handling per SPEC_FULL.md §4.5 step 3.
func pushValue(acc *accumulator.Accumulator, v metadata.Variable, meta *metadata.Store, raw parser.RawValue, valueLabelsAsStrings, missingStringAsNull bool) error {
	if raw.Missing || raw.TaggedKey != 0 {
		acc.PushNull()
		return nil
	}

	if valueLabelsAsStrings && v.ValueLabelSetName != "" {
		label, key, ok := resolveLabel(meta, v, raw)
		if ok {
			acc.PushString(label)
		} else {
			acc.PushString(stringifyKey(key, raw))
		}
		return nil
	}

	switch v.RawType {
	case metadata.RawString:
		s, err := decodeString(meta, raw.Str)
		if err != nil {
			return fmt.Errorf("chunkbuilder: variable %q: %w", v.Name, err)
		}
		if missingStringAsNull && s == "" {
			acc.PushNull()
			return nil
		}
		acc.PushString(s)
	case metadata.RawInt8:
		acc.PushInt8(raw.I8)
	case metadata.RawInt16:
		acc.PushInt16(raw.I16)
	case metadata.RawInt32:
		acc.PushInt32(raw.I32)
	case metadata.RawFloat32:
		acc.PushFloat32(raw.F32)
	case metadata.RawFloat64:
		switch v.FormatClass {
		case format.Date:
			acc.PushDate(format.TranslateDate(raw.F64, meta.Kind))
		case format.Time:
			acc.PushTime(format.TranslateTime(raw.F64))
		case format.DateTime:
			acc.PushDateTime(format.TranslateDateTime(raw.F64, meta.Kind))
		default:
			acc.PushFloat64(raw.F64)
		}
	default:
		return fmt.Errorf("chunkbuilder: unknown raw type %v for variable %q", v.RawType, v.Name)
	}
	return nil
}

// decodeString transcodes a raw source-encoded string to UTF-8 through the
// file's resolved encoding (SPEC_FULL.md §3, §9). This is not gated behind
// an option: a string column is always valid UTF-8 regardless of the
// source file's declared encoding. meta.ResolvedEnc is nil only when a
// caller builds a Store by hand without going through a metadata pass (as
// some tests do), in which case the raw bytes pass through unchanged.
func decodeString(meta *metadata.Store, s string) (string, error) {
	if meta.ResolvedEnc == nil {
		return s, nil
	}
	out, err := meta.ResolvedEnc.NewDecoder().String(s)
	if err != nil {
		return "", fmt.Errorf("decode to utf-8: %w", err)
	}
	return out, nil
}

func resolveLabel(meta *metadata.Store, v metadata.Variable, raw parser.RawValue) (string, metadata.LabelKey, bool) {
	var key metadata.LabelKey
	switch v.RawType {
	case metadata.RawString:
		key = metadata.LabelKey{Kind: metadata.KeyString, Str: raw.Str}
	case metadata.RawInt8:
		key = metadata.LabelKey{Kind: metadata.KeyInt32, I32: int32(raw.I8)}
	case metadata.RawInt16:
		key = metadata.LabelKey{Kind: metadata.KeyInt32, I32: int32(raw.I16)}
	case metadata.RawInt32:
		key = metadata.LabelKey{Kind: metadata.KeyInt32, I32: raw.I32}
	case metadata.RawFloat32:
		key = metadata.LabelKey{Kind: metadata.KeyFloat32Bits, Bits32: math.Float32bits(raw.F32)}
	case metadata.RawFloat64:
		key = metadata.LabelKey{Kind: metadata.KeyFloat64Bits, Bits64: math.Float64bits(raw.F64)}
	}
	label, ok := meta.ResolveLabel(v, key)
	return label, key, ok
}

func stringifyKey(key metadata.LabelKey, raw parser.RawValue) string {
	switch key.Kind {
	case metadata.KeyString:
		return key.Str
	case metadata.KeyInt32:
		return strconv.FormatInt(int64(key.I32), 10)
	case metadata.KeyFloat32Bits:
		return strconv.FormatFloat(float64(raw.F32), 'g', -1, 32)
	case metadata.KeyFloat64Bits:
		return strconv.FormatFloat(raw.F64, 'g', -1, 64)
	default:
		return ""
	}
}
