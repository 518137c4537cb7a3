// Package parser defines the narrow callback interface the core uses to
// consume the three byte-level format parsers (sas7bdat/dta/sav). Those
// parsers are external collaborators out of scope for this module (see
// SPEC_FULL.md §1); this package only names the contract, plus a
// deterministic reference/test implementation used by the rest of the
// test suite in place of a real cgo-backed parser.
package parser

import (
	"io"

	"github.com/statreader/statreader/internal/format"
	"github.com/statreader/statreader/internal/metadata"
)

// Action is the return value of every callback: it tells the parser how to
// proceed.
type Action int

const (
	ActionOK Action = iota
	ActionAbort
)

// Kind enumerates the parse-time failure kinds named in SPEC_FULL.md §6.2.
type Kind int

const (
	KindNone Kind = iota
	KindFileNotFound
	KindUnsupported
	KindCorrupt
	KindUserAbort
	KindOutOfMemory
)

// Error wraps a parse-time failure with its kind, per the Parser Adapter
// contract: a parse succeeds (ok) or fails with exactly one of these
// kinds.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// RawValue is the tagged union delivered to OnValue: exactly one of the
// typed fields is meaningful, selected by the variable's RawType, unless
// Missing is set.
type RawValue struct {
	Str       string
	I8        int8
	I16       int16
	I32       int32
	F32       float32
	F64       float64
	Missing   bool
	TaggedKey byte // non-zero for a Stata/SPSS tagged/user missing value
}

// Callbacks is the four-callback interface fired strictly in order
// (on_metadata, on_variable*, on_value_label*, on_value*) during a single
// parse. Implementations MUST NOT panic; on an abnormal condition they
// should record it and return ActionAbort.
type Callbacks interface {
	OnMetadata(meta *metadata.Store) Action
	OnVariable(index int, v metadata.Variable) Action
	OnValueLabel(setName string, key metadata.LabelKey, label string) Action
	OnValue(rowIndex, variableIndex int, value RawValue) Action
}

// Options configures a single parse run.
type Options struct {
	Path      string
	RowOffset int64
	RowLimit  int64 // 0 means "no limit"
	// Projection is an advisory decode hint, not a delivery filter: a parser
	// MAY skip decoding the variables it excludes, but MUST still invoke
	// OnValue for every variable of every row regardless of Projection. Row
	// completion is keyed off the variable index reaching the file's last
	// variable (SPEC_FULL.md §4.5 step 3), so callbacks can never be
	// skipped outright. nil means "decode everything".
	Projection []int
	Reader     io.ReaderAt
	Size       int64
}

// Parser is the uniform facade over the three format-specific byte-level
// parsers. One Parser value drives exactly one Parse call at a time.
type Parser interface {
	Kind() format.FileKind
	Parse(opts Options, cb Callbacks) error
}

// ErrNotImplemented is returned by format-specific constructors that have
// no real byte-level backend wired in this build; it satisfies the
// Unsupported failure kind.
var ErrNotImplemented = &Error{Kind: KindUnsupported, Message: "no parser backend registered for this file kind"}

// Factory constructs a Parser for a given file kind. Production callers
// supply their own Factory (typically backed by a cgo binding); this
// package only defines the seam plus the fake implementation used in
// tests (see fake.go).
type Factory func(kind format.FileKind) (Parser, error)

// DefaultFactory returns ErrNotImplemented for every kind; it exists so
// callers that have not wired a real backend yet fail predictably instead
// of with a nil-pointer dereference.
func DefaultFactory(kind format.FileKind) (Parser, error) {
	return nil, ErrNotImplemented
}
