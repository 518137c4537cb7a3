// Package metadata holds the one-shot results of a file's metadata pass:
// variable descriptors, value-label sets and file properties, and computes
// the projected schema the rest of the pipeline operates on. An instance
// is immutable after construction and freely shareable across workers.
package metadata

import (
	"fmt"
	"strings"

	"github.com/statreader/statreader/internal/format"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// RawType is the on-disk storage type of a variable, before semantic
// interpretation.
type RawType int

const (
	RawString RawType = iota
	RawInt8
	RawInt16
	RawInt32
	RawFloat32
	RawFloat64
)

// TypeClass is the coarse type family reported alongside RawType.
type TypeClass int

const (
	TypeClassString TypeClass = iota
	TypeClassNumeric
)

// SemanticType is the dtype exposed to the consumer of a chunk.
type SemanticType int

const (
	SemString SemanticType = iota
	SemInt8
	SemInt16
	SemInt32
	SemFloat32
	SemFloat64
	SemDate
	SemTime
	SemDateTime
)

func (t SemanticType) String() string {
	switch t {
	case SemString:
		return "String"
	case SemInt8:
		return "Int8"
	case SemInt16:
		return "Int16"
	case SemInt32:
		return "Int32"
	case SemFloat32:
		return "Float32"
	case SemFloat64:
		return "Float64"
	case SemDate:
		return "Date"
	case SemTime:
		return "Time"
	case SemDateTime:
		return "DateTime"
	default:
		return "Unknown"
	}
}

// SemanticTypeOf is a pure function of (raw_type, format_class) per the
// table in SPEC_FULL.md §3. No dtype ever depends on observed data.
func SemanticTypeOf(raw RawType, class format.Class) SemanticType {
	switch raw {
	case RawString:
		return SemString
	case RawInt8:
		return SemInt8
	case RawInt16:
		return SemInt16
	case RawInt32:
		return SemInt32
	case RawFloat32:
		return SemFloat32
	case RawFloat64:
		switch class {
		case format.Date:
			return SemDate
		case format.Time:
			return SemTime
		case format.DateTime:
			return SemDateTime
		default:
			return SemFloat64
		}
	default:
		return SemFloat64
	}
}

// Variable describes one column of the source file, in file order.
type Variable struct {
	Index            int
	Name             string
	RawType          RawType
	TypeClass        TypeClass
	Label            string
	DisplayFormat    string
	FormatClass      format.Class
	ValueLabelSetName string
}

// Semantic returns the dtype this variable will be exposed as.
func (v Variable) Semantic() SemanticType {
	return SemanticTypeOf(v.RawType, v.FormatClass)
}

// LabelKeyKind selects which union member of a ValueLabelSet key is valid.
type LabelKeyKind int

const (
	KeyString LabelKeyKind = iota
	KeyInt32
	KeyFloat32Bits
	KeyFloat64Bits
	KeyTaggedMissing
)

// LabelKey is a tagged-union key into a ValueLabelSet.
type LabelKey struct {
	Kind   LabelKeyKind
	Str    string
	I32    int32
	Bits32 uint32
	Bits64 uint64
	Tag    byte
}

// ValueLabelSet is a named mapping from raw value to a UTF-8 label.
type ValueLabelSet struct {
	Name   string
	Labels map[LabelKey]string
}

// Compression identifies the on-disk page compression of the source file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionRowRLE
	CompressionBinary
)

// encodingAliases maps the vendor encoding names SAS, Stata and SPSS
// headers carry to the IANA/WHATWG names golang.org/x/text/encoding's
// htmlindex recognizes. A name not listed here is looked up in htmlindex
// directly.
var encodingAliases = map[string]string{
	"wlatin1":   "windows-1252",
	"wlatin2":   "windows-1250",
	"wcyrillic": "windows-1251",
	"wgreek":    "windows-1253",
	"wturkish":  "windows-1254",
	"whebrew":   "windows-1255",
	"warabic":   "windows-1256",
	"wbaltic":   "windows-1257",
	"latin1":    "iso-8859-1",
	"latin2":    "iso-8859-2",
	"latin9":    "iso-8859-15",
	"ascii":     "windows-1252",
	"us-ascii":  "windows-1252",
}

// ResolveEncoding maps a source file's declared encoding name to the
// golang.org/x/text/encoding.Encoding used to transcode its raw String
// values to UTF-8 (SPEC_FULL.md §3, §9: this runs unconditionally, not
// behind an option). An empty name or one already naming UTF-8 resolves to
// unicode.UTF8, whose Transformer is a validating no-op.
func ResolveEncoding(name string) (encoding.Encoding, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	switch norm {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	if alias, ok := encodingAliases[norm]; ok {
		norm = alias
	}
	enc, err := htmlindex.Get(norm)
	if err != nil {
		return nil, fmt.Errorf("metadata: unrecognized source encoding %q: %w", name, err)
	}
	return enc, nil
}

// Store is the immutable, one-shot result of a file's metadata pass.
type Store struct {
	RowCount       int64
	VarCount       int
	TableName      string
	FileLabel      string
	Encoding       string
	ResolvedEnc    encoding.Encoding
	Version        string
	CreationTime   int64
	ModifiedTime   int64
	Compression    Compression
	LittleEndian   bool
	Kind           format.FileKind
	Vars           []Variable
	ValueLabelSets map[string]*ValueLabelSet
}

// SchemaColumn is one (name, semantic type) pair of a projected or full
// schema.
type SchemaColumn struct {
	Name string
	Type SemanticType
}

// FullSchema returns the ordered (name, semantic type) pairs for every
// variable in file order.
func (s *Store) FullSchema() []SchemaColumn {
	out := make([]SchemaColumn, len(s.Vars))
	for i, v := range s.Vars {
		out[i] = SchemaColumn{Name: v.Name, Type: v.Semantic()}
	}
	return out
}

// ProjectedSchema returns the (name, semantic type) pairs restricted to
// projection (in the order given), or the full schema when projection is
// nil. An unknown column name is reported as an error so the facade can
// surface ProjectionUnknownColumn synchronously.
func (s *Store) ProjectedSchema(projection []string) ([]SchemaColumn, error) {
	if projection == nil {
		return s.FullSchema(), nil
	}
	byName := s.varsByName()
	out := make([]SchemaColumn, len(projection))
	for i, name := range projection {
		v, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		out[i] = SchemaColumn{Name: v.Name, Type: v.Semantic()}
	}
	return out, nil
}

// ProjectedIndices returns the source variable indices in projected order
// plus the reverse variable_index -> projected_pos map (-1 meaning "skip
// this column") used by the column accumulator dispatch.
func (s *Store) ProjectedIndices(projection []string) (indices []int, posOf []int, err error) {
	posOf = make([]int, len(s.Vars))
	for i := range posOf {
		posOf[i] = -1
	}

	if projection == nil {
		indices = make([]int, len(s.Vars))
		for i, v := range s.Vars {
			indices[i] = v.Index
			posOf[v.Index] = i
		}
		return indices, posOf, nil
	}

	byName := s.varsByName()
	indices = make([]int, len(projection))
	for i, name := range projection {
		v, ok := byName[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown column %q", name)
		}
		indices[i] = v.Index
		posOf[v.Index] = i
	}
	return indices, posOf, nil
}

func (s *Store) varsByName() map[string]Variable {
	m := make(map[string]Variable, len(s.Vars))
	for _, v := range s.Vars {
		m[v.Name] = v
	}
	return m
}

// ResolveLabel looks up the UTF-8 label for a raw value through v's
// value-label set. ok is false when the variable has no label set, or the
// key is unlabelled (callers stringify the raw value themselves in that
// case per SPEC_FULL.md §9).
func (s *Store) ResolveLabel(v Variable, key LabelKey) (string, bool) {
	if v.ValueLabelSetName == "" {
		return "", false
	}
	set, ok := s.ValueLabelSets[v.ValueLabelSetName]
	if !ok {
		return "", false
	}
	label, ok := set.Labels[key]
	return label, ok
}
