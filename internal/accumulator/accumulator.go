// Package accumulator implements one append-only typed buffer per
// projected column. Buffers are pooled so that repeated chunk-sized
// allocations do not thrash the allocator across a long-running scan.
package accumulator

import (
	"fmt"
	"sync"

	"github.com/statreader/statreader/internal/metadata"
)

// Column is the materialized, immutable result of Accumulator.Finish: a
// typed columnar array tagged with its semantic type. Exactly one of the
// typed slices is populated, selected by Type.
type Column struct {
	Name  string
	Type  metadata.SemanticType
	Valid []bool // Valid[i] == false means row i is null; same length as the column.

	Strings   []string
	Int8s     []int8
	Int16s    []int16
	Int32s    []int32
	Int64s    []int64 // also used for Time (microseconds) and DateTime (ms)
	Float32s  []float32
	Float64s  []float64
	Dates     []int32 // days since 1970-01-01
}

// Len returns the column's row count.
func (c *Column) Len() int {
	return len(c.Valid)
}

// Accumulator is a single projected column's append-only buffer between
// chunk boundaries. It is not safe for concurrent use; one worker owns one
// set of accumulators at a time (§4.3 of SPEC_FULL.md).
type Accumulator struct {
	name string
	typ  metadata.SemanticType
	cap  int

	valid []bool

	strings  []string
	int8s    []int8
	int16s   []int16
	int32s   []int32
	int64s   []int64
	float32s []float32
	float64s []float64
	dates    []int32
}

var pool sync.Pool = sync.Pool{
	New: func() any { return &Accumulator{} },
}

// New returns a fresh (possibly pooled) Accumulator sized for at most cap
// rows. Call Finish exactly once when the chunk is sealed; the backing
// arrays are then owned by the returned Column and the Accumulator itself
// must not be reused directly (acquire a new one via New instead).
//
// Finish hands its backing arrays directly to the returned Column rather
// than copying them, so New always allocates fresh arrays here: the ones
// from the last use of this pooled shell left with a Column on its way to
// the consumer.
func New(name string, typ metadata.SemanticType, cap int) *Accumulator {
	a := pool.Get().(*Accumulator)
	a.name = name
	a.typ = typ
	a.cap = cap
	a.valid = make([]bool, 0, cap)
	switch typ {
	case metadata.SemString:
		a.strings = make([]string, 0, cap)
	case metadata.SemInt8:
		a.int8s = make([]int8, 0, cap)
	case metadata.SemInt16:
		a.int16s = make([]int16, 0, cap)
	case metadata.SemInt32:
		a.int32s = make([]int32, 0, cap)
	case metadata.SemFloat32:
		a.float32s = make([]float32, 0, cap)
	case metadata.SemFloat64:
		a.float64s = make([]float64, 0, cap)
	case metadata.SemDate:
		a.dates = make([]int32, 0, cap)
	case metadata.SemTime, metadata.SemDateTime:
		a.int64s = make([]int64, 0, cap)
	}
	return a
}

func (a *Accumulator) Len() int { return len(a.valid) }

// Name returns the projected column name this accumulator was created for.
func (a *Accumulator) Name() string { return a.name }

// Cap returns the target row capacity this accumulator was sized for.
func (a *Accumulator) Cap() int { return a.cap }

func (a *Accumulator) PushNull() {
	a.valid = append(a.valid, false)
	switch a.typ {
	case metadata.SemString:
		a.strings = append(a.strings, "")
	case metadata.SemInt8:
		a.int8s = append(a.int8s, 0)
	case metadata.SemInt16:
		a.int16s = append(a.int16s, 0)
	case metadata.SemInt32:
		a.int32s = append(a.int32s, 0)
	case metadata.SemFloat32:
		a.float32s = append(a.float32s, 0)
	case metadata.SemFloat64:
		a.float64s = append(a.float64s, 0)
	case metadata.SemDate:
		a.dates = append(a.dates, 0)
	case metadata.SemTime, metadata.SemDateTime:
		a.int64s = append(a.int64s, 0)
	}
}

func (a *Accumulator) PushString(s string) {
	if a.typ != metadata.SemString {
		panic(fmt.Sprintf("accumulator %q: PushString on %s column", a.name, a.typ))
	}
	a.valid = append(a.valid, true)
	a.strings = append(a.strings, s)
}

func (a *Accumulator) PushInt8(v int8) {
	a.valid = append(a.valid, true)
	a.int8s = append(a.int8s, v)
}

func (a *Accumulator) PushInt16(v int16) {
	a.valid = append(a.valid, true)
	a.int16s = append(a.int16s, v)
}

func (a *Accumulator) PushInt32(v int32) {
	a.valid = append(a.valid, true)
	a.int32s = append(a.int32s, v)
}

func (a *Accumulator) PushFloat32(v float32) {
	a.valid = append(a.valid, true)
	a.float32s = append(a.float32s, v)
}

func (a *Accumulator) PushFloat64(v float64) {
	a.valid = append(a.valid, true)
	a.float64s = append(a.float64s, v)
}

func (a *Accumulator) PushDate(days int32) {
	a.valid = append(a.valid, true)
	a.dates = append(a.dates, days)
}

func (a *Accumulator) PushTime(micros int64) {
	a.valid = append(a.valid, true)
	a.int64s = append(a.int64s, micros)
}

func (a *Accumulator) PushDateTime(ms int64) {
	a.valid = append(a.valid, true)
	a.int64s = append(a.int64s, ms)
}

// Finish takes ownership of the accumulator's buffers and returns them as
// a Column. It must be called exactly once; the Accumulator is returned to
// the pool and must not be touched again by the caller.
func (a *Accumulator) Finish() *Column {
	col := &Column{
		Name:  a.name,
		Type:  a.typ,
		Valid: a.valid,
	}
	switch a.typ {
	case metadata.SemString:
		col.Strings = a.strings
	case metadata.SemInt8:
		col.Int8s = a.int8s
	case metadata.SemInt16:
		col.Int16s = a.int16s
	case metadata.SemInt32:
		col.Int32s = a.int32s
	case metadata.SemFloat32:
		col.Float32s = a.float32s
	case metadata.SemFloat64:
		col.Float64s = a.float64s
	case metadata.SemDate:
		col.Dates = a.dates
	case metadata.SemTime, metadata.SemDateTime:
		col.Int64s = a.int64s
	}

	a.valid, a.strings, a.int8s, a.int16s, a.int32s = nil, nil, nil, nil, nil
	a.float32s, a.float64s, a.dates, a.int64s = nil, nil, nil, nil
	pool.Put(a)
	return col
}
