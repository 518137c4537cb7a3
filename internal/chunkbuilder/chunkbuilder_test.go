package chunkbuilder

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statreader/statreader/internal/format"
	"github.com/statreader/statreader/internal/metadata"
	"github.com/statreader/statreader/internal/parser"
)

// Scenario 1 of the end-to-end seed tests.
func scenario1Meta() *metadata.Store {
	return &metadata.Store{
		RowCount: 5,
		Kind:     format.SAS7BDAT,
		Vars: []metadata.Variable{
			{Index: 0, Name: "id", RawType: metadata.RawInt32},
			{Index: 1, Name: "name", RawType: metadata.RawString},
			{Index: 2, Name: "dob", RawType: metadata.RawFloat64, FormatClass: format.Date},
		},
	}
}

func scenario1Rows() [][]parser.RawValue {
	return [][]parser.RawValue{
		{{I32: 1}, {Str: "A"}, {F64: 0.0}},
		{{I32: 2}, {Str: "B"}, {F64: 1.0}},
		{{I32: 3}, {Str: "C"}, {Missing: true}},
		{{I32: 4}, {Str: "D"}, {F64: -3653.0}},
		{{I32: 5}, {Str: "E"}, {F64: 3653.0}},
	}
}

func fullProjection(meta *metadata.Store) ([]int, []string, []int) {
	indices, pos, err := meta.ProjectedIndices(nil)
	if err != nil {
		panic(err)
	}
	names := make([]string, len(meta.Vars))
	for i, v := range meta.Vars {
		names[i] = v.Name
	}
	return indices, names, pos
}

func TestBuilder_Scenario1(t *testing.T) {
	meta := scenario1Meta()
	indices, names, pos := fullProjection(meta)
	p := parser.NewFake(format.SAS7BDAT, meta, scenario1Rows())

	b := &Builder{
		Meta:             meta,
		Parser:           p,
		ChunkSize:        2,
		ProjectedIndices: indices,
		ProjectedNames:   names,
		ProjectedPos:     pos,
		Cancelled:        &atomic.Bool{},
	}

	var chunks []Chunk
	err := b.Run(SinkFunc(func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	}))
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, 2, chunks[0].Len())
	assert.Equal(t, 2, chunks[1].Len())
	assert.Equal(t, 1, chunks[2].Len())

	var dobValid []bool
	var dobDates []int32
	for _, c := range chunks {
		for _, col := range c.Columns {
			if col.Name == "dob" {
				dobValid = append(dobValid, col.Valid...)
				dobDates = append(dobDates, col.Dates...)
			}
		}
	}
	assert.Equal(t, []bool{true, true, false, true, true}, dobValid)
	assert.Equal(t, []int32{-3653, -3652, 0, -7306, 0}, dobDates)
}

// Scenario 4: projection reorders and restricts columns.
func TestBuilder_ProjectionReordersColumns(t *testing.T) {
	meta := scenario1Meta()
	p := parser.NewFake(format.SAS7BDAT, meta, scenario1Rows())

	indices, pos, err := meta.ProjectedIndices([]string{"dob", "id"})
	require.NoError(t, err)

	b := &Builder{
		Meta:             meta,
		Parser:           p,
		ChunkSize:        10,
		ProjectedIndices: indices,
		ProjectedNames:   []string{"dob", "id"},
		ProjectedPos:     pos,
		Cancelled:        &atomic.Bool{},
	}

	var chunks []Chunk
	err = b.Run(SinkFunc(func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	}))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Columns, 2)
	assert.Equal(t, "dob", chunks[0].Columns[0].Name)
	assert.Equal(t, "id", chunks[0].Columns[1].Name)
}

// Scenario 7: slice pushdown, offset=990 limit=1000 on a 1000-row file
// should yield exactly 10 rows; here with a smaller file, offset near the
// end with a too-large limit clamps to the rows actually remaining.
func TestBuilder_OffsetNearEndClampsToRemaining(t *testing.T) {
	meta := scenario1Meta()
	p := parser.NewFake(format.SAS7BDAT, meta, scenario1Rows())
	indices, names, pos := fullProjection(meta)

	b := &Builder{
		Meta:             meta,
		Parser:           p,
		RowOffset:        3,
		RowLimit:         1000,
		ChunkSize:        10,
		ProjectedIndices: indices,
		ProjectedNames:   names,
		ProjectedPos:     pos,
		Cancelled:        &atomic.Bool{},
	}

	var total int
	err := b.Run(SinkFunc(func(c Chunk) error {
		total += c.Len()
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestBuilder_MissingStringAsNull(t *testing.T) {
	meta := &metadata.Store{
		RowCount: 2,
		Kind:     format.SAS7BDAT,
		Vars:     []metadata.Variable{{Index: 0, Name: "name", RawType: metadata.RawString}},
	}
	rows := [][]parser.RawValue{{{Str: ""}}, {{Str: "x"}}}
	p := parser.NewFake(format.SAS7BDAT, meta, rows)
	indices, names, pos := fullProjection(meta)

	b := &Builder{
		Meta:                meta,
		Parser:              p,
		ChunkSize:            10,
		ProjectedIndices:     indices,
		ProjectedNames:       names,
		ProjectedPos:         pos,
		MissingStringAsNull:  true,
		Cancelled:            &atomic.Bool{},
	}

	var col *struct {
		valid []bool
	}
	_ = col
	var got []bool
	err := b.Run(SinkFunc(func(c Chunk) error {
		got = append(got, c.Columns[0].Valid...)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, got)
}

func TestBuilder_ValueLabelsAsStrings(t *testing.T) {
	meta := &metadata.Store{
		RowCount: 3,
		Kind:     format.SAS7BDAT,
		Vars: []metadata.Variable{
			{Index: 0, Name: "sex", RawType: metadata.RawInt32, ValueLabelSetName: "sexfmt"},
		},
		ValueLabelSets: map[string]*metadata.ValueLabelSet{
			"sexfmt": {
				Name: "sexfmt",
				Labels: map[metadata.LabelKey]string{
					{Kind: metadata.KeyInt32, I32: 1}: "Male",
					{Kind: metadata.KeyInt32, I32: 2}: "Female",
				},
			},
		},
	}
	rows := [][]parser.RawValue{{{I32: 1}}, {{I32: 2}}, {{I32: 9}}}
	p := parser.NewFake(format.SAS7BDAT, meta, rows)
	indices, names, pos := fullProjection(meta)

	b := &Builder{
		Meta:                 meta,
		Parser:               p,
		ChunkSize:             10,
		ProjectedIndices:      indices,
		ProjectedNames:        names,
		ProjectedPos:          pos,
		ValueLabelsAsStrings:  true,
		Cancelled:             &atomic.Bool{},
	}

	var strs []string
	err := b.Run(SinkFunc(func(c Chunk) error {
		assert.Equal(t, metadata.SemString, c.Columns[0].Type)
		strs = append(strs, c.Columns[0].Strings...)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Male", "Female", "9"}, strs)
}

func TestBuilder_ZeroRowsYieldsZeroChunks(t *testing.T) {
	meta := &metadata.Store{RowCount: 0, Kind: format.SAS7BDAT}
	p := parser.NewFake(format.SAS7BDAT, meta, nil)

	b := &Builder{
		Meta:      meta,
		Parser:    p,
		ChunkSize: 10,
		Cancelled: &atomic.Bool{},
	}

	called := false
	err := b.Run(SinkFunc(func(c Chunk) error { called = true; return nil }))
	require.NoError(t, err)
	assert.False(t, called)
}

func TestBuilder_CorruptionStopsAndPreservesPriorChunks(t *testing.T) {
	meta := &metadata.Store{
		RowCount: 5,
		Kind:     format.SAS7BDAT,
		Vars:     []metadata.Variable{{Index: 0, Name: "v", RawType: metadata.RawInt32}},
	}
	rows := make([][]parser.RawValue, 5)
	for i := range rows {
		rows[i] = []parser.RawValue{{I32: int32(i)}}
	}
	p := parser.NewFake(format.SAS7BDAT, meta, rows)
	p.CorruptAtRow = 3
	indices, names, pos := fullProjection(meta)

	b := &Builder{
		Meta:             meta,
		Parser:           p,
		ChunkSize:        1,
		ProjectedIndices: indices,
		ProjectedNames:   names,
		ProjectedPos:     pos,
		Cancelled:        &atomic.Bool{},
	}

	var chunks []Chunk
	err := b.Run(SinkFunc(func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	}))
	require.Error(t, err)
	assert.Len(t, chunks, 3) // rows 0,1,2 sealed before hitting row 3
}
