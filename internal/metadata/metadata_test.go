package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statreader/statreader/internal/format"
)

// Invariant 4 of the spec's testable properties: dtype is a pure function
// of (raw_type, format_class) only.
func TestSemanticTypeOf_PureFunction(t *testing.T) {
	assert.Equal(t, SemString, SemanticTypeOf(RawString, format.None))
	assert.Equal(t, SemString, SemanticTypeOf(RawString, format.Date)) // format_class is ignored for non-Float64 raw types
	assert.Equal(t, SemInt8, SemanticTypeOf(RawInt8, format.None))
	assert.Equal(t, SemInt16, SemanticTypeOf(RawInt16, format.None))
	assert.Equal(t, SemInt32, SemanticTypeOf(RawInt32, format.None))
	assert.Equal(t, SemFloat32, SemanticTypeOf(RawFloat32, format.Date)) // Float32 never gets date/time semantics
	assert.Equal(t, SemFloat64, SemanticTypeOf(RawFloat64, format.None))
	assert.Equal(t, SemDate, SemanticTypeOf(RawFloat64, format.Date))
	assert.Equal(t, SemTime, SemanticTypeOf(RawFloat64, format.Time))
	assert.Equal(t, SemDateTime, SemanticTypeOf(RawFloat64, format.DateTime))
}

func testStore() *Store {
	return &Store{
		RowCount: 5,
		VarCount: 3,
		Kind:     format.SAS7BDAT,
		Vars: []Variable{
			{Index: 0, Name: "id", RawType: RawInt32},
			{Index: 1, Name: "name", RawType: RawString},
			{Index: 2, Name: "dob", RawType: RawFloat64, FormatClass: format.Date},
		},
	}
}

func TestStore_FullSchema(t *testing.T) {
	s := testStore()
	schema := s.FullSchema()
	require.Len(t, schema, 3)
	assert.Equal(t, SchemaColumn{Name: "id", Type: SemInt32}, schema[0])
	assert.Equal(t, SchemaColumn{Name: "name", Type: SemString}, schema[1])
	assert.Equal(t, SchemaColumn{Name: "dob", Type: SemDate}, schema[2])
}

func TestStore_ProjectedSchema(t *testing.T) {
	s := testStore()

	schema, err := s.ProjectedSchema([]string{"dob", "id"})
	require.NoError(t, err)
	assert.Equal(t, []SchemaColumn{{Name: "dob", Type: SemDate}, {Name: "id", Type: SemInt32}}, schema)

	_, err = s.ProjectedSchema([]string{"nope"})
	assert.Error(t, err)

	schema, err = s.ProjectedSchema(nil)
	require.NoError(t, err)
	assert.Len(t, schema, 3)
}

func TestStore_ProjectedIndices(t *testing.T) {
	s := testStore()

	indices, posOf, err := s.ProjectedIndices([]string{"dob", "id"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, indices)
	assert.Equal(t, []int{1, -1, 0}, posOf) // id -> pos 1, name skipped, dob -> pos 0

	_, _, err = s.ProjectedIndices([]string{"unknown"})
	assert.Error(t, err)

	indices, posOf, err = s.ProjectedIndices(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, indices)
	assert.Equal(t, []int{0, 1, 2}, posOf)
}

func TestStore_ResolveLabel(t *testing.T) {
	s := testStore()
	s.Vars[0].ValueLabelSetName = "sexfmt"
	s.ValueLabelSets = map[string]*ValueLabelSet{
		"sexfmt": {
			Name: "sexfmt",
			Labels: map[LabelKey]string{
				{Kind: KeyInt32, I32: 1}: "Male",
				{Kind: KeyInt32, I32: 2}: "Female",
			},
		},
	}

	label, ok := s.ResolveLabel(s.Vars[0], LabelKey{Kind: KeyInt32, I32: 1})
	assert.True(t, ok)
	assert.Equal(t, "Male", label)

	_, ok = s.ResolveLabel(s.Vars[0], LabelKey{Kind: KeyInt32, I32: 99})
	assert.False(t, ok)

	_, ok = s.ResolveLabel(s.Vars[1], LabelKey{Kind: KeyInt32, I32: 1})
	assert.False(t, ok)
}

func TestVariable_Semantic(t *testing.T) {
	v := Variable{RawType: RawFloat64, FormatClass: format.Time}
	assert.Equal(t, SemTime, v.Semantic())
}
