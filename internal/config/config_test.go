package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Defaults(t *testing.T) {
	opts, err := Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, opts.ChunkSize)
	assert.Equal(t, DefaultThreadBudget, opts.ThreadBudget)
}

func TestResolve_DecodesAndKeepsExplicitValues(t *testing.T) {
	raw := []byte(`{
		"chunk_size": 500,
		"thread_budget": 8,
		"offset": 10,
		"limit": 1000,
		"projection": ["id", "name"],
		"preserve_order": true,
		"use_mmap": true,
		"value_labels_as_strings": true,
		"s3_endpoint": "http://localhost:9000",
		"s3_use_path_style": true,
		"metadata_cache_ttl": "5m"
	}`)

	opts, err := Resolve(raw)
	require.NoError(t, err)
	assert.Equal(t, 500, opts.ChunkSize)
	assert.Equal(t, 8, opts.ThreadBudget)
	assert.Equal(t, int64(10), opts.Offset)
	assert.Equal(t, int64(1000), opts.Limit)
	assert.Equal(t, []string{"id", "name"}, opts.Projection)
	assert.True(t, opts.PreserveOrder)
	assert.True(t, opts.UseMmap)
	assert.True(t, opts.ValueLabelsAsStrings)
	assert.Equal(t, "http://localhost:9000", opts.S3Endpoint)
	assert.True(t, opts.S3UsePathStyle)

	ttl, err := opts.MetadataCacheTTLDuration()
	require.NoError(t, err)
	assert.Equal(t, int64(5*60*1e9), int64(ttl))
}

func TestResolve_ZeroChunkSizeFallsBackToDefault(t *testing.T) {
	opts, err := Resolve([]byte(`{"chunk_size": 0}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, opts.ChunkSize)
}

func TestResolve_RejectsUnknownField(t *testing.T) {
	_, err := Resolve([]byte(`{"not_a_real_option": 1}`))
	assert.Error(t, err)
}

func TestResolve_RejectsNegativeOffset(t *testing.T) {
	_, err := Resolve([]byte(`{"offset": -1}`))
	assert.Error(t, err)
}

func TestMetadataCacheTTLDuration_EmptyMeansForever(t *testing.T) {
	var o Options
	d, err := o.MetadataCacheTTLDuration()
	require.NoError(t, err)
	assert.Zero(t, d)
}
