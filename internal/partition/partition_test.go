package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_EvenSplit(t *testing.T) {
	plan, err := Build(1000, 100, 4)
	require.NoError(t, err)

	assert.Equal(t, 10, plan.NChunks)
	assert.Equal(t, 4, plan.PRow)
	require.Len(t, plan.Ranges, 4)

	assert.Equal(t, Range{WorkerIndex: 0, StartChunk: 0, EndChunk: 3, RowOffset: 0, RowLimit: 300}, plan.Ranges[0])
	assert.Equal(t, Range{WorkerIndex: 1, StartChunk: 3, EndChunk: 6, RowOffset: 300, RowLimit: 300}, plan.Ranges[1])
	assert.Equal(t, Range{WorkerIndex: 2, StartChunk: 6, EndChunk: 9, RowOffset: 600, RowLimit: 300}, plan.Ranges[2])
	assert.Equal(t, Range{WorkerIndex: 3, StartChunk: 9, EndChunk: 10, RowOffset: 900, RowLimit: 100}, plan.Ranges[3])
}

func TestBuild_MoreWorkersThanChunks(t *testing.T) {
	// 3 chunks, 8 requested workers: only 3 non-empty ranges are spawned.
	plan, err := Build(250, 100, 8)
	require.NoError(t, err)

	assert.Equal(t, 3, plan.NChunks)
	assert.Equal(t, 3, plan.PRow)
	require.Len(t, plan.Ranges, 3)
	for i, r := range plan.Ranges {
		assert.Equal(t, i, r.WorkerIndex)
		assert.Equal(t, 1, r.EndChunk-r.StartChunk)
	}
	assert.Equal(t, int64(50), plan.Ranges[2].RowLimit)
}

func TestBuild_ZeroThreadBudgetFallsBackToOne(t *testing.T) {
	plan, err := Build(500, 100, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.PRow)
	require.Len(t, plan.Ranges, 1)
	assert.Equal(t, int64(0), plan.Ranges[0].RowOffset)
	assert.Equal(t, int64(500), plan.Ranges[0].RowLimit)
}

func TestBuild_ZeroRows(t *testing.T) {
	plan, err := Build(0, 100, 4)
	require.NoError(t, err)

	assert.Equal(t, 0, plan.NChunks)
	assert.Empty(t, plan.Ranges)
}

func TestBuild_LastChunkPartial(t *testing.T) {
	plan, err := Build(1050, 100, 1)
	require.NoError(t, err)

	assert.Equal(t, 11, plan.NChunks)
	require.Len(t, plan.Ranges, 1)
	assert.Equal(t, int64(1050), plan.Ranges[0].RowLimit)
}

func TestBuild_SingleChunkSingleWorker(t *testing.T) {
	plan, err := Build(10, 100, 4)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.NChunks)
	assert.Equal(t, 1, plan.PRow)
	require.Len(t, plan.Ranges, 1)
	assert.Equal(t, int64(10), plan.Ranges[0].RowLimit)
}

func TestBuild_InvalidChunkSize(t *testing.T) {
	_, err := Build(100, 0, 4)
	assert.Error(t, err)
}

func TestBuild_NegativeTotalRows(t *testing.T) {
	_, err := Build(-1, 100, 4)
	assert.Error(t, err)
}

// Determinism: the plan depends only on (total_rows, chunk_size,
// thread_budget), never on anything observed at run time.
func TestBuild_Deterministic(t *testing.T) {
	p1, err := Build(12345, 64, 6)
	require.NoError(t, err)
	p2, err := Build(12345, 64, 6)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

// Coverage: ranges partition [0, total_rows) exactly, without gaps or
// overlaps, regardless of thread_budget.
func TestBuild_RangesCoverWholeFile(t *testing.T) {
	for _, tb := range []int{1, 2, 3, 5, 7, 16} {
		plan, err := Build(977, 37, tb)
		require.NoError(t, err)

		var covered int64
		var prevEnd int64
		for _, r := range plan.Ranges {
			assert.Equal(t, prevEnd, r.RowOffset, "thread_budget=%d", tb)
			covered += r.RowLimit
			prevEnd = r.RowOffset + r.RowLimit
		}
		assert.Equal(t, int64(977), covered, "thread_budget=%d", tb)
	}
}
