// Package partition divides a row range into contiguous, whole-chunk
// worker assignments. It is a pure function of (total_rows, chunk_size,
// thread_budget): the same inputs always produce the same plan, which is
// what lets the Streaming Orchestrator guarantee deterministic chunk
// ordering independent of actual thread count (SPEC_FULL.md §4.6/§4.7).
package partition

import "fmt"

// Range is one worker's contiguous row assignment.
type Range struct {
	WorkerIndex int
	StartChunk  int
	EndChunk    int // exclusive
	RowOffset   int64
	RowLimit    int64
}

// Plan is the full assignment for one scan.
type Plan struct {
	NChunks int
	PRow    int
	Ranges  []Range // len <= PRow; empty ranges are never spawned
}

// Build computes the partition plan for totalRows rows read in chunkSize
// batches across at most threadBudget workers, per SPEC_FULL.md §4.6:
//
//   - n_chunks = ceil(total_rows / chunk_size)
//   - p_row = min(thread_budget, n_chunks); p_row = 1 if that is 0
//   - chunks_per_worker = ceil(n_chunks / p_row)
//   - worker i gets chunk indices [i*chunks_per_worker, min((i+1)*chunks_per_worker, n_chunks))
//
// A worker whose chunk range would be empty (i.e. start_chunk >= n_chunks)
// is omitted from Plan.Ranges entirely.
func Build(totalRows int64, chunkSize int, threadBudget int) (Plan, error) {
	if chunkSize <= 0 {
		return Plan{}, fmt.Errorf("partition: chunk_size must be >= 1, got %d", chunkSize)
	}
	if totalRows < 0 {
		return Plan{}, fmt.Errorf("partition: total_rows must be >= 0, got %d", totalRows)
	}

	nChunks := ceilDiv(totalRows, int64(chunkSize))

	pRow := threadBudget
	if int64(pRow) > nChunks {
		pRow = int(nChunks)
	}
	if pRow <= 0 {
		pRow = 1
	}

	if nChunks == 0 {
		return Plan{NChunks: 0, PRow: pRow, Ranges: nil}, nil
	}

	chunksPerWorker := ceilDiv(nChunks, int64(pRow))

	ranges := make([]Range, 0, pRow)
	for i := 0; i < pRow; i++ {
		startChunk := int64(i) * chunksPerWorker
		if startChunk >= nChunks {
			break
		}
		endChunk := startChunk + chunksPerWorker
		if endChunk > nChunks {
			endChunk = nChunks
		}

		rowOffset := startChunk * int64(chunkSize)
		rowLimit := (endChunk - startChunk) * int64(chunkSize)
		if remaining := totalRows - rowOffset; rowLimit > remaining {
			rowLimit = remaining
		}

		ranges = append(ranges, Range{
			WorkerIndex: i,
			StartChunk:  int(startChunk),
			EndChunk:    int(endChunk),
			RowOffset:   rowOffset,
			RowLimit:    rowLimit,
		})
	}

	return Plan{NChunks: int(nChunks), PRow: pRow, Ranges: ranges}, nil
}

func ceilDiv(a, b int64) int64 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}
