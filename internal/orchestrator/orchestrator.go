// Package orchestrator bridges the callback-driven Parser Adapter to a
// pull-based consumer: it spawns one Chunk Builder goroutine per
// partition, reassembles their output in file order or interleaved order,
// and exposes a single Next method (SPEC_FULL.md §4.7).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/statreader/statreader/internal/accumulator"
	"github.com/statreader/statreader/internal/chunkbuilder"
	"github.com/statreader/statreader/internal/filesource"
	"github.com/statreader/statreader/internal/metadata"
	"github.com/statreader/statreader/internal/metrics"
	"github.com/statreader/statreader/internal/parser"
	"github.com/statreader/statreader/internal/partition"
	"github.com/statreader/statreader/pkg/log"
)

// Batch is one reassembled, ready-to-emit chunk.
type Batch struct {
	Columns []*accumulator.Column
}

// Config are the construction inputs of one orchestrator run.
type Config struct {
	Meta    *metadata.Store
	Factory parser.Factory
	Path    string
	Handle  filesource.FileHandle

	ProjectedIndices []int
	ProjectedNames   []string
	ProjectedPos     []int

	ChunkSize     int
	ThreadBudget  int
	PreserveOrder bool
	Offset        int64
	Limit         int64 // 0 means "no limit"

	ValueLabelsAsStrings bool
	MissingStringAsNull  bool

	// Semaphore, when set, additionally bounds concurrently-running
	// workers across every orchestrator sharing it (a process-wide
	// thread_budget hosted by a Reader Pool), not just this run's own.
	Semaphore *semaphore.Weighted

	Metrics *metrics.Registry
}

type msgKind int

const (
	msgData msgKind = iota
	msgDone
	msgFailed
)

type message struct {
	kind             msgKind
	workerID         int
	chunkIndexGlobal int
	columns          []*accumulator.Column
	err              error
}

// Orchestrator owns one scan's worker pool and reassembly state. It is
// driven by a single consumer goroutine calling Next; workers run
// concurrently in the background.
type Orchestrator struct {
	cfg      Config
	streamID uuid.UUID

	cancelled atomic.Bool
	ch        chan message
	wg        sync.WaitGroup

	totalWorkers     int
	completedWorkers int
	nextToEmit       int
	reorderBuf       map[int]message
	terminated       bool
	firstErr         error
}

// New computes the partition plan, applies slice pushdown, and spawns one
// worker goroutine per non-empty partition.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Meta == nil {
		return nil, fmt.Errorf("orchestrator: Meta must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("orchestrator: chunk_size must be >= 1")
	}

	totalRows := cfg.Meta.RowCount - cfg.Offset
	if totalRows < 0 {
		totalRows = 0
	}
	if cfg.Limit > 0 && cfg.Limit < totalRows {
		totalRows = cfg.Limit
	}

	plan, err := partition.Build(totalRows, cfg.ChunkSize, cfg.ThreadBudget)
	if err != nil {
		return nil, err
	}

	streamID := uuid.New()
	o := &Orchestrator{
		cfg:          cfg,
		streamID:     streamID,
		ch:           make(chan message, channelCapacity(cfg.ThreadBudget)),
		totalWorkers: len(plan.Ranges),
		reorderBuf:   make(map[int]message, len(plan.Ranges)),
	}

	log.Infof("orchestrator[%s]: plan n_chunks=%d p_row=%d workers=%d", streamID, plan.NChunks, plan.PRow, len(plan.Ranges))

	for _, r := range plan.Ranges {
		o.wg.Add(1)
		go o.runWorker(r)
	}
	if len(plan.Ranges) == 0 {
		close(o.ch)
	}
	return o, nil
}

func channelCapacity(threadBudget int) int {
	if threadBudget < 1 {
		threadBudget = 1
	}
	return threadBudget * 4
}

func (o *Orchestrator) runWorker(r partition.Range) {
	defer o.wg.Done()

	if o.cfg.Semaphore != nil {
		if err := o.cfg.Semaphore.Acquire(context.Background(), 1); err != nil {
			o.send(message{kind: msgFailed, workerID: r.WorkerIndex, err: fmt.Errorf("orchestrator[%s]: acquire thread budget: %w", o.streamID, err)})
			return
		}
		defer o.cfg.Semaphore.Release(1)
	}

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ActiveWorkers.Inc()
		defer o.cfg.Metrics.ActiveWorkers.Dec()
	}

	p, err := o.cfg.Factory(o.cfg.Meta.Kind)
	if err != nil {
		o.send(message{kind: msgFailed, workerID: r.WorkerIndex, err: err})
		return
	}

	reader, err := o.cfg.Handle.Clone()
	if err != nil {
		o.send(message{kind: msgFailed, workerID: r.WorkerIndex, err: fmt.Errorf("orchestrator[%s]: clone file handle: %w", o.streamID, err)})
		return
	}
	defer reader.Close()

	builder := &chunkbuilder.Builder{
		Meta:                 o.cfg.Meta,
		Parser:               p,
		Path:                 o.cfg.Path,
		Reader:               reader,
		Size:                 reader.Size(),
		RowOffset:            o.cfg.Offset + r.RowOffset,
		RowLimit:             r.RowLimit,
		ChunkSize:            o.cfg.ChunkSize,
		ProjectedIndices:     o.cfg.ProjectedIndices,
		ProjectedNames:       o.cfg.ProjectedNames,
		ProjectedPos:         o.cfg.ProjectedPos,
		ValueLabelsAsStrings: o.cfg.ValueLabelsAsStrings,
		MissingStringAsNull:  o.cfg.MissingStringAsNull,
		Cancelled:            &o.cancelled,
	}

	sink := chunkbuilder.SinkFunc(func(c chunkbuilder.Chunk) error {
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.ChunksEmitted.WithLabelValues(o.cfg.Meta.Kind.String()).Inc()
			o.cfg.Metrics.RowsDecoded.WithLabelValues(o.cfg.Meta.Kind.String()).Add(float64(c.Len()))
		}
		o.send(message{
			kind:             msgData,
			workerID:         r.WorkerIndex,
			chunkIndexGlobal: r.StartChunk + c.LocalIndex,
			columns:          c.Columns,
		})
		return nil
	})

	if err := builder.Run(sink); err != nil {
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.ParseErrors.WithLabelValues(o.cfg.Meta.Kind.String(), errorKind(err)).Inc()
		}
		log.Warnf("orchestrator[%s]: worker %d failed: %v", o.streamID, r.WorkerIndex, err)
		o.cancelled.Store(true)
		o.send(message{kind: msgFailed, workerID: r.WorkerIndex, err: err})
		return
	}

	o.send(message{kind: msgDone, workerID: r.WorkerIndex})
}

func errorKind(err error) string {
	if pe, ok := err.(*parser.Error); ok {
		switch pe.Kind {
		case parser.KindCorrupt:
			return "corrupt"
		case parser.KindUserAbort:
			return "user_abort"
		case parser.KindUnsupported:
			return "unsupported"
		case parser.KindFileNotFound:
			return "file_not_found"
		case parser.KindOutOfMemory:
			return "out_of_memory"
		}
	}
	return "internal"
}

// send delivers msg to the orchestrator, blocking on backpressure. It
// recovers from a send on a closed channel: that only happens after
// Close has already torn the run down, at which point the message is
// moot.
func (o *Orchestrator) send(msg message) {
	defer func() { recover() }()
	o.ch <- msg
}

// Cancel sets the shared cancellation flag observed by every worker.
// Workers check it at least once per row and terminate within at most
// one row of work; Next then drains to "end" or the first error.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

// Close cancels all workers and joins them. It must be called exactly
// once, when the consumer is done with the orchestrator (including on
// early abandonment). It drains the channel while waiting so a worker
// blocked on a full-channel send (backpressure) can still observe
// cancellation and exit instead of leaking.
func (o *Orchestrator) Close() {
	o.cancelled.Store(true)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		case <-o.ch:
		}
	}
}

// Next returns the next reassembled batch in the order PreserveOrder
// requires, or (nil, nil) at end of stream, or (nil, err) once a worker
// failure has been observed. Once an error or end has been returned,
// every subsequent call returns the same terminal result. The caller
// must still call Close once it stops calling Next, even after a
// terminal result, so any worker still in flight is cancelled and
// joined instead of leaking.
func (o *Orchestrator) Next() (*Batch, error) {
	if o.terminated {
		if o.firstErr != nil {
			return nil, o.firstErr
		}
		return nil, nil
	}

	if o.cfg.PreserveOrder {
		return o.nextOrdered()
	}
	return o.nextUnordered()
}

func (o *Orchestrator) nextOrdered() (*Batch, error) {
	for {
		if msg, ok := o.reorderBuf[o.nextToEmit]; ok {
			delete(o.reorderBuf, o.nextToEmit)
			o.nextToEmit++
			return &Batch{Columns: msg.columns}, nil
		}
		if o.completedWorkers == o.totalWorkers && len(o.reorderBuf) == 0 {
			o.terminate(nil)
			return nil, nil
		}

		msg, open := <-o.ch
		if !open {
			o.terminate(nil)
			return nil, nil
		}
		switch msg.kind {
		case msgData:
			o.reorderBuf[msg.chunkIndexGlobal] = msg
		case msgDone:
			o.completedWorkers++
		case msgFailed:
			o.terminate(msg.err)
			return nil, msg.err
		}
	}
}

func (o *Orchestrator) nextUnordered() (*Batch, error) {
	for {
		if o.completedWorkers == o.totalWorkers {
			o.terminate(nil)
			return nil, nil
		}

		msg, open := <-o.ch
		if !open {
			o.terminate(nil)
			return nil, nil
		}
		switch msg.kind {
		case msgData:
			return &Batch{Columns: msg.columns}, nil
		case msgDone:
			o.completedWorkers++
		case msgFailed:
			o.terminate(msg.err)
			return nil, msg.err
		}
	}
}

func (o *Orchestrator) terminate(err error) {
	o.terminated = true
	o.firstErr = err
	if err != nil {
		o.cancelled.Store(true)
	}
}
