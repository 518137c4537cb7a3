// Package statreader is the public Lazy Scan Facade: it adapts a host
// lazy-dataframe engine's anonymous-scan contract (schema, projection
// pushdown, slice pushdown, next_batch) to the Streaming Orchestrator,
// resolving the file through a File Source and caching its metadata pass
// across repeated opens of the same URI (SPEC_FULL.md §4.8).
package statreader

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/statreader/statreader/internal/config"
	"github.com/statreader/statreader/internal/filesource"
	"github.com/statreader/statreader/internal/format"
	"github.com/statreader/statreader/internal/mdcache"
	"github.com/statreader/statreader/internal/metadata"
	"github.com/statreader/statreader/internal/metrics"
	"github.com/statreader/statreader/internal/orchestrator"
	"github.com/statreader/statreader/internal/parser"
	"github.com/statreader/statreader/pkg/log"
	"golang.org/x/sync/semaphore"
)

// Capabilities are the pushdown flags a lazy scan consumer MUST be told
// about up front (SPEC_FULL.md §6.3). This module never does predicate
// pushdown.
type Capabilities struct {
	ProjectionPushdown bool
	SlicePushdown      bool
	PredicatePushdown  bool
}

var capabilities = Capabilities{ProjectionPushdown: true, SlicePushdown: true, PredicatePushdown: false}

// Batch is one reassembled chunk handed to the consumer.
type Batch = orchestrator.Batch

// metadataPassOffset is an offset guaranteed to be out of range for any
// real file, used to run a parse that only ever delivers on_metadata,
// on_variable* and on_value_label* — never on_value — per the Parser
// Adapter contract's "out-of-range offsets yield zero on_value calls and
// ok" rule (spec.md §4.1).
const metadataPassOffset = math.MaxInt64 / 2

// metaOnlyCallbacks captures the metadata pass without ever seeing a
// value callback (the offset trick above guarantees that).
type metaOnlyCallbacks struct {
	meta *metadata.Store
}

func (c *metaOnlyCallbacks) OnMetadata(meta *metadata.Store) parser.Action {
	c.meta = meta
	return parser.ActionOK
}
func (*metaOnlyCallbacks) OnVariable(int, metadata.Variable) parser.Action { return parser.ActionOK }
func (*metaOnlyCallbacks) OnValueLabel(string, metadata.LabelKey, string) parser.Action {
	return parser.ActionOK
}
func (*metaOnlyCallbacks) OnValue(int, int, parser.RawValue) parser.Action { return parser.ActionOK }

// Scanner is one opened file: cached metadata plus the options and
// collaborators needed to drive scans over it.
type Scanner struct {
	uri     string
	path    string
	factory parser.Factory
	source  filesource.FileSource
	cache   *mdcache.Cache
	metrics *metrics.Registry

	opts config.Options
	meta *metadata.Store

	projection       []string
	projectedIndices []int
	projectedPos     []int

	// semaphore, when set by a hosting Reader Pool, additionally bounds
	// this scan's workers against every other scan sharing the pool.
	semaphore *semaphore.Weighted
}

// SetSemaphore attaches a process-wide thread-budget semaphore, shared
// across every Scanner a Reader Pool hosts, to every scan this Scanner
// starts from now on.
func (s *Scanner) SetSemaphore(sem *semaphore.Weighted) {
	s.semaphore = sem
}

// Open resolves uri through a File Source, runs (or reuses a cached)
// metadata pass, and returns a Scanner ready for Schema/SetProjection/
// NewScan calls. factory supplies the byte-level Parser for the file's
// kind; cache and metricsReg may be nil (a private cache is then used and
// metrics are dropped).
func Open(ctx context.Context, uri string, factory parser.Factory, rawOpts json.RawMessage, cache *mdcache.Cache, metricsReg *metrics.Registry) (*Scanner, error) {
	opts, err := config.Resolve(rawOpts)
	if err != nil {
		return nil, err
	}

	source, err := resolveSource(ctx, uri, opts)
	if err != nil {
		return nil, err
	}

	if cache == nil {
		cache = mdcache.New(256 << 20)
	}

	handle, err := source.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("statreader: open %q: %w", uri, err)
	}
	defer handle.Close()

	kind, err := format.KindFromExtension(uri)
	if err != nil {
		return nil, err
	}

	ttl, err := opts.MetadataCacheTTLDuration()
	if err != nil {
		return nil, err
	}
	// A zero TTL means "never expires"; mdcache treats a zero TTL as
	// already expired, so it is passed on as the longest duration instead.
	if ttl == 0 {
		ttl = time.Duration(math.MaxInt64)
	}

	var computeErr error
	missed := false
	meta := cache.Get(uri, func() (*metadata.Store, time.Duration, int) {
		missed = true
		if metricsReg != nil {
			metricsReg.MetadataCacheMiss.Inc()
		}
		m, size, ferr := readMetadata(factory, kind, uri, handle)
		if ferr != nil {
			computeErr = ferr
			return nil, 0, 0
		}
		return m, ttl, size
	})
	if computeErr != nil {
		return nil, computeErr
	}
	if meta == nil {
		return nil, fmt.Errorf("statreader: metadata pass for %q failed", uri)
	}
	if metricsReg != nil && !missed {
		metricsReg.MetadataCacheHits.Inc()
	}

	s := &Scanner{
		uri:     uri,
		path:    uri,
		factory: factory,
		source:  source,
		cache:   cache,
		metrics: metricsReg,
		opts:    opts,
		meta:    meta,
	}
	if err := s.SetProjection(opts.Projection); err != nil {
		return nil, err
	}
	return s, nil
}

func readMetadata(factory parser.Factory, kind format.FileKind, path string, handle filesource.FileHandle) (*metadata.Store, int, error) {
	p, err := factory(kind)
	if err != nil {
		return nil, 0, err
	}
	cb := &metaOnlyCallbacks{}
	err = p.Parse(parser.Options{
		Path:      path,
		RowOffset: metadataPassOffset,
		Reader:    handle,
		Size:      handle.Size(),
	}, cb)
	if err != nil {
		return nil, 0, err
	}
	if cb.meta == nil {
		return nil, 0, fmt.Errorf("statreader: parser never delivered on_metadata for %q", path)
	}
	enc, err := metadata.ResolveEncoding(cb.meta.Encoding)
	if err != nil {
		return nil, 0, fmt.Errorf("statreader: %q: %w", path, err)
	}
	cb.meta.ResolvedEnc = enc
	return cb.meta, metadataSizeHint(cb.meta), nil
}

// metadataSizeHint is a rough memory-budget estimate: one entry per
// variable, independent of the file's row count.
func metadataSizeHint(m *metadata.Store) int {
	return 256 + len(m.Vars)*128
}

// resolveSource picks the File Source implementation from the URI's
// scheme: "s3://" goes to S3FileSource, everything else is a local path.
func resolveSource(ctx context.Context, uri string, opts config.Options) (filesource.FileSource, error) {
	if strings.HasPrefix(uri, "s3://") {
		return filesource.NewS3FileSource(ctx, filesource.S3Config{
			Endpoint:     opts.S3Endpoint,
			UsePathStyle: opts.S3UsePathStyle,
		})
	}
	return filesource.NewLocalFileSource(opts.UseMmap), nil
}

// Capabilities reports the pushdown flags every Scanner shares.
func (s *Scanner) Capabilities() Capabilities { return capabilities }

// Schema returns the projected schema without consuming any rows. It is
// idempotent: repeated calls return equal schemas (SPEC_FULL.md §8
// property 7).
func (s *Scanner) Schema() ([]metadata.SchemaColumn, error) {
	return s.meta.ProjectedSchema(s.projection)
}

// SetProjection resolves names to variable indices. An unknown name is
// reported synchronously, with no I/O, per SPEC_FULL.md §4.8.
func (s *Scanner) SetProjection(names []string) error {
	indices, pos, err := s.meta.ProjectedIndices(names)
	if err != nil {
		return fmt.Errorf("statreader: ProjectionUnknownColumn: %w", err)
	}
	s.projection = names
	s.projectedIndices = indices
	s.projectedPos = pos
	return nil
}

// NewScan builds an Orchestrator over the scanner's current projection
// and options, ready to be driven via its own Next/Close. The caller owns
// the returned Orchestrator's lifecycle: Next until (nil, nil) or an
// error, then Close.
func (s *Scanner) NewScan(ctx context.Context) (*orchestrator.Orchestrator, error) {
	handle, err := s.source.Open(ctx, s.uri)
	if err != nil {
		return nil, fmt.Errorf("statreader: open %q: %w", s.uri, err)
	}

	names := make([]string, len(s.projectedIndices))
	for i, idx := range s.projectedIndices {
		names[i] = s.meta.Vars[idx].Name
	}

	cfg := orchestrator.Config{
		Meta:                 s.meta,
		Factory:              s.factory,
		Path:                 s.path,
		Handle:               handle,
		ProjectedIndices:     s.projectedIndices,
		ProjectedNames:       names,
		ProjectedPos:         s.projectedPos,
		ChunkSize:            s.opts.ChunkSize,
		ThreadBudget:         s.opts.ThreadBudget,
		PreserveOrder:        s.opts.PreserveOrder,
		Offset:               s.opts.Offset,
		Limit:                s.opts.Limit,
		ValueLabelsAsStrings: s.opts.ValueLabelsAsStrings,
		MissingStringAsNull:  s.opts.MissingStringAsNull,
		Semaphore:            s.semaphore,
		Metrics:              s.metrics,
	}

	o, err := orchestrator.New(cfg)
	if err != nil {
		handle.Close()
		return nil, err
	}
	log.Infof("statreader: opened scan over %q (chunk_size=%d thread_budget=%d)", s.uri, cfg.ChunkSize, cfg.ThreadBudget)
	return o, nil
}
