// Package pool hosts a Reader Pool: an optional process-wide aggregate of
// multiple concurrently open scans sharing one thread budget and one
// metadata cache (SPEC_FULL.md §5, glossary "Reader Pool"). A host that
// never builds a Pool still gets a correct, independent Scanner per file
// from pkg/statreader; the Pool only adds sharing across files.
package pool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/semaphore"

	"github.com/statreader/statreader/internal/mdcache"
	"github.com/statreader/statreader/internal/metrics"
	"github.com/statreader/statreader/internal/parser"
	"github.com/statreader/statreader/pkg/log"
	"github.com/statreader/statreader/pkg/statreader"
)

// Config configures a Pool's shared resources.
type Config struct {
	// ThreadBudget bounds workers across every scan the pool hosts, on
	// top of each scan's own per-file thread_budget.
	ThreadBudget int
	// MetadataCacheMaxMemory bounds the shared metadata cache (bytes).
	MetadataCacheMaxMemory int
	// SweepInterval schedules a periodic metadata-cache TTL sweep and an
	// occupancy log line. Zero disables the scheduled job entirely.
	SweepInterval time.Duration

	Metrics *metrics.Registry
}

// Pool owns the shared semaphore and metadata cache handed to every
// Scanner it opens, plus an optional scheduled sweep/occupancy job.
type Pool struct {
	sem     *semaphore.Weighted
	cache   *mdcache.Cache
	metrics *metrics.Registry

	budget    int64
	inUse     int64
	scheduler gocron.Scheduler
}

// New constructs a Pool and, when cfg.SweepInterval > 0, starts its
// background scheduler immediately. Call Shutdown to stop it.
func New(cfg Config) (*Pool, error) {
	if cfg.ThreadBudget <= 0 {
		cfg.ThreadBudget = 1
	}
	if cfg.MetadataCacheMaxMemory <= 0 {
		cfg.MetadataCacheMaxMemory = 256 << 20
	}

	p := &Pool{
		sem:     semaphore.NewWeighted(int64(cfg.ThreadBudget)),
		cache:   mdcache.New(cfg.MetadataCacheMaxMemory),
		metrics: cfg.Metrics,
		budget:  int64(cfg.ThreadBudget),
	}

	if cfg.SweepInterval <= 0 {
		return p, nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	p.scheduler = s

	if _, err := s.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			swept := p.cache.Sweep()
			log.Infof("pool: metadata cache sweep evicted %d expired entries, %d live", swept, p.cache.Len())
		}),
	); err != nil {
		return nil, err
	}

	s.Start()
	return p, nil
}

// Shutdown stops the pool's scheduler, if one was started. It does not
// close any Scanner the pool has already handed out.
func (p *Pool) Shutdown() error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Shutdown()
}

// Open opens uri through pkg/statreader, sharing this pool's metadata
// cache and thread-budget semaphore with every other scan it hosts.
func (p *Pool) Open(ctx context.Context, uri string, factory parser.Factory, rawOpts json.RawMessage) (*statreader.Scanner, error) {
	s, err := statreader.Open(ctx, uri, factory, rawOpts, p.cache, p.metrics)
	if err != nil {
		return nil, err
	}
	s.SetSemaphore(p.sem)
	return s, nil
}

// Cache exposes the pool's shared metadata cache, e.g. for a host that
// wants to warm it before the first scan.
func (p *Pool) Cache() *mdcache.Cache { return p.cache }
