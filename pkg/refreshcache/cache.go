// Package refreshcache holds the single live departure snapshot and refreshes
// it on demand.
//
// Reads of a fresh snapshot never block on I/O. When the snapshot is missing
// or older than the TTL, every concurrent reader joins one in-flight
// aggregation and receives its result, so upstream call volume is bounded by
// the TTL rather than by request volume.
package refreshcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned to readers that need a refresh after Close.
var ErrClosed = errors.New("refresh cache closed")

const refreshKey = "snapshot"

type Aggregator interface {
	Aggregate(ctx context.Context) (*ctdf.Snapshot, error)
}

// SharedStore is an optional second tier shared between replicas.
type SharedStore interface {
	Get(ctx context.Context) (*ctdf.Snapshot, error)
	Set(ctx context.Context, snapshot *ctdf.Snapshot) error
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithSharedStore(store SharedStore) Option {
	return func(c *Cache) {
		c.shared = store
	}
}

// WithRefreshHook registers a callback for every snapshot a local aggregation
// installs. Hooks run in their own goroutine, in registration order, and never
// hold up readers waiting on the refresh.
func WithRefreshHook(hook func(*ctdf.Snapshot)) Option {
	return func(c *Cache) {
		c.hooks = append(c.hooks, hook)
	}
}

// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	aggregator Aggregator
	ttl        time.Duration
	now        func() time.Time
	shared     SharedStore
	hooks      []func(*ctdf.Snapshot)

	mu       sync.RWMutex
	snapshot *ctdf.Snapshot

	group singleflight.Group

	// ctx bounds every aggregation and is cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
}

func New(aggregator Aggregator, ttl time.Duration, options ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Cache{
		aggregator: aggregator,
		ttl:        ttl,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Get returns the current snapshot, refreshing it first if it is missing or stale.
func (c *Cache) Get(ctx context.Context) (*ctdf.Snapshot, error) {
	if snapshot := c.freshSnapshot(); snapshot != nil {
		metrics.IncCacheHits()
		return snapshot, nil
	}
	metrics.IncCacheMisses()

	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}

	result := c.group.DoChan(refreshKey, c.refresh)

	select {
	case r := <-result:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*ctdf.Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

// Snapshot returns the installed snapshot without refreshing it, nil before
// the first refresh.
func (c *Cache) Snapshot() *ctdf.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshot
}

// Close aborts any in-flight aggregation. Readers waiting on it get ErrClosed
// and later stale reads fail, fresh reads are still served.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
}

func (c *Cache) freshSnapshot() *ctdf.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot != nil && c.snapshot.FreshAt(c.now(), c.ttl) {
		return c.snapshot
	}

	return nil
}

func (c *Cache) refresh() (interface{}, error) {
	// A previous leader may have installed a snapshot after our caller's check
	if snapshot := c.freshSnapshot(); snapshot != nil {
		return snapshot, nil
	}

	if snapshot := c.loadShared(); snapshot != nil {
		installed, err := c.install(snapshot)
		if err != nil {
			return nil, err
		}

		metrics.IncCacheRefresh(metrics.RefreshShared)
		log.Debug().Time("captured_at", installed.CapturedAt).Msg("Installed shared departure snapshot")

		return installed, nil
	}

	snapshot, err := c.aggregator.Aggregate(c.ctx)
	if err != nil {
		metrics.IncCacheRefresh(metrics.RefreshError)

		if c.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, err
	}

	installed, err := c.install(snapshot)
	if err != nil {
		metrics.IncCacheRefresh(metrics.RefreshError)
		return nil, err
	}

	metrics.IncCacheRefresh(metrics.RefreshAggregated)
	if installed != snapshot {
		return installed, nil
	}

	log.Info().
		Time("captured_at", snapshot.CapturedAt).
		Str("bus_title", snapshot.BusFeed.Title).
		Str("rail_title", snapshot.RailFeed.Title).
		Msg("Refreshed departure snapshot")

	c.storeShared(snapshot)

	if len(c.hooks) > 0 {
		go c.runHooks(snapshot)
	}

	return installed, nil
}

func (c *Cache) runHooks(snapshot *ctdf.Snapshot) {
	for _, hook := range c.hooks {
		hook(snapshot)
	}
}

// install replaces the live snapshot unless the cache is closed or the
// installed one is newer, and returns whichever snapshot is live afterwards.
func (c *Cache) install(snapshot *ctdf.Snapshot) (*ctdf.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}

	if c.snapshot != nil && c.snapshot.NewerThan(snapshot) {
		log.Warn().
			Time("installed", c.snapshot.CapturedAt).
			Time("refreshed", snapshot.CapturedAt).
			Msg("Discarding departure snapshot older than the installed one")

		return c.snapshot, nil
	}

	c.snapshot = snapshot

	return snapshot, nil
}

func (c *Cache) loadShared() *ctdf.Snapshot {
	if c.shared == nil {
		return nil
	}

	snapshot, err := c.shared.Get(c.ctx)
	if err != nil {
		log.Debug().Err(err).Msg("No shared departure snapshot available")
		return nil
	}

	if snapshot == nil || !snapshot.FreshAt(c.now(), c.ttl) || !snapshot.NewerThan(c.Snapshot()) {
		return nil
	}

	return snapshot
}

func (c *Cache) storeShared(snapshot *ctdf.Snapshot) {
	if c.shared == nil {
		return
	}

	if err := c.shared.Set(c.ctx, snapshot); err != nil {
		log.Error().Err(err).Msg("Failed to store shared departure snapshot")
	}
}
