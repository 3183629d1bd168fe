// Package streamcache implements StreamCache: a bounded LRU of open,
// append-mode output streams keyed by (sensor, flowtype, hour), with
// caller-supplied open, periodic flush against an inactivity timeout,
// and atomic publish-by-rename.
package streamcache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
	"github.com/movsoftware/silk-sub015/pkg/rbtree"
	"github.com/movsoftware/silk-sub015/pkg/recstream"
	"github.com/movsoftware/silk-sub015/pkg/telemetry"
)

// Key identifies one cached stream. Comparison order is
// (SensorID, FlowtypeID, Hour).
type Key struct {
	SensorID   uint32
	FlowtypeID uint32
	Hour       time.Time
}

func keyCompare(a, b Key, _ struct{}) int {
	switch {
	case a.SensorID != b.SensorID:
		if a.SensorID < b.SensorID {
			return -1
		}
		return 1
	case a.FlowtypeID != b.FlowtypeID:
		if a.FlowtypeID < b.FlowtypeID {
			return -1
		}
		return 1
	case a.Hour.Before(b.Hour):
		return -1
	case a.Hour.After(b.Hour):
		return 1
	default:
		return 0
	}
}

// OpenFunc opens a new stream for key. It returns a nil writer and nil
// error only if the caller intends lookup_or_open to report a miss
// without installing an entry, which this implementation does not use
// — OpenFunc is expected to either succeed or return an error.
type OpenFunc func(ctx context.Context, key Key) (*recstream.Writer, error)

type entry struct {
	key           Key
	writer        *recstream.Writer
	lastAccessed  time.Time
	recordsAtLast uint64
}

// Cache is a bounded-LRU index over open streams. It is safe for
// concurrent use, though normal operation is single-owner from the
// consumer goroutine; the mutex exists to support teardown or a flush
// pass driven from a second goroutine.
type Cache struct {
	mu             sync.Mutex
	maxSize        int
	openFn         OpenFunc
	inactiveWindow time.Duration
	outputDir      string
	metrics        *telemetry.Metrics

	entries []*entry
	index   *rbtree.Tree[Key, *entry, struct{}]
}

// New creates a Cache bounded at maxSize (must be >= 2) concurrently
// open streams. outputDir is where Flush publishes completed files by
// rename; inactiveWindow is the age past which Flush closes a stream
// instead of just flushing it.
func New(maxSize int, openFn OpenFunc, outputDir string, inactiveWindow time.Duration, metrics *telemetry.Metrics) (*Cache, error) {
	if maxSize < 2 {
		return nil, apperr.New(apperr.InvalidArgument, "streamcache", "new", nil)
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Cache{
		maxSize:        maxSize,
		openFn:         openFn,
		inactiveWindow: inactiveWindow,
		outputDir:      outputDir,
		metrics:        metrics,
		index:          rbtree.New[Key, *entry, struct{}](keyCompare, struct{}{}),
	}, nil
}

// Lookup returns the writer for key if already open, bumping
// last_accessed on hit.
func (c *Cache) Lookup(key Key) (*recstream.Writer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index.Find(key)
	if !ok {
		return nil, false
	}
	e.lastAccessed = time.Now()
	return e.writer, true
}

// LookupOrOpen returns the writer for key, opening it via OpenFunc on
// miss. Opening may evict the least-recently-used entry first if the
// cache is at capacity.
func (c *Cache) LookupOrOpen(ctx context.Context, key Key) (*recstream.Writer, error) {
	c.mu.Lock()
	if e, ok := c.index.Find(key); ok {
		e.lastAccessed = time.Now()
		w := e.writer
		c.mu.Unlock()
		return w, nil
	}
	c.mu.Unlock()

	w, err := c.openFn(ctx, key)
	if err != nil {
		return nil, err
	}
	c.install(key, w)
	return w, nil
}

// Add explicitly installs an already-open stream under key, applying
// the same eviction rule as LookupOrOpen.
func (c *Cache) Add(key Key, w *recstream.Writer) {
	c.install(key, w)
}

func (c *Cache) install(key Key, w *recstream.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	e := &entry{key: key, writer: w, lastAccessed: time.Now()}
	c.entries = append(c.entries, e)
	c.index.InsertOrGet(key, e)
	c.metrics.StreamCacheOpenStreams.Set(float64(len(c.entries)))
}

// evictOldestLocked finds and closes the entry with the oldest
// last_accessed, logs the total record count the stream wrote since it
// was opened (not a count since the last Flush), and removes its slot.
// The caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	if len(c.entries) == 0 {
		return
	}
	oldestIdx := 0
	for i, e := range c.entries {
		if e.lastAccessed.Before(c.entries[oldestIdx].lastAccessed) {
			oldestIdx = i
		}
	}
	victim := c.entries[oldestIdx]
	if err := victim.writer.Close(); err != nil {
		c.metrics.StreamCacheCloseErrors.Inc()
		logrus.WithFields(logrus.Fields{
			"component": "streamcache",
			"sensor_id": victim.key.SensorID,
			"flowtype":  victim.key.FlowtypeID,
			"hour":      victim.key.Hour,
			"error":     err,
		}).Warn("failed to close evicted stream; continuing with new entry installed")
	} else {
		logrus.WithFields(logrus.Fields{
			"component": "streamcache",
			"sensor_id": victim.key.SensorID,
			"flowtype":  victim.key.FlowtypeID,
			"hour":      victim.key.Hour,
			"records":   victim.writer.RecordsWritten(),
		}).Info("evicted stream from cache")
	}
	c.index.Delete(victim.key)
	c.entries = append(c.entries[:oldestIdx], c.entries[oldestIdx+1:]...)
	c.metrics.StreamCacheEvictions.Inc()
}

// Flush visits every entry: streams accessed within inactiveWindow are
// flushed to disk; stale streams are closed, removed, and — when an
// output directory is configured — published by atomic rename. Only
// streams closed during this call are published; a still-open entry's
// current file is left alone so a later Flush won't try to rename a
// path this one already moved.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	snapshot := make([]*entry, len(c.entries))
	copy(snapshot, c.entries)
	c.mu.Unlock()

	now := time.Now()
	var firstErr error
	closed := make([]*entry, 0, len(snapshot))
	for _, e := range snapshot {
		if now.Sub(e.lastAccessed) <= c.inactiveWindow {
			if err := e.writer.Flush(); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := c.closeAndRemove(e); err != nil && firstErr == nil {
			firstErr = err
			continue
		}
		closed = append(closed, e)
	}
	if c.outputDir != "" {
		for _, e := range closed {
			if _, err := recstream.PublishIncremental(ctx, e.writer.Path(), c.outputDir); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				// A non-transient rename failure aborts the rest of this
				// pass; entries already published are not retried.
				break
			}
		}
	}
	c.metrics.StreamCacheFlushes.Inc()
	return firstErr
}

func (c *Cache) closeAndRemove(e *entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := e.writer.Close()
	c.index.Delete(e.key)
	for i, cur := range c.entries {
		if cur == e {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	c.metrics.StreamCacheOpenStreams.Set(float64(len(c.entries)))
	return err
}

// CloseAll closes and removes every entry.
func (c *Cache) CloseAll() error {
	c.mu.Lock()
	snapshot := make([]*entry, len(c.entries))
	copy(snapshot, c.entries)
	c.mu.Unlock()

	var firstErr error
	for _, e := range snapshot {
		if err := c.closeAndRemove(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports the number of currently open streams.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Lock and Unlock expose the cache's internal mutex. Cache's public
// methods take the same non-reentrant mutex, so a caller holding Lock
// must not call them before Unlock.
func (c *Cache) Lock()   { c.mu.Lock() }
func (c *Cache) Unlock() { c.mu.Unlock() }
