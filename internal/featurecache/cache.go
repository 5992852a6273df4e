// Package featurecache keeps the true geometry of clustered points. The
// engine reports unreliable coordinates for points inside cluster sources, so
// the raw GeoJSON of each cluster source is fetched once and indexed by
// properties.id.
package featurecache

import (
	"context"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/metrics"
)

// Fetcher returns the raw GeoJSON backing a source.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID string) (*geojson.FeatureCollection, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, sourceID string) (*geojson.FeatureCollection, error)

func (f FetcherFunc) Fetch(ctx context.Context, sourceID string) (*geojson.FeatureCollection, error) {
	return f(ctx, sourceID)
}

// Mirror receives the features of every populated source.
type Mirror interface {
	MirrorFeatures(ctx context.Context, sourceID string, features []*geojson.Feature) error
}

type sourceState int

const (
	statePending sourceState = iota + 1
	stateDone
)

// Cache is safe for concurrent use. Entries are only added, never replaced.
type Cache struct {
	fetcher Fetcher
	mirror  Mirror
	log     zerolog.Logger

	mu       sync.RWMutex
	features map[string]*geojson.Feature
	sources  map[string]sourceState
}

// Option configures a Cache.
type Option func(*Cache)

// WithMirror copies populated features into m.
func WithMirror(m Mirror) Option {
	return func(c *Cache) { c.mirror = m }
}

// New creates an empty cache.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		log:      logging.With("featurecache"),
		features: make(map[string]*geojson.Feature),
		sources:  make(map[string]sourceState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Populate fetches sourceID and indexes its features. While a fetch for the
// source is in flight or has succeeded, further calls return nil without
// fetching. A failed fetch makes the source eligible again.
func (c *Cache) Populate(ctx context.Context, sourceID string) error {
	c.mu.Lock()
	if _, seen := c.sources[sourceID]; seen {
		c.mu.Unlock()
		return nil
	}
	c.sources[sourceID] = statePending
	c.mu.Unlock()

	fc, err := c.fetcher.Fetch(ctx, sourceID)
	if err != nil {
		c.mu.Lock()
		delete(c.sources, sourceID)
		c.mu.Unlock()
		metrics.CacheFetches.WithLabelValues(sourceID, "error").Inc()
		c.log.Warn().Err(err).Str("source", sourceID).Msg("feature cache fetch failed")
		return err
	}

	var added []*geojson.Feature
	c.mu.Lock()
	if fc != nil {
		for _, f := range fc.Features {
			if f == nil {
				continue
			}
			id := geo.PropertyID(f.Properties)
			if id == "" {
				continue
			}
			if _, exists := c.features[id]; exists {
				continue
			}
			c.features[id] = f
			added = append(added, f)
		}
	}
	c.sources[sourceID] = stateDone
	size := len(c.features)
	c.mu.Unlock()

	metrics.CacheFetches.WithLabelValues(sourceID, "ok").Inc()
	metrics.CachedFeatures.Set(float64(size))
	c.log.Debug().Str("source", sourceID).Int("added", len(added)).Int("size", size).Msg("feature cache populated")

	if c.mirror != nil && len(added) > 0 {
		if err := c.mirror.MirrorFeatures(ctx, sourceID, added); err != nil {
			c.log.Warn().Err(err).Str("source", sourceID).Msg("feature cache mirror failed")
		}
	}
	return nil
}

// Lookup returns the cached feature for id.
func (c *Cache) Lookup(id string) (*geojson.Feature, bool) {
	c.mu.RLock()
	f, ok := c.features[id]
	c.mu.RUnlock()
	if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
	return f, ok
}

// Populated reports whether sourceID was fetched successfully.
func (c *Cache) Populated(sourceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sources[sourceID] == stateDone
}

// Len is the number of cached features.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.features)
}

// Sources lists the successfully populated source ids.
func (c *Cache) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sources))
	for id, st := range c.sources {
		if st == stateDone {
			out = append(out, id)
		}
	}
	return out
}
