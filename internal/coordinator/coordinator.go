// Package coordinator translates raw engine events (load, pointer move,
// click, source data) into semantic map events. It holds no business logic:
// callers supply callbacks and decide what a hover or click means.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
	"github.com/joeblew999/plat-slackmap/internal/metrics"
)

// Populator fills the feature cache for a cluster source.
type Populator interface {
	Populate(ctx context.Context, sourceID string) error
}

// SourceDataEvent is the engine's source-data notification.
type SourceDataEvent struct {
	SourceID       string `json:"sourceId"`
	IsSourceLoaded bool   `json:"isSourceLoaded"`
}

// Options configures a Coordinator. Nil callbacks are skipped.
type Options struct {
	// ClusterSourceID enables cluster expansion on click.
	ClusterSourceID string

	CursorInteractable func(layerID string) bool
	MouseHoverable     func(layerID string) bool

	Cache Populator

	OnMovedToFeature   func(f *mapengine.RenderedFeature)
	OnMovedToVoid      func()
	OnClickedToFeature func(f *mapengine.RenderedFeature)
	OnClickedToVoid    func()
}

// Coordinator is the per-map event state machine: Unloaded until OnLoad,
// after which pointer and source events are dispatched.
type Coordinator struct {
	handle mapengine.MapHandle
	opts   Options
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	loaded    bool
	cursor    mapengine.Cursor
	triggered map[string]bool
}

// New creates a coordinator bound to ctx. Async work stops when ctx is done
// or Close is called.
func New(ctx context.Context, handle mapengine.MapHandle, opts Options) *Coordinator {
	ctx, cancel := context.WithCancel(ctx)
	if opts.CursorInteractable == nil {
		opts.CursorInteractable = func(string) bool { return false }
	}
	if opts.MouseHoverable == nil {
		opts.MouseHoverable = func(string) bool { return false }
	}
	return &Coordinator{
		handle:    handle,
		opts:      opts,
		log:       logging.With("coordinator"),
		ctx:       ctx,
		cancel:    cancel,
		cursor:    mapengine.CursorAuto,
		triggered: make(map[string]bool),
	}
}

// OnLoad marks the map loaded. Further calls are no-ops.
func (c *Coordinator) OnLoad() {
	metrics.MapEvents.WithLabelValues("load").Inc()
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
}

// Loaded reports whether OnLoad was received.
func (c *Coordinator) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Cursor is the current pointer affordance.
func (c *Coordinator) Cursor() mapengine.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// OnMouseMove handles the topmost feature under the pointer, nil for none.
func (c *Coordinator) OnMouseMove(f *mapengine.RenderedFeature) {
	metrics.MapEvents.WithLabelValues("mousemove").Inc()
	if !c.ready() {
		return
	}
	if f == nil {
		c.call("moved-to-void", c.opts.OnMovedToVoid)
		c.setCursor(mapengine.CursorAuto)
		return
	}
	if c.opts.CursorInteractable(f.LayerID) {
		c.setCursor(mapengine.CursorPointer)
	}
	if c.opts.MouseHoverable(f.LayerID) && c.opts.OnMovedToFeature != nil {
		c.call("moved-to-feature", func() { c.opts.OnMovedToFeature(f) })
	}
}

// OnClick handles the topmost feature under the click point, nil for none.
func (c *Coordinator) OnClick(f *mapengine.RenderedFeature) {
	metrics.MapEvents.WithLabelValues("click").Inc()
	if !c.ready() {
		return
	}
	if f == nil {
		c.call("clicked-to-void", c.opts.OnClickedToVoid)
		return
	}
	if clusterID, ok := f.ClusterID(); ok && c.opts.ClusterSourceID != "" {
		c.expandCluster(f, clusterID)
		return
	}
	if c.opts.OnClickedToFeature != nil {
		c.call("clicked-to-feature", func() { c.opts.OnClickedToFeature(f) })
	}
}

// OnSourceData starts feature cache population the first time a cluster
// source reports loaded.
func (c *Coordinator) OnSourceData(ev SourceDataEvent) {
	metrics.MapEvents.WithLabelValues("sourcedata").Inc()
	if !ev.IsSourceLoaded || c.opts.Cache == nil || !IsClusterSource(ev.SourceID) {
		return
	}
	c.mu.Lock()
	if c.triggered[ev.SourceID] || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.triggered[ev.SourceID] = true
	c.mu.Unlock()

	c.goAsync(func(ctx context.Context) {
		if err := c.opts.Cache.Populate(ctx, ev.SourceID); err != nil {
			c.mu.Lock()
			delete(c.triggered, ev.SourceID)
			c.mu.Unlock()
		}
	})
}

// IsClusterSource reports whether a source id names a clustered source.
func IsClusterSource(sourceID string) bool {
	return strings.Contains(strings.ToLower(sourceID), "cluster")
}

// Close cancels pending async work. Results arriving later are dropped.
func (c *Coordinator) Close() {
	c.cancel()
}

// Wait blocks until async work has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) expandCluster(f *mapengine.RenderedFeature, clusterID int64) {
	target, ok := clusterCenter(f.Geometry)
	if !ok {
		c.log.Debug().Int64("cluster", clusterID).Msg("cluster click without coordinates")
		return
	}
	sourceID := f.Ref.Source
	if sourceID == "" {
		sourceID = c.opts.ClusterSourceID
	}

	c.goAsync(func(ctx context.Context) {
		zoom, err := c.handle.ClusterExpansionZoom(ctx, sourceID, clusterID)
		if err != nil {
			c.log.Debug().Err(err).Str("source", sourceID).Int64("cluster", clusterID).Msg("cluster expansion failed")
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := c.handle.FlyTo(mapengine.CameraOptions{
			Center:  mapengine.Point(target),
			Zoom:    mapengine.Float(zoom),
			Animate: true,
		}); err != nil {
			c.log.Debug().Err(err).Msg("cluster fly-to failed")
		}
	})
}

func clusterCenter(g orb.Geometry) (orb.Point, bool) {
	if p, ok := g.(orb.Point); ok {
		return p, true
	}
	return geo.Centroid(g)
}

func (c *Coordinator) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		metrics.MapEventsDropped.WithLabelValues("unloaded").Inc()
		return false
	}
	return true
}

func (c *Coordinator) setCursor(cur mapengine.Cursor) {
	c.mu.Lock()
	changed := c.cursor != cur
	c.cursor = cur
	c.mu.Unlock()
	if !changed {
		return
	}
	if err := c.handle.SetCursor(cur); err != nil {
		c.log.Debug().Err(err).Str("cursor", string(cur)).Msg("set cursor failed")
	}
}

// goAsync runs fn on its own goroutine, bound to the coordinator context.
func (c *Coordinator) goAsync(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.recoverAsync()
		fn(c.ctx)
	}()
}

func (c *Coordinator) recoverAsync() {
	if r := recover(); r != nil {
		c.log.Error().Str("panic", fmt.Sprint(r)).Msg("recovered panic in async map work")
	}
}

// call runs a user callback, recovering panics.
func (c *Coordinator) call(event string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("event", event).Str("panic", fmt.Sprint(r)).Msg("recovered panic in map callback")
		}
	}()
	fn()
}
