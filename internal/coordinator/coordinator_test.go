package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.list = append(e.list, s)
	e.mu.Unlock()
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

func newTestCoordinator(t *testing.T, rec *mapengine.Recorder, ev *events, cache Populator) *Coordinator {
	t.Helper()
	c := New(context.Background(), rec, Options{
		ClusterSourceID:    "slacklineMapCluster",
		CursorInteractable: func(id string) bool { return id == "line-lines" || id == "clusters-all" },
		MouseHoverable:     func(id string) bool { return id == "line-lines" },
		Cache:              cache,
		OnMovedToFeature:   func(f *mapengine.RenderedFeature) { ev.add("moved:" + f.Ref.ID) },
		OnMovedToVoid:      func() { ev.add("moved-void") },
		OnClickedToFeature: func(f *mapengine.RenderedFeature) { ev.add("clicked:" + f.Ref.ID) },
		OnClickedToVoid:    func() { ev.add("clicked-void") },
	})
	t.Cleanup(func() {
		c.Close()
		c.Wait()
	})
	return c
}

func line(id string) *mapengine.RenderedFeature {
	return &mapengine.RenderedFeature{
		Ref:        mapengine.FeatureRef{Source: "lines", ID: id},
		LayerID:    "line-lines",
		Geometry:   orb.LineString{{0, 0}, {1, 1}},
		Properties: map[string]any{"id": id},
	}
}

func TestUnloadedIsInert(t *testing.T) {
	rec := mapengine.NewRecorder()
	ev := &events{}
	c := newTestCoordinator(t, rec, ev, nil)

	c.OnMouseMove(line("a"))
	c.OnClick(nil)
	assert.Empty(t, ev.all())
	assert.Empty(t, rec.Calls())
	assert.False(t, c.Loaded())

	c.OnLoad()
	assert.True(t, c.Loaded())
	c.OnClick(nil)
	assert.Equal(t, []string{"clicked-void"}, ev.all())
}

func TestMouseMove(t *testing.T) {
	rec := mapengine.NewRecorder()
	ev := &events{}
	c := newTestCoordinator(t, rec, ev, nil)
	c.OnLoad()

	c.OnMouseMove(line("a"))
	assert.Equal(t, mapengine.CursorPointer, c.Cursor())
	assert.Equal(t, []string{"moved:a"}, ev.all())

	// Same cursor again does not touch the engine.
	c.OnMouseMove(line("b"))
	assert.Len(t, rec.CallsTo("SetCursor"), 1)

	inert := &mapengine.RenderedFeature{LayerID: "background-labels", Ref: mapengine.FeatureRef{ID: "x"}}
	c.OnMouseMove(inert)
	assert.Equal(t, []string{"moved:a", "moved:b"}, ev.all())
	assert.Equal(t, mapengine.CursorPointer, c.Cursor())

	c.OnMouseMove(nil)
	assert.Equal(t, mapengine.CursorAuto, c.Cursor())
	assert.Equal(t, "moved-void", ev.all()[2])
	assert.Len(t, rec.CallsTo("SetCursor"), 2)
}

func TestClickOnNonHoverableStillEmits(t *testing.T) {
	rec := mapengine.NewRecorder()
	ev := &events{}
	c := newTestCoordinator(t, rec, ev, nil)
	c.OnLoad()

	c.OnClick(&mapengine.RenderedFeature{LayerID: "unclusteredPoint-lines", Ref: mapengine.FeatureRef{ID: "p"}, Properties: map[string]any{"id": "p"}})
	assert.Equal(t, []string{"clicked:p"}, ev.all())
}

func clusterFeature(id float64) *mapengine.RenderedFeature {
	return &mapengine.RenderedFeature{
		Ref:        mapengine.FeatureRef{Source: "slacklineMapCluster"},
		LayerID:    "clusters-all",
		Geometry:   orb.Point{8.5, 47.3},
		Properties: map[string]any{"cluster_id": id, "point_count": 12.0},
	}
}

func TestClusterClickFliesToExpansionZoom(t *testing.T) {
	rec := mapengine.NewRecorder()
	rec.ExpansionZoom = 9
	ev := &events{}
	c := newTestCoordinator(t, rec, ev, nil)
	c.OnLoad()

	c.OnClick(clusterFeature(0))
	c.Wait()

	flights := rec.CallsTo("FlyTo")
	require.Len(t, flights, 1)
	assert.Equal(t, orb.Point{8.5, 47.3}, *flights[0].Camera.Center)
	assert.Equal(t, 9.0, *flights[0].Camera.Zoom)
	assert.Equal(t, "slacklineMapCluster", rec.CallsTo("ClusterExpansionZoom")[0].Source)
	assert.Empty(t, ev.all(), "cluster clicks are not forwarded")
}

func TestClusterClickDegradesOnError(t *testing.T) {
	rec := mapengine.NewRecorder()
	rec.ExpansionErr = errors.New("cluster gone")
	ev := &events{}
	c := newTestCoordinator(t, rec, ev, nil)
	c.OnLoad()

	assert.NotPanics(t, func() { c.OnClick(clusterFeature(4)) })
	c.Wait()
	assert.Empty(t, rec.CallsTo("FlyTo"))
	assert.Empty(t, ev.all())
}

func TestClusterClickWithoutClusterSource(t *testing.T) {
	rec := mapengine.NewRecorder()
	ev := &events{}
	c := New(context.Background(), rec, Options{
		OnClickedToFeature: func(f *mapengine.RenderedFeature) { ev.add("clicked") },
	})
	c.OnLoad()
	c.OnClick(clusterFeature(1))
	c.Wait()
	assert.Equal(t, []string{"clicked"}, ev.all())
	assert.Empty(t, rec.CallsTo("ClusterExpansionZoom"))
}

type blockingHandle struct {
	*mapengine.Recorder
	started chan struct{}
}

func (b *blockingHandle) ClusterExpansionZoom(ctx context.Context, sourceID string, clusterID int64) (float64, error) {
	close(b.started)
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestCloseDropsLateExpansion(t *testing.T) {
	h := &blockingHandle{Recorder: mapengine.NewRecorder(), started: make(chan struct{})}
	c := New(context.Background(), h, Options{ClusterSourceID: "slacklineMapCluster"})
	c.OnLoad()
	c.OnClick(clusterFeature(2))
	<-h.started
	c.Close()
	c.Wait()
	assert.Empty(t, h.CallsTo("FlyTo"))
}

type countingCache struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (c *countingCache) Populate(ctx context.Context, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[sourceID]++
	return c.err
}

func TestSourceDataPopulatesOnce(t *testing.T) {
	cache := &countingCache{}
	c := newTestCoordinator(t, mapengine.NewRecorder(), &events{}, cache)

	c.OnSourceData(SourceDataEvent{SourceID: "linesCluster", IsSourceLoaded: false})
	c.OnSourceData(SourceDataEvent{SourceID: "lines", IsSourceLoaded: true})
	c.OnSourceData(SourceDataEvent{SourceID: "linesCluster", IsSourceLoaded: true})
	c.OnSourceData(SourceDataEvent{SourceID: "linesCluster", IsSourceLoaded: true})
	c.OnSourceData(SourceDataEvent{SourceID: "SLACKLINEMAPCLUSTER", IsSourceLoaded: true})
	c.Wait()

	assert.Equal(t, map[string]int{"linesCluster": 1, "SLACKLINEMAPCLUSTER": 1}, cache.calls)
}

func TestSourceDataRetriesAfterFailure(t *testing.T) {
	cache := &countingCache{err: errors.New("offline")}
	c := newTestCoordinator(t, mapengine.NewRecorder(), &events{}, cache)

	c.OnSourceData(SourceDataEvent{SourceID: "spotsCluster", IsSourceLoaded: true})
	c.Wait()
	c.OnSourceData(SourceDataEvent{SourceID: "spotsCluster", IsSourceLoaded: true})
	c.Wait()
	assert.Equal(t, 2, cache.calls["spotsCluster"])
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	c := New(context.Background(), mapengine.NewRecorder(), Options{
		OnClickedToVoid: func() { panic("page bug") },
	})
	c.OnLoad()
	assert.NotPanics(t, func() { c.OnClick(nil) })
}
