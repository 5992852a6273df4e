package draw

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

type sinkSpy struct {
	sets, clears int
	last         *geojson.FeatureCollection
}

func (s *sinkSpy) DrawSet(fc *geojson.FeatureCollection) error {
	s.sets++
	s.last = fc
	return nil
}

func (s *sinkSpy) DrawDeleteAll() error {
	s.clears++
	return nil
}

type failingSink struct{ calls int }

func (s *failingSink) DrawSet(*geojson.FeatureCollection) error {
	s.calls++
	return mapengine.ErrClosed
}

func (s *failingSink) DrawDeleteAll() error {
	s.calls++
	return mapengine.ErrClosed
}

func TestMemoryPluginKeepsMirrorWhenSinkFails(t *testing.T) {
	sink := &failingSink{}
	p := NewMemoryPlugin(sink)

	p.Set(geojson.NewFeatureCollection().Append(drawn("a", orb.Point{1, 2})))
	require.Len(t, p.GetAll().Features, 1)
	assert.Equal(t, "a", p.GetAll().Features[0].ID)

	p.DeleteAll()
	assert.Empty(t, p.GetAll().Features)
	assert.Equal(t, 2, sink.calls)
}

func drawn(id string, g orb.Geometry) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = id
	return f
}

func TestCreatedScenario(t *testing.T) {
	plugin := NewMemoryPlugin(nil)
	var forwarded [][]*geojson.Feature
	b := NewBridge(plugin, nil, Options{
		OnChange: func(features []*geojson.Feature) { forwarded = append(forwarded, features) },
	})

	poly := drawn("new-1", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	plugin.Replace([]*geojson.Feature{poly})
	b.HandleEvent(Event{Kind: Created, Features: []*geojson.Feature{poly}})

	require.Len(t, forwarded, 1)
	require.Len(t, forwarded[0], 1)
	assert.Same(t, poly, forwarded[0][0])
}

func TestMountMergesPluginWins(t *testing.T) {
	sink := &sinkSpy{}
	plugin := NewMemoryPlugin(sink)
	edited := drawn("a", orb.LineString{{0, 0}, {5, 5}})
	pluginOnly := drawn("c", orb.Point{9, 9})
	plugin.Replace([]*geojson.Feature{edited, pluginOnly})

	b := NewBridge(plugin, nil, Options{})
	b.Mount([]*geojson.Feature{
		drawn("a", orb.LineString{{0, 0}, {1, 1}}),
		drawn("b", orb.Point{2, 2}),
		geojson.NewFeature(orb.Point{3, 3}),
	})

	got := plugin.GetAll().Features
	require.Len(t, got, 3)
	assert.Same(t, edited, got[0], "plugin feature wins on id collision")
	assert.Equal(t, "b", got[1].ID)
	assert.Same(t, pluginOnly, got[2])
	assert.Equal(t, 1, sink.sets)
}

func TestMountEmptyAndNil(t *testing.T) {
	sink := &sinkSpy{}
	plugin := NewMemoryPlugin(sink)
	plugin.Replace([]*geojson.Feature{drawn("a", orb.Point{0, 0})})
	b := NewBridge(plugin, nil, Options{})

	b.Mount(nil)
	assert.Len(t, plugin.GetAll().Features, 1)
	assert.Zero(t, sink.clears)

	b.Mount([]*geojson.Feature{})
	assert.Empty(t, plugin.GetAll().Features)
	assert.Equal(t, 1, sink.clears)
}

func TestSelectionChange(t *testing.T) {
	var got []*geojson.Feature
	b := NewBridge(NewMemoryPlugin(nil), nil, Options{
		OnSelectionChange: func(f *geojson.Feature) { got = append(got, f) },
	})
	a, c := drawn("a", orb.Point{0, 0}), drawn("c", orb.Point{1, 1})

	b.HandleEvent(Event{Kind: SelectionChange, Features: []*geojson.Feature{a}})
	b.HandleEvent(Event{Kind: SelectionChange, Features: []*geojson.Feature{a, c}})
	b.HandleEvent(Event{Kind: SelectionChange})

	require.Len(t, got, 3)
	assert.Same(t, a, got[0])
	assert.Nil(t, got[1])
	assert.Nil(t, got[2])
}

func TestDeletedForwardsEmptyList(t *testing.T) {
	var forwarded []*geojson.Feature
	b := NewBridge(NewMemoryPlugin(nil), nil, Options{
		OnChange: func(features []*geojson.Feature) { forwarded = features },
	})
	b.HandleEvent(Event{Kind: Deleted})
	assert.NotNil(t, forwarded)
	assert.Empty(t, forwarded)
}

func TestRefit(t *testing.T) {
	rec := mapengine.NewRecorder()
	plugin := NewMemoryPlugin(nil)
	b := NewBridge(plugin, rec, Options{})

	assert.Error(t, b.Refit(false), "nothing drawn")

	line := drawn("a", orb.LineString{{8.5, 47.3}, {8.51, 47.3}})
	line.Properties["length"] = 2000.0
	plugin.Replace([]*geojson.Feature{line})
	require.NoError(t, b.Refit(false))

	fits := rec.CallsTo("FitBounds")
	require.Len(t, fits, 1)
	assert.False(t, fits[0].Fit.Animate)
	assert.True(t, fits[0].Bound.Contains(orb.Point{8.5, 47.3}))
	assert.Greater(t, fits[0].Bound.Max.Lat(), 47.31)

	require.NoError(t, b.Refit(true))
	assert.True(t, rec.CallsTo("FitBounds")[1].Fit.Animate)
}

func TestParseEventKind(t *testing.T) {
	k, ok := ParseEventKind("draw.create")
	assert.True(t, ok)
	assert.Equal(t, Created, k)
	k, ok = ParseEventKind("selectionchange")
	assert.True(t, ok)
	assert.Equal(t, SelectionChange, k)
	_, ok = ParseEventKind("draw.modechange")
	assert.False(t, ok)
}
