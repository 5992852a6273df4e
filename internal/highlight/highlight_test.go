package highlight

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

func feature(id string) *mapengine.RenderedFeature {
	return &mapengine.RenderedFeature{
		Ref:        mapengine.FeatureRef{Source: "lines", ID: id},
		LayerID:    "line-lines",
		Geometry:   orb.LineString{{0, 0}, {2, 2}},
		Properties: map[string]any{"id": id},
	}
}

func TestHoverExclusivity(t *testing.T) {
	rec := mapengine.NewRecorder()
	h := NewHover(rec)
	a, b := feature("a"), feature("b")

	h.Set(a)
	h.Set(b)
	assert.Equal(t, []mapengine.FeatureRef{b.Ref}, rec.RefsWith(mapengine.StateHover))
	assert.Empty(t, rec.State(a.Ref))

	h.Set(nil)
	assert.Empty(t, rec.RefsWith(mapengine.StateHover))
	_, ok := h.Current()
	assert.False(t, ok)
}

func TestHoverClearsBeforeSet(t *testing.T) {
	rec := mapengine.NewRecorder()
	h := NewHover(rec)
	h.Set(feature("a"))
	rec.Reset()

	h.Set(feature("b"))
	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "RemoveFeatureState", calls[0].Method)
	assert.Equal(t, "a", calls[0].Ref.ID)
	assert.Equal(t, "SetFeatureState", calls[1].Method)
	assert.Equal(t, "b", calls[1].Ref.ID)
}

func TestHoverSameFeatureIsNoop(t *testing.T) {
	rec := mapengine.NewRecorder()
	h := NewHover(rec)
	h.Set(feature("a"))
	h.Set(feature("a"))
	assert.Len(t, rec.Calls(), 1)
}

func TestHoverAndSelectionIndependent(t *testing.T) {
	rec := mapengine.NewRecorder()
	h := NewHover(rec)
	s := NewSelection(rec, SelectionOptions{})

	s.Set(feature("a"))
	h.Set(feature("a"))
	h.Set(feature("b"))

	assert.Equal(t, mapengine.FeatureState{mapengine.StateSelected: true}, rec.State(feature("a").Ref))
	assert.Equal(t, []mapengine.FeatureRef{feature("b").Ref}, rec.RefsWith(mapengine.StateHover))
}

func TestSelectionFliesAndNotifies(t *testing.T) {
	rec := mapengine.NewRecorder()
	var got []*mapengine.RenderedFeature
	narrow := true
	s := NewSelection(rec, SelectionOptions{
		Narrow:        func() bool { return narrow },
		NarrowPadding: 200,
		OnChange:      func(f *mapengine.RenderedFeature) { got = append(got, f) },
	})

	a := feature("a")
	s.Set(a)
	flights := rec.CallsTo("FlyTo")
	require.Len(t, flights, 1)
	assert.Equal(t, orb.Point{1, 1}, *flights[0].Camera.Center)
	assert.Equal(t, 200.0, flights[0].Camera.Padding.Right)

	narrow = false
	s.Set(feature("b"))
	flights = rec.CallsTo("FlyTo")
	require.Len(t, flights, 2)
	assert.Zero(t, flights[1].Camera.Padding.Right)
	assert.Equal(t, []mapengine.FeatureRef{feature("b").Ref}, rec.RefsWith(mapengine.StateSelected))

	s.Set(nil)
	assert.Empty(t, rec.RefsWith(mapengine.StateSelected))
	require.Len(t, got, 3)
	assert.Same(t, a, got[0])
	assert.Nil(t, got[2])
	assert.Nil(t, s.Current())
}

func TestSelectionWithoutGeometryDoesNotFly(t *testing.T) {
	rec := mapengine.NewRecorder()
	s := NewSelection(rec, SelectionOptions{})
	f := feature("a")
	f.Geometry = nil
	s.Set(f)
	assert.Empty(t, rec.CallsTo("FlyTo"))
	assert.Equal(t, []mapengine.FeatureRef{f.Ref}, rec.RefsWith(mapengine.StateSelected))
}

func TestMutationFailuresAreSwallowed(t *testing.T) {
	rec := mapengine.NewRecorder()
	h := NewHover(rec)

	rec.FailStates = true
	assert.NotPanics(t, func() { h.Set(feature("a")) })

	rec.FailStates = false
	rec.PanicStates = true
	assert.NotPanics(t, func() {
		h.Set(feature("b"))
		h.Close()
	})

	// The holder still tracks nothing after the failed release.
	_, ok := h.Current()
	assert.False(t, ok)
}

func TestSelectionSurvivesPanickingCamera(t *testing.T) {
	rec := mapengine.NewRecorder()
	rec.PanicCamera = true
	var got []*mapengine.RenderedFeature
	s := NewSelection(rec, SelectionOptions{OnChange: func(f *mapengine.RenderedFeature) { got = append(got, f) }})

	f := feature("a")
	assert.NotPanics(t, func() { s.Set(f) })
	assert.Len(t, rec.CallsTo("FlyTo"), 1)
	assert.Equal(t, []mapengine.FeatureRef{f.Ref}, rec.RefsWith(mapengine.StateSelected))
	require.Len(t, got, 1)
	assert.Same(t, f, got[0])
}

func TestFocus(t *testing.T) {
	rec := mapengine.NewRecorder()
	f := NewFocus(rec)
	ref := mapengine.FeatureRef{Source: "focused", ID: "x"}
	f.Set(ref)
	assert.Equal(t, []mapengine.FeatureRef{ref}, rec.RefsWith(mapengine.StateFocused))
	f.Clear()
	assert.Empty(t, rec.RefsWith(mapengine.StateFocused))
}

func TestInvalidRefReleasesOnly(t *testing.T) {
	rec := mapengine.NewRecorder()
	s := NewScopedHighlight(rec, mapengine.StateHover)
	s.Acquire(mapengine.FeatureRef{Source: "lines", ID: "a"})
	s.Acquire(mapengine.FeatureRef{Source: "lines"})
	assert.Empty(t, rec.RefsWith(mapengine.StateHover))
	_, ok := s.Held()
	assert.False(t, ok)
}
