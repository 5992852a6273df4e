package session

import (
	"context"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/highlight"
	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

// FocusedMap frames one record's geometry on satellite imagery, with the
// surrounding features clickable.
type FocusedMap struct {
	*base
	fc    *geojson.FeatureCollection
	focus *highlight.Focus
}

// NewFocusedMap creates a focused map. Features without coordinates are
// dropped; a collection left empty is rejected.
func NewFocusedMap(id string, deps Deps, p Params) (*FocusedMap, error) {
	fc := withGeometry(p.GeoJSON)
	if len(fc.Features) == 0 {
		return nil, geo.ErrEmptyGeometry
	}
	m := &FocusedMap{
		base: newBase(id, KindFocused, deps, p),
		fc:   fc,
	}
	// The focused map always frames its collection, never a page supplied view.
	m.hasInitial = false
	m.style = layers.MapStyle{Style: layers.StyleSatellite}
	m.focus = highlight.NewFocus(m.handle)

	opts := m.coordinatorOptions()
	opts.OnMovedToFeature = m.hover.Set
	opts.OnMovedToVoid = func() { m.hover.Set(nil) }
	opts.OnClickedToFeature = m.clickedFeature
	m.start(opts, hooks{
		onLoad:  m.onLoad,
		onEvent: m.onEvent,
		onClose: m.focus.Clear,
	})
	return m, nil
}

func withGeometry(in *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if in == nil {
		return out
	}
	out.BBox = in.BBox
	for _, f := range in.Features {
		if f == nil {
			continue
		}
		if _, ok := geo.Centroid(f.Geometry); ok {
			out.Append(f)
		}
	}
	return out
}

func (m *FocusedMap) composition() layers.Composition {
	legend := layers.NewLegend(false,
		layers.LegendItem{Key: layers.Lines, Selected: true},
		layers.LegendItem{Key: layers.Spots, Selected: true},
		layers.LegendItem{Key: layers.Guides, Selected: true},
	)
	comp := layers.Compose(legend, layers.Options{
		URLs:              m.deps.URLs,
		Styles:            m.deps.styles(),
		DisableClustering: true,
	})
	comp.AddFocused(m.fc, m.deps.styles())
	return comp
}

// Snapshot implements Session.
func (m *FocusedMap) Snapshot() Snapshot {
	return m.snapshot(m.composition(), nil)
}

// Close implements Session.
func (m *FocusedMap) Close() {
	m.closeBase()
	m.publish("closed", m.id)
}

func (m *FocusedMap) onLoad(context.Context) {
	if err := m.fit(m.handle.Zoom() > 10); err != nil {
		m.log.Debug().Err(err).Msg("initial fit failed")
	}
	m.focus.Set(mapengine.FeatureRef{Source: layers.FocusedSourceID, ID: geo.FeatureID(m.fc.Features[0])})
	if err := m.handle.Signals(map[string]any{"mapReady": true}); err != nil {
		m.log.Debug().Err(err).Msg("ready signal not sent")
	}
}

func (m *FocusedMap) onEvent(_ context.Context, ev Event) error {
	if ev.Type == EventFocus {
		return m.fit(true)
	}
	return ErrUnsupported
}

// fit frames the collection padded by its first feature's length.
func (m *FocusedMap) fit(animate bool) error {
	length, _ := geo.Length(m.fc.Features[0].Properties)
	bounds, err := geo.ComputeCollectionBounds(m.fc, length, 1)
	if err != nil {
		return err
	}
	return m.handle.FitBounds(bounds.Padded, mapengine.FitOptions{Animate: animate})
}

func (m *FocusedMap) clickedFeature(f *mapengine.RenderedFeature) {
	if !layers.MouseHoverable(f.LayerID) {
		return
	}
	c := geo.Classify(f.Geometry, f.Properties)
	if c.ID == "" || c.Type == "" {
		return
	}
	if err := m.handle.Signals(map[string]any{"featureClick": map[string]any{"id": c.ID, "type": c.Type}}); err != nil {
		m.log.Debug().Err(err).Msg("feature click not sent")
	}
	m.publish("feature-click", c.ID)
}
