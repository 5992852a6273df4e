package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joeblew999/plat-slackmap/internal/coordinator"
	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/highlight"
	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

const popupDetailsTimeout = 10 * time.Second

// browseMap is the explorable map shared by the world and community pages:
// legend driven layers, hover, selection with an info popup.
type browseMap struct {
	*base
	legend    *layers.Legend
	selection *highlight.Selection
	clientIP  string
	cluster   bool
	// popupGen invalidates popups still rendering when the selection moves on.
	popupGen atomic.Uint64
}

// WorldMap shows lines, spots and guides with clustering.
type WorldMap struct{ *browseMap }

// CommunityMap shows slackline groups or managed areas, one at a time.
type CommunityMap struct{ *browseMap }

// NewWorldMap creates a world map session.
func NewWorldMap(id string, deps Deps, p Params) *WorldMap {
	m := newBrowseMap(id, KindWorld, deps, p, layers.SlacklineLegend(), true)
	m.start(m.options(), hooks{
		onLoad:          m.onLoad,
		onEvent:         m.onEvent,
		styleFor:        layers.StyleForZoom,
		persistViewport: true,
		onClose:         m.selection.Close,
	})
	return &WorldMap{m}
}

// NewCommunityMap creates a community map session.
func NewCommunityMap(id string, deps Deps, p Params) *CommunityMap {
	m := newBrowseMap(id, KindCommunity, deps, p, layers.CommunityLegend(), false)
	m.start(m.options(), hooks{
		onLoad:  m.onLoad,
		onEvent: m.onEvent,
		styleFor: func(zoom float64) layers.MapStyle {
			s := layers.StyleForZoom(zoom)
			s.Style = layers.StyleLight
			return s
		},
		persistViewport: true,
		onClose:         m.selection.Close,
	})
	return &CommunityMap{m}
}

func newBrowseMap(id string, kind Kind, deps Deps, p Params, legend *layers.Legend, cluster bool) *browseMap {
	m := &browseMap{
		base:     newBase(id, kind, deps, p),
		legend:   legend,
		clientIP: p.ClientIP,
		cluster:  cluster,
	}
	m.selection = highlight.NewSelection(m.handle, highlight.SelectionOptions{
		Narrow:        m.narrow,
		NarrowPadding: deps.Map.NarrowPadding,
		OnChange:      m.selectionChanged,
	})
	return m
}

func (m *browseMap) options() coordinator.Options {
	opts := m.coordinatorOptions()
	if m.cluster {
		opts.ClusterSourceID = layers.SharedClusterSource
		if m.deps.Cache != nil {
			opts.Cache = m.deps.Cache
		}
	}
	opts.OnMovedToFeature = m.hover.Set
	opts.OnMovedToVoid = func() { m.hover.Set(nil) }
	opts.OnClickedToFeature = m.clickedFeature
	opts.OnClickedToVoid = func() {
		m.selection.Set(nil)
		m.closePopup()
	}
	return opts
}

func (m *browseMap) composition() layers.Composition {
	return layers.Compose(m.legend, layers.Options{
		URLs:    m.deps.URLs,
		Styles:  m.deps.styles(),
		Cluster: m.deps.clusterParams(),
	})
}

// Snapshot implements Session.
func (m *browseMap) Snapshot() Snapshot {
	return m.snapshot(m.composition(), m.legend)
}

// Close implements Session.
func (m *browseMap) Close() {
	m.closeBase()
	m.publish("closed", m.id)
}

func (m *browseMap) onLoad(context.Context) {
	m.flyToVisitor(m.clientIP)
}

func (m *browseMap) onEvent(_ context.Context, ev Event) error {
	switch ev.Type {
	case EventPopupClose:
		return m.handle.EaseTo(mapengine.CameraOptions{Padding: &mapengine.Padding{}, Animate: true})
	case EventLegend:
		if ev.Legend == nil {
			return nil
		}
		if m.legend.Toggle(ev.Legend.Key, ev.Legend.Selected) {
			if err := m.handle.SetComposition(m.composition()); err != nil {
				return err
			}
			return m.handle.Signals(map[string]any{"legend": m.legend.Values()})
		}
		return nil
	}
	return ErrUnsupported
}

func (m *browseMap) clickedFeature(f *mapengine.RenderedFeature) {
	switch {
	case layers.KindOf(f.LayerID) == layers.KindUnclusteredPoint:
		m.fitToPoint(f)
	case layers.MouseHoverable(f.LayerID):
		m.selection.Set(f)
		m.openPopup(f)
	}
}

// fitToPoint frames the full geometry behind a cluster point, looked up in
// the feature cache.
func (m *browseMap) fitToPoint(f *mapengine.RenderedFeature) {
	if m.deps.Cache == nil {
		return
	}
	id := geo.PropertyID(f.Properties)
	full, ok := m.deps.Cache.Lookup(id)
	if !ok {
		m.log.Debug().Str("id", id).Msg("point not cached yet")
		return
	}
	length, _ := geo.Length(f.Properties)
	bounds, err := geo.ComputeBounds(full.Geometry, length, 1)
	if err != nil {
		m.log.Debug().Err(err).Str("id", id).Msg("cannot frame point")
		return
	}
	if err := m.handle.FitBounds(bounds.Padded, mapengine.FitOptions{Animate: true}); err != nil {
		m.log.Debug().Err(err).Msg("fit bounds not sent")
	}
}

func (m *browseMap) openPopup(f *mapengine.RenderedFeature) {
	c := geo.Classify(f.Geometry, f.Properties)
	if !c.OK || c.ID == "" || c.Type == "" {
		return
	}
	props := f.Properties
	gen := m.popupGen.Add(1)
	m.goAsync(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ContextWithSession(ctx, m.id), popupDetailsTimeout)
		defer cancel()
		html, err := m.popupFor(ctx, c, props)
		if err != nil {
			m.log.Warn().Err(err).Str("id", c.ID).Msg("popup not rendered")
			return
		}
		if ctx.Err() != nil || m.popupGen.Load() != gen {
			return
		}
		if err := m.handle.Popup(html, c.Centroid); err != nil {
			m.log.Debug().Err(err).Msg("popup not sent")
		}
	})
}

func (m *browseMap) closePopup() {
	m.popupGen.Add(1)
	if err := m.handle.ClosePopup(); err != nil {
		m.log.Debug().Err(err).Msg("popup close not sent")
	}
}

func (m *browseMap) selectionChanged(f *mapengine.RenderedFeature) {
	var selected any
	id := ""
	if f != nil {
		c := geo.Classify(f.Geometry, f.Properties)
		id = c.ID
		selected = map[string]any{"id": c.ID, "type": c.Type, "layer": f.LayerID}
	}
	if err := m.handle.Signals(map[string]any{"selectedFeature": selected}); err != nil {
		m.log.Debug().Err(err).Msg("selection signal not sent")
	}
	m.publish("selected", id)
}
