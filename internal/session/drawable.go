package session

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/draw"
	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/layers"
)

// DrawableMap edits the geometry of one record. The record itself is hidden
// from the background layers while it is being drawn.
type DrawableMap struct {
	*base
	plugin      *draw.MemoryPlugin
	bridge      *draw.Bridge
	featureID   string
	featureType geo.FeatureType
	initial     []*geojson.Feature
}

// NewDrawableMap creates a drawing session. p.FeatureID is empty for new
// records.
func NewDrawableMap(id string, deps Deps, p Params) (*DrawableMap, error) {
	if _, err := backend.CategoryFor(p.FeatureType); err != nil {
		return nil, err
	}
	m := &DrawableMap{
		base:        newBase(id, KindDrawable, deps, p),
		featureID:   p.FeatureID,
		featureType: p.FeatureType,
	}
	if p.GeoJSON != nil {
		m.initial = p.GeoJSON.Features
		if m.initial == nil {
			m.initial = []*geojson.Feature{}
		}
	}
	m.plugin = draw.NewMemoryPlugin(m.handle)
	m.bridge = draw.NewBridge(m.plugin, m.handle, draw.Options{
		OnChange:          m.drawingChanged,
		OnSelectionChange: m.drawSelectionChanged,
	})

	opts := m.coordinatorOptions()
	opts.OnMovedToFeature = m.hover.Set
	opts.OnMovedToVoid = func() { m.hover.Set(nil) }
	m.start(opts, hooks{
		onLoad:   m.onLoad,
		onEvent:  m.onEvent,
		styleFor: layers.StyleForZoom,
	})
	return m, nil
}

func (m *DrawableMap) composition() layers.Composition {
	return layers.Compose(layers.SlacklineLegend(), layers.Options{
		ExcludeID:         m.featureID,
		URLs:              m.deps.URLs,
		Styles:            m.deps.styles(),
		DisableClustering: true,
	})
}

// Snapshot implements Session.
func (m *DrawableMap) Snapshot() Snapshot {
	return m.snapshot(m.composition(), nil)
}

// Close implements Session.
func (m *DrawableMap) Close() {
	m.closeBase()
	m.publish("closed", m.id)
}

// Features is the current drawing.
func (m *DrawableMap) Features() []*geojson.Feature {
	return m.bridge.Features()
}

func (m *DrawableMap) onLoad(context.Context) {
	m.bridge.Mount(m.initial)
	if len(m.bridge.Features()) == 0 {
		return
	}
	if err := m.bridge.Refit(false); err != nil {
		m.log.Debug().Err(err).Msg("initial fit failed")
	}
}

func (m *DrawableMap) onEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventDraw:
		kind, ok := draw.ParseEventKind(ev.Draw)
		if !ok {
			return fmt.Errorf("%w: draw event %q", ErrUnsupported, ev.Draw)
		}
		if kind != draw.SelectionChange {
			m.plugin.Replace(ev.DrawFeatures)
		}
		m.bridge.HandleEvent(draw.Event{Kind: kind, Features: ev.EventFeatures})
		return nil
	case EventFocus:
		return m.bridge.Refit(true)
	case EventSave:
		return m.save(ctx, ev.Save)
	}
	return ErrUnsupported
}

// save creates or updates the record with the current drawing. The backend
// reports the outcome to the page.
func (m *DrawableMap) save(ctx context.Context, req *SaveRequest) error {
	if m.deps.Records == nil {
		return ErrNoBackend
	}
	features := m.bridge.Features()
	if len(features) == 0 {
		return ErrNothingDrawn
	}
	cat, err := backend.CategoryFor(m.featureType)
	if err != nil {
		return err
	}
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	p := backend.Payload{ID: m.featureID, GeoJSON: fc}
	if req != nil {
		p.Name, p.Description, p.Extra = req.Name, req.Description, req.Fields
	}

	ctx = ContextWithSession(ctx, m.id)
	if m.featureID == "" {
		_, err = m.deps.Records.Create(ctx, cat, p)
	} else {
		_, err = m.deps.Records.Update(ctx, cat, p)
	}
	if err != nil {
		return err
	}
	m.publish("saved", m.featureID)
	return nil
}

func (m *DrawableMap) drawingChanged(features []*geojson.Feature) {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	if err := m.handle.Signals(map[string]any{"drawing": fc, "drawnFeatures": len(features)}); err != nil {
		m.log.Debug().Err(err).Msg("drawing signal not sent")
	}
}

func (m *DrawableMap) drawSelectionChanged(f *geojson.Feature) {
	var id any
	if f != nil {
		id = geo.FeatureID(f)
	}
	if err := m.handle.Signals(map[string]any{"selectedDrawFeature": id}); err != nil {
		m.log.Debug().Err(err).Msg("draw selection signal not sent")
	}
}
