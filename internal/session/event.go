package session

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
	"github.com/joeblew999/plat-slackmap/internal/viewstate"
)

// EventType is a browser map event.
type EventType string

const (
	EventLoad       EventType = "load"
	EventMouseMove  EventType = "mousemove"
	EventClick      EventType = "click"
	EventSourceData EventType = "sourcedata"
	EventMoveEnd    EventType = "moveend"
	EventZoom       EventType = "zoom"
	EventResize     EventType = "resize"
	EventPopupClose EventType = "popupclose"
	EventLegend     EventType = "legend"
	EventFocus      EventType = "focus"
	EventDraw       EventType = "draw"
	EventSave       EventType = "save"
)

// WireFeature is a rendered feature as reported by the browser.
type WireFeature struct {
	ID          any               `json:"id,omitempty"`
	Source      string            `json:"source"`
	SourceLayer string            `json:"sourceLayer,omitempty"`
	Layer       string            `json:"layer"`
	Geometry    *geojson.Geometry `json:"geometry,omitempty"`
	Properties  map[string]any    `json:"properties,omitempty"`
}

// Rendered converts the wire form for the map core.
func (w WireFeature) Rendered() *mapengine.RenderedFeature {
	f := &mapengine.RenderedFeature{
		Ref: mapengine.FeatureRef{
			Source:      w.Source,
			SourceLayer: w.SourceLayer,
			ID:          wireID(w.ID),
		},
		LayerID:    w.Layer,
		Properties: w.Properties,
	}
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	if w.Geometry != nil {
		f.Geometry = w.Geometry.Geometry()
	}
	return f
}

func wireID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// LegendToggle is a legend item change.
type LegendToggle struct {
	Key      layers.Category `json:"key"`
	Selected bool            `json:"selected"`
}

// Event is one browser notification for a session.
type Event struct {
	Type EventType `json:"type"`

	// Features under the pointer, topmost first.
	Features []WireFeature `json:"features,omitempty"`

	SourceID       string `json:"sourceId,omitempty"`
	IsSourceLoaded bool   `json:"isSourceLoaded,omitempty"`

	Viewport *viewstate.Viewport `json:"viewport,omitempty"`
	Width    int                 `json:"width,omitempty"`

	Legend *LegendToggle `json:"legend,omitempty"`

	// Draw is the plugin event name and DrawFeatures the plugin state.
	Draw          string             `json:"draw,omitempty"`
	DrawFeatures  []*geojson.Feature `json:"drawFeatures,omitempty"`
	EventFeatures []*geojson.Feature `json:"eventFeatures,omitempty"`

	// Save carries the record fields for EventSave.
	Save *SaveRequest `json:"save,omitempty"`
}

// SaveRequest is a drawable map submission.
type SaveRequest struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// top returns the topmost feature, nil when none.
func (e Event) top() *mapengine.RenderedFeature {
	if len(e.Features) == 0 {
		return nil
	}
	return e.Features[0].Rendered()
}
