// Package draw keeps a drawing plugin and the owning page in sync while a
// draw control is mounted. The plugin is the source of truth: the bridge
// never holds its own copy of the drawing.
package draw

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

// Plugin is the drawing plugin's imperative API.
type Plugin interface {
	GetAll() *geojson.FeatureCollection
	Set(fc *geojson.FeatureCollection)
	DeleteAll()
}

// EventKind is a plugin event.
type EventKind string

const (
	Created         EventKind = "created"
	Updated         EventKind = "updated"
	Deleted         EventKind = "deleted"
	SelectionChange EventKind = "selectionchange"
)

// ParseEventKind accepts the plugin's event names with or without the
// "draw." prefix.
func ParseEventKind(s string) (EventKind, bool) {
	switch EventKind(strings.TrimPrefix(s, "draw.")) {
	case Created, "create":
		return Created, true
	case Updated, "update":
		return Updated, true
	case Deleted, "delete":
		return Deleted, true
	case SelectionChange:
		return SelectionChange, true
	}
	return "", false
}

// Event is one plugin notification. Features are the event's own features,
// used by selectionchange.
type Event struct {
	Kind     EventKind
	Features []*geojson.Feature
}

// Options configures a Bridge.
type Options struct {
	// OnChange receives the plugin's full feature list after every edit.
	OnChange func(features []*geojson.Feature)
	// OnSelectionChange receives the single selected feature, or nil.
	OnSelectionChange func(f *geojson.Feature)
}

// Bridge mirrors edits between a Plugin and the page.
type Bridge struct {
	plugin Plugin
	handle mapengine.MapHandle
	opts   Options
	log    zerolog.Logger
}

// NewBridge creates a bridge. handle is used by Refit and may be nil.
func NewBridge(plugin Plugin, handle mapengine.MapHandle, opts Options) *Bridge {
	return &Bridge{
		plugin: plugin,
		handle: handle,
		opts:   opts,
		log:    logging.With("draw"),
	}
}

// Mount merges initial into the plugin's collection. Plugin features win on
// id collisions so in-progress edits survive a refreshed initial list.
// A nil initial list is ignored; an empty one clears the plugin.
func (b *Bridge) Mount(initial []*geojson.Feature) {
	if initial == nil {
		return
	}
	if len(initial) == 0 {
		b.plugin.DeleteAll()
		return
	}

	var order []string
	byID := make(map[string]*geojson.Feature, len(initial))
	put := func(f *geojson.Feature) {
		id := featureID(f)
		if id == "" {
			return
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = f
	}
	for _, f := range initial {
		put(f)
	}
	if current := b.plugin.GetAll(); current != nil {
		for _, f := range current.Features {
			put(f)
		}
	}

	fc := geojson.NewFeatureCollection()
	for _, id := range order {
		fc.Append(byID[id])
	}
	b.plugin.Set(fc)
}

// HandleEvent forwards the plugin state after create/update/delete and
// resolves selection changes.
func (b *Bridge) HandleEvent(ev Event) {
	switch ev.Kind {
	case Created, Updated, Deleted:
		if b.opts.OnChange != nil {
			b.opts.OnChange(b.Features())
		}
	case SelectionChange:
		if b.opts.OnSelectionChange == nil {
			return
		}
		if len(ev.Features) == 1 {
			b.opts.OnSelectionChange(ev.Features[0])
			return
		}
		b.opts.OnSelectionChange(nil)
	default:
		b.log.Debug().Str("kind", string(ev.Kind)).Msg("ignoring unknown draw event")
	}
}

// Features returns the plugin's current features, never nil.
func (b *Bridge) Features() []*geojson.Feature {
	fc := b.plugin.GetAll()
	if fc == nil || fc.Features == nil {
		return []*geojson.Feature{}
	}
	return fc.Features
}

// Refit fits the camera to the drawing, padded by the first feature's
// length.
func (b *Bridge) Refit(animate bool) error {
	if b.handle == nil {
		return mapengine.ErrClosed
	}
	features := b.Features()
	fc := geojson.NewFeatureCollection()
	fc.Features = features

	var length float64
	if len(features) > 0 && features[0] != nil {
		length, _ = geo.Length(features[0].Properties)
	}
	bounds, err := geo.ComputeCollectionBounds(fc, length, 1)
	if err != nil {
		return err
	}
	return b.handle.FitBounds(bounds.Padded, mapengine.FitOptions{Animate: animate})
}

func featureID(f *geojson.Feature) string {
	if f == nil || f.ID == nil {
		return ""
	}
	switch id := f.ID.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%g", id)
	}
	return fmt.Sprint(f.ID)
}
