package draw

import (
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/logging"
)

// Sink receives the imperative calls meant for the browser plugin.
type Sink interface {
	DrawSet(fc *geojson.FeatureCollection) error
	DrawDeleteAll() error
}

// MemoryPlugin is the server-side mirror of the browser drawing plugin.
// Set and DeleteAll update the mirror and are pushed to the sink; Replace
// records state reported by the browser without pushing it back.
type MemoryPlugin struct {
	mu       sync.RWMutex
	features []*geojson.Feature
	sink     Sink
	log      zerolog.Logger
}

// NewMemoryPlugin creates an empty plugin. sink may be nil.
func NewMemoryPlugin(sink Sink) *MemoryPlugin {
	return &MemoryPlugin{sink: sink, log: logging.With("draw")}
}

// GetAll returns a copy of the mirrored collection.
func (p *MemoryPlugin) GetAll() *geojson.FeatureCollection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, p.features...)
	return fc
}

// Set replaces the collection and pushes it to the browser.
func (p *MemoryPlugin) Set(fc *geojson.FeatureCollection) {
	p.mu.Lock()
	if fc == nil {
		p.features = nil
	} else {
		p.features = append([]*geojson.Feature(nil), fc.Features...)
	}
	p.mu.Unlock()
	if p.sink != nil {
		if err := p.sink.DrawSet(p.GetAll()); err != nil {
			p.log.Debug().Err(err).Msg("draw set not delivered")
		}
	}
}

// DeleteAll clears the collection and the browser drawing.
func (p *MemoryPlugin) DeleteAll() {
	p.mu.Lock()
	p.features = nil
	p.mu.Unlock()
	if p.sink != nil {
		if err := p.sink.DrawDeleteAll(); err != nil {
			p.log.Debug().Err(err).Msg("draw delete not delivered")
		}
	}
}

// Replace records the browser's current features.
func (p *MemoryPlugin) Replace(features []*geojson.Feature) {
	p.mu.Lock()
	p.features = append([]*geojson.Feature(nil), features...)
	p.mu.Unlock()
}
