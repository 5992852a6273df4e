package highlight

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

// SelectionOptions configures a Selection.
type SelectionOptions struct {
	// Narrow reports whether the viewport is below the desktop breakpoint.
	Narrow func() bool
	// NarrowPadding is the right camera padding used on narrow viewports.
	NarrowPadding float64
	// OnChange is notified with the selected feature, nil when cleared.
	OnChange func(f *mapengine.RenderedFeature)
}

// Selection tracks the selected feature and moves the camera to it.
type Selection struct {
	handle mapengine.MapHandle
	scope  *ScopedHighlight
	opts   SelectionOptions
	log    zerolog.Logger

	mu      sync.Mutex
	current *mapengine.RenderedFeature
}

// NewSelection creates a selection holder.
func NewSelection(handle mapengine.MapHandle, opts SelectionOptions) *Selection {
	return &Selection{
		handle: handle,
		scope:  NewScopedHighlight(handle, mapengine.StateSelected),
		opts:   opts,
		log:    logging.With("selection"),
	}
}

// Set selects f: flag, fly to its centroid, notify. nil clears the
// selection and notifies nil.
func (s *Selection) Set(f *mapengine.RenderedFeature) {
	s.mu.Lock()
	s.current = f
	s.mu.Unlock()

	if f == nil {
		s.scope.Release()
		s.notify(nil)
		return
	}

	s.scope.Acquire(f.Ref)
	if center, ok := geo.Centroid(f.Geometry); ok {
		pad := mapengine.Padding{}
		if s.opts.Narrow != nil && s.opts.Narrow() {
			pad.Right = s.opts.NarrowPadding
		}
		s.flyTo(mapengine.CameraOptions{
			Center:  mapengine.Point(center),
			Padding: &pad,
			Animate: true,
		})
	}
	s.notify(f)
}

// Current returns the selected feature, nil when none.
func (s *Selection) Current() *mapengine.RenderedFeature {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close clears the selection flag without notifying.
func (s *Selection) Close() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.scope.Release()
}

// flyTo moves the camera; errors and panics are logged and dropped.
func (s *Selection) flyTo(opts mapengine.CameraOptions) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Str("panic", fmt.Sprint(r)).Msg("selection fly-to panicked")
		}
	}()
	if err := s.handle.FlyTo(opts); err != nil {
		s.log.Debug().Err(err).Msg("selection fly-to failed")
	}
}

func (s *Selection) notify(f *mapengine.RenderedFeature) {
	if s.opts.OnChange == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r)).Msg("recovered panic in selection callback")
		}
	}()
	s.opts.OnChange(f)
}
