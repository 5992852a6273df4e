// Package highlight mirrors hover, selection and focus onto the engine's
// per-feature render state.
package highlight

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
	"github.com/joeblew999/plat-slackmap/internal/metrics"
)

// ScopedHighlight owns one feature-state flag on at most one feature.
// Acquiring a new feature releases the previous one first.
type ScopedHighlight struct {
	handle mapengine.MapHandle
	key    string
	log    zerolog.Logger

	mu   sync.Mutex
	held *mapengine.FeatureRef
}

// NewScopedHighlight manages key (hover, isSelected, isFocused) on handle.
func NewScopedHighlight(handle mapengine.MapHandle, key string) *ScopedHighlight {
	return &ScopedHighlight{
		handle: handle,
		key:    key,
		log:    logging.With("highlight").With().Str("key", key).Logger(),
	}
}

// Acquire moves the flag to ref. Acquiring the held ref is a no-op.
func (s *ScopedHighlight) Acquire(ref mapengine.FeatureRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held != nil && *s.held == ref {
		return
	}
	s.releaseLocked()
	if !ref.Valid() {
		return
	}
	s.held = &ref
	s.mutate("set", func() error {
		return s.handle.SetFeatureState(ref, mapengine.FeatureState{s.key: true})
	})
}

// Release clears the flag from the held feature, if any.
func (s *ScopedHighlight) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Held returns the feature holding the flag.
func (s *ScopedHighlight) Held() (mapengine.FeatureRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		return mapengine.FeatureRef{}, false
	}
	return *s.held, true
}

func (s *ScopedHighlight) releaseLocked() {
	if s.held == nil {
		return
	}
	ref := *s.held
	s.held = nil
	s.mutate("remove", func() error {
		return s.handle.RemoveFeatureState(ref, s.key)
	})
}

// mutate runs one engine call; errors and panics are logged and dropped.
func (s *ScopedHighlight) mutate(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.FeatureStateErrors.WithLabelValues(s.key, op).Inc()
			s.log.Warn().Str("op", op).Str("panic", fmt.Sprint(r)).Msg("feature state mutation panicked")
		}
	}()
	if err := fn(); err != nil {
		metrics.FeatureStateErrors.WithLabelValues(s.key, op).Inc()
		s.log.Warn().Err(err).Str("op", op).Msg("feature state mutation failed")
	}
}

// Hover tracks the hovered feature.
type Hover struct {
	scope *ScopedHighlight
}

// NewHover creates a hover holder.
func NewHover(handle mapengine.MapHandle) *Hover {
	return &Hover{scope: NewScopedHighlight(handle, mapengine.StateHover)}
}

// Set hovers f; nil clears the hover.
func (h *Hover) Set(f *mapengine.RenderedFeature) {
	if f == nil {
		h.scope.Release()
		return
	}
	h.scope.Acquire(f.Ref)
}

// Current returns the hovered feature ref.
func (h *Hover) Current() (mapengine.FeatureRef, bool) {
	return h.scope.Held()
}

// Close clears the hover.
func (h *Hover) Close() {
	h.scope.Release()
}

// Focus marks the focused feature of a focused map.
type Focus struct {
	scope *ScopedHighlight
}

// NewFocus creates a focus holder.
func NewFocus(handle mapengine.MapHandle) *Focus {
	return &Focus{scope: NewScopedHighlight(handle, mapengine.StateFocused)}
}

// Set focuses ref.
func (f *Focus) Set(ref mapengine.FeatureRef) {
	f.scope.Acquire(ref)
}

// Clear removes the focus.
func (f *Focus) Clear() {
	f.scope.Release()
}
