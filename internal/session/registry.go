package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/metrics"
	"github.com/joeblew999/plat-slackmap/internal/service"
)

type ctxKey struct{}

// ContextWithSession tags ctx with a session id so notifications raised
// while serving it reach the right page.
func ContextWithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// SessionFromContext returns the id set by ContextWithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Registry owns the live sessions.
type Registry struct {
	deps Deps
	idle time.Duration
	log  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	idle := deps.Session.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{
		deps:     deps,
		idle:     idle,
		log:      logging.With("sessions"),
		sessions: make(map[string]Session),
	}
}

// SetRecords installs the backend after construction, for clients whose
// notifier routes through this registry.
func (r *Registry) SetRecords(rec Records) {
	r.mu.Lock()
	r.deps.Records = rec
	r.mu.Unlock()
}

// Create starts a session of kind.
func (r *Registry) Create(ctx context.Context, kind Kind, p Params) (Session, error) {
	id := uuid.NewString()
	r.mu.RLock()
	deps := r.deps
	r.mu.RUnlock()

	var s Session
	switch kind {
	case KindWorld:
		s = NewWorldMap(id, deps, p)
	case KindCommunity:
		s = NewCommunityMap(id, deps, p)
	case KindFocused:
		if p.GeoJSON == nil && p.FeatureID != "" {
			fc, err := r.fetchGeoJSON(ContextWithSession(ctx, id), deps, p)
			if err != nil {
				return nil, err
			}
			p.GeoJSON = fc
		}
		m, err := NewFocusedMap(id, deps, p)
		if err != nil {
			return nil, err
		}
		s = m
	case KindDrawable:
		if p.GeoJSON == nil && p.FeatureID != "" {
			fc, err := r.fetchGeoJSON(ContextWithSession(ctx, id), deps, p)
			if err != nil {
				return nil, err
			}
			p.GeoJSON = fc
		}
		m, err := NewDrawableMap(id, deps, p)
		if err != nil {
			return nil, err
		}
		s = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	metrics.ActiveSessions.WithLabelValues(string(kind)).Inc()
	r.log.Info().Str("session", id).Str("kind", string(kind)).Msg("session created")
	if deps.Publisher != nil {
		deps.Publisher.Publish(service.Event{Resource: "sessions", Action: "created", ID: id, Detail: string(kind)})
	}
	return s, nil
}

func (r *Registry) fetchGeoJSON(ctx context.Context, deps Deps, p Params) (*geojson.FeatureCollection, error) {
	if deps.Records == nil {
		return nil, ErrNoBackend
	}
	cat, err := backend.CategoryFor(p.FeatureType)
	if err != nil {
		return nil, err
	}
	return deps.Records.GeoJSON(ctx, cat, p.FeatureID)
}

// Get returns a live session.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Close ends a session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.closeSession(s, "closed")
	return nil
}

func (r *Registry) closeSession(s Session, reason string) {
	s.Close()
	metrics.ActiveSessions.WithLabelValues(string(s.Kind())).Dec()
	r.log.Info().Str("session", s.ID()).Str("reason", reason).Msg("session ended")
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle since before now minus the idle timeout.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idle)
	var expired []Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		r.closeSession(s, "idle")
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes all sessions.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Shutdown()
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.log.Debug().Int("expired", n).Msg("swept idle sessions")
			}
		}
	}
}

// Shutdown closes every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		r.closeSession(s, "shutdown")
	}
}

// Notify implements backend.Notifier, routing to the session in ctx.
func (r *Registry) Notify(ctx context.Context, n backend.Notification) {
	id, ok := SessionFromContext(ctx)
	if !ok {
		r.log.Debug().Str("message", n.Message).Msg("notification without session")
		return
	}
	s, err := r.Get(id)
	if err != nil {
		return
	}
	s.Handle().Notify(ctx, n)
}
