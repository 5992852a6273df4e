// Package session hosts the server side of interactive map pages. Each page
// gets a session: a map widget wired to the map core whose engine handle is
// the page's SSE stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/config"
	"github.com/joeblew999/plat-slackmap/internal/coordinator"
	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/geolocate"
	"github.com/joeblew999/plat-slackmap/internal/highlight"
	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
	"github.com/joeblew999/plat-slackmap/internal/metrics"
	"github.com/joeblew999/plat-slackmap/internal/service"
	"github.com/joeblew999/plat-slackmap/internal/templates"
	"github.com/joeblew999/plat-slackmap/internal/viewstate"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrUnknownKind  = errors.New("unknown map kind")
	ErrUnsupported  = errors.New("event not supported by this map")
	ErrNoBackend    = errors.New("no backend configured")
	ErrNothingDrawn = errors.New("nothing drawn")
)

// Kind is the map widget a session runs.
type Kind string

const (
	KindWorld     Kind = "world"
	KindCommunity Kind = "community"
	KindFocused   Kind = "focused"
	KindDrawable  Kind = "drawable"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindWorld, KindCommunity, KindFocused, KindDrawable:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Session is one live map page.
type Session interface {
	ID() string
	Kind() Kind
	Handle() *SSEHandle
	Snapshot() Snapshot
	Dispatch(ctx context.Context, ev Event) error
	Close()
	idleSince() time.Time
}

// Snapshot is the initial state a page needs to build its map.
type Snapshot struct {
	ID                  string              `json:"id"`
	Kind                Kind                `json:"kind"`
	Viewport            viewstate.Viewport  `json:"viewport"`
	Style               layers.MapStyle     `json:"style"`
	Composition         layers.Composition  `json:"composition"`
	InteractiveLayerIDs []string            `json:"interactiveLayerIds"`
	Legend              []layers.LegendItem `json:"legend,omitempty"`
	ExclusiveLegend     bool                `json:"exclusiveLegend,omitempty"`
}

// FeatureCache is the cache view used by the widgets.
type FeatureCache interface {
	coordinator.Populator
	Lookup(id string) (*geojson.Feature, bool)
}

// Records is the backend view used by the widgets.
type Records interface {
	Details(ctx context.Context, cat backend.Category, id string) (*backend.Details, error)
	GeoJSON(ctx context.Context, cat backend.Category, id string) (*geojson.FeatureCollection, error)
	Create(ctx context.Context, cat backend.Category, p backend.Payload) (*backend.Details, error)
	Update(ctx context.Context, cat backend.Category, p backend.Payload) (*backend.Details, error)
}

// Publisher receives session lifecycle events.
type Publisher interface {
	Publish(e service.Event)
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Map       config.MapConfig
	Session   config.SessionConfig
	URLs      layers.DocumentURLs
	Styles    func() layers.Styles
	Cache     FeatureCache
	Records   Records
	Locator   geolocate.Locator
	Renderer  *templates.Renderer
	Publisher Publisher
}

func (d Deps) styles() layers.Styles {
	if d.Styles == nil {
		return layers.DefaultStyles()
	}
	return d.Styles()
}

func (d Deps) clusterParams() layers.ClusterParams {
	return layers.ClusterParams{
		MaxZoom:   d.Map.ClusterMaxZoom,
		MinPoints: d.Map.ClusterMinPoints,
		Radius:    d.Map.ClusterRadius,
	}
}

// Params are the per-page inputs of a new session.
type Params struct {
	// MapParam is the raw `map` query value of the page URL.
	MapParam string
	// Width is the viewport width in pixels, 0 when unknown.
	Width int
	// ClientIP locates the visitor when no view was supplied.
	ClientIP string
	// FeatureID and FeatureType select the record of focused and drawable maps.
	FeatureID   string
	FeatureType geo.FeatureType
	// GeoJSON is the focused collection or the initial drawing.
	GeoJSON *geojson.FeatureCollection
}

// hooks are the widget specific parts of the event loop.
type hooks struct {
	onLoad  func(ctx context.Context)
	onEvent func(ctx context.Context, ev Event) error
	// styleFor picks the base style for a zoom; nil keeps the initial style.
	styleFor func(zoom float64) layers.MapStyle
	// persistViewport writes the camera to the page URL on move end.
	persistViewport bool
	// onClose runs once, after Dispatch stops accepting events.
	onClose func()
}

// base is the event loop shared by all widgets.
type base struct {
	id     string
	kind   Kind
	deps   Deps
	handle *SSEHandle
	coord  *coordinator.Coordinator
	hover  *highlight.Hover
	log    zerolog.Logger
	hooks  hooks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	limiter  *rate.Limiter
	width    atomic.Int64
	lastSeen atomic.Int64

	mu          sync.Mutex
	viewport    viewstate.Viewport
	hasInitial  bool
	style       layers.MapStyle
	lastMoveKey string
	closed      bool
}

func newBase(id string, kind Kind, deps Deps, p Params) *base {
	ctx, cancel := context.WithCancel(context.Background())
	limit := rate.Limit(deps.Map.MouseMoveRate)
	if limit <= 0 {
		limit = rate.Inf
	}
	b := &base{
		id:      id,
		kind:    kind,
		deps:    deps,
		handle:  NewSSEHandle(256, deps.Session.ReplyTimeout),
		log:     logging.With("session").With().Str("session", id).Str("kind", string(kind)).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(limit, 1),
	}
	b.width.Store(int64(p.Width))
	b.touch()

	b.viewport = viewstate.Default()
	if deps.Map.DefaultZoom != 0 || deps.Map.DefaultLongitude != 0 || deps.Map.DefaultLatitude != 0 {
		b.viewport = viewstate.Viewport{
			Longitude: deps.Map.DefaultLongitude,
			Latitude:  deps.Map.DefaultLatitude,
			Zoom:      deps.Map.DefaultZoom,
		}
	}
	if v, ok := viewstate.Decode(p.MapParam); ok {
		b.viewport = v
		b.hasInitial = true
	}
	b.handle.SetZoom(b.viewport.Zoom)
	b.hover = highlight.NewHover(b.handle)
	return b
}

func (b *base) ID() string { return b.id }
func (b *base) Kind() Kind { return b.kind }
func (b *base) Handle() *SSEHandle { return b.handle }
func (b *base) idleSince() time.Time { return time.Unix(0, b.lastSeen.Load()) }
func (b *base) touch() { b.lastSeen.Store(time.Now().UnixNano()) }

// narrow reports whether the page is below the desktop breakpoint. An
// unknown width counts as desktop.
func (b *base) narrow() bool {
	w := b.width.Load()
	return w > 0 && w < int64(b.deps.Map.DesktopBreakpoint)
}

func (b *base) coordinatorOptions() coordinator.Options {
	return coordinator.Options{
		CursorInteractable: layers.CursorInteractable,
		MouseHoverable:     layers.MouseHoverable,
	}
}

// start creates the coordinator once the widget has filled in its options.
func (b *base) start(opts coordinator.Options, h hooks) {
	b.coord = coordinator.New(b.ctx, b.handle, opts)
	b.hooks = h
	if h.styleFor != nil {
		b.style = h.styleFor(b.viewport.Zoom)
	}
}

// Dispatch feeds one browser event through the widget. Events of a session
// are processed one at a time.
func (b *base) Dispatch(ctx context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return mapengine.ErrClosed
	}
	b.touch()
	if ev.Width > 0 {
		b.width.Store(int64(ev.Width))
	}

	switch ev.Type {
	case EventLoad:
		b.coord.OnLoad()
		if b.hooks.onLoad != nil {
			b.hooks.onLoad(ctx)
		}
	case EventMouseMove:
		top := ev.top()
		if !b.allowMove(top) {
			metrics.MapEventsDropped.WithLabelValues("throttled").Inc()
			return nil
		}
		b.coord.OnMouseMove(top)
	case EventClick:
		b.coord.OnClick(ev.top())
	case EventSourceData:
		b.coord.OnSourceData(coordinator.SourceDataEvent{SourceID: ev.SourceID, IsSourceLoaded: ev.IsSourceLoaded})
	case EventZoom:
		if ev.Viewport != nil {
			b.zoomed(ev.Viewport.Zoom)
		}
	case EventMoveEnd:
		if ev.Viewport != nil {
			b.movedTo(*ev.Viewport)
		}
	case EventResize:
	default:
		if b.hooks.onEvent == nil {
			return fmt.Errorf("%w: %s", ErrUnsupported, ev.Type)
		}
		return b.hooks.onEvent(ctx, ev)
	}
	return nil
}

// allowMove throttles pointer moves that stay on the same feature. A move to
// another feature or to the void is always processed.
func (b *base) allowMove(top *mapengine.RenderedFeature) bool {
	key := ""
	if top != nil {
		key = top.LayerID + "|" + top.Ref.Source + "|" + top.Ref.ID
	}
	if key != b.lastMoveKey {
		b.lastMoveKey = key
		b.limiter.Allow()
		return true
	}
	return b.limiter.Allow()
}

func (b *base) zoomed(z float64) {
	b.handle.SetZoom(z)
	b.viewport.Zoom = z
	if b.hooks.styleFor == nil {
		return
	}
	next := b.hooks.styleFor(z)
	if next == b.style {
		return
	}
	b.style = next
	if err := b.handle.SetStyle(next); err != nil {
		b.log.Debug().Err(err).Msg("style switch not sent")
	}
}

func (b *base) movedTo(v viewstate.Viewport) {
	b.viewport = v
	b.zoomed(v.Zoom)
	if b.hooks.persistViewport && b.deps.Map.PersistViewport {
		if err := b.handle.ReplaceURL(viewstate.QueryParam, viewstate.EncodeViewport(v)); err != nil {
			b.log.Debug().Err(err).Msg("viewport not persisted")
		}
	}
	b.publish("moveend", viewstate.EncodeViewport(v))
}

// flyToVisitor places the camera near the visitor when the page supplied no
// view. Failures only cost the initial placement.
func (b *base) flyToVisitor(clientIP string) {
	if b.hasInitial || b.deps.Locator == nil || clientIP == "" {
		return
	}
	zoom := b.deps.Map.UserLocationZoomDesktop
	if b.narrow() {
		zoom = b.deps.Map.UserLocationZoomMobile
	}
	b.goAsync(func(ctx context.Context) {
		if err := geolocate.FlyToVisitor(ctx, b.handle, b.deps.Locator, clientIP, zoom); err != nil {
			b.log.Debug().Err(err).Msg("visitor location unavailable")
		}
	})
}

func (b *base) goAsync(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error().Str("panic", fmt.Sprint(r)).Msg("recovered panic in session task")
			}
		}()
		fn(b.ctx)
	}()
}

func (b *base) publish(action, detail string) {
	if b.deps.Publisher == nil {
		return
	}
	b.deps.Publisher.Publish(service.Event{Resource: "sessions", Action: action, ID: b.id, Detail: detail})
}

func (b *base) snapshot(comp layers.Composition, legend *layers.Legend) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		ID:                  b.id,
		Kind:                b.kind,
		Viewport:            b.viewport,
		Style:               b.style,
		Composition:         comp,
		InteractiveLayerIDs: comp.InteractiveLayerIDs(),
	}
	if legend != nil {
		s.Legend = legend.Items()
		s.ExclusiveLegend = legend.Exclusive()
	}
	return s
}

// closeBase stops the event loop. Widgets release their highlights first.
func (b *base) closeBase() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	if b.hooks.onClose != nil {
		b.hooks.onClose()
	}
	b.hover.Close()
	b.coord.Close()
	b.cancel()
	b.handle.Close()
	b.wg.Wait()
	b.coord.Wait()
}

// popupFor renders the info popup of a classified feature. Backend details
// are used when available, otherwise the feature label.
func (b *base) popupFor(ctx context.Context, c geo.Classification, props map[string]any) (string, error) {
	if b.deps.Renderer == nil {
		return "", errors.New("no renderer")
	}
	var details *backend.Details
	if b.deps.Records != nil {
		if cat, err := backend.CategoryFor(c.Type); err == nil {
			d, err := b.deps.Records.Details(ctx, cat, c.ID)
			if err != nil {
				b.log.Debug().Err(err).Str("id", c.ID).Msg("popup details unavailable")
			} else {
				details = d
			}
		}
	}
	label, _ := props[geo.PropLabel].(string)
	color := ""
	if cat, ok := layers.CategoryOf(c.Type); ok {
		color = b.deps.styles()[cat].Color
	}
	return b.deps.Renderer.Render(templates.FragmentPopup, templates.NewPopup(c.ID, c.Type, label, color, details))
}
