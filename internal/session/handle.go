package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
	"github.com/joeblew999/plat-slackmap/internal/metrics"
)

var (
	ErrQueueFull      = errors.New("command queue full")
	ErrReplyTimeout   = errors.New("timed out waiting for browser reply")
	ErrUnknownRequest = errors.New("unknown reply request")
)

// Command names sent to the browser.
const (
	CmdSetFeatureState      = "setFeatureState"
	CmdRemoveFeatureState   = "removeFeatureState"
	CmdFlyTo                = "flyTo"
	CmdEaseTo               = "easeTo"
	CmdFitBounds            = "fitBounds"
	CmdSetCursor            = "setCursor"
	CmdClusterExpansionZoom = "clusterExpansionZoom"
	CmdDrawSet              = "drawSet"
	CmdDrawDeleteAll        = "drawDeleteAll"
	CmdPopup                = "popup"
	CmdClosePopup           = "closePopup"
	CmdNotify               = "notify"
	CmdSetStyle             = "setStyle"
	CmdSetComposition       = "setComposition"
	CmdReplaceURL           = "replaceURL"
	CmdSignals              = "signals"
)

// Command is one instruction for the browser map.
type Command struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
	// HTML is a fragment patched into the page before the command runs.
	HTML string `json:"-"`
}

// Reply answers a request the handle sent to the browser.
type Reply struct {
	RequestID string  `json:"requestId"`
	Zoom      float64 `json:"zoom"`
	Error     string  `json:"error,omitempty"`
}

// SSEHandle implements mapengine.MapHandle by queueing commands for the
// session's SSE stream. Queries are answered through Resolve.
type SSEHandle struct {
	out     chan Command
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	zoom    float64
	pending map[string]chan Reply
}

var _ mapengine.MapHandle = (*SSEHandle)(nil)

// NewSSEHandle creates a handle with a queue of size buffer.
func NewSSEHandle(buffer int, replyTimeout time.Duration) *SSEHandle {
	if buffer <= 0 {
		buffer = 256
	}
	if replyTimeout <= 0 {
		replyTimeout = 5 * time.Second
	}
	return &SSEHandle{
		out:     make(chan Command, buffer),
		done:    make(chan struct{}),
		timeout: replyTimeout,
		log:     logging.With("sse-handle"),
		pending: make(map[string]chan Reply),
	}
}

// Commands is the queue drained by the SSE stream.
func (h *SSEHandle) Commands() <-chan Command { return h.out }

// Done is closed when the handle is closed.
func (h *SSEHandle) Done() <-chan struct{} { return h.done }

// Close stops accepting commands and fails pending requests.
func (h *SSEHandle) Close() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for id, ch := range h.pending {
			delete(h.pending, id)
			close(ch)
		}
		h.mu.Unlock()
	})
}

func (h *SSEHandle) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *SSEHandle) send(cmd Command) error {
	if h.closed() {
		return mapengine.ErrClosed
	}
	select {
	case h.out <- cmd:
		return nil
	default:
		metrics.MapEventsDropped.WithLabelValues("queue_full").Inc()
		h.log.Warn().Str("command", cmd.Name).Msg("command queue full, dropping")
		return ErrQueueFull
	}
}

func (h *SSEHandle) SetFeatureState(ref mapengine.FeatureRef, state mapengine.FeatureState) error {
	return h.send(Command{Name: CmdSetFeatureState, Args: map[string]any{"ref": ref, "state": state}})
}

func (h *SSEHandle) RemoveFeatureState(ref mapengine.FeatureRef, key string) error {
	return h.send(Command{Name: CmdRemoveFeatureState, Args: map[string]any{"ref": ref, "key": key}})
}

func (h *SSEHandle) FlyTo(opts mapengine.CameraOptions) error {
	return h.send(Command{Name: CmdFlyTo, Args: opts})
}

func (h *SSEHandle) EaseTo(opts mapengine.CameraOptions) error {
	return h.send(Command{Name: CmdEaseTo, Args: opts})
}

func (h *SSEHandle) FitBounds(b orb.Bound, opts mapengine.FitOptions) error {
	return h.send(Command{Name: CmdFitBounds, Args: map[string]any{
		"bounds":  [2]orb.Point{b.Min, b.Max},
		"padding": opts.Padding,
		"animate": opts.Animate,
	}})
}

func (h *SSEHandle) SetCursor(c mapengine.Cursor) error {
	return h.send(Command{Name: CmdSetCursor, Args: map[string]any{"cursor": c}})
}

// Zoom is the last zoom reported by the browser.
func (h *SSEHandle) Zoom() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zoom
}

// SetZoom records a zoom reported by the browser.
func (h *SSEHandle) SetZoom(z float64) {
	h.mu.Lock()
	h.zoom = z
	h.mu.Unlock()
}

// ClusterExpansionZoom asks the browser for the zoom at which a cluster
// splits and waits for the matching Resolve.
func (h *SSEHandle) ClusterExpansionZoom(ctx context.Context, sourceID string, clusterID int64) (float64, error) {
	id := uuid.NewString()
	ch := make(chan Reply, 1)
	h.mu.Lock()
	h.pending[id] = ch
	h.mu.Unlock()
	defer h.forget(id)

	if err := h.send(Command{Name: CmdClusterExpansionZoom, Args: map[string]any{
		"requestId": id,
		"sourceId":  sourceID,
		"clusterId": clusterID,
	}}); err != nil {
		return 0, err
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case r, ok := <-ch:
		if !ok {
			return 0, mapengine.ErrClosed
		}
		if r.Error != "" {
			return 0, fmt.Errorf("cluster %d of %s: %s", clusterID, sourceID, r.Error)
		}
		return r.Zoom, nil
	case <-timer.C:
		return 0, ErrReplyTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Resolve delivers a browser reply to the waiting request.
func (h *SSEHandle) Resolve(r Reply) error {
	h.mu.Lock()
	ch, ok := h.pending[r.RequestID]
	delete(h.pending, r.RequestID)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, r.RequestID)
	}
	ch <- r
	return nil
}

func (h *SSEHandle) forget(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// DrawSet pushes a drawing to the browser draw plugin.
func (h *SSEHandle) DrawSet(fc *geojson.FeatureCollection) error {
	return h.send(Command{Name: CmdDrawSet, Args: fc})
}

// DrawDeleteAll clears the browser drawing.
func (h *SSEHandle) DrawDeleteAll() error {
	return h.send(Command{Name: CmdDrawDeleteAll})
}

// Popup opens a popup with html anchored at p.
func (h *SSEHandle) Popup(html string, p orb.Point) error {
	return h.send(Command{Name: CmdPopup, Args: map[string]any{"lngLat": p, "anchor": "left"}, HTML: html})
}

// ClosePopup removes the popup.
func (h *SSEHandle) ClosePopup() error {
	return h.send(Command{Name: CmdClosePopup})
}

// SetStyle switches the base style and projection.
func (h *SSEHandle) SetStyle(s layers.MapStyle) error {
	return h.send(Command{Name: CmdSetStyle, Args: s})
}

// SetComposition replaces the map sources and layers.
func (h *SSEHandle) SetComposition(c layers.Composition) error {
	return h.send(Command{Name: CmdSetComposition, Args: map[string]any{
		"sources":             c.Sources,
		"layers":              c.Layers,
		"interactiveLayerIds": c.InteractiveLayerIDs(),
	}})
}

// ReplaceURL sets a query parameter of the page URL without navigation.
func (h *SSEHandle) ReplaceURL(param, value string) error {
	return h.send(Command{Name: CmdReplaceURL, Args: map[string]any{"param": param, "value": value}})
}

// Signals patches page signals.
func (h *SSEHandle) Signals(signals map[string]any) error {
	return h.send(Command{Name: CmdSignals, Args: signals})
}

// Notify implements backend.Notifier.
func (h *SSEHandle) Notify(_ context.Context, n backend.Notification) {
	if err := h.send(Command{Name: CmdNotify, Args: n}); err != nil {
		h.log.Debug().Err(err).Str("message", n.Message).Msg("notification dropped")
	}
}
