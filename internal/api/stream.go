package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/humastar"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/service"
	"github.com/joeblew999/plat-slackmap/internal/session"
	"github.com/joeblew999/plat-slackmap/internal/templates"
)

// EventPrefix prefixes the DOM events dispatched to map pages.
const EventPrefix = "slackmap-"

// Page elements patched by the stream.
const (
	PopupSelector        = "#slackmap-popup"
	NotificationSelector = "#slackmap-notifications"
)

// RegisterStreams registers the SSE routes.
func (h *APIHandler) RegisterStreams(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "stream-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/stream",
		Summary:     "Stream map commands to the page",
		Tags:        []string{humastar.StreamTag},
	}, h.StreamSession)
	huma.Register(api, huma.Operation{
		OperationID: "stream-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "Stream resource change events",
		Tags:        []string{humastar.StreamTag},
	}, h.StreamEvents)
}

// StreamSession drains the session's command queue into the page until the
// client goes away or the session closes.
func (h *APIHandler) StreamSession(ctx context.Context, input *SessionIDInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	log := logging.With("stream").With().Str("session", s.ID()).Logger()
	handle := s.Handle()

	return humastar.Stream(func(sse humastar.SSE) {
		if err := sse.Signals(map[string]any{"session": s.ID()}); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-handle.Done():
				sse.Event(EventPrefix+"closed", map[string]any{"session": s.ID()})
				return
			case cmd := <-handle.Commands():
				if err := h.send(sse, cmd); err != nil {
					log.Debug().Err(err).Str("command", cmd.Name).Msg("stream closed")
					return
				}
			}
		}
	}), nil
}

// send writes one command. Popups and notifications patch their HTML before
// the matching event fires.
func (h *APIHandler) send(sse humastar.SSE, cmd session.Command) error {
	switch cmd.Name {
	case session.CmdSignals:
		if signals, ok := cmd.Args.(map[string]any); ok {
			return sse.Signals(signals)
		}
	case session.CmdPopup:
		if err := sse.Patch(cmd.HTML, PopupSelector); err != nil {
			return err
		}
	case session.CmdNotify:
		if n, ok := cmd.Args.(backend.Notification); ok {
			if err := h.notify(sse, n); err != nil {
				return err
			}
		}
	}
	return sse.Event(EventPrefix+cmd.Name, cmd.Args)
}

// notify renders a notification into the page. Errors also set the page's
// error signal.
func (h *APIHandler) notify(sse humastar.SSE, n backend.Notification) error {
	if n.Severity == backend.SeverityError {
		if err := sse.Error(n.Message); err != nil {
			return err
		}
	}
	if h.svc.Renderer == nil {
		return nil
	}
	html, err := h.svc.Renderer.Render(templates.FragmentNotification, templates.Notification{
		Message:  n.Message,
		Severity: string(n.Severity),
	})
	if err != nil {
		log := logging.With("stream")
		log.Warn().Err(err).Str("message", n.Message).Msg("notification not rendered")
		return nil
	}
	return sse.Patch(html, NotificationSelector)
}

// StreamEvents forwards resource changes from the event bus.
func (h *APIHandler) StreamEvents(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	bus := h.svc.Bus
	if bus == nil {
		bus = service.DefaultBus
	}
	return humastar.Stream(func(sse humastar.SSE) {
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if err := sse.Event(EventPrefix+"resource", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
					"detail":   ev.Detail,
				}); err != nil {
					return
				}
			}
		}
	}), nil
}
