package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/geolocate"
	"github.com/joeblew999/plat-slackmap/internal/humastar"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
	"github.com/joeblew999/plat-slackmap/internal/session"
)

var sessionActions = []humastar.ActionDef{
	{Rel: "events", Pattern: "/api/v1/sessions/%s/events", Method: http.MethodPost, Title: "Send map events"},
	{Rel: "stream", Pattern: "/api/v1/sessions/%s/stream", Method: http.MethodGet, Title: "Receive map commands"},
	{Rel: "replies", Pattern: "/api/v1/sessions/%s/replies", Method: http.MethodPost, Title: "Answer map queries"},
	{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: http.MethodDelete, Title: "Close the map"},
}

// SessionBody is a session snapshot with its follow-up actions.
type SessionBody struct {
	session.Snapshot
}

func (b SessionBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, sessionActions)
}

type SessionOutput struct {
	Body SessionBody
}

type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID" format:"uuid"`
}

// CreateSessionInput opens a map page.
type CreateSessionInput struct {
	ForwardedFor string `header:"X-Forwarded-For" doc:"Proxy chain used to locate the visitor"`
	Body         struct {
		Kind        string         `json:"kind" enum:"world,community,focused,drawable" doc:"Map widget"`
		Map         string         `json:"map,omitempty" doc:"Encoded viewport from the page URL" example:"8.54123,47.37812,12.3"`
		Width       int            `json:"width,omitempty" minimum:"0" doc:"Viewport width in pixels"`
		FeatureID   string         `json:"featureId,omitempty" doc:"Record shown by focused and drawable maps"`
		FeatureType string         `json:"featureType,omitempty" enum:"line,spot,guide,slacklineGroup,managedArea" doc:"Record type"`
		GeoJSON     map[string]any `json:"geojson,omitempty" doc:"FeatureCollection shown or edited, instead of fetching the record"`
	}

	remoteAddr string
}

// Resolve captures the client address for visitor geolocation.
func (i *CreateSessionInput) Resolve(ctx huma.Context) []error {
	i.remoteAddr = ctx.RemoteAddr()
	return nil
}

// EventInput carries one browser map event as page signals.
type EventInput struct {
	SessionIDInput
	humastar.SignalsInput
}

type ReplyInput struct {
	SessionIDInput
	Body session.Reply
}

// RegisterSessions registers map session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))
	huma.Register(api, huma.Operation{
		OperationID:   "post-session-event",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/events",
		Summary:       "Post a map event",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusAccepted,
	}, h.PostEvent)
	huma.Post(api, "/api/v1/sessions/{id}/replies", h.PostReply, huma.OperationTags("sessions"))
}

func (h *APIHandler) registry() (*session.Registry, error) {
	if h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	return h.svc.Sessions, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	reg, err := h.registry()
	if err != nil {
		return nil, err
	}
	kind, err := session.ParseKind(input.Body.Kind)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	p := session.Params{
		MapParam:    input.Body.Map,
		Width:       input.Body.Width,
		ClientIP:    geolocate.ClientIP(input.remoteAddr, input.ForwardedFor),
		FeatureID:   input.Body.FeatureID,
		FeatureType: geo.ParseFeatureType(input.Body.FeatureType),
	}
	if input.Body.GeoJSON != nil {
		raw, err := json.Marshal(input.Body.GeoJSON)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid geojson", err)
		}
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("geojson must be a FeatureCollection", err)
		}
		p.GeoJSON = fc
	}

	s, err := reg.Create(ctx, kind, p)
	if err != nil {
		return nil, sessionError(err)
	}
	return &SessionOutput{Body: SessionBody{s.Snapshot()}}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: SessionBody{s.Snapshot()}}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionIDInput) (*struct{ Body MessageBody }, error) {
	reg, err := h.registry()
	if err != nil {
		return nil, err
	}
	if err := reg.Close(input.ID); err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session closed"}}, nil
}

func (h *APIHandler) PostEvent(ctx context.Context, input *EventInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	if signals.String("type") == "" {
		return nil, huma.Error422UnprocessableEntity("event type is required")
	}
	var ev session.Event
	if err := signals.Bind(&ev); err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid event: " + err.Error())
	}
	if err := s.Dispatch(session.ContextWithSession(ctx, s.ID()), ev); err != nil {
		return nil, sessionError(err)
	}
	return &struct{}{}, nil
}

func (h *APIHandler) PostReply(ctx context.Context, input *ReplyInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if err := s.Handle().Resolve(input.Body); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{}{}, nil
}

func (h *APIHandler) session(id string) (session.Session, error) {
	reg, err := h.registry()
	if err != nil {
		return nil, err
	}
	s, err := reg.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return s, nil
}

// sessionError maps session and collaborator failures to HTTP errors.
func sessionError(err error) error {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, mapengine.ErrClosed):
		return huma.Error410Gone(err.Error())
	case errors.Is(err, session.ErrUnknownKind),
		errors.Is(err, session.ErrUnsupported),
		errors.Is(err, session.ErrNothingDrawn),
		errors.Is(err, backend.ErrUnknownCategory),
		errors.Is(err, backend.ErrMissingID),
		errors.Is(err, geo.ErrEmptyGeometry):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, session.ErrNoBackend), errors.Is(err, backend.ErrNotConfigured):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.As(err, &apiErr):
		return huma.Error502BadGateway(err.Error())
	}
	return huma.Error500InternalServerError("session failure", err)
}
