// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-slackmap/internal/db"
	"github.com/joeblew999/plat-slackmap/internal/humastar"
	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/service"
	"github.com/joeblew999/plat-slackmap/internal/session"
	"github.com/joeblew999/plat-slackmap/internal/templates"
	"github.com/joeblew999/plat-slackmap/internal/viewstate"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the dependencies of the API handlers. Nil services disable
// their routes' behavior, not the routes.
type Services struct {
	Sessions  *session.Registry
	Styles    *service.StyleService
	Documents *service.DocumentStore
	DB        *db.DB
	Renderer  *templates.Renderer
	Bus       *service.EventBus
	DataDir   string
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc == nil {
		svc = &Services{}
	}
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every handler on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// Types

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status   string `json:"status" doc:"Health status" example:"ok"`
	Version  string `json:"version" doc:"API version" example:"0.1.0"`
	Sessions int    `json:"sessions" doc:"Open map sessions"`
}

type CategoryInput struct {
	Category layers.Category `path:"category" doc:"Legend category" enum:"lines,spots,guides,groups,managedAreas"`
}

type StyleOutput struct {
	Body layers.CategoryStyle
}

type StylesOutput struct {
	Body []layers.CategoryStyle
}

type DocumentsInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
	Limit  int `query:"limit" minimum:"0" maximum:"500" default:"50" doc:"Page size"`
}

type DocumentsOutput struct {
	Body humastar.PageBody[service.DocumentFile]
}

type EncodeInput struct {
	Longitude float64 `query:"lon" minimum:"-180" maximum:"180" doc:"Longitude"`
	Latitude  float64 `query:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
	Zoom      float64 `query:"zoom" minimum:"0" maximum:"24" doc:"Zoom level"`
}

type EncodeBody struct {
	Map string `json:"map" doc:"Encoded viewport for the map query parameter" example:"8.54123,47.37812,12.3"`
}

type DecodeInput struct {
	Map string `query:"map" required:"true" doc:"Encoded viewport" example:"8.54123,47.37812,12.3"`
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterStyles registers category style routes.
func (h *APIHandler) RegisterStyles(api huma.API) {
	huma.Get(api, "/api/v1/styles", h.ListStyles, huma.OperationTags("styles"))
	huma.Get(api, "/api/v1/styles/{category}", h.GetStyle, huma.OperationTags("styles"))
	huma.Put(api, "/api/v1/styles/{category}", h.PutStyle, huma.OperationTags("styles"))
	huma.Delete(api, "/api/v1/styles/{category}", h.ResetStyle, huma.OperationTags("styles"))
}

// RegisterDocuments registers GeoJSON document listing routes.
func (h *APIHandler) RegisterDocuments(api huma.API) {
	huma.Get(api, "/api/v1/documents", h.ListDocuments, huma.OperationTags("documents"))
}

// RegisterViewState registers viewport encoding routes.
func (h *APIHandler) RegisterViewState(api huma.API) {
	huma.Get(api, "/api/v1/viewstate/encode", h.EncodeViewState, huma.OperationTags("viewstate"))
	huma.Get(api, "/api/v1/viewstate/decode", h.DecodeViewState, huma.OperationTags("viewstate"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	n := 0
	if h.svc.Sessions != nil {
		n = h.svc.Sessions.Len()
	}
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version, Sessions: n}}, nil
}

func (h *APIHandler) ListStyles(ctx context.Context, input *struct{}) (*StylesOutput, error) {
	if h.svc.Styles == nil {
		out := &StylesOutput{}
		for _, c := range layers.Categories() {
			out.Body = append(out.Body, layers.DefaultStyles()[c.Key])
		}
		return out, nil
	}
	return &StylesOutput{Body: h.svc.Styles.List()}, nil
}

func (h *APIHandler) GetStyle(ctx context.Context, input *CategoryInput) (*StyleOutput, error) {
	if h.svc.Styles == nil {
		st, ok := layers.DefaultStyles()[input.Category]
		if !ok {
			return nil, huma.Error404NotFound("style not found")
		}
		return &StyleOutput{Body: st}, nil
	}
	st, err := h.svc.Styles.Get(input.Category)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &StyleOutput{Body: st}, nil
}

func (h *APIHandler) PutStyle(ctx context.Context, input *struct {
	CategoryInput
	Body layers.CategoryStyle
}) (*StyleOutput, error) {
	if h.svc.Styles == nil {
		return nil, huma.Error503ServiceUnavailable("style store not available")
	}
	st, err := h.svc.Styles.Update(input.Category, input.Body)
	if err != nil {
		return nil, styleError(err)
	}
	return &StyleOutput{Body: st}, nil
}

func (h *APIHandler) ResetStyle(ctx context.Context, input *CategoryInput) (*StyleOutput, error) {
	if h.svc.Styles == nil {
		return nil, huma.Error503ServiceUnavailable("style store not available")
	}
	st, err := h.svc.Styles.Reset(input.Category)
	if err != nil {
		return nil, styleError(err)
	}
	return &StyleOutput{Body: st}, nil
}

func styleError(err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError("failed to save style", err)
}

func (h *APIHandler) ListDocuments(ctx context.Context, input *DocumentsInput) (*DocumentsOutput, error) {
	var files []service.DocumentFile
	if h.svc.Documents != nil {
		var err error
		if files, err = h.svc.Documents.List(); err != nil {
			return nil, huma.Error500InternalServerError("failed to list documents", err)
		}
	}
	return &DocumentsOutput{Body: humastar.Paginate(files, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) EncodeViewState(ctx context.Context, input *EncodeInput) (*struct{ Body EncodeBody }, error) {
	return &struct{ Body EncodeBody }{Body: EncodeBody{
		Map: viewstate.Encode(input.Longitude, input.Latitude, input.Zoom),
	}}, nil
}

func (h *APIHandler) DecodeViewState(ctx context.Context, input *DecodeInput) (*struct{ Body viewstate.Viewport }, error) {
	v, ok := viewstate.Decode(input.Map)
	if !ok {
		return nil, huma.Error422UnprocessableEntity("map must be lon,lat[,zoom]")
	}
	return &struct{ Body viewstate.Viewport }{Body: v}, nil
}
