package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	info InfoBody
}

func NewInfoHandler(info InfoBody) *InfoHandler {
	if info.Name == "" {
		info.Name = "plat-slackmap"
	}
	if info.Version == "" {
		info.Version = Version
	}
	return &InfoHandler{info: info}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether database is available"`
	Backend  bool     `json:"backend" doc:"Whether the records backend is configured"`
	GeoIP    bool     `json:"geoip" doc:"Whether visitor geolocation is enabled"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := h.info
	body.Features = []string{"sessions", "clusters", "styles", "documents", "viewstate"}
	if body.DB {
		body.Features = append(body.Features, "duckdb")
	}
	if body.Backend {
		body.Features = append(body.Features, "records")
	}
	if body.GeoIP {
		body.Features = append(body.Features, "geoip")
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
