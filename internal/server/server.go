// Package server wires the map core, its stores and collaborators behind an
// http.ServeMux with a Huma API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/api"
	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/config"
	"github.com/joeblew999/plat-slackmap/internal/db"
	"github.com/joeblew999/plat-slackmap/internal/featurecache"
	"github.com/joeblew999/plat-slackmap/internal/geolocate"
	"github.com/joeblew999/plat-slackmap/internal/humastar"
	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/service"
	"github.com/joeblew999/plat-slackmap/internal/session"
	"github.com/joeblew999/plat-slackmap/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for pages, static files and fragment overrides
	// Map holds the map settings; nil uses config.Default().
	Map *config.Config
	// DisableDB skips DuckDB, for commands that only need the route table.
	DisableDB bool
}

// Server is the slackmap HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	log      zerolog.Logger
	db       *db.DB
	locator  *geolocate.MaxMindLocator
	cache    *featurecache.Cache
	registry *session.Registry
	services *api.Services
}

// New creates a server. Optional collaborators (DuckDB, GeoIP, backend) that
// fail to start are logged and left out.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Map == nil {
		cfg.Map = config.Default()
	}
	mc := cfg.Map
	log := logging.With("server")
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-slackmap API", api.Version)
	humaConfig.Info.Description = "Slackline map sessions, category styles and GeoJSON documents."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer())
	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		log:     log,
	}

	bus := service.NewEventBus()
	styles := service.NewStyleService(cfg.DataDir, bus)
	documents := service.NewDocumentStore(cfg.DataDir)

	fragmentsDir := ""
	if cfg.WebDir != "" {
		fragmentsDir = filepath.Join(cfg.WebDir, "templates", "fragments")
	}
	renderer, err := templates.New(fragmentsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load fragment templates: %w", err)
	}

	if !cfg.DisableDB {
		conn, err := db.Open(ctx, db.Config{
			DataDir:    cfg.DataDir,
			DBName:     "slackmap",
			Extensions: []string{"spatial", "json"},
		})
		if err != nil {
			log.Warn().Err(err).Msg("duckdb unavailable, feature mirror disabled")
		} else {
			s.db = conn
		}
	}

	var cacheOpts []featurecache.Option
	if s.db != nil {
		cacheOpts = append(cacheOpts, featurecache.WithMirror(s.db))
	}
	s.cache = featurecache.New(newFetcher(mc.Data, documents), cacheOpts...)

	deps := session.Deps{
		Map:       mc.Map,
		Session:   mc.Session,
		URLs:      layers.URLsFromConfig(mc.Data),
		Styles:    styles.Styles,
		Cache:     s.cache,
		Renderer:  renderer,
		Publisher: bus,
	}
	if path := mc.GeoIP.DatabasePath; path != "" {
		loc, err := geolocate.Open(path)
		if err != nil {
			log.Warn().Err(err).Msg("geoip database unavailable, visitor placement disabled")
		} else {
			s.locator = loc
			deps.Locator = loc
		}
	}
	s.registry = session.NewRegistry(deps)

	var tokens backend.TokenSource
	if mc.Backend.Token != "" {
		tokens = backend.StaticToken(mc.Backend.Token)
	}
	client, err := backend.New(backend.Options{
		BaseURL:  mc.Backend.BaseURL,
		Timeout:  mc.Backend.Timeout,
		Tokens:   tokens,
		Notifier: backend.NotifierFunc(s.registry.Notify),
	})
	switch {
	case err == nil:
		s.registry.SetRecords(client)
	case errors.Is(err, backend.ErrNotConfigured):
		log.Info().Msg("no backend configured, popups use feature labels")
	default:
		return nil, err
	}

	s.services = &api.Services{
		Sessions:  s.registry,
		Styles:    styles,
		Documents: documents,
		DB:        s.db,
		Renderer:  renderer,
		Bus:       bus,
		DataDir:   cfg.DataDir,
	}

	s.routes(api.InfoBody{
		DataDir: cfg.DataDir,
		DB:      s.db != nil,
		Backend: client != nil,
		GeoIP:   s.locator != nil,
	})
	return s, nil
}

// newFetcher reads cluster documents over HTTP when a data base URL is set,
// otherwise from the local document store.
func newFetcher(data config.DataConfig, documents *service.DocumentStore) featurecache.Fetcher {
	if data.BaseURL != "" {
		return featurecache.NewHTTPFetcher(
			layers.ClusterDocuments(layers.URLsFromConfig(data)),
			&http.Client{Timeout: data.FetchTimeout},
		)
	}
	paths := layers.ClusterDocuments(layers.PathsFromConfig(data))
	for id, p := range paths {
		paths[id] = strings.TrimPrefix(strings.TrimPrefix(p, "/"), "geojson/")
	}
	return featurecache.NewStoreFetcher(paths, documents)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Registry exposes the session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Run sweeps idle sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.registry.Run(ctx)
}

// Close ends all sessions and releases server resources.
func (s *Server) Close() error {
	s.registry.Shutdown()
	var errs []error
	if s.locator != nil {
		errs = append(errs, s.locator.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

func (s *Server) routes(info api.InfoBody) {
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)
	api.NewInfoHandler(info).RegisterRoutes(s.humaAPI)
	humastar.AutoLinks(s.humaAPI)

	s.mux.Handle("/metrics", promhttp.Handler())

	documentsDir := s.services.Documents.Dir()
	s.mux.Handle("/data/geojson/", http.StripPrefix("/data/geojson/", s.handleDocuments(documentsDir)))

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

// handleRoot serves the map page when a web directory is configured and a
// JSON status otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.config.WebDir != "" {
		page := filepath.Join(s.config.WebDir, "templates", "map.html")
		if _, err := os.Stat(page); err == nil {
			http.ServeFile(w, r, page)
			return
		}
	}
	for _, link := range humastar.Links(humastar.EntryPoint) {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service":  "plat-slackmap",
		"status":   "running",
		"sessions": s.registry.Len(),
	})
}

// handleDocuments serves the aggregate GeoJSON documents to map pages on
// any origin.
func (s *Server) handleDocuments(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if ext := strings.ToLower(filepath.Ext(r.URL.Path)); ext == ".geojson" {
			w.Header().Set("Content-Type", "application/geo+json")
		}
		files.ServeHTTP(w, r)
	})
}
