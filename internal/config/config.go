// Package config loads the map settings: where the GeoJSON documents live,
// the default viewport, clustering parameters, layout breakpoints and the
// collaborator endpoints.
//
// Sources are layered with koanf, lowest priority first:
//
//  1. built-in defaults (defaultConfig)
//  2. an optional YAML file (path argument, $SLACKMAP_CONFIG, or ./slackmap.yaml)
//  3. environment variables prefixed with SLACKMAP_ (SLACKMAP_MAP_CLUSTER_RADIUS -> map.cluster_radius)
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "SLACKMAP_"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "SLACKMAP_CONFIG"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"slackmap.yaml",
	"slackmap.yml",
	"/etc/slackmap/slackmap.yaml",
}

// Config is the full map configuration.
type Config struct {
	Data    DataConfig    `koanf:"data"`
	Map     MapConfig     `koanf:"map"`
	Backend BackendConfig `koanf:"backend"`
	GeoIP   GeoIPConfig   `koanf:"geoip"`
	Session SessionConfig `koanf:"session"`
	Logging LoggingConfig `koanf:"logging"`
}

// DataConfig locates the aggregate GeoJSON documents. When BaseURL is empty
// the documents are served by this process from the data directory.
type DataConfig struct {
	BaseURL      string        `koanf:"base_url" validate:"omitempty,url"`
	LinePoints   string        `koanf:"line_points" validate:"required"`
	Lines        string        `koanf:"lines" validate:"required"`
	SpotPoints   string        `koanf:"spot_points" validate:"required"`
	Spots        string        `koanf:"spots" validate:"required"`
	GuidePoints  string        `koanf:"guide_points" validate:"required"`
	Guides       string        `koanf:"guides" validate:"required"`
	ClustersMain string        `koanf:"clusters_main" validate:"required"`
	Communities  string        `koanf:"communities" validate:"required"`
	ManagedAreas string        `koanf:"managed_areas" validate:"required"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gt=0"`
}

// MapConfig holds viewport and interaction settings.
type MapConfig struct {
	DefaultLongitude float64 `koanf:"default_longitude" validate:"gte=-180,lte=180"`
	DefaultLatitude  float64 `koanf:"default_latitude" validate:"gte=-90,lte=90"`
	DefaultZoom      float64 `koanf:"default_zoom" validate:"gte=0,lte=24"`
	PersistViewport  bool    `koanf:"persist_viewport"`

	// DesktopBreakpoint is the viewport width (px) at and above which the
	// selection camera is not offset for a side panel.
	DesktopBreakpoint int     `koanf:"desktop_breakpoint" validate:"gt=0"`
	NarrowPadding     float64 `koanf:"narrow_padding" validate:"gte=0"`

	UserLocationZoomDesktop float64 `koanf:"user_location_zoom_desktop" validate:"gte=0"`
	UserLocationZoomMobile  float64 `koanf:"user_location_zoom_mobile" validate:"gte=0"`

	ClusterMaxZoom   int `koanf:"cluster_max_zoom" validate:"gte=0,lte=24"`
	ClusterMinPoints int `koanf:"cluster_min_points" validate:"gte=2"`
	ClusterRadius    int `koanf:"cluster_radius" validate:"gt=0"`

	// MouseMoveRate caps pointer-move events processed per session per second.
	MouseMoveRate float64 `koanf:"mouse_move_rate" validate:"gt=0"`
}

// BackendConfig points at the REST backend collaborator.
type BackendConfig struct {
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// GeoIPConfig enables IP based initial camera placement.
type GeoIPConfig struct {
	DatabasePath string `koanf:"database_path"`
}

// SessionConfig bounds map session lifetimes.
type SessionConfig struct {
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ReplyTimeout time.Duration `koanf:"reply_timeout" validate:"gt=0"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			LinePoints:   "geojson/lines/points.geojson",
			Lines:        "geojson/lines/main.geojson",
			SpotPoints:   "geojson/spots/points.geojson",
			Spots:        "geojson/spots/main.geojson",
			GuidePoints:  "geojson/guides/points.geojson",
			Guides:       "geojson/guides/main.geojson",
			ClustersMain: "geojson/clusters/main.geojson",
			Communities:  "geojson/communities/communities.geojson",
			ManagedAreas: "geojson/communities/managed-areas.geojson",
			FetchTimeout: 20 * time.Second,
		},
		Map: MapConfig{
			DefaultLongitude:        -39.41644394307363,
			DefaultLatitude:         35.92263245263329,
			DefaultZoom:             1,
			PersistViewport:         true,
			DesktopBreakpoint:       1200,
			NarrowPadding:           200,
			UserLocationZoomDesktop: 2.5,
			UserLocationZoomMobile:  1.5,
			ClusterMaxZoom:          13,
			ClusterMinPoints:        3,
			ClusterRadius:           50,
			MouseMoveRate:           30,
		},
		Backend: BackendConfig{
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout:  30 * time.Minute,
			ReplyTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load layers defaults, the config file and the environment. An empty path
// falls back to $SLACKMAP_CONFIG and DefaultConfigPaths; a missing file is
// not an error unless the path was given explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps SLACKMAP_MAP_CLUSTER_RADIUS to map.cluster_radius: the
// first segment names the section, the rest is the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

// DocumentURL resolves a document path against the data base URL. With no
// base URL the path is returned rooted at /data/ so the local document store
// serves it.
func (d DataConfig) DocumentURL(path string) string {
	if d.BaseURL == "" {
		return "/data/" + strings.TrimPrefix(path, "/")
	}
	return strings.TrimSuffix(d.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
