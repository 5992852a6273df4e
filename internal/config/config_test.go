package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 13, cfg.Map.ClusterMaxZoom)
	assert.Equal(t, 3, cfg.Map.ClusterMinPoints)
	assert.Equal(t, 50, cfg.Map.ClusterRadius)
	assert.Equal(t, 1.0, cfg.Map.DefaultZoom)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slackmap.yaml")
	yml := `
data:
  base_url: https://data.example.org
map:
  cluster_radius: 40
  persist_viewport: false
session:
  idle_timeout: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("SLACKMAP_MAP_CLUSTER_RADIUS", "60")
	t.Setenv("SLACKMAP_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://data.example.org", cfg.Data.BaseURL)
	assert.Equal(t, 60, cfg.Map.ClusterRadius, "env wins over file")
	assert.False(t, cfg.Map.PersistViewport)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "geojson/lines/points.geojson", cfg.Data.LinePoints, "defaults survive")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("SLACKMAP_MAP_CLUSTER_MIN_POINTS", "1")
	_, err := Load("")
	require.Error(t, err)
}

func TestDocumentURL(t *testing.T) {
	d := DataConfig{}
	assert.Equal(t, "/data/geojson/lines/main.geojson", d.DocumentURL("geojson/lines/main.geojson"))

	d.BaseURL = "https://cdn.example.org/"
	assert.Equal(t, "https://cdn.example.org/geojson/lines/main.geojson", d.DocumentURL("/geojson/lines/main.geojson"))
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "map.cluster_radius", envTransform("SLACKMAP_MAP_CLUSTER_RADIUS"))
	assert.Equal(t, "geoip.database_path", envTransform("SLACKMAP_GEOIP_DATABASE_PATH"))
	assert.Equal(t, "", envTransform("SLACKMAP_CONFIG"))
}
