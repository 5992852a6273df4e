package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-slackmap/internal/layers"
)

func TestStyleServiceDefaults(t *testing.T) {
	s := NewStyleService(t.TempDir(), nil)
	assert.Equal(t, layers.DefaultStyles(), s.Styles())
	assert.Len(t, s.List(), len(layers.DefaultStyles()))

	st, err := s.Get(layers.Spots)
	require.NoError(t, err)
	assert.Equal(t, "#388e3c", st.Color)

	_, err = s.Get("rivers")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStyleServiceUpdatePersists(t *testing.T) {
	dir := t.TempDir()
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	s := NewStyleService(dir, bus)
	got, err := s.Update(layers.Lines, layers.CategoryStyle{Color: "#000000"})
	require.NoError(t, err)
	assert.Equal(t, layers.Lines, got.Category)

	ev := <-ch
	assert.Equal(t, Event{Resource: "styles", Action: "updated", ID: "lines"}, ev)

	reloaded := NewStyleService(dir, nil)
	assert.Equal(t, "#000000", reloaded.Styles()[layers.Lines].Color)
	assert.Equal(t, "#388e3c", reloaded.Styles()[layers.Spots].Color)
}

func TestStyleServiceReset(t *testing.T) {
	dir := t.TempDir()
	s := NewStyleService(dir, nil)
	_, err := s.Update(layers.Guides, layers.CategoryStyle{Color: "#123456"})
	require.NoError(t, err)

	def, err := s.Reset(layers.Guides)
	require.NoError(t, err)
	assert.Equal(t, layers.DefaultStyles()[layers.Guides], def)
	assert.Equal(t, layers.DefaultStyles()[layers.Guides], NewStyleService(dir, nil).Styles()[layers.Guides])

	_, err = s.Update("rivers", layers.CategoryStyle{Color: "#123456"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStyleServiceIgnoresBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "styles.json"), []byte("{nope"), 0644))
	assert.Equal(t, layers.DefaultStyles(), NewStyleService(dir, nil).Styles())
}

func TestDocumentStore(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "geojson", "lines")
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "zurich.geojson"), []byte(`{"type":"FeatureCollection","features":[]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "notes.txt"), []byte("skip"), 0644))

	s := NewDocumentStore(dir)
	files, err := s.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "lines/zurich.geojson", files[0].Path)
	assert.Equal(t, "42 B", files[0].Size)

	data, err := s.ReadDocument(context.Background(), "lines/zurich.geojson")
	require.NoError(t, err)
	assert.Contains(t, string(data), "FeatureCollection")

	_, err = s.ReadDocument(context.Background(), "lines/missing.geojson")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ReadDocument(context.Background(), "../styles.json")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.ReadDocument(context.Background(), "/etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestDocumentStoreMissingDir(t *testing.T) {
	files, err := NewDocumentStore(t.TempDir()).List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}

func TestEventBusDropsForSlowSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	for i := 0; i < 20; i++ {
		bus.Publish(Event{Resource: "sessions", Action: "moveend"})
	}
	assert.Len(t, ch, 16)
	assert.Equal(t, 1, bus.Subscribers())
	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.Subscribers())
}
