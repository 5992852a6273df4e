package featurecache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(ids ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, id := range ids {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i)})
		f.Properties["id"] = id
		fc.Append(f)
	}
	return fc
}

type spyFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	fc      *geojson.FeatureCollection
}

func (s *spyFetcher) Fetch(ctx context.Context, sourceID string) (*geojson.FeatureCollection, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.fc, s.err
}

func TestPopulateIdempotent(t *testing.T) {
	spy := &spyFetcher{fc: points("a", "b"), release: make(chan struct{})}
	c := New(spy)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Populate(context.Background(), "linePoints")
		}()
	}
	// Later callers see the source pending or done.
	close(spy.release)
	wg.Wait()
	require.NoError(t, c.Populate(context.Background(), "linePoints"))

	assert.Equal(t, int32(1), spy.calls.Load())
	assert.True(t, c.Populated("linePoints"))
	assert.Equal(t, 2, c.Len())

	f, ok := c.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, orb.Point{0, 0}, f.Geometry)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestPopulateFailureIsRetryable(t *testing.T) {
	spy := &spyFetcher{err: errors.New("boom")}
	c := New(spy)

	require.Error(t, c.Populate(context.Background(), "spotPoints"))
	assert.False(t, c.Populated("spotPoints"))

	spy.err = nil
	spy.fc = points("s1")
	require.NoError(t, c.Populate(context.Background(), "spotPoints"))
	assert.Equal(t, int32(2), spy.calls.Load())
	assert.True(t, c.Populated("spotPoints"))
}

func TestEntriesNeverReplaced(t *testing.T) {
	first := points("x")
	second := points("y", "x")
	calls := 0
	c := New(FetcherFunc(func(ctx context.Context, sourceID string) (*geojson.FeatureCollection, error) {
		calls++
		if sourceID == "a" {
			return first, nil
		}
		return second, nil
	}))

	require.NoError(t, c.Populate(context.Background(), "a"))
	require.NoError(t, c.Populate(context.Background(), "b"))

	f, ok := c.Lookup("x")
	require.True(t, ok)
	assert.Same(t, first.Features[0], f)
	assert.Equal(t, 2, c.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, c.Sources())
	assert.Equal(t, 2, calls)
}

type mirrorSpy struct {
	source string
	n      int
}

func (m *mirrorSpy) MirrorFeatures(ctx context.Context, sourceID string, features []*geojson.Feature) error {
	m.source, m.n = sourceID, len(features)
	return errors.New("mirror errors are not fatal")
}

func TestPopulateMirrors(t *testing.T) {
	m := &mirrorSpy{}
	c := New(&spyFetcher{fc: points("a", "b", "")}, WithMirror(m))
	require.NoError(t, c.Populate(context.Background(), "guidePoints"))
	assert.Equal(t, "guidePoints", m.source)
	assert.Equal(t, 2, m.n)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/points.geojson":
			w.Header().Set("Content-Type", "application/geo+json")
			_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[8.5,47.3]},"properties":{"id":"p1","l":"45"}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(map[string]string{
		"linePoints": srv.URL + "/points.geojson",
		"spotPoints": srv.URL + "/missing.geojson",
	}, srv.Client())

	fc, err := f.Fetch(context.Background(), "linePoints")
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "p1", fc.Features[0].Properties["id"])

	_, err = f.Fetch(context.Background(), "spotPoints")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

type memStore map[string]string

func (m memStore) ReadDocument(ctx context.Context, path string) ([]byte, error) {
	s, ok := m[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(s), nil
}

func TestStoreFetcher(t *testing.T) {
	store := memStore{"geojson/spots/points.geojson": `{"type":"FeatureCollection","features":[]}`}
	f := NewStoreFetcher(map[string]string{"spotPoints": "geojson/spots/points.geojson"}, store)

	fc, err := f.Fetch(context.Background(), "spotPoints")
	require.NoError(t, err)
	assert.Empty(t, fc.Features)

	_, err = f.Fetch(context.Background(), "linePoints")
	assert.ErrorIs(t, err, ErrUnknownSource)
}
