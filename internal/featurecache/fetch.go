package featurecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joeblew999/plat-slackmap/internal/metrics"
)

// ErrUnknownSource is returned for source ids without a document.
var ErrUnknownSource = errors.New("no document for source")

// maxDocumentSize bounds a fetched GeoJSON document.
const maxDocumentSize = 64 << 20

// HTTPFetcher downloads source documents over HTTP behind a circuit breaker.
type HTTPFetcher struct {
	urls   map[string]string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*geojson.FeatureCollection]
}

// NewHTTPFetcher maps source ids to absolute document URLs.
func NewHTTPFetcher(urls map[string]string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	name := "geojson-documents"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &HTTPFetcher{
		urls:   urls,
		client: client,
		cb: gobreaker.NewCircuitBreaker[*geojson.FeatureCollection](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: metrics.BreakerStateChange,
		}),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceID string) (*geojson.FeatureCollection, error) {
	url, ok := f.urls[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return f.cb.Execute(func() (*geojson.FeatureCollection, error) {
		return f.get(ctx, url)
	})
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return fc, nil
}

// DocumentReader reads a stored GeoJSON document by relative path.
type DocumentReader interface {
	ReadDocument(ctx context.Context, path string) ([]byte, error)
}

// StoreFetcher reads source documents from a local document store.
type StoreFetcher struct {
	paths map[string]string
	store DocumentReader
}

// NewStoreFetcher maps source ids to document paths inside store.
func NewStoreFetcher(paths map[string]string, store DocumentReader) *StoreFetcher {
	return &StoreFetcher{paths: paths, store: store}
}

// Fetch implements Fetcher.
func (f *StoreFetcher) Fetch(ctx context.Context, sourceID string) (*geojson.FeatureCollection, error) {
	path, ok := f.paths[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	data, err := f.store.ReadDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return fc, nil
}
