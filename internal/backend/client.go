// Package backend talks to the slackline REST API that owns line, spot and
// guide records. Mutations raise user notifications; failures are reported
// once and never retried.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joeblew999/plat-slackmap/internal/geo"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/metrics"
)

// Notification messages shown after successful mutations.
const (
	MessageMapDelay = "It can take about 3 minutes to see on the map"
	MessageSaved    = "Changes Saved"
)

const maxResponseSize = 16 << 20

var (
	ErrNotConfigured   = errors.New("backend not configured")
	ErrUnknownCategory = errors.New("feature type has no backend category")
	ErrMissingID       = errors.New("record id is required")
)

// Category is a backend resource collection.
type Category string

const (
	CategoryLine  Category = "line"
	CategorySpot  Category = "spot"
	CategoryGuide Category = "guide"
)

// CategoryFor maps a feature type to its backend resource.
func CategoryFor(t geo.FeatureType) (Category, error) {
	switch t {
	case geo.TypeLine:
		return CategoryLine, nil
	case geo.TypeSpot:
		return CategorySpot, nil
	case geo.TypeGuide:
		return CategoryGuide, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, t)
}

// Severity of a user notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is a short message for the user.
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// TokenSource supplies the bearer token of the signed-in user. An empty
// token sends the request anonymously.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Details is the record summary shown in popups and detail pages.
type Details struct {
	Type                 string   `json:"type,omitempty"`
	CreatorUserID        string   `json:"creatorUserId,omitempty"`
	GeoJSON              string   `json:"geoJson,omitempty"`
	Name                 string   `json:"name,omitempty"`
	Description          string   `json:"description,omitempty"`
	City                 string   `json:"city,omitempty"`
	Length               *float64 `json:"length,omitempty"`
	Height               *float64 `json:"height,omitempty"`
	AccessInfo           string   `json:"accessInfo,omitempty"`
	ContactInfo          string   `json:"contactInfo,omitempty"`
	RestrictionLevel     string   `json:"restrictionLevel,omitempty"`
	RestrictionInfo      string   `json:"restrictionInfo,omitempty"`
	ExtraInfo            string   `json:"extraInfo,omitempty"`
	CoverImageURL        string   `json:"coverImageUrl,omitempty"`
	CreatedDateTime      string   `json:"createdDateTime,omitempty"`
	LastModifiedDateTime string   `json:"lastModifiedDateTime,omitempty"`
}

// Collection decodes the embedded GeoJSON string.
func (d *Details) Collection() (*geojson.FeatureCollection, error) {
	if d.GeoJSON == "" {
		return nil, geo.ErrNoGeometry
	}
	return geojson.UnmarshalFeatureCollection([]byte(d.GeoJSON))
}

// Payload is the body of create and update calls.
type Payload struct {
	ID          string                     `json:"id,omitempty"`
	Name        string                     `json:"name,omitempty"`
	Description string                     `json:"description,omitempty"`
	GeoJSON     *geojson.FeatureCollection `json:"geoJson"`
	Extra       map[string]any             `json:"-"`
}

// MarshalJSON flattens Extra into the object.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.ID != "" {
		out["id"] = p.ID
	}
	if p.Name != "" {
		out["name"] = p.Name
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	out["geoJson"] = p.GeoJSON
	return json.Marshal(out)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	Notifier   Notifier
	HTTPClient *http.Client
}

// Client calls the backend API.
type Client struct {
	base     *url.URL
	http     *http.Client
	tokens   TokenSource
	notifier Notifier
	cb       *gobreaker.CircuitBreaker[[]byte]
	log      zerolog.Logger
}

// New creates a client. An empty base URL is rejected.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	name := "backend-api"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &Client{
		base:     base,
		http:     hc,
		tokens:   opts.Tokens,
		notifier: opts.Notifier,
		cb: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Client errors are the caller's fault and do not trip the breaker.
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.Status < 500
				}
				return err == nil
			},
			OnStateChange: metrics.BreakerStateChange,
		}),
		log: logging.With("backend"),
	}, nil
}

// Details fetches the record summary.
func (c *Client) Details(ctx context.Context, cat Category, id string) (*Details, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	body, err := c.do(ctx, "details", http.MethodGet, string(cat)+"/"+url.PathEscape(id)+"/details", nil)
	if err != nil {
		return nil, err
	}
	var d Details
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}
	return &d, nil
}

// GeoJSON fetches the record geometry.
func (c *Client) GeoJSON(ctx context.Context, cat Category, id string) (*geojson.FeatureCollection, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	body, err := c.do(ctx, "geojson", http.MethodGet, string(cat)+"/"+url.PathEscape(id)+"/geojson", nil)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode geojson: %w", err)
	}
	return fc, nil
}

// Create stores a new record.
func (c *Client) Create(ctx context.Context, cat Category, p Payload) (*Details, error) {
	body, err := c.do(ctx, "create", http.MethodPost, string(cat), p)
	if err != nil {
		return nil, err
	}
	c.notify(ctx, Notification{Message: MessageMapDelay, Severity: SeverityInfo})
	return decodeOptionalDetails(body)
}

// Update replaces an existing record.
func (c *Client) Update(ctx context.Context, cat Category, p Payload) (*Details, error) {
	if p.ID == "" {
		return nil, ErrMissingID
	}
	body, err := c.do(ctx, "update", http.MethodPut, string(cat)+"/"+url.PathEscape(p.ID), p)
	if err != nil {
		return nil, err
	}
	c.notify(ctx, Notification{Message: MessageSaved, Severity: SeveritySuccess})
	return decodeOptionalDetails(body)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, cat Category, id string) error {
	if id == "" {
		return ErrMissingID
	}
	if _, err := c.do(ctx, "delete", http.MethodDelete, string(cat)+"/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	c.notify(ctx, Notification{Message: MessageMapDelay, Severity: SeverityInfo})
	return nil
}

func decodeOptionalDetails(body []byte) (*Details, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var d Details
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}
	return &d, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any) ([]byte, error) {
	started := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	status := "ok"
	if err != nil {
		status = "error"
		c.log.Warn().Err(err).Str("operation", operation).Str("path", path).Msg("backend request failed")
		c.notify(ctx, Notification{Message: errorMessage(err), Severity: SeverityError})
	}
	metrics.ObserveBackend(operation, status, started)
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	target := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.log.Debug().Err(err).Msg("no token, sending anonymously")
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: serverMessage(body, resp.Status)}
	}
	return body, nil
}

func serverMessage(body []byte, fallback string) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		return envelope.Message
	}
	return fallback
}

func errorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return "Error: " + apiErr.Message
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return "Error: service temporarily unavailable"
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	return "Error: Unknown"
}

func (c *Client) notify(ctx context.Context, n Notification) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, n)
}
