// Package mapengine is the boundary between the map core and the rendering
// engine in the browser. The core only talks to the engine through MapHandle.
package mapengine

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
)

// Feature-state keys.
const (
	StateHover    = "hover"
	StateSelected = "isSelected"
	StateFocused  = "isFocused"
)

// ErrClosed is returned by handles whose map has gone away.
var ErrClosed = errors.New("map handle closed")

// FeatureRef identifies a rendered feature for feature-state mutations.
type FeatureRef struct {
	Source      string `json:"source"`
	SourceLayer string `json:"sourceLayer,omitempty"`
	ID          string `json:"id"`
}

// Valid reports whether ref can address a feature.
func (r FeatureRef) Valid() bool {
	return r.Source != "" && r.ID != ""
}

// FeatureState is the per-feature render state.
type FeatureState map[string]any

// Cursor is the pointer style over the map canvas.
type Cursor string

const (
	CursorAuto    Cursor = "auto"
	CursorPointer Cursor = "pointer"
)

// Padding is a camera padding in pixels.
type Padding struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// CameraOptions drives FlyTo and EaseTo. Nil fields keep the current value.
type CameraOptions struct {
	Center  *orb.Point `json:"center,omitempty"`
	Zoom    *float64   `json:"zoom,omitempty"`
	Padding *Padding   `json:"padding,omitempty"`
	Animate bool       `json:"animate"`
}

// FitOptions drives FitBounds.
type FitOptions struct {
	Padding *Padding `json:"padding,omitempty"`
	Animate bool     `json:"animate"`
}

// RenderedFeature is a feature picked under the pointer.
type RenderedFeature struct {
	Ref        FeatureRef     `json:"ref"`
	LayerID    string         `json:"layerId"`
	Geometry   orb.Geometry   `json:"-"`
	Properties map[string]any `json:"properties"`
}

// ClusterID returns the cluster_id property. The presence of the key marks a
// cluster, so 0 is a valid id.
func (f *RenderedFeature) ClusterID() (int64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f.Properties["cluster_id"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// MapHandle is the narrow view of the rendering engine used by the core.
type MapHandle interface {
	SetFeatureState(ref FeatureRef, state FeatureState) error
	RemoveFeatureState(ref FeatureRef, key string) error
	FlyTo(opts CameraOptions) error
	EaseTo(opts CameraOptions) error
	FitBounds(b orb.Bound, opts FitOptions) error
	ClusterExpansionZoom(ctx context.Context, sourceID string, clusterID int64) (float64, error)
	SetCursor(c Cursor) error
	Zoom() float64
}

// Float returns a pointer to f, for CameraOptions.Zoom.
func Float(f float64) *float64 { return &f }

// Point returns a pointer to p, for CameraOptions.Center.
func Point(p orb.Point) *orb.Point { return &p }
