package geo

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// DefaultRadiusKm is the padding radius for features without a length.
const DefaultRadiusKm = 0.3

// circleSteps matches the 4-point circle used to derive the padded box.
const circleSteps = 4

// ErrEmptyGeometry is returned when there are no coordinates to bound.
var ErrEmptyGeometry = errors.New("geometry has no coordinates")

// Bounds is the result of ComputeBounds.
type Bounds struct {
	Exact  orb.Bound
	Padded orb.Bound
}

// ComputeBounds returns the exact bounding box of g and a padded box derived
// from a circle of radius max(referenceLength*paddingFactor/1000, DefaultRadiusKm)
// kilometers around the exact box's center. The padded box always contains
// the exact box. A paddingFactor <= 0 is treated as 1.
func ComputeBounds(g orb.Geometry, referenceLength, paddingFactor float64) (Bounds, error) {
	if g == nil || !hasCoordinates(g) {
		return Bounds{}, ErrEmptyGeometry
	}
	return padBound(g.Bound(), referenceLength, paddingFactor), nil
}

// ComputeCollectionBounds is ComputeBounds over every feature of fc.
func ComputeCollectionBounds(fc *geojson.FeatureCollection, referenceLength, paddingFactor float64) (Bounds, error) {
	b, ok := CollectionBound(fc)
	if !ok {
		return Bounds{}, ErrEmptyGeometry
	}
	return padBound(b, referenceLength, paddingFactor), nil
}

// CollectionBound is the union of the bounds of all features with coordinates.
func CollectionBound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	if fc == nil {
		return orb.Bound{}, false
	}
	var (
		b     orb.Bound
		found bool
	)
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil || !hasCoordinates(f.Geometry) {
			continue
		}
		if !found {
			b, found = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

// RadiusKm is the padding radius for a reference length in meters.
func RadiusKm(referenceLength, paddingFactor float64) float64 {
	if paddingFactor <= 0 {
		paddingFactor = 1
	}
	r := referenceLength * paddingFactor / 1000
	if r < DefaultRadiusKm {
		return DefaultRadiusKm
	}
	return r
}

func padBound(exact orb.Bound, referenceLength, paddingFactor float64) Bounds {
	center := exact.Center()
	meters := RadiusKm(referenceLength, paddingFactor) * 1000

	padded := exact
	for i := 0; i < circleSteps; i++ {
		bearing := float64(i) * -360 / circleSteps
		padded = padded.Extend(geo.PointAtBearingAndDistance(center, bearing, meters))
	}
	return Bounds{Exact: exact, Padded: padded}
}
