package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Classification is the result of Classify.
// Type is empty when the feature cannot be classified; OK is false when the
// geometry is missing or has no coordinates.
type Classification struct {
	ID       string
	Type     FeatureType
	Centroid orb.Point
	OK       bool
}

// Classify maps a geometry to a domain type (LineString -> line,
// Polygon -> spot, anything else by the `ft` property) and computes its
// center of mass. It never panics on malformed input.
func Classify(g orb.Geometry, props map[string]any) Classification {
	c := Classification{ID: PropertyID(props)}
	centroid, ok := Centroid(g)
	if !ok {
		return c
	}
	c.Centroid, c.OK = centroid, true

	switch g.GeoJSONType() {
	case "LineString":
		c.Type = TypeLine
	case "Polygon":
		c.Type = TypeSpot
	default:
		if s, isString := props[PropType].(string); isString {
			c.Type = ParseFeatureType(s)
		}
	}
	return c
}

// ClassifyFeature is Classify for a GeoJSON feature, preferring the
// properties id and falling back to the feature id.
func ClassifyFeature(f *geojson.Feature) Classification {
	if f == nil {
		return Classification{}
	}
	c := Classify(f.Geometry, f.Properties)
	c.ID = FeatureID(f)
	return c
}

// Centroid returns the center of mass of g: area weighted for polygons,
// length weighted for lines, the mean for points.
func Centroid(g orb.Geometry) (orb.Point, bool) {
	if g == nil || !hasCoordinates(g) {
		return orb.Point{}, false
	}
	p, _ := planar.CentroidArea(g)
	if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
		return orb.Point{}, false
	}
	return p, true
}

func hasCoordinates(g orb.Geometry) bool {
	switch t := g.(type) {
	case orb.Point:
		return true
	case orb.MultiPoint:
		return len(t) > 0
	case orb.LineString:
		return len(t) > 0
	case orb.MultiLineString:
		for _, ls := range t {
			if len(ls) > 0 {
				return true
			}
		}
	case orb.Ring:
		return len(t) > 0
	case orb.Polygon:
		return len(t) > 0 && len(t[0]) > 0
	case orb.MultiPolygon:
		for _, p := range t {
			if len(p) > 0 && len(p[0]) > 0 {
				return true
			}
		}
	case orb.Collection:
		for _, sub := range t {
			if sub != nil && hasCoordinates(sub) {
				return true
			}
		}
	case orb.Bound:
		return true
	}
	return false
}
