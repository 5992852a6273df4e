// Package geo holds the geometry utilities of the map core: feature
// classification, centroids, proportional bounds, and the DomainFeature type
// that GeoJSON is validated into when it enters the system.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureType is the domain type of a map feature.
type FeatureType string

const (
	TypeLine           FeatureType = "line"
	TypeSpot           FeatureType = "spot"
	TypeGuide          FeatureType = "guide"
	TypeSlacklineGroup FeatureType = "slacklineGroup"
	TypeManagedArea    FeatureType = "managedArea"
)

// Property keys used by the aggregate GeoJSON documents.
const (
	PropID     = "id"
	PropType   = "ft"
	PropLabel  = "l"
	PropLength = "length"
)

// Code returns the short type code used in the `ft` property.
func (t FeatureType) Code() string {
	switch t {
	case TypeLine:
		return "l"
	case TypeSpot:
		return "s"
	case TypeGuide:
		return "g"
	case TypeSlacklineGroup:
		return "sg"
	case TypeManagedArea:
		return "ma"
	}
	return ""
}

// ParseFeatureType accepts a short code or a full type name.
// Unknown values return "".
func ParseFeatureType(s string) FeatureType {
	switch strings.TrimSpace(s) {
	case "l", string(TypeLine):
		return TypeLine
	case "s", string(TypeSpot):
		return TypeSpot
	case "g", string(TypeGuide):
		return TypeGuide
	case "sg", string(TypeSlacklineGroup):
		return TypeSlacklineGroup
	case "ma", string(TypeManagedArea):
		return TypeManagedArea
	}
	return ""
}

var (
	ErrNoGeometry  = errors.New("feature has no geometry")
	ErrNoID        = errors.New("feature has no id")
	ErrUnknownType = errors.New("feature type cannot be determined")
)

// DomainFeature is a map feature validated at the ingestion boundary.
type DomainFeature struct {
	ID        string
	Type      FeatureType
	Label     string
	Length    float64
	HasLength bool
	Geometry  orb.Geometry
	Centroid  orb.Point

	// Properties keeps the original property bag for popups and editors.
	Properties geojson.Properties
}

// FromGeoJSON validates f into a DomainFeature. An explicit `ft` property
// wins over the geometry based classification, so a guide drawn as a line
// stays a guide.
func FromGeoJSON(f *geojson.Feature) (DomainFeature, error) {
	if f == nil || f.Geometry == nil {
		return DomainFeature{}, ErrNoGeometry
	}
	id := FeatureID(f)
	if id == "" {
		return DomainFeature{}, ErrNoID
	}

	c := Classify(f.Geometry, f.Properties)
	if !c.OK {
		return DomainFeature{}, fmt.Errorf("feature %s: %w", id, ErrNoGeometry)
	}
	typ := ParseFeatureType(f.Properties.MustString(PropType, ""))
	if typ == "" {
		typ = c.Type
	}
	if typ == "" {
		return DomainFeature{}, fmt.Errorf("feature %s: %w", id, ErrUnknownType)
	}

	length, hasLength := Length(f.Properties)
	return DomainFeature{
		ID:         id,
		Type:       typ,
		Label:      f.Properties.MustString(PropLabel, ""),
		Length:     length,
		HasLength:  hasLength,
		Geometry:   f.Geometry,
		Centroid:   c.Centroid,
		Properties: f.Properties,
	}, nil
}

// FromCollection ingests every valid feature of fc and reports how many were
// dropped.
func FromCollection(fc *geojson.FeatureCollection) ([]DomainFeature, int) {
	if fc == nil {
		return nil, 0
	}
	out := make([]DomainFeature, 0, len(fc.Features))
	dropped := 0
	for _, f := range fc.Features {
		df, err := FromGeoJSON(f)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, df)
	}
	return out, dropped
}

// FeatureID returns properties.id, falling back to the GeoJSON feature id.
// Numeric ids are formatted without a fraction.
func FeatureID(f *geojson.Feature) string {
	if f == nil {
		return ""
	}
	if id := idString(f.Properties[PropID]); id != "" {
		return id
	}
	return idString(f.ID)
}

// PropertyID returns props.id as a string.
func PropertyID(props map[string]any) string {
	return idString(props[PropID])
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case fmt.Stringer:
		return id.String()
	}
	return ""
}

// Length reads the length-like numeric of a feature: `length` first, then a
// numeric `l` label (the aggregate documents put line lengths there).
func Length(props map[string]any) (float64, bool) {
	for _, key := range []string{PropLength, PropLabel} {
		switch v := props[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, "m")), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
