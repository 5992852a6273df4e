package layers

// Base map styles.
const (
	StyleLight     = "mapbox://styles/mapbox/light-v11"
	StyleSatellite = "mapbox://styles/mapbox/satellite-v9"
)

// Projections.
const (
	ProjectionGlobe    = "globe"
	ProjectionMercator = "mercator"
)

// MapStyle is the base style and projection for a zoom level.
type MapStyle struct {
	Style      string `json:"style"`
	Projection string `json:"projection,omitempty"`
}

// StyleForZoom picks the globe below zoom 6 and satellite imagery above
// zoom 10. Zoom 0 means unknown and keeps the light style with the engine's
// default projection.
func StyleForZoom(zoom float64) MapStyle {
	if zoom == 0 {
		return MapStyle{Style: StyleLight}
	}
	s := MapStyle{Style: StyleLight, Projection: ProjectionMercator}
	if zoom < 6 {
		s.Projection = ProjectionGlobe
	}
	if zoom > 10 {
		s.Style = StyleSatellite
	}
	return s
}
