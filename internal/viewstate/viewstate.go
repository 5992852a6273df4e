// Package viewstate encodes the map viewport into the `map` URL query
// parameter and back.
package viewstate

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// QueryParam is the URL query parameter holding the encoded viewport.
const QueryParam = "map"

// precision is the number of decimals kept when encoding.
const precision = 5

// Viewport is the camera state of the map.
type Viewport struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Zoom      float64 `json:"zoom"`
	Bearing   float64 `json:"bearing,omitempty"`
	Pitch     float64 `json:"pitch,omitempty"`
}

// Default is the world view shown when no viewport is supplied.
func Default() Viewport {
	return Viewport{
		Longitude: -39.41644394307363,
		Latitude:  35.92263245263329,
		Zoom:      1,
	}
}

// Encode renders "lon,lat[,zoom]" with 5-decimal rounding and no trailing
// zeros. The zoom segment is omitted when zoom is 0.
func Encode(lon, lat, zoom float64) string {
	parts := []string{format(lon), format(lat)}
	if z := round(zoom); z != 0 {
		parts = append(parts, format(z))
	}
	return strings.Join(parts, ",")
}

// EncodeViewport is Encode for v.
func EncodeViewport(v Viewport) string {
	return Encode(v.Longitude, v.Latitude, v.Zoom)
}

// Decode parses "lon,lat[,zoom]". It reports false when longitude or latitude
// is missing or not a number. A missing or unparsable zoom decodes as 0.
func Decode(s string) (Viewport, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Viewport{}, false
	}
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return Viewport{}, false
	}
	lon, ok := parse(parts[0])
	if !ok {
		return Viewport{}, false
	}
	lat, ok := parse(parts[1])
	if !ok {
		return Viewport{}, false
	}
	v := Viewport{Longitude: lon, Latitude: lat}
	if len(parts) > 2 {
		if z, ok := parse(parts[2]); ok {
			v.Zoom = z
		}
	}
	return v, true
}

// FromQuery decodes the `map` parameter of q.
func FromQuery(q url.Values) (Viewport, bool) {
	return Decode(q.Get(QueryParam))
}

// ToQuery writes v into the `map` parameter of q, leaving other parameters
// untouched.
func ToQuery(q url.Values, v Viewport) {
	q.Set(QueryParam, EncodeViewport(v))
}

// Apply returns rawURL with its `map` parameter set to v.
func Apply(rawURL string, v Viewport) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	ToQuery(q, v)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parse(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func round(f float64) float64 {
	p := math.Pow(10, precision)
	r := math.Round(f*p) / p
	if r == 0 {
		return 0
	}
	return r
}

func format(f float64) string {
	return strconv.FormatFloat(round(f), 'f', -1, 64)
}
