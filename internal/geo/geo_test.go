package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLineString(t *testing.T) {
	g := orb.LineString{{8.5, 47.3}, {8.6, 47.4}}
	c := Classify(g, map[string]any{"id": "abc"})

	require.True(t, c.OK)
	assert.Equal(t, TypeLine, c.Type)
	assert.Equal(t, "abc", c.ID)
	assert.InDelta(t, 8.55, c.Centroid.Lon(), 1e-9)
	assert.InDelta(t, 47.35, c.Centroid.Lat(), 1e-9)
}

func TestClassifyPolygon(t *testing.T) {
	g := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}
	c := Classify(g, map[string]any{"id": "spot1"})

	require.True(t, c.OK)
	assert.Equal(t, TypeSpot, c.Type)
	assert.InDelta(t, 1, c.Centroid.Lon(), 1e-9)
	assert.InDelta(t, 1, c.Centroid.Lat(), 1e-9)
}

func TestClassifyPointUsesTypeProperty(t *testing.T) {
	c := Classify(orb.Point{1, 2}, map[string]any{"id": 7.0, "ft": "g"})
	require.True(t, c.OK)
	assert.Equal(t, TypeGuide, c.Type)
	assert.Equal(t, "7", c.ID)
	assert.Equal(t, orb.Point{1, 2}, c.Centroid)

	c = Classify(orb.Point{1, 2}, nil)
	require.True(t, c.OK)
	assert.Empty(t, c.Type)
}

func TestClassifyMalformed(t *testing.T) {
	for name, g := range map[string]orb.Geometry{
		"nil":         nil,
		"empty line":  orb.LineString{},
		"empty poly":  orb.Polygon{},
		"empty ring":  orb.Polygon{orb.Ring{}},
		"empty multi": orb.MultiPoint{},
		"empty coll":  orb.Collection{},
		"nil in coll": orb.Collection{nil},
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				c := Classify(g, map[string]any{"id": "x"})
				assert.False(t, c.OK)
				assert.Empty(t, c.Type)
			})
		})
	}
}

func TestClassifyFeatureFallsBackToFeatureID(t *testing.T) {
	f := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
	f.ID = "f-1"
	c := ClassifyFeature(f)
	assert.Equal(t, "f-1", c.ID)
	assert.Equal(t, TypeLine, c.Type)

	assert.False(t, ClassifyFeature(nil).OK)
}

func TestFromGeoJSON(t *testing.T) {
	f := geojson.NewFeature(orb.LineString{{0, 0}, {0, 0.01}})
	f.Properties["id"] = "g1"
	f.Properties["ft"] = "g"
	f.Properties["l"] = "120m"

	df, err := FromGeoJSON(f)
	require.NoError(t, err)
	assert.Equal(t, TypeGuide, df.Type, "explicit ft wins over geometry")
	assert.True(t, df.HasLength)
	assert.Equal(t, 120.0, df.Length)

	_, err = FromGeoJSON(geojson.NewFeature(orb.Point{1, 1}))
	assert.ErrorIs(t, err, ErrNoID)

	bare := geojson.NewFeature(orb.Point{1, 1})
	bare.Properties["id"] = "p"
	_, err = FromGeoJSON(bare)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = FromGeoJSON(&geojson.Feature{})
	assert.ErrorIs(t, err, ErrNoGeometry)
}

func TestFromCollectionCountsDropped(t *testing.T) {
	good := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
	good.Properties["id"] = "a"
	bad := geojson.NewFeature(orb.LineString{})
	bad.Properties["id"] = "b"

	fc := geojson.NewFeatureCollection()
	fc.Append(good)
	fc.Append(bad)

	out, dropped := FromCollection(fc)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, 1, dropped)
}

func TestParseFeatureType(t *testing.T) {
	assert.Equal(t, TypeSlacklineGroup, ParseFeatureType("sg"))
	assert.Equal(t, TypeManagedArea, ParseFeatureType("managedArea"))
	assert.Equal(t, FeatureType(""), ParseFeatureType("nope"))
	assert.Equal(t, "ma", TypeManagedArea.Code())
}

func TestComputeBoundsContainsExact(t *testing.T) {
	g := orb.LineString{{8.5, 47.3}, {8.52, 47.31}}
	b, err := ComputeBounds(g, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, g.Bound(), b.Exact)
	assert.True(t, b.Padded.Contains(b.Exact.Min))
	assert.True(t, b.Padded.Contains(b.Exact.Max))
}

func TestComputeBoundsPaddingMonotonic(t *testing.T) {
	g := orb.LineString{{8.5, 47.3}, {8.51, 47.3}}

	small, err := ComputeBounds(g, 100, 1)
	require.NoError(t, err)
	large, err := ComputeBounds(g, 5000, 1)
	require.NoError(t, err)
	larger, err := ComputeBounds(g, 5000, 2)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, large.Padded.Max.Lat(), small.Padded.Max.Lat())
	assert.LessOrEqual(t, large.Padded.Min.Lon(), small.Padded.Min.Lon())
	assert.Greater(t, larger.Padded.Max.Lat(), large.Padded.Max.Lat())
	assert.Less(t, larger.Padded.Min.Lat(), large.Padded.Min.Lat())
}

func TestComputeBoundsPoint(t *testing.T) {
	b, err := ComputeBounds(orb.Point{0, 0}, 0, 1)
	require.NoError(t, err)
	// 0.3 km is roughly 0.0027 degrees at the equator.
	assert.InDelta(t, 0.0027, b.Padded.Max.Lat(), 0.0002)
	assert.InDelta(t, -0.0027, b.Padded.Min.Lon(), 0.0002)
}

func TestComputeBoundsEmpty(t *testing.T) {
	_, err := ComputeBounds(nil, 10, 1)
	assert.ErrorIs(t, err, ErrEmptyGeometry)
	_, err = ComputeBounds(orb.MultiLineString{}, 10, 1)
	assert.ErrorIs(t, err, ErrEmptyGeometry)
	_, err = ComputeCollectionBounds(geojson.NewFeatureCollection(), 10, 1)
	assert.ErrorIs(t, err, ErrEmptyGeometry)
}

func TestRadiusKm(t *testing.T) {
	assert.Equal(t, DefaultRadiusKm, RadiusKm(0, 1))
	assert.Equal(t, 2.0, RadiusKm(1000, 2))
	assert.Equal(t, 1.0, RadiusKm(1000, -1))
}
