package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-slackmap/internal/config"
	"github.com/joeblew999/plat-slackmap/internal/geo"
)

func TestLegendExclusive(t *testing.T) {
	l := CommunityLegend()
	assert.Equal(t, map[Category]bool{Groups: true, ManagedAreas: false}, l.Values())

	assert.True(t, l.Toggle(ManagedAreas, true))
	assert.Equal(t, map[Category]bool{Groups: false, ManagedAreas: true}, l.Values())

	assert.False(t, l.Toggle(ManagedAreas, false), "radio keeps its selection")
	assert.True(t, l.Selected(ManagedAreas))
}

func TestLegendNonExclusiveAndDisabled(t *testing.T) {
	l := NewLegend(false,
		LegendItem{Key: Lines, Selected: true},
		LegendItem{Key: Spots, Selected: true},
		LegendItem{Key: Guides, Disabled: true},
	)
	assert.True(t, l.Toggle(Lines, false))
	assert.False(t, l.Toggle(Lines, false))
	assert.False(t, l.Toggle(Guides, true))
	assert.False(t, l.Toggle("unknown", true))
	assert.Equal(t, map[Category]bool{Lines: false, Spots: true, Guides: false}, l.Values())
	assert.Equal(t, []Category{Lines, Spots, Guides}, l.Keys())
}

func testURLs() DocumentURLs {
	return URLsFromConfig(config.Default().Data)
}

func TestComposeSharedCluster(t *testing.T) {
	comp := Compose(SlacklineLegend(), Options{URLs: testURLs()})

	src, ok := comp.Source(SharedClusterSource)
	require.True(t, ok)
	assert.True(t, src.Cluster)
	assert.Equal(t, "/data/geojson/clusters/main.geojson", src.Data)
	assert.Equal(t, 13, src.ClusterMaxZoom)
	assert.Equal(t, 3, src.ClusterMinPoints)
	assert.Equal(t, 50, src.ClusterRadius)
	assert.Nil(t, src.ClusterProperties)

	_, ok = comp.Source(ClusterSourceID(Lines))
	assert.False(t, ok)

	for _, id := range []string{"lines", "spots", "guides"} {
		s, ok := comp.Source(id)
		require.True(t, ok, id)
		assert.Equal(t, "id", s.PromoteID)
		assert.False(t, s.Cluster)
	}
}

func TestComposePerCategoryClusters(t *testing.T) {
	legend := SlacklineLegend()
	legend.Toggle(Guides, false)
	comp := Compose(legend, Options{URLs: testURLs()})

	_, ok := comp.Source(SharedClusterSource)
	assert.False(t, ok)

	lines, ok := comp.Source("linesCluster")
	require.True(t, ok)
	assert.Equal(t, "/data/geojson/lines/points.geojson", lines.Data)
	assert.Contains(t, lines.ClusterProperties, "ft")

	_, ok = comp.Source("spotsCluster")
	assert.True(t, ok)
	_, ok = comp.Source("guidesCluster")
	assert.False(t, ok)

	// Hidden categories keep their detail source, only the layers are hidden.
	_, ok = comp.Source("guides")
	assert.True(t, ok)
	guideLine, ok := comp.Layer("line-guides")
	require.True(t, ok)
	assert.False(t, guideLine.Visible())
	lineLayer, ok := comp.Layer("line-lines")
	require.True(t, ok)
	assert.True(t, lineLayer.Visible())
}

func TestComposeGeometryKinds(t *testing.T) {
	comp := Compose(SlacklineLegend(), Options{URLs: testURLs()})

	_, ok := comp.Layer("polygon-lines")
	assert.False(t, ok)
	for _, id := range []string{"polygon-spots", "polygonOutline-spots", "polygonLabel-spots", "line-lines", "lineLabel-lines", "point-guides", "line-guides", "polygon-guides"} {
		_, ok := comp.Layer(id)
		assert.True(t, ok, id)
	}

	l, _ := comp.Layer("polygon-spots")
	assert.Equal(t, []any{"==", []any{"geometry-type"}, "Polygon"}, l.Filter)
	assert.Equal(t, "#388e3c", l.Paint["fill-color"])
}

func TestComposeExcludeID(t *testing.T) {
	comp := Compose(SlacklineLegend(), Options{URLs: testURLs(), ExcludeID: "abc"})
	for _, l := range comp.Layers {
		if l.Kind == KindClusters || l.Kind == KindClusterCount || l.Kind == KindUnclusteredPoint {
			continue
		}
		require.Len(t, l.Filter, 3, l.ID)
		assert.Equal(t, "all", l.Filter[0])
		assert.Equal(t, []any{"!=", []any{"get", geo.PropID}, "abc"}, l.Filter[2])
	}
}

func TestComposeCommunity(t *testing.T) {
	comp := Compose(CommunityLegend(), Options{URLs: testURLs()})
	for _, s := range comp.Sources {
		assert.False(t, s.Cluster)
	}
	groups, ok := comp.Layer("point-groups")
	require.True(t, ok)
	assert.True(t, groups.Visible())
	areas, ok := comp.Layer("polygon-managedAreas")
	require.True(t, ok)
	assert.False(t, areas.Visible())
}

func TestLayerPredicates(t *testing.T) {
	assert.True(t, MouseHoverable("line-lines"))
	assert.True(t, MouseHoverable("pointLabel-guides"))
	assert.False(t, MouseHoverable("clusters-all"))
	assert.False(t, MouseHoverable("polygonOutline-spots"))

	assert.True(t, CursorInteractable("clusters-all"))
	assert.True(t, CursorInteractable("unclusteredPoint-lines"))
	assert.True(t, CursorInteractable("polygon-spots"))
	assert.False(t, CursorInteractable("clusterCount-all"))
	assert.False(t, CursorInteractable("water"))

	comp := Compose(SlacklineLegend(), Options{URLs: testURLs()})
	ids := comp.InteractiveLayerIDs()
	assert.Contains(t, ids, "clusters-all")
	assert.NotContains(t, ids, "clusterCount-all")
}

func TestClusterDocuments(t *testing.T) {
	docs := ClusterDocuments(PathsFromConfig(config.Default().Data))
	assert.Equal(t, "geojson/clusters/main.geojson", docs[SharedClusterSource])
	assert.Equal(t, "geojson/spots/points.geojson", docs["spotsCluster"])
	assert.Len(t, docs, 4)
}

func TestStyleForZoom(t *testing.T) {
	assert.Equal(t, MapStyle{Style: StyleLight}, StyleForZoom(0))
	assert.Equal(t, MapStyle{Style: StyleLight, Projection: ProjectionGlobe}, StyleForZoom(3))
	assert.Equal(t, MapStyle{Style: StyleLight, Projection: ProjectionMercator}, StyleForZoom(8))
	assert.Equal(t, MapStyle{Style: StyleSatellite, Projection: ProjectionMercator}, StyleForZoom(12))
}

func TestCategoryOf(t *testing.T) {
	c, ok := CategoryOf(geo.TypeSpot)
	assert.True(t, ok)
	assert.Equal(t, Spots, c)
	_, ok = CategoryOf("")
	assert.False(t, ok)
}

func TestComposeWithoutClusteringAndFocused(t *testing.T) {
	comp := Compose(SlacklineLegend(), Options{URLs: testURLs(), DisableClustering: true})
	for _, s := range comp.Sources {
		assert.False(t, s.Cluster, s.ID)
	}

	fc := map[string]any{"type": "FeatureCollection", "features": []any{}}
	comp.AddFocused(fc, nil)
	src, ok := comp.Source(FocusedSourceID)
	require.True(t, ok)
	assert.Equal(t, fc, src.Data)
	assert.Equal(t, "id", src.PromoteID)

	l, ok := comp.Layer("line-focused")
	require.True(t, ok)
	assert.True(t, MouseHoverable(l.ID))
	assert.Contains(t, comp.InteractiveLayerIDs(), "polygon-focused")
}
