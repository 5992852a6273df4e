// Package layers composes the engine sources and render layers of a map from
// the legend selection, and defines which layers react to the pointer.
package layers

import (
	"github.com/joeblew999/plat-slackmap/internal/config"
	"github.com/joeblew999/plat-slackmap/internal/geo"
)

// Category is a legend key.
type Category string

const (
	Lines        Category = "lines"
	Spots        Category = "spots"
	Guides       Category = "guides"
	Groups       Category = "groups"
	ManagedAreas Category = "managedAreas"
)

// SharedClusterSource is the combined cluster source used when every
// clusterable category is visible.
const SharedClusterSource = "slacklineMapCluster"

// Geometry kinds a category renders.
type kinds struct {
	lines, polygons, points bool
}

// CategoryInfo describes how a category is rendered.
type CategoryInfo struct {
	Key         Category
	Type        geo.FeatureType
	Clusterable bool
	kinds       kinds
}

var categories = []CategoryInfo{
	{Key: Lines, Type: geo.TypeLine, Clusterable: true, kinds: kinds{lines: true}},
	{Key: Spots, Type: geo.TypeSpot, Clusterable: true, kinds: kinds{polygons: true}},
	{Key: Guides, Type: geo.TypeGuide, Clusterable: true, kinds: kinds{lines: true, polygons: true, points: true}},
	{Key: Groups, Type: geo.TypeSlacklineGroup, kinds: kinds{points: true}},
	{Key: ManagedAreas, Type: geo.TypeManagedArea, kinds: kinds{polygons: true, points: true}},
}

// Categories lists every category in render order.
func Categories() []CategoryInfo {
	return append([]CategoryInfo(nil), categories...)
}

// Lookup returns the info for key.
func Lookup(key Category) (CategoryInfo, bool) {
	for _, c := range categories {
		if c.Key == key {
			return c, true
		}
	}
	return CategoryInfo{}, false
}

// CategoryOf maps a feature type to its legend category.
func CategoryOf(t geo.FeatureType) (Category, bool) {
	for _, c := range categories {
		if c.Type == t {
			return c.Key, true
		}
	}
	return "", false
}

// ClusterSourceID is the per-category cluster source id.
func ClusterSourceID(c Category) string {
	return string(c) + "Cluster"
}

// DocumentURLs locates the GeoJSON documents of each category.
type DocumentURLs struct {
	// Points is the clusterable points document per category.
	Points map[Category]string
	// Detail is the full geometry document per category.
	Detail map[Category]string
	// Combined is the multi-category points document.
	Combined string
}

// URLsFromConfig resolves the configured document paths.
func URLsFromConfig(d config.DataConfig) DocumentURLs {
	return DocumentURLs{
		Points: map[Category]string{
			Lines:  d.DocumentURL(d.LinePoints),
			Spots:  d.DocumentURL(d.SpotPoints),
			Guides: d.DocumentURL(d.GuidePoints),
		},
		Detail: map[Category]string{
			Lines:        d.DocumentURL(d.Lines),
			Spots:        d.DocumentURL(d.Spots),
			Guides:       d.DocumentURL(d.Guides),
			Groups:       d.DocumentURL(d.Communities),
			ManagedAreas: d.DocumentURL(d.ManagedAreas),
		},
		Combined: d.DocumentURL(d.ClustersMain),
	}
}

// PathsFromConfig is URLsFromConfig without URL resolution, for the local
// document store.
func PathsFromConfig(d config.DataConfig) DocumentURLs {
	return DocumentURLs{
		Points:   map[Category]string{Lines: d.LinePoints, Spots: d.SpotPoints, Guides: d.GuidePoints},
		Detail:   map[Category]string{Lines: d.Lines, Spots: d.Spots, Guides: d.Guides, Groups: d.Communities, ManagedAreas: d.ManagedAreas},
		Combined: d.ClustersMain,
	}
}

// ClusterDocuments maps every cluster source id the composer can declare to
// its points document.
func ClusterDocuments(urls DocumentURLs) map[string]string {
	out := map[string]string{SharedClusterSource: urls.Combined}
	for _, c := range categories {
		if !c.Clusterable {
			continue
		}
		if u, ok := urls.Points[c.Key]; ok {
			out[ClusterSourceID(c.Key)] = u
		}
	}
	return out
}

// CategoryStyle is the persisted look of a category.
type CategoryStyle struct {
	Category Category  `json:"category" doc:"Legend category" enum:"lines,spots,guides,groups,managedAreas"`
	Color    string    `json:"color" doc:"Primary color (#rrggbb)" pattern:"^#[0-9a-fA-F]{6}$"`
	Dash     []float64 `json:"dash,omitempty" doc:"Line dash pattern"`
}

// Styles holds one style per category.
type Styles map[Category]CategoryStyle

// DefaultStyles are the built-in category colors.
func DefaultStyles() Styles {
	return Styles{
		Lines:        {Category: Lines, Color: "#ef5350"},
		Spots:        {Category: Spots, Color: "#388e3c"},
		Guides:       {Category: Guides, Color: "#ffa726", Dash: []float64{0.4, 2}},
		Groups:       {Category: Groups, Color: "#1e88e5"},
		ManagedAreas: {Category: ManagedAreas, Color: "#8e24aa"},
	}
}

// ClusterColor colors mixed-type clusters.
const ClusterColor = "#66bb6a"

func (s Styles) color(c Category) string {
	if st, ok := s[c]; ok && st.Color != "" {
		return st.Color
	}
	return DefaultStyles()[c].Color
}
