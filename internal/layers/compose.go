package layers

import (
	"strings"

	"github.com/joeblew999/plat-slackmap/internal/geo"
)

// Kind is the role of a render layer. Layer ids are "<kind>-<suffix>".
type Kind string

const (
	KindPolygon          Kind = "polygon"
	KindPolygonOutline   Kind = "polygonOutline"
	KindPolygonLabel     Kind = "polygonLabel"
	KindLine             Kind = "line"
	KindLineLabel        Kind = "lineLabel"
	KindPoint            Kind = "point"
	KindPointLabel       Kind = "pointLabel"
	KindClusters         Kind = "clusters"
	KindClusterCount     Kind = "clusterCount"
	KindUnclusteredPoint Kind = "unclusteredPoint"
)

// SharedSuffix names the layers of the shared cluster source.
const SharedSuffix = "all"

// LayerID builds a layer id.
func LayerID(k Kind, suffix string) string {
	return string(k) + "-" + suffix
}

// KindOf extracts the kind from a layer id.
func KindOf(layerID string) Kind {
	k, _, _ := strings.Cut(layerID, "-")
	return Kind(k)
}

// MouseHoverable reports whether pointer moves over the layer hover features.
func MouseHoverable(layerID string) bool {
	switch KindOf(layerID) {
	case KindLine, KindLineLabel, KindPolygon, KindPolygonLabel, KindPoint, KindPointLabel:
		return true
	}
	return false
}

// CursorInteractable reports whether the layer shows a pointer cursor.
func CursorInteractable(layerID string) bool {
	switch KindOf(layerID) {
	case KindUnclusteredPoint, KindClusters:
		return true
	}
	return MouseHoverable(layerID)
}

// ClusterParams are the engine clustering settings.
type ClusterParams struct {
	MaxZoom   int
	MinPoints int
	Radius    int
}

// DefaultClusterParams matches the default configuration.
func DefaultClusterParams() ClusterParams {
	return ClusterParams{MaxZoom: 13, MinPoints: 3, Radius: 50}
}

// Source is a GeoJSON engine source.
type Source struct {
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	Data              any            `json:"data"`
	Cluster           bool           `json:"cluster,omitempty"`
	ClusterMaxZoom    int            `json:"clusterMaxZoom,omitempty"`
	ClusterMinPoints  int            `json:"clusterMinPoints,omitempty"`
	ClusterRadius     int            `json:"clusterRadius,omitempty"`
	ClusterProperties map[string]any `json:"clusterProperties,omitempty"`
	PromoteID         string         `json:"promoteId,omitempty"`
	GenerateID        bool           `json:"generateId,omitempty"`
}

// Layer is an engine render layer.
type Layer struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Source  string         `json:"source"`
	MinZoom float64        `json:"minzoom,omitempty"`
	MaxZoom float64        `json:"maxzoom,omitempty"`
	Filter  []any          `json:"filter,omitempty"`
	Layout  map[string]any `json:"layout,omitempty"`
	Paint   map[string]any `json:"paint,omitempty"`

	Kind     Kind     `json:"-"`
	Category Category `json:"-"`
}

// Visible reports the layer's layout visibility.
func (l Layer) Visible() bool {
	v, _ := l.Layout["visibility"].(string)
	return v != "none"
}

// Composition is the full set of sources and layers for a map.
type Composition struct {
	Sources []Source `json:"sources"`
	Layers  []Layer  `json:"layers"`
}

// Source returns the source with id.
func (c Composition) Source(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// Layer returns the layer with id.
func (c Composition) Layer(id string) (Layer, bool) {
	for _, l := range c.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// InteractiveLayerIDs lists the layers the engine should pick features from.
func (c Composition) InteractiveLayerIDs() []string {
	var out []string
	for _, l := range c.Layers {
		if CursorInteractable(l.ID) {
			out = append(out, l.ID)
		}
	}
	return out
}

// Options drives Compose.
type Options struct {
	// ExcludeID hides the feature with this id from every detail layer.
	ExcludeID string
	URLs      DocumentURLs
	Styles    Styles
	Cluster   ClusterParams
	// DisableClustering skips cluster sources; detail layers only.
	DisableClustering bool
}

// Compose declares the sources and layers for the legend selection.
//
// Clusterable categories share one cluster source only when all of them are
// visible; otherwise each visible one gets its own cluster source tagged with
// its type code. Detail sources are always declared and toggled through
// layout visibility so the data is never refetched.
func Compose(legend *Legend, opts Options) Composition {
	if opts.Styles == nil {
		opts.Styles = DefaultStyles()
	}
	if opts.Cluster == (ClusterParams{}) {
		opts.Cluster = DefaultClusterParams()
	}
	values := legend.Values()

	var comp Composition
	var clusterable []Category
	for _, key := range legend.Keys() {
		if info, ok := Lookup(key); ok && info.Clusterable {
			clusterable = append(clusterable, key)
		}
	}

	if opts.DisableClustering {
		clusterable = nil
	}
	shared := len(clusterable) > 0
	for _, key := range clusterable {
		if !values[key] {
			shared = false
		}
	}
	if shared {
		comp.addCluster(SharedClusterSource, SharedSuffix, opts.URLs.Combined, "", opts)
	} else {
		for _, key := range clusterable {
			if values[key] {
				info, _ := Lookup(key)
				comp.addCluster(ClusterSourceID(key), string(key), opts.URLs.Points[key], info.Type.Code(), opts)
			}
		}
	}

	for _, key := range legend.Keys() {
		info, ok := Lookup(key)
		if !ok {
			continue
		}
		comp.addDetail(info, values[key], opts)
	}
	return comp
}

// FocusedSourceID is the inline source of the focused map.
const FocusedSourceID = "focused"

// AddFocused declares an inline source for fc with polygon, line and line
// label layers colored by feature type.
func (c *Composition) AddFocused(fc any, styles Styles) {
	if styles == nil {
		styles = DefaultStyles()
	}
	c.Sources = append(c.Sources, Source{
		ID:        FocusedSourceID,
		Type:      "geojson",
		Data:      fc,
		PromoteID: geo.PropID,
	})
	colors := typeColors(styles)
	emphasis := []any{"any", stateIs("isSelected"), stateIs("isFocused")}
	c.Layers = append(c.Layers,
		Layer{
			ID: LayerID(KindPolygon, FocusedSourceID), Type: "fill", Source: FocusedSourceID, Kind: KindPolygon,
			Filter: geometryIs("Polygon"),
			Paint: map[string]any{
				"fill-color":   colors,
				"fill-opacity": []any{"case", emphasis, 1, stateIs("hover"), 0.8, 0.6},
			},
		},
		Layer{
			ID: LayerID(KindLine, FocusedSourceID), Type: "line", Source: FocusedSourceID, Kind: KindLine,
			Filter: geometryIs("LineString"),
			Layout: map[string]any{"line-cap": "round", "line-join": "round"},
			Paint: map[string]any{
				"line-color": colors,
				"line-width": []any{"case", emphasis, 6, stateIs("hover"), 4, 2},
			},
		},
		Layer{
			ID: LayerID(KindLineLabel, FocusedSourceID), Type: "symbol", Source: FocusedSourceID, Kind: KindLineLabel,
			Filter: []any{"all", geometryIs("LineString"), []any{"has", geo.PropLabel}},
			Layout: labelLayout("line-center"),
			Paint:  map[string]any{"text-color": "white", "icon-color": colors},
		},
	)
}

func (c *Composition) addCluster(sourceID, suffix, url, typeCode string, opts Options) {
	src := Source{
		ID:               sourceID,
		Type:             "geojson",
		Data:             url,
		Cluster:          true,
		ClusterMaxZoom:   opts.Cluster.MaxZoom,
		ClusterMinPoints: opts.Cluster.MinPoints,
		ClusterRadius:    opts.Cluster.Radius,
		GenerateID:       true,
	}
	if typeCode != "" {
		src.ClusterProperties = map[string]any{
			geo.PropType: []any{[]any{"get", geo.PropType}, []any{"get", geo.PropType}},
		}
	}
	c.Sources = append(c.Sources, src)

	colors := typeColors(opts.Styles)
	c.Layers = append(c.Layers,
		Layer{
			ID: LayerID(KindClusters, suffix), Type: "circle", Source: sourceID, Kind: KindClusters,
			Filter: []any{"has", "point_count"},
			Paint: map[string]any{
				"circle-color":  colors,
				"circle-radius": []any{"step", []any{"get", "point_count"}, 20, 50, 25, 200, 30, 400, 35},
			},
		},
		Layer{
			ID: LayerID(KindClusterCount, suffix), Type: "symbol", Source: sourceID, Kind: KindClusterCount,
			Filter: []any{"has", "point_count"},
			Layout: map[string]any{
				"text-field": "{point_count_abbreviated}",
				"text-font":  textFont,
				"text-size":  12,
			},
		},
		Layer{
			ID: LayerID(KindUnclusteredPoint, suffix), Type: "circle", Source: sourceID, Kind: KindUnclusteredPoint,
			MaxZoom: float64(opts.Cluster.MaxZoom),
			Filter:  []any{"!", []any{"has", "point_count"}},
			Paint: map[string]any{
				"circle-color":        colors,
				"circle-radius":       6,
				"circle-stroke-width": 1,
				"circle-stroke-color": "white",
			},
		},
	)
}

func (c *Composition) addDetail(info CategoryInfo, visible bool, opts Options) {
	sourceID := string(info.Key)
	c.Sources = append(c.Sources, Source{
		ID:        sourceID,
		Type:      "geojson",
		Data:      opts.URLs.Detail[info.Key],
		PromoteID: geo.PropID,
	})

	color := opts.Styles.color(info.Key)
	add := func(l Layer) {
		l.Source = sourceID
		l.Category = info.Key
		l.ID = LayerID(l.Kind, string(info.Key))
		if opts.ExcludeID != "" {
			l.Filter = []any{"all", l.Filter, []any{"!=", []any{"get", geo.PropID}, opts.ExcludeID}}
		}
		if l.Layout == nil {
			l.Layout = map[string]any{}
		}
		l.Layout["visibility"] = visibility(visible)
		c.Layers = append(c.Layers, l)
	}

	if info.kinds.polygons {
		add(Layer{Kind: KindPolygon, Type: "fill", MinZoom: 12,
			Filter: geometryIs("Polygon"),
			Paint: map[string]any{
				"fill-color": color,
				"fill-opacity": []any{"case",
					[]any{"any", stateIs("isSelected"), stateIs("isFocused")}, 1,
					stateIs("hover"), 0.8,
					0.6},
			},
		})
		add(Layer{Kind: KindPolygonOutline, Type: "line", MinZoom: 13, MaxZoom: 15,
			Filter: geometryIs("Polygon"),
			Paint:  map[string]any{"line-color": color, "line-width": 2, "line-opacity": 0.8},
		})
		add(Layer{Kind: KindPolygonLabel, Type: "symbol", MinZoom: 13,
			Filter: []any{"all", geometryIs("Polygon"), []any{"has", geo.PropLabel}},
			Layout: labelLayout("line-center"),
			Paint:  map[string]any{"text-color": "white", "icon-opacity": 0.8, "icon-color": color},
		})
	}
	if info.kinds.lines {
		paint := map[string]any{
			"line-color": color,
			"line-width": []any{"case",
				[]any{"any", stateIs("isSelected"), stateIs("isFocused")}, 6,
				stateIs("hover"), 4,
				2},
			"line-opacity": []any{"case", anyState(), 1, 0.8},
		}
		if dash := opts.Styles[info.Key].Dash; len(dash) > 0 {
			paint["line-dasharray"] = []any{"literal", dash}
		}
		add(Layer{Kind: KindLine, Type: "line", MinZoom: 12,
			Filter: geometryIs("LineString"),
			Layout: map[string]any{"line-cap": "round", "line-join": "round"},
			Paint:  paint,
		})
		add(Layer{Kind: KindLineLabel, Type: "symbol", MinZoom: 14,
			Filter: []any{"all", geometryIs("LineString"), []any{"has", geo.PropLabel}},
			Layout: labelLayout("line-center"),
			Paint:  map[string]any{"text-color": "white", "icon-opacity": []any{"case", anyState(), 1, 0.8}, "icon-color": color},
		})
	}
	if info.kinds.points {
		add(Layer{Kind: KindPoint, Type: "circle",
			Filter: geometryIs("Point"),
			Paint: map[string]any{
				"circle-radius":  []any{"case", anyState(), 9, 7},
				"circle-opacity": 0.8,
				"circle-color":   color,
			},
		})
		add(Layer{Kind: KindPointLabel, Type: "symbol", MinZoom: 13,
			Filter: []any{"all", geometryIs("Point"), []any{"has", geo.PropLabel}},
			Layout: labelLayout("point"),
			Paint:  map[string]any{"text-color": "white", "icon-opacity": []any{"case", anyState(), 1, 0.8}, "icon-color": color},
		})
	}
}

var textFont = []string{"DIN Offc Pro Medium", "Arial Unicode MS Bold"}

func labelLayout(placement string) map[string]any {
	return map[string]any{
		"icon-image":            "marker",
		"symbol-placement":      placement,
		"text-font":             textFont,
		"text-field":            "{" + geo.PropLabel + "}",
		"text-size":             12,
		"icon-text-fit":         "both",
		"icon-allow-overlap":    true,
		"text-allow-overlap":    true,
		"icon-text-fit-padding": []int{8, 8, 8, 8},
	}
}

func geometryIs(t string) []any {
	return []any{"==", []any{"geometry-type"}, t}
}

func stateIs(key string) []any {
	return []any{"boolean", []any{"feature-state", key}, false}
}

func anyState() []any {
	return []any{"any", stateIs("hover"), stateIs("isSelected"), stateIs("isFocused")}
}

// typeColors colors points by their `ft` code.
func typeColors(s Styles) []any {
	return []any{"case",
		[]any{"==", []any{"get", geo.PropType}, geo.TypeGuide.Code()}, s.color(Guides),
		[]any{"==", []any{"get", geo.PropType}, geo.TypeSpot.Code()}, s.color(Spots),
		[]any{"==", []any{"get", geo.PropType}, geo.TypeLine.Code()}, s.color(Lines),
		ClusterColor,
	}
}

func visibility(visible bool) string {
	if visible {
		return "visible"
	}
	return "none"
}
