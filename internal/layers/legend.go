package layers

import "sync"

// LegendItem is one toggle of the map legend.
type LegendItem struct {
	Key      Category `json:"key"`
	Label    string   `json:"label"`
	Selected bool     `json:"selected"`
	Disabled bool     `json:"disabled,omitempty"`
}

// Legend is the ordered set of category toggles. In exclusive mode it
// behaves like a radio group.
type Legend struct {
	mu        sync.RWMutex
	items     []LegendItem
	exclusive bool
}

// NewLegend creates a legend from items in display order.
func NewLegend(exclusive bool, items ...LegendItem) *Legend {
	return &Legend{items: append([]LegendItem(nil), items...), exclusive: exclusive}
}

// SlacklineLegend is the world map legend: lines, spots and guides selected.
func SlacklineLegend() *Legend {
	return NewLegend(false,
		LegendItem{Key: Lines, Label: "Lines", Selected: true},
		LegendItem{Key: Spots, Label: "Spots", Selected: true},
		LegendItem{Key: Guides, Label: "Access Guides", Selected: true},
	)
}

// CommunityLegend is the exclusive community legend with groups selected.
func CommunityLegend() *Legend {
	return NewLegend(true,
		LegendItem{Key: Groups, Label: "Groups", Selected: true},
		LegendItem{Key: ManagedAreas, Label: "Managed Areas"},
	)
}

// Exclusive reports whether the legend is a radio group.
func (l *Legend) Exclusive() bool {
	return l.exclusive
}

// Toggle sets key to selected and reports whether anything changed.
// Disabled and unknown keys are ignored. In exclusive mode selecting a key
// deselects every sibling, and the selected key cannot be turned off.
func (l *Legend) Toggle(key Category, selected bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, it := range l.items {
		if it.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 || l.items[idx].Disabled {
		return false
	}
	if !l.exclusive {
		if l.items[idx].Selected == selected {
			return false
		}
		l.items[idx].Selected = selected
		return true
	}
	if !selected {
		return false
	}
	changed := false
	for i := range l.items {
		want := i == idx
		if l.items[i].Selected != want {
			l.items[i].Selected = want
			changed = true
		}
	}
	return changed
}

// Selected reports whether key is visible.
func (l *Legend) Selected(key Category) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, it := range l.items {
		if it.Key == key {
			return it.Selected
		}
	}
	return false
}

// Values returns the visibility per key.
func (l *Legend) Values() map[Category]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[Category]bool, len(l.items))
	for _, it := range l.items {
		out[it.Key] = it.Selected
	}
	return out
}

// Items returns a copy of the items in display order.
func (l *Legend) Items() []LegendItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]LegendItem(nil), l.items...)
}

// Keys returns the item keys in display order.
func (l *Legend) Keys() []Category {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Category, len(l.items))
	for i, it := range l.items {
		out[i] = it.Key
	}
	return out
}
