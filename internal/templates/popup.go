package templates

import (
	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/geo"
)

// Fragment names.
const (
	FragmentPopup        = "popup"
	FragmentNotification = "notification"
)

// Popup is the data of a feature info popup.
type Popup struct {
	ID               string
	Type             geo.FeatureType
	Avatar           string
	Color            string
	Title            string
	Subheader        string
	ImageURL         string
	Description      string
	Length           *float64
	Height           *float64
	RestrictionLevel string
	DetailsURL       string
}

// NewPopup builds popup data for a feature. details may be nil, in which
// case the feature label is the title.
func NewPopup(id string, t geo.FeatureType, label, color string, details *backend.Details) Popup {
	p := Popup{
		ID:         id,
		Type:       t,
		Avatar:     avatar(t),
		Color:      color,
		Title:      label,
		DetailsURL: "/" + string(t) + "/" + id,
	}
	if details != nil {
		if details.Name != "" {
			p.Title = details.Name
		}
		updated := details.LastModifiedDateTime
		if updated == "" {
			updated = details.CreatedDateTime
		}
		if updated != "" {
			p.Subheader = "Last updated: " + updated
		}
		p.ImageURL = details.CoverImageURL
		p.Description = details.Description
		p.Length = details.Length
		p.Height = details.Height
		p.RestrictionLevel = details.RestrictionLevel
	}
	if p.Title == "" {
		p.Title = "Unknown Name"
	}
	return p
}

func avatar(t geo.FeatureType) string {
	switch t {
	case geo.TypeLine:
		return "L"
	case geo.TypeSpot:
		return "S"
	case geo.TypeGuide:
		return "G"
	case geo.TypeSlacklineGroup:
		return "SG"
	case geo.TypeManagedArea:
		return "MA"
	}
	return "?"
}

// Notification is the data of a toast.
type Notification struct {
	Message  string
	Severity string
}
