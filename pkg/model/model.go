package model

import (
	"time"

	"github.com/paulmach/orb"
)

// Stadium is the persisted, denormalized record built from the encyclopedia article
// and the structured entity graph. Optional values are nil when the source had nothing.
type Stadium struct {
	ID         string  `json:"id"`         // Storage-assigned, time ordered
	Name       string  `json:"name"`       // Display name, written on create only
	WikiTitle  string  `json:"wiki_title"` // Canonical title, the natural key
	WikidataID *string `json:"wikidata_id"`

	WikiURL        string  `json:"wiki_url"`
	WikiImage      *string `json:"wiki_image"`
	Description    *string `json:"description"`
	HistorySummary *string `json:"history_summary"`
	HistoryHTML    *string `json:"history_html"` // Sanitized fragment

	Location *orb.Point `json:"location"` // [lon, lat]

	Locality    *string `json:"locality"`
	Borough     *string `json:"borough"`
	City        *string `json:"city"`
	MetroArea   *string `json:"metro_area"`
	Region      *string `json:"region"`
	Country     *string `json:"country"`
	CountryCode *string `json:"country_code"`

	AdminPath          []string `json:"admin_path"`
	LocationTokens     []string `json:"location_tokens"`
	SearchLocationText *string  `json:"search_location_text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Latitude returns the latitude if coordinates are known.
func (s *Stadium) Latitude() (float64, bool) {
	if s.Location == nil {
		return 0, false
	}
	return s.Location.Lat(), true
}

// Longitude returns the longitude if coordinates are known.
func (s *Stadium) Longitude() (float64, bool) {
	if s.Location == nil {
		return 0, false
	}
	return s.Location.Lon(), true
}

// DisplayTitle is the title to address the article by: the stored canonical
// title, or the display name for records created by hand.
func (s *Stadium) DisplayTitle() string {
	if s.WikiTitle != "" {
		return s.WikiTitle
	}
	return s.Name
}

// LocationUpdate carries the fields refreshed by a location pass.
type LocationUpdate struct {
	WikidataID  *string
	Location    *orb.Point
	Locality    *string
	Borough     *string
	City        *string
	MetroArea   *string
	Region      *string
	Country     *string
	CountryCode *string

	AdminPath          []string
	LocationTokens     []string
	SearchLocationText *string
}

// Apply copies the update onto a stadium.
func (u *LocationUpdate) Apply(s *Stadium) {
	if u.WikidataID != nil {
		s.WikidataID = u.WikidataID
	}
	s.Location = u.Location
	s.Locality = u.Locality
	s.Borough = u.Borough
	s.City = u.City
	s.MetroArea = u.MetroArea
	s.Region = u.Region
	s.Country = u.Country
	s.CountryCode = u.CountryCode
	s.AdminPath = u.AdminPath
	s.LocationTokens = u.LocationTokens
	s.SearchLocationText = u.SearchLocationText
}

// MissingField selects records for a backfill pass.
type MissingField string

const (
	// MissingHistory matches records without a history fragment.
	MissingHistory MissingField = "history"
	// MissingLocation matches records with an empty admin path or no search text.
	MissingLocation MissingField = "location"
)

// Ptr returns a pointer to s, or nil for the empty string.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
