package models

import "time"

// RawListing holds unprocessed data as extracted from a Google Maps place
// pane. Numeric-looking fields stay strings until the normalizer parses them.
type RawListing struct {
	Name         string
	Address      string
	Phone        string
	Category     string
	Rating       string
	Reviews      string
	Website      string
	OpeningHours string
	Latitude     string
	Longitude    string
	MapsURL      string
	Postcode     string
	ScrapedAt    time.Time
}

// IdentityKey is the normalised name+address composite that decides whether
// two raw listings refer to the same business.
type IdentityKey string

// Attributes is the cleaned, typed attribute set produced by the normalizer.
type Attributes struct {
	Name         string
	Address      string
	Phone        string
	Category     string
	Website      string
	OpeningHours string
	MapsURL      string
	Rating       float64
	Reviews      int
	Latitude     float64
	Longitude    float64
	HasCoords    bool
}

// CanonicalListing is the deduplicated record held by the aggregate store.
// One identity key maps to exactly one CanonicalListing for the whole run.
type CanonicalListing struct {
	Key          IdentityKey
	Name         string
	Address      string
	Phone        string
	Category     string
	Website      string
	OpeningHours string
	MapsURL      string
	Rating       float64
	Reviews      int
	Latitude     float64
	Longitude    float64
	HasCoords    bool

	// Postcodes lists every postcode the business was observed in,
	// in first-seen order. Never shrinks.
	Postcodes []string

	// Seq is the first-seen order index within the run.
	Seq int

	// FromBaseline marks rows seeded from an uploaded prior export.
	FromBaseline bool
}

// SeenIn reports whether the listing was observed in the given postcode.
func (c *CanonicalListing) SeenIn(postcode string) bool {
	for _, pc := range c.Postcodes {
		if pc == postcode {
			return true
		}
	}
	return false
}

// PostcodeSummary aggregates one postcode's results for the export stage.
type PostcodeSummary struct {
	Postcode  string
	Found     int     // raw listings seen in this postcode
	New       int     // listings this postcode contributed first
	WithPhone int     // new listings carrying a phone number
	AvgRating float64 // mean rating over new rated listings, 0 if none
}
