package services

import (
	"fmt"
	"sort"
	"sync"

	"gmaps-scraper/models"
)

// MergePolicy decides what happens when a field is present on both the
// stored listing and an incoming duplicate.
type MergePolicy int

const (
	// FillMissing keeps the existing value and only adopts incoming values
	// for empty fields. Order-independent, so concurrent sessions cannot
	// flap a field between two present values.
	FillMissing MergePolicy = iota
	// MostRecentWins lets a later observation overwrite present fields.
	MostRecentWins
)

// AggregateStore owns the canonical, deduplicated set of listings for one
// run. Merge is the sole mutation point and is safe for concurrent use by
// multiple scrape sessions.
type AggregateStore struct {
	mu       sync.Mutex
	policy   MergePolicy
	byKey    map[models.IdentityKey]*models.CanonicalListing
	order    []models.IdentityKey // first-seen order
	tallies  map[string]*postcodeTally
	seeded   int
	newCount int
}

type postcodeTally struct {
	found     int
	newCount  int
	withPhone int
	ratingSum float64
	rated     int
}

// NewAggregateStore creates an empty store with the given merge policy.
func NewAggregateStore(policy MergePolicy) *AggregateStore {
	return &AggregateStore{
		policy:  policy,
		byKey:   make(map[models.IdentityKey]*models.CanonicalListing),
		tallies: make(map[string]*postcodeTally),
	}
}

// Seed bulk-inserts rows from a previously exported dataset before any
// scraping starts. Seeded rows carry baseline provenance and are never
// reported as new even when re-discovered live.
func (s *AggregateStore) Seed(baseline []models.RawListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, row := range baseline {
		key, attrs := Normalize(row)
		if attrs.Name == "" {
			return fmt.Errorf("baseline row %d: missing business name", i+1)
		}
		if _, exists := s.byKey[key]; exists {
			continue // uploaded files may carry their own duplicates
		}
		listing := s.newListing(key, attrs, row.Postcode)
		listing.FromBaseline = true
		s.seeded++
	}
	return nil
}

// Merge folds one normalized listing into the store and reports whether it
// was genuinely new. The read-check-write is a single critical section: for
// concurrent merges of the same key exactly one caller sees isNew=true, and
// none for baseline-seeded keys.
func (s *AggregateStore) Merge(key models.IdentityKey, attrs models.Attributes, postcode string) (models.CanonicalListing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tally := s.tally(postcode)
	tally.found++

	existing, ok := s.byKey[key]
	if !ok {
		listing := s.newListing(key, attrs, postcode)
		s.newCount++
		tally.newCount++
		if listing.Phone != "" {
			tally.withPhone++
		}
		if listing.Rating > 0 {
			tally.ratingSum += listing.Rating
			tally.rated++
		}
		return *listing, true
	}

	if postcode != "" && !existing.SeenIn(postcode) {
		existing.Postcodes = append(existing.Postcodes, postcode)
	}
	s.mergeAttrs(existing, attrs)
	return *existing, false
}

// Snapshot returns all canonical listings in first-seen order plus the
// per-postcode summary. Callable once all sessions have finished; it never
// mutates the store.
func (s *AggregateStore) Snapshot() ([]*models.CanonicalListing, []models.PostcodeSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listings := make([]*models.CanonicalListing, 0, len(s.order))
	for _, key := range s.order {
		cp := *s.byKey[key]
		cp.Postcodes = append([]string(nil), s.byKey[key].Postcodes...)
		listings = append(listings, &cp)
	}

	summaries := make([]models.PostcodeSummary, 0, len(s.tallies))
	for pc, t := range s.tallies {
		sum := models.PostcodeSummary{
			Postcode:  pc,
			Found:     t.found,
			New:       t.newCount,
			WithPhone: t.withPhone,
		}
		if t.rated > 0 {
			sum.AvgRating = t.ratingSum / float64(t.rated)
		}
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Postcode < summaries[j].Postcode
	})

	return listings, summaries
}

// Len returns the current number of canonical listings.
func (s *AggregateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// BaselineCount returns the number of seeded rows.
func (s *AggregateStore) BaselineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}

// NewCount returns the number of listings first seen during this run.
func (s *AggregateStore) NewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newCount
}

// tally returns the counters for a postcode, creating them on first use.
// Caller holds the lock.
func (s *AggregateStore) tally(postcode string) *postcodeTally {
	t, ok := s.tallies[postcode]
	if !ok {
		t = &postcodeTally{}
		s.tallies[postcode] = t
	}
	return t
}

// newListing inserts a fresh canonical record. Caller holds the lock.
func (s *AggregateStore) newListing(key models.IdentityKey, attrs models.Attributes, postcode string) *models.CanonicalListing {
	listing := &models.CanonicalListing{
		Key:          key,
		Name:         attrs.Name,
		Address:      attrs.Address,
		Phone:        attrs.Phone,
		Category:     attrs.Category,
		Website:      attrs.Website,
		OpeningHours: attrs.OpeningHours,
		MapsURL:      attrs.MapsURL,
		Rating:       attrs.Rating,
		Reviews:      attrs.Reviews,
		Latitude:     attrs.Latitude,
		Longitude:    attrs.Longitude,
		HasCoords:    attrs.HasCoords,
		Seq:          len(s.order),
	}
	if postcode != "" {
		listing.Postcodes = []string{postcode}
	}
	s.byKey[key] = listing
	s.order = append(s.order, key)
	return listing
}

// mergeAttrs applies the configured merge policy. Caller holds the lock.
func (s *AggregateStore) mergeAttrs(dst *models.CanonicalListing, in models.Attributes) {
	overwrite := s.policy == MostRecentWins

	mergeStr(&dst.Name, in.Name, overwrite)
	mergeStr(&dst.Address, in.Address, overwrite)
	mergeStr(&dst.Phone, in.Phone, overwrite)
	mergeStr(&dst.Category, in.Category, overwrite)
	mergeStr(&dst.Website, in.Website, overwrite)
	mergeStr(&dst.OpeningHours, in.OpeningHours, overwrite)
	mergeStr(&dst.MapsURL, in.MapsURL, overwrite)

	if in.Rating > 0 && (dst.Rating == 0 || overwrite) {
		dst.Rating = in.Rating
	}
	if in.Reviews > 0 && (dst.Reviews == 0 || overwrite) {
		dst.Reviews = in.Reviews
	}
	if in.HasCoords && (!dst.HasCoords || overwrite) {
		dst.Latitude = in.Latitude
		dst.Longitude = in.Longitude
		dst.HasCoords = true
	}
}

func mergeStr(dst *string, in string, overwrite bool) {
	if in == "" {
		return
	}
	if *dst == "" || overwrite {
		*dst = in
	}
}
