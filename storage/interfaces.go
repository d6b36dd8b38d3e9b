package storage

import "gmaps-scraper/models"

// ExportWriter serializes a finished run's handoff bundle to a file format.
type ExportWriter interface {
	Write(bundle *models.ExportBundle, path string) error
}

// ArchiveWriter persists canonical listings across runs and serves them
// back for inspection.
type ArchiveWriter interface {
	Write(listings []*models.CanonicalListing) error
	FetchAll() ([]*models.CanonicalListing, error)
	Close() error
}
