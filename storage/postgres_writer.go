package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"gmaps-scraper/models"
)

// PostgresWriter archives canonical listings across runs. The identity key
// is the unique column, so re-running a query never duplicates a business.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id            SERIAL PRIMARY KEY,
			identity_key  TEXT         UNIQUE NOT NULL,
			name          TEXT         NOT NULL,
			address       TEXT         NOT NULL DEFAULT '',
			phone         TEXT         NOT NULL DEFAULT '',
			category      TEXT         NOT NULL DEFAULT '',
			website       TEXT         NOT NULL DEFAULT '',
			opening_hours TEXT         NOT NULL DEFAULT '',
			maps_url      TEXT         NOT NULL DEFAULT '',
			rating        NUMERIC(4,2) NOT NULL DEFAULT 0,
			reviews       INT          NOT NULL DEFAULT 0,
			latitude      NUMERIC(10,7),
			longitude     NUMERIC(10,7),
			postcodes     TEXT         NOT NULL DEFAULT '',
			from_baseline BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_category  ON listings(category);
		CREATE INDEX IF NOT EXISTS idx_listings_postcodes ON listings(postcodes);
		CREATE INDEX IF NOT EXISTS idx_listings_rating    ON listings(rating);
	`)
	return err
}

// Write batch-inserts listings, leaving already-archived identities alone.
func (pw *PostgresWriter) Write(listings []*models.CanonicalListing) error {
	if len(listings) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.CanonicalListing) error {
	const fields = 14
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*fields)

	for idx, l := range batch {
		base := idx * fields
		marks := make([]string, fields)
		for j := range marks {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(marks, ",")+")")

		var lat, lng interface{}
		if l.HasCoords {
			lat, lng = l.Latitude, l.Longitude
		}
		valueArgs = append(valueArgs,
			string(l.Key), l.Name, l.Address, l.Phone, l.Category,
			l.Website, l.OpeningHours, l.MapsURL, l.Rating, l.Reviews,
			lat, lng, strings.Join(l.Postcodes, ","), l.FromBaseline)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (identity_key, name, address, phone, category,
			website, opening_hours, maps_url, rating, reviews,
			latitude, longitude, postcodes, from_baseline)
		VALUES %s
		ON CONFLICT (identity_key) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves every archived listing — used by the archive endpoint.
func (pw *PostgresWriter) FetchAll() ([]*models.CanonicalListing, error) {
	rows, err := pw.db.Query(`
		SELECT identity_key, name, address, phone, category,
			website, opening_hours, maps_url, rating, reviews,
			latitude, longitude, postcodes, from_baseline
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.CanonicalListing
	for rows.Next() {
		l := &models.CanonicalListing{}
		var lat, lng sql.NullFloat64
		var postcodes string
		if err := rows.Scan(
			&l.Key, &l.Name, &l.Address, &l.Phone, &l.Category,
			&l.Website, &l.OpeningHours, &l.MapsURL, &l.Rating, &l.Reviews,
			&lat, &lng, &postcodes, &l.FromBaseline,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		if lat.Valid && lng.Valid {
			l.Latitude = lat.Float64
			l.Longitude = lng.Float64
			l.HasCoords = true
		}
		if postcodes != "" {
			l.Postcodes = strings.Split(postcodes, ",")
		}
		l.Seq = len(listings)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
