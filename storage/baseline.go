package storage

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gmaps-scraper/models"
)

// columnAliases maps each baseline field to the header spellings seen in
// previously exported files (and hand-edited copies of them).
var columnAliases = map[string][]string{
	"name":     {"store name", "name", "shop name", "business name", "store"},
	"address":  {"address", "formatted address", "location", "full address"},
	"phone":    {"phone", "phone number", "telephone", "tel", "phone no", "contact"},
	"rating":   {"rating", "stars", "google rating"},
	"reviews":  {"reviews", "total reviews", "review count", "no of reviews", "ratings count"},
	"category": {"category", "type", "primary type", "business type", "store type"},
	"website":  {"website", "web", "url", "site", "website url"},
	"hours":    {"opening hours", "hours", "open hours", "timings"},
	"postcode": {"postcode", "postcode area", "post code", "zip", "outcode"},
	"lat":      {"latitude", "lat"},
	"lng":      {"longitude", "lng", "lon", "long"},
	"mapsurl":  {"google maps url", "google maps", "maps url", "maps link", "google maps link"},
}

// LoadBaseline parses a previously exported .xlsx into raw listings ready
// for seeding. It auto-detects the stores sheet and the header row, so
// files that grew a title row or renamed columns still load. A file it
// cannot make sense of is an input error: no run should start from it.
func LoadBaseline(r io.Reader) ([]models.RawListing, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("baseline: open workbook: %w", err)
	}
	defer f.Close()

	sheet := pickSheet(f.GetSheetList())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("baseline: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("baseline: sheet %q is empty", sheet)
	}

	headerIdx, colMap := findHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("baseline: could not find a header row with a name column")
	}

	var listings []models.RawListing
	for _, row := range rows[headerIdx+1:] {
		if blankRow(row) {
			continue
		}
		name := cell(row, colMap, "name")
		if name == "" {
			continue
		}

		listings = append(listings, models.RawListing{
			Name:         name,
			Address:      cell(row, colMap, "address"),
			Phone:        cell(row, colMap, "phone"),
			Category:     cell(row, colMap, "category"),
			Rating:       cell(row, colMap, "rating"),
			Reviews:      cell(row, colMap, "reviews"),
			Website:      cell(row, colMap, "website"),
			OpeningHours: cell(row, colMap, "hours"),
			Latitude:     cell(row, colMap, "lat"),
			Longitude:    cell(row, colMap, "lng"),
			MapsURL:      cell(row, colMap, "mapsurl"),
			Postcode:     cell(row, colMap, "postcode"),
			ScrapedAt:    time.Now(),
		})
	}

	if len(listings) == 0 {
		return nil, fmt.Errorf("baseline: no usable rows in sheet %q", sheet)
	}
	return listings, nil
}

// pickSheet prefers a sheet whose name mentions stores, falling back to the
// first one.
func pickSheet(names []string) string {
	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "store") || strings.Contains(lower, "all") {
			return name
		}
	}
	return names[0]
}

// findHeader scans the first five rows for one containing a name-like
// header and returns its index plus the field→column mapping.
func findHeader(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > 5 {
		limit = 5
	}

	for idx := 0; idx < limit; idx++ {
		headers := make([]string, len(rows[idx]))
		hasName := false
		for i, h := range rows[idx] {
			headers[i] = strings.ToLower(strings.TrimSpace(h))
			if strings.Contains(headers[i], "name") {
				hasName = true
			}
		}
		if !hasName {
			continue
		}

		colMap := make(map[string]int)
		for field, aliases := range columnAliases {
			for i, h := range headers {
				if matchesAlias(h, aliases) {
					colMap[field] = i
					break
				}
			}
		}
		if _, ok := colMap["name"]; ok {
			return idx, colMap
		}
	}
	return -1, nil
}

func matchesAlias(header string, aliases []string) bool {
	if header == "" {
		return false
	}
	for _, alias := range aliases {
		if alias == header || strings.Contains(header, alias) {
			return true
		}
	}
	return false
}

func cell(row []string, colMap map[string]int, field string) string {
	idx, ok := colMap[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
