package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"gmaps-scraper/models"
)

var (
	// keyStripRegexp removes everything outside [a-z0-9] from a folded key part.
	keyStripRegexp = regexp.MustCompile(`[^a-z0-9]`)
	// ratingRegexp captures a numeric rating in the 0.0–5.0 range
	ratingRegexp = regexp.MustCompile(`\b([0-5](?:[.,]\d{1,2})?)\b`)
	// reviewsRegexp captures the first integer (with optional thousands commas)
	reviewsRegexp = regexp.MustCompile(`[\d,]+`)
	// phoneStripRegexp removes everything except digits, plus and spaces
	phoneStripRegexp = regexp.MustCompile(`[^\d+ ]`)

	placeholders = map[string]struct{}{
		"": {}, "n/a": {}, "na": {}, "none": {}, "-": {}, "—": {},
	}
)

// MakeKey derives the identity key for a business: name and address folded
// to lowercase alphanumerics, joined by a pipe. When the address is missing
// entirely the key falls back to name plus postcode, a weaker identity
// that can split one business across postcodes.
func MakeKey(name, address, postcode string) models.IdentityKey {
	n := foldKeyPart(name)
	a := foldKeyPart(address)
	if a == "" {
		return models.IdentityKey(n + "|pc:" + foldKeyPart(postcode))
	}
	return models.IdentityKey(n + "|" + a)
}

// Normalize maps a raw listing to its identity key and cleaned attribute
// set. It is a pure function: the same input always yields the same output.
func Normalize(raw models.RawListing) (models.IdentityKey, models.Attributes) {
	attrs := models.Attributes{
		Name:         cleanText(raw.Name),
		Address:      cleanText(raw.Address),
		Phone:        cleanPhone(raw.Phone),
		Category:     cleanText(raw.Category),
		Website:      cleanText(raw.Website),
		OpeningHours: strings.TrimSpace(denilled(raw.OpeningHours)),
		MapsURL:      strings.TrimSpace(raw.MapsURL),
		Rating:       parseRating(raw.Rating),
		Reviews:      parseReviews(raw.Reviews),
	}

	lat, lng, ok := parseCoords(raw.Latitude, raw.Longitude)
	if ok {
		attrs.Latitude = lat
		attrs.Longitude = lng
		attrs.HasCoords = true
	}

	key := MakeKey(attrs.Name, attrs.Address, raw.Postcode)
	return key, attrs
}

// foldKeyPart lowercases, strips diacritics and removes everything that is
// not a letter or digit, so "Café  Rouge," and "cafe rouge" collapse.
func foldKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(denilled(s)))
	s = norm.NFD.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
	return keyStripRegexp.ReplaceAllString(s, "")
}

// cleanText trims and collapses whitespace, and drops placeholder values.
func cleanText(s string) string {
	s = denilled(s)
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

// cleanPhone normalises phone formatting: strips decoration, keeps a leading
// plus, collapses runs of spaces.
func cleanPhone(s string) string {
	s = cleanText(s)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "tel:")
	s = phoneStripRegexp.ReplaceAllString(s, "")
	return cleanText(s)
}

// parseRating extracts a 0.0–5.0 numeric rating from a raw string.
func parseRating(raw string) float64 {
	match := ratingRegexp.FindStringSubmatch(denilled(raw))
	if len(match) < 2 {
		return 0
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil || val < 0 || val > 5 {
		return 0
	}
	return val
}

// parseReviews extracts a review count, tolerating thousands separators and
// surrounding text like "(1,204 reviews)".
func parseReviews(raw string) int {
	match := reviewsRegexp.FindString(denilled(raw))
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseCoords parses a latitude/longitude pair, rejecting clearly malformed
// values. Both must parse and be in range or the pair is dropped.
func parseCoords(latRaw, lngRaw string) (float64, float64, bool) {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	if lat == 0 && lng == 0 {
		return 0, 0, false
	}
	return lat, lng, true
}

// denilled maps scraped placeholder strings ("N/A", "—") to empty.
func denilled(s string) string {
	if _, ok := placeholders[strings.ToLower(strings.TrimSpace(s))]; ok {
		return ""
	}
	return s
}
