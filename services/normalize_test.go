package services

import (
	"testing"

	"gmaps-scraper/models"
)

func TestMakeKeyFolding(t *testing.T) {
	tests := []struct {
		name    string
		address string
		other   string // a differently-formatted spelling of the same business
		otherA  string
	}{
		{"Café Rouge", "12 High St.", "cafe  rouge", "12 HIGH ST"},
		{"Joe's Pharmacy", "Unit 4, Mill Lane", "JOES PHARMACY", "unit4 mill-lane"},
		{"Müller Söhne", "5 König Rd", "MULLER SOHNE", "5 konig rd"},
	}

	for _, tt := range tests {
		a := MakeKey(tt.name, tt.address, "L1")
		b := MakeKey(tt.other, tt.otherA, "L1")
		if a != b {
			t.Errorf("MakeKey(%q,%q) = %q; MakeKey(%q,%q) = %q — want equal",
				tt.name, tt.address, a, tt.other, tt.otherA, b)
		}
	}
}

func TestMakeKeyAddressFallback(t *testing.T) {
	withAddr := MakeKey("Corner Shop", "1 Main St", "L1")
	noAddrL1 := MakeKey("Corner Shop", "", "L1")
	noAddrL2 := MakeKey("Corner Shop", "", "L2")

	if withAddr == noAddrL1 {
		t.Error("address-less key should not collide with addressed key")
	}
	if noAddrL1 == noAddrL2 {
		t.Error("address-less keys from different postcodes should differ")
	}
	if noAddrL1 != MakeKey("corner shop", "N/A", "L1") {
		t.Error("placeholder address should fall back to name+postcode")
	}
}

func TestNormalizeIsPure(t *testing.T) {
	raw := models.RawListing{
		Name:     "  The   Old Bakery ",
		Address:  "7 Bridge St,  Chester",
		Phone:    "0151 123 4567",
		Rating:   "4.5",
		Reviews:  "1,204 reviews",
		Postcode: "CH1",
	}

	k1, a1 := Normalize(raw)
	k2, a2 := Normalize(raw)

	if k1 != k2 {
		t.Errorf("keys differ across calls: %q vs %q", k1, k2)
	}
	if a1 != a2 {
		t.Errorf("attributes differ across calls: %+v vs %+v", a1, a2)
	}
	if a1.Name != "The Old Bakery" {
		t.Errorf("name not collapsed: %q", a1.Name)
	}
	if a1.Reviews != 1204 {
		t.Errorf("reviews = %d, want 1204", a1.Reviews)
	}
	if a1.Rating != 4.5 {
		t.Errorf("rating = %v, want 4.5", a1.Rating)
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"4.8", 4.8},
		{"4,6", 4.6},
		{"2 stars", 2},
		{"", 0},
		{"N/A", 0},
		{"New", 0},
		{"9.9", 0},
	}
	for _, tt := range tests {
		if got := parseRating(tt.raw); got != tt.want {
			t.Errorf("parseRating(%q) = %v; want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCleanPhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Phone: 0151 496 0000", "0151 496 0000"},
		{"tel:+441514960000", "+441514960000"},
		{"(0151) 496-0000", "0151 4960000"},
		{"N/A", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanPhone(tt.raw); got != tt.want {
			t.Errorf("cleanPhone(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseCoords(t *testing.T) {
	tests := []struct {
		lat, lng string
		ok       bool
	}{
		{"53.4084", "-2.9916", true},
		{"91.0", "0.1", false},
		{"53.4", "181.0", false},
		{"0", "0", false},
		{"abc", "-2.99", false},
		{"", "", false},
	}
	for _, tt := range tests {
		_, _, ok := parseCoords(tt.lat, tt.lng)
		if ok != tt.ok {
			t.Errorf("parseCoords(%q,%q) ok = %v; want %v", tt.lat, tt.lng, ok, tt.ok)
		}
	}
}
