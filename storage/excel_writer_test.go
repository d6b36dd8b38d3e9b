package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"gmaps-scraper/models"
	"gmaps-scraper/utils"
)

func sampleBundle() *models.ExportBundle {
	return &models.ExportBundle{
		Rows: []*models.CanonicalListing{
			{
				Key: "boots|1highst", Name: "Boots", Address: "1 High St",
				Phone: "0151 111 2222", Rating: 4.5, Reviews: 120,
				Category: "Pharmacy", Website: "https://boots.com",
				Latitude: 53.4, Longitude: -2.98, HasCoords: true,
				MapsURL: "https://maps.google.com/?cid=1", Postcodes: []string{"L1"},
			},
			{
				Key: "lloyds|3midln", Name: "Lloyds", Address: "3 Mid Ln",
				Postcodes: []string{"L2", "L1"}, FromBaseline: true, Seq: 1,
			},
		},
		Postcodes: []models.PostcodeSummary{
			{Postcode: "L1", Found: 2, New: 1, WithPhone: 1, AvgRating: 4.5},
			{Postcode: "L2", Found: 1, New: 0},
		},
		Summary: models.RunSummary{
			Query:         "pharmacy",
			StartedAt:     time.Now().Add(-time.Minute),
			FinishedAt:    time.Now(),
			TotalUnique:   2,
			TotalNew:      1,
			BaselineCount: 1,
		},
	}
}

func TestExcelWriterProducesThreeSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.xlsx")
	w := NewExcelWriter(utils.NewLogger(false))

	if err := w.Write(sampleBundle(), path); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	want := map[string]bool{storesSheet: false, summarySheet: false, infoSheet: false}
	for _, name := range f.GetSheetList() {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("sheet %q missing", name)
		}
	}

	// Header row sits under the title row.
	got, err := f.GetCellValue(storesSheet, "D2")
	if err != nil || got != "Store Name" {
		t.Errorf("D2 = %q (%v), want Store Name", got, err)
	}

	// Rows sort by first postcode: Boots (L1) before Lloyds (L2).
	if name, _ := f.GetCellValue(storesSheet, "D3"); name != "Boots" {
		t.Errorf("first data row = %q, want Boots", name)
	}
	if src, _ := f.GetCellValue(storesSheet, "B4"); src != "Existing" {
		t.Errorf("baseline row source = %q, want Existing", src)
	}
}

func TestExcelWriterRoundTripsAsBaseline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	w := NewExcelWriter(utils.NewLogger(false))

	if err := w.Write(sampleBundle(), path); err != nil {
		t.Fatalf("write: %v", err)
	}

	fh, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer fh.Close()

	listings, err := LoadBaseline(fh)
	if err != nil {
		t.Fatalf("a fresh export must load back as a baseline: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("round trip loaded %d rows, want 2", len(listings))
	}

	byName := map[string]models.RawListing{}
	for _, l := range listings {
		byName[l.Name] = l
	}
	boots, ok := byName["Boots"]
	if !ok {
		t.Fatal("Boots missing after round trip")
	}
	if boots.Address != "1 High St" || boots.Phone != "0151 111 2222" {
		t.Errorf("Boots = %+v", boots)
	}
	if boots.Postcode != "L1" {
		t.Errorf("Boots postcode = %q, want L1", boots.Postcode)
	}
}

func TestExcelWriterPartialRunMarked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	bundle := sampleBundle()
	bundle.Summary.Partial = true

	w := NewExcelWriter(utils.NewLogger(false))
	if err := w.Write(bundle, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	status, _ := f.GetCellValue(infoSheet, "B3")
	if status != "partial (cancelled)" {
		t.Errorf("run status = %q, want partial (cancelled)", status)
	}
}
