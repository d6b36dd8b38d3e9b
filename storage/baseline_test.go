package storage

import (
	"bytes"
	"io"
	"testing"

	"github.com/xuri/excelize/v2"
)

// workbook builds an in-memory .xlsx with the given sheet and rows.
func workbook(t *testing.T, sheet string, rows [][]any) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheet)
	for i, row := range rows {
		for j, val := range row {
			cellName, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			f.SetCellValue(sheet, cellName, val)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestLoadBaselinePlainHeaders(t *testing.T) {
	r := workbook(t, "Sheet1", [][]any{
		{"Store Name", "Address", "Phone", "Postcode"},
		{"Boots", "1 High St", "0151 111 2222", "L1"},
		{"Superdrug", "2 Low Rd", "", "L2"},
	})

	listings, err := LoadBaseline(r)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("loaded %d rows, want 2", len(listings))
	}
	if listings[0].Name != "Boots" || listings[0].Address != "1 High St" {
		t.Errorf("row 0 = %+v", listings[0])
	}
	if listings[1].Postcode != "L2" {
		t.Errorf("row 1 postcode = %q, want L2", listings[1].Postcode)
	}
}

func TestLoadBaselineAliasedHeadersAndTitleRow(t *testing.T) {
	// Our own exports carry a merged title row above the headers and use
	// different header spellings than hand-made files.
	r := workbook(t, "All Stores", [][]any{
		{`"pharmacy" export`},
		{"#", "Source", "Postcode", "Store Name", "Address", "Phone Number", "Rating"},
		{1, "★ New", "L1", "Boots", "1 High St", "0151 111 2222", 4.5},
	})

	listings, err := LoadBaseline(r)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("loaded %d rows, want 1", len(listings))
	}
	got := listings[0]
	if got.Name != "Boots" || got.Phone != "0151 111 2222" || got.Rating != "4.5" {
		t.Errorf("row = %+v", got)
	}
}

func TestLoadBaselineSkipsBlankAndNamelessRows(t *testing.T) {
	r := workbook(t, "Sheet1", [][]any{
		{"Name", "Address"},
		{"Boots", "1 High St"},
		{"", ""},
		{"", "orphan address"},
		{"Lloyds", "3 Mid Ln"},
	})

	listings, err := LoadBaseline(r)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("loaded %d rows, want 2 (blank and nameless skipped)", len(listings))
	}
}

func TestLoadBaselineRejectsHeaderlessFile(t *testing.T) {
	r := workbook(t, "Sheet1", [][]any{
		{"just", "random", "cells"},
		{"no", "header", "anywhere"},
	})

	if _, err := LoadBaseline(r); err == nil {
		t.Error("headerless workbook accepted")
	}
}

func TestLoadBaselineRejectsGarbage(t *testing.T) {
	if _, err := LoadBaseline(bytes.NewReader([]byte("not an xlsx"))); err == nil {
		t.Error("non-xlsx input accepted")
	}
}

func TestPickSheet(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{[]string{"Sheet1"}, "Sheet1"},
		{[]string{"Info", "All Stores", "Summary"}, "All Stores"},
		{[]string{"Data", "store list"}, "store list"},
	}
	for _, tt := range tests {
		if got := pickSheet(tt.names); got != tt.want {
			t.Errorf("pickSheet(%v) = %q, want %q", tt.names, got, tt.want)
		}
	}
}
