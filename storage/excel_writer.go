package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"gmaps-scraper/models"
	"gmaps-scraper/utils"
)

const (
	storesSheet  = "All Stores"
	summarySheet = "Postcode Summary"
	infoSheet    = "Scrape Info"
)

type exportColumn struct {
	Header   string
	Width    float64
	Centered bool
}

var exportColumns = []exportColumn{
	{"#", 5, true},
	{"Source", 10, true},
	{"Postcode", 12, true},
	{"Store Name", 30, false},
	{"Address", 42, false},
	{"Phone Number", 20, true},
	{"Rating", 8, true},
	{"Reviews", 10, true},
	{"Category", 22, false},
	{"Website", 35, false},
	{"Opening Hours", 40, false},
	{"Latitude", 12, true},
	{"Longitude", 12, true},
	{"Google Maps URL", 40, false},
}

// ExcelWriter renders a finished run as a formatted workbook: the combined
// listing sheet (baseline rows above new ones, colour-coded), the
// per-postcode summary and a metadata sheet.
type ExcelWriter struct {
	logger *utils.Logger
}

// NewExcelWriter creates an ExcelWriter.
func NewExcelWriter(logger *utils.Logger) *ExcelWriter {
	return &ExcelWriter{logger: logger}
}

type sheetStyles struct {
	title    int
	header   int
	data     int
	center   int
	newSrc   int
	oldSrc   int
	postcode int
	alt      int
	altC     int
}

// Write serializes the bundle to path, creating parent directories.
func (w *ExcelWriter) Write(bundle *models.ExportBundle, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("excel: create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	styles, err := buildStyles(f)
	if err != nil {
		return fmt.Errorf("excel: styles: %w", err)
	}

	f.SetSheetName("Sheet1", storesSheet)
	if err := w.writeStores(f, styles, bundle); err != nil {
		return err
	}
	if err := w.writeSummary(f, styles, bundle.Postcodes); err != nil {
		return err
	}
	if err := w.writeInfo(f, bundle.Summary); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("excel: save %q: %w", path, err)
	}

	w.logger.Info("[excel] wrote %d rows to %s", len(bundle.Rows), path)
	return nil
}

func (w *ExcelWriter) writeStores(f *excelize.File, st *sheetStyles, bundle *models.ExportBundle) error {
	rows := append([]*models.CanonicalListing(nil), bundle.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		pi, pj := firstPostcode(rows[i]), firstPostcode(rows[j])
		if pi != pj {
			return pi < pj
		}
		return rows[i].Name < rows[j].Name
	})

	numCols := len(exportColumns)
	lastCol, _ := excelize.ColumnNumberToName(numCols)

	// Title row
	title := fmt.Sprintf("%q — %s", bundle.Summary.Query,
		bundle.Summary.FinishedAt.Format("02 Jan 2006 15:04"))
	if bundle.Summary.BaselineCount > 0 {
		title += fmt.Sprintf("  |  %d existing + %d new",
			bundle.Summary.BaselineCount, bundle.Summary.TotalNew)
	}
	if err := f.MergeCell(storesSheet, "A1", lastCol+"1"); err != nil {
		return fmt.Errorf("excel: title row: %w", err)
	}
	f.SetCellValue(storesSheet, "A1", title)
	f.SetCellStyle(storesSheet, "A1", lastCol+"1", st.title)
	f.SetRowHeight(storesSheet, 1, 30)

	// Header row and column widths
	for i, col := range exportColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(storesSheet, name+"2", col.Header)
		f.SetColWidth(storesSheet, name, name, col.Width)
	}
	f.SetCellStyle(storesSheet, "A2", lastCol+"2", st.header)

	for i, listing := range rows {
		rowNum := i + 3
		source := "★ New"
		if listing.FromBaseline {
			source = "Existing"
		}

		values := []any{
			i + 1, source, orDash(firstPostcode(listing)),
			listing.Name, listing.Address, listing.Phone,
			numOrBlank(listing.Rating), listing.Reviews,
			listing.Category, listing.Website, listing.OpeningHours,
			coordOrBlank(listing.HasCoords, listing.Latitude),
			coordOrBlank(listing.HasCoords, listing.Longitude),
			listing.MapsURL,
		}

		for c, val := range values {
			cellName, _ := excelize.CoordinatesToCellName(c+1, rowNum)
			f.SetCellValue(storesSheet, cellName, val)

			style := st.data
			switch {
			case c == 1 && listing.FromBaseline:
				style = st.oldSrc
			case c == 1:
				style = st.newSrc
			case c == 2:
				style = st.postcode
			case i%2 == 1 && exportColumns[c].Centered:
				style = st.altC
			case i%2 == 1:
				style = st.alt
			case exportColumns[c].Centered:
				style = st.center
			}
			f.SetCellStyle(storesSheet, cellName, cellName, style)
		}

		if listing.Website != "" {
			cellName, _ := excelize.CoordinatesToCellName(10, rowNum)
			f.SetCellHyperLink(storesSheet, cellName, listing.Website, "External")
		}
		if listing.MapsURL != "" {
			cellName, _ := excelize.CoordinatesToCellName(14, rowNum)
			f.SetCellHyperLink(storesSheet, cellName, listing.MapsURL, "External")
		}
	}

	f.SetPanes(storesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      2,
		TopLeftCell: "A3",
		ActivePane:  "bottomLeft",
	})
	return f.AutoFilter(storesSheet,
		fmt.Sprintf("A2:%s%d", lastCol, len(rows)+2), nil)
}

func (w *ExcelWriter) writeSummary(f *excelize.File, st *sheetStyles, summaries []models.PostcodeSummary) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("excel: summary sheet: %w", err)
	}

	f.MergeCell(summarySheet, "A1", "D1")
	f.SetCellValue(summarySheet, "A1", "Results by Postcode (New stores only)")
	f.SetCellStyle(summarySheet, "A1", "D1", st.title)

	headers := []string{"Postcode", "New Stores", "With Phone", "Avg Rating"}
	for i, h := range headers {
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(summarySheet, name+"2", h)
		f.SetColWidth(summarySheet, name, name, 14)
	}
	f.SetCellStyle(summarySheet, "A2", "D2", st.header)

	for i, sum := range summaries {
		rowNum := i + 3
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", rowNum), sum.Postcode)
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", rowNum), sum.New)
		f.SetCellValue(summarySheet, fmt.Sprintf("C%d", rowNum), sum.WithPhone)
		if sum.AvgRating > 0 {
			f.SetCellValue(summarySheet, fmt.Sprintf("D%d", rowNum),
				float64(int(sum.AvgRating*10+0.5))/10)
		} else {
			f.SetCellValue(summarySheet, fmt.Sprintf("D%d", rowNum), "—")
		}
		f.SetCellStyle(summarySheet,
			fmt.Sprintf("A%d", rowNum), fmt.Sprintf("D%d", rowNum), st.center)
	}
	return nil
}

func (w *ExcelWriter) writeInfo(f *excelize.File, summary models.RunSummary) error {
	if _, err := f.NewSheet(infoSheet); err != nil {
		return fmt.Errorf("excel: info sheet: %w", err)
	}

	status := "complete"
	if summary.Partial {
		status = "partial (cancelled)"
	}

	info := [][2]any{
		{"Search Query", summary.Query},
		{"Date Scraped", summary.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Run Status", status},
		{"", ""},
		{"Existing Stores Loaded", summary.BaselineCount},
		{"New Stores Scraped", summary.TotalNew},
		{"Total Stores in File", summary.TotalUnique},
		{"Failed Postcodes", summary.FailedPostcodes},
		{"Skipped Listings", summary.SkippedListings},
		{"Duplicates Skipped", "Auto-deduplicated by name + address"},
	}
	for i, pair := range info {
		f.SetCellValue(infoSheet, fmt.Sprintf("A%d", i+1), pair[0])
		f.SetCellValue(infoSheet, fmt.Sprintf("B%d", i+1), pair[1])
	}
	f.SetColWidth(infoSheet, "A", "A", 25)
	f.SetColWidth(infoSheet, "B", "B", 55)
	return nil
}

func buildStyles(f *excelize.File) (*sheetStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "D9D9D9", Style: 1},
		{Type: "right", Color: "D9D9D9", Style: 1},
		{Type: "top", Color: "D9D9D9", Style: 1},
		{Type: "bottom", Color: "D9D9D9", Style: 1},
	}
	fill := func(color string) excelize.Fill {
		return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
	}

	st := &sheetStyles{}
	var err error

	if st.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      fill("1F4E79"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return nil, err
	}
	if st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Bold: true, Size: 10, Color: "FFFFFF"},
		Fill:      fill("2F5496"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	}); err != nil {
		return nil, err
	}
	if st.data, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Size: 10},
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    border,
	}); err != nil {
		return nil, err
	}
	if st.center, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Size: 10},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "top", WrapText: true},
		Border:    border,
	}); err != nil {
		return nil, err
	}
	if st.newSrc, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Bold: true, Size: 10, Color: "2E7D32"},
		Fill:      fill("E8F5E9"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "top"},
		Border:    border,
	}); err != nil {
		return nil, err
	}
	if st.oldSrc, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Size: 10, Color: "F57F17"},
		Fill:      fill("FFF8E1"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "top"},
		Border:    border,
	}); err != nil {
		return nil, err
	}
	if st.postcode, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Bold: true, Size: 10},
		Fill:      fill("D6E4F0"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "top"},
		Border:    border,
	}); err != nil {
		return nil, err
	}
	if st.alt, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Size: 10},
		Fill:      fill("F2F7FC"),
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    border,
	}); err != nil {
		return nil, err
	}
	if st.altC, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Arial", Size: 10},
		Fill:      fill("F2F7FC"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "top", WrapText: true},
		Border:    border,
	}); err != nil {
		return nil, err
	}

	return st, nil
}

func firstPostcode(l *models.CanonicalListing) string {
	if len(l.Postcodes) == 0 {
		return ""
	}
	return l.Postcodes[0]
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func numOrBlank(v float64) any {
	if v == 0 {
		return ""
	}
	return v
}

func coordOrBlank(has bool, v float64) any {
	if !has {
		return ""
	}
	return v
}
