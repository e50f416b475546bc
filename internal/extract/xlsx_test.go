package extract_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	_ "image/png"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/krce-idcs/qpgen/internal/extract"
)

// 1x1 transparent PNG, valid enough for dimension probing.
var tinyPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==")

var bankHeaders = []string{"Question Bank", "TYPE", "BTL Level", "Course Outcomes", "Marks", "Part"}

func setHeaders(t *testing.T, f *excelize.File, sheet string, headers []string) {
	t.Helper()
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			t.Fatalf("set header: %v", err)
		}
	}
}

func setRow(t *testing.T, f *excelize.File, sheet string, row int, vals []string) {
	t.Helper()
	for i, v := range vals {
		if v == "" {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			t.Fatalf("set cell: %v", err)
		}
	}
}

func workbookBytes(t *testing.T, f *excelize.File) []byte {
	t.Helper()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("serialize workbook: %v", err)
	}
	return buf.Bytes()
}

func TestWorkbookBasic(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, bankHeaders)
	setRow(t, f, sheet, 4, []string{"Define normalization.", "O", "BTL1", "CO1", "2", "Unit I"})
	setRow(t, f, sheet, 5, []string{"Explain two phase locking.", "D", "4/5", "CO2, CO3", "16", "Unit II"})
	setRow(t, f, sheet, 6, []string{"Design a warehouse schema.", "C", "", "", "", "Unit V"})
	setRow(t, f, sheet, 7, []string{"Row with unknown type.", "X", "2", "CO1", "2", "Unit I"})

	records, warn, err := extract.Workbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	r := records[0]
	if r.Type != "objective" || r.BTL != 1 || r.CO != "CO1" || r.Marks != 2 || r.Chapter != "Unit I" {
		t.Errorf("record 0: %+v", r)
	}
	r = records[1]
	if r.Type != "descriptive" || r.BTL != 5 || r.CO != "CO2" || r.COAll != "CO2,CO3" || r.Marks != 16 {
		t.Errorf("record 1: %+v", r)
	}
	// blanks fall back to defaults: BTL 2, marks 1
	r = records[2]
	if r.Type != "Part_C" || r.BTL != 2 || r.Marks != 1 {
		t.Errorf("record 2: %+v", r)
	}
}

func TestWorkbookFuzzyHeaders(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, []string{
		"S.No", "Question Bank\n(Two / Sixteen Marks)", "TYPE (O/D/C)", "BTL", "CO", "Marks Allotted", "Part / Unit",
	})
	setRow(t, f, sheet, 4, []string{"1", "State the CAP theorem.", "O", "BTL2", "CO4", "2", "Unit IV"})

	records, warn, err := extract.Workbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Text != "State the CAP theorem." || records[0].CO != "CO4" {
		t.Errorf("record: %+v", records[0])
	}
}

func TestWorkbookMissingColumn(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, []string{"Question Bank", "TYPE", "BTL Level", "Course Outcomes", "Part"})
	setRow(t, f, sheet, 4, []string{"Orphan question.", "O", "1", "CO1", "Unit I"})

	_, _, err := extract.Workbook(workbookBytes(t, f))
	var missing *extract.MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("want MissingColumnError, got %v", err)
	}
	if missing.Column != "Marks" {
		t.Errorf("missing column %q, want Marks", missing.Column)
	}
	if len(missing.Found) == 0 {
		t.Error("found headers not reported")
	}
}

func TestWorkbookZeroRowsWarning(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, bankHeaders)

	records, warn, err := extract.Workbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
	if warn == nil {
		t.Fatal("want warning for empty sheet")
	}
	if len(warn.Headers) == 0 || warn.Headers[0] != "Question Bank" {
		t.Errorf("warning headers: %+v", warn.Headers)
	}
}

func TestWorkbookCOSheets(t *testing.T) {
	f := excelize.NewFile()
	for i, name := range []string{"CO1-CO2", "CO3-CO4", "CO5"} {
		if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		setHeaders(t, f, name, bankHeaders)
		setRow(t, f, name, 4, []string{fmt.Sprintf("Question from sheet %d.", i+1), "O", "2", "CO1", "2", "Unit I"})
	}

	records, warn, err := extract.Workbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, r := range records {
		want := fmt.Sprintf("Question from sheet %d.", i+1)
		if r.Text != want {
			t.Errorf("record %d text %q, want %q", i, r.Text, want)
		}
	}
}

// Text pushed up by a merged cell is recovered from a nearby row in the
// same column, without double-counting the source row.
func TestWorkbookMergedTextRecovery(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, bankHeaders)
	setRow(t, f, sheet, 4, []string{"Describe the merged question.", "", "", "", "", ""})
	setRow(t, f, sheet, 5, []string{"", "O", "3", "CO2", "2", "Unit II"})

	records, warn, err := extract.Workbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Text != "Describe the merged question." || records[0].BTL != 3 {
		t.Errorf("record: %+v", records[0])
	}
}

// Recovery prefers text above the blank cell even when a populated row
// sits closer below it.
func TestWorkbookMergedTextPrefersRowsAbove(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, bankHeaders)
	setRow(t, f, sheet, 4, []string{"Text from three rows above.", "", "", "", "", ""})
	setRow(t, f, sheet, 7, []string{"", "O", "2", "CO1", "2", "Unit I"})
	setRow(t, f, sheet, 8, []string{"Text from one row below.", "O", "3", "CO2", "2", "Unit I"})

	records, warn, err := extract.Workbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Text != "Text from three rows above." {
		t.Errorf("record 0 text: %q", records[0].Text)
	}
	if records[1].Text != "Text from one row below." || records[1].BTL != 3 {
		t.Errorf("record 1: %+v", records[1])
	}
}

func TestWorkbookAnchoredImage(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, bankHeaders)
	setRow(t, f, sheet, 12, []string{"Identify the waveform shown.", "O", "2", "CO1", "2", "Unit I"})
	if err := f.AddPictureFromBytes(sheet, "H10", &excelize.Picture{
		Extension: ".png",
		File:      tinyPNG,
	}); err != nil {
		t.Fatalf("add picture: %v", err)
	}

	records, warn, err := extract.Workbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Image == "" {
		t.Fatal("anchored image not attached to nearest question row")
	}
	if !bytes.Contains([]byte(records[0].Image), []byte("data:image/png;base64,")) {
		t.Errorf("image uri: %.60s", records[0].Image)
	}
}

func TestWorkbookDeterministic(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	setHeaders(t, f, sheet, bankHeaders)
	setRow(t, f, sheet, 4, []string{"Define throughput.", "O", "2", "CO1", "2", "Unit I"})
	setRow(t, f, sheet, 5, []string{"Explain sliding window.", "D", "4", "CO2", "16", "Unit II"})
	data := workbookBytes(t, f)

	first, _, err := extract.Workbook(data)
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	second, _, err := extract.Workbook(data)
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("runs disagree: %d vs %d", len(first), len(second))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ:\n%+v\n%+v", first, second)
	}
}

func TestWorkbookNotASpreadsheet(t *testing.T) {
	if _, _, err := extract.Workbook([]byte("not a zip")); err == nil {
		t.Error("want error for garbage input")
	}
}
