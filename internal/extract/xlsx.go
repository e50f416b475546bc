package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/krce-idcs/qpgen/internal/ooxml"
	"github.com/krce-idcs/qpgen/internal/qp"
)

// Header row is fixed at spreadsheet row 3; the two rows above carry
// institution banners in the departmental workbook format.
const headerRow = 3

var requiredHeaders = []string{"Question Bank", "TYPE", "BTL Level", "Course Outcomes", "Marks", "Part"}

// coSheets are processed in this order when all are present; otherwise
// only the active sheet is read.
var coSheets = []string{"CO1-CO2", "CO3-CO4", "CO5"}

// MissingColumnError reports a header that could not be matched, along
// with everything that was found, so the uploader can fix the sheet.
type MissingColumnError struct {
	Column string
	Sheet  string
	Found  []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %q on sheet %q; found headers: %s",
		e.Column, e.Sheet, strings.Join(e.Found, ", "))
}

// Warning is the non-fatal zero-result payload: the request was well
// formed but nothing matched, and here is what the sheet looked like.
type Warning struct {
	Message string   `json:"warning"`
	Headers []string `json:"headers,omitempty"`
	MaxRow  int      `json:"max_row,omitempty"`
}

var wsRun = regexp.MustCompile(`\s+`)

func normHeader(s string) string {
	s = strings.ReplaceAll(strings.ReplaceAll(s, "\n", ""), "\r", "")
	return strings.ToLower(wsRun.ReplaceAllString(s, ""))
}

// Workbook extracts question records from an .xlsx payload. The error
// is a *MissingColumnError for structural problems; a nil error with a
// non-nil Warning means zero rows matched.
func Workbook(data []byte) ([]qp.Record, *Warning, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("not a readable workbook: %w", err)
	}
	defer f.Close()

	pkg, pkgErr := ooxml.OpenPackage(data)

	sheets := pickSheets(f)
	var all []qp.Record
	var lastHeaders []string
	lastMax := 0
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(rows) > lastMax {
			lastMax = len(rows)
		}
		recs, headers, err := extractSheet(pkg, pkgErr, sheet, rows)
		if err != nil {
			return nil, nil, err
		}
		lastHeaders = headers
		all = append(all, recs...)
	}
	if len(all) == 0 {
		return nil, &Warning{
			Message: fmt.Sprintf("no questions parsed (header row %d)", headerRow),
			Headers: lastHeaders,
			MaxRow:  lastMax,
		}, nil
	}
	return all, nil, nil
}

func pickSheets(f *excelize.File) []string {
	have := map[string]string{}
	for _, name := range f.GetSheetList() {
		have[strings.ToUpper(name)] = name
	}
	var ordered []string
	for _, want := range coSheets {
		if actual, ok := have[strings.ToUpper(want)]; ok {
			ordered = append(ordered, actual)
		}
	}
	if len(ordered) == len(coSheets) {
		return ordered
	}
	return []string{f.GetSheetName(f.GetActiveSheetIndex())}
}

func extractSheet(pkg *ooxml.Package, pkgErr error, sheet string, rows [][]string) ([]qp.Record, []string, error) {
	if len(rows) < headerRow {
		return nil, nil, nil
	}
	headers := rows[headerRow-1]
	cols, err := matchHeaders(sheet, headers)
	if err != nil {
		return nil, headers, err
	}

	qCol := cols["Question Bank"]
	questionRows := nonEmptyRows(rows, qCol)

	// image anchors come from the raw archive, not the cell model
	var rowImages map[int]ooxml.ImageRef
	if pkgErr == nil {
		rowImages = assignImagesToRows(sheetImages(pkg, sheet), questionRows, rows)
	}

	var out []qp.Record
	for r := headerRow + 1; r <= len(rows); r++ {
		text, srcRow := questionText(rows, r, qCol)
		if text == "" {
			continue
		}
		qtype := ""
		switch strings.ToUpper(strings.TrimSpace(cellAt(rows, r, cols["TYPE"]))) {
		case "O":
			qtype = "objective"
		case "D":
			qtype = "descriptive"
		case "C":
			qtype = "Part_C"
		default:
			continue // unknown type codes exclude the row, not the sheet
		}
		rec := qp.Record{
			Text:    text,
			Type:    qtype,
			BTL:     qp.ParseBTL(cellAt(rows, r, cols["BTL Level"])),
			Marks:   qp.ParseMarks(cellAt(rows, r, cols["Marks"]), 1),
			Chapter: strings.TrimSpace(cellAt(rows, r, cols["Part"])),
		}
		rec.CO, rec.COAll = qp.ParseCO(cellAt(rows, r, cols["Course Outcomes"]))
		if ref, ok := rowImages[srcRow]; ok {
			rec.Image = ref.DataURI()
			rec.Images = []string{rec.Image}
		}
		out = append(out, rec)
	}
	return out, headers, nil
}

// matchHeaders fuzzily binds required columns by normalized substring
// match in either direction; each spreadsheet column is used at most
// once.
func matchHeaders(sheet string, headers []string) (map[string]int, error) {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = normHeader(h)
	}
	used := map[int]bool{}
	cols := map[string]int{}
	for _, want := range requiredHeaders {
		nw := normHeader(want)
		found := false
		for i, h := range norm {
			if used[i] || h == "" {
				continue
			}
			if strings.Contains(h, nw) || strings.Contains(nw, h) {
				cols[want] = i + 1 // 1-based column
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return nil, &MissingColumnError{Column: want, Sheet: sheet, Found: headers}
		}
	}
	return cols, nil
}

func nonEmptyRows(rows [][]string, col int) []int {
	var out []int
	for r := headerRow + 1; r <= len(rows); r++ {
		if strings.TrimSpace(cellAt(rows, r, col)) != "" {
			out = append(out, r)
		}
	}
	return out
}

func cellAt(rows [][]string, row, col int) string {
	if row < 1 || row > len(rows) {
		return ""
	}
	line := rows[row-1]
	if col < 1 || col > len(line) {
		return ""
	}
	return line[col-1]
}

// questionText finds this row's question text, tolerating merged-cell
// misalignment. The returned source row is where the text actually
// lived, which is what image association keys on.
func questionText(rows [][]string, row, col int) (string, int) {
	text := strings.TrimSpace(cellAt(rows, row, col))
	src := row
	if text == "" {
		// merged cells push text up or down; check the 5 rows above
		// before looking below, nearest first either way
		for d := 1; d <= 5 && text == ""; d++ {
			if t := strings.TrimSpace(cellAt(rows, row-d, col)); t != "" {
				text, src = t, row-d
			}
		}
		for d := 1; d <= 5 && text == ""; d++ {
			if t := strings.TrimSpace(cellAt(rows, row+d, col)); t != "" {
				text, src = t, row+d
			}
		}
	}
	if text == "" {
		return "", row
	}
	if !suspectText(text) {
		return text, src
	}
	// purely numeric or very short strings are merge artifacts; prefer
	// the longest non-numeric cell elsewhere on this row
	best := ""
	for c := 1; c <= len(rows[row-1]); c++ {
		if c == col {
			continue
		}
		t := strings.TrimSpace(cellAt(rows, row, c))
		if !suspectText(t) && len(t) > len(best) {
			best = t
		}
	}
	if best != "" {
		return best, row
	}
	// last resort: ±3 rows, any column, first usable string
	for d := 1; d <= 3; d++ {
		for _, rr := range []int{row - d, row + d} {
			if rr < 1 || rr > len(rows) {
				continue
			}
			for c := 1; c <= len(rows[rr-1]); c++ {
				t := strings.TrimSpace(cellAt(rows, rr, c))
				if len(t) > 3 && !numericOnly(t) {
					return t, rr
				}
			}
		}
	}
	return text, src
}

func suspectText(s string) bool {
	return s == "" || len(s) <= 3 || numericOnly(s)
}

func numericOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != ' ' {
			return false
		}
	}
	return true
}
