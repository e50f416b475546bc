// Package extract pulls question records out of uploaded spreadsheets
// and documents. Layouts are only semi-predictable, so everything here
// is heuristic: lookups fall back row by row, unreadable sheets yield
// nothing instead of failing, and each run reports diagnostics the
// caller can inspect or discard.
package extract

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/krce-idcs/qpgen/internal/ooxml"
	"github.com/krce-idcs/qpgen/internal/qp"
)

const documentPart = "word/document.xml"

type wmlDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    wmlBody  `xml:"body"`
}

type wmlBody struct {
	Paragraphs []wmlParagraph `xml:"p"`
	Tables     []wmlTable     `xml:"tbl"`
}

type wmlParagraph struct {
	Runs  []wmlRun `xml:"r"`
	Inner string   `xml:",innerxml"`
}

type wmlRun struct {
	Text []string `xml:"t"`
}

type wmlTable struct {
	GridCols []struct{} `xml:"tblGrid>gridCol"`
	Rows     []wmlRow   `xml:"tr"`
}

type wmlRow struct {
	Cells []wmlCell `xml:"tc"`
}

type wmlCell struct {
	Paragraphs []wmlParagraph `xml:"p"`
	Inner      string         `xml:",innerxml"`
}

func (p wmlParagraph) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t)
		}
	}
	return b.String()
}

func (c wmlCell) text() string {
	parts := make([]string, 0, len(c.Paragraphs))
	for _, p := range c.Paragraphs {
		parts = append(parts, p.text())
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (t wmlTable) columns() int {
	if n := len(t.GridCols); n > 0 {
		return n
	}
	max := 0
	for _, r := range t.Rows {
		if len(r.Cells) > max {
			max = len(r.Cells)
		}
	}
	return max
}

// TableShape describes one table for the diagnostics bundle.
type TableShape struct {
	Columns int        `json:"columns"`
	Rows    int        `json:"rows"`
	Part    string     `json:"classified_as,omitempty"`
	Preview [][]string `json:"preview,omitempty"`
}

// Diagnostics is returned alongside document-extraction results. It is
// operator-facing only and never drives control flow.
type Diagnostics struct {
	Tables           []TableShape        `json:"tables"`
	ParagraphPreview []string            `json:"paragraph_preview,omitempty"`
	Records          int                 `json:"records"`
	ImagesAttached   int                 `json:"images_attached"`
	ImageRelParts    map[string][]string `json:"image_rel_parts,omitempty"`
	ImageHintParts   []string            `json:"image_hint_parts,omitempty"`
	UsedFallback     bool                `json:"used_paragraph_fallback,omitempty"`
}

var questionLine = regexp.MustCompile(`^\s*(\d+[a-zA-Z0-9]*)[.)\-:]?\s+(.*)`)
var optionLine = regexp.MustCompile(`^\s*\(?([a-dA-D])[.)]\s*(.+)`)
var answerLine = regexp.MustCompile(`(?i)^\s*(Answer|Ans|Correct|Solution)\s*[:.\-]?\s*(.*)`)

// Document extracts question records from a .docx payload. Tables are
// tried first; when no table yields anything, individual paragraphs are
// parsed by their leading numeral labels.
func Document(data []byte) ([]qp.Record, Diagnostics, error) {
	diag := Diagnostics{}
	pkg, err := ooxml.OpenPackage(data)
	if err != nil {
		return nil, diag, fmt.Errorf("not a readable document: %w", err)
	}
	raw, err := pkg.Part(documentPart)
	if err != nil {
		return nil, diag, fmt.Errorf("document body missing: %w", err)
	}
	var doc wmlDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, diag, fmt.Errorf("parsing document body: %w", err)
	}

	images := pkg.ResolveImages(documentPart)

	var records []qp.Record
	for _, tbl := range doc.Body.Tables {
		shape := TableShape{Columns: tbl.columns(), Rows: len(tbl.Rows), Preview: tablePreview(tbl)}
		switch {
		case shape.Columns >= 5 && hasORRow(tbl):
			shape.Part = "B"
			records = append(records, parsePartB(tbl, images, countPart(records, "B"))...)
		case shape.Columns == 4 || shape.Columns == 5:
			shape.Part = "A"
			records = append(records, parsePartA(tbl, images, len(records))...)
		}
		diag.Tables = append(diag.Tables, shape)
	}

	if len(records) == 0 {
		records = parseParagraphs(doc.Body.Paragraphs, images)
		diag.UsedFallback = len(records) > 0
	}

	diag.ParagraphPreview = paragraphPreview(doc.Body.Paragraphs, 20)
	diag.Records = len(records)
	for _, r := range records {
		if r.Image != "" || len(r.Images) > 0 {
			diag.ImagesAttached++
		}
	}
	fillImageDiagnostics(&diag, pkg, images)
	return records, diag, nil
}

func countPart(records []qp.Record, part string) int {
	n := 0
	for _, r := range records {
		if r.Part == part {
			n++
		}
	}
	return n
}

func hasORRow(t wmlTable) bool {
	for _, row := range t.Rows {
		if len(row.Cells) > 0 && strings.Contains(strings.ToUpper(row.Cells[0].text()), "OR") {
			return true
		}
	}
	return false
}

// parsePartA reads a single-column objective list: header row first,
// then {number, text, co, btl, marks} rows. Rows with blank text are
// skipped.
func parsePartA(t wmlTable, images map[string]ooxml.ImageRef, numbered int) []qp.Record {
	var out []qp.Record
	for _, row := range t.Rows[min(1, len(t.Rows)):] {
		if len(row.Cells) < 4 {
			continue
		}
		text := row.Cells[1].text()
		if text == "" {
			continue
		}
		rec := qp.Record{
			Number: strconv.Itoa(numbered + len(out) + 1),
			Text:   text,
			Part:   "A",
			Marks:  2,
		}
		rec.CO, rec.COAll = qp.ParseCO(row.Cells[2].text())
		rec.BTL = qp.ParseBTL(row.Cells[3].text())
		if len(row.Cells) > 4 {
			rec.Marks = qp.ParseMarks(row.Cells[4].text(), 2)
		}
		attachCellImages(&rec, row.Cells[1], images)
		out = append(out, rec)
	}
	return out
}

// parsePartB walks OR-block pairs: a data row, an "OR" separator, and
// the alternative row two ahead. Rows matching neither pattern advance
// the scan by one; stray rows are never an error.
func parsePartB(t wmlTable, images map[string]ooxml.ImageRef, existingB int) []qp.Record {
	var out []qp.Record
	rows := t.Rows
	i := 0
	for i < len(rows) {
		if len(rows[i].Cells) == 0 {
			i++
			continue
		}
		if strings.Contains(strings.ToUpper(rows[i].Cells[0].text()), "OR") {
			i++
			continue
		}
		if i+2 < len(rows) && len(rows[i+1].Cells) > 0 &&
			strings.Contains(strings.ToUpper(rows[i+1].Cells[0].text()), "OR") {
			base := 10 + (existingB+len(out))/2 + 1
			a := pairRecord(rows[i], images, base, "a", false)
			b := pairRecord(rows[i+2], images, base, "b", true)
			if a.Text != "" {
				out = append(out, a)
			}
			if b.Text != "" {
				out = append(out, b)
			}
			i += 3
			continue
		}
		i++
	}
	return out
}

func pairRecord(row wmlRow, images map[string]ooxml.ImageRef, base int, sub string, or bool) qp.Record {
	cell := func(i int) string {
		if i < len(row.Cells) {
			return row.Cells[i].text()
		}
		return ""
	}
	rec := qp.Record{
		Number: fmt.Sprintf("%d%s", base, sub),
		Text:   cell(1),
		Part:   "B",
		Sub:    sub,
		Or:     or,
	}
	rec.CO, rec.COAll = qp.ParseCO(cell(2))
	btlRaw := cell(3)
	// a merged header cell sometimes shifts the BTL column right by one
	if !strings.ContainsAny(btlRaw, "0123456789") && strings.ContainsAny(cell(4), "0123456789") && len(row.Cells) > 5 {
		btlRaw = cell(4)
	}
	rec.BTL = qp.ParseBTL(btlRaw)
	rec.Marks = qp.ParseMarks(cell(len(row.Cells)-1), 16)
	if len(row.Cells) > 1 {
		attachCellImages(&rec, row.Cells[1], images)
	}
	return rec
}

func attachCellImages(rec *qp.Record, cell wmlCell, images map[string]ooxml.ImageRef) {
	for _, ref := range ooxml.ImagesIn(cell.Inner, images) {
		uri := ref.DataURI()
		if rec.Image == "" {
			rec.Image = uri
		}
		rec.Images = append(rec.Images, uri)
	}
}

// parseParagraphs is the fallback when no table matched: a leading
// numeral opens a question and subsequent lines are folded into it as
// answers, options or continuations.
func parseParagraphs(paragraphs []wmlParagraph, images map[string]ooxml.ImageRef) []qp.Record {
	var out []qp.Record
	var cur *qp.Record
	var lastOption *string

	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			out = append(out, *cur)
		}
		cur = nil
		lastOption = nil
	}

	for _, p := range paragraphs {
		line := strings.TrimSpace(p.text())
		if m := questionLine.FindStringSubmatch(line); m != nil {
			flush()
			cur = &qp.Record{Number: m[1], Text: strings.TrimSpace(m[2])}
			for _, ref := range ooxml.ImagesIn(p.Inner, images) {
				uri := ref.DataURI()
				if cur.Image == "" {
					cur.Image = uri
				}
				cur.Images = append(cur.Images, uri)
			}
			continue
		}
		if cur == nil {
			continue
		}
		for _, ref := range ooxml.ImagesIn(p.Inner, images) {
			uri := ref.DataURI()
			if cur.Image == "" {
				cur.Image = uri
			}
			cur.Images = append(cur.Images, uri)
		}
		if line == "" {
			continue
		}
		switch {
		case answerLine.MatchString(line):
			// answer lines are recognized but not part of the paper body
			lastOption = nil
		case optionLine.MatchString(line):
			m := optionLine.FindStringSubmatch(line)
			opt := "(" + strings.ToLower(m[1]) + ") " + m[2]
			cur.Text += "\n" + opt
			lastOption = &cur.Text
		default:
			if lastOption != nil {
				cur.Text += " " + line
			} else {
				cur.Text += "\n" + line
			}
		}
	}
	flush()
	return out
}

func tablePreview(t wmlTable) [][]string {
	const maxRows, maxLen = 3, 60
	var out [][]string
	for _, row := range t.Rows[:min(maxRows, len(t.Rows))] {
		var cells []string
		for _, c := range row.Cells {
			cells = append(cells, truncate(c.text(), maxLen))
		}
		out = append(out, cells)
	}
	return out
}

func paragraphPreview(paragraphs []wmlParagraph, n int) []string {
	var out []string
	for _, p := range paragraphs {
		if t := strings.TrimSpace(p.text()); t != "" {
			out = append(out, truncate(t, 80))
			if len(out) == n {
				break
			}
		}
	}
	return out
}

// fillImageDiagnostics maps which package parts reference each image
// relationship id, plus parts that carry image-hint markup. Best
// effort; read failures leave the maps partial.
func fillImageDiagnostics(diag *Diagnostics, pkg *ooxml.Package, images map[string]ooxml.ImageRef) {
	if len(images) == 0 {
		return
	}
	diag.ImageRelParts = map[string][]string{}
	for _, name := range pkg.PartNames() {
		if !strings.HasSuffix(name, ".xml") {
			continue
		}
		b, err := pkg.Part(name)
		if err != nil {
			continue
		}
		s := string(b)
		for relID := range images {
			if strings.Contains(s, `"`+relID+`"`) {
				diag.ImageRelParts[relID] = append(diag.ImageRelParts[relID], name)
			}
		}
		if strings.Contains(s, "a:blip") || strings.Contains(s, "v:imagedata") || strings.Contains(s, "w:drawing") {
			diag.ImageHintParts = append(diag.ImageHintParts, name)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
