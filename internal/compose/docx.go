// Package compose lays out the final DOCX question paper from a
// normalized question list. Layout values here are a contract, not
// cosmetics: every generated paper must render identically.
package compose

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
)

const (
	twipsPerInch = 1440
	emuPerInch   = 914400
)

func twips(in float64) int { return int(in * twipsPerInch) }
func emu(in float64) int   { return int(in * emuPerInch) }

// docBuilder accumulates body XML and media parts, then assembles the
// OOXML package.
type docBuilder struct {
	body  strings.Builder
	media []mediaPart
}

type mediaPart struct {
	relID       string
	name        string
	contentType string
	data        []byte
}

func esc(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// addImage registers an image payload as a media part and returns the
// relationship id a drawing can embed.
func (d *docBuilder) addImage(contentType string, data []byte) string {
	ext := "png"
	switch contentType {
	case "image/jpeg":
		ext = "jpeg"
	case "image/gif":
		ext = "gif"
	case "image/bmp":
		ext = "bmp"
	}
	n := len(d.media) + 1
	mp := mediaPart{
		relID:       fmt.Sprintf("rIdImg%d", n),
		name:        fmt.Sprintf("media/image%d.%s", n, ext),
		contentType: contentType,
		data:        data,
	}
	d.media = append(d.media, mp)
	return mp.relID
}

func (d *docBuilder) raw(s string) { d.body.WriteString(s) }

// run options are encoded positionally to keep call sites short.
type runOpts struct {
	bold      bool
	italic    bool
	underline bool
	sizePts   int // 0 = inherit
}

func runXML(text string, o runOpts) string {
	var pr strings.Builder
	if o.bold {
		pr.WriteString(`<w:b/>`)
	}
	if o.italic {
		pr.WriteString(`<w:i/>`)
	}
	if o.underline {
		pr.WriteString(`<w:u w:val="single"/>`)
	}
	if o.sizePts > 0 {
		fmt.Fprintf(&pr, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, o.sizePts*2, o.sizePts*2)
	}
	var b strings.Builder
	b.WriteString(`<w:r>`)
	if pr.Len() > 0 {
		b.WriteString(`<w:rPr>` + pr.String() + `</w:rPr>`)
	}
	// preserve leading/trailing spaces in labels like "  QP123"
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString(`<w:br/>`)
		}
		b.WriteString(`<w:t xml:space="preserve">` + esc(line) + `</w:t>`)
	}
	b.WriteString(`</w:r>`)
	return b.String()
}

func paraXML(align string, runs ...string) string {
	var b strings.Builder
	b.WriteString(`<w:p>`)
	if align != "" {
		b.WriteString(`<w:pPr><w:jc w:val="` + align + `"/></w:pPr>`)
	}
	for _, r := range runs {
		b.WriteString(r)
	}
	b.WriteString(`</w:p>`)
	return b.String()
}

func (d *docBuilder) boldLine(text string, sizePts int) {
	d.raw(paraXML("center", runXML(text, runOpts{bold: true, sizePts: sizePts})))
}

func (d *docBuilder) line(text string, sizePts int, italic bool) {
	d.raw(paraXML("center", runXML(text, runOpts{italic: italic, sizePts: sizePts})))
}

func (d *docBuilder) emptyLine() { d.raw(`<w:p/>`) }

// tableXML wraps rows with table properties: centered, fixed layout,
// single borders of the given size (eighths of a point), and the given
// column grid in twips.
func tableXML(borderSz int, colWidths []int, rows []string) string {
	var b strings.Builder
	b.WriteString(`<w:tbl><w:tblPr><w:jc w:val="center"/><w:tblLayout w:type="fixed"/>`)
	if borderSz > 0 {
		b.WriteString(`<w:tblBorders>`)
		for _, side := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
			fmt.Fprintf(&b, `<w:%s w:val="single" w:sz="%d" w:space="0" w:color="000000"/>`, side, borderSz)
		}
		b.WriteString(`</w:tblBorders>`)
	}
	b.WriteString(`</w:tblPr><w:tblGrid>`)
	for _, w := range colWidths {
		fmt.Fprintf(&b, `<w:gridCol w:w="%d"/>`, w)
	}
	b.WriteString(`</w:tblGrid>`)
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString(`</w:tbl>`)
	return b.String()
}

type cellOpts struct {
	width    int    // twips
	gridSpan int    // 0/1 = none
	vMerge   string // "", "restart", "continue"
	align    string
	bold     bool
	sizePts  int
	rawInner string // overrides text when set
}

func cellXML(text string, o cellOpts) string {
	var b strings.Builder
	b.WriteString(`<w:tc><w:tcPr>`)
	if o.width > 0 {
		fmt.Fprintf(&b, `<w:tcW w:w="%d" w:type="dxa"/>`, o.width)
	}
	if o.gridSpan > 1 {
		fmt.Fprintf(&b, `<w:gridSpan w:val="%d"/>`, o.gridSpan)
	}
	switch o.vMerge {
	case "restart":
		b.WriteString(`<w:vMerge w:val="restart"/>`)
	case "continue":
		b.WriteString(`<w:vMerge/>`)
	}
	b.WriteString(`<w:vAlign w:val="center"/></w:tcPr>`)
	if o.rawInner != "" {
		b.WriteString(o.rawInner)
	} else if text == "" {
		b.WriteString(`<w:p/>`)
	} else {
		b.WriteString(paraXML(o.align, runXML(text, runOpts{bold: o.bold, sizePts: o.sizePts})))
	}
	b.WriteString(`</w:tc>`)
	return b.String()
}

func rowXML(exactHeightTwips int, cells ...string) string {
	var b strings.Builder
	b.WriteString(`<w:tr>`)
	if exactHeightTwips > 0 {
		fmt.Fprintf(&b, `<w:trPr><w:trHeight w:val="%d" w:hRule="exact"/></w:trPr>`, exactHeightTwips)
	}
	for _, c := range cells {
		b.WriteString(c)
	}
	b.WriteString(`</w:tr>`)
	return b.String()
}

// imageRunXML produces an inline drawing at a fixed display width,
// height scaled to the image's aspect ratio (4:3 when undecodable).
func (d *docBuilder) imageRunXML(contentType string, data []byte, widthIn float64, docPrID int) string {
	relID := d.addImage(contentType, data)
	cx := emu(widthIn)
	cy := emu(widthIn * 3 / 4)
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil && cfg.Width > 0 {
		cy = int(float64(cx) * float64(cfg.Height) / float64(cfg.Width))
	}
	return fmt.Sprintf(`<w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="Picture %d"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="Picture %d"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		cx, cy, docPrID, docPrID, docPrID, docPrID, relID, cx, cy)
}

const documentTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"><w:body>%s<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134"/></w:sectPr></w:body></w:document>`

const contentTypesTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/>%s<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

// build assembles the final package.
func (d *docBuilder) build() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	write := func(name, content string) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write([]byte(content))
		return err
	}

	var defaults strings.Builder
	seenExt := map[string]bool{}
	for _, m := range d.media {
		ext := m.name[strings.LastIndex(m.name, ".")+1:]
		if !seenExt[ext] {
			seenExt[ext] = true
			fmt.Fprintf(&defaults, `<Default Extension="%s" ContentType="%s"/>`, ext, m.contentType)
		}
	}
	if err := write("[Content_Types].xml", fmt.Sprintf(contentTypesTemplate, defaults.String())); err != nil {
		return nil, err
	}
	if err := write("_rels/.rels", rootRels); err != nil {
		return nil, err
	}

	var rels strings.Builder
	rels.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for _, m := range d.media {
		fmt.Fprintf(&rels, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="%s"/>`, m.relID, m.name)
	}
	rels.WriteString(`</Relationships>`)
	if err := write("word/_rels/document.xml.rels", rels.String()); err != nil {
		return nil, err
	}

	if err := write("word/document.xml", fmt.Sprintf(documentTemplate, d.body.String())); err != nil {
		return nil, err
	}
	for _, m := range d.media {
		w, err := zw.Create("word/" + m.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(m.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
