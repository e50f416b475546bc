package extract

import (
	"encoding/xml"
	"strings"

	"github.com/krce-idcs/qpgen/internal/ooxml"
)

// The high-level spreadsheet model does not surface every anchored
// drawing, so image location re-opens the archive and follows the
// sheet -> drawing -> drawing-rels -> media chain by hand.

const workbookPart = "xl/workbook.xml"

type workbookXML struct {
	XMLName xml.Name `xml:"workbook"`
	Sheets  []struct {
		Name  string `xml:"name,attr"`
		RelID string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type worksheetXML struct {
	XMLName xml.Name `xml:"worksheet"`
	Drawing struct {
		RelID string `xml:"id,attr"`
	} `xml:"drawing"`
}

type drawingXML struct {
	XMLName  xml.Name    `xml:"wsDr"`
	TwoCell  []anchorXML `xml:"twoCellAnchor"`
	OneCell  []anchorXML `xml:"oneCellAnchor"`
	Absolute []anchorXML `xml:"absoluteAnchor"`
}

type anchorXML struct {
	From struct {
		Col int `xml:"col"`
		Row int `xml:"row"`
	} `xml:"from"`
	Pic struct {
		BlipFill struct {
			Blip struct {
				Embed string `xml:"embed,attr"`
			} `xml:"blip"`
		} `xml:"blipFill"`
	} `xml:"pic"`
}

// ImageAnchor is a resolved floating image with its 1-based anchor
// position. Lives only for the duration of one extraction request.
type ImageAnchor struct {
	Row, Col int
	Ref      ooxml.ImageRef
}

// sheetImages resolves every anchored image on the named sheet. Any
// archive or markup problem yields an empty result; image loss is never
// fatal to extraction.
func sheetImages(pkg *ooxml.Package, sheetName string) []ImageAnchor {
	sheetPart := sheetPartFor(pkg, sheetName)
	if sheetPart == "" {
		return nil
	}
	raw, err := pkg.Part(sheetPart)
	if err != nil {
		return nil
	}
	var ws worksheetXML
	if err := xml.Unmarshal(raw, &ws); err != nil || ws.Drawing.RelID == "" {
		return nil
	}
	drawingPart := targetFor(pkg, sheetPart, ws.Drawing.RelID)
	if drawingPart == "" {
		return nil
	}
	raw, err = pkg.Part(drawingPart)
	if err != nil {
		return nil
	}
	var dr drawingXML
	if err := xml.Unmarshal(raw, &dr); err != nil {
		return nil
	}
	media := pkg.ResolveImages(drawingPart)

	var out []ImageAnchor
	anchors := append(append(append([]anchorXML{}, dr.TwoCell...), dr.OneCell...), dr.Absolute...)
	for _, a := range anchors {
		embed := a.Pic.BlipFill.Blip.Embed
		if embed == "" {
			continue
		}
		ref, ok := media[embed]
		if !ok {
			continue
		}
		out = append(out, ImageAnchor{
			Row: a.From.Row + 1, // drawing anchors are zero-based
			Col: a.From.Col + 1,
			Ref: ref,
		})
	}
	return out
}

// assignImagesToRows maps each anchor to the question-bearing row
// nearest to it, lowest row number winning ties. questionRows are the
// 1-based rows with non-empty text in the question column. A row keeps
// only its first-resolved image. With no question rows at all, a ±50
// row window around the anchor is scanned for the first non-empty cell.
func assignImagesToRows(anchors []ImageAnchor, questionRows []int, grid [][]string) map[int]ooxml.ImageRef {
	out := map[int]ooxml.ImageRef{}
	for _, a := range anchors {
		target := nearestRow(questionRows, a.Row)
		if target == 0 {
			target = fallbackWindowRow(a.Row, grid)
		}
		if _, taken := out[target]; !taken {
			out[target] = a.Ref
		}
	}
	return out
}

func nearestRow(rows []int, anchor int) int {
	best, bestDist := 0, int(^uint(0)>>1)
	for _, r := range rows {
		d := r - anchor
		if d < 0 {
			d = -d
		}
		if d < bestDist || (d == bestDist && r < best) {
			best, bestDist = r, d
		}
	}
	return best
}

func fallbackWindowRow(anchor int, grid [][]string) int {
	lo := anchor - 50
	if lo < 1 {
		lo = 1
	}
	for r := lo; r <= anchor+50 && r <= len(grid); r++ {
		for _, cell := range grid[r-1] {
			if strings.TrimSpace(cell) != "" {
				return r
			}
		}
	}
	if anchor < 1 {
		return 1
	}
	return anchor
}

func sheetPartFor(pkg *ooxml.Package, sheetName string) string {
	raw, err := pkg.Part(workbookPart)
	if err != nil {
		return ""
	}
	var wb workbookXML
	if err := xml.Unmarshal(raw, &wb); err != nil {
		return ""
	}
	for _, sh := range wb.Sheets {
		if strings.EqualFold(sh.Name, sheetName) {
			return targetFor(pkg, workbookPart, sh.RelID)
		}
	}
	return ""
}

func targetFor(pkg *ooxml.Package, fromPart, relID string) string {
	rels, err := pkg.Relationships(fromPart)
	if err != nil {
		return ""
	}
	for _, rel := range rels {
		if rel.ID == relID {
			return ooxml.ResolveTarget(fromPart, rel.Target)
		}
	}
	return ""
}
