// Package ooxml gives raw access to Office Open XML packages (the ZIP
// archives behind .docx and .xlsx) at the part/relationship level.
// High-level document models do not expose every embedded object, so
// extraction always has this layer to fall back on.
package ooxml

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// Package is a parsed OOXML archive with its parts indexed by name.
type Package struct {
	parts        map[string]*zip.File
	contentTypes contentTypes
}

type contentTypes struct {
	defaults  map[string]string // lowercase extension -> content type
	overrides map[string]string // "/part/name" -> content type
}

type contentTypesXML struct {
	XMLName  xml.Name `xml:"Types"`
	Defaults []struct {
		Extension   string `xml:"Extension,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Default"`
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// Relationship links a part to another part or external resource.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
	Mode   string `xml:"TargetMode,attr"`
}

type relationshipsXML struct {
	XMLName xml.Name       `xml:"Relationships"`
	Rels    []Relationship `xml:"Relationship"`
}

// OpenPackage parses the archive in data.
func OpenPackage(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening package: %w", err)
	}
	p := &Package{
		parts: make(map[string]*zip.File, len(zr.File)),
		contentTypes: contentTypes{
			defaults:  map[string]string{},
			overrides: map[string]string{},
		},
	}
	for _, f := range zr.File {
		p.parts[f.Name] = f
	}
	if b, err := p.Part("[Content_Types].xml"); err == nil {
		var ct contentTypesXML
		if err := xml.Unmarshal(b, &ct); err == nil {
			for _, d := range ct.Defaults {
				p.contentTypes.defaults[strings.ToLower(d.Extension)] = d.ContentType
			}
			for _, o := range ct.Overrides {
				p.contentTypes.overrides[o.PartName] = o.ContentType
			}
		}
	}
	return p, nil
}

// HasPart reports whether the named part exists in the archive.
func (p *Package) HasPart(name string) bool {
	_, ok := p.parts[name]
	return ok
}

// PartNames lists every part in the archive.
func (p *Package) PartNames() []string {
	out := make([]string, 0, len(p.parts))
	for name := range p.parts {
		out = append(out, name)
	}
	return out
}

// Part reads the full contents of the named part.
func (p *Package) Part(name string) ([]byte, error) {
	f, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("part not found: %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Relationships parses the .rels part attached to the named part
// ("word/document.xml" -> "word/_rels/document.xml.rels"). A missing
// rels part yields an empty slice, not an error.
func (p *Package) Relationships(partName string) ([]Relationship, error) {
	rels := relsPathFor(partName)
	b, err := p.Part(rels)
	if err != nil {
		return nil, nil
	}
	var doc relationshipsXML
	if err := xml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rels, err)
	}
	return doc.Rels, nil
}

// ContentType returns the content type of a part, from the override
// table or the extension defaults.
func (p *Package) ContentType(partName string) string {
	if ct, ok := p.contentTypes.overrides["/"+partName]; ok {
		return ct
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(partName)), ".")
	if ct, ok := p.contentTypes.defaults[ext]; ok {
		return ct
	}
	return mediaTypeByExt(ext)
}

// ResolveTarget resolves a relationship target relative to the part
// that declared it, collapsing "../" segments.
func ResolveTarget(fromPart, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	base := path.Dir(fromPart)
	return path.Clean(path.Join(base, target))
}

func relsPathFor(partName string) string {
	dir := path.Dir(partName)
	base := path.Base(partName)
	if dir == "." {
		return "_rels/" + base + ".rels"
	}
	return dir + "/_rels/" + base + ".rels"
}

func mediaTypeByExt(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "jpg", "jpeg", "jpe":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	case "emf":
		return "image/x-emf"
	case "wmf":
		return "image/x-wmf"
	case "xml":
		return "application/xml"
	default:
		return ""
	}
}
