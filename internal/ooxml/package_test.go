package ooxml_test

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/krce-idcs/qpgen/internal/ooxml"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func buildZip(t *testing.T, parts map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func docPackage(t *testing.T) *ooxml.Package {
	t.Helper()
	data := buildZip(t, map[string][]byte{
		"[Content_Types].xml": []byte(`<?xml version="1.0"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="png" ContentType="image/png"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`),
		"word/document.xml": []byte(`<w:document/>`),
		"word/_rels/document.xml.rels": []byte(`<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com" TargetMode="External"/>
</Relationships>`),
		"word/media/image1.png": pngMagic,
	})
	pkg, err := ooxml.OpenPackage(data)
	if err != nil {
		t.Fatalf("OpenPackage: %v", err)
	}
	return pkg
}

func TestPackageParts(t *testing.T) {
	pkg := docPackage(t)
	if !pkg.HasPart("word/document.xml") {
		t.Error("document.xml missing")
	}
	if pkg.HasPart("word/nonexistent.xml") {
		t.Error("phantom part reported")
	}
	if ct := pkg.ContentType("word/document.xml"); !strings.Contains(ct, "wordprocessingml") {
		t.Errorf("override content type: %q", ct)
	}
	if ct := pkg.ContentType("word/media/image1.png"); ct != "image/png" {
		t.Errorf("default content type: %q", ct)
	}
}

func TestRelationships(t *testing.T) {
	pkg := docPackage(t)
	rels, err := pkg.Relationships("word/document.xml")
	if err != nil {
		t.Fatalf("Relationships: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("got %d relationships, want 2", len(rels))
	}
	if rels[0].ID != "rId1" || rels[0].Target != "media/image1.png" {
		t.Errorf("rel 0: %+v", rels[0])
	}

	// absent .rels part is not an error
	rels, err = pkg.Relationships("word/media/image1.png")
	if err != nil || len(rels) != 0 {
		t.Errorf("missing rels: %v %v", rels, err)
	}
}

func TestResolveTarget(t *testing.T) {
	cases := []struct{ from, target, want string }{
		{"word/document.xml", "media/image1.png", "word/media/image1.png"},
		{"xl/drawings/drawing1.xml", "../media/image1.png", "xl/media/image1.png"},
		{"word/document.xml", "/word/media/image1.png", "word/media/image1.png"},
	}
	for _, c := range cases {
		if got := ooxml.ResolveTarget(c.from, c.target); got != c.want {
			t.Errorf("ResolveTarget(%q, %q) = %q, want %q", c.from, c.target, got, c.want)
		}
	}
}

func TestResolveImages(t *testing.T) {
	pkg := docPackage(t)
	images := pkg.ResolveImages("word/document.xml")
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	ref, ok := images["rId1"]
	if !ok {
		t.Fatal("rId1 not resolved")
	}
	if ref.ContentType != "image/png" || !bytes.Equal(ref.Data, pngMagic) {
		t.Errorf("unexpected ref: %+v", ref)
	}
	if !strings.HasPrefix(ref.DataURI(), "data:image/png;base64,") {
		t.Errorf("data uri: %q", ref.DataURI())
	}
}

// Undeclared namespace prefixes must not stop the scan, and references
// via non-canonical attributes still count.
func TestImagesIn(t *testing.T) {
	images := map[string]ooxml.ImageRef{
		"rId1": {RelID: "rId1", ContentType: "image/png", Data: pngMagic},
	}
	fragment := `<w:r><w:drawing><a:blip r:embed="rId1"/></w:drawing></w:r>` +
		`<w:r><a:blip r:embed="rId1"/></w:r>`
	refs := ooxml.ImagesIn(fragment, images)
	if len(refs) != 1 {
		t.Fatalf("got %d refs, want 1 (deduplicated)", len(refs))
	}
	if refs[0].RelID != "rId1" {
		t.Errorf("ref: %+v", refs[0])
	}
	if got := ooxml.ImagesIn(`<w:p><w:t>no images</w:t></w:p>`, images); len(got) != 0 {
		t.Errorf("false positive: %+v", got)
	}
}
