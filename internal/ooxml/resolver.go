package ooxml

import (
	"encoding/base64"
	"encoding/xml"
	"strings"
)

// ImageRef is a self-contained embedded image: payload plus media type.
type ImageRef struct {
	RelID       string
	ContentType string
	Data        []byte
}

// DataURI renders the image as a data URI for JSON transport.
func (ir ImageRef) DataURI() string {
	return "data:" + ir.ContentType + ";base64," + base64.StdEncoding.EncodeToString(ir.Data)
}

// ResolveImages maps every relationship of the given part whose target
// is an image to its payload. Built once per document; relationships
// are document-global, so per-cell rebuilding is both wasteful and a
// correctness hazard. Parts with a missing blob or unknown media type
// are skipped, never fatal.
func (p *Package) ResolveImages(partName string) map[string]ImageRef {
	out := map[string]ImageRef{}
	rels, err := p.Relationships(partName)
	if err != nil {
		return out
	}
	for _, rel := range rels {
		if rel.Mode == "External" {
			continue
		}
		target := ResolveTarget(partName, rel.Target)
		ct := p.ContentType(target)
		if !strings.HasPrefix(ct, "image/") {
			continue
		}
		data, err := p.Part(target)
		if err != nil || len(data) == 0 {
			continue
		}
		out[rel.ID] = ImageRef{RelID: rel.ID, ContentType: ct, Data: data}
	}
	return out
}

// ImagesIn scans a markup fragment (a paragraph or table cell's inner
// XML) for references into the relationship map. Real documents embed
// images through attributes other than the canonical r:embed, so every
// attribute value is checked. Matches are de-duplicated in discovery
// order.
func ImagesIn(fragment string, images map[string]ImageRef) []ImageRef {
	if len(images) == 0 || fragment == "" {
		return nil
	}
	var out []ImageRef
	seen := map[string]bool{}
	dec := xml.NewDecoder(strings.NewReader(fragment))
	// fragments carry prefixes with no namespace declarations; a plain
	// token walk tolerates that where full unmarshalling would not
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range se.Attr {
			ref, hit := images[attr.Value]
			if hit && !seen[attr.Value] {
				seen[attr.Value] = true
				out = append(out, ref)
			}
		}
	}
	return out
}
