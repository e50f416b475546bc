package extract

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/krce-idcs/qpgen/internal/ooxml"
)

// ErrUnsupportedType rejects uploads whose extension has no extractor.
type ErrUnsupportedType struct{ Ext string }

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Ext)
}

// Lines extracts non-empty text lines from a simple line-oriented
// upload: .txt verbatim, .csv comma-joined, .docx paragraph texts.
func Lines(data []byte, ext string) ([]string, error) {
	switch strings.ToLower(ext) {
	case ".txt":
		return textLines(data), nil
	case ".csv":
		return csvLines(data)
	case ".docx":
		return docxLines(data)
	default:
		return nil, &ErrUnsupportedType{Ext: ext}
	}
}

func textLines(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func csvLines(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var out []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		out = append(out, strings.Join(rec, ", "))
	}
	return out, nil
}

func docxLines(data []byte) ([]string, error) {
	pkg, err := ooxml.OpenPackage(data)
	if err != nil {
		return nil, fmt.Errorf("not a readable document: %w", err)
	}
	raw, err := pkg.Part(documentPart)
	if err != nil {
		return nil, fmt.Errorf("document body missing: %w", err)
	}
	var doc wmlDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing document body: %w", err)
	}
	var out []string
	for _, p := range doc.Body.Paragraphs {
		if t := strings.TrimSpace(p.text()); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}
