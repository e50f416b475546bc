package qp

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Field aliases tolerated on ingest. Callers upload records produced by
// several frontend generations, so each canonical field maps from the
// first non-empty alias, consulted once here and nowhere else.
var aliases = map[string][]string{
	"text":    {"text", "question_text", "question", "q", "title", "body", "content"},
	"co":      {"co", "CO", "course_outcomes", "courseOutcome", "course_outcome", "co_code"},
	"co_all":  {"co_all", "course_outcomes_all"},
	"btl":     {"btl", "BTL", "bloom", "bloom_level", "bt", "bt_level"},
	"marks":   {"marks", "mark", "score", "points"},
	"part":    {"part", "section"},
	"number":  {"number", "no", "qno", "baseNumber", "base_number"},
	"sub":     {"sub", "variant"},
	"type":    {"type", "qtype"},
	"chapter": {"chapter", "unit"},
	"image":   {"image", "img", "image_data"},
	"ocr":     {"ocr", "use_ocr", "extract_text"},
}

// First returns the first non-empty alias value for a canonical field,
// stringified.
func First(m map[string]any, field string) string {
	for _, k := range aliases[field] {
		if v, ok := m[k]; ok {
			if s := stringify(v); strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Normalize flattens a questions payload into records. The payload may
// be a JSON string, a list of JSON strings, a nested list, or a list of
// objects; string elements are individually decoded, falling back to a
// text-only record when they are not JSON.
func Normalize(raw any) []Record {
	var maps []map[string]any
	var push func(item any)
	push = func(item any) {
		switch t := item.(type) {
		case string:
			var decoded any
			if err := json.Unmarshal([]byte(t), &decoded); err != nil {
				if strings.TrimSpace(t) != "" {
					maps = append(maps, map[string]any{"text": t})
				}
				return
			}
			switch decoded.(type) {
			case string:
				// a JSON-encoded bare string is still just text
				maps = append(maps, map[string]any{"text": decoded.(string)})
			default:
				push(decoded)
			}
		case []any:
			for _, sub := range t {
				push(sub)
			}
		case map[string]any:
			maps = append(maps, t)
		}
	}
	push(raw)

	out := make([]Record, 0, len(maps))
	for _, m := range maps {
		out = append(out, FromMap(m))
	}
	return out
}

// FromMap converts a loosely-keyed question object into a Record using
// the alias table. BTL and marks are coerced; zero means absent.
func FromMap(m map[string]any) Record {
	r := Record{
		Number:  strings.TrimSpace(First(m, "number")),
		Text:    strings.TrimSpace(First(m, "text")),
		Part:    strings.ToUpper(strings.TrimSpace(First(m, "part"))),
		Type:    strings.TrimSpace(First(m, "type")),
		Chapter: strings.TrimSpace(First(m, "chapter")),
		Sub:     strings.ToLower(strings.TrimSpace(First(m, "sub"))),
		Image:   strings.TrimSpace(First(m, "image")),
	}
	if raw := First(m, "co"); raw != "" {
		r.CO, r.COAll = ParseCO(raw)
	}
	if v := First(m, "co_all"); v != "" {
		r.COAll = v
	}
	if raw := strings.TrimSpace(First(m, "btl")); raw != "" {
		r.BTL = ParseBTL(raw)
	}
	if raw := First(m, "marks"); raw != "" {
		r.Marks = ParseMarks(raw, 0)
	}
	if v, ok := m["or"]; ok {
		if b, ok := v.(bool); ok {
			r.Or = b
		} else {
			r.Or = stringify(v) == "true"
		}
	}
	if raw := First(m, "ocr"); raw == "true" || raw == "1" {
		r.OCR = true
	}
	if imgs, ok := m["images"].([]any); ok {
		for _, im := range imgs {
			if s, ok := im.(string); ok && s != "" {
				r.Images = append(r.Images, s)
			}
		}
	}
	return r
}
