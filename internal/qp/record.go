// Package qp defines the normalized question record shared by the
// extractors, the question bank and the paper composer.
package qp

import (
	"regexp"
	"strconv"
	"strings"
)

// Record is the single normalized question shape. Extractors emit it,
// the composer consumes it. Marks of 0 means "not supplied"; the
// consuming layer applies its own part-specific default.
type Record struct {
	Number  string   `json:"number,omitempty"`
	Text    string   `json:"text"`
	Part    string   `json:"part,omitempty"` // A|B|C or empty
	Type    string   `json:"type,omitempty"` // objective|descriptive|Part_C
	CO      string   `json:"co,omitempty"`   // canonical "CO<1-5>" or raw text
	COAll   string   `json:"co_all,omitempty"`
	BTL     int      `json:"btl,omitempty"` // 1..5 once resolved
	Marks   int      `json:"marks,omitempty"`
	Chapter string   `json:"chapter,omitempty"`
	Sub     string   `json:"sub,omitempty"`   // "a"|"b" for OR pairs
	Or      bool     `json:"or,omitempty"`    // second half of an OR pair
	Image   string   `json:"image,omitempty"` // data URI
	Images  []string `json:"images,omitempty"`
	OCR     bool     `json:"ocr,omitempty"`
}

var digitRun = regexp.MustCompile(`\d+`)

// ParseBTL resolves a raw Bloom's-taxonomy cell ("BTL4", "4/5", "BTL 5")
// to an integer level. The highest digit run in 1-5 wins; runs outside
// that range are ignored, and 2 stands in when nothing valid is found.
func ParseBTL(raw string) int {
	best := 0
	for _, m := range digitRun.FindAllString(raw, -1) {
		if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= 5 && n > best {
			best = n
		}
	}
	if best == 0 {
		return 2
	}
	return best
}

// ParseCO extracts course-outcome digits 1-5 from raw text in order of
// first occurrence, deduplicated. Returns the canonical "CO<n>" for the
// first digit plus the full ordered comma list ("CO1,CO3"). When no
// digit 1-5 is present the raw text is returned as-is with an empty list.
func ParseCO(raw string) (co string, all string) {
	raw = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(raw, "\n", " "), "\r", " "))
	if raw == "" {
		return "", ""
	}
	seen := map[byte]bool{}
	var ordered []string
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= '1' && c <= '5' && !seen[c] {
			// skip digits that are part of a longer number, e.g. "15"
			if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '9' {
				continue
			}
			if i > 0 && raw[i-1] >= '0' && raw[i-1] <= '9' {
				continue
			}
			seen[c] = true
			ordered = append(ordered, "CO"+string(c))
		}
	}
	if len(ordered) == 0 {
		return raw, ""
	}
	return ordered[0], strings.Join(ordered, ",")
}

// ParseMarks coerces a raw marks cell to an integer, def on failure.
func ParseMarks(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	// tolerate floats like "2.0" coming out of spreadsheet cells
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int(f)
	}
	if m := digitRun.FindString(raw); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return def
}
