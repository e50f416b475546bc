package compose_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/krce-idcs/qpgen/internal/compose"
	"github.com/krce-idcs/qpgen/internal/extract"
	"github.com/krce-idcs/qpgen/internal/qp"
)

// fixedRand always returns the same value, pinning the BTL draws.
type fixedRand struct{ n int }

func (f fixedRand) Intn(int) int { return f.n }

type failingBanner struct{}

func (failingBanner) Fetch(context.Context, string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("unreachable")
}

type fakeOCR struct{ text string }

func (f fakeOCR) Extract(context.Context, io.Reader) (string, error) {
	return f.text, nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngMagic)
}

func documentXML(t *testing.T, doc []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		t.Fatalf("not a zip: %v", err)
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("open body: %v", err)
			}
			defer rc.Close()
			b, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			return string(b)
		}
	}
	t.Fatal("word/document.xml missing")
	return ""
}

func sampleQuestions() []qp.Record {
	var qs []qp.Record
	for i := 1; i <= 10; i++ {
		qs = append(qs, qp.Record{
			Part: "A", Text: fmt.Sprintf("Define concept %d.", i),
			CO: fmt.Sprintf("CO%d", (i+1)/2), BTL: 2, Marks: 2,
		})
	}
	for pair := 0; pair < 5; pair++ {
		for _, sub := range []string{"a", "b"} {
			qs = append(qs, qp.Record{
				Part: "B", Sub: sub, Or: sub == "b",
				Text: fmt.Sprintf("Explain topic %d%s in detail.", 11+pair, sub),
				CO:   "CO3", BTL: 4, Marks: 16,
			})
		}
	}
	qs = append(qs,
		qp.Record{Part: "C", Number: "16a", Sub: "a", Text: "Design a full system.", CO: "CO5", BTL: 5, Marks: 10},
		qp.Record{Part: "C", Number: "16b", Sub: "b", Text: "Evaluate an alternative design.", CO: "CO5", BTL: 5, Marks: 10},
	)
	return qs
}

func TestComposeRoundTrip(t *testing.T) {
	c := &compose.Composer{Rand: fixedRand{}}
	doc, err := c.Compose(context.Background(), sampleQuestions(), compose.Metadata{
		CourseCode: "CS8601", CourseName: "Distributed Systems",
		QPCode: "A123", Semester: "6", Dept: "Computer Science and Engineering",
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	records, diag, err := extract.Document(doc)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(records) != 22 {
		t.Fatalf("got %d records, want 22 (diag: %+v)", len(records), diag)
	}

	var as, bs []qp.Record
	for _, r := range records {
		switch r.Part {
		case "A":
			as = append(as, r)
		case "B":
			bs = append(bs, r)
		}
	}
	if len(as) != 10 {
		t.Errorf("got %d part-A records, want 10", len(as))
	}
	if len(bs) != 12 {
		t.Errorf("got %d part-B records, want 12", len(bs))
	}
	for i, r := range as {
		if r.Number != fmt.Sprint(i+1) {
			t.Errorf("part-A row %d numbered %q", i, r.Number)
		}
		if r.Marks != 2 {
			t.Errorf("part-A row %d marks %d, want 2", i, r.Marks)
		}
	}
	// pairs step 11..15, then the part-C table re-reads as 16a/16b
	wantNums := []string{"11a", "11b", "12a", "12b", "13a", "13b", "14a", "14b", "15a", "15b", "16a", "16b"}
	for i, r := range bs {
		if r.Number != wantNums[i] {
			t.Errorf("pair record %d numbered %q, want %q", i, r.Number, wantNums[i])
		}
		if wantOr := strings.HasSuffix(wantNums[i], "b"); r.Or != wantOr {
			t.Errorf("record %q or=%v", r.Number, r.Or)
		}
	}

	body := documentXML(t, doc)
	for _, want := range []string{
		"K. RAMAKRISHNAN COLLEGE OF ENGINEERING",
		"(AUTONOMOUS)",
		"Question Paper Code: A123",
		"Sixth Semester",
		"CS8601 – Distributed Systems",
		"(Regulation 2024)",
		"Time: Three Hours",
		"Maximum Marks: 100 Marks",
		"PART- A",
		"(10 x 2 = 20 Marks)",
		"PART – B",
		"(5 x 16 = 80 Marks)",
		"PART – C",
		"(1 x 10 = 10 Marks)",
		"(OR)",
		"******************",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("document body missing %q", want)
		}
	}
}

func TestComposeBTLFallbacks(t *testing.T) {
	var qs []qp.Record
	for i := 1; i <= 10; i++ {
		qs = append(qs, qp.Record{Part: "A", Text: fmt.Sprintf("Question %d", i)})
	}
	c := &compose.Composer{Rand: fixedRand{}}
	doc, err := c.Compose(context.Background(), qs, compose.Metadata{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	records, _, err := extract.Document(doc)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	wantCO := []string{"CO1", "CO1", "CO2", "CO2", "CO3", "CO3", "CO4", "CO4", "CO5", "CO5"}
	seen := 0
	for _, r := range records {
		if r.Part != "A" {
			continue
		}
		// rows 1-4 draw independently, rows 5-10 share one draw
		want := 1
		if seen >= 4 {
			want = 3
		}
		if r.BTL != want {
			t.Errorf("row %d BTL %d, want %d", seen+1, r.BTL, want)
		}
		if r.CO != wantCO[seen] {
			t.Errorf("row %d CO %q, want %q", seen+1, r.CO, wantCO[seen])
		}
		seen++
	}
	if seen != 10 {
		t.Fatalf("got %d part-A rows, want 10", seen)
	}
}

func TestComposeStripsTypeLabels(t *testing.T) {
	qs := []qp.Record{{Part: "A", Text: "O. -  State the pumping lemma."}}
	c := &compose.Composer{Rand: fixedRand{}}
	doc, err := c.Compose(context.Background(), qs, compose.Metadata{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	body := documentXML(t, doc)
	if !strings.Contains(body, "State the pumping lemma.") {
		t.Error("question text missing")
	}
	if strings.Contains(body, "O. -") {
		t.Error("type label not stripped")
	}
}

func TestComposeBannerFailureTolerated(t *testing.T) {
	c := &compose.Composer{Rand: fixedRand{}, Banner: failingBanner{}}
	doc, err := c.Compose(context.Background(), nil, compose.Metadata{
		Banner: "https://example.invalid/banner.png",
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(documentXML(t, doc), "PART- A") {
		t.Error("paper body missing")
	}
}

func TestComposeImageErrorMarker(t *testing.T) {
	qs := []qp.Record{{Part: "A", Text: "Identify the circuit.", Image: "data:image/png;base64,%%notbase64%%"}}
	c := &compose.Composer{Rand: fixedRand{}}
	doc, err := c.Compose(context.Background(), qs, compose.Metadata{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(documentXML(t, doc), "[Image error]") {
		t.Error("image error marker missing")
	}
}

func TestComposeOCRSubstitution(t *testing.T) {
	qs := []qp.Record{{Part: "A", Text: "Transcribe:", Image: pngDataURI(), OCR: true}}
	c := &compose.Composer{Rand: fixedRand{}, OCR: fakeOCR{text: "x squared plus one"}}
	doc, err := c.Compose(context.Background(), qs, compose.Metadata{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(documentXML(t, doc), "x squared plus one") {
		t.Error("ocr text missing from body")
	}
}

func TestComposeEmbedsImageMedia(t *testing.T) {
	qs := []qp.Record{{Part: "A", Text: "Label the diagram.", Image: pngDataURI()}}
	c := &compose.Composer{Rand: fixedRand{}}
	doc, err := c.Compose(context.Background(), qs, compose.Metadata{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	found := false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/media/") {
			found = true
		}
	}
	if !found {
		t.Error("no media part written")
	}
	records, _, err := extract.Document(doc)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	attached := false
	for _, r := range records {
		if r.Image != "" {
			attached = true
		}
	}
	if !attached {
		t.Error("embedded image not recoverable on re-extraction")
	}
}

// One composer instance serves every request, so concurrent Compose
// calls share the default random source.
func TestComposeConcurrent(t *testing.T) {
	c := compose.New()
	c.Banner = failingBanner{}

	var qs []qp.Record
	for i := 1; i <= 10; i++ {
		qs = append(qs, qp.Record{Part: "A", Text: fmt.Sprintf("State rule %d.", i)})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := c.Compose(context.Background(), qs, compose.Metadata{QPCode: "C1"}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Compose: %v", err)
	}
}
