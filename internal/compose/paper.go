package compose

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/krce-idcs/qpgen/internal/qp"
)

// Rand is the random source for the PART-A BTL assignment rule. The
// distribution is the contract; injecting the source keeps it testable.
type Rand interface {
	Intn(n int) int
}

// TextExtractor turns an image into text; satisfied by the tesseract
// wrapper. Optional.
type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// Metadata carries the free-text header fields of a paper.
type Metadata struct {
	Institution string
	Dept        string
	CourseCode  string
	CourseName  string
	QPCode      string
	ExamTitle   string
	Regulation  string
	Semester    string // number or word
	Banner      string // data URI or http(s) URL, optional
}

// Composer renders a fixed-layout question paper.
type Composer struct {
	Rand   Rand
	Banner BannerFetcher
	OCR    TextExtractor
}

func New() *Composer {
	return &Composer{
		Rand:   newLockedRand(),
		Banner: NewHTTPBanner(5 * time.Second),
	}
}

// lockedRand serializes draws from a math/rand source so one Composer
// can serve concurrent Compose calls.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

const (
	regBoxes        = 16
	regBoxHeight    = 360 // twips, exact
	imageDisplayIn  = 2.5
	defaultTitle    = "B.E., /B.Tech., DEGREE EXAMINATIONS, APRIL/MAY2024"
	defaultRegln    = "Regulation 2024"
	defaultInstName = "K. RAMAKRISHNAN COLLEGE OF ENGINEERING"
)

var semesterWords = map[int]string{
	1: "First", 2: "Second", 3: "Third", 4: "Fourth",
	5: "Fifth", 6: "Sixth", 7: "Seventh", 8: "Eighth",
}

var typeLabel = regexp.MustCompile(`(?i)^\s*[DO]\.[\s-]*`)

var widthsA = []int{twips(0.7), twips(4.2), twips(0.8), twips(0.8), twips(0.8)}
var widthsB = []int{twips(0.9), twips(4.5), twips(0.9), twips(0.9), twips(1.0)}

// Compose renders the paper for the given questions. Partial data never
// fails the document; anomalies surface as defaults, blanks or inline
// markers.
func (c *Composer) Compose(ctx context.Context, questions []qp.Record, m Metadata) ([]byte, error) {
	if m.ExamTitle == "" {
		m.ExamTitle = defaultTitle
	}
	if m.Regulation == "" {
		m.Regulation = defaultRegln
	}
	if m.Institution == "" {
		m.Institution = defaultInstName
	}
	rnd := c.Rand
	if rnd == nil {
		rnd = newLockedRand()
	}

	d := &docBuilder{}
	c.header(ctx, d, m)
	c.partA(ctx, d, questions, rnd)
	c.partB(d, questions)
	c.partC(d, questions)

	d.emptyLine()
	d.boldLine("******************", 12)
	d.raw(paraXML("", runXML("  "+m.QPCode, runOpts{bold: true, sizePts: 12})))
	return d.build()
}

func (c *Composer) header(ctx context.Context, d *docBuilder, m Metadata) {
	c.regNumberGrid(d)
	d.emptyLine()

	if m.Banner != "" {
		if data, ct, err := c.resolveBanner(ctx, m.Banner); err == nil {
			d.raw(paraXML("center", d.imageRunXML(ct, data, 6.0, 1000)))
		}
		// fetch failures simply omit the banner
	}

	d.boldLine(m.Institution, 14)
	d.boldLine("(AUTONOMOUS)", 12)

	// boxed paper-code line: a single-cell bordered table
	code := cellXML("Question Paper Code: "+m.QPCode, cellOpts{
		width: twips(3.5), align: "center", bold: true, sizePts: 12,
	})
	d.raw(tableXML(12, []int{twips(3.5)}, []string{rowXML(0, code)}))

	if t := strings.TrimSpace(m.ExamTitle); t != "" && !strings.HasPrefix(strings.ToLower(t), "question paper code:") {
		d.boldLine(t, 12)
	}
	d.line(semesterText(m.Semester), 11, true)
	if m.Dept != "" {
		d.line(m.Dept, 11, true)
	}
	d.boldLine(m.CourseCode+" – "+m.CourseName, 12)
	d.line("("+m.Regulation+")", 11, false)

	left := cellXML("Time: Three Hours", cellOpts{width: twips(3.5), align: "left", sizePts: 11})
	right := cellXML("Maximum Marks: 100 Marks", cellOpts{width: twips(3.5), align: "right", sizePts: 11})
	d.raw(tableXML(0, []int{twips(3.5), twips(3.5)}, []string{rowXML(0, left, right)}))
	d.emptyLine()
}

// regNumberGrid draws the registration-number strip: a merged label
// cell plus sixteen bordered boxes, two grid rows merged vertically to
// a fixed height.
func (c *Composer) regNumberGrid(d *docBuilder) {
	labelW := twips(0.7)
	boxW := twips(0.25)
	widths := make([]int, regBoxes+1)
	widths[0] = labelW
	for i := 1; i <= regBoxes; i++ {
		widths[i] = boxW
	}
	top := make([]string, 0, regBoxes+1)
	bottom := make([]string, 0, regBoxes+1)
	top = append(top, cellXML("Reg.\nNo.:", cellOpts{width: labelW, vMerge: "restart", align: "center", bold: true, sizePts: 10}))
	bottom = append(bottom, cellXML("", cellOpts{width: labelW, vMerge: "continue"}))
	for i := 0; i < regBoxes; i++ {
		top = append(top, cellXML("", cellOpts{width: boxW, vMerge: "restart"}))
		bottom = append(bottom, cellXML("", cellOpts{width: boxW, vMerge: "continue"}))
	}
	rows := []string{
		rowXML(regBoxHeight, top...),
		rowXML(regBoxHeight, bottom...),
	}
	d.raw(tableXML(12, widths, rows))
}

// partA emits exactly ten rows. Records tagged part A come first; when
// none are tagged, marks/type heuristics stand in; failing both, the
// first ten records overall are used.
func (c *Composer) partA(ctx context.Context, d *docBuilder, questions []qp.Record, rnd Rand) {
	d.boldLine("PART- A                                                                (10 x 2 = 20 Marks)", 12)

	selected := selectPartA(questions)

	sharedBTL := 3 + rnd.Intn(3) // one draw for rows 5-10
	rows := []string{rowXML(0,
		cellXML("Q.No.", cellOpts{width: widthsA[0], align: "center", bold: true}),
		cellXML("Answer ALL Questions", cellOpts{width: widthsA[1], align: "center", bold: true}),
		cellXML("CO", cellOpts{width: widthsA[2], align: "center", bold: true}),
		cellXML("BTL", cellOpts{width: widthsA[3], align: "center", bold: true}),
		cellXML("Marks", cellOpts{width: widthsA[4], align: "center", bold: true}),
	)}
	for i := 0; i < 10; i++ {
		var rec qp.Record
		if i < len(selected) {
			rec = selected[i]
		}
		text := typeLabel.ReplaceAllString(rec.Text, "")

		co := rec.CO
		if co == "" {
			co = fmt.Sprintf("CO%d", (i+2)/2)
		}
		btl := rec.BTL
		if btl == 0 {
			if i < 4 {
				btl = 1 + rnd.Intn(5)
			} else {
				btl = sharedBTL
			}
		}

		qCell := c.questionCell(ctx, d, text, rec, widthsA[1], 100+i)
		rows = append(rows, rowXML(0,
			cellXML(strconv.Itoa(i+1), cellOpts{width: widthsA[0], align: "center"}),
			qCell,
			cellXML(co, cellOpts{width: widthsA[2], align: "center"}),
			cellXML(fmt.Sprintf("BTL%d", btl), cellOpts{width: widthsA[3], align: "center"}),
			cellXML("2", cellOpts{width: widthsA[4], align: "center"}),
		))
	}
	d.raw(tableXML(4, widthsA, rows))
}

func selectPartA(questions []qp.Record) []qp.Record {
	var sel []qp.Record
	for _, q := range questions {
		if q.Part == "A" {
			sel = append(sel, q)
		}
	}
	if len(sel) == 0 {
		for _, q := range questions {
			t := strings.ToLower(q.Type)
			if q.Marks == 2 || t == "objective" || t == "o" || t == "short" || t == "mcq" {
				sel = append(sel, q)
			}
		}
	}
	if len(sel) == 0 {
		sel = questions
	}
	if len(sel) > 10 {
		sel = sel[:10]
	}
	return sel
}

// questionCell renders the question text plus any attached image: OCR
// text when requested and available, an inline picture otherwise, and a
// visible marker when either fails.
func (c *Composer) questionCell(ctx context.Context, d *docBuilder, text string, rec qp.Record, width, docPrID int) string {
	inner := new(strings.Builder)
	if text != "" {
		inner.WriteString(paraXML("", runXML(text, runOpts{})))
	}
	img := rec.Image
	if img == "" && len(rec.Images) > 0 {
		img = rec.Images[0]
	}
	if img != "" {
		data, ct, err := decodeDataURI(img)
		switch {
		case err != nil:
			inner.WriteString(paraXML("", runXML("[Image error]", runOpts{italic: true})))
		case rec.OCR && c.OCR != nil:
			txt, ocrErr := c.OCR.Extract(ctx, strings.NewReader(string(data)))
			if ocrErr != nil || strings.TrimSpace(txt) == "" {
				inner.WriteString(paraXML("", runXML("[Image error]", runOpts{italic: true})))
			} else {
				inner.WriteString(paraXML("", runXML(strings.TrimSpace(txt), runOpts{})))
			}
		default:
			inner.WriteString(paraXML("", d.imageRunXML(ct, data, imageDisplayIn, docPrID)))
		}
	}
	if inner.Len() == 0 {
		inner.WriteString(`<w:p/>`)
	}
	return cellXML("", cellOpts{width: width, rawInner: inner.String()})
}

// partB renders exactly five OR pairs numbered 11-15. Supplied part-B
// records pair up in input order; missing pairs render with blank
// cells.
func (c *Composer) partB(d *docBuilder, questions []qp.Record) {
	d.boldLine("PART – B                          (5 x 16 = 80 Marks)", 12)

	var bs []qp.Record
	for _, q := range questions {
		if q.Part == "B" {
			bs = append(bs, q)
		}
	}
	rows := []string{partHeaderRow(widthsB)}
	for pair := 0; pair < 5; pair++ {
		base := 11 + pair
		var a, b qp.Record
		if i := pair * 2; i < len(bs) {
			a = bs[i]
		}
		if i := pair*2 + 1; i < len(bs) {
			b = bs[i]
		}
		rows = append(rows, pairRows(base, a, b, widthsB)...)
	}
	d.raw(tableXML(4, widthsB, rows))
}

func partHeaderRow(widths []int) string {
	return rowXML(0,
		cellXML("Q.No.", cellOpts{width: widths[0], align: "center", bold: true}),
		cellXML("Question", cellOpts{width: widths[1], align: "center", bold: true}),
		cellXML("CO", cellOpts{width: widths[2], align: "center", bold: true}),
		cellXML("BTL", cellOpts{width: widths[3], align: "center", bold: true}),
		cellXML("Marks", cellOpts{width: widths[4], align: "center", bold: true}),
	)
}

// pairRows renders "N.a", a merged (OR) row, then "N.b".
func pairRows(base int, a, b qp.Record, widths []int) []string {
	total := 0
	for _, w := range widths {
		total += w
	}
	orRow := rowXML(0, cellXML("(OR)", cellOpts{
		width: total, gridSpan: len(widths), align: "center", bold: true,
	}))
	return []string{
		orPairRow(fmt.Sprintf("%d.a", base), a, widths, 16),
		orRow,
		orPairRow(fmt.Sprintf("%d.b", base), b, widths, 16),
	}
}

func orPairRow(num string, q qp.Record, widths []int, defMarks int) string {
	btl := ""
	if q.BTL > 0 {
		btl = fmt.Sprintf("BTL%d", q.BTL)
	}
	marks := ""
	if q.Marks > 0 {
		marks = strconv.Itoa(q.Marks)
	} else if q.Text != "" {
		marks = strconv.Itoa(defMarks)
	}
	return rowXML(0,
		cellXML(num, cellOpts{width: widths[0], align: "center"}),
		cellXML(q.Text, cellOpts{width: widths[1]}),
		cellXML(q.CO, cellOpts{width: widths[2], align: "center"}),
		cellXML(btl, cellOpts{width: widths[3], align: "center"}),
		cellXML(marks, cellOpts{width: widths[4], align: "center"}),
	)
}

// partC is rendered only when part-C records exist: one (a)/(OR)/(b)
// pair per base number, header marks computed from the first record.
func (c *Composer) partC(d *docBuilder, questions []qp.Record) {
	var cs []qp.Record
	for _, q := range questions {
		if q.Part == "C" || strings.HasPrefix(q.Number, "16") || q.Type == "Part_C" {
			cs = append(cs, q)
		}
	}
	if len(cs) == 0 {
		return
	}

	groups := map[int][]qp.Record{}
	var order []int
	for _, q := range cs {
		base := 16
		if n := leadingInt(q.Number); n > 0 {
			base = n
		}
		if _, ok := groups[base]; !ok {
			order = append(order, base)
		}
		groups[base] = append(groups[base], q)
	}

	projMarks := cs[0].Marks
	if projMarks <= 0 {
		projMarks = 10
	}
	pairs := len(order)
	d.boldLine(fmt.Sprintf("PART – C                          (%d x %d = %d Marks)", pairs, projMarks, pairs*projMarks), 12)

	rows := []string{partHeaderRow(widthsB)}
	for _, base := range order {
		group := groups[base]
		var a, b qp.Record
		a = group[0]
		if len(group) > 1 {
			b = group[1]
		}
		if a.Sub == "b" && b.Sub != "b" {
			a, b = b, a
		}
		rows = append(rows, pairRows(base, a, b, widthsB)...)
	}
	d.raw(tableXML(4, widthsB, rows))
}

func leadingInt(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	n, _ := strconv.Atoi(s[:i])
	return n
}

// semesterText maps numeric semesters to their ordinal words; words
// pass through unchanged.
func semesterText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Second Semester"
	}
	if n, err := strconv.Atoi(s); err == nil {
		if w, ok := semesterWords[n]; ok {
			return w + " Semester"
		}
	}
	return s
}

// resolveBanner accepts either a data URI or an http(s) URL.
func (c *Composer) resolveBanner(ctx context.Context, ref string) ([]byte, string, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if c.Banner == nil {
			return nil, "", fmt.Errorf("no banner fetcher configured")
		}
		return c.Banner.Fetch(ctx, ref)
	}
	return nil, "", fmt.Errorf("unrecognized banner reference")
}
