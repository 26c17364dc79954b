package ects

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HOCRSource renders a document and returns the hOCR markup of each page.
type HOCRSource interface {
	RecognizeHOCR(ctx context.Context, path string) ([]string, error)
}

// HOCRExtractor reads transcripts from hOCR. It finds the credit column from
// the table header and reads each module row's value from that column.
type HOCRExtractor struct {
	source HOCRSource
}

func NewHOCRExtractor(source HOCRSource) *HOCRExtractor {
	return &HOCRExtractor{source: source}
}

type bbox struct {
	x0, y0, x1, y1 int
}

func (b bbox) centerX() float64 { return float64(b.x0+b.x1) / 2 }

type hocrWord struct {
	text string
	box  bbox
	ok   bool
}

type hocrLine struct {
	words []hocrWord
}

func (l hocrLine) text() string {
	parts := make([]string, len(l.words))
	for i, w := range l.words {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

var (
	creditHeaderRe = regexp.MustCompile(`^(ects|lp|cp|kp|credits?|leistungspunkte|credit points?)$`)
	numericWordRe  = regexp.MustCompile(`^\d{1,2}(?:[.,]\d+)?$`)
)

// parseHOCR returns the text lines of one hOCR page in document order.
func parseHOCR(markup string) ([]hocrLine, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hOCR: %w", err)
	}

	var lines []hocrLine
	doc.Find(".ocr_line, .ocr_header, .ocr_caption, .ocr_textfloat").Each(func(_ int, s *goquery.Selection) {
		var line hocrLine
		s.Find(".ocrx_word").Each(func(_ int, w *goquery.Selection) {
			text := strings.TrimSpace(w.Text())
			if text == "" {
				return
			}
			title, _ := w.Attr("title")
			box, ok := parseBBox(title)
			line.words = append(line.words, hocrWord{text: text, box: box, ok: ok})
		})
		if len(line.words) > 0 {
			lines = append(lines, line)
		}
	})
	return lines, nil
}

// parseBBox reads "bbox x0 y0 x1 y1" from an hOCR title attribute.
func parseBBox(title string) (bbox, bool) {
	for _, prop := range strings.Split(title, ";") {
		fields := strings.Fields(prop)
		if len(fields) != 5 || fields[0] != "bbox" {
			continue
		}
		var coords [4]int
		for i := range coords {
			v, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return bbox{}, false
			}
			coords[i] = v
		}
		return bbox{coords[0], coords[1], coords[2], coords[3]}, true
	}
	return bbox{}, false
}

type column struct {
	left, right, center float64
}

// creditColumn locates the credit column from the first header row, a line
// without digits holding a credit heading.
func creditColumn(lines []hocrLine) (column, bool) {
	for _, line := range lines {
		if hasDigit(line.text()) {
			continue
		}
		for _, w := range line.words {
			word := strings.Trim(strings.ToLower(w.text), ".:()[]")
			if !w.ok || !creditHeaderRe.MatchString(word) {
				continue
			}
			width := float64(w.box.x1 - w.box.x0)
			if width < 20 {
				width = 20
			}
			return column{
				left:   float64(w.box.x0) - width,
				right:  float64(w.box.x1) + width,
				center: w.box.centerX(),
			}, true
		}
	}
	return column{}, false
}

// valueInColumn returns the numeric word of line closest to the column.
func valueInColumn(line hocrLine, col column) (string, bool) {
	best, bestDist := "", math.Inf(1)
	for _, w := range line.words {
		if !w.ok || !numericWordRe.MatchString(w.text) {
			continue
		}
		x := w.box.centerX()
		if x < col.left || x > col.right {
			continue
		}
		if d := math.Abs(x - col.center); d < bestDist {
			best, bestDist = w.text, d
		}
	}
	return best, best != ""
}

// ExtractLayout implements LayoutExtractor.
func (h *HOCRExtractor) ExtractLayout(ctx context.Context, path string, modules ModuleMap, categories []string) (Result, error) {
	pages, err := h.source.RecognizeHOCR(ctx, path)
	if err != nil {
		return Result{}, err
	}

	res := newResult(categories, MethodHOCRLayout)
	for _, markup := range pages {
		if markup == "" {
			continue
		}
		lines, err := parseHOCR(markup)
		if err != nil {
			return Result{}, err
		}
		col, hasColumn := creditColumn(lines)
		for _, line := range lines {
			text := line.text()
			low := strings.ToLower(text)
			if !hasDigit(low) {
				continue
			}
			mod, ok := modules.Match(low)
			if !ok {
				res.Unrecognized = append(res.Unrecognized, text)
				continue
			}

			candidate, found := "", false
			if hasColumn {
				candidate, found = valueInColumn(line, col)
			}
			if !found {
				candidate, found = creditCandidate(low)
			}
			if !found {
				res.Unrecognized = append(res.Unrecognized, text)
				continue
			}
			credits, err := ParseCredit(candidate)
			if err != nil {
				res.Unrecognized = append(res.Unrecognized, text)
				continue
			}
			res.add(mod, credits, text)
		}
	}
	return res, nil
}
