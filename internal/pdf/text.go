package pdf

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dslipak/pdf"
	"golang.org/x/text/unicode/norm"
)

// Glyphs further apart than this fraction of the font size start a new run.
const (
	runGapFactor      = 0.3
	baselineTolerance = 0.5
)

// ExtractText returns the page's embedded text with glyph runs joined by a
// single space, in content stream order. It returns "" for pages without
// text and for pages whose content cannot be parsed.
func (d *Document) ExtractText(pageNumber int) string {
	if pageNumber < 1 || pageNumber > d.pageCount {
		return ""
	}

	var glyphs []pdf.Text
	d.withPage(pageNumber, func(p pdf.Page) {
		glyphs = pageGlyphs(p)
	})
	if len(glyphs) == 0 {
		return ""
	}

	text := strings.TrimSpace(joinRuns(groupRuns(glyphs)))
	return norm.NFKC.String(text)
}

func pageGlyphs(p pdf.Page) (glyphs []pdf.Text) {
	defer func() {
		if r := recover(); r != nil {
			glyphs = nil
		}
	}()
	return p.Content().Text
}

// groupRuns splits glyphs into runs of contiguous text on one baseline.
func groupRuns(glyphs []pdf.Text) []string {
	var (
		runs []string
		cur  strings.Builder
		prev pdf.Text
	)
	flush := func() {
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
	}

	for i, g := range glyphs {
		if g.S == "" {
			continue
		}
		if i > 0 && cur.Len() > 0 && !contiguous(prev, g) {
			flush()
		}
		cur.WriteString(g.S)
		prev = g
	}
	flush()
	return runs
}

// contiguous reports whether next continues the run ending with prev.
func contiguous(prev, next pdf.Text) bool {
	size := math.Max(math.Abs(prev.FontSize), 1)
	if math.Abs(next.Y-prev.Y) > baselineTolerance*size {
		return false
	}
	end := prev.X + prev.W
	gap := next.X - end
	if gap > runGapFactor*size {
		return false
	}
	// A jump back to the left on the same line is a new run.
	return gap >= -size
}

func joinRuns(runs []string) string {
	var b strings.Builder
	for i, r := range runs {
		if i > 0 && !endsWithSpace(b.String()) && !startsWithSpace(r) {
			b.WriteByte(' ')
		}
		b.WriteString(r)
	}
	return b.String()
}

func endsWithSpace(s string) bool {
	if s == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}
