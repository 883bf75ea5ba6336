package layout

import (
	"image/color"
	"strings"
	"testing"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

var pageSize = geo.Size{Width: 600, Height: 800}

func newFlow(t *testing.T, opts ...Option) *Flow {
	t.Helper()
	f, err := NewFlow(pageSize, opts...)
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}
	return f
}

func TestEmptyFlowYieldsBlankPage(t *testing.T) {
	f := newFlow(t)
	pages := f.Pages()
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	if got := pages[0].Text(); got != "" {
		t.Fatalf("blank page text = %q", got)
	}
}

func TestParagraphWraps(t *testing.T) {
	f := newFlow(t)
	long := strings.Repeat("lorem ipsum dolor sit amet ", 20)
	f.Paragraph([]Span{{Text: long}})
	pages := f.Pages()
	if len(pages) != 1 {
		t.Fatalf("got %d pages", len(pages))
	}
	baselines := map[float64]bool{}
	for _, r := range pages[0].Runs() {
		baselines[r.Baseline] = true
		if r.X+r.Width > pageSize.Width-49 {
			t.Fatalf("run %q overflows right margin (x=%f w=%f)", r.Text, r.X, r.Width)
		}
	}
	if len(baselines) < 2 {
		t.Fatalf("long paragraph produced %d lines, want several", len(baselines))
	}
}

func TestPagination(t *testing.T) {
	f := newFlow(t)
	for i := 0; i < 120; i++ {
		f.Paragraph([]Span{{Text: "a paragraph that takes one line"}})
	}
	pages := f.Pages()
	if len(pages) < 2 {
		t.Fatalf("got %d pages, want at least 2", len(pages))
	}
	for i, p := range pages {
		for _, r := range p.Runs() {
			if r.Baseline > pageSize.Height-49 {
				t.Fatalf("page %d run below bottom margin: baseline %f", i, r.Baseline)
			}
		}
	}
}

func TestPageBreak(t *testing.T) {
	f := newFlow(t)
	f.Paragraph([]Span{{Text: "first"}})
	f.PageBreak()
	f.Paragraph([]Span{{Text: "second"}})
	pages := f.Pages()
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if !strings.Contains(pages[0].Text(), "first") || !strings.Contains(pages[1].Text(), "second") {
		t.Fatalf("content landed on wrong pages: %q / %q", pages[0].Text(), pages[1].Text())
	}
}

func TestStyledSpansShareBaseline(t *testing.T) {
	f := newFlow(t)
	f.Paragraph([]Span{
		{Text: "with "},
		{Text: "emphasis", Style: Style{Italic: true}},
		{Text: ", and "},
		{Text: "strong", Style: Style{Bold: true}},
	})
	p := f.Pages()[0]
	baselines := map[float64]bool{}
	for _, r := range p.Runs() {
		baselines[r.Baseline] = true
	}
	if len(baselines) != 1 {
		t.Fatalf("short styled paragraph spread over %d baselines, want 1", len(baselines))
	}
	if got := p.Text(); strings.Contains(got, "\n") {
		t.Fatalf("paragraph text split into lines: %q", got)
	}
}

func TestExplicitNewlineBreaksLine(t *testing.T) {
	f := newFlow(t)
	f.Paragraph([]Span{{Text: "one\ntwo"}})
	p := f.Pages()[0]
	baselines := map[float64]bool{}
	for _, r := range p.Runs() {
		baselines[r.Baseline] = true
	}
	if len(baselines) != 2 {
		t.Fatalf("newline produced %d baselines, want 2", len(baselines))
	}
}

func TestLinksRegistered(t *testing.T) {
	f := newFlow(t)
	f.Paragraph([]Span{
		{Text: "visit "},
		{Text: "the site", Style: Style{Link: "https://example.com"}},
	})
	p := f.Pages()[0]
	links := p.Links()
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].HRef != "https://example.com" {
		t.Fatalf("href = %q", links[0].HRef)
	}
	if got := p.LinkAt(links[0].Rect.Center()); got != "https://example.com" {
		t.Fatalf("LinkAt center = %q", got)
	}
	if got := p.LinkAt(geo.Point{X: 1, Y: 1}); got != "" {
		t.Fatalf("LinkAt corner = %q, want empty", got)
	}
}

func TestWrappedLinkGetsRegionPerLine(t *testing.T) {
	f := newFlow(t)
	long := strings.Repeat("a very long link label ", 15)
	f.Paragraph([]Span{{Text: long, Style: Style{Link: "https://example.com/long"}}})
	p := f.Pages()[0]
	links := p.Links()
	if len(links) < 2 {
		t.Fatalf("wrapped link got %d regions, want one per line", len(links))
	}
	ys := map[float64]int{}
	for _, reg := range links {
		if reg.HRef != "https://example.com/long" {
			t.Fatalf("href = %q", reg.HRef)
		}
		ys[reg.Rect.Y]++
	}
	for y, n := range ys {
		if n != 1 {
			t.Fatalf("%d regions on baseline %f, want 1", n, y)
		}
	}
}

func TestSearch(t *testing.T) {
	f := newFlow(t)
	f.Paragraph([]Span{{Text: "The quick brown fox jumps over the lazy dog"}})
	p := f.Pages()[0]

	hits := p.Search("Fox", doc.SearchOptions{})
	if len(hits) != 1 {
		t.Fatalf("case-insensitive search got %d hits", len(hits))
	}
	if hits[0].Rect.Width <= 0 {
		t.Fatalf("hit rect %+v", hits[0].Rect)
	}

	if hits := p.Search("Fox", doc.SearchOptions{CaseSensitive: true}); len(hits) != 0 {
		t.Fatalf("case-sensitive search got %d hits", len(hits))
	}
	if hits := p.Search("he", doc.SearchOptions{WholeWord: true}); len(hits) != 0 {
		t.Fatalf("whole-word search matched a substring %d times", len(hits))
	}
	if hits := p.Search("the", doc.SearchOptions{WholeWord: true}); len(hits) == 0 {
		t.Fatal("whole-word search missed a full word")
	}
}

func TestRender(t *testing.T) {
	f := newFlow(t)
	f.Heading(1, []Span{{Text: "Title"}})
	f.Paragraph([]Span{{Text: "body text"}})
	f.Rule()
	p := f.Pages()[0]

	img, err := p.Render(300, 400)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 300 || b.Dy() != 400 {
		t.Fatalf("rendered %dx%d", b.Dx(), b.Dy())
	}
	// The page must contain both white background and darker glyph pixels.
	white, dark := false, false
	for y := 0; y < b.Dy(); y += 2 {
		for x := 0; x < b.Dx(); x += 2 {
			r, g, bb, _ := img.At(x, y).RGBA()
			lum := (r + g + bb) / 3
			if lum > 0xf000 {
				white = true
			} else if lum < 0x8000 {
				dark = true
			}
		}
	}
	if !white || !dark {
		t.Fatalf("render lacks contrast: white=%v dark=%v", white, dark)
	}

	if _, err := p.Render(0, 100); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("zero width error = %v", err)
	}
}

func TestTextBoxes(t *testing.T) {
	f := newFlow(t)
	f.Paragraph([]Span{{Text: "alpha beta"}})
	p := f.Pages()[0]
	boxes := p.Boxes()
	if len(boxes) == 0 {
		t.Fatal("no text boxes")
	}
	for _, b := range boxes {
		if b.Rect.IsEmpty() {
			t.Fatalf("empty box for %q", b.Text)
		}
	}
}

func TestCodeBlockMonospace(t *testing.T) {
	f := newFlow(t)
	f.CodeBlock("x := 1\ny := 2\n")
	p := f.Pages()[0]
	runs := p.Runs()
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if !r.Style.Mono {
			t.Fatalf("code run %q not monospace", r.Text)
		}
	}
	if runs[0].Baseline == runs[1].Baseline {
		t.Fatal("code lines share a baseline")
	}
}

func TestRenderColorsLinks(t *testing.T) {
	if (linkColor == color.RGBA{}) || linkColor == textColor {
		t.Fatal("link color must differ from text color")
	}
}
