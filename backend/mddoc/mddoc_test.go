package mddoc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/geo"
)

const testMarkdown = `# Heading

A paragraph with a [link](https://example.com) and some *emphasis*.

- first item
- second item
`

func openTestMD(t *testing.T, source string) doc.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.md")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := Open(path, format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSinglePage(t *testing.T) {
	d := openTestMD(t, testMarkdown)
	if d.Format() != doc.FormatMarkdown || d.PageCount() != 1 {
		t.Fatalf("format/pages = %v/%d", d.Format(), d.PageCount())
	}
	if d.Page(0) == nil || d.Page(1) != nil {
		t.Fatal("page indexing broken")
	}
	caps := d.Capabilities()
	if !caps.Has(doc.CapTextSelection) || !caps.Has(doc.CapHyperlinks) {
		t.Fatalf("capabilities = %v", caps)
	}
}

func TestTextIsRawSource(t *testing.T) {
	d := openTestMD(t, testMarkdown)
	text, err := d.Page(0).Text()
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if text != testMarkdown {
		t.Fatalf("text = %q", text)
	}
}

func TestSearchFindsLaidOutText(t *testing.T) {
	d := openTestMD(t, testMarkdown)
	hits, err := d.Page(0).Search("paragraph", doc.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Rect.Width <= 0 {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestLinks(t *testing.T) {
	d := openTestMD(t, testMarkdown)
	links, err := d.Page(0).Links()
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	if len(links) == 0 {
		t.Fatal("no links")
	}
	if links[0].URI != "https://example.com" || links[0].Page != -1 {
		t.Fatalf("link = %+v", links[0])
	}

	r := links[0].Rect
	hit, err := d.Page(0).HitTest(geo.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2})
	if err != nil {
		t.Fatalf("hit test: %v", err)
	}
	if hit == nil || hit.URI != "https://example.com" {
		t.Fatalf("hit = %+v", hit)
	}
}

func TestRenderImage(t *testing.T) {
	d := openTestMD(t, testMarkdown)
	img, err := d.Page(0).RenderImage(context.Background(), doc.RenderOptions{Width: 300, Height: 400})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 400 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestLongDocumentGrowsPage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("A reasonably long paragraph of filler text that wraps across lines.\n\n")
	}
	d := openTestMD(t, b.String())
	size := d.Page(0).Size()
	if size.Height <= 800 {
		t.Fatalf("long document height = %v", size.Height)
	}
}
