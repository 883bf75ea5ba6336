// Package mddoc is the Markdown backend: one page laid out lazily by
// the layout engine, with the raw source as the text surface.
package mddoc

import (
	"context"
	"image"
	"math"
	"os"
	"sync"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/layout"
)

const (
	pageWidth = 600.0
	pageMinH  = 800.0
	// oversized canvas so no page break fires; the page is fitted to
	// content afterwards
	flowCanvas = 1 << 20
)

// Document wraps one Markdown file.
type Document struct {
	mu     sync.Mutex
	path   string
	source []byte
	page   *Page
}

// Open reads the Markdown source. Layout happens on first page use.
func Open(path string, opts format.OpenOptions) (doc.Document, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, doc.E(doc.KindIO, "markdown.open", path, err)
	}
	d := &Document{path: path, source: source}
	d.page = &Page{doc: d}
	return d, nil
}

func (d *Document) Path() string       { return d.path }
func (d *Document) Format() doc.Format { return doc.FormatMarkdown }
func (d *Document) Version() string    { return "" }

func (d *Document) Capabilities() doc.CapabilitySet {
	return doc.NewCapabilitySet(doc.CapTextSelection, doc.CapHyperlinks)
}

func (d *Document) Metadata() doc.Metadata { return doc.Metadata{} }
func (d *Document) PageCount() int         { return 1 }
func (d *Document) TOC() []doc.TOCEntry    { return nil }
func (d *Document) Encrypted() bool        { return false }
func (d *Document) HasRestrictions() bool  { return false }

func (d *Document) Page(index int) doc.Page {
	if index != 0 {
		return nil
	}
	return d.page
}

func (d *Document) AnnotationsOnPage(index int) ([]doc.Annotation, error) { return nil, nil }
func (d *Document) FormFields() ([]doc.FormField, error)                  { return nil, nil }
func (d *Document) EmbeddedFiles() ([]doc.EmbeddedFile, error)            { return nil, nil }

func (d *Document) ExtractEmbeddedFile(name string) ([]byte, error) {
	return nil, doc.Errorf(doc.KindNotSupported, "markdown.embedded", "markdown has no embedded files")
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = nil
	d.page.laid = nil
	return nil
}

// Page is the single Markdown page.
type Page struct {
	doc  *Document
	laid *layout.Page
}

func (p *Page) Index() int    { return 0 }
func (p *Page) Rotation() int { return 0 }
func (p *Page) Label() string { return "" }

func (p *Page) Size() geo.Size {
	lp, err := p.layout()
	if err != nil {
		return geo.Size{Width: pageWidth, Height: pageMinH}
	}
	return lp.Size()
}

func (p *Page) layout() (*layout.Page, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.laid != nil {
		return p.laid, nil
	}
	if p.doc.source == nil {
		return nil, doc.Errorf(doc.KindIO, "markdown.page", "document closed")
	}
	flow, err := layout.NewFlow(geo.Size{Width: pageWidth, Height: flowCanvas},
		layout.WithMargins(layout.Margins{Top: 40, Bottom: 40, Left: 40, Right: 40}))
	if err != nil {
		return nil, err
	}
	if err := layout.FlowMarkdown(flow, p.doc.source); err != nil {
		return nil, err
	}
	flow.FitHeight(pageMinH)
	p.laid = flow.Pages()[0]
	return p.laid, nil
}

func (p *Page) RenderImage(ctx context.Context, opts doc.RenderOptions) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, doc.E(doc.KindCanceled, "markdown.render", p.doc.path, err)
	}
	lp, err := p.layout()
	if err != nil {
		return nil, err
	}
	size := lp.Size()
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		dpi := opts.DPI
		if dpi <= 0 {
			dpi = 72
		}
		width = int(math.Round(size.Width * dpi / 72))
		height = int(math.Round(size.Height * dpi / 72))
	}
	return lp.Render(width, height)
}

// Text returns the raw Markdown source rather than the laid-out runs;
// the file itself is the canonical text of the page.
func (p *Page) Text() (string, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.doc.source == nil {
		return "", doc.Errorf(doc.KindIO, "markdown.page", "document closed")
	}
	return string(p.doc.source), nil
}

func (p *Page) TextBoxes() ([]doc.TextBox, error) {
	lp, err := p.layout()
	if err != nil {
		return nil, err
	}
	boxes := lp.Boxes()
	out := make([]doc.TextBox, len(boxes))
	for i, b := range boxes {
		out[i] = doc.TextBox{Text: b.Text, Rect: flipRect(lp.Size(), b.Rect)}
	}
	return out, nil
}

func (p *Page) Search(query string, opts doc.SearchOptions) ([]doc.TextBox, error) {
	lp, err := p.layout()
	if err != nil {
		return nil, err
	}
	hits := lp.Search(query, opts)
	out := make([]doc.TextBox, len(hits))
	for i, h := range hits {
		out[i] = doc.TextBox{Text: h.Text, Rect: flipRect(lp.Size(), h.Rect)}
	}
	return out, nil
}

func (p *Page) Links() ([]doc.Link, error) {
	lp, err := p.layout()
	if err != nil {
		return nil, err
	}
	regions := lp.Links()
	out := make([]doc.Link, 0, len(regions))
	for _, reg := range regions {
		out = append(out, doc.Link{
			Rect: flipRect(lp.Size(), reg.Rect),
			URI:  reg.HRef,
			Page: -1,
		})
	}
	return out, nil
}

func (p *Page) HitTest(pt geo.Point) (*doc.Link, error) {
	lp, err := p.layout()
	if err != nil {
		return nil, err
	}
	size := lp.Size()
	flipped := geo.Point{X: pt.X, Y: size.Height - pt.Y}
	for _, reg := range lp.Links() {
		if reg.Rect.Contains(flipped) {
			return &doc.Link{
				Rect: flipRect(size, reg.Rect),
				URI:  reg.HRef,
				Page: -1,
			}, nil
		}
	}
	return nil, nil
}

// flipRect converts the layout engine's top-left origin to the
// bottom-left page convention.
func flipRect(size geo.Size, r geo.Rect) geo.Rect {
	return geo.Rect{
		X:      r.X,
		Y:      size.Height - r.Y - r.Height,
		Width:  r.Width,
		Height: r.Height,
	}
}
