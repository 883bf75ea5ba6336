package epubdoc

import (
	"context"
	"image"
	"math"
	"path"
	"strings"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/layout"
)

// Page wraps one laid-out chapter. Layout runs on first use and is
// cached for the document's lifetime.
//
// The layout engine works in page units with a top-left origin; the
// page contract uses points with a bottom-left origin. Rectangles and
// points are flipped at this boundary.
type Page struct {
	doc   *Document
	index int
	laid  *layout.Page
}

func (p *Page) Index() int    { return p.index }
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
	if p.doc.zr == nil {
		return nil, doc.Errorf(doc.KindIO, "epub.page", "document closed")
	}
	lp, err := p.doc.layoutChapter(p.index)
	if err != nil {
		return nil, err
	}
	p.laid = lp
	return lp, nil
}

func (p *Page) RenderImage(ctx context.Context, opts doc.RenderOptions) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, doc.E(doc.KindCanceled, "epub.render", p.doc.path, err)
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

func (p *Page) Text() (string, error) {
	lp, err := p.layout()
	if err != nil {
		return "", err
	}
	return lp.Text(), nil
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

// Links classifies each clickable region: hrefs that resolve to a spine
// document become internal page jumps, everything else stays a URI.
func (p *Page) Links() ([]doc.Link, error) {
	lp, err := p.layout()
	if err != nil {
		return nil, err
	}
	regions := lp.Links()
	out := make([]doc.Link, 0, len(regions))
	for _, reg := range regions {
		out = append(out, p.classifyLink(lp.Size(), reg))
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
			link := p.classifyLink(size, reg)
			return &link, nil
		}
	}
	return nil, nil
}

func (p *Page) classifyLink(size geo.Size, reg layout.Region) doc.Link {
	link := doc.Link{Rect: flipRect(size, reg.Rect), Page: -1}
	href := reg.HRef
	if isExternalHref(href) {
		link.URI = href
		return link
	}
	chapterDir := path.Dir(p.doc.chapters[p.index].href)
	target := hrefDocPath(chapterDir, href)
	if target == "" {
		// Fragment-only href points into the current chapter.
		link.Page = p.index
		return link
	}
	if idx, ok := p.doc.byPath[target]; ok {
		link.Page = idx
		return link
	}
	link.URI = href
	return link
}

func isExternalHref(href string) bool {
	return strings.Contains(href, "://") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:")
}

// flipRect converts a top-left-origin rectangle to the bottom-left
// convention used by the page contract.
func flipRect(size geo.Size, r geo.Rect) geo.Rect {
	return geo.Rect{
		X:      r.X,
		Y:      size.Height - r.Y - r.Height,
		Width:  r.Width,
		Height: r.Height,
	}
}
