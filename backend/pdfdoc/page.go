package pdfdoc

import (
	"context"
	"image"
	"strings"
	"unicode"

	xdraw "golang.org/x/image/draw"

	"github.com/mgmeyers/unipdf/v3/core"
	"github.com/mgmeyers/unipdf/v3/extractor"
	"github.com/mgmeyers/unipdf/v3/model"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

// Page is one PDF page. Geometry comes from the unipdf page object,
// pixels from fitz.
type Page struct {
	doc      *Document
	index    int
	model    *model.PdfPage
	size     geo.Size
	rotation int

	// lazy extraction state, guarded by doc.mu
	text  string
	marks []extractor.TextMark
	haveText bool
}

func (p *Page) Index() int     { return p.index }
func (p *Page) Size() geo.Size { return p.size }
func (p *Page) Rotation() int  { return p.rotation }

// Label returns "": the reader layer does not surface PDF page labels.
func (p *Page) Label() string { return "" }

// RenderImage rasterizes through fitz at a DPI derived from the target
// width, then resamples to the exact requested size.
func (p *Page) RenderImage(ctx context.Context, opts doc.RenderOptions) (image.Image, error) {
	if opts.Width < 1 || opts.Height < 1 {
		return nil, doc.Errorf(doc.KindInvalidArgument, "pdf.render", "size %dx%d", opts.Width, opts.Height)
	}
	if err := ctx.Err(); err != nil {
		return nil, doc.E(doc.KindCanceled, "pdf.render", p.doc.path, err)
	}
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 72 * float64(opts.Width) / p.size.Width
	}

	p.doc.mu.Lock()
	if p.doc.fitzDoc == nil {
		p.doc.mu.Unlock()
		return nil, doc.Errorf(doc.KindInternal, "pdf.render", "document closed")
	}
	img, err := p.doc.fitzDoc.ImageDPI(p.index, dpi)
	p.doc.mu.Unlock()
	if err != nil {
		return nil, doc.E(doc.KindInternal, "pdf.render", p.doc.path, err)
	}

	b := img.Bounds()
	if b.Dx() == opts.Width && b.Dy() == opts.Height {
		return img, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}

// Text extracts the plain page text through fitz.
func (p *Page) Text() (string, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.doc.fitzDoc == nil {
		return "", doc.Errorf(doc.KindInternal, "pdf.text", "document closed")
	}
	text, err := p.doc.fitzDoc.Text(p.index)
	if err != nil {
		return "", doc.E(doc.KindInternal, "pdf.text", p.doc.path, err)
	}
	return text, nil
}

// extract runs the unipdf extractor once per page, caching the full text
// and its positioned marks. Caller must hold doc.mu.
func (p *Page) extract() error {
	if p.haveText {
		return nil
	}
	ex, err := extractor.New(p.model)
	if err != nil {
		return doc.E(doc.KindInternal, "pdf.extract", p.doc.path, err)
	}
	pageText, _, _, err := ex.ExtractPageText()
	if err != nil {
		return doc.E(doc.KindInternal, "pdf.extract", p.doc.path, err)
	}
	p.text = pageText.Text()
	p.marks = pageText.Marks().Elements()
	p.haveText = true
	return nil
}

// TextBoxes returns the positioned text marks in page points with the
// PDF bottom-left origin.
func (p *Page) TextBoxes() ([]doc.TextBox, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if err := p.extract(); err != nil {
		return nil, err
	}
	boxes := make([]doc.TextBox, 0, len(p.marks))
	for _, m := range p.marks {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		boxes = append(boxes, doc.TextBox{
			Text: m.Text,
			Rect: geo.FromLLUR(m.BBox.Llx, m.BBox.Lly, m.BBox.Urx, m.BBox.Ury),
		})
	}
	return boxes, nil
}

// Search finds query occurrences in the extracted text and returns the
// union rectangle of the marks covering each match.
func (p *Page) Search(query string, opts doc.SearchOptions) ([]doc.TextBox, error) {
	if query == "" {
		return nil, nil
	}
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if err := p.extract(); err != nil {
		return nil, err
	}

	hay, needle := p.text, query
	if !opts.CaseSensitive {
		hay = strings.ToLower(hay)
		needle = strings.ToLower(needle)
	}

	var out []doc.TextBox
	from := 0
	for {
		idx := strings.Index(hay[from:], needle)
		if idx < 0 {
			break
		}
		start := from + idx
		end := start + len(needle)
		from = end
		if opts.WholeWord && !isWordBounded(hay, start, end) {
			continue
		}
		if rect, ok := p.marksUnion(start, end); ok {
			out = append(out, doc.TextBox{Text: p.text[start:end], Rect: rect})
		}
	}
	return out, nil
}

// marksUnion unions the rectangles of marks overlapping the byte range
// [start, end) of the page text.
func (p *Page) marksUnion(start, end int) (geo.Rect, bool) {
	var rect geo.Rect
	found := false
	for _, m := range p.marks {
		if m.Text == "" {
			continue
		}
		mStart := m.Offset
		mEnd := m.Offset + len(m.Text)
		if mEnd <= start || mStart >= end {
			continue
		}
		r := geo.FromLLUR(m.BBox.Llx, m.BBox.Lly, m.BBox.Urx, m.BBox.Ury)
		if r.IsEmpty() {
			continue
		}
		if !found {
			rect = r
			found = true
		} else {
			rect = rect.Union(r)
		}
	}
	return rect, found
}

func isWordBounded(s string, start, end int) bool {
	if start > 0 {
		if r := rune(s[start-1]); unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		if r := rune(s[end]); unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Links walks the page's Link annotations. URI actions become external
// links; explicit destinations resolve to a page index only when the
// destination names one directly.
func (p *Page) Links() ([]doc.Link, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()

	annots, err := p.model.GetAnnotations()
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "pdf.links", p.doc.path, err)
	}
	var out []doc.Link
	for _, a := range annots {
		link, ok := a.GetContext().(*model.PdfAnnotationLink)
		if !ok {
			continue
		}
		l := doc.Link{Page: -1, Rect: rectFromObject(a.Rect)}
		if action, ok := core.GetDict(link.A); ok {
			if name, ok := core.GetNameVal(action.Get("S")); ok && name == "URI" {
				if uri, ok := core.GetStringVal(action.Get("URI")); ok {
					l.URI = uri
				}
			}
		}
		if l.URI == "" {
			if dest, ok := core.GetArray(link.Dest); ok && dest.Len() > 0 {
				if n, ok := core.GetIntVal(dest.Get(0)); ok {
					l.Page = int(n)
				}
			}
		}
		if l.URI == "" && l.Page < 0 {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// HitTest returns the link whose rectangle contains the page point.
func (p *Page) HitTest(pt geo.Point) (*doc.Link, error) {
	links, err := p.Links()
	if err != nil {
		return nil, err
	}
	for i := range links {
		if links[i].Rect.Contains(pt) {
			return &links[i], nil
		}
	}
	return nil, nil
}

// rectFromObject reads a [llx lly urx ury] array object.
func rectFromObject(obj core.PdfObject) geo.Rect {
	arr, ok := core.GetArray(obj)
	if !ok {
		return geo.Rect{}
	}
	vals, err := arr.ToFloat64Array()
	if err != nil || len(vals) != 4 {
		return geo.Rect{}
	}
	return geo.FromLLUR(vals[0], vals[1], vals[2], vals[3])
}
