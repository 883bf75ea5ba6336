package comicdoc

import (
	"bytes"
	"context"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

// Page is one image of the archive. The intrinsic size treats one
// source pixel as one point.
type Page struct {
	doc   *Document
	index int

	size     geo.Size
	haveSize bool
}

func (p *Page) Index() int    { return p.index }
func (p *Page) Rotation() int { return 0 }
func (p *Page) Label() string { return "" }

func (p *Page) Size() geo.Size {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.haveSize {
		return p.size
	}
	data, err := p.doc.pageData(p.index)
	if err != nil {
		return geo.Size{}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return geo.Size{}
	}
	p.size = geo.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}
	p.haveSize = true
	return p.size
}

func (p *Page) RenderImage(ctx context.Context, opts doc.RenderOptions) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, doc.E(doc.KindCanceled, "comic.render", p.doc.path, err)
	}
	p.doc.mu.Lock()
	data, err := p.doc.pageData(p.index)
	p.doc.mu.Unlock()
	if err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "comic.render", p.doc.entries[p.index].name, err)
	}

	b := src.Bounds()
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		scale := 1.0
		if opts.DPI > 0 {
			scale = opts.DPI / 72
		}
		width = int(math.Round(float64(b.Dx()) * scale))
		height = int(math.Round(float64(b.Dy()) * scale))
	}
	if width < 1 || height < 1 {
		return nil, doc.Errorf(doc.KindInvalidArgument, "comic.render", "size %dx%d", width, height)
	}
	if width == b.Dx() && height == b.Dy() {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst, nil
}

func (p *Page) Text() (string, error)                                     { return "", nil }
func (p *Page) TextBoxes() ([]doc.TextBox, error)                         { return nil, nil }
func (p *Page) Search(string, doc.SearchOptions) ([]doc.TextBox, error)   { return nil, nil }
func (p *Page) Links() ([]doc.Link, error)                                { return nil, nil }
func (p *Page) HitTest(geo.Point) (*doc.Link, error)                      { return nil, nil }
