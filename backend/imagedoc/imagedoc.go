// Package imagedoc is the single-image backend: one page whose
// intrinsic size is the decoded pixel size in points.
package imagedoc

import (
	"bytes"
	"context"
	"image"
	"math"
	"os"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/geo"
)

// Document wraps one raster image file.
type Document struct {
	mu      sync.Mutex
	path    string
	data    []byte
	codec   string
	size    geo.Size
	page    *Page
	decoded image.Image
}

// Open loads and validates the image header; pixel data is decoded on
// first render.
func Open(path string, opts format.OpenOptions) (doc.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, doc.E(doc.KindIO, "image.open", path, err)
	}
	cfg, codec, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "image.open", path, err)
	}
	d := &Document{
		path:  path,
		data:  data,
		codec: codec,
		size:  geo.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)},
	}
	d.page = &Page{doc: d}
	return d, nil
}

func (d *Document) Path() string                    { return d.path }
func (d *Document) Format() doc.Format              { return doc.FormatImage }
func (d *Document) Version() string                 { return "" }
func (d *Document) Capabilities() doc.CapabilitySet { return doc.NewCapabilitySet() }
func (d *Document) PageCount() int                  { return 1 }
func (d *Document) TOC() []doc.TOCEntry             { return nil }
func (d *Document) Encrypted() bool                 { return false }
func (d *Document) HasRestrictions() bool           { return false }

func (d *Document) Metadata() doc.Metadata {
	return doc.Metadata{Custom: map[string]string{"codec": d.codec}}
}

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
	return nil, doc.Errorf(doc.KindNotSupported, "image.embedded", "images have no embedded files")
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = nil
	d.decoded = nil
	return nil
}

func (d *Document) decode() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.decoded != nil {
		return d.decoded, nil
	}
	if d.data == nil {
		return nil, doc.Errorf(doc.KindIO, "image.decode", "document closed")
	}
	img, _, err := image.Decode(bytes.NewReader(d.data))
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "image.decode", d.path, err)
	}
	d.decoded = img
	return img, nil
}

// Page is the single page of an image document.
type Page struct {
	doc *Document
}

func (p *Page) Index() int     { return 0 }
func (p *Page) Size() geo.Size { return p.doc.size }
func (p *Page) Rotation() int  { return 0 }
func (p *Page) Label() string  { return "" }

func (p *Page) RenderImage(ctx context.Context, opts doc.RenderOptions) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, doc.E(doc.KindCanceled, "image.render", p.doc.path, err)
	}
	src, err := p.doc.decode()
	if err != nil {
		return nil, err
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
		return nil, doc.Errorf(doc.KindInvalidArgument, "image.render", "size %dx%d", width, height)
	}
	if width == b.Dx() && height == b.Dy() {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst, nil
}

func (p *Page) Text() (string, error)                                   { return "", nil }
func (p *Page) TextBoxes() ([]doc.TextBox, error)                       { return nil, nil }
func (p *Page) Search(string, doc.SearchOptions) ([]doc.TextBox, error) { return nil, nil }
func (p *Page) Links() ([]doc.Link, error)                              { return nil, nil }
func (p *Page) HitTest(geo.Point) (*doc.Link, error)                    { return nil, nil }
