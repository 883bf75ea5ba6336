package psdoc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

// Page is one PostScript page, rasterized through the interpreter.
type Page struct {
	doc   *Document
	index int
}

func (p *Page) Index() int     { return p.index }
func (p *Page) Size() geo.Size { return p.doc.size }
func (p *Page) Rotation() int  { return 0 }
func (p *Page) Label() string  { return "" }

func (p *Page) RenderImage(ctx context.Context, opts doc.RenderOptions) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, doc.E(doc.KindCanceled, "ps.render", p.doc.path, err)
	}
	width, height, dpi := p.renderGeometry(opts)
	if width < 1 || height < 1 {
		return nil, doc.Errorf(doc.KindInvalidArgument, "ps.render", "size %dx%d", width, height)
	}

	if p.doc.gsPath == "" {
		if p.doc.preview != nil {
			return scalePreview(p.doc.preview, width, height), nil
		}
		return nil, doc.Errorf(doc.KindLibraryUnavailable, "ps.render",
			"no postscript interpreter available for %q", p.doc.path)
	}
	return p.interpret(ctx, width, height, dpi)
}

func (p *Page) renderGeometry(opts doc.RenderOptions) (width, height int, dpi float64) {
	size := p.doc.size
	dpi = opts.DPI
	switch {
	case opts.Width > 0 && opts.Height > 0:
		width, height = opts.Width, opts.Height
		if dpi <= 0 {
			dpi = 72 * float64(width) / size.Width
		}
	default:
		if dpi <= 0 {
			dpi = 72
		}
		width = int(math.Round(size.Width * dpi / 72))
		height = int(math.Round(size.Height * dpi / 72))
	}
	return width, height, dpi
}

// interpret runs the interpreter for exactly this page into a temporary
// PNG, bounded by the configured wall-clock timeout.
func (p *Page) interpret(ctx context.Context, width, height int, dpi float64) (image.Image, error) {
	if p.doc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.doc.timeout)
		defer cancel()
	}

	tmpDir, err := os.MkdirTemp("", "docview-ps-*")
	if err != nil {
		return nil, doc.E(doc.KindIO, "ps.render", p.doc.path, err)
	}
	defer os.RemoveAll(tmpDir)
	outFile := filepath.Join(tmpDir, "page.png")

	pageNo := p.index + 1
	cmd := exec.CommandContext(ctx, p.doc.gsPath,
		"-dNOPAUSE", "-dBATCH", "-dSAFER",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%g", dpi),
		fmt.Sprintf("-g%dx%d", width, height),
		fmt.Sprintf("-dFirstPage=%d", pageNo),
		fmt.Sprintf("-dLastPage=%d", pageNo),
		fmt.Sprintf("-sOutputFile=%s", outFile),
		p.doc.path,
	)
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, doc.E(doc.KindTimeout, "ps.render", p.doc.path, ctx.Err())
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, doc.E(doc.KindCanceled, "ps.render", p.doc.path, ctx.Err())
		}
		return nil, doc.E(doc.KindCorrupt, "ps.render", p.doc.path, err)
	}

	f, err := os.Open(outFile)
	if err != nil {
		return nil, doc.E(doc.KindIO, "ps.render", p.doc.path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, doc.E(doc.KindInternal, "ps.render", p.doc.path, err)
	}
	return img, nil
}

func scalePreview(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func (p *Page) Text() (string, error)                                   { return "", nil }
func (p *Page) TextBoxes() ([]doc.TextBox, error)                       { return nil, nil }
func (p *Page) Search(string, doc.SearchOptions) ([]doc.TextBox, error) { return nil, nil }
func (p *Page) Links() ([]doc.Link, error)                              { return nil, nil }
func (p *Page) HitTest(geo.Point) (*doc.Link, error)                    { return nil, nil }
