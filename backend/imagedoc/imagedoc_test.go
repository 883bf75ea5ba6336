package imagedoc

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "test.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAndSize(t *testing.T) {
	d, err := Open(writePNG(t, 64, 48), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.Format() != doc.FormatImage || d.PageCount() != 1 {
		t.Fatalf("format/pages = %v/%d", d.Format(), d.PageCount())
	}
	size := d.Page(0).Size()
	if size.Width != 64 || size.Height != 48 {
		t.Fatalf("size = %+v", size)
	}
	if d.Metadata().Custom["codec"] != "png" {
		t.Fatalf("codec = %q", d.Metadata().Custom["codec"])
	}
	if d.Page(1) != nil {
		t.Fatal("page 1 not nil")
	}
}

func TestRender(t *testing.T) {
	d, err := Open(writePNG(t, 64, 48), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	p := d.Page(0)

	img, err := p.RenderImage(context.Background(), doc.RenderOptions{})
	if err != nil {
		t.Fatalf("render native: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("native bounds = %v", b)
	}

	img, err = p.RenderImage(context.Background(), doc.RenderOptions{DPI: 36})
	if err != nil {
		t.Fatalf("render dpi: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Fatalf("dpi bounds = %v", b)
	}
}

func TestGarbageIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("\x89PNG but not really"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, format.OpenOptions{}); doc.KindOf(err) != doc.KindCorrupt {
		t.Fatalf("error = %v", err)
	}
}

func TestClosedDocument(t *testing.T) {
	d, err := Open(writePNG(t, 8, 8), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d.Close()
	if _, err := d.Page(0).RenderImage(context.Background(), doc.RenderOptions{}); doc.KindOf(err) != doc.KindIO {
		t.Fatalf("error = %v", err)
	}
}
