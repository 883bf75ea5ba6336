package psdoc

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
)

const multiPagePS = `%!PS-Adobe-3.0
%%Title: Two Pager
%%Creator: testsuite
%%BoundingBox: 0 0 612 792
%%Pages: 2
%%LanguageLevel: 2
%%EndComments
/Helvetica findfont 12 scalefont setfont
72 720 moveto (first) show
showpage
72 720 moveto (second) show
showpage
`

const epsWithPreview = `%!PS-Adobe-3.0 EPSF-3.0
%%BoundingBox: 0 0 16 8
%%BeginPreview: 16 8 1 8
%ffff
%8001
%8001
%8001
%8001
%8001
%8001
%ffff
%%EndPreview
%%EndComments
0 0 16 8 rectfill
showpage
`

func writePS(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseDSC(t *testing.T) {
	info := parseDSC([]byte(multiPagePS))
	if info.Version != "3.0" || info.EPSF {
		t.Fatalf("header = %+v", info)
	}
	if info.Pages != 2 || info.LanguageLevel != 2 {
		t.Fatalf("info = %+v", info)
	}
	if info.BoundingBox.Width != 612 || info.BoundingBox.Height != 792 {
		t.Fatalf("bbox = %+v", info.BoundingBox)
	}
	if info.Title != "Two Pager" || info.Creator != "testsuite" {
		t.Fatalf("title/creator = %q/%q", info.Title, info.Creator)
	}
}

func TestParseDSCAtEndAndHiRes(t *testing.T) {
	src := `%!PS-Adobe-3.0
%%Pages: (atend)
%%BoundingBox: (atend)
showpage
showpage
showpage
%%Trailer
%%Pages: 3
%%BoundingBox: 0 0 100 200
%%HiResBoundingBox: 0.0 0.0 100.5 200.25
`
	info := parseDSC([]byte(src))
	if info.Pages != 3 {
		t.Fatalf("pages = %d", info.Pages)
	}
	if info.BoundingBox.Width != 100 {
		t.Fatalf("bbox = %+v", info.BoundingBox)
	}
	if info.HiResBox.Width != 100.5 || info.HiResBox.Height != 200.25 {
		t.Fatalf("hires = %+v", info.HiResBox)
	}
}

func TestCountShowpages(t *testing.T) {
	cases := []struct {
		src  string
		want int
	}{
		{"showpage", 1},
		{"showpage showpage", 2},
		{"% comment showpage\nshowpage", 1},
		{"(a string showpage) showpage", 1},
		{"(nested (showpage) here)", 0},
		{"(escaped \\) showpage)", 0},
		{"myshowpage showpages", 0},
		{"<deadbeef> showpage", 1},
		{"{showpage} repeat", 1},
	}
	for _, tc := range cases {
		if got := countShowpages([]byte(tc.src)); got != tc.want {
			t.Fatalf("%q: got %d, want %d", tc.src, got, tc.want)
		}
	}
}

func TestOpenMultiPage(t *testing.T) {
	d, err := Open(writePS(t, "two.ps", multiPagePS), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.Format() != doc.FormatPS {
		t.Fatalf("format = %v", d.Format())
	}
	if d.PageCount() != 2 {
		t.Fatalf("page count = %d", d.PageCount())
	}
	if d.Version() != "3.0" {
		t.Fatalf("version = %q", d.Version())
	}
	m := d.Metadata()
	if m.Title != "Two Pager" || m.Custom["languagelevel"] != "2" {
		t.Fatalf("metadata = %+v", m)
	}
	size := d.Page(0).Size()
	if size.Width != 612 || size.Height != 792 {
		t.Fatalf("size = %+v", size)
	}
}

func TestShowpageFallbackCount(t *testing.T) {
	src := "%!PS-Adobe-2.0\n%%EndComments\nshowpage\nshowpage\nshowpage\n"
	d, err := Open(writePS(t, "counted.ps", src), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.PageCount() != 3 {
		t.Fatalf("page count = %d", d.PageCount())
	}
}

func TestEPSSinglePage(t *testing.T) {
	d, err := Open(writePS(t, "pic.eps", epsWithPreview), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.Format() != doc.FormatEPS {
		t.Fatalf("format = %v", d.Format())
	}
	if d.PageCount() != 1 {
		t.Fatalf("page count = %d", d.PageCount())
	}
	size := d.Page(0).Size()
	if size.Width != 16 || size.Height != 8 {
		t.Fatalf("size = %+v", size)
	}
}

func TestParsePreview(t *testing.T) {
	img := parsePreview([]byte(epsWithPreview))
	if img == nil {
		t.Fatal("no preview decoded")
	}
	b := img.Bounds()
	if b.Dx() != 16 || b.Dy() != 8 {
		t.Fatalf("bounds = %v", b)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("image type %T", img)
	}
	// Top row is all set bits (black); second row only the edges.
	if gray.Pix[0] != 0 || gray.Pix[15] != 0 {
		t.Fatalf("top row = %v", gray.Pix[:16])
	}
	if gray.Pix[gray.Stride+1] != 0xff {
		t.Fatalf("interior pixel = %d", gray.Pix[gray.Stride+1])
	}
}

func TestRenderWithoutInterpreterUsesPreview(t *testing.T) {
	d, err := Open(writePS(t, "pic.eps", epsWithPreview),
		format.OpenOptions{GhostscriptPath: ""})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	dd := d.(*Document)
	dd.gsPath = "" // simulate a missing interpreter even if gs is installed
	img, err := d.Page(0).RenderImage(context.Background(), doc.RenderOptions{Width: 32, Height: 16})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 16 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestRenderWithoutInterpreterOrPreview(t *testing.T) {
	d, err := Open(writePS(t, "two.ps", multiPagePS), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	dd := d.(*Document)
	dd.gsPath = ""
	_, err = d.Page(0).RenderImage(context.Background(), doc.RenderOptions{Width: 100, Height: 100})
	if doc.KindOf(err) != doc.KindLibraryUnavailable {
		t.Fatalf("error = %v", err)
	}
}

func TestPageOutOfRange(t *testing.T) {
	d, err := Open(writePS(t, "two.ps", multiPagePS), format.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.Page(-1) != nil || d.Page(2) != nil {
		t.Fatal("out-of-range page not nil")
	}
}
