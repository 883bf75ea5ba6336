package format

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/wudi/docview/doc"
)

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sniffBytes(t *testing.T, data []byte, name string) (doc.Format, error) {
	t.Helper()
	return Sniff(bytes.NewReader(data), int64(len(data)), name)
}

func TestSniffMagic(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want doc.Format
	}{
		{"doc.pdf", []byte("%PDF-1.7\n%âãÏÓ"), doc.FormatPDF},
		{"book.cbr", []byte("Rar!\x1a\x07\x00rest"), doc.FormatCBR},
		{"file.ps", []byte("%!PS-Adobe-3.0\n%%Pages: 4\n"), doc.FormatPS},
		{"fig.eps", []byte("%!PS-Adobe-3.0 EPSF-3.0\n%%BoundingBox: 0 0 100 100\n"), doc.FormatEPS},
		{"fig.eps", []byte("\xc5\xd0\xd3\xc6binary preview"), doc.FormatEPS},
		{"a.png", []byte("\x89PNG\r\n\x1a\nrest"), doc.FormatImage},
		{"a.jpg", []byte("\xff\xd8\xff\xe0JFIF"), doc.FormatImage},
		{"a.gif", []byte("GIF89a...."), doc.FormatImage},
		{"a.tif", []byte("II*\x00data"), doc.FormatImage},
		{"a.webp", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBPVP8 ")...), doc.FormatImage},
		{"notes.md", []byte("# Notes\n\nplain text body\n"), doc.FormatMarkdown},
		{"readme.txt", []byte("text with no markdown extension"), doc.FormatMarkdown},
	}
	for _, tc := range cases {
		got, err := sniffBytes(t, tc.data, tc.name)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestSniffZipVariants(t *testing.T) {
	epub := zipBytes(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": "<container/>",
	})
	if got, _ := sniffBytes(t, epub, "anything.bin"); got != doc.FormatEPUB {
		t.Fatalf("epub zip sniffed as %s", got)
	}

	cbz := zipBytes(t, map[string]string{
		"page001.jpg": "x", "page002.png": "x",
	})
	if got, _ := sniffBytes(t, cbz, "anything.bin"); got != doc.FormatCBZ {
		t.Fatalf("comic zip sniffed as %s", got)
	}

	// A bare zip uses the extension as tie-breaker.
	bare := zipBytes(t, map[string]string{"data.txt": "x"})
	if got, _ := sniffBytes(t, bare, "book.epub"); got != doc.FormatEPUB {
		t.Fatalf("bare zip with .epub sniffed as %s", got)
	}
	if got, _ := sniffBytes(t, bare, "book.cbz"); got != doc.FormatCBZ {
		t.Fatalf("bare zip with .cbz sniffed as %s", got)
	}
	if _, err := sniffBytes(t, bare, "book.zip"); doc.KindOf(err) != doc.KindFormat {
		t.Fatalf("bare zip error = %v", err)
	}
}

func TestSniffExtensionNeverOverridesMagic(t *testing.T) {
	// A PDF named .epub is still a PDF.
	got, err := sniffBytes(t, []byte("%PDF-1.4\n"), "tricky.epub")
	if err != nil {
		t.Fatal(err)
	}
	if got != doc.FormatPDF {
		t.Fatalf("got %s, want pdf", got)
	}
}

func TestSniffRejectsBinaryGarbage(t *testing.T) {
	_, err := sniffBytes(t, []byte{0x00, 0x01, 0x02, 0xfe, 0xff, 0x00}, "blob.bin")
	if doc.KindOf(err) != doc.KindFormat {
		t.Fatalf("error = %v", err)
	}
}

func TestSniffEmptyFile(t *testing.T) {
	_, err := sniffBytes(t, nil, "empty")
	if doc.KindOf(err) != doc.KindFormat {
		t.Fatalf("error = %v", err)
	}
}

func TestSniffFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := SniffFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != doc.FormatPDF {
		t.Fatalf("got %s", got)
	}

	_, err = SniffFile(filepath.Join(dir, "missing.pdf"))
	if doc.KindOf(err) != doc.KindIO {
		t.Fatalf("missing file error = %v", err)
	}
}
