// Package format detects document formats from file content and
// dispatches to the registered backend. Magic bytes are the primary
// discriminator; the file extension only breaks ties.
package format

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/wudi/docview/doc"
)

var (
	magicPDF  = []byte("%PDF-")
	magicZIP  = []byte("PK\x03\x04")
	magicRAR  = []byte("Rar!\x1a\x07")
	magicPS   = []byte("%!PS-Adobe")
	magicPNG  = []byte("\x89PNG\r\n\x1a\n")
	magicGIF  = []byte("GIF8")
	magicJPEG = []byte("\xff\xd8\xff")
	magicBMP  = []byte("BM")
	magicTIFI = []byte("II*\x00")
	magicTIFM = []byte("MM\x00*")
	magicEPSB = []byte("\xc5\xd0\xd3\xc6") // DOS EPS binary header
)

var imageSuffixes = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
}

// Sniff detects the format of the content behind r. size is the total
// content length (needed to open ZIP directories); name is the file name
// used only as a tie-breaker.
func Sniff(r io.ReaderAt, size int64, name string) (doc.Format, error) {
	head := make([]byte, 512)
	n, err := r.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return doc.FormatUnknown, doc.E(doc.KindIO, "format.sniff", name, err)
	}
	head = head[:n]
	if len(head) == 0 {
		return doc.FormatUnknown, doc.Errorf(doc.KindFormat, "format.sniff", "empty file %q", name)
	}

	switch {
	case bytes.HasPrefix(head, magicPDF):
		return doc.FormatPDF, nil
	case bytes.HasPrefix(head, magicZIP):
		return sniffZip(r, size, name)
	case bytes.HasPrefix(head, magicRAR):
		return doc.FormatCBR, nil
	case bytes.HasPrefix(head, magicPS):
		if bytes.Contains(head, []byte("EPSF-")) {
			return doc.FormatEPS, nil
		}
		return doc.FormatPS, nil
	case bytes.HasPrefix(head, magicEPSB):
		return doc.FormatEPS, nil
	case bytes.HasPrefix(head, magicPNG),
		bytes.HasPrefix(head, magicGIF),
		bytes.HasPrefix(head, magicJPEG),
		bytes.HasPrefix(head, magicTIFI),
		bytes.HasPrefix(head, magicTIFM):
		return doc.FormatImage, nil
	case bytes.HasPrefix(head, magicBMP):
		return doc.FormatImage, nil
	case bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP")):
		return doc.FormatImage, nil
	}

	if looksTextual(head) {
		// Plain text falls back to Markdown regardless of extension.
		return doc.FormatMarkdown, nil
	}
	return doc.FormatUnknown, doc.Errorf(doc.KindFormat, "format.sniff", "unrecognized content in %q", name)
}

// SniffFile detects the format of the file at path.
func SniffFile(path string) (doc.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return doc.FormatUnknown, doc.E(doc.KindIO, "format.sniff", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return doc.FormatUnknown, doc.E(doc.KindIO, "format.sniff", path, err)
	}
	return Sniff(f, st.Size(), filepath.Base(path))
}

// sniffZip distinguishes EPUB from CBZ by archive content, with the
// extension as the final tie-breaker.
func sniffZip(r io.ReaderAt, size int64, name string) (doc.Format, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return doc.FormatUnknown, doc.E(doc.KindCorrupt, "format.sniff", name, err)
	}

	hasImages := false
	for _, f := range zr.File {
		if f.Name == "mimetype" {
			rc, err := f.Open()
			if err != nil {
				continue
			}
			mt, _ := io.ReadAll(io.LimitReader(rc, 64))
			rc.Close()
			if strings.TrimSpace(string(mt)) == "application/epub+zip" {
				return doc.FormatEPUB, nil
			}
		}
		if f.Name == "META-INF/container.xml" {
			return doc.FormatEPUB, nil
		}
		if imageSuffixes[strings.ToLower(filepath.Ext(f.Name))] {
			hasImages = true
		}
	}
	if hasImages {
		return doc.FormatCBZ, nil
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".epub":
		return doc.FormatEPUB, nil
	case ".cbz":
		return doc.FormatCBZ, nil
	}
	return doc.FormatUnknown, doc.Errorf(doc.KindFormat, "format.sniff", "zip archive %q is neither epub nor comic", name)
}

// looksTextual reports whether head is plausibly a text file: valid
// UTF-8 (allowing a truncated tail rune) and free of NUL bytes.
func looksTextual(head []byte) bool {
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	for len(head) > 0 {
		r, n := utf8.DecodeRune(head)
		if r == utf8.RuneError && n == 1 {
			// A rune truncated by the 512-byte window is fine at the tail.
			return len(head) < utf8.UTFMax
		}
		head = head[n:]
	}
	return true
}
