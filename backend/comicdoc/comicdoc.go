// Package comicdoc is the comic-archive backend: CBZ (zip) and CBR
// (rar) archives of page images, optionally carrying ComicInfo.xml
// metadata. Comics have no text layer; the page surface is image-only.
package comicdoc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nwaples/rardecode"
	"golang.org/x/net/html/charset"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
)

var imageSuffixes = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
}

type pageEntry struct {
	name string
	load func() ([]byte, error)
}

// Document is an open comic archive.
type Document struct {
	mu      sync.Mutex
	path    string
	format  doc.Format
	zr      *zip.ReadCloser // nil for CBR
	entries []pageEntry
	pages   []*Page
	info    *comicInfo
	closed  bool
}

// comicInfo is the ComicInfo.xml schema subset surfaced as metadata.
type comicInfo struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	Title       string   `xml:"Title"`
	Series      string   `xml:"Series"`
	Number      string   `xml:"Number"`
	Volume      string   `xml:"Volume"`
	Summary     string   `xml:"Summary"`
	Writer      string   `xml:"Writer"`
	Penciller   string   `xml:"Penciller"`
	Publisher   string   `xml:"Publisher"`
	Genre       string   `xml:"Genre"`
	LanguageISO string   `xml:"LanguageISO"`
	Year        int      `xml:"Year"`
	Month       int      `xml:"Month"`
	Day         int      `xml:"Day"`
}

// OpenCBZ loads a zip comic archive.
func OpenCBZ(path string, opts format.OpenOptions) (doc.Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "comic.open", path, err)
	}
	d := &Document{path: path, format: doc.FormatCBZ, zr: zr}

	var infoData []byte
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if strings.EqualFold(filepath.Base(f.Name), "ComicInfo.xml") {
			if rc, err := f.Open(); err == nil {
				infoData, _ = io.ReadAll(rc)
				rc.Close()
			}
			continue
		}
		if !imageSuffixes[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		file := f
		d.entries = append(d.entries, pageEntry{
			name: f.Name,
			load: func() ([]byte, error) {
				rc, err := file.Open()
				if err != nil {
					return nil, err
				}
				defer rc.Close()
				return io.ReadAll(rc)
			},
		})
	}
	if err := d.finish(infoData); err != nil {
		zr.Close()
		return nil, err
	}
	return d, nil
}

// OpenCBR loads a rar comic archive. Rar streams have no random access,
// so page images are read into memory up front.
func OpenCBR(path string, opts format.OpenOptions) (doc.Document, error) {
	rr, err := rardecode.OpenReader(path, "")
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "comic.open", path, err)
	}
	defer rr.Close()

	d := &Document{path: path, format: doc.FormatCBR}
	var infoData []byte
	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, doc.E(doc.KindCorrupt, "comic.open", path, err)
		}
		if hdr.IsDir {
			continue
		}
		if strings.EqualFold(filepath.Base(hdr.Name), "ComicInfo.xml") {
			infoData, _ = io.ReadAll(rr)
			continue
		}
		if !imageSuffixes[strings.ToLower(filepath.Ext(hdr.Name))] {
			continue
		}
		data, err := io.ReadAll(rr)
		if err != nil {
			return nil, doc.E(doc.KindCorrupt, "comic.open", path, err)
		}
		d.entries = append(d.entries, pageEntry{
			name: hdr.Name,
			load: func() ([]byte, error) { return data, nil },
		})
	}
	if err := d.finish(infoData); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) finish(infoData []byte) error {
	if len(d.entries) == 0 {
		return doc.Errorf(doc.KindCorrupt, "comic.open", "%s: archive has no page images", d.path)
	}
	sort.Slice(d.entries, func(i, j int) bool { return d.entries[i].name < d.entries[j].name })
	d.pages = make([]*Page, len(d.entries))
	for i := range d.entries {
		d.pages[i] = &Page{doc: d, index: i}
	}
	if len(infoData) > 0 {
		d.info = parseComicInfo(infoData)
	}
	return nil
}

// parseComicInfo tolerates malformed metadata; a comic with a broken
// ComicInfo.xml still opens.
func parseComicInfo(data []byte) *comicInfo {
	var info comicInfo
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&info); err != nil {
		return nil
	}
	return &info
}

func (d *Document) Path() string                    { return d.path }
func (d *Document) Format() doc.Format              { return d.format }
func (d *Document) Version() string                 { return "" }
func (d *Document) Capabilities() doc.CapabilitySet { return doc.NewCapabilitySet() }
func (d *Document) PageCount() int                  { return len(d.pages) }
func (d *Document) TOC() []doc.TOCEntry             { return nil }
func (d *Document) Encrypted() bool                 { return false }
func (d *Document) HasRestrictions() bool           { return false }

func (d *Document) Metadata() doc.Metadata {
	if d.info == nil {
		return doc.Metadata{}
	}
	info := d.info
	m := doc.Metadata{
		Title:   info.Title,
		Author:  info.Writer,
		Subject: info.Genre,
		Custom:  map[string]string{},
	}
	if m.Title == "" && info.Series != "" {
		m.Title = strings.TrimSpace(fmt.Sprintf("%s %s", info.Series, info.Number))
	}
	if info.Year > 0 {
		month, day := info.Month, info.Day
		if month < 1 || month > 12 {
			month = 1
		}
		if day < 1 || day > 31 {
			day = 1
		}
		m.CreationDate = time.Date(info.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}
	for k, v := range map[string]string{
		"series":    info.Series,
		"number":    info.Number,
		"volume":    info.Volume,
		"summary":   info.Summary,
		"penciller": info.Penciller,
		"publisher": info.Publisher,
		"language":  info.LanguageISO,
	} {
		if v != "" {
			m.Custom[k] = v
		}
	}
	return m
}

func (d *Document) Page(index int) doc.Page {
	if index < 0 || index >= len(d.pages) {
		return nil
	}
	return d.pages[index]
}

func (d *Document) AnnotationsOnPage(index int) ([]doc.Annotation, error) { return nil, nil }
func (d *Document) FormFields() ([]doc.FormField, error)                  { return nil, nil }
func (d *Document) EmbeddedFiles() ([]doc.EmbeddedFile, error)            { return nil, nil }

func (d *Document) ExtractEmbeddedFile(name string) ([]byte, error) {
	return nil, doc.Errorf(doc.KindNotSupported, "comic.embedded", "comic archives have no embedded files")
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.zr != nil {
		err := d.zr.Close()
		d.zr = nil
		if err != nil {
			return doc.E(doc.KindIO, "comic.close", d.path, err)
		}
	}
	return nil
}

// pageData returns the raw image bytes for a page. Caller must hold
// d.mu for zip-backed documents.
func (d *Document) pageData(index int) ([]byte, error) {
	if d.closed {
		return nil, doc.Errorf(doc.KindIO, "comic.page", "document closed")
	}
	data, err := d.entries[index].load()
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "comic.page", d.entries[index].name, err)
	}
	return data, nil
}
