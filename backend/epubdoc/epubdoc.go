// Package epubdoc is the EPUB backend. The archive is parsed eagerly
// (container, OPF, navigation); each linear spine item becomes one page,
// laid out on demand by the layout engine.
package epubdoc

import (
	"archive/zip"
	"bytes"
	"image"
	"path"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"golang.org/x/net/html/charset"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/layout"
	"github.com/wudi/docview/observability"
)

const (
	pageWidth  = 600.0
	pageMinH   = 800.0
	flowCanvas = 1 << 20 // oversized layout height; chapters are fitted afterwards
)

type chapter struct {
	id      string
	href    string // archive path, resolved against the OPF directory
	content []byte
}

// Document is an open EPUB.
type Document struct {
	mu      sync.Mutex
	path    string
	zr      *zip.ReadCloser
	pkg     *pkg
	baseDir string
	navDir  string

	chapters []chapter
	pages    []*Page
	nav      []navEntry
	byPath   map[string]int // archive path -> page index
	caps     doc.CapabilitySet
	logger   observability.Logger
}

// Open loads an EPUB from disk.
func Open(filePath string, opts format.OpenOptions) (doc.Document, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "epub.open", filePath, err)
	}

	d := &Document{path: filePath, zr: zr, logger: logger}
	if err := d.init(&zr.Reader); err != nil {
		zr.Close()
		return nil, err
	}
	return d, nil
}

func (d *Document) init(zr *zip.Reader) error {
	opfPath, err := parseContainer(zr, d.path)
	if err != nil {
		return err
	}
	p, baseDir, err := parseOPF(zr, opfPath, d.path)
	if err != nil {
		return err
	}
	d.pkg = p
	d.baseDir = baseDir

	d.byPath = make(map[string]int)
	for _, si := range p.Spine {
		if !si.Linear {
			continue
		}
		item, ok := p.Manifest[si.IDRef]
		if !ok {
			continue
		}
		href := resolveHref(baseDir, item.Href)
		content, err := readZipFile(zr, href)
		if err != nil {
			d.logger.Warn("spine item missing from archive",
				observability.String("href", href))
			continue
		}
		d.byPath[href] = len(d.chapters)
		d.chapters = append(d.chapters, chapter{id: item.ID, href: href, content: content})
	}
	if len(d.chapters) == 0 {
		return doc.Errorf(doc.KindCorrupt, "epub.open", "%s: no readable spine content", d.path)
	}

	d.pages = make([]*Page, len(d.chapters))
	for i := range d.chapters {
		d.pages[i] = &Page{doc: d, index: i}
	}
	d.nav = d.loadNav(zr)
	d.caps = doc.NewCapabilitySet(doc.CapTextSelection, doc.CapBookmarks, doc.CapHyperlinks)
	return nil
}

func (d *Document) Path() string                    { return d.path }
func (d *Document) Format() doc.Format              { return doc.FormatEPUB }
func (d *Document) Version() string                 { return d.pkg.Version }
func (d *Document) Capabilities() doc.CapabilitySet { return d.caps }
func (d *Document) PageCount() int                  { return len(d.pages) }
func (d *Document) Encrypted() bool                 { return false }
func (d *Document) HasRestrictions() bool           { return false }

func (d *Document) Metadata() doc.Metadata {
	m := d.pkg.Meta
	meta := doc.Metadata{
		Title:   m.Title,
		Author:  strings.Join(m.Creators, ", "),
		Subject: strings.Join(m.Subjects, ", "),
		ModDate: m.Modified,
		Custom:  map[string]string{},
	}
	if m.Language != "" {
		meta.Custom["language"] = m.Language
	}
	if m.Identifier != "" {
		meta.Custom["identifier"] = m.Identifier
	}
	if m.Publisher != "" {
		meta.Custom["publisher"] = m.Publisher
	}
	if m.Date != "" {
		meta.Custom["date"] = m.Date
	}
	return meta
}

func (d *Document) Page(index int) doc.Page {
	if index < 0 || index >= len(d.pages) {
		return nil
	}
	return d.pages[index]
}

// TOC resolves navigation hrefs to spine page indices. Entries whose
// target is not a spine document keep the raw href.
func (d *Document) TOC() []doc.TOCEntry {
	return d.convertNav(d.nav)
}

func (d *Document) convertNav(entries []navEntry) []doc.TOCEntry {
	out := make([]doc.TOCEntry, 0, len(entries))
	for _, e := range entries {
		entry := doc.TOCEntry{Title: e.Title, Children: d.convertNav(e.Children)}
		target := hrefDocPath(d.navDir, e.Href)
		if idx, ok := d.byPath[target]; ok {
			entry.Dest = doc.Destination{Type: doc.DestPage, Page: idx, Raw: e.Href}
		} else {
			entry.Dest = doc.Destination{Type: doc.DestRaw, Raw: e.Href}
		}
		out = append(out, entry)
	}
	return out
}

func (d *Document) AnnotationsOnPage(index int) ([]doc.Annotation, error) { return nil, nil }
func (d *Document) FormFields() ([]doc.FormField, error)                  { return nil, nil }
func (d *Document) EmbeddedFiles() ([]doc.EmbeddedFile, error)            { return nil, nil }

func (d *Document) ExtractEmbeddedFile(name string) ([]byte, error) {
	return nil, doc.Errorf(doc.KindNotSupported, "epub.embedded", "epub has no embedded files")
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.zr != nil {
		err := d.zr.Close()
		d.zr = nil
		if err != nil {
			return doc.E(doc.KindIO, "epub.close", d.path, err)
		}
	}
	return nil
}

// layoutChapter flows one chapter onto a content-fitted page. Caller
// must hold d.mu.
func (d *Document) layoutChapter(index int) (*layout.Page, error) {
	ch := d.chapters[index]
	flow, err := layout.NewFlow(geo.Size{Width: pageWidth, Height: flowCanvas},
		layout.WithMargins(layout.Margins{Top: 40, Bottom: 40, Left: 40, Right: 40}))
	if err != nil {
		return nil, err
	}

	chapterDir := path.Dir(ch.href)
	opts := layout.HTMLOptions{
		ResolveImage: func(src string) image.Image {
			target := hrefDocPath(chapterDir, src)
			if target == "" || d.zr == nil {
				return nil
			}
			data, err := readZipFile(&d.zr.Reader, target)
			if err != nil {
				return nil
			}
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return nil
			}
			return img
		},
	}

	// Chapters are not always UTF-8; sniff and transcode first.
	r, err := charset.NewReader(bytes.NewReader(ch.content), "")
	if err != nil {
		r = bytes.NewReader(ch.content)
	}
	if err := layout.FlowHTML(flow, r, opts); err != nil {
		return nil, err
	}
	flow.FitHeight(pageMinH)
	return flow.Pages()[0], nil
}
