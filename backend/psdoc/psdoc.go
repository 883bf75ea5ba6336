// Package psdoc is the PostScript/EPS backend. Page geometry and count
// come from DSC comments; rasterization shells out to a PostScript
// interpreter. A missing interpreter degrades rendering only, the
// document still opens for metadata and page-count queries.
package psdoc

import (
	"image"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/observability"
)

// letter-size default when no bounding box is declared
var defaultPageSize = geo.Size{Width: 612, Height: 792}

// Document is an open PostScript or EPS file.
type Document struct {
	path    string
	format  doc.Format
	info    dscInfo
	size    geo.Size
	pages   []*Page
	gsPath  string
	timeout time.Duration
	preview image.Image // EPSI preview, nil unless present
	logger  observability.Logger
}

// Open loads a PostScript file; the EPSF header selects the EPS
// specialization.
func Open(path string, opts format.OpenOptions) (doc.Document, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, doc.E(doc.KindIO, "ps.open", path, err)
	}

	info := parseDSC(data)
	d := &Document{
		path:    path,
		format:  doc.FormatPS,
		info:    info,
		timeout: opts.RenderTimeout,
		logger:  logger,
	}
	if info.EPSF {
		d.format = doc.FormatEPS
		d.preview = parsePreview(data)
	}

	d.size = defaultPageSize
	switch {
	case !info.HiResBox.IsEmpty():
		d.size = geo.Size{Width: info.HiResBox.Width, Height: info.HiResBox.Height}
	case !info.BoundingBox.IsEmpty():
		d.size = geo.Size{Width: info.BoundingBox.Width, Height: info.BoundingBox.Height}
	}

	count := info.Pages
	if count < 0 {
		count = countShowpages(data)
		if count > 0 {
			logger.Debug("page count from showpage scan",
				observability.String("path", path),
				observability.Int("pages", count))
		}
	}
	if count < 1 {
		count = 1
	}
	if info.EPSF {
		count = 1
	}
	d.pages = make([]*Page, count)
	for i := range d.pages {
		d.pages[i] = &Page{doc: d, index: i}
	}

	gs := opts.GhostscriptPath
	if gs == "" {
		gs, err = exec.LookPath("gs")
		if err != nil {
			gs = ""
			logger.Warn("postscript interpreter not found, rendering disabled",
				observability.String("path", path))
		}
	}
	d.gsPath = gs
	return d, nil
}

func (d *Document) Path() string                    { return d.path }
func (d *Document) Format() doc.Format              { return d.format }
func (d *Document) Capabilities() doc.CapabilitySet { return doc.NewCapabilitySet() }
func (d *Document) PageCount() int                  { return len(d.pages) }
func (d *Document) TOC() []doc.TOCEntry             { return nil }
func (d *Document) Encrypted() bool                 { return false }
func (d *Document) HasRestrictions() bool           { return false }

func (d *Document) Version() string { return d.info.Version }

func (d *Document) Metadata() doc.Metadata {
	m := doc.Metadata{
		Title:   d.info.Title,
		Creator: d.info.Creator,
		Custom:  map[string]string{},
	}
	if d.info.LanguageLevel > 0 {
		m.Custom["languagelevel"] = strconv.Itoa(d.info.LanguageLevel)
	}
	if d.info.CreationDate != "" {
		m.Custom["creationdate"] = d.info.CreationDate
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
	return nil, doc.Errorf(doc.KindNotSupported, "ps.embedded", "postscript has no embedded files")
}

func (d *Document) Close() error { return nil }
