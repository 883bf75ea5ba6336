// Package docview is a document viewer/editor core. It resolves PDF,
// EPUB, CBZ/CBR, PostScript/EPS, Markdown and image files into a uniform
// Document/Page model, renders pages progressively through a bounded
// scheduler with an LRU byte-budget cache, stages annotation and
// form-field edits over the read-only parsers, and commits them back to
// disk through a separate writer library.
//
// The app package ties the services together; this package offers the
// shortest path for embedding:
//
//	d, err := docview.Open("report.pdf")
package docview

import (
	"github.com/wudi/docview/backend/comicdoc"
	"github.com/wudi/docview/backend/epubdoc"
	"github.com/wudi/docview/backend/imagedoc"
	"github.com/wudi/docview/backend/mddoc"
	"github.com/wudi/docview/backend/pdfdoc"
	"github.com/wudi/docview/backend/psdoc"
	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/observability"
)

// NewResolver builds a resolver with every built-in backend registered.
func NewResolver(logger observability.Logger) *format.Resolver {
	r := format.NewResolver(logger)
	r.Register(doc.FormatPDF, pdfdoc.Open)
	r.Register(doc.FormatEPUB, epubdoc.Open)
	r.Register(doc.FormatCBZ, comicdoc.OpenCBZ)
	r.Register(doc.FormatCBR, comicdoc.OpenCBR)
	r.Register(doc.FormatImage, imagedoc.Open)
	r.Register(doc.FormatPS, psdoc.Open)
	r.Register(doc.FormatEPS, psdoc.Open)
	r.Register(doc.FormatMarkdown, mddoc.Open)
	return r
}

// Open sniffs and opens a file with default options.
func Open(path string) (doc.Document, error) {
	return NewResolver(nil).Open(path, format.OpenOptions{})
}

// OpenWithPassword opens an encrypted file.
func OpenWithPassword(path, password string) (doc.Document, error) {
	return NewResolver(nil).Open(path, format.OpenOptions{Password: password})
}
