// Package app is the application root: it owns the process-wide viewer
// services (format resolver, page cache, render pipeline, commit
// pipeline, OCR engine) and the table of open documents. Nothing here is
// a package-level singleton; the shell constructs one Application and
// injects it where needed.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/docview/backend/comicdoc"
	"github.com/wudi/docview/backend/epubdoc"
	"github.com/wudi/docview/backend/imagedoc"
	"github.com/wudi/docview/backend/mddoc"
	"github.com/wudi/docview/backend/pdfdoc"
	"github.com/wudi/docview/backend/psdoc"
	"github.com/wudi/docview/config"
	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/observability"
	"github.com/wudi/docview/ocr"
	"github.com/wudi/docview/render"
	"github.com/wudi/docview/save"
	"github.com/wudi/docview/staging"
)

// Handle is a weak reference to an open document. The shell holds
// handles, not documents: a lookup after close simply returns nil
// instead of keeping the file alive.
type Handle uint64

// Document pairs an open backend with its staging overlay and per-page
// OCR caches.
type Document struct {
	id  Handle
	doc doc.Document
	stg *staging.Staging

	mu       sync.Mutex
	ocrPages map[int]*ocr.OcrPage
}

// ID returns the document's handle.
func (d *Document) ID() Handle { return d.id }

// Doc returns the read-only backend document.
func (d *Document) Doc() doc.Document { return d.doc }

// Staging returns the document's mutation overlay.
func (d *Document) Staging() *staging.Staging { return d.stg }

// RenderDocID is the cache identity for this document's render keys.
func (d *Document) RenderDocID() string { return fmt.Sprintf("doc-%d", d.id) }

// OcrPage returns the OCR cache for one page, creating it on first use.
// Nil when the index is out of range.
func (d *Document) OcrPage(index int) *ocr.OcrPage {
	page := d.doc.Page(index)
	if page == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if op, ok := d.ocrPages[index]; ok {
		return op
	}
	op := ocr.NewOcrPage(d.RenderDocID(), page)
	d.ocrPages[index] = op
	return op
}

// Application owns the viewer services. Shutdown order: cancel all
// renders, close documents, release services.
type Application struct {
	cfg      *config.Config
	logger   observability.Logger
	resolver *format.Resolver
	cache    *render.Cache
	pipeline *render.Pipeline
	saver    *save.Pipeline
	engine   ocr.Engine

	mu     sync.Mutex
	docs   map[Handle]*Document
	nextID Handle
	closed bool
}

// New validates the configuration and builds the service graph. A nil
// config uses the defaults; a nil logger is a no-op.
func New(cfg *config.Config, logger observability.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, doc.E(doc.KindInvalidArgument, "app.new", "", err)
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}

	cache := render.NewCache(cfg.CacheBytes, logger)
	a := &Application{
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		pipeline: render.NewPipeline(cfg.MaxConcurrentRenders, cfg.QualityLevels, cache, logger),
		saver:    save.NewPipeline(logger, nil),
		engine:   ocr.DefaultEngine(),
		docs:     make(map[Handle]*Document),
	}
	a.resolver = format.NewResolver(logger)
	a.resolver.Register(doc.FormatPDF, pdfdoc.Open)
	a.resolver.Register(doc.FormatEPUB, epubdoc.Open)
	a.resolver.Register(doc.FormatCBZ, comicdoc.OpenCBZ)
	a.resolver.Register(doc.FormatCBR, comicdoc.OpenCBR)
	a.resolver.Register(doc.FormatImage, imagedoc.Open)
	a.resolver.Register(doc.FormatPS, psdoc.Open)
	a.resolver.Register(doc.FormatEPS, psdoc.Open)
	a.resolver.Register(doc.FormatMarkdown, mddoc.Open)
	return a, nil
}

// Config returns the validated configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Resolver returns the format resolver.
func (a *Application) Resolver() *format.Resolver { return a.resolver }

// Pipeline returns the render pipeline.
func (a *Application) Pipeline() *render.Pipeline { return a.pipeline }

// Cache returns the page cache.
func (a *Application) Cache() *render.Cache { return a.cache }

// OCREngine returns the configured OCR engine.
func (a *Application) OCREngine() ocr.Engine { return a.engine }

// SetOCREngine swaps the OCR engine, typically for tests or a remote
// provider.
func (a *Application) SetOCREngine(engine ocr.Engine) { a.engine = engine }

// Open resolves and opens a file, wrapping it with a staging overlay.
func (a *Application) Open(path, password string) (*Document, error) {
	d, err := a.resolver.Open(path, format.OpenOptions{
		Password:        password,
		GhostscriptPath: a.cfg.GhostscriptPath,
		RenderTimeout:   a.cfg.PSRenderTimeout,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		d.Close()
		return nil, doc.Errorf(doc.KindCanceled, "app.open", "application is shut down")
	}
	a.nextID++
	wrapped := &Document{
		id:       a.nextID,
		doc:      d,
		stg:      staging.New(d, a.logger),
		ocrPages: make(map[int]*ocr.OcrPage),
	}
	a.docs[wrapped.id] = wrapped
	return wrapped, nil
}

// Get looks a handle up; nil when the document was closed.
func (a *Application) Get(h Handle) *Document {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.docs[h]
}

// Documents snapshots the open documents.
func (a *Application) Documents() []*Document {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Document, 0, len(a.docs))
	for _, d := range a.docs {
		out = append(out, d)
	}
	return out
}

// CloseDocument closes one document, drops its handle and evicts its
// cached rasters.
func (a *Application) CloseDocument(h Handle) error {
	a.mu.Lock()
	d, ok := a.docs[h]
	delete(a.docs, h)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	a.cache.RemoveDocument(d.RenderDocID())
	return d.doc.Close()
}

// Save commits a document's staged mutations. outputPath selects
// save-as; lossy permits skipping unreconciled mutations. Password
// removal follows the AutoRemovePasswords preference.
func (a *Application) Save(ctx context.Context, h Handle, outputPath string, lossy bool) error {
	d := a.Get(h)
	if d == nil {
		return doc.Errorf(doc.KindInvalidArgument, "app.save", "no document with handle %d", h)
	}
	return a.saver.Save(ctx, d.stg, save.Options{
		OutputPath:      outputPath,
		RemovePasswords: a.cfg.AutoRemovePasswords && d.doc.Encrypted(),
		Lossy:           lossy,
	})
}

// Shutdown cancels all rendering, closes every document and releases the
// services. The application cannot be reused.
func (a *Application) Shutdown() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	docs := make([]*Document, 0, len(a.docs))
	for _, d := range a.docs {
		docs = append(docs, d)
	}
	a.docs = make(map[Handle]*Document)
	a.mu.Unlock()

	a.pipeline.Close()
	for _, d := range docs {
		if err := d.doc.Close(); err != nil {
			a.logger.Warn("close failed",
				observability.String("path", d.doc.Path()),
				observability.Error("err", err))
		}
	}
	a.cache.Clear()
}
