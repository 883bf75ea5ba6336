package format

import (
	"os"
	"sync"
	"time"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/observability"
)

// OpenOptions carries everything a backend may need at open time.
type OpenOptions struct {
	// Password is tried when the file is encrypted. An empty password is
	// always attempted first.
	Password string
	// GhostscriptPath overrides the PostScript interpreter executable;
	// empty means look up "gs" on PATH.
	GhostscriptPath string
	// RenderTimeout bounds one external-interpreter invocation. Zero
	// means unbounded.
	RenderTimeout time.Duration
	Logger        observability.Logger
}

// Opener opens a file already identified as a given format.
type Opener func(path string, opts OpenOptions) (doc.Document, error)

// Resolver sniffs files and dispatches to registered backend openers.
type Resolver struct {
	mu      sync.RWMutex
	openers map[doc.Format]Opener
	logger  observability.Logger
}

// NewResolver builds an empty resolver; backends are attached with
// Register.
func NewResolver(logger observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Resolver{
		openers: make(map[doc.Format]Opener),
		logger:  logger.With(observability.String("component", "format")),
	}
}

// Register attaches the opener for a format, replacing any previous one.
func (r *Resolver) Register(f doc.Format, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[f] = open
}

// Formats lists the formats with a registered opener.
func (r *Resolver) Formats() []doc.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]doc.Format, 0, len(r.openers))
	for f := range r.openers {
		out = append(out, f)
	}
	return out
}

// Open sniffs the file at path and opens it with the matching backend.
func (r *Resolver) Open(path string, opts OpenOptions) (doc.Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, doc.E(doc.KindIO, "format.open", path, err)
	}
	f, err := SniffFile(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	open, ok := r.openers[f]
	r.mu.RUnlock()
	if !ok {
		return nil, doc.Errorf(doc.KindNotSupported, "format.open", "no backend for %s file %q", f, path)
	}
	if opts.Logger == nil {
		opts.Logger = r.logger
	}

	start := time.Now()
	d, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	r.logger.Info("document opened",
		observability.String("path", path),
		observability.String("format", f.String()),
		observability.Int("pages", d.PageCount()),
		observability.Duration(observability.MetricOpenTime, time.Since(start)))
	return d, nil
}
