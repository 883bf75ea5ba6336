// Package save is the commit pipeline: it applies a document's staged
// mutations to the file on disk. PDFs are re-opened with the unipdf
// writer-side object model, staged annotations are located by content
// identity (page, subtype, rectangle) and rewritten, and the result is
// written atomically. Other formats pass through as a byte copy and
// reject commit when mutations are staged.
package save

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/observability"
	"github.com/wudi/docview/staging"
)

// Options controls one commit.
type Options struct {
	// OutputPath writes the result to a different file (save-as). Empty
	// overwrites the document's own path.
	OutputPath string
	// RemovePasswords emits unencrypted output for an encrypted
	// original. Without it the encryption state is preserved.
	RemovePasswords bool
	// Lossy permits a commit that silently skips mutations whose target
	// object could not be located ("save anyway"). Without it such a
	// commit is refused with an *UnappliedError and no file is written.
	Lossy bool
}

// UnappliedError refuses a partial save. Mutations lists a human-readable
// description of every staged change that could not be located in the
// writer-side object graph.
type UnappliedError struct {
	Mutations []string
}

func (e *UnappliedError) Error() string {
	return fmt.Sprintf("save: %d staged mutation(s) could not be applied: %s",
		len(e.Mutations), strings.Join(e.Mutations, "; "))
}

// pathSetter is implemented by backends whose path can move on save-as.
type pathSetter interface {
	SetPath(path string)
}

// passworded is implemented by backends that retain the password the
// document was opened with.
type passworded interface {
	Password() string
}

// Pipeline commits staged mutations to disk.
type Pipeline struct {
	logger observability.Logger
	tracer observability.Tracer
}

// NewPipeline builds a commit pipeline. Nil logger and tracer default to
// the no-op implementations.
func NewPipeline(logger observability.Logger, tracer observability.Tracer) *Pipeline {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Pipeline{
		logger: logger.With(observability.String("component", "save")),
		tracer: tracer,
	}
}

// Save applies the staging log to disk. On success the log is cleared,
// the staging-modified flag drops, and a save-as updates the document
// path; cached renders stay valid because page content is untouched.
// On failure the file at the target path is never left half-written.
func (p *Pipeline) Save(ctx context.Context, stg *staging.Staging, opts Options) error {
	d := stg.Document()
	target := opts.OutputPath
	if target == "" {
		target = d.Path()
	}

	ctx, span := p.tracer.StartSpan(ctx, "save")
	defer span.Finish()
	span.SetTag("path", target)

	start := time.Now()
	var err error
	switch d.Format() {
	case doc.FormatPDF:
		err = p.savePDF(ctx, stg, d, target, opts)
	default:
		err = p.passThrough(stg, d, target)
	}
	if err != nil {
		span.SetError(err)
		return err
	}

	if target != d.Path() {
		if ps, ok := d.(pathSetter); ok {
			ps.SetPath(target)
		}
	}
	stg.Reset()
	p.logger.Info("document saved",
		observability.String("path", target),
		observability.Duration(observability.MetricSaveTime, time.Since(start)))
	return nil
}

// passThrough copies the original bytes to the target. Formats without a
// writer cannot commit staged mutations.
func (p *Pipeline) passThrough(stg *staging.Staging, d doc.Document, target string) error {
	if stg.Modified() {
		return doc.Errorf(doc.KindNotSupported, "save",
			"%s documents cannot be saved with staged changes", d.Format())
	}
	if target == d.Path() {
		return nil
	}
	src, err := os.Open(d.Path())
	if err != nil {
		return doc.E(doc.KindIO, "save", d.Path(), err)
	}
	defer src.Close()
	return atomicWrite(target, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}

// atomicWrite streams into a temp file in the target's directory and
// renames over the target only when the write function succeeds, so a
// failed save never clobbers the original.
func atomicWrite(target string, write func(io.Writer) error) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".docview-save-*")
	if err != nil {
		return doc.E(doc.KindIO, "save", target, err)
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return doc.E(doc.KindIO, "save", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		tmp = nil
		return doc.E(doc.KindIO, "save", target, err)
	}
	name := tmp.Name()
	tmp = nil
	if err := os.Rename(name, target); err != nil {
		os.Remove(name)
		return doc.E(doc.KindIO, "save", target, err)
	}
	return nil
}
