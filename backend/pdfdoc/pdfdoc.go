// Package pdfdoc is the PDF backend. Rasterization, plain text, ToC and
// metadata come from go-fitz (MuPDF); annotations, form fields,
// permissions and embedded files come from the unipdf object model. The
// save pipeline reuses the unipdf side.
package pdfdoc

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/mgmeyers/unipdf/v3/core/security"
	"github.com/mgmeyers/unipdf/v3/model"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/format"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/observability"
)

// Document is an open PDF.
type Document struct {
	mu   sync.Mutex // guards fitz (MuPDF context is not goroutine-safe) and lazy state
	path string

	fitzDoc *fitz.Document
	reader  *model.PdfReader
	file    *os.File
	sidecar string // decrypted temp copy for fitz, "" when the file is plain

	version    string
	meta       doc.Metadata
	encrypted  bool
	restricted bool
	perms      security.Permissions
	password   string
	caps       doc.CapabilitySet
	pages      []*Page
	logger     observability.Logger
}

// Open loads a PDF. An encrypted file is tried with the empty password
// first, then with opts.Password; rendering an encrypted file goes
// through a decrypted sidecar copy that lives until Close.
func Open(path string, opts format.OpenOptions) (doc.Document, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, doc.E(doc.KindIO, "pdf.open", path, err)
	}

	reader, err := model.NewPdfReader(f)
	if err != nil {
		f.Close()
		return nil, doc.E(doc.KindCorrupt, "pdf.open", path, err)
	}

	d := &Document{
		path:     path,
		reader:   reader,
		file:     f,
		password: opts.Password,
		logger:   logger,
	}

	if err := d.unlock(opts.Password); err != nil {
		f.Close()
		return nil, err
	}

	fitzPath := path
	if d.encrypted {
		sidecar, err := d.writeDecryptedSidecar()
		if err != nil {
			f.Close()
			return nil, err
		}
		d.sidecar = sidecar
		fitzPath = sidecar
	}

	fz, err := fitz.New(fitzPath)
	if err != nil {
		d.removeSidecar()
		f.Close()
		return nil, doc.E(doc.KindCorrupt, "pdf.open", path, err)
	}
	d.fitzDoc = fz

	if err := d.loadPages(); err != nil {
		d.Close()
		return nil, err
	}
	d.loadMetadata()
	d.caps = d.buildCapabilities()
	return d, nil
}

// unlock decrypts the reader when needed, classifying failures into
// PasswordRequired / PasswordIncorrect, and captures the permission set.
func (d *Document) unlock(password string) error {
	enc, err := d.reader.IsEncrypted()
	if err != nil {
		return doc.E(doc.KindCorrupt, "pdf.open", d.path, err)
	}
	if !enc {
		return nil
	}
	d.encrypted = true

	ok, err := d.reader.Decrypt([]byte(""))
	if err != nil {
		return doc.E(doc.KindCorrupt, "pdf.decrypt", d.path, err)
	}
	pass := ""
	if !ok {
		if password == "" {
			return doc.Errorf(doc.KindPasswordRequired, "pdf.open", "%s is password protected", d.path)
		}
		ok, err = d.reader.Decrypt([]byte(password))
		if err != nil {
			return doc.E(doc.KindCorrupt, "pdf.decrypt", d.path, err)
		}
		if !ok {
			return doc.Errorf(doc.KindPasswordIncorrect, "pdf.open", "wrong password for %s", d.path)
		}
		pass = password
	}

	_, perms, err := d.reader.CheckAccessRights([]byte(pass))
	if err != nil {
		return doc.E(doc.KindCorrupt, "pdf.permissions", d.path, err)
	}
	d.perms = perms
	for _, p := range []security.Permissions{
		security.PermPrinting,
		security.PermModify,
		security.PermAnnotate,
		security.PermFillForms,
		security.PermExtractGraphics,
	} {
		if !perms.Allowed(p) {
			d.restricted = true
			break
		}
	}
	return nil
}

// writeDecryptedSidecar materializes the decrypted document into a temp
// file fitz can open without password support.
func (d *Document) writeDecryptedSidecar() (string, error) {
	tmp, err := os.CreateTemp("", "docview-pdf-*.pdf")
	if err != nil {
		return "", doc.E(doc.KindIO, "pdf.sidecar", d.path, err)
	}
	defer tmp.Close()

	w := model.NewPdfWriter()
	n, err := d.reader.GetNumPages()
	if err != nil {
		os.Remove(tmp.Name())
		return "", doc.E(doc.KindCorrupt, "pdf.sidecar", d.path, err)
	}
	for i := 1; i <= n; i++ {
		page, err := d.reader.GetPage(i)
		if err != nil {
			os.Remove(tmp.Name())
			return "", doc.E(doc.KindCorrupt, "pdf.sidecar", d.path, err)
		}
		if err := w.AddPage(page); err != nil {
			os.Remove(tmp.Name())
			return "", doc.E(doc.KindInternal, "pdf.sidecar", d.path, err)
		}
	}
	if d.reader.AcroForm != nil {
		if err := w.SetForms(d.reader.AcroForm); err != nil {
			d.logger.Warn("sidecar form copy failed", observability.Error("err", err))
		}
	}
	if err := w.Write(tmp); err != nil {
		os.Remove(tmp.Name())
		return "", doc.E(doc.KindInternal, "pdf.sidecar", d.path, err)
	}
	return tmp.Name(), nil
}

func (d *Document) removeSidecar() {
	if d.sidecar != "" {
		os.Remove(d.sidecar)
		d.sidecar = ""
	}
}

func (d *Document) loadPages() error {
	n, err := d.reader.GetNumPages()
	if err != nil {
		return doc.E(doc.KindCorrupt, "pdf.pages", d.path, err)
	}
	d.pages = make([]*Page, n)
	for i := 0; i < n; i++ {
		mp, err := d.reader.GetPage(i + 1)
		if err != nil {
			return doc.E(doc.KindCorrupt, "pdf.pages", d.path, err)
		}
		size := geo.Size{Width: 612, Height: 792}
		if mb, err := mp.GetMediaBox(); err == nil && mb != nil {
			size = geo.Size{Width: mb.Urx - mb.Llx, Height: mb.Ury - mb.Lly}
		}
		rotation := 0
		if mp.Rotate != nil {
			rotation = int(*mp.Rotate) % 360
			if rotation < 0 {
				rotation += 360
			}
		}
		d.pages[i] = &Page{doc: d, index: i, model: mp, size: size, rotation: rotation}
	}
	return nil
}

func (d *Document) loadMetadata() {
	m := d.fitzDoc.Metadata()
	d.meta = doc.Metadata{
		Title:    m["title"],
		Author:   m["author"],
		Subject:  m["subject"],
		Keywords: m["keywords"],
		Creator:  m["creator"],
		Producer: m["producer"],
	}
	if t, ok := parsePDFDate(m["creationDate"]); ok {
		d.meta.CreationDate = t
	}
	if t, ok := parsePDFDate(m["modDate"]); ok {
		d.meta.ModDate = t
	}
	// fitz reports "PDF 1.7" style format strings.
	d.version = strings.TrimPrefix(m["format"], "PDF ")
}

func (d *Document) buildCapabilities() doc.CapabilitySet {
	caps := doc.NewCapabilitySet(
		doc.CapTextSelection,
		doc.CapAnnotations,
		doc.CapForms,
		doc.CapBookmarks,
		doc.CapHyperlinks,
		doc.CapEmbeddedFiles,
		doc.CapRestrictionRemoval,
	)
	if !d.restricted {
		return caps
	}
	if !d.perms.Allowed(security.PermAnnotate) {
		caps = caps.Without(doc.CapAnnotations)
	}
	if !d.perms.Allowed(security.PermFillForms) && !d.perms.Allowed(security.PermAnnotate) {
		caps = caps.Without(doc.CapForms)
	}
	if !d.perms.Allowed(security.PermExtractGraphics) {
		caps = caps.Without(doc.CapTextSelection)
	}
	return caps
}

func (d *Document) Path() string                    { return d.path }
func (d *Document) Format() doc.Format              { return doc.FormatPDF }
func (d *Document) Version() string                 { return d.version }
func (d *Document) Capabilities() doc.CapabilitySet { return d.caps }
func (d *Document) Metadata() doc.Metadata          { return d.meta }
func (d *Document) PageCount() int                  { return len(d.pages) }
func (d *Document) Encrypted() bool                 { return d.encrypted }
func (d *Document) HasRestrictions() bool           { return d.restricted }

// Password returns the password that opened the document; the save
// pipeline uses it to preserve encryption.
func (d *Document) Password() string { return d.password }

// Permissions returns the document's permission set.
func (d *Document) Permissions() security.Permissions { return d.perms }

func (d *Document) Page(index int) doc.Page {
	if index < 0 || index >= len(d.pages) {
		return nil
	}
	return d.pages[index]
}

// SetPath updates the document path after a successful save-as.
func (d *Document) SetPath(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = path
}

// Close releases the MuPDF document, the reader's file handle and any
// decrypted sidecar.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	if d.fitzDoc != nil {
		if err := d.fitzDoc.Close(); err != nil && first == nil {
			first = err
		}
		d.fitzDoc = nil
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && first == nil {
			first = err
		}
		d.file = nil
	}
	d.removeSidecar()
	if first != nil {
		return doc.E(doc.KindIO, "pdf.close", d.path, first)
	}
	return nil
}

// TOC converts the fitz outline into the normalized forest. Destinations
// with a resolved page become DestPage; anything else keeps its raw URI.
func (d *Document) TOC() []doc.TOCEntry {
	d.mu.Lock()
	outline, err := d.fitzDoc.ToC()
	d.mu.Unlock()
	if err != nil {
		return nil
	}
	forest, _ := buildTOC(outline, 0, 1)
	return forest
}

// buildTOC consumes outline entries at the given level, returning the
// subtrees and the index after the consumed range.
func buildTOC(flat []fitz.Outline, start, level int) ([]doc.TOCEntry, int) {
	var out []doc.TOCEntry
	i := start
	for i < len(flat) {
		o := flat[i]
		if o.Level < level {
			break
		}
		if o.Level > level {
			// Orphaned deep entry; attach to the previous sibling.
			if len(out) == 0 {
				i++
				continue
			}
			var children []doc.TOCEntry
			children, i = buildTOC(flat, i, o.Level)
			out[len(out)-1].Children = append(out[len(out)-1].Children, children...)
			continue
		}
		entry := doc.TOCEntry{Title: o.Title}
		if o.Page >= 0 {
			entry.Dest = doc.Destination{Type: doc.DestPage, Page: o.Page, Raw: o.URI}
		} else {
			entry.Dest = doc.Destination{Type: doc.DestRaw, Raw: o.URI}
		}
		i++
		var children []doc.TOCEntry
		children, i = buildTOC(flat, i, level+1)
		entry.Children = children
		out = append(out, entry)
	}
	return out, i
}

// parsePDFDate parses D:YYYYMMDDHHmmSS dates with the timezone suffix
// variants found in the wild.
func parsePDFDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		"D:20060102150405+07'00'",
		"D:20060102150405-07'00'",
		"D:20060102150405Z07'00'",
		"D:20060102150405Z",
		"D:20060102150405",
		"D:200601021504",
		"D:2006010215",
		"D:20060102",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
