// Package doc defines the format-independent document contracts: the
// Document and Page interfaces every backend implements, the capability
// set, annotation and form-field value types, and the error taxonomy.
//
// Backends are read-only. Mutation is layered on top by the staging
// package and committed to disk by the save package.
package doc

import (
	"context"
	"image"
	"time"

	"github.com/wudi/docview/geo"
)

// Format tags the concrete file format behind a Document.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatEPUB
	FormatCBZ
	FormatCBR
	FormatImage
	FormatPS
	FormatEPS
	FormatMarkdown
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatEPUB:
		return "epub"
	case FormatCBZ:
		return "cbz"
	case FormatCBR:
		return "cbr"
	case FormatImage:
		return "image"
	case FormatPS:
		return "ps"
	case FormatEPS:
		return "eps"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// Capability enumerates the optional operations a backend may support.
type Capability int

const (
	CapTextSelection Capability = iota
	CapAnnotations
	CapForms
	CapBookmarks
	CapHyperlinks
	CapEmbeddedFiles
	CapRestrictionRemoval
)

func (c Capability) String() string {
	switch c {
	case CapTextSelection:
		return "TextSelection"
	case CapAnnotations:
		return "Annotations"
	case CapForms:
		return "Forms"
	case CapBookmarks:
		return "Bookmarks"
	case CapHyperlinks:
		return "Hyperlinks"
	case CapEmbeddedFiles:
		return "EmbeddedFiles"
	case CapRestrictionRemoval:
		return "RestrictionRemoval"
	default:
		return "unknown"
	}
}

// CapabilitySet is the per-document set of supported capabilities.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from the listed capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// Without returns a copy of the set with the listed capabilities removed.
func (s CapabilitySet) Without(caps ...Capability) CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c, ok := range s {
		out[c] = ok
	}
	for _, c := range caps {
		delete(out, c)
	}
	return out
}

// Metadata carries document-level information. Keys a format does not
// provide are left zero; format-specific extras go into Custom.
type Metadata struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate time.Time
	ModDate      time.Time
	Custom       map[string]string
}

// DestinationType classifies TOC destinations.
type DestinationType int

const (
	// DestPage is a resolved zero-based page index.
	DestPage DestinationType = iota
	// DestRaw preserves a destination the backend could not interpret;
	// the raw form is kept verbatim and never guessed at.
	DestRaw
)

// Destination is a normalized TOC target.
type Destination struct {
	Type DestinationType
	Page int    // valid when Type == DestPage
	Raw  string // original form, kept for DestRaw and as provenance
}

// TOCEntry is one node of the table-of-contents forest.
type TOCEntry struct {
	Title    string
	Dest     Destination
	Children []TOCEntry
}

// Link is a hyperlink or intra-document jump anchored to a page region.
type Link struct {
	Rect geo.Rect
	URI  string // external target, empty for internal jumps
	Page int    // internal target page index, -1 when unresolved
}

// TextBox is a run of text with its bounding rectangle in page points.
type TextBox struct {
	Text string
	Rect geo.Rect
}

// SearchOptions controls Page.Search.
type SearchOptions struct {
	CaseSensitive bool
	WholeWord     bool
}

// RenderOptions controls Page.RenderImage. Width/Height are the target
// pixel size; DPI is used by backends that rasterize through an external
// interpreter. A zero DPI derives 72 * Width / page width.
type RenderOptions struct {
	Width  int
	Height int
	DPI    float64
}

// EmbeddedFile describes one document-level attachment.
type EmbeddedFile struct {
	Name        string
	Description string
	Size        int
}

// Page is one visual page of a Document. Implementations are read-only
// and safe for concurrent rendering.
type Page interface {
	// Index is the zero-based position within the document. Fixed for
	// the document's lifetime.
	Index() int
	// Size is the intrinsic page size in points.
	Size() geo.Size
	// Rotation is the intrinsic rotation: 0, 90, 180 or 270.
	Rotation() int
	// Label is the page label ("i", "A-1"), empty when the format has
	// none or the reader layer does not surface it.
	Label() string
	// RenderImage rasterizes the page at the requested size.
	RenderImage(ctx context.Context, opts RenderOptions) (image.Image, error)
	// Text extracts the plain text of the page.
	Text() (string, error)
	// TextBoxes extracts text runs with their page rectangles.
	TextBoxes() ([]TextBox, error)
	// Search finds query occurrences and returns their rectangles.
	Search(query string, opts SearchOptions) ([]TextBox, error)
	// Links enumerates hyperlinks on the page.
	Links() ([]Link, error)
	// HitTest returns the link under the given page point, or nil.
	HitTest(p geo.Point) (*Link, error)
}

// Document is an open file. Implementations own their pages and release
// all resources on Close.
type Document interface {
	Path() string
	Format() Format
	// Version is the format version string ("1.7", "3.0"), empty when
	// not applicable.
	Version() string
	Capabilities() CapabilitySet
	Metadata() Metadata
	PageCount() int
	// Page returns the page at index, or nil when out of range.
	Page(index int) Page
	TOC() []TOCEntry
	// AnnotationsOnPage lists the backend's annotations for one page.
	// Backends without annotations return an empty list.
	AnnotationsOnPage(index int) ([]Annotation, error)
	// FormFields lists the document's form fields.
	FormFields() ([]FormField, error)
	EmbeddedFiles() ([]EmbeddedFile, error)
	ExtractEmbeddedFile(name string) ([]byte, error)
	// Encrypted reports whether the file on disk is encrypted.
	Encrypted() bool
	// HasRestrictions reports whether permission restrictions narrowed
	// the capability set.
	HasRestrictions() bool
	Close() error
}
