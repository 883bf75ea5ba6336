// Package layout paginates flowed text and images into fixed-size pages
// and rasterizes them. It backs the formats that have no native page
// geometry: reflowed EPUB chapters and Markdown files.
package layout

import (
	"image"
	"image/color"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-text/typesetting/segmenter"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

// Style is the resolved text style of a span. Zero Size means the flow
// default.
type Style struct {
	Size   float64
	Bold   bool
	Italic bool
	Mono   bool
	Link   string
}

// Span is a piece of text sharing one style.
type Span struct {
	Text  string
	Style Style
}

// Run is a placed piece of text on a page. X and Baseline are in page
// units with the origin at the top-left corner.
type Run struct {
	Text     string
	X        float64
	Baseline float64
	Width    float64
	Style    Style
}

// Region is a clickable area on a page.
type Region struct {
	Rect geo.Rect
	HRef string
}

type rule struct {
	y, x0, x1 float64
}

type placedImage struct {
	img  image.Image
	rect geo.Rect
}

// Page is one laid-out page. It is immutable once the flow that produced
// it is done.
type Page struct {
	size   geo.Size
	runs   []Run
	links  []Region
	rules  []rule
	images []placedImage
	fonts  *fontSet
}

// Margins are page margins in page units.
type Margins struct {
	Top, Bottom, Left, Right float64
}

// Flow accumulates block content and breaks it into pages.
type Flow struct {
	size     geo.Size
	margins  Margins
	baseSize float64
	lineGap  float64 // line height multiplier

	fonts   *fontSet
	pages   []*Page
	cur     *Page
	cursorY float64
}

// Option configures a Flow.
type Option func(*Flow)

// WithMargins sets the page margins.
func WithMargins(m Margins) Option {
	return func(f *Flow) { f.margins = m }
}

// WithBaseSize sets the body text size in page units.
func WithBaseSize(size float64) Option {
	return func(f *Flow) { f.baseSize = size }
}

// WithLineHeight sets the line height multiplier.
func WithLineHeight(mult float64) Option {
	return func(f *Flow) { f.lineGap = mult }
}

// NewFlow builds a flow producing pages of the given size.
func NewFlow(size geo.Size, opts ...Option) (*Flow, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, doc.E(doc.KindInternal, "layout.fonts", "", err)
	}
	f := &Flow{
		size:     size,
		margins:  Margins{Top: 50, Bottom: 50, Left: 50, Right: 50},
		baseSize: 12,
		lineGap:  1.4,
		fonts:    fonts,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Pages finishes the flow and returns the laid-out pages. A flow that
// received no content still yields one blank page.
func (f *Flow) Pages() []*Page {
	f.ensurePage()
	return f.pages
}

func (f *Flow) ensurePage() {
	if f.cur == nil {
		f.newPage()
	}
}

func (f *Flow) newPage() {
	f.cur = &Page{size: f.size, fonts: f.fonts}
	f.pages = append(f.pages, f.cur)
	f.cursorY = f.margins.Top
}

// PageBreak forces the next block onto a fresh page.
func (f *Flow) PageBreak() {
	f.ensurePage()
	f.cur = nil
}

// FitHeight shrinks the current page to its content height, no smaller
// than min. Used by flows that lay one logical unit per page on an
// oversized canvas.
func (f *Flow) FitHeight(min float64) {
	f.ensurePage()
	h := f.cursorY + f.margins.Bottom
	if h < min {
		h = min
	}
	f.cur.size.Height = h
}

func (f *Flow) checkBreak(height float64) {
	f.ensurePage()
	if f.cursorY+height > f.size.Height-f.margins.Bottom {
		f.newPage()
	}
}

// Heading places a heading block. Levels beyond 3 render slightly larger
// than body text.
func (f *Flow) Heading(level int, spans []Span) {
	scale := 2.0
	switch {
	case level == 2:
		scale = 1.5
	case level == 3:
		scale = 1.25
	case level > 3:
		scale = 1.1
	}
	size := f.baseSize * scale
	styled := make([]Span, len(spans))
	for i, s := range spans {
		s.Style.Bold = true
		if s.Style.Size == 0 {
			s.Style.Size = size
		}
		styled[i] = s
	}
	f.placeSpans(styled, f.margins.Left, size)
	f.cursorY += size * 0.5
}

// Paragraph places a body paragraph followed by paragraph spacing.
func (f *Flow) Paragraph(spans []Span) {
	f.placeSpans(spans, f.margins.Left, f.baseSize)
	f.cursorY += f.baseSize * 0.6
}

// ListItem places one list entry. marker is the bullet or ordinal text;
// depth indents nested lists.
func (f *Flow) ListItem(depth int, marker string, spans []Span) {
	f.ensurePage()
	indent := f.margins.Left + float64(depth)*18
	lineH := f.baseSize * f.lineGap
	f.checkBreak(lineH)
	f.place(Run{Text: marker, X: indent, Style: Style{Size: f.baseSize}})
	f.placeSpans(spans, indent+18, f.baseSize)
	f.cursorY += f.baseSize * 0.25
}

// CodeBlock places preformatted text in the monospace face, one source
// line per output line, without rewrapping.
func (f *Flow) CodeBlock(text string) {
	f.ensurePage()
	size := f.baseSize * 0.9
	lineH := size * f.lineGap
	f.cursorY += size * 0.4
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		f.checkBreak(lineH)
		if line != "" {
			f.place(Run{Text: line, X: f.margins.Left + 10, Style: Style{Size: size, Mono: true}})
		}
		f.cursorY += lineH
	}
	f.cursorY += size * 0.4
}

// Rule places a horizontal separator.
func (f *Flow) Rule() {
	f.ensurePage()
	f.checkBreak(f.baseSize)
	f.cursorY += f.baseSize * 0.5
	f.cur.rules = append(f.cur.rules, rule{
		y:  f.cursorY,
		x0: f.margins.Left,
		x1: f.size.Width - f.margins.Right,
	})
	f.cursorY += f.baseSize * 0.5
}

// Image places a raster image scaled to the content width, moving to a
// fresh page when the remaining space cannot hold it.
func (f *Flow) Image(img image.Image) {
	if img == nil {
		return
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return
	}
	f.ensurePage()
	maxW := f.size.Width - f.margins.Left - f.margins.Right
	maxH := f.size.Height - f.margins.Top - f.margins.Bottom
	w := float64(b.Dx())
	h := float64(b.Dy())
	if w > maxW {
		h *= maxW / w
		w = maxW
	}
	if h > maxH {
		w *= maxH / h
		h = maxH
	}
	f.checkBreak(h)
	f.cur.images = append(f.cur.images, placedImage{
		img:  img,
		rect: geo.Rect{X: f.margins.Left, Y: f.cursorY, Width: w, Height: h},
	})
	f.cursorY += h + f.baseSize*0.6
}

func (f *Flow) place(r Run) {
	lineH := r.Style.Size * f.lineGap
	face, err := f.fonts.face(r.Style)
	ascent := r.Style.Size * 0.8
	if err == nil {
		ascent = fixedToFloat(face.Metrics().Ascent)
		r.Width = f.fonts.measure(face, r.Text)
	}
	r.Baseline = f.cursorY + ascent
	f.cur.runs = append(f.cur.runs, r)
	if r.Style.Link != "" {
		f.addLink(geo.Rect{X: r.X, Y: f.cursorY, Width: r.Width, Height: lineH}, r.Style.Link, r.Style.Size)
	}
}

// addLink registers a clickable region. A link span wrapped into several
// chunks on one baseline extends the previous region instead of adding a
// second one for the same target.
func (f *Flow) addLink(rect geo.Rect, href string, size float64) {
	if n := len(f.cur.links); n > 0 {
		last := &f.cur.links[n-1]
		if last.HRef == href && last.Rect.Y == rect.Y && rect.X-last.Rect.Right() < size {
			if right := rect.Right(); right > last.Rect.Right() {
				last.Rect.Width = right - last.Rect.X
			}
			return
		}
	}
	f.cur.links = append(f.cur.links, Region{Rect: rect, HRef: href})
}

type chunk struct {
	text      string
	style     Style
	width     float64
	mandatory bool
}

// placeSpans wraps styled spans into lines at the segmenter's break
// opportunities and places them starting at x.
func (f *Flow) placeSpans(spans []Span, x, defaultSize float64) {
	f.ensurePage()
	maxWidth := f.size.Width - f.margins.Right - x
	lineH := defaultSize * f.lineGap

	var line []chunk
	var lineWidth float64

	flush := func() {
		if len(line) == 0 {
			return
		}
		f.checkBreak(lineH)
		curX := x
		for _, c := range line {
			if strings.TrimSpace(c.text) != "" {
				f.place(Run{Text: strings.TrimRight(c.text, " "), X: curX, Style: c.style})
			}
			curX += c.width
		}
		f.cursorY += lineH
		line = nil
		lineWidth = 0
	}

	var seg segmenter.Segmenter
	for _, span := range spans {
		if span.Text == "" {
			continue
		}
		if span.Style.Size == 0 {
			span.Style.Size = defaultSize
		}
		face, err := f.fonts.face(span.Style)
		if err != nil {
			continue
		}

		seg.Init([]rune(span.Text))
		iter := seg.LineIterator()
		for iter.Next() {
			ln := iter.Line()
			text := string(ln.Text)
			w := f.fonts.measure(face, text)
			if lineWidth+w > maxWidth && len(line) > 0 {
				flush()
			}
			if w > maxWidth {
				// An unbreakable chunk wider than the line is split by
				// runes rather than overflowing.
				for _, part := range f.splitToWidth(face, text, maxWidth) {
					if lineWidth+part.width > maxWidth && len(line) > 0 {
						flush()
					}
					part.style = span.Style
					line = append(line, part)
					lineWidth += part.width
				}
			} else {
				line = append(line, chunk{text: text, style: span.Style, width: w})
				lineWidth += w
			}
			// The segmenter flags the end of every input as mandatory;
			// only an explicit break character ends the visual line, so
			// a styled span can continue on the same baseline.
			if ln.IsMandatoryBreak && endsWithLineBreak(text) {
				flush()
			}
		}
	}
	flush()
}

func endsWithLineBreak(text string) bool {
	r, size := utf8.DecodeLastRuneInString(text)
	if size == 0 {
		return false
	}
	switch r {
	case '\n', '\r', '\v', '\f', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func (f *Flow) splitToWidth(face font.Face, text string, maxWidth float64) []chunk {
	var parts []chunk
	var b strings.Builder
	width := 0.0
	for _, r := range text {
		rw := f.fonts.measure(face, string(r))
		if width+rw > maxWidth && b.Len() > 0 {
			parts = append(parts, chunk{text: b.String(), width: width})
			b.Reset()
			width = 0
		}
		b.WriteRune(r)
		width += rw
	}
	if b.Len() > 0 {
		parts = append(parts, chunk{text: b.String(), width: width})
	}
	return parts
}

// Size returns the page size in page units.
func (p *Page) Size() geo.Size { return p.size }

// Runs returns the placed text runs.
func (p *Page) Runs() []Run { return p.runs }

// Links returns the clickable regions on the page.
func (p *Page) Links() []Region { return p.links }

// LinkAt returns the target of the link under pt, or "".
func (p *Page) LinkAt(pt geo.Point) string {
	for _, reg := range p.links {
		if reg.Rect.Contains(pt) {
			return reg.HRef
		}
	}
	return ""
}

// Text returns the page text with lines separated by newlines.
func (p *Page) Text() string {
	var b strings.Builder
	lastBaseline := -1.0
	for _, r := range p.runs {
		if lastBaseline >= 0 {
			if r.Baseline != lastBaseline {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(r.Text)
		lastBaseline = r.Baseline
	}
	return b.String()
}

// Boxes returns one text box per placed run, in page units with a
// top-left origin.
func (p *Page) Boxes() []doc.TextBox {
	boxes := make([]doc.TextBox, 0, len(p.runs))
	for _, r := range p.runs {
		boxes = append(boxes, doc.TextBox{Text: r.Text, Rect: p.runRect(r)})
	}
	return boxes
}

func (p *Page) runRect(r Run) geo.Rect {
	lineH := r.Style.Size * 1.2
	return geo.Rect{X: r.X, Y: r.Baseline - r.Style.Size, Width: r.Width, Height: lineH}
}

// Search returns the bounding boxes of term occurrences. Matches are
// found within single runs; the sub-run rectangle comes from measuring
// the match prefix.
func (p *Page) Search(term string, opts doc.SearchOptions) []doc.TextBox {
	if term == "" {
		return nil
	}
	var out []doc.TextBox
	needle := term
	if !opts.CaseSensitive {
		needle = strings.ToLower(needle)
	}
	for _, r := range p.runs {
		hay := r.Text
		if !opts.CaseSensitive {
			hay = strings.ToLower(hay)
		}
		from := 0
		for {
			idx := strings.Index(hay[from:], needle)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(needle)
			from = end
			if opts.WholeWord && !wordBounded(hay, start, end) {
				continue
			}
			face, err := p.fonts.face(r.Style)
			if err != nil {
				continue
			}
			prefixW := p.fonts.measure(face, r.Text[:start])
			matchW := p.fonts.measure(face, r.Text[start:end])
			rect := p.runRect(r)
			rect.X += prefixW
			rect.Width = matchW
			out = append(out, doc.TextBox{Text: r.Text[start:end], Rect: rect})
		}
	}
	return out
}

func wordBounded(s string, start, end int) bool {
	if start > 0 {
		prev := rune(s[start-1])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
			return false
		}
	}
	if end < len(s) {
		next := rune(s[end])
		if unicode.IsLetter(next) || unicode.IsDigit(next) {
			return false
		}
	}
	return true
}

var (
	textColor = color.RGBA{0x20, 0x20, 0x20, 0xff}
	linkColor = color.RGBA{0x1a, 0x4f, 0xb8, 0xff}
	ruleColor = color.RGBA{0xb0, 0xb0, 0xb0, 0xff}
)

// Render rasterizes the page at the requested pixel size. Fonts scale
// with the horizontal factor; vertical positions scale independently so
// a distorted aspect ratio stretches rather than clips.
func (p *Page) Render(width, height int) (image.Image, error) {
	if width < 1 || height < 1 {
		return nil, doc.Errorf(doc.KindInvalidArgument, "layout.render", "size %dx%d", width, height)
	}
	sx := float64(width) / p.size.Width
	sy := float64(height) / p.size.Height

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for _, rl := range p.rules {
		y := int(rl.y * sy)
		x0, x1 := int(rl.x0*sx), int(rl.x1*sx)
		draw.Draw(dst, image.Rect(x0, y, x1, y+1), image.NewUniform(ruleColor), image.Point{}, draw.Src)
	}

	for _, pi := range p.images {
		r := pi.rect
		dr := image.Rect(int(r.X*sx), int(r.Y*sy), int(r.Right()*sx), int((r.Y+r.Height)*sy))
		draw.BiLinear.Scale(dst, dr, pi.img, pi.img.Bounds(), draw.Over, nil)
	}

	for _, r := range p.runs {
		style := r.Style
		style.Size *= sx
		face, err := p.fonts.face(style)
		if err != nil {
			continue
		}
		src := image.NewUniform(textColor)
		if r.Style.Link != "" {
			src = image.NewUniform(linkColor)
		}
		d := font.Drawer{
			Dst:  dst,
			Src:  src,
			Face: face,
			Dot:  fixed.Point26_6{X: floatToFixed(r.X * sx), Y: floatToFixed(r.Baseline * sy)},
		}
		d.DrawString(r.Text)
	}
	return dst, nil
}

type fontVariant int

const (
	vRegular fontVariant = iota
	vBold
	vItalic
	vBoldItalic
	vMono
)

type faceKey struct {
	variant fontVariant
	size    int32 // quarter points
}

type fontSet struct {
	mu    sync.Mutex
	fonts [5]*sfnt.Font
	faces map[faceKey]font.Face
}

var (
	fontsOnce sync.Once
	fontsVal  *fontSet
	fontsErr  error
)

// loadFonts parses the bundled Go fonts once per process.
func loadFonts() (*fontSet, error) {
	fontsOnce.Do(func() {
		fs := &fontSet{faces: make(map[faceKey]font.Face)}
		for i, ttf := range [][]byte{goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF, gomono.TTF} {
			f, err := opentype.Parse(ttf)
			if err != nil {
				fontsErr = err
				return
			}
			fs.fonts[i] = f
		}
		fontsVal = fs
	})
	return fontsVal, fontsErr
}

func variantOf(s Style) fontVariant {
	switch {
	case s.Mono:
		return vMono
	case s.Bold && s.Italic:
		return vBoldItalic
	case s.Bold:
		return vBold
	case s.Italic:
		return vItalic
	default:
		return vRegular
	}
}

func (fs *fontSet) face(s Style) (font.Face, error) {
	size := s.Size
	if size <= 0 {
		size = 12
	}
	key := faceKey{variant: variantOf(s), size: int32(size * 4)}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if f, ok := fs.faces[key]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(fs.fonts[key.variant], &opentype.FaceOptions{
		Size:    float64(key.size) / 4,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	fs.faces[key] = f
	return f, nil
}

func (fs *fontSet) measure(face font.Face, text string) float64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fixedToFloat(font.MeasureString(face, text))
}

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }

func floatToFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(v * 64) }
