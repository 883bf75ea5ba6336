package ocr

import (
	"context"
	"strings"
	"sync"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

// OcrPage caches recognition results for one page, keyed by DPI. The
// page is rasterized through Page.RenderImage directly, never through
// the render pipeline, so OCR work cannot starve viewport rendering.
type OcrPage struct {
	mu      sync.Mutex
	docID   string
	page    doc.Page
	results map[int]pageResult
}

type pageResult struct {
	res  Result
	imgW float64
	imgH float64
}

// NewOcrPage wraps a page for OCR. docID scopes the generated input ids.
func NewOcrPage(docID string, page doc.Page) *OcrPage {
	return &OcrPage{
		docID:   docID,
		page:    page,
		results: make(map[int]pageResult),
	}
}

// Recognize runs OCR at the given DPI, returning a cached result when
// one exists. dpi values below 1 default to 300.
func (p *OcrPage) Recognize(ctx context.Context, engine Engine, dpi int, opts ...InputOption) (Result, error) {
	if dpi < 1 {
		dpi = 300
	}
	p.mu.Lock()
	if cached, ok := p.results[dpi]; ok {
		p.mu.Unlock()
		return cached.res, nil
	}
	p.mu.Unlock()

	size := p.page.Size()
	w := int(size.Width * float64(dpi) / 72)
	h := int(size.Height * float64(dpi) / 72)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img, err := p.page.RenderImage(ctx, doc.RenderOptions{Width: w, Height: h, DPI: float64(dpi)})
	if err != nil {
		return Result{}, err
	}
	in, err := InputFromImage(img, p.docID, p.page.Index(), dpi, opts...)
	if err != nil {
		return Result{}, err
	}
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, err
	}

	b := img.Bounds()
	p.mu.Lock()
	p.results[dpi] = pageResult{res: res, imgW: float64(b.Dx()), imgH: float64(b.Dy())}
	p.mu.Unlock()
	return res, nil
}

// Invalidate drops all cached results.
func (p *OcrPage) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = make(map[int]pageResult)
}

// SearchText finds query occurrences in the cached OCR output across all
// recognized DPIs, returning matches with rectangles in page points.
// Matching is case-insensitive. When a match covers only part of a word,
// its rectangle is narrowed by proportional interpolation within the
// word's bounding box; per-character positions are not available from
// the engine seam.
func (p *OcrPage) SearchText(query string) []doc.TextBox {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []doc.TextBox
	seen := make(map[geo.Rect]bool)
	for _, pr := range p.results {
		for _, match := range searchResult(pr.res, query) {
			rect := p.regionToPage(match.bounds, pr.imgW, pr.imgH)
			if seen[rect] {
				continue
			}
			seen[rect] = true
			out = append(out, doc.TextBox{Text: match.text, Rect: rect})
		}
	}
	return out
}

// regionToPage converts an image-space region (pixels, origin top-left)
// into a page rectangle (points, origin bottom-left).
func (p *OcrPage) regionToPage(r Region, imgW, imgH float64) geo.Rect {
	if imgW <= 0 || imgH <= 0 {
		return geo.Rect{}
	}
	size := p.page.Size()
	render := geo.Size{Width: imgW, Height: imgH}
	ll := geo.PixelToPDF(geo.Pixel{X: r.X, Y: r.Y + r.Height}, render, size)
	ur := geo.PixelToPDF(geo.Pixel{X: r.X + r.Width, Y: r.Y}, render, size)
	return geo.FromLLUR(ll.X, ll.Y, ur.X, ur.Y)
}

type textMatch struct {
	text   string
	bounds Region
}

// searchResult walks the result's lines and locates query occurrences.
// A match spanning several words unions their boxes; partial first and
// last words are trimmed proportionally.
func searchResult(res Result, query string) []textMatch {
	var out []textMatch
	for _, block := range res.Blocks {
		for _, line := range block.Lines {
			out = append(out, searchLine(line, query)...)
		}
	}
	return out
}

func searchLine(line TextLine, query string) []textMatch {
	if len(line.Words) == 0 {
		return nil
	}
	// Concatenate the words with single spaces and remember per-word
	// character offsets so a hit maps back to word boxes.
	var sb strings.Builder
	starts := make([]int, len(line.Words))
	for i, w := range line.Words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		starts[i] = sb.Len()
		sb.WriteString(strings.ToLower(w.Text))
	}
	text := sb.String()

	var out []textMatch
	from := 0
	for {
		idx := strings.Index(text[from:], query)
		if idx < 0 {
			break
		}
		begin := from + idx
		end := begin + len(query)
		if box, ok := matchBounds(line.Words, starts, begin, end); ok {
			out = append(out, textMatch{text: query, bounds: box})
		}
		from = begin + 1
	}
	return out
}

// matchBounds computes the pixel box covering character range
// [begin, end) of the concatenated line text.
func matchBounds(words []TextWord, starts []int, begin, end int) (Region, bool) {
	first, last := -1, -1
	for i, w := range words {
		ws := starts[i]
		we := ws + len(w.Text)
		if begin < we && end > ws {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return Region{}, false
	}

	left := wordEdge(words[first], starts[first], begin)
	right := wordEdge(words[last], starts[last], end)
	top := words[first].Bounds.Y
	bottom := words[first].Bounds.Y + words[first].Bounds.Height
	for i := first; i <= last; i++ {
		b := words[i].Bounds
		if b.Y < top {
			top = b.Y
		}
		if b.Y+b.Height > bottom {
			bottom = b.Y + b.Height
		}
	}
	if right <= left {
		right = words[last].Bounds.X + words[last].Bounds.Width
	}
	return Region{X: left, Y: top, Width: right - left, Height: bottom - top}, true
}

// wordEdge interpolates the x coordinate of character offset pos inside
// the word's box, clamped to the box edges.
func wordEdge(w TextWord, start, pos int) float64 {
	n := len(w.Text)
	if n == 0 {
		return w.Bounds.X
	}
	frac := float64(pos-start) / float64(n)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return w.Bounds.X + w.Bounds.Width*frac
}
