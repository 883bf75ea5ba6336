package layout

import (
	"image"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/docview/doc"
)

// HTMLOptions customizes HTML flowing. ResolveImage maps an img src to a
// decoded raster; nil or a nil return skips the image.
type HTMLOptions struct {
	ResolveImage func(src string) image.Image
}

// FlowHTML parses an HTML document and appends its body content to the
// flow.
func FlowHTML(f *Flow, r io.Reader, opts HTMLOptions) error {
	root, err := html.Parse(r)
	if err != nil {
		return doc.E(doc.KindFormat, "layout.html", "", err)
	}
	w := &htmlWalker{flow: f, opts: opts}
	w.walk(root)
	w.flushParagraph()
	return nil
}

type htmlWalker struct {
	flow  *Flow
	opts  HTMLOptions
	spans []Span // pending inline content
	style Style
	depth int // list nesting
}

func (w *htmlWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Head, atom.Noscript:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			w.flushParagraph()
			level := int(n.Data[1] - '0')
			w.flow.Heading(level, w.inline(n))
			return
		case atom.P:
			w.flushParagraph()
			if spans := w.inline(n); len(spans) > 0 {
				w.flow.Paragraph(spans)
			}
			return
		case atom.Ul, atom.Ol:
			w.flushParagraph()
			w.walkList(n, n.DataAtom == atom.Ol)
			return
		case atom.Pre:
			w.flushParagraph()
			w.flow.CodeBlock(textContent(n))
			return
		case atom.Hr:
			w.flushParagraph()
			w.flow.Rule()
			return
		case atom.Blockquote:
			w.flushParagraph()
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if spans := w.inline(c); len(spans) > 0 {
					w.flow.ListItem(1, "", spans)
				}
			}
			return
		case atom.Img:
			w.flushParagraph()
			w.placeImage(n)
			return
		case atom.Br:
			w.flushParagraph()
			return
		case atom.Table:
			// Tables flow as one paragraph per row.
			w.flushParagraph()
			w.walkTable(n)
			return
		}
	}
	if n.Type == html.TextNode {
		if t := collapseSpace(n.Data); strings.TrimSpace(t) != "" {
			w.spans = append(w.spans, Span{Text: t, Style: w.style})
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// flushParagraph emits inline content that accumulated outside an
// explicit block element.
func (w *htmlWalker) flushParagraph() {
	if len(w.spans) == 0 {
		return
	}
	w.flow.Paragraph(w.spans)
	w.spans = nil
}

// inline collects the styled spans under a block node.
func (w *htmlWalker) inline(n *html.Node) []Span {
	var spans []Span
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.collectInline(c, w.style, &spans)
	}
	return spans
}

func (w *htmlWalker) inlineOf(n *html.Node) []Span {
	var spans []Span
	w.collectInline(n, w.style, &spans)
	return spans
}

func (w *htmlWalker) collectInline(n *html.Node, style Style, spans *[]Span) {
	if n.Type == html.TextNode {
		if t := collapseSpace(n.Data); strings.TrimSpace(t) != "" {
			*spans = append(*spans, Span{Text: t, Style: style})
		}
		return
	}
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.B, atom.Strong:
			style.Bold = true
		case atom.I, atom.Em:
			style.Italic = true
		case atom.Code, atom.Tt, atom.Kbd, atom.Samp:
			style.Mono = true
		case atom.A:
			style.Link = attr(n, "href")
		case atom.Script, atom.Style:
			return
		case atom.Img:
			w.placeImage(n)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.collectInline(c, style, spans)
	}
}

func (w *htmlWalker) walkList(n *html.Node, ordered bool) {
	w.depth++
	ordinal := 1
	if s := attr(n, "start"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			ordinal = v
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		marker := "•"
		if ordered {
			marker = strconv.Itoa(ordinal) + "."
			ordinal++
		}
		var nested []*html.Node
		var spans []Span
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			if gc.Type == html.ElementNode && (gc.DataAtom == atom.Ul || gc.DataAtom == atom.Ol) {
				nested = append(nested, gc)
				continue
			}
			spans = append(spans, w.inlineOf(gc)...)
		}
		w.flow.ListItem(w.depth, marker, spans)
		for _, sub := range nested {
			w.walkList(sub, sub.DataAtom == atom.Ol)
		}
	}
	w.depth--
}

func (w *htmlWalker) walkTable(n *html.Node) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					if t := strings.TrimSpace(textContent(c)); t != "" {
						cells = append(cells, t)
					}
				}
			}
			if len(cells) > 0 {
				w.flow.Paragraph([]Span{{Text: strings.Join(cells, "  ")}})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
}

func (w *htmlWalker) placeImage(n *html.Node) {
	if w.opts.ResolveImage == nil {
		return
	}
	src := attr(n, "src")
	if src == "" {
		return
	}
	if img := w.opts.ResolveImage(src); img != nil {
		w.flow.Image(img)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// collapseSpace folds runs of whitespace into single spaces, preserving
// a leading or trailing separator.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return " "
	}
	out := strings.Join(fields, " ")
	if s[0] == ' ' || s[0] == '\n' || s[0] == '\t' {
		out = " " + out
	}
	if c := s[len(s)-1]; c == ' ' || c == '\n' || c == '\t' {
		out += " "
	}
	return out
}
