package layout

import (
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// FlowMarkdown parses Markdown source and appends its block content to
// the flow.
func FlowMarkdown(f *Flow, source []byte) error {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(source))
	walkMarkdown(f, root, source, 0)
	return nil
}

func walkMarkdown(f *Flow, node ast.Node, source []byte, listDepth int) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			f.Heading(n.Level, inlineSpans(n, source, Style{}))
		case *ast.Paragraph:
			if spans := inlineSpans(n, source, Style{}); len(spans) > 0 {
				f.Paragraph(spans)
			}
		case *ast.List:
			walkMarkdownList(f, n, source, listDepth+1)
		case *ast.FencedCodeBlock:
			f.CodeBlock(blockLines(n, source))
		case *ast.CodeBlock:
			f.CodeBlock(blockLines(n, source))
		case *ast.ThematicBreak:
			f.Rule()
		case *ast.Blockquote:
			for qc := n.FirstChild(); qc != nil; qc = qc.NextSibling() {
				if spans := inlineSpans(qc, source, Style{Italic: true}); len(spans) > 0 {
					f.ListItem(1, "", spans)
				}
			}
		case *ast.HTMLBlock:
			// Raw HTML blocks in Markdown are skipped.
		default:
			walkMarkdown(f, child, source, listDepth)
		}
	}
}

func walkMarkdownList(f *Flow, list *ast.List, source []byte, depth int) {
	ordinal := list.Start
	if ordinal == 0 {
		ordinal = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if list.IsOrdered() {
			marker = strconv.Itoa(ordinal) + "."
			ordinal++
		}
		var spans []Span
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch cn := c.(type) {
			case *ast.List:
				// emit the item text first, then recurse
			case *ast.Paragraph, *ast.TextBlock:
				spans = append(spans, inlineSpans(cn, source, Style{})...)
			}
		}
		f.ListItem(depth, marker, spans)
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				walkMarkdownList(f, sub, source, depth+1)
			}
		}
	}
}

// inlineSpans flattens the inline children of a block node into styled
// spans.
func inlineSpans(node ast.Node, source []byte, base Style) []Span {
	var spans []Span
	var visit func(ast.Node, Style)
	visit = func(n ast.Node, style Style) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch cn := c.(type) {
			case *ast.Text:
				t := string(cn.Segment.Value(source))
				if cn.SoftLineBreak() || cn.HardLineBreak() {
					t += " "
				}
				spans = append(spans, Span{Text: t, Style: style})
			case *ast.CodeSpan:
				s := style
				s.Mono = true
				spans = append(spans, Span{Text: string(cn.Text(source)), Style: s})
			case *ast.Emphasis:
				s := style
				if cn.Level >= 2 {
					s.Bold = true
				} else {
					s.Italic = true
				}
				visit(cn, s)
			case *ast.Link:
				s := style
				s.Link = string(cn.Destination)
				visit(cn, s)
			case *ast.AutoLink:
				s := style
				url := string(cn.URL(source))
				s.Link = url
				spans = append(spans, Span{Text: url, Style: s})
			case *ast.Image:
				// Inline images in reflowed text render as their alt text.
				if alt := string(cn.Text(source)); alt != "" {
					spans = append(spans, Span{Text: alt, Style: style})
				}
			default:
				visit(cn, style)
			}
		}
	}
	visit(node, base)
	return spans
}

func blockLines(n ast.Node, source []byte) string {
	lines := n.Lines()
	var out []byte
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, seg.Value(source)...)
	}
	return string(out)
}
