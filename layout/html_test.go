package layout

import (
	"image"
	"strings"
	"testing"
)

const sampleHTML = `<!DOCTYPE html>
<html><head><title>ignored</title><style>p{color:red}</style></head>
<body>
<h1>Chapter One</h1>
<p>It was a <b>dark</b> and <i>stormy</i> night; see <a href="http://example.com/ref">the reference</a>.</p>
<ul>
  <li>first item</li>
  <li>second item
    <ol><li>nested</li></ol>
  </li>
</ul>
<pre>raw   spacing</pre>
<hr>
<table><tr><th>Name</th><th>Age</th></tr><tr><td>Ada</td><td>36</td></tr></table>
</body></html>`

func flowHTML(t *testing.T, src string, opts HTMLOptions) []*Page {
	t.Helper()
	f := newFlow(t)
	if err := FlowHTML(f, strings.NewReader(src), opts); err != nil {
		t.Fatalf("FlowHTML: %v", err)
	}
	return f.Pages()
}

func TestFlowHTMLBlocks(t *testing.T) {
	pages := flowHTML(t, sampleHTML, HTMLOptions{})
	text := pages[0].Text()

	for _, want := range []string{"Chapter One", "stormy", "first item", "nested", "raw   spacing", "Ada"} {
		if !strings.Contains(text, want) {
			t.Fatalf("page text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "ignored") || strings.Contains(text, "color:red") {
		t.Fatalf("head content leaked into page text:\n%s", text)
	}
}

func TestFlowHTMLStyles(t *testing.T) {
	pages := flowHTML(t, sampleHTML, HTMLOptions{})
	var sawBold, sawItalic, sawLink, sawMonoLine bool
	for _, r := range pages[0].Runs() {
		switch {
		case strings.Contains(r.Text, "dark") && r.Style.Bold:
			sawBold = true
		case strings.Contains(r.Text, "stormy") && r.Style.Italic:
			sawItalic = true
		case r.Style.Link == "http://example.com/ref":
			sawLink = true
		case strings.Contains(r.Text, "raw") && r.Style.Mono:
			sawMonoLine = true
		}
	}
	if !sawBold || !sawItalic || !sawLink || !sawMonoLine {
		t.Fatalf("styles lost: bold=%v italic=%v link=%v mono=%v", sawBold, sawItalic, sawLink, sawMonoLine)
	}
}

func TestFlowHTMLListMarkers(t *testing.T) {
	pages := flowHTML(t, `<ol start="3"><li>third</li><li>fourth</li></ol>`, HTMLOptions{})
	text := pages[0].Text()
	if !strings.Contains(text, "3.") || !strings.Contains(text, "4.") {
		t.Fatalf("ordered list markers missing:\n%s", text)
	}
}

func TestFlowHTMLImageResolver(t *testing.T) {
	var asked string
	resolver := func(src string) image.Image {
		asked = src
		return image.NewRGBA(image.Rect(0, 0, 40, 30))
	}
	flowHTML(t, `<p>before</p><img src="images/cover.png"><p>after</p>`, HTMLOptions{ResolveImage: resolver})
	if asked != "images/cover.png" {
		t.Fatalf("resolver asked for %q", asked)
	}
}

func TestFlowHTMLBareText(t *testing.T) {
	pages := flowHTML(t, `just some text without any block element`, HTMLOptions{})
	if !strings.Contains(pages[0].Text(), "just some text") {
		t.Fatalf("bare text lost:\n%s", pages[0].Text())
	}
}
