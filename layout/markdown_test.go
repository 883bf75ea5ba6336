package layout

import (
	"strings"
	"testing"
)

const sampleMarkdown = "# Heading\n\n" +
	"A paragraph with *emphasis*, **strong**, `code` and a " +
	"[link](https://example.com/doc).\n\n" +
	"- alpha\n" +
	"- beta\n" +
	"  1. nested one\n\n" +
	"```\nfunc main() {}\n```\n\n" +
	"---\n\n" +
	"> a quoted line\n"

func flowMarkdown(t *testing.T, src string) []*Page {
	t.Helper()
	f := newFlow(t)
	if err := FlowMarkdown(f, []byte(src)); err != nil {
		t.Fatalf("FlowMarkdown: %v", err)
	}
	return f.Pages()
}

func TestFlowMarkdownBlocks(t *testing.T) {
	pages := flowMarkdown(t, sampleMarkdown)
	text := pages[0].Text()
	for _, want := range []string{"Heading", "emphasis", "alpha", "nested one", "func main() {}", "a quoted line"} {
		if !strings.Contains(text, want) {
			t.Fatalf("page text missing %q:\n%s", want, text)
		}
	}
}

func TestFlowMarkdownStyles(t *testing.T) {
	pages := flowMarkdown(t, sampleMarkdown)
	var sawHeading, sawItalic, sawBold, sawCode, sawLink bool
	for _, r := range pages[0].Runs() {
		switch {
		case strings.Contains(r.Text, "Heading") && r.Style.Bold && r.Style.Size > 20:
			sawHeading = true
		case strings.Contains(r.Text, "emphasis") && r.Style.Italic:
			sawItalic = true
		case strings.Contains(r.Text, "strong") && r.Style.Bold:
			sawBold = true
		case strings.Contains(r.Text, "code") && r.Style.Mono:
			sawCode = true
		case r.Style.Link == "https://example.com/doc":
			sawLink = true
		}
	}
	if !sawHeading || !sawItalic || !sawBold || !sawCode || !sawLink {
		t.Fatalf("styles lost: heading=%v italic=%v bold=%v code=%v link=%v",
			sawHeading, sawItalic, sawBold, sawCode, sawLink)
	}
}

func TestFlowMarkdownOrderedList(t *testing.T) {
	pages := flowMarkdown(t, "5. five\n6. six\n")
	text := pages[0].Text()
	if !strings.Contains(text, "5.") || !strings.Contains(text, "6.") {
		t.Fatalf("ordered markers missing:\n%s", text)
	}
}
