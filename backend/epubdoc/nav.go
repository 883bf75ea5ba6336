package epubdoc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// navEntry is a raw navigation entry before href-to-page resolution.
type navEntry struct {
	Title    string
	Href     string
	Children []navEntry
}

type ncxDocument struct {
	XMLName xml.Name `xml:"ncx"`
	NavMap  struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// loadNav locates and parses the navigation document: the manifest item
// with the nav property, else a non-linear spine item, else the NCX.
func (d *Document) loadNav(zr *zip.Reader) []navEntry {
	if item := d.findNavItem(); item != nil {
		navPath := resolveHref(d.baseDir, item.Href)
		if content, err := readZipFile(zr, navPath); err == nil {
			if entries := parseNavXHTML(content); entries != nil {
				d.navDir = dirOf(navPath)
				return entries
			}
		}
	}
	for _, si := range d.pkg.Spine {
		if si.Linear {
			continue
		}
		item, ok := d.pkg.Manifest[si.IDRef]
		if !ok {
			continue
		}
		navPath := resolveHref(d.baseDir, item.Href)
		if content, err := readZipFile(zr, navPath); err == nil {
			if entries := parseNavXHTML(content); entries != nil {
				d.navDir = dirOf(navPath)
				return entries
			}
		}
	}
	if item := d.findNCX(); item != nil {
		navPath := resolveHref(d.baseDir, item.Href)
		if content, err := readZipFile(zr, navPath); err == nil {
			if entries := parseNCX(content); entries != nil {
				d.navDir = dirOf(navPath)
				return entries
			}
		}
	}
	return nil
}

func dirOf(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

func (d *Document) findNavItem() *manifestItem {
	for _, item := range d.pkg.Manifest {
		for _, prop := range item.Properties {
			if prop == "nav" {
				it := item
				return &it
			}
		}
	}
	return nil
}

func (d *Document) findNCX() *manifestItem {
	if d.pkg.NCXID != "" {
		if item, ok := d.pkg.Manifest[d.pkg.NCXID]; ok {
			return &item
		}
	}
	for _, item := range d.pkg.Manifest {
		if item.MediaType == "application/x-dtbncx+xml" {
			it := item
			return &it
		}
	}
	return nil
}

// parseNavXHTML extracts the toc <nav> element's <ol> tree from an
// EPUB 3 navigation document.
func parseNavXHTML(content []byte) []navEntry {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil
	}

	var findNav func(*html.Node) *html.Node
	findNav = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "nav" {
			for _, attr := range n.Attr {
				if (attr.Key == "epub:type" || attr.Key == "type") && strings.Contains(attr.Val, "toc") {
					return n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := findNav(c); found != nil {
				return found
			}
		}
		return nil
	}
	nav := findNav(root)
	if nav == nil {
		return nil
	}

	var findOL func(*html.Node) *html.Node
	findOL = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "ol" {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := findOL(c); found != nil {
				return found
			}
		}
		return nil
	}
	ol := findOL(nav)
	if ol == nil {
		return nil
	}
	return parseOLEntries(ol)
}

func parseOLEntries(ol *html.Node) []navEntry {
	var entries []navEntry
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			if e := parseLIEntry(c); e.Title != "" || e.Href != "" {
				entries = append(entries, e)
			}
		}
	}
	return entries
}

func parseLIEntry(li *html.Node) navEntry {
	var entry navEntry
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "a":
			entry.Title = nodeText(c)
			for _, attr := range c.Attr {
				if attr.Key == "href" {
					entry.Href = attr.Val
				}
			}
		case "span":
			if entry.Title == "" {
				entry.Title = nodeText(c)
			}
		case "ol":
			entry.Children = parseOLEntries(c)
		}
	}
	return entry
}

// parseNCX parses an EPUB 2 NCX document. The decoder is charset-aware
// since NCX files are not always UTF-8.
func parseNCX(content []byte) []navEntry {
	var ncx ncxDocument
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&ncx); err != nil {
		return nil
	}
	return convertNavPoints(ncx.NavMap.NavPoints)
}

func convertNavPoints(points []ncxNavPoint) []navEntry {
	entries := make([]navEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, navEntry{
			Title:    strings.TrimSpace(p.Label),
			Href:     p.Content.Src,
			Children: convertNavPoints(p.Children),
		})
	}
	return entries
}

func nodeText(n *html.Node) string {
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
	return strings.TrimSpace(b.String())
}

// hrefDocPath strips the fragment and resolves the href against the
// directory of the document it appears in.
func hrefDocPath(fromDir, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		return ""
	}
	return path.Join(fromDir, href)
}
