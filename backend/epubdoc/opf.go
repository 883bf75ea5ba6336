package epubdoc

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/wudi/docview/doc"
)

// pkg is the parsed OPF package document.
type pkg struct {
	Version  string
	Meta     metadata
	Manifest map[string]manifestItem // keyed by id
	Spine    []spineItem
	NCXID    string
}

type metadata struct {
	Title       string
	Creators    []string
	Language    string
	Identifier  string
	Publisher   string
	Description string
	Subjects    []string
	Date        string
	Modified    time.Time
}

type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

type spineItem struct {
	IDRef  string
	Linear bool
}

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Title       []string `xml:"title"`
		Creator     []string `xml:"creator"`
		Language    []string `xml:"language"`
		Identifier  []string `xml:"identifier"`
		Publisher   []string `xml:"publisher"`
		Description []string `xml:"description"`
		Subject     []string `xml:"subject"`
		Date        []string `xml:"date"`
		Meta        []struct {
			Property string `xml:"property,attr"`
			Value    string `xml:",chardata"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// parseContainer reads META-INF/container.xml and returns the OPF path.
func parseContainer(zr *zip.Reader, path string) (string, error) {
	data, err := readZipFile(zr, "META-INF/container.xml")
	if err != nil {
		return "", doc.Errorf(doc.KindCorrupt, "epub.open", "%s: missing META-INF/container.xml", path)
	}
	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", doc.E(doc.KindCorrupt, "epub.open", path, err)
	}
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" && (rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "") {
			return rf.FullPath, nil
		}
	}
	if len(c.Rootfiles.Rootfile) > 0 && c.Rootfiles.Rootfile[0].FullPath != "" {
		return c.Rootfiles.Rootfile[0].FullPath, nil
	}
	return "", doc.Errorf(doc.KindCorrupt, "epub.open", "%s: container.xml names no rootfile", path)
}

// parseOPF reads the package document. The second return is the OPF base
// directory for resolving relative hrefs.
func parseOPF(zr *zip.Reader, opfPath, filePath string) (*pkg, string, error) {
	data, err := readZipFile(zr, opfPath)
	if err != nil {
		return nil, "", doc.Errorf(doc.KindCorrupt, "epub.open", "%s: missing package document %q", filePath, opfPath)
	}
	var opf opfPackage
	if err := xml.Unmarshal(data, &opf); err != nil {
		return nil, "", doc.E(doc.KindCorrupt, "epub.open", filePath, err)
	}

	baseDir := path.Dir(opfPath)
	if baseDir == "." {
		baseDir = ""
	}

	p := &pkg{
		Version:  opf.Version,
		Manifest: make(map[string]manifestItem, len(opf.Manifest.Items)),
		NCXID:    opf.Spine.Toc,
	}

	m := &opf.Metadata
	p.Meta = metadata{
		Title:       first(m.Title),
		Language:    first(m.Language),
		Identifier:  first(m.Identifier),
		Publisher:   first(m.Publisher),
		Description: first(m.Description),
		Date:        first(m.Date),
	}
	for _, c := range m.Creator {
		if s := strings.TrimSpace(c); s != "" {
			p.Meta.Creators = append(p.Meta.Creators, s)
		}
	}
	for _, s := range m.Subject {
		if subj := strings.TrimSpace(s); subj != "" {
			p.Meta.Subjects = append(p.Meta.Subjects, subj)
		}
	}
	for _, mt := range m.Meta {
		if mt.Property == "dcterms:modified" {
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(mt.Value)); err == nil {
				p.Meta.Modified = t
			}
		}
	}

	for _, item := range opf.Manifest.Items {
		mi := manifestItem{ID: item.ID, Href: item.Href, MediaType: item.MediaType}
		if item.Properties != "" {
			mi.Properties = strings.Fields(item.Properties)
		}
		p.Manifest[item.ID] = mi
	}
	for _, ref := range opf.Spine.ItemRefs {
		p.Spine = append(p.Spine, spineItem{IDRef: ref.IDRef, Linear: ref.Linear != "no"})
	}
	if len(p.Spine) == 0 {
		return nil, "", doc.Errorf(doc.KindCorrupt, "epub.open", "%s: empty spine", filePath)
	}
	return p, baseDir, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return strings.TrimSpace(ss[0])
}

// resolveHref joins a manifest href onto the OPF base directory,
// URL-decoding percent escapes.
func resolveHref(baseDir, href string) string {
	if decoded, err := url.QueryUnescape(href); err == nil {
		href = decoded
	}
	if baseDir == "" {
		return href
	}
	return path.Join(baseDir, href)
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, io.ErrUnexpectedEOF
}
