package pdfdoc

import (
	"github.com/mgmeyers/unipdf/v3/core"

	"github.com/wudi/docview/doc"
)

// EmbeddedFiles lists document-level attachments from the catalog's
// /Names /EmbeddedFiles name tree.
func (d *Document) EmbeddedFiles() ([]doc.EmbeddedFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []doc.EmbeddedFile
	err := d.walkEmbedded(func(name string, spec *core.PdfObjectDictionary) bool {
		ef := doc.EmbeddedFile{Name: name}
		if desc, ok := core.GetStringVal(spec.Get("Desc")); ok {
			ef.Description = desc
		}
		if stream := embeddedStream(spec); stream != nil {
			if n, ok := core.GetIntVal(stream.PdfObjectDictionary.Get("DL")); ok {
				ef.Size = int(n)
			} else if data, err := core.DecodeStream(stream); err == nil {
				ef.Size = len(data)
			}
		}
		out = append(out, ef)
		return true
	})
	return out, err
}

// ExtractEmbeddedFile returns the decoded bytes of the named attachment.
func (d *Document) ExtractEmbeddedFile(name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var data []byte
	var found bool
	err := d.walkEmbedded(func(entry string, spec *core.PdfObjectDictionary) bool {
		if entry != name {
			return true
		}
		found = true
		stream := embeddedStream(spec)
		if stream == nil {
			return false
		}
		if decoded, err := core.DecodeStream(stream); err == nil {
			data = decoded
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if !found || data == nil {
		return nil, doc.Errorf(doc.KindInvalidArgument, "pdf.embedded", "no embedded file %q", name)
	}
	return data, nil
}

// walkEmbedded traverses the embedded-files name tree, calling visit for
// each (name, filespec) pair until visit returns false.
func (d *Document) walkEmbedded(visit func(name string, spec *core.PdfObjectDictionary) bool) error {
	trailer, err := d.reader.GetTrailer()
	if err != nil {
		return doc.E(doc.KindCorrupt, "pdf.embedded", d.path, err)
	}
	root, ok := core.GetDict(trailer.Get("Root"))
	if !ok {
		return nil
	}
	names, ok := core.GetDict(root.Get("Names"))
	if !ok {
		return nil
	}
	tree, ok := core.GetDict(names.Get("EmbeddedFiles"))
	if !ok {
		return nil
	}
	walkNameTree(tree, visit)
	return nil
}

// walkNameTree descends a PDF name tree: leaves carry /Names arrays of
// [name, value] pairs, interior nodes carry /Kids.
func walkNameTree(node *core.PdfObjectDictionary, visit func(string, *core.PdfObjectDictionary) bool) bool {
	if pairs, ok := core.GetArray(node.Get("Names")); ok {
		els := pairs.Elements()
		for i := 0; i+1 < len(els); i += 2 {
			name, ok := core.GetStringVal(core.TraceToDirectObject(els[i]))
			if !ok {
				continue
			}
			spec, ok := core.GetDict(els[i+1])
			if !ok {
				continue
			}
			if !visit(name, spec) {
				return false
			}
		}
	}
	if kids, ok := core.GetArray(node.Get("Kids")); ok {
		for _, kid := range kids.Elements() {
			if kd, ok := core.GetDict(kid); ok {
				if !walkNameTree(kd, visit) {
					return false
				}
			}
		}
	}
	return true
}

// embeddedStream digs the /EF /F stream out of a filespec dictionary.
func embeddedStream(spec *core.PdfObjectDictionary) *core.PdfObjectStream {
	ef, ok := core.GetDict(spec.Get("EF"))
	if !ok {
		return nil
	}
	for _, key := range []string{"F", "UF"} {
		if stream, ok := core.GetStream(ef.Get(key)); ok {
			return stream
		}
	}
	return nil
}
