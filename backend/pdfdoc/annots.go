package pdfdoc

import (
	"github.com/mgmeyers/unipdf/v3/core"
	"github.com/mgmeyers/unipdf/v3/model"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

// Flag bits of the annotation /F entry as the save pipeline writes them.
const (
	flagReadOnly = 1
	flagHidden   = 2
	flagLocked   = 128
)

// AnnotationsOnPage converts the page's annotations into backend values.
// Popup and Widget annotations belong to other surfaces and are skipped.
func (d *Document) AnnotationsOnPage(index int) ([]doc.Annotation, error) {
	if index < 0 || index >= len(d.pages) {
		return nil, doc.Errorf(doc.KindInvalidArgument, "pdf.annotations", "page %d of %d", index, len(d.pages))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	annots, err := d.pages[index].model.GetAnnotations()
	if err != nil {
		return nil, doc.E(doc.KindCorrupt, "pdf.annotations", d.path, err)
	}

	var out []doc.Annotation
	for _, a := range annots {
		dict := annotationDict(a)
		if dict == nil {
			continue
		}
		subtype, _ := core.GetNameVal(dict.Get("Subtype"))
		typ := doc.AnnotationType(subtype)
		switch typ {
		case doc.AnnotPopup, doc.AnnotWidget, doc.AnnotUnknown:
			continue
		}

		ann := doc.Annotation{
			Page: index,
			Type: typ,
			Rect: rectFromObject(a.Rect),
		}
		if a.Contents != nil {
			ann.Contents = a.Contents.String()
		}
		if title, ok := core.GetStringVal(dict.Get("T")); ok {
			ann.Author = title
		}
		if a.M != nil {
			if t, ok := parsePDFDate(a.M.String()); ok {
				ann.Modified = t
			}
		}
		if f, ok := core.GetIntVal(a.F); ok {
			ann.Hidden = f&flagHidden != 0
			ann.ReadOnly = f&flagReadOnly != 0
			ann.Locked = f&flagLocked != 0
		}
		if c := colorFromObject(dict.Get("C")); c != nil {
			ann.Color = c
		}
		ann.Opacity = 1
		if ca, err := core.GetNumberAsFloat(core.TraceToDirectObject(dict.Get("CA"))); err == nil && ca > 0 {
			ann.Opacity = ca
		}

		switch ctx := a.GetContext().(type) {
		case *model.PdfAnnotationText:
			if name, ok := core.GetNameVal(ctx.Name); ok {
				ann.IconName = name
			}
		case *model.PdfAnnotationInk:
			ann.InkPaths = inkPaths(ctx.InkList)
		case *model.PdfAnnotationLine:
			ann.LinePoints = pointList(ctx.L)
		case *model.PdfAnnotationPolygon:
			ann.LinePoints = pointList(ctx.Vertices)
		case *model.PdfAnnotationPolyLine:
			ann.LinePoints = pointList(ctx.Vertices)
		case *model.PdfAnnotationLink:
			if action, ok := core.GetDict(ctx.A); ok {
				if uri, ok := core.GetStringVal(action.Get("URI")); ok {
					ann.URI = uri
				}
			}
		}
		out = append(out, ann)
	}
	return out, nil
}

func annotationDict(a *model.PdfAnnotation) *core.PdfObjectDictionary {
	if a == nil {
		return nil
	}
	dict, _ := core.GetDict(a.GetContainingPdfObject())
	return dict
}

// colorFromObject reads a /C array. Gray and CMYK component counts are
// converted to RGB.
func colorFromObject(obj core.PdfObject) *doc.Color {
	arr, ok := core.GetArray(core.TraceToDirectObject(obj))
	if !ok {
		return nil
	}
	vals, err := arr.ToFloat64Array()
	if err != nil {
		return nil
	}
	switch len(vals) {
	case 1:
		return &doc.Color{R: vals[0], G: vals[0], B: vals[0]}
	case 3:
		return &doc.Color{R: vals[0], G: vals[1], B: vals[2]}
	case 4:
		r := (1 - vals[0]) * (1 - vals[3])
		g := (1 - vals[1]) * (1 - vals[3])
		b := (1 - vals[2]) * (1 - vals[3])
		return &doc.Color{R: r, G: g, B: b}
	}
	return nil
}

// inkPaths reads an /InkList array of flat coordinate arrays.
func inkPaths(obj core.PdfObject) [][]geo.Point {
	outer, ok := core.GetArray(core.TraceToDirectObject(obj))
	if !ok {
		return nil
	}
	var paths [][]geo.Point
	for _, el := range outer.Elements() {
		if pts := coordPairs(el); len(pts) > 0 {
			paths = append(paths, pts)
		}
	}
	return paths
}

func pointList(obj core.PdfObject) []geo.Point {
	return coordPairs(obj)
}

func coordPairs(obj core.PdfObject) []geo.Point {
	arr, ok := core.GetArray(core.TraceToDirectObject(obj))
	if !ok {
		return nil
	}
	vals, err := arr.ToFloat64Array()
	if err != nil {
		return nil
	}
	pts := make([]geo.Point, 0, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		pts = append(pts, geo.Point{X: vals[i], Y: vals[i+1]})
	}
	return pts
}
