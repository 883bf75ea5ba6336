package save

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/mgmeyers/unipdf/v3/core"
	"github.com/mgmeyers/unipdf/v3/model"

	"github.com/wudi/docview/geo"
)

// rectEpsilon is the fallback tolerance when rectangles do not match
// exactly. It exists only for identity matching; render keys never
// tolerate floating error.
const rectEpsilon = 1e-6

// annotRef is one writer-side annotation: the element stored in the
// page's /Annots array plus its resolved dictionary and the identity
// tuple used for reconciliation.
type annotRef struct {
	obj     core.PdfObject
	dict    *core.PdfObjectDictionary
	subtype string
	rect    r2.Rect
	claimed bool
}

// pageAnnotations walks the page dict's /Annots array. The returned
// array is the live object, so removals rebuilt into it are what the
// writer serializes.
func pageAnnotations(page *model.PdfPage) (*core.PdfObjectArray, []*annotRef) {
	dict := page.GetPageDict()
	arr, ok := core.GetArray(core.TraceToDirectObject(dict.Get("Annots")))
	if !ok {
		return nil, nil
	}
	refs := make([]*annotRef, 0, arr.Len())
	for _, el := range arr.Elements() {
		d, ok := core.GetDict(el)
		if !ok {
			continue
		}
		ref := &annotRef{obj: el, dict: d}
		if name, ok := core.GetNameVal(d.Get("Subtype")); ok {
			ref.subtype = name
		}
		if r, ok := rectFromDict(d); ok {
			ref.rect = r
		}
		refs = append(refs, ref)
	}
	return arr, refs
}

// rectFromDict reads the /Rect array into an r2 rectangle.
func rectFromDict(d *core.PdfObjectDictionary) (r2.Rect, bool) {
	arr, ok := core.GetArray(core.TraceToDirectObject(d.Get("Rect")))
	if !ok {
		return r2.Rect{}, false
	}
	vals, err := arr.ToFloat64Array()
	if err != nil || len(vals) != 4 {
		return r2.Rect{}, false
	}
	return r2.RectFromPoints(
		r2.Point{X: vals[0], Y: vals[1]},
		r2.Point{X: vals[2], Y: vals[3]},
	), true
}

// toR2 converts a page-space rectangle into the matcher's form.
func toR2(r geo.Rect) r2.Rect {
	return r2.RectFromPoints(
		r2.Point{X: r.Left(), Y: r.Bottom()},
		r2.Point{X: r.Right(), Y: r.Top()},
	)
}

// rectsEqual is exact numeric equality on all four bounds.
func rectsEqual(a, b r2.Rect) bool {
	return a.X.Lo == b.X.Lo && a.X.Hi == b.X.Hi && a.Y.Lo == b.Y.Lo && a.Y.Hi == b.Y.Hi
}

// rectsClose allows the epsilon fallback.
func rectsClose(a, b r2.Rect) bool {
	return math.Abs(a.X.Lo-b.X.Lo) <= rectEpsilon &&
		math.Abs(a.X.Hi-b.X.Hi) <= rectEpsilon &&
		math.Abs(a.Y.Lo-b.Y.Lo) <= rectEpsilon &&
		math.Abs(a.Y.Hi-b.Y.Hi) <= rectEpsilon
}

// matchAnnotation locates the single unclaimed annotation with the given
// subtype and rectangle. Exact equality is tried first, then the epsilon
// fallback. Zero or multiple candidates return (nil, count): the caller
// must skip the mutation rather than guess.
func matchAnnotation(refs []*annotRef, subtype string, rect r2.Rect) (*annotRef, int) {
	for _, pass := range []func(a, b r2.Rect) bool{rectsEqual, rectsClose} {
		var found *annotRef
		count := 0
		for _, ref := range refs {
			if ref.claimed || ref.subtype != subtype {
				continue
			}
			if pass(ref.rect, rect) {
				found = ref
				count++
			}
		}
		if count == 1 {
			found.claimed = true
			return found, 1
		}
		if count > 1 {
			return nil, count
		}
	}
	return nil, 0
}

// pageAnnots tracks the /Annots array of one writer-side page across
// removals and insertions.
type pageAnnots struct {
	dict *core.PdfObjectDictionary
	arr  *core.PdfObjectArray
	refs []*annotRef
}

func newPageAnnots(page *model.PdfPage) *pageAnnots {
	arr, refs := pageAnnotations(page)
	return &pageAnnots{dict: page.GetPageDict(), arr: arr, refs: refs}
}

// remove rebuilds the /Annots array without the given element. Elements
// are compared by identity, not value, so equal-looking dictionaries on
// the same page cannot be removed by accident.
func (pa *pageAnnots) remove(obj core.PdfObject) {
	if pa.arr == nil {
		return
	}
	kept := make([]core.PdfObject, 0, pa.arr.Len())
	for _, el := range pa.arr.Elements() {
		if el != obj {
			kept = append(kept, el)
		}
	}
	pa.arr = core.MakeArray(kept...)
	pa.dict.Set("Annots", pa.arr)
}

// append adds a newly created annotation object, materializing the
// /Annots array when the page had none.
func (pa *pageAnnots) append(obj core.PdfObject) {
	if pa.arr == nil {
		pa.arr = core.MakeArray()
		pa.dict.Set("Annots", pa.arr)
	}
	pa.arr.Append(obj)
}
