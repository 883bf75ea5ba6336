package save

import (
	"testing"

	"github.com/mgmeyers/unipdf/v3/core"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/staging"
)

func annotDict(subtype string, llx, lly, urx, ury float64) *core.PdfObjectDictionary {
	d := core.MakeDict()
	d.Set("Type", core.MakeName("Annot"))
	d.Set("Subtype", core.MakeName(subtype))
	d.Set("Rect", core.MakeArrayFromFloats([]float64{llx, lly, urx, ury}))
	return d
}

func refsFor(dicts ...*core.PdfObjectDictionary) []*annotRef {
	refs := make([]*annotRef, 0, len(dicts))
	for _, d := range dicts {
		ref := &annotRef{obj: d, dict: d}
		if name, ok := core.GetNameVal(d.Get("Subtype")); ok {
			ref.subtype = name
		}
		if r, ok := rectFromDict(d); ok {
			ref.rect = r
		}
		refs = append(refs, ref)
	}
	return refs
}

func TestMatchAnnotationExact(t *testing.T) {
	refs := refsFor(
		annotDict("Text", 10, 10, 30, 30),
		annotDict("Highlight", 10, 10, 30, 30),
		annotDict("Text", 50, 50, 70, 70),
	)
	want := toR2(geo.FromLLUR(50, 50, 70, 70))
	ref, count := matchAnnotation(refs, "Text", want)
	if ref == nil || count != 1 {
		t.Fatalf("matchAnnotation = (%v, %d), want one match", ref, count)
	}
	if !rectsEqual(ref.rect, want) {
		t.Fatalf("matched wrong annotation: %+v", ref.rect)
	}
}

func TestMatchAnnotationEpsilonFallback(t *testing.T) {
	refs := refsFor(annotDict("Square", 10.0000004, 10, 30, 30))
	ref, count := matchAnnotation(refs, "Square", toR2(geo.FromLLUR(10, 10, 30, 30)))
	if ref == nil || count != 1 {
		t.Fatalf("epsilon fallback did not match: count=%d", count)
	}
}

func TestMatchAnnotationAmbiguousSkips(t *testing.T) {
	refs := refsFor(
		annotDict("Text", 10, 10, 30, 30),
		annotDict("Text", 10, 10, 30, 30),
	)
	ref, count := matchAnnotation(refs, "Text", toR2(geo.FromLLUR(10, 10, 30, 30)))
	if ref != nil {
		t.Fatal("ambiguous identity must not match")
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestMatchAnnotationClaimsOnce(t *testing.T) {
	refs := refsFor(annotDict("Text", 10, 10, 30, 30))
	key := toR2(geo.FromLLUR(10, 10, 30, 30))
	if ref, _ := matchAnnotation(refs, "Text", key); ref == nil {
		t.Fatal("first match failed")
	}
	if ref, _ := matchAnnotation(refs, "Text", key); ref != nil {
		t.Fatal("claimed annotation matched twice")
	}
}

func TestMatchAnnotationNoCandidate(t *testing.T) {
	refs := refsFor(annotDict("Text", 10, 10, 30, 30))
	ref, count := matchAnnotation(refs, "Highlight", toR2(geo.FromLLUR(10, 10, 30, 30)))
	if ref != nil || count != 0 {
		t.Fatalf("matchAnnotation = (%v, %d), want no candidate", ref, count)
	}
}

func TestApplyModifyContentsColorFlags(t *testing.T) {
	d := annotDict("Text", 10, 10, 30, 30)
	d.Set("F", core.MakeInteger(flagLocked))

	contents := "hello"
	hidden := true
	readOnly := true
	applyModify(d, staging.PropertySet{
		Contents: &contents,
		Color:    &doc.Color{R: 1, G: 0.5, B: 0},
		Hidden:   &hidden,
		ReadOnly: &readOnly,
	})

	if got, ok := core.GetStringVal(d.Get("Contents")); !ok || got != "hello" {
		t.Fatalf("Contents = %q, ok=%v", got, ok)
	}
	c, ok := core.GetArray(d.Get("C"))
	if !ok {
		t.Fatal("missing /C")
	}
	vals, _ := c.ToFloat64Array()
	if len(vals) != 3 || vals[0] != 1 || vals[1] != 0.5 || vals[2] != 0 {
		t.Fatalf("/C = %v", vals)
	}
	f, _ := core.GetIntVal(d.Get("F"))
	if f != flagLocked|flagHidden|flagReadOnly {
		t.Fatalf("/F = %d, want locked|hidden|readonly", f)
	}
	if d.Get("M") == nil {
		t.Fatal("modification date not stamped")
	}
}

func TestSetFlagBitClears(t *testing.T) {
	d := core.MakeDict()
	d.Set("F", core.MakeInteger(flagHidden|flagReadOnly))
	setFlagBit(d, flagHidden, false)
	f, _ := core.GetIntVal(d.Get("F"))
	if f != flagReadOnly {
		t.Fatalf("/F = %d, want %d", f, flagReadOnly)
	}
}

func TestBuildAnnotationInk(t *testing.T) {
	obj := buildAnnotation(doc.Annotation{
		Page:     0,
		Type:     doc.AnnotInk,
		Rect:     geo.FromLLUR(0, 0, 100, 50),
		Contents: "scribble",
		Opacity:  0.5,
		InkPaths: [][]geo.Point{{{X: 1, Y: 2}, {X: 3, Y: 4}}},
	})
	d, ok := core.GetDict(obj)
	if !ok {
		t.Fatal("created annotation is not a dictionary")
	}
	if name, _ := core.GetNameVal(d.Get("Subtype")); name != "Ink" {
		t.Fatalf("Subtype = %q", name)
	}
	rect, ok := core.GetArray(d.Get("Rect"))
	if !ok {
		t.Fatal("missing /Rect")
	}
	if vals, _ := rect.ToFloat64Array(); len(vals) != 4 || vals[2] != 100 {
		t.Fatalf("Rect = %v", vals)
	}
	ink, ok := core.GetArray(core.TraceToDirectObject(d.Get("InkList")))
	if !ok || ink.Len() != 1 {
		t.Fatalf("InkList = %v", ink)
	}
	stroke, ok := core.GetArray(ink.Get(0))
	if !ok {
		t.Fatal("missing ink stroke array")
	}
	if vals, _ := stroke.ToFloat64Array(); len(vals) != 4 || vals[3] != 4 {
		t.Fatalf("stroke = %v", vals)
	}
	if ca, err := core.GetNumberAsFloat(d.Get("CA")); err != nil || ca != 0.5 {
		t.Fatalf("CA = %v err=%v", ca, err)
	}
}

func TestDescribeRecord(t *testing.T) {
	rec := staging.Record{
		Kind:     staging.RecordModifyAnnotation,
		Page:     1,
		Snapshot: doc.Annotation{Type: doc.AnnotHighlight},
	}
	if got := describeRecord(rec); got != "modify Highlight annotation on page 2" {
		t.Fatalf("describeRecord = %q", got)
	}
	rec = staging.Record{Kind: staging.RecordSetFormField, FieldName: "name"}
	if got := describeRecord(rec); got != `set form field "name"` {
		t.Fatalf("describeRecord = %q", got)
	}
}
