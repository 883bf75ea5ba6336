package staging

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
)

// fakeDoc is an in-memory backend with fixed annotations and fields.
type fakeDoc struct {
	caps   doc.CapabilitySet
	annots map[int][]doc.Annotation
	fields []doc.FormField
}

func (f *fakeDoc) Path() string                    { return "/tmp/fake.pdf" }
func (f *fakeDoc) Format() doc.Format              { return doc.FormatPDF }
func (f *fakeDoc) Version() string                 { return "1.7" }
func (f *fakeDoc) Capabilities() doc.CapabilitySet { return f.caps }
func (f *fakeDoc) Metadata() doc.Metadata          { return doc.Metadata{} }
func (f *fakeDoc) PageCount() int                  { return 3 }
func (f *fakeDoc) Page(int) doc.Page               { return nil }
func (f *fakeDoc) TOC() []doc.TOCEntry             { return nil }
func (f *fakeDoc) AnnotationsOnPage(p int) ([]doc.Annotation, error) {
	return f.annots[p], nil
}
func (f *fakeDoc) FormFields() ([]doc.FormField, error)       { return f.fields, nil }
func (f *fakeDoc) EmbeddedFiles() ([]doc.EmbeddedFile, error) { return nil, nil }
func (f *fakeDoc) ExtractEmbeddedFile(string) ([]byte, error) {
	return nil, errors.New("none")
}
func (f *fakeDoc) Encrypted() bool       { return false }
func (f *fakeDoc) HasRestrictions() bool { return false }
func (f *fakeDoc) Close() error          { return nil }

var _ doc.Page = fakePage{}

type fakePage struct{}

func (fakePage) Index() int     { return 0 }
func (fakePage) Size() geo.Size { return geo.Size{} }
func (fakePage) Rotation() int  { return 0 }
func (fakePage) Label() string  { return "" }
func (fakePage) RenderImage(context.Context, doc.RenderOptions) (image.Image, error) {
	return nil, nil
}
func (fakePage) Text() (string, error)                                   { return "", nil }
func (fakePage) TextBoxes() ([]doc.TextBox, error)                       { return nil, nil }
func (fakePage) Search(string, doc.SearchOptions) ([]doc.TextBox, error) { return nil, nil }
func (fakePage) Links() ([]doc.Link, error)                              { return nil, nil }
func (fakePage) HitTest(geo.Point) (*doc.Link, error)                    { return nil, nil }

func newFake() *fakeDoc {
	yellow := doc.Color{R: 1, G: 0.9, B: 0}
	return &fakeDoc{
		caps: doc.NewCapabilitySet(doc.CapAnnotations, doc.CapForms),
		annots: map[int][]doc.Annotation{
			0: {
				{Page: 0, Type: doc.AnnotText, Rect: geo.Rect{X: 10, Y: 10, Width: 20, Height: 20},
					Contents: "first note", Color: &yellow},
				{Page: 0, Type: doc.AnnotHighlight, Rect: geo.Rect{X: 50, Y: 50, Width: 80, Height: 12},
					Contents: "highlighted"},
			},
		},
		fields: []doc.FormField{
			{Name: "name", FullName: "name", Kind: doc.FieldText, Required: true},
			{Name: "agree", FullName: "agree", Kind: doc.FieldButton, ButtonKind: doc.ButtonCheckBox},
			{Name: "color", FullName: "color", Kind: doc.FieldChoice,
				Options: []string{"red", "green", "blue"}},
		},
	}
}

func TestProjectionEqualWithEmptyLog(t *testing.T) {
	fake := newFake()
	s := New(fake, nil)
	got, err := s.AnnotationsOnPage(0)
	if err != nil {
		t.Fatalf("annotations: %v", err)
	}
	want := fake.annots[0]
	if len(got) != len(want) {
		t.Fatalf("got %d annotations, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Contents != want[i].Contents || got[i].Type != want[i].Type {
			t.Fatalf("annotation %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if s.Modified() {
		t.Fatal("empty log reports modified")
	}
}

func TestModifyProjectsAndCoalesces(t *testing.T) {
	s := New(newFake(), nil)
	handles, err := s.Annotations(0)
	if err != nil {
		t.Fatalf("handles: %v", err)
	}
	a := handles[0]
	if err := a.SetContents("edited"); err != nil {
		t.Fatalf("set contents: %v", err)
	}
	if !s.Modified() {
		t.Fatal("not modified after set")
	}

	projected, _ := s.AnnotationsOnPage(0)
	if projected[0].Contents != "edited" {
		t.Fatalf("projected contents = %q", projected[0].Contents)
	}
	// The backend view is untouched.
	if raw, _ := s.Document().AnnotationsOnPage(0); raw[0].Contents != "first note" {
		t.Fatalf("backend mutated: %q", raw[0].Contents)
	}

	// Second set coalesces into the same record.
	if err := a.SetContents("edited twice"); err != nil {
		t.Fatalf("second set: %v", err)
	}
	recs := s.Records()
	if len(recs) != 1 || recs[0].Kind != RecordModifyAnnotation {
		t.Fatalf("records = %+v", recs)
	}
	if *recs[0].Props.Contents != "edited twice" {
		t.Fatalf("record contents = %q", *recs[0].Props.Contents)
	}
	if recs[0].Snapshot.Contents != "first note" {
		t.Fatalf("snapshot = %+v", recs[0].Snapshot)
	}
}

func TestRevertToSnapshotDropsOverlay(t *testing.T) {
	s := New(newFake(), nil)
	handles, _ := s.Annotations(0)
	a := handles[0]
	if err := a.SetContents("edited"); err != nil {
		t.Fatal(err)
	}
	if err := a.SetContents("first note"); err != nil {
		t.Fatal(err)
	}
	if s.Modified() {
		t.Fatal("reverted edit still reports modified")
	}
	if recs := s.Records(); len(recs) != 0 {
		t.Fatalf("records = %+v", recs)
	}
}

func TestDeleteFiltersAndDropsModify(t *testing.T) {
	s := New(newFake(), nil)
	handles, _ := s.Annotations(0)
	a := handles[0]
	if err := a.SetContents("edited"); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}

	projected, _ := s.AnnotationsOnPage(0)
	if len(projected) != 1 || projected[0].Type != doc.AnnotHighlight {
		t.Fatalf("projected = %+v", projected)
	}
	recs := s.Records()
	if len(recs) != 1 || recs[0].Kind != RecordDeleteAnnotation {
		t.Fatalf("records = %+v", recs)
	}
	// Setting on a deleted annotation is rejected.
	if err := a.SetHidden(true); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("set on deleted = %v", err)
	}
}

func TestCreateAndDeleteSynthetic(t *testing.T) {
	s := New(newFake(), nil)
	a, err := s.CreateAnnotation(1, doc.AnnotText, doc.Annotation{
		Rect:     geo.Rect{X: 5, Y: 5, Width: 10, Height: 10},
		Contents: "fresh",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	projected, _ := s.AnnotationsOnPage(1)
	if len(projected) != 1 || projected[0].Contents != "fresh" {
		t.Fatalf("projected = %+v", projected)
	}

	if err := a.SetContents("fresh edited"); err != nil {
		t.Fatal(err)
	}
	recs := s.Records()
	if len(recs) != 1 || recs[0].Kind != RecordCreateAnnotation {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Created.Contents != "fresh edited" {
		t.Fatalf("created contents = %q", recs[0].Created.Contents)
	}

	if err := a.Delete(); err != nil {
		t.Fatal(err)
	}
	if s.Modified() {
		t.Fatal("deleted synthetic still reports modified")
	}
}

func TestCreateOutOfRangePage(t *testing.T) {
	s := New(newFake(), nil)
	if _, err := s.CreateAnnotation(99, doc.AnnotText, doc.Annotation{}); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("error = %v", err)
	}
}

func TestCapabilityGating(t *testing.T) {
	fake := newFake()
	fake.caps = doc.NewCapabilitySet() // image/archive style backend
	s := New(fake, nil)

	if _, err := s.CreateAnnotation(0, doc.AnnotText, doc.Annotation{}); doc.KindOf(err) != doc.KindNotSupported {
		t.Fatalf("create = %v", err)
	}
	handles, _ := s.Annotations(0)
	if err := handles[0].SetContents("x"); doc.KindOf(err) != doc.KindNotSupported {
		t.Fatalf("set = %v", err)
	}
	if err := handles[0].Delete(); doc.KindOf(err) != doc.KindNotSupported {
		t.Fatalf("delete = %v", err)
	}
	if err := s.SetFieldValue("name", "x"); doc.KindOf(err) != doc.KindNotSupported {
		t.Fatalf("field = %v", err)
	}
}

func TestSetFieldValueTyped(t *testing.T) {
	s := New(newFake(), nil)

	if err := s.SetFieldValue("name", "Ada"); err != nil {
		t.Fatalf("text: %v", err)
	}
	if err := s.SetFieldValue("name", true); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("bool into text = %v", err)
	}

	if err := s.SetFieldValue("agree", true); err != nil {
		t.Fatalf("checkbox: %v", err)
	}
	if err := s.SetFieldValue("agree", "yes"); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("string into checkbox = %v", err)
	}

	if err := s.SetFieldValue("color", 1); err != nil {
		t.Fatalf("choice index: %v", err)
	}
	f, _ := s.FormField("color")
	if f.Value.Text != "green" {
		t.Fatalf("choice value = %q", f.Value.Text)
	}
	if err := s.SetFieldValue("color", "blue"); err != nil {
		t.Fatalf("choice string: %v", err)
	}
	if err := s.SetFieldValue("color", 7); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("index out of range = %v", err)
	}
	if err := s.SetFieldValue("color", "mauve"); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("non-option = %v", err)
	}
	if err := s.SetFieldValue("missing", "x"); doc.KindOf(err) != doc.KindInvalidArgument {
		t.Fatalf("missing field = %v", err)
	}
}

func TestFieldRevertDropsOverlay(t *testing.T) {
	s := New(newFake(), nil)
	if err := s.SetFieldValue("name", "Ada"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFieldValue("name", ""); err != nil {
		t.Fatal(err)
	}
	if s.Modified() {
		t.Fatal("reverted field still reports modified")
	}
}

func TestValidateForm(t *testing.T) {
	s := New(newFake(), nil)

	err := s.ValidateForm()
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Name != "name" {
		t.Fatalf("validate = %v", err)
	}

	if err := s.SetFieldValue("name", "Ada"); err != nil {
		t.Fatal(err)
	}
	if err := s.ValidateForm(); err != nil {
		t.Fatalf("validate after fill = %v", err)
	}
}

func TestResetClearsLog(t *testing.T) {
	s := New(newFake(), nil)
	handles, _ := s.Annotations(0)
	if err := handles[0].SetContents("edited"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateAnnotation(0, doc.AnnotText, doc.Annotation{}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFieldValue("name", "Ada"); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if s.Modified() {
		t.Fatal("modified after reset")
	}
	if recs := s.Records(); len(recs) != 0 {
		t.Fatalf("records after reset = %+v", recs)
	}
	projected, _ := s.AnnotationsOnPage(0)
	if projected[0].Contents != "first note" {
		t.Fatalf("projection after reset = %+v", projected[0])
	}
}

func TestRecordsOrdering(t *testing.T) {
	s := New(newFake(), nil)
	handles, _ := s.Annotations(0)
	if err := handles[1].SetHidden(true); err != nil {
		t.Fatal(err)
	}
	if err := handles[0].Delete(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateAnnotation(2, doc.AnnotInk, doc.Annotation{}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFieldValue("agree", true); err != nil {
		t.Fatal(err)
	}

	recs := s.Records()
	if len(recs) != 4 {
		t.Fatalf("got %d records", len(recs))
	}
	wantKinds := []RecordKind{RecordModifyAnnotation, RecordDeleteAnnotation, RecordCreateAnnotation, RecordSetFormField}
	for i, k := range wantKinds {
		if recs[i].Kind != k {
			t.Fatalf("record %d kind = %v, want %v", i, recs[i].Kind, k)
		}
	}
	if recs[3].FieldKind != doc.FieldButton || !recs[3].FieldValue.Checked {
		t.Fatalf("field record = %+v", recs[3])
	}
}
