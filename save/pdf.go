package save

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mgmeyers/unipdf/v3/core"
	"github.com/mgmeyers/unipdf/v3/model"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/observability"
	"github.com/wudi/docview/staging"
)

// Annotation /F flag bits as committed to disk.
const (
	flagReadOnly = 1
	flagHidden   = 2
	flagLocked   = 128
)

// savePDF replays the staging log into a fresh writer-side object graph
// of the original file. The work runs in three phases: resolve every
// record to its target object, refuse or trim the unresolved ones, then
// apply and write. Nothing touches the target path until the writer has
// finished a complete temp file.
func (p *Pipeline) savePDF(ctx context.Context, stg *staging.Staging, d doc.Document, target string, opts Options) error {
	records := stg.Records()

	f, err := os.Open(d.Path())
	if err != nil {
		return doc.E(doc.KindIO, "save.open", d.Path(), err)
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return doc.E(doc.KindCorrupt, "save.open", d.Path(), err)
	}

	password := ""
	if pw, ok := d.(passworded); ok {
		password = pw.Password()
	}
	encrypted, err := p.unlockWriter(reader, d.Path(), password)
	if err != nil {
		return err
	}

	n, err := reader.GetNumPages()
	if err != nil {
		return doc.E(doc.KindCorrupt, "save.pages", d.Path(), err)
	}
	pages := make([]*model.PdfPage, n)
	annots := make([]*pageAnnots, n)
	for i := 0; i < n; i++ {
		pages[i], err = reader.GetPage(i + 1)
		if err != nil {
			return doc.E(doc.KindCorrupt, "save.pages", d.Path(), err)
		}
	}

	// Phase 1: resolve. Annotation records match on (page, subtype,
	// rect); form records match on the field name. Ambiguity means skip,
	// never guess.
	var apply []func()
	var unapplied []string
	for _, rec := range records {
		switch rec.Kind {
		case staging.RecordModifyAnnotation, staging.RecordDeleteAnnotation:
			if rec.Page < 0 || rec.Page >= n {
				unapplied = append(unapplied, describeRecord(rec))
				continue
			}
			if annots[rec.Page] == nil {
				annots[rec.Page] = newPageAnnots(pages[rec.Page])
			}
			pa := annots[rec.Page]
			ref, count := matchAnnotation(pa.refs, string(rec.Snapshot.Type), toR2(rec.Snapshot.Rect))
			if ref == nil {
				p.logger.Warn("annotation not reconciled",
					observability.Int("page", rec.Page),
					observability.String("subtype", string(rec.Snapshot.Type)),
					observability.Int("candidates", count))
				unapplied = append(unapplied, describeRecord(rec))
				continue
			}
			if rec.Kind == staging.RecordModifyAnnotation {
				apply = append(apply, func() { applyModify(ref.dict, rec.Props) })
			} else {
				apply = append(apply, func() { pa.remove(ref.obj) })
			}

		case staging.RecordCreateAnnotation:
			if rec.Page < 0 || rec.Page >= n {
				unapplied = append(unapplied, describeRecord(rec))
				continue
			}
			if annots[rec.Page] == nil {
				annots[rec.Page] = newPageAnnots(pages[rec.Page])
			}
			pa := annots[rec.Page]
			apply = append(apply, func() { pa.append(buildAnnotation(rec.Created)) })

		case staging.RecordSetFormField:
			fld := findField(reader.AcroForm, rec.FieldName)
			if fld == nil {
				p.logger.Warn("form field not reconciled",
					observability.String("field", rec.FieldName))
				unapplied = append(unapplied, describeRecord(rec))
				continue
			}
			apply = append(apply, func() { applyFieldValue(fld, rec) })
		}
	}

	if len(unapplied) > 0 && !opts.Lossy {
		return &UnappliedError{Mutations: unapplied}
	}

	// Phase 2: apply.
	for _, fn := range apply {
		fn()
	}

	// Phase 3: write.
	w := model.NewPdfWriter()
	for _, page := range pages {
		if err := w.AddPage(page); err != nil {
			return doc.E(doc.KindInternal, "save.write", target, err)
		}
	}
	if outline := reader.GetOutlineTree(); outline != nil {
		w.AddOutlineTree(outline)
	}
	if reader.AcroForm != nil {
		if err := w.SetForms(reader.AcroForm); err != nil {
			return doc.E(doc.KindInternal, "save.write", target, err)
		}
	}
	if encrypted && !opts.RemovePasswords {
		err := w.Encrypt([]byte(password), []byte(password), &model.EncryptOptions{
			Algorithm: model.AES_128bit,
		})
		if err != nil {
			return doc.E(doc.KindInternal, "save.encrypt", target, err)
		}
	}

	return atomicWrite(target, func(out io.Writer) error {
		return w.Write(out)
	})
}

// unlockWriter decrypts the writer-side reader with the password the
// document was opened with.
func (p *Pipeline) unlockWriter(reader *model.PdfReader, path, password string) (bool, error) {
	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return false, doc.E(doc.KindCorrupt, "save.open", path, err)
	}
	if !encrypted {
		return false, nil
	}
	ok, err := reader.Decrypt([]byte(password))
	if err != nil {
		return true, doc.E(doc.KindCorrupt, "save.decrypt", path, err)
	}
	if !ok {
		return true, doc.Errorf(doc.KindPasswordIncorrect, "save.decrypt", "password no longer opens %s", path)
	}
	return true, nil
}

// applyModify writes the staged properties into the annotation dict.
func applyModify(dict *core.PdfObjectDictionary, props staging.PropertySet) {
	if props.Contents != nil {
		dict.Set("Contents", core.MakeEncodedString(*props.Contents, true))
	}
	if props.Color != nil {
		c := *props.Color
		dict.Set("C", core.MakeArrayFromFloats([]float64{c.R, c.G, c.B}))
	}
	if props.Hidden != nil {
		setFlagBit(dict, flagHidden, *props.Hidden)
	}
	if props.ReadOnly != nil {
		setFlagBit(dict, flagReadOnly, *props.ReadOnly)
	}
	dict.Set("M", core.MakeString(formatPDFDate(time.Now())))
}

// setFlagBit updates one bit of the /F entry, preserving the rest.
func setFlagBit(dict *core.PdfObjectDictionary, bit int64, on bool) {
	var flags int64
	if v, ok := core.GetIntVal(core.TraceToDirectObject(dict.Get("F"))); ok {
		flags = int64(v)
	}
	if on {
		flags |= bit
	} else {
		flags &^= bit
	}
	dict.Set("F", core.MakeInteger(flags))
}

// buildAnnotation constructs the dictionary for a staged creation with
// the subtype's required keys plus whichever optional payload the
// annotation carries.
func buildAnnotation(a doc.Annotation) core.PdfObject {
	dict := core.MakeDict()
	dict.Set("Type", core.MakeName("Annot"))
	dict.Set("Subtype", core.MakeName(string(a.Type)))
	r := a.Rect
	dict.Set("Rect", core.MakeArrayFromFloats([]float64{r.Left(), r.Bottom(), r.Right(), r.Top()}))
	if a.Contents != "" {
		dict.Set("Contents", core.MakeEncodedString(a.Contents, true))
	}
	if a.Author != "" {
		dict.Set("T", core.MakeEncodedString(a.Author, true))
	}
	if a.Color != nil {
		dict.Set("C", core.MakeArrayFromFloats([]float64{a.Color.R, a.Color.G, a.Color.B}))
	}
	if a.Opacity > 0 && a.Opacity < 1 {
		dict.Set("CA", core.MakeFloat(a.Opacity))
	}
	var flags int64
	if a.Hidden {
		flags |= flagHidden
	}
	if a.ReadOnly {
		flags |= flagReadOnly
	}
	if a.Locked {
		flags |= flagLocked
	}
	if flags != 0 {
		dict.Set("F", core.MakeInteger(flags))
	}
	mod := a.Modified
	if mod.IsZero() {
		mod = time.Now()
	}
	dict.Set("M", core.MakeString(formatPDFDate(mod)))

	if len(a.InkPaths) > 0 {
		outer := core.MakeArray()
		for _, path := range a.InkPaths {
			flat := make([]float64, 0, len(path)*2)
			for _, pt := range path {
				flat = append(flat, pt.X, pt.Y)
			}
			outer.Append(core.MakeArrayFromFloats(flat))
		}
		dict.Set("InkList", outer)
	}
	if len(a.LinePoints) > 0 {
		flat := make([]float64, 0, len(a.LinePoints)*2)
		for _, pt := range a.LinePoints {
			flat = append(flat, pt.X, pt.Y)
		}
		switch a.Type {
		case doc.AnnotLine:
			dict.Set("L", core.MakeArrayFromFloats(flat))
		case doc.AnnotPolygon, doc.AnnotPolyLine:
			dict.Set("Vertices", core.MakeArrayFromFloats(flat))
		}
	}
	if a.IconName != "" {
		dict.Set("Name", core.MakeName(a.IconName))
	}
	return core.MakeIndirectObject(dict)
}

// findField walks the AcroForm for a field, matching the fully qualified
// name first, then the partial name.
func findField(form *model.PdfAcroForm, name string) *model.PdfField {
	if form == nil {
		return nil
	}
	fields := form.AllFields()
	for _, fld := range fields {
		if full, err := fld.FullName(); err == nil && full == name {
			return fld
		}
	}
	for _, fld := range fields {
		if fld.PartialName() == name {
			return fld
		}
	}
	return nil
}

// applyFieldValue writes /V per field kind. Buttons get the widget's
// on-state name and a matching /AS so viewers show the right appearance.
func applyFieldValue(fld *model.PdfField, rec staging.Record) {
	switch rec.FieldKind {
	case doc.FieldButton:
		state := "Off"
		if rec.FieldValue.Checked {
			state = fieldOnState(fld)
		}
		fld.V = core.MakeName(state)
		for _, w := range fld.Annotations {
			w.AS = core.MakeName(state)
		}
	default:
		fld.V = core.MakeEncodedString(rec.FieldValue.Text, true)
	}
}

// fieldOnState finds the checkbox/radio on-state: the first appearance
// state in the widget's /AP /N dictionary that is not Off.
func fieldOnState(fld *model.PdfField) string {
	for _, w := range fld.Annotations {
		ap, ok := core.GetDict(core.TraceToDirectObject(w.AP))
		if !ok {
			continue
		}
		normal, ok := core.GetDict(core.TraceToDirectObject(ap.Get("N")))
		if !ok {
			continue
		}
		for _, key := range normal.Keys() {
			if name := string(key); name != "Off" {
				return name
			}
		}
	}
	return "Yes"
}

// describeRecord renders one staged mutation for the unapplied-changes
// report shown to the user.
func describeRecord(rec staging.Record) string {
	switch rec.Kind {
	case staging.RecordModifyAnnotation:
		return fmt.Sprintf("modify %s annotation on page %d", rec.Snapshot.Type, rec.Page+1)
	case staging.RecordDeleteAnnotation:
		return fmt.Sprintf("delete %s annotation on page %d", rec.Snapshot.Type, rec.Page+1)
	case staging.RecordCreateAnnotation:
		return fmt.Sprintf("create %s annotation on page %d", rec.Created.Type, rec.Page+1)
	default:
		return fmt.Sprintf("set form field %q", rec.FieldName)
	}
}

// formatPDFDate renders a PDF date string in UTC.
func formatPDFDate(t time.Time) string {
	return t.UTC().Format("D:20060102150405Z")
}
