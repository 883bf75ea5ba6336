package pdfdoc

import (
	"github.com/mgmeyers/unipdf/v3/core"
	"github.com/mgmeyers/unipdf/v3/model"

	"github.com/wudi/docview/doc"
)

// FormFields flattens the AcroForm into backend values. A document
// without an AcroForm returns an empty list.
func (d *Document) FormFields() ([]doc.FormField, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	form := d.reader.AcroForm
	if form == nil {
		return nil, nil
	}

	var out []doc.FormField
	for _, fld := range form.AllFields() {
		if fld == nil {
			continue
		}
		ff := doc.FormField{
			Name:    fld.PartialName(),
			Page:    -1,
			Enabled: true,
			Visible: true,
		}
		if full, err := fld.FullName(); err == nil {
			ff.FullName = full
		}

		flags := fld.Flags()
		ff.ReadOnly = flags.Has(model.FieldFlagReadOnly)
		ff.Required = flags.Has(model.FieldFlagRequired)
		ff.Enabled = !ff.ReadOnly

		switch ctx := fld.GetContext().(type) {
		case *model.PdfFieldButton:
			ff.Kind = doc.FieldButton
			switch {
			case flags.Has(model.FieldFlagPushbutton):
				ff.ButtonKind = doc.ButtonPush
			case flags.Has(model.FieldFlagRadio):
				ff.ButtonKind = doc.ButtonRadio
			default:
				ff.ButtonKind = doc.ButtonCheckBox
			}
			ff.Value.Checked = buttonChecked(fld.V)
		case *model.PdfFieldText:
			ff.Kind = doc.FieldText
			ff.Value.Text = stringValue(fld.V)
		case *model.PdfFieldChoice:
			ff.Kind = doc.FieldChoice
			if flags.Has(model.FieldFlagCombo) {
				ff.ChoiceKind = doc.ChoiceComboBox
			} else {
				ff.ChoiceKind = doc.ChoiceListBox
			}
			ff.Options = choiceOptions(ctx)
			ff.Value.Text = stringValue(fld.V)
		case *model.PdfFieldSignature:
			ff.Kind = doc.FieldSignature
		default:
			ff.Kind = doc.FieldText
			ff.Value.Text = stringValue(fld.V)
		}

		if len(fld.Annotations) > 0 {
			w := fld.Annotations[0]
			ff.Rect = rectFromObject(w.Rect)
			if f, ok := core.GetIntVal(w.F); ok {
				ff.Visible = f&flagHidden == 0
			}
			ff.Page = d.pageOfWidget(w)
		}
		out = append(out, ff)
	}
	return out, nil
}

// pageOfWidget resolves the widget's /P reference against the loaded
// pages; -1 when the widget does not name its page.
func (d *Document) pageOfWidget(w *model.PdfAnnotationWidget) int {
	if w == nil || w.P == nil {
		return -1
	}
	target, ok := core.GetDict(w.P)
	if !ok {
		return -1
	}
	for i, p := range d.pages {
		if p.model != nil && p.model.GetPageDict() == target {
			return i
		}
	}
	return -1
}

// buttonChecked reads a button /V: any name other than Off counts as on.
func buttonChecked(v core.PdfObject) bool {
	if v == nil {
		return false
	}
	if name, ok := core.GetNameVal(core.TraceToDirectObject(v)); ok {
		return name != "Off" && name != ""
	}
	return false
}

func stringValue(v core.PdfObject) string {
	if v == nil {
		return ""
	}
	obj := core.TraceToDirectObject(v)
	if s, ok := core.GetStringVal(obj); ok {
		return s
	}
	if name, ok := core.GetNameVal(obj); ok {
		return name
	}
	return ""
}

// choiceOptions reads /Opt entries: either plain strings or
// [export, display] pairs, in which case the display value is surfaced.
func choiceOptions(ch *model.PdfFieldChoice) []string {
	if ch == nil || ch.Opt == nil {
		return nil
	}
	var opts []string
	for _, el := range ch.Opt.Elements() {
		el = core.TraceToDirectObject(el)
		if pair, ok := core.GetArray(el); ok && pair.Len() >= 2 {
			if s, ok := core.GetStringVal(core.TraceToDirectObject(pair.Get(1))); ok {
				opts = append(opts, s)
			}
			continue
		}
		if s, ok := core.GetStringVal(el); ok {
			opts = append(opts, s)
		}
	}
	return opts
}
