package staging

import (
	"fmt"
	"strings"

	"github.com/wudi/docview/doc"
)

// FieldError reports the first form field failing validation.
type FieldError struct {
	Name   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Name, e.Reason)
}

// FormFields returns the backend fields with staged values overlaid.
func (s *Staging) FormFields() ([]doc.FormField, error) {
	fields, err := s.loadFields()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]doc.FormField, len(fields))
	for i, f := range fields {
		if v, ok := s.fields[f.FullName]; ok {
			f.Value = v
		}
		out[i] = f
	}
	return out, nil
}

// FormField returns one field by full name with any staged value
// applied, or nil when no such field exists.
func (s *Staging) FormField(name string) (*doc.FormField, error) {
	if _, err := s.loadFields(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.fieldByNameLocked(name)
	if f == nil {
		return nil, nil
	}
	out := *f
	if v, ok := s.fields[f.FullName]; ok {
		out.Value = v
	}
	return &out, nil
}

// SetFieldValue stages a typed value. Checkboxes and radios take bool,
// text fields take string, choice fields take an option index or an
// option string. Anything else is rejected.
func (s *Staging) SetFieldValue(name string, value any) error {
	const op = "staging.setfield"
	if !s.doc.Capabilities().Has(doc.CapForms) {
		return doc.Errorf(doc.KindNotSupported, op, "document does not support form filling")
	}
	if _, err := s.loadFields(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.fieldByNameLocked(name)
	if f == nil {
		return doc.Errorf(doc.KindInvalidArgument, op, "no field named %q", name)
	}

	staged, err := coerceValue(f, value)
	if err != nil {
		return err
	}
	if staged == f.Value {
		delete(s.fields, f.FullName)
		return nil
	}
	s.fields[f.FullName] = staged
	return nil
}

func coerceValue(f *doc.FormField, value any) (doc.FieldValue, error) {
	const op = "staging.setfield"
	switch f.Kind {
	case doc.FieldButton:
		if f.ButtonKind == doc.ButtonPush {
			return doc.FieldValue{}, doc.Errorf(doc.KindInvalidArgument, op,
				"field %q: pushbuttons hold no value", f.FullName)
		}
		b, ok := value.(bool)
		if !ok {
			return doc.FieldValue{}, doc.Errorf(doc.KindInvalidArgument, op,
				"field %q wants a bool, got %T", f.FullName, value)
		}
		return doc.FieldValue{Checked: b}, nil

	case doc.FieldText:
		s, ok := value.(string)
		if !ok {
			return doc.FieldValue{}, doc.Errorf(doc.KindInvalidArgument, op,
				"field %q wants a string, got %T", f.FullName, value)
		}
		return doc.FieldValue{Text: s}, nil

	case doc.FieldChoice:
		switch v := value.(type) {
		case int:
			if v < 0 || v >= len(f.Options) {
				return doc.FieldValue{}, doc.Errorf(doc.KindInvalidArgument, op,
					"field %q: option index %d out of range", f.FullName, v)
			}
			return doc.FieldValue{Text: f.Options[v]}, nil
		case string:
			for _, opt := range f.Options {
				if opt == v {
					return doc.FieldValue{Text: v}, nil
				}
			}
			return doc.FieldValue{}, doc.Errorf(doc.KindInvalidArgument, op,
				"field %q: %q is not an option", f.FullName, v)
		default:
			return doc.FieldValue{}, doc.Errorf(doc.KindInvalidArgument, op,
				"field %q wants an option index or string, got %T", f.FullName, value)
		}

	default:
		return doc.FieldValue{}, doc.Errorf(doc.KindNotSupported, op,
			"field %q: signature fields cannot be set", f.FullName)
	}
}

// ValidateForm checks required fields and choice-option membership over
// the projected values. The first failure is returned as a *FieldError.
func (s *Staging) ValidateForm() error {
	fields, err := s.FormFields()
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Kind {
		case doc.FieldText:
			if f.Required && strings.TrimSpace(f.Value.Text) == "" {
				return &FieldError{Name: f.FullName, Reason: "required field is empty"}
			}
		case doc.FieldChoice:
			if f.Required && f.Value.Text == "" {
				return &FieldError{Name: f.FullName, Reason: "required field has no selection"}
			}
			if f.Value.Text != "" && !containsOption(f.Options, f.Value.Text) {
				return &FieldError{Name: f.FullName, Reason: fmt.Sprintf("%q is not an option", f.Value.Text)}
			}
		case doc.FieldButton:
			if f.Required && f.ButtonKind != doc.ButtonPush && !f.Value.Checked {
				return &FieldError{Name: f.FullName, Reason: "required checkbox is not checked"}
			}
		}
	}
	return nil
}

func containsOption(options []string, v string) bool {
	for _, opt := range options {
		if opt == v {
			return true
		}
	}
	return false
}

// loadFields caches the backend field list; form layout does not change
// under a read-only backend.
func (s *Staging) loadFields() ([]doc.FormField, error) {
	s.mu.Lock()
	if s.haveFields {
		fields := s.fieldCache
		s.mu.Unlock()
		return fields, nil
	}
	s.mu.Unlock()

	fields, err := s.doc.FormFields()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.fieldCache = fields
	s.haveFields = true
	s.mu.Unlock()
	return fields, nil
}

// fieldByNameLocked matches on full name first, then partial name.
// Caller must hold s.mu.
func (s *Staging) fieldByNameLocked(name string) *doc.FormField {
	for i := range s.fieldCache {
		if s.fieldCache[i].FullName == name {
			return &s.fieldCache[i]
		}
	}
	for i := range s.fieldCache {
		if s.fieldCache[i].Name == name {
			return &s.fieldCache[i]
		}
	}
	return nil
}
