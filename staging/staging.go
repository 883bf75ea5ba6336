// Package staging layers pending mutations over a read-only backend
// document. Reads are projected as if the mutations had been applied;
// the accumulated log is consumed by the save pipeline at commit time.
package staging

import (
	"sort"
	"sync"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/observability"
)

// RecordKind tags one staged mutation.
type RecordKind int

const (
	RecordModifyAnnotation RecordKind = iota
	RecordDeleteAnnotation
	RecordCreateAnnotation
	RecordSetFormField
)

func (k RecordKind) String() string {
	switch k {
	case RecordModifyAnnotation:
		return "ModifyAnnotation"
	case RecordDeleteAnnotation:
		return "DeleteAnnotation"
	case RecordCreateAnnotation:
		return "CreateAnnotation"
	default:
		return "SetFormField"
	}
}

// PropertySet holds staged annotation properties. A nil slot means the
// property is untouched.
type PropertySet struct {
	Contents *string
	Color    *doc.Color
	Hidden   *bool
	ReadOnly *bool
}

func (p *PropertySet) empty() bool {
	return p.Contents == nil && p.Color == nil && p.Hidden == nil && p.ReadOnly == nil
}

// apply overlays the staged properties onto a copy of a.
func (p *PropertySet) apply(a doc.Annotation) doc.Annotation {
	if p.Contents != nil {
		a.Contents = *p.Contents
	}
	if p.Color != nil {
		c := *p.Color
		a.Color = &c
	}
	if p.Hidden != nil {
		a.Hidden = *p.Hidden
	}
	if p.ReadOnly != nil {
		a.ReadOnly = *p.ReadOnly
	}
	return a
}

// Record is one entry of the staging log as handed to the save
// pipeline. Snapshot carries the construction-time state used for
// identity matching; Created carries the full synthetic annotation.
type Record struct {
	Kind     RecordKind
	Page     int
	Snapshot doc.Annotation
	Props    PropertySet
	Created  doc.Annotation

	FieldName  string
	FieldKind  doc.FieldKind
	FieldValue doc.FieldValue
}

type annotKey struct {
	page  int
	index int
}

type createdAnnot struct {
	seq     int
	ann     doc.Annotation
	deleted bool
}

// Staging serializes all mutation state for one document.
type Staging struct {
	mu     sync.Mutex
	doc    doc.Document
	logger observability.Logger

	mods         map[annotKey]*PropertySet
	modSnapshots map[annotKey]doc.Annotation
	dels         map[annotKey]doc.Annotation
	created      []createdAnnot
	nextSeq      int

	fields     map[string]doc.FieldValue
	fieldCache []doc.FormField
	haveFields bool
}

// New wraps a backend document with an empty staging log.
func New(d doc.Document, logger observability.Logger) *Staging {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Staging{
		doc:          d,
		logger:       logger.With(observability.String("component", "staging")),
		mods:         make(map[annotKey]*PropertySet),
		modSnapshots: make(map[annotKey]doc.Annotation),
		dels:         make(map[annotKey]doc.Annotation),
		fields:       make(map[string]doc.FieldValue),
	}
}

// Document returns the wrapped backend.
func (s *Staging) Document() doc.Document { return s.doc }

// Modified reports whether any mutation is staged.
func (s *Staging) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modifiedLocked()
}

func (s *Staging) modifiedLocked() bool {
	if len(s.mods) > 0 || len(s.dels) > 0 || len(s.fields) > 0 {
		return true
	}
	for _, c := range s.created {
		if !c.deleted {
			return true
		}
	}
	return false
}

// Reset clears the staging log. The save pipeline calls this after a
// successful commit.
func (s *Staging) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mods = make(map[annotKey]*PropertySet)
	s.modSnapshots = make(map[annotKey]doc.Annotation)
	s.dels = make(map[annotKey]doc.Annotation)
	s.created = nil
	s.fields = make(map[string]doc.FieldValue)
	s.fieldCache = nil
	s.haveFields = false
}

// AnnotationsOnPage returns the backend's annotations with the staging
// log projected: modified entries reflect staged values, deleted ones
// are filtered, created ones are appended.
func (s *Staging) AnnotationsOnPage(page int) ([]doc.Annotation, error) {
	backend, err := s.doc.AnnotationsOnPage(page)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]doc.Annotation, 0, len(backend))
	for i, a := range backend {
		key := annotKey{page: page, index: i}
		if _, gone := s.dels[key]; gone {
			continue
		}
		if props, ok := s.mods[key]; ok {
			a = props.apply(a)
		}
		out = append(out, a)
	}
	for _, c := range s.created {
		if !c.deleted && c.ann.Page == page {
			out = append(out, c.ann)
		}
	}
	return out, nil
}

// Records snapshots the staging log in a deterministic order: modifies,
// deletes, creates, then form-field values.
func (s *Staging) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, key := range sortedKeys(s.mods) {
		out = append(out, Record{
			Kind:     RecordModifyAnnotation,
			Page:     key.page,
			Snapshot: s.snapshotFor(key),
			Props:    *s.mods[key],
		})
	}
	for _, key := range sortedKeys(s.dels) {
		out = append(out, Record{
			Kind:     RecordDeleteAnnotation,
			Page:     key.page,
			Snapshot: s.dels[key],
		})
	}
	for _, c := range s.created {
		if c.deleted {
			continue
		}
		out = append(out, Record{
			Kind:    RecordCreateAnnotation,
			Page:    c.ann.Page,
			Created: c.ann,
		})
	}
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec := Record{
			Kind:       RecordSetFormField,
			FieldName:  name,
			FieldValue: s.fields[name],
		}
		if f := s.fieldByNameLocked(name); f != nil {
			rec.FieldKind = f.Kind
			rec.Page = f.Page
		}
		out = append(out, rec)
	}
	return out
}

// snapshotFor recovers the construction-time snapshot held by the
// modify handle. Caller must hold s.mu.
func (s *Staging) snapshotFor(key annotKey) doc.Annotation {
	if snap, ok := s.modSnapshots[key]; ok {
		return snap
	}
	return doc.Annotation{Page: key.page}
}

func sortedKeys[V any](m map[annotKey]V) []annotKey {
	keys := make([]annotKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].page != keys[j].page {
			return keys[i].page < keys[j].page
		}
		return keys[i].index < keys[j].index
	})
	return keys
}
