package staging

import (
	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/observability"
)

// Annotation is a mutation handle over one annotation. Handles for
// backend annotations capture an initial-state snapshot at
// construction; setters compare against it so reverting a property to
// its original value drops the overlay instead of staging a no-op.
type Annotation struct {
	s        *Staging
	key      annotKey
	snapshot doc.Annotation
	synth    bool // created in this session, not present in the backend
	seq      int  // identity within s.created when synth
}

// Annotations returns mutation handles for the backend annotations on a
// page plus any annotations created on it this session.
func (s *Staging) Annotations(page int) ([]*Annotation, error) {
	backend, err := s.doc.AnnotationsOnPage(page)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Annotation, 0, len(backend))
	for i, a := range backend {
		key := annotKey{page: page, index: i}
		if _, gone := s.dels[key]; gone {
			continue
		}
		out = append(out, &Annotation{s: s, key: key, snapshot: a})
	}
	for _, c := range s.created {
		if !c.deleted && c.ann.Page == page {
			out = append(out, &Annotation{s: s, snapshot: c.ann, synth: true, seq: c.seq})
		}
	}
	return out, nil
}

// CreateAnnotation stages a new annotation and returns its handle.
func (s *Staging) CreateAnnotation(page int, typ doc.AnnotationType, props doc.Annotation) (*Annotation, error) {
	if err := s.gateAnnotations("staging.create"); err != nil {
		return nil, err
	}
	if page < 0 || page >= s.doc.PageCount() {
		return nil, doc.Errorf(doc.KindInvalidArgument, "staging.create", "page %d out of range", page)
	}
	props.Page = page
	props.Type = typ

	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	s.created = append(s.created, createdAnnot{seq: seq, ann: props})
	s.logger.Debug("annotation created",
		observability.Int("page", page),
		observability.String("type", string(typ)))
	return &Annotation{s: s, snapshot: props, synth: true, seq: seq}, nil
}

// Current returns the annotation with staged properties applied.
func (a *Annotation) Current() doc.Annotation {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.synth {
		if c := a.s.createdBySeq(a.seq); c != nil {
			return c.ann
		}
		return a.snapshot
	}
	if props, ok := a.s.mods[a.key]; ok {
		return props.apply(a.snapshot)
	}
	return a.snapshot
}

// Page returns the page index the annotation sits on.
func (a *Annotation) Page() int { return a.snapshot.Page }

// Type returns the annotation subtype.
func (a *Annotation) Type() doc.AnnotationType { return a.snapshot.Type }

// Rect returns the construction-time bounding rectangle, the identity
// the save pipeline matches on.
func (a *Annotation) Rect() geo.Rect { return a.snapshot.Rect }

// SetContents stages new annotation text.
func (a *Annotation) SetContents(contents string) error {
	return a.stage("staging.contents", func(p *PropertySet) {
		if a.snapshot.Contents == contents {
			p.Contents = nil
			return
		}
		p.Contents = &contents
	}, func(ann *doc.Annotation) { ann.Contents = contents })
}

// SetColor stages a new annotation color.
func (a *Annotation) SetColor(c doc.Color) error {
	return a.stage("staging.color", func(p *PropertySet) {
		if a.snapshot.Color != nil && *a.snapshot.Color == c {
			p.Color = nil
			return
		}
		cc := c
		p.Color = &cc
	}, func(ann *doc.Annotation) { cc := c; ann.Color = &cc })
}

// SetHidden stages the hidden flag.
func (a *Annotation) SetHidden(hidden bool) error {
	return a.stage("staging.hidden", func(p *PropertySet) {
		if a.snapshot.Hidden == hidden {
			p.Hidden = nil
			return
		}
		p.Hidden = &hidden
	}, func(ann *doc.Annotation) { ann.Hidden = hidden })
}

// SetReadOnly stages the read-only flag.
func (a *Annotation) SetReadOnly(readOnly bool) error {
	return a.stage("staging.readonly", func(p *PropertySet) {
		if a.snapshot.ReadOnly == readOnly {
			p.ReadOnly = nil
			return
		}
		p.ReadOnly = &readOnly
	}, func(ann *doc.Annotation) { ann.ReadOnly = readOnly })
}

// Delete stages removal. Any staged modification of the same
// annotation is dropped; deleting a created annotation simply unstages
// it.
func (a *Annotation) Delete() error {
	if err := a.s.gateAnnotations("staging.delete"); err != nil {
		return err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.synth {
		if c := a.s.createdBySeq(a.seq); c != nil {
			c.deleted = true
		}
		return nil
	}
	delete(a.s.mods, a.key)
	delete(a.s.modSnapshots, a.key)
	a.s.dels[a.key] = a.snapshot
	return nil
}

// stage runs one setter under the staging lock. overlay mutates the
// coalesced property set for backend annotations; direct mutates the
// stored synthetic annotation for created ones.
func (a *Annotation) stage(op string, overlay func(*PropertySet), direct func(*doc.Annotation)) error {
	if err := a.s.gateAnnotations(op); err != nil {
		return err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if a.synth {
		c := a.s.createdBySeq(a.seq)
		if c == nil || c.deleted {
			return doc.Errorf(doc.KindInvalidArgument, op, "annotation no longer staged")
		}
		direct(&c.ann)
		return nil
	}
	if _, gone := a.s.dels[a.key]; gone {
		return doc.Errorf(doc.KindInvalidArgument, op, "annotation is deleted")
	}

	props, ok := a.s.mods[a.key]
	if !ok {
		props = &PropertySet{}
	}
	overlay(props)
	if props.empty() {
		delete(a.s.mods, a.key)
		delete(a.s.modSnapshots, a.key)
		return nil
	}
	a.s.mods[a.key] = props
	a.s.modSnapshots[a.key] = a.snapshot
	return nil
}

func (s *Staging) createdBySeq(seq int) *createdAnnot {
	for i := range s.created {
		if s.created[i].seq == seq {
			return &s.created[i]
		}
	}
	return nil
}

func (s *Staging) gateAnnotations(op string) error {
	if !s.doc.Capabilities().Has(doc.CapAnnotations) {
		return doc.Errorf(doc.KindNotSupported, op, "document does not support annotation editing")
	}
	return nil
}
