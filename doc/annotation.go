package doc

import (
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/wudi/docview/geo"
)

// AnnotationType enumerates the PDF annotation subtypes the core models.
type AnnotationType string

const (
	AnnotText           AnnotationType = "Text"
	AnnotHighlight      AnnotationType = "Highlight"
	AnnotUnderline      AnnotationType = "Underline"
	AnnotSquiggly       AnnotationType = "Squiggly"
	AnnotStrikeOut      AnnotationType = "StrikeOut"
	AnnotLine           AnnotationType = "Line"
	AnnotSquare         AnnotationType = "Square"
	AnnotCircle         AnnotationType = "Circle"
	AnnotPolygon        AnnotationType = "Polygon"
	AnnotPolyLine       AnnotationType = "PolyLine"
	AnnotInk            AnnotationType = "Ink"
	AnnotStamp          AnnotationType = "Stamp"
	AnnotCaret          AnnotationType = "Caret"
	AnnotPopup          AnnotationType = "Popup"
	AnnotFileAttachment AnnotationType = "FileAttachment"
	AnnotLink           AnnotationType = "Link"
	AnnotWidget         AnnotationType = "Widget"
	AnnotFreeText       AnnotationType = "FreeText"
	AnnotUnknown        AnnotationType = ""
)

// Color is an RGB triple with components in 0..1.
type Color struct{ R, G, B float64 }

// Category buckets the color into a human name ("Yellow", "Green") using
// HSL thresholds. The shell uses this for annotation filtering.
func (c Color) Category() string {
	h, s, l := colorful.Color{R: c.R, G: c.G, B: c.B}.Hsl()
	switch {
	case l < 0.12:
		return "Black"
	case l > 0.98:
		return "White"
	case s < 0.2:
		return "Gray"
	case h < 15:
		return "Red"
	case h < 45:
		return "Orange"
	case h < 65:
		return "Yellow"
	case h < 170:
		return "Green"
	case h < 190:
		return "Cyan"
	case h < 263:
		return "Blue"
	case h < 280:
		return "Purple"
	case h < 335:
		return "Magenta"
	default:
		return "Red"
	}
}

// Annotation is the backend's value view of one annotation. It is plain
// data: staged mutations are layered on by the staging package and never
// written back into these values.
type Annotation struct {
	Page     int
	Type     AnnotationType
	Rect     geo.Rect
	Author   string
	Contents string
	Color    *Color
	Opacity  float64
	Modified time.Time
	Hidden   bool
	ReadOnly bool
	Locked   bool

	// Type-specific payloads. Only the slot matching Type is populated.
	InkPaths   [][]geo.Point // Ink stroke list
	LinePoints []geo.Point   // Line endpoints, Polygon/PolyLine vertices
	IconName   string        // Text/Stamp icon choice
	URI        string        // Link target
}

// FieldKind enumerates form-field kinds.
type FieldKind int

const (
	FieldButton FieldKind = iota
	FieldText
	FieldChoice
	FieldSignature
)

func (k FieldKind) String() string {
	switch k {
	case FieldButton:
		return "Button"
	case FieldText:
		return "Text"
	case FieldChoice:
		return "Choice"
	default:
		return "Signature"
	}
}

// ButtonKind refines FieldButton.
type ButtonKind int

const (
	ButtonPush ButtonKind = iota
	ButtonCheckBox
	ButtonRadio
)

// ChoiceKind refines FieldChoice.
type ChoiceKind int

const (
	ChoiceComboBox ChoiceKind = iota
	ChoiceListBox
)

// FieldValue is a typed form-field value. Exactly one slot is meaningful
// depending on the field kind: Checked for checkboxes and radios, Text
// for text fields and resolved choice selections.
type FieldValue struct {
	Checked bool
	Text    string
}

// FormField is the backend's value view of one form field.
type FormField struct {
	Name       string
	FullName   string
	Kind       FieldKind
	ButtonKind ButtonKind
	ChoiceKind ChoiceKind
	Value      FieldValue
	Options    []string
	Enabled    bool
	ReadOnly   bool
	Required   bool
	Visible    bool
	Rect       geo.Rect
	Page       int
}
