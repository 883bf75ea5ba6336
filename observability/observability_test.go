package observability

import (
	"testing"
	"time"
)

func TestFields(t *testing.T) {
	if f := String("path", "a.pdf"); f.Key() != "path" || f.Value() != "a.pdf" {
		t.Fatalf("string field = %v/%v", f.Key(), f.Value())
	}
	if f := Int("pages", 3); f.Value() != 3 {
		t.Fatalf("int field = %v", f.Value())
	}
	if f := Duration("elapsed", 50*time.Millisecond); f.Value() != 50*time.Millisecond {
		t.Fatalf("duration field = %v", f.Value())
	}
	if f := Float64("zoom", 1.5); f.Value() != 1.5 {
		t.Fatalf("float field = %v", f.Value())
	}
}

func TestNopLoggerWith(t *testing.T) {
	var l Logger = NopLogger{}
	l = l.With(String("component", "render"))
	// Must not panic and must stay usable.
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg", Error("err", nil))
}
