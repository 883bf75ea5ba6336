package render

import "testing"

func TestScheduleDegenerate(t *testing.T) {
	passes := Schedule(800, 1000, 800, 1000, 3)
	if len(passes) != 1 {
		t.Fatalf("expected single pass, got %d", len(passes))
	}
	if !passes[0].Final || passes[0].Width != 800 || passes[0].Height != 1000 {
		t.Fatalf("unexpected pass %+v", passes[0])
	}
	// An initial size larger than final also degenerates.
	passes = Schedule(1600, 2000, 800, 1000, 4)
	if len(passes) != 1 {
		t.Fatalf("expected single pass, got %d", len(passes))
	}
}

func TestScheduleProgression(t *testing.T) {
	passes := Schedule(200, 250, 800, 1000, 3)
	if len(passes) != 3 {
		t.Fatalf("expected 3 passes, got %d", len(passes))
	}
	if passes[0].Width != 200 || passes[0].Height != 250 {
		t.Fatalf("first pass %+v, want the initial size", passes[0])
	}
	last := passes[len(passes)-1]
	if !last.Final || last.Width != 800 || last.Height != 1000 {
		t.Fatalf("final pass %+v", last)
	}
	prevArea := 0
	for i, p := range passes {
		if p.Width > 800 || p.Height > 1000 {
			t.Fatalf("pass %d exceeds final size: %+v", i, p)
		}
		area := p.Width * p.Height
		if area <= prevArea {
			t.Fatalf("pass areas not increasing: pass %d area %d after %d", i, area, prevArea)
		}
		prevArea = area
		if (i == len(passes)-1) != p.Final {
			t.Fatalf("final flag wrong on pass %d", i)
		}
	}
}

func TestKeyPassTag(t *testing.T) {
	k := Key{DocID: "d", Page: 1, Zoom: 1.5, Width: 800, Height: 1000}
	tagged := k.WithPass(0)
	if tagged == k {
		t.Fatal("pass tag did not change the key")
	}
	if tagged.Canonical() != k {
		t.Fatal("Canonical did not strip the tag")
	}
	// Exact equality: no floating tolerance in keys.
	k2 := k
	k2.Zoom = 1.5000001
	if k2 == k {
		t.Fatal("distinct zooms compared equal")
	}
}
