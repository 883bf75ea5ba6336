// Package render implements the progressive render pipeline: a
// bounded-concurrency scheduler that rasterizes pages in several passes of
// increasing quality, a content-keyed LRU cache with a byte budget, and
// request de-duplication so the same page state is never rasterized twice
// concurrently.
package render

import (
	"image"
	"math"
	"time"

	"github.com/wudi/docview/geo"
)

// Key is the content-addressed identity of one rasterization. Two keys
// are equal iff all fields match exactly; callers must canonicalize zoom
// before submitting (the pipeline never applies a floating tolerance).
//
// PassTag is zero for the canonical final-quality entry. Intermediate
// passes are cached under PassTag = pass number + 1 and may be evicted
// freely.
type Key struct {
	DocID    string
	Page     int
	Zoom     float64
	Rotation int
	Clip     geo.Rect
	Width    int
	Height   int
	PassTag  int
}

// WithPass returns the pass-tagged variant of the key for an intermediate
// pass.
func (k Key) WithPass(pass int) Key {
	k.PassTag = pass + 1
	return k
}

// Canonical strips any pass tag.
func (k Key) Canonical() Key {
	k.PassTag = 0
	return k
}

// Pass describes one stage of a multi-pass render.
type Pass struct {
	Number int
	Width  int
	Height int
	Final  bool
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Pass     int
	Width    int
	Height   int
	Image    image.Image
	OK       bool
	ErrText  string
	Duration time.Duration
	Final    bool
}

// Schedule computes the pass sizes for a request. When the initial area
// already covers the final area the schedule degenerates to a single
// final pass. Otherwise pass k targets the size whose area linearly
// interpolates between initial and final at t = k/(levels-1), clamped to
// the final size.
func Schedule(initW, initH, finW, finH, levels int) []Pass {
	initArea := float64(initW) * float64(initH)
	finArea := float64(finW) * float64(finH)
	if levels <= 1 || initArea >= finArea {
		return []Pass{{Number: 0, Width: finW, Height: finH, Final: true}}
	}

	passes := make([]Pass, 0, levels)
	for k := 0; k < levels; k++ {
		t := float64(k) / float64(levels-1)
		area := initArea + (finArea-initArea)*t
		scale := math.Sqrt(area / finArea)
		w := int(math.Round(float64(finW) * scale))
		h := int(math.Round(float64(finH) * scale))
		if w > finW {
			w = finW
		}
		if h > finH {
			h = finH
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		final := k == levels-1
		if final {
			w, h = finW, finH
		}
		passes = append(passes, Pass{Number: k, Width: w, Height: h, Final: final})
	}
	return passes
}
