// Package geo provides the page geometry used across the viewer core:
// points, sizes, rectangles and the transforms between PDF page space
// (points, origin bottom-left) and raster space (pixels, origin top-left).
package geo

import (
	"errors"
	"math"
)

// Point is a location in page space, measured in PDF points (1/72 inch)
// with the origin at the bottom-left corner of the page.
type Point struct{ X, Y float64 }

// Pixel is a location in raster space with the origin at the top-left
// corner of the rendered image.
type Pixel struct{ X, Y float64 }

// Size is a width/height pair. Page sizes are in points, render sizes in
// pixels.
type Size struct{ Width, Height float64 }

// IsZero reports whether either dimension is non-positive.
func (s Size) IsZero() bool { return s.Width <= 0 || s.Height <= 0 }

// Area returns Width * Height.
func (s Size) Area() float64 { return s.Width * s.Height }

// Rect is an axis-aligned rectangle in page space. X/Y name the
// bottom-left corner.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// NewRect builds a Rect from two opposite corners in any order.
func NewRect(p1, p2 Point) Rect {
	return Rect{
		X:      math.Min(p1.X, p2.X),
		Y:      math.Min(p1.Y, p2.Y),
		Width:  math.Abs(p2.X - p1.X),
		Height: math.Abs(p2.Y - p1.Y),
	}
}

// FromLLUR builds a Rect from lower-left and upper-right coordinates, the
// form PDF /Rect arrays use.
func FromLLUR(llx, lly, urx, ury float64) Rect {
	return NewRect(Point{llx, lly}, Point{urx, ury})
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y }
func (r Rect) Top() float64    { return r.Y + r.Height }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point { return Point{r.X + r.Width/2, r.Y + r.Height/2} }

// Area returns Width * Height.
func (r Rect) Area() float64 { return r.Width * r.Height }

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether the point lies inside the rectangle, edges
// included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left() && p.X <= r.Right() && p.Y >= r.Bottom() && p.Y <= r.Top()
}

// Intersects reports whether two rectangles overlap.
func (r Rect) Intersects(o Rect) bool {
	return !(r.Right() < o.Left() || r.Left() > o.Right() ||
		r.Top() < o.Bottom() || r.Bottom() > o.Top())
}

// Intersection returns the overlapping region, or the zero Rect when the
// rectangles are disjoint.
func (r Rect) Intersection(o Rect) Rect {
	if !r.Intersects(o) {
		return Rect{}
	}
	x := math.Max(r.Left(), o.Left())
	y := math.Max(r.Bottom(), o.Bottom())
	return Rect{
		X:      x,
		Y:      y,
		Width:  math.Min(r.Right(), o.Right()) - x,
		Height: math.Min(r.Top(), o.Top()) - y,
	}
}

// Union returns the smallest rectangle covering both.
func (r Rect) Union(o Rect) Rect {
	x := math.Min(r.Left(), o.Left())
	y := math.Min(r.Bottom(), o.Bottom())
	return Rect{
		X:      x,
		Y:      y,
		Width:  math.Max(r.Right(), o.Right()) - x,
		Height: math.Max(r.Top(), o.Top()) - y,
	}
}

// EqualWithin reports whether the two rectangles match component-wise to
// within eps.
func (r Rect) EqualWithin(o Rect, eps float64) bool {
	return math.Abs(r.X-o.X) <= eps && math.Abs(r.Y-o.Y) <= eps &&
		math.Abs(r.Width-o.Width) <= eps && math.Abs(r.Height-o.Height) <= eps
}

// Matrix is a 2D affine transform in the PDF column convention
// [a b c d e f].
type Matrix [6]float64

// Identity returns the identity matrix.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Translate returns a translation matrix.
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Scale returns a scaling matrix.
func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate returns a rotation matrix for an angle in radians.
func Rotate(angle float64) Matrix {
	c := math.Cos(angle)
	s := math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Multiply composes m with o (m first, then o).
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Transform applies the matrix to a point.
func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// Inverse returns the inverse matrix, or an error when m is singular.
func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("geo: matrix is singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}
