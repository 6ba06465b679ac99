// Package region provides the pure geometry types the multiplexer core uses
// to track dirty framebuffer areas and screen layouts: rectangles, regions
// (finite unions of rectangles closed under union/intersect/subtract), and
// validated screen sets.
package region

import "image"

// Rect is an axis-aligned integer rectangle. It is a thin alias over the
// standard library's image.Rectangle so that intersection, containment, and
// emptiness checks reuse stdlib arithmetic instead of reimplementing it; no
// example or ecosystem package in this codebase's dependency graph offers a
// dedicated 2D region-algebra type, so this component leans on image.Rectangle
// for single-rectangle math and builds set algebra (Region, below) on top.
type Rect = image.Rectangle

// NewRect builds a Rect from a top-left point and a width/height.
func NewRect(x, y, w, h int) Rect {
	return image.Rect(x, y, x+w, y+h)
}

// Point is an integer coordinate pair, aliased for the same reason as Rect.
type Point = image.Point

// NewPoint builds a Point from x/y coordinates.
func NewPoint(x, y int) Point {
	return image.Pt(x, y)
}

// Empty reports whether r contains no pixels.
func Empty(r Rect) bool {
	return r.Empty()
}
