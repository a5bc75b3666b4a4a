// Package m2viewport holds the pan/zoom state mapping world coordinates to
// screen coordinates.
package m2viewport

import (
	"oss.mindsketch.dev/m2/lib/geo"
)

const (
	MinZoom = 0.3
	MaxZoom = 3.0

	// screen-space padding kept around a fitted bounding box
	fitPadding = 40.
)

type Viewport struct {
	Zoom float64
	Pan  *geo.Point
}

func NewViewport() *Viewport {
	return &Viewport{
		Zoom: 1,
		Pan:  geo.NewPoint(0, 0),
	}
}

// ZoomBy multiplies the zoom by factor, clamped to [MinZoom, MaxZoom]. When
// the zoom actually changes, the pan is adjusted so the pivot (typically the
// pointer position, in screen space) stays visually stationary. Anchoring to
// the pivot rather than the origin matches direct-manipulation expectations.
func (v *Viewport) ZoomBy(factor float64, pivot *geo.Point) {
	newZoom := min(max(v.Zoom*factor, MinZoom), MaxZoom)
	if newZoom == v.Zoom {
		return
	}

	scale := newZoom / v.Zoom
	v.Pan = geo.NewPoint(
		pivot.X-(pivot.X-v.Pan.X)*scale,
		pivot.Y-(pivot.Y-v.Pan.Y)*scale,
	)
	v.Zoom = newZoom
}

// PanBy translates the view. Unclamped: diagrams may be panned arbitrarily
// far.
func (v *Viewport) PanBy(dx, dy float64) {
	v.Pan.X += dx
	v.Pan.Y += dy
}

func (v *Viewport) Reset() {
	v.Zoom = 1
	v.Pan = geo.NewPoint(0, 0)
}

// ZoomToFit centers box (world space) in a screenWidth x screenHeight view at
// the largest zoom, within bounds, that keeps the whole box plus padding
// visible. A nil box resets the viewport.
func (v *Viewport) ZoomToFit(box *geo.Box, screenWidth, screenHeight float64) {
	if box == nil || box.Width <= 0 || box.Height <= 0 {
		v.Reset()
		return
	}

	zoom := min(
		(screenWidth-2*fitPadding)/box.Width,
		(screenHeight-2*fitPadding)/box.Height,
	)
	v.Zoom = min(max(zoom, MinZoom), MaxZoom)

	center := box.Center()
	v.Pan = geo.NewPoint(
		screenWidth/2-center.X*v.Zoom,
		screenHeight/2-center.Y*v.Zoom,
	)
}

func (v *Viewport) WorldToScreen(p *geo.Point) *geo.Point {
	return geo.WorldToScreen(p, v.Zoom, v.Pan)
}

func (v *Viewport) ScreenToWorld(p *geo.Point) *geo.Point {
	return geo.ScreenToWorld(p, v.Zoom, v.Pan)
}
