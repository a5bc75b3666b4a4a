package geo

// The viewport transform is translate(pan) · scale(zoom): a world point maps
// to screen space by scaling about the world origin, then shifting by the pan
// offset. ScreenToWorld is the exact inverse.

func WorldToScreen(p *Point, zoom float64, pan *Point) *Point {
	return NewPoint(p.X*zoom+pan.X, p.Y*zoom+pan.Y)
}

func ScreenToWorld(p *Point, zoom float64, pan *Point) *Point {
	return NewPoint((p.X-pan.X)/zoom, (p.Y-pan.Y)/zoom)
}

// WorldToScreenBox maps a world-space box to its screen-space footprint.
func WorldToScreenBox(b *Box, zoom float64, pan *Point) *Box {
	return NewBox(WorldToScreen(b.TopLeft, zoom, pan), b.Width*zoom, b.Height*zoom)
}
