// Package m2layout routes connections: straight connectors between node
// borders, recomputed in full after every mutation. Nothing here is cached
// or incremental; correctness under arbitrary pan/zoom/drag interleavings is
// worth the redundant arithmetic at mind-map scale.
package m2layout

import (
	"oss.mindsketch.dev/m2/lib/geo"
	"oss.mindsketch.dev/m2/m2graph"
	"oss.mindsketch.dev/m2/m2viewport"
)

const (
	// Margin is the screen-space gap between a node's border and the
	// connector's start point.
	Margin = 8.
	// ArrowMargin is the larger end gap that leaves room for an arrowhead
	// glyph.
	ArrowMargin = 16.
)

// ConnectorEndpoints computes a connector's start and end for two
// screen-space node boxes. Both points lie on the line through the two
// centers: the start sits Margin past a's border toward b, the end sits
// ArrowMargin short of b's border. The margins are screen-space constants,
// so the gaps hold at any zoom.
//
// When the boxes overlap so the centerline never crosses a border, the
// points fall back to center offsets of halfWidth plus the margin.
func ConnectorEndpoints(a, b *geo.Box) (start, end *geo.Point) {
	centerA := a.Center()
	centerB := b.Center()

	// unit vector along the centerline; coincident centers route rightward
	dir := geo.NewVector(1, 0)
	if d := centerA.DistanceTo(centerB); d != 0 {
		dir = geo.NewVector((centerB.X-centerA.X)/d, (centerB.Y-centerA.Y)/d)
	}

	start = borderPoint(a, centerA, centerB, dir, Margin, a.Width/2+Margin)
	end = borderPoint(b, centerB, centerA, dir.Multiply(-1), ArrowMargin, b.Width/2+ArrowMargin)
	return start, end
}

// borderPoint finds where the center-to-center segment crosses box's border
// and nudges it out along out by margin. Centers are always inside their own
// box, so the segment crosses at most one edge; with no crossing the point
// offsets from the center by fallback instead.
func borderPoint(box *geo.Box, center, other *geo.Point, out geo.Vector, margin, fallback float64) *geo.Point {
	pts := box.Intersections(geo.Segment{Start: center, End: other})
	if len(pts) == 0 {
		return center.AddVector(out.Multiply(fallback))
	}

	border := pts[0]
	for _, p := range pts[1:] {
		if p.DistanceTo(other) < border.DistanceTo(other) {
			border = p
		}
	}
	return border.AddVector(out.Multiply(margin))
}

// Route recomputes every connection's endpoints from the current node
// positions and viewport transform. Runs after any node move/resize, any
// pan/zoom, and any connection creation or deletion. Connections whose
// endpoint nodes vanished mid-event lose their route instead of erroring.
func Route(g *m2graph.Graph, v *m2viewport.Viewport) {
	for _, c := range g.Connections.All() {
		src := g.Nodes.Get(c.Src)
		dst := g.Nodes.Get(c.Dst)
		if src == nil || dst == nil {
			c.Route = nil
			continue
		}

		start, end := ConnectorEndpoints(
			src.ScreenBox(v.Zoom, v.Pan),
			dst.ScreenBox(v.Zoom, v.Pan),
		)
		c.Route = []*geo.Point{start, end}
	}
}
