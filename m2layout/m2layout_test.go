package m2layout_test

import (
	"testing"

	"oss.terrastruct.com/util-go/assert"

	"oss.mindsketch.dev/m2/lib/geo"
	"oss.mindsketch.dev/m2/m2graph"
	"oss.mindsketch.dev/m2/m2layout"
	"oss.mindsketch.dev/m2/m2viewport"
)

func TestConnectorEndpointsHorizontalPair(t *testing.T) {
	t.Parallel()

	g := m2graph.NewGraph()
	a := g.Nodes.Create(geo.NewPoint(100, 100))
	b := g.Nodes.Create(geo.NewPoint(400, 100))
	c := g.Connections.Connect(a.ID, b.ID)

	v := m2viewport.NewViewport()
	m2layout.Route(g, v)

	start, end := c.Route[0], c.Route[1]

	// the start clears a's half width (90) and the end stops short of b's
	if start.X <= 100+90 {
		t.Fatalf("start.x = %v, expected > 190", start.X)
	}
	if end.X >= 400-90 {
		t.Fatalf("end.x = %v, expected < 310", end.X)
	}
	assert.Equal(t, 198., start.X)
	assert.Equal(t, 100., start.Y)
	assert.Equal(t, 294., end.X)
	assert.Equal(t, 100., end.Y)
}

func TestConnectorEndpointsVerticalPair(t *testing.T) {
	t.Parallel()

	a := geo.NewBox(geo.NewPoint(-90, -30), 180, 60) // center (0, 0)
	b := geo.NewBox(geo.NewPoint(-90, 270), 180, 60) // center (0, 300)

	start, end := m2layout.ConnectorEndpoints(a, b)

	// exits a's bottom edge (y=30) and stops above b's top edge (y=270)
	assert.Equal(t, 0., start.X)
	assert.Equal(t, 38., start.Y)
	assert.Equal(t, 0., end.X)
	assert.Equal(t, 254., end.Y)
}

func TestConnectorEndpointsOutsideBoxes(t *testing.T) {
	t.Parallel()

	centers := []*geo.Point{
		geo.NewPoint(400, 100),
		geo.NewPoint(400, 400),
		geo.NewPoint(100, 400),
		geo.NewPoint(-200, 400),
		geo.NewPoint(-200, 100),
		geo.NewPoint(-200, -200),
		geo.NewPoint(100, -200),
		geo.NewPoint(400, -200),
		geo.NewPoint(371, 265),
	}

	for _, zoom := range []float64{0.3, 1, 2.5} {
		v := m2viewport.NewViewport()
		v.ZoomBy(zoom, geo.NewPoint(17, -4))

		for _, center := range centers {
			g := m2graph.NewGraph()
			a := g.Nodes.Create(geo.NewPoint(100, 100))
			bn := g.Nodes.Create(center)
			g.Nodes.Resize(bn.ID, 140, 220)
			c := g.Connections.Connect(a.ID, bn.ID)

			m2layout.Route(g, v)

			boxA := a.ScreenBox(v.Zoom, v.Pan)
			boxB := bn.ScreenBox(v.Zoom, v.Pan)
			if boxA.Contains(c.Route[0]) {
				t.Fatalf("zoom %v, b at %v: start %v is inside a %v", v.Zoom, center.ToString(), c.Route[0].ToString(), boxA.ToString())
			}
			if boxB.Contains(c.Route[1]) {
				t.Fatalf("zoom %v, b at %v: end %v is inside b %v", v.Zoom, center.ToString(), c.Route[1].ToString(), boxB.ToString())
			}
		}
	}
}

func TestConnectorEndpointsOverlapFallback(t *testing.T) {
	t.Parallel()

	// b's center is inside a, so the centerline never crosses a's border
	a := geo.NewBox(geo.NewPoint(0, 0), 180, 60)
	b := geo.NewBox(geo.NewPoint(40, 10), 180, 60)

	start, end := m2layout.ConnectorEndpoints(a, b)
	if start == nil || end == nil {
		t.Fatal("expected endpoints for overlapping boxes")
	}

	// fallback offsets from the centers by half width plus margin
	if geo.PrecisionCompare(a.Center().DistanceTo(start), 90+m2layout.Margin, 0.0001) != 0 {
		t.Fatalf("start %v is not %v from a's center", start.ToString(), 90+m2layout.Margin)
	}
	if geo.PrecisionCompare(b.Center().DistanceTo(end), 90+m2layout.ArrowMargin, 0.0001) != 0 {
		t.Fatalf("end %v is not %v from b's center", end.ToString(), 90+m2layout.ArrowMargin)
	}
}

func TestRouteTracksViewport(t *testing.T) {
	t.Parallel()

	g := m2graph.NewGraph()
	a := g.Nodes.Create(geo.NewPoint(100, 100))
	b := g.Nodes.Create(geo.NewPoint(400, 100))
	c := g.Connections.Connect(a.ID, b.ID)

	v := m2viewport.NewViewport()
	m2layout.Route(g, v)
	assert.Equal(t, 198., c.Route[0].X)

	// zooming about the origin doubles every screen coordinate except the
	// constant margins
	v.ZoomBy(2, geo.NewPoint(0, 0))
	m2layout.Route(g, v)
	assert.Equal(t, 380+m2layout.Margin, c.Route[0].X)
	assert.Equal(t, 200., c.Route[0].Y)

	v.Reset()
	v.PanBy(-30, 12)
	m2layout.Route(g, v)
	assert.Equal(t, 168., c.Route[0].X)
	assert.Equal(t, 112., c.Route[0].Y)
}

func TestRouteClearsDanglingConnections(t *testing.T) {
	t.Parallel()

	g := m2graph.NewGraph()
	a := g.Nodes.Create(geo.NewPoint(0, 0))
	g.Connections.Put(&m2graph.Connection{ID: 1, Src: a.ID, Dst: 99, Route: []*geo.Point{geo.NewPoint(0, 0), geo.NewPoint(1, 1)}})

	v := m2viewport.NewViewport()
	m2layout.Route(g, v)

	if g.Connections.Get(1).Route != nil {
		t.Fatal("expected the dangling connection's route to be cleared")
	}
}
