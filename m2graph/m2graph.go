// Package m2graph holds the live entity model for the active map: the node
// store, the connection graph over it, and the invariants between them. It is
// the single source of truth during an editing session; renderers read from
// it and never the reverse.
//
// Operations on ids that no longer exist are no-ops. Interactions race the
// model through normal UI event ordering (a drag can outlive its node), so
// absence is not an error.
package m2graph

import (
	"oss.mindsketch.dev/m2/lib/color"
	"oss.mindsketch.dev/m2/lib/geo"
	"oss.mindsketch.dev/m2/m2target"
)

type Graph struct {
	Nodes       *NodeStore
	Connections *ConnectionGraph
}

func NewGraph() *Graph {
	nodes := NewNodeStore()
	return &Graph{
		Nodes:       nodes,
		Connections: NewConnectionGraph(nodes),
	}
}

// DeleteNode removes the node and cascades to every connection touching it.
// After it returns no connection references the id.
func (g *Graph) DeleteNode(id int) {
	if g.Nodes.Get(id) == nil {
		return
	}
	g.Nodes.Delete(id)
	g.Connections.DeleteByNode(id)
}

// BoundingBox is the world-space box enclosing every node, or nil for an
// empty graph.
func (g *Graph) BoundingBox() *geo.Box {
	var bb *geo.Box
	for _, n := range g.Nodes.All() {
		if bb == nil {
			bb = n.Box()
		} else {
			bb.Expand(n.Box())
		}
	}
	return bb
}

type Node struct {
	ID int

	// Pos is the node's center in world coordinates, so size changes grow
	// the node symmetrically.
	Pos    *geo.Point
	Width  float64
	Height float64

	Text  string
	Shape string

	// Fill is empty or a canonical hex color.
	Fill     string
	FontSize int
}

// Box is the node's world-space footprint, derived from the center position.
func (n *Node) Box() *geo.Box {
	return geo.NewBox(geo.NewPoint(n.Pos.X-n.Width/2, n.Pos.Y-n.Height/2), n.Width, n.Height)
}

// ScreenBox is the node's footprint under the given viewport transform.
func (n *Node) ScreenBox(zoom float64, pan *geo.Point) *geo.Box {
	return geo.WorldToScreenBox(n.Box(), zoom, pan)
}

func (n *Node) Copy() *Node {
	n2 := *n
	n2.Pos = n.Pos.Copy()
	return &n2
}

// NodePatch updates the set fields of a node. Fields that would break an
// invariant (unknown shape, unparseable fill) are ignored field-wise.
type NodePatch struct {
	Text     *string
	Shape    *string
	Fill     *string
	FontSize *int
}

type NodeStore struct {
	// creation order, which is also z-order: later nodes sit on top.
	nodes  []*Node
	byID   map[int]*Node
	nextID int
}

func NewNodeStore() *NodeStore {
	return &NodeStore{
		byID:   make(map[int]*Node),
		nextID: 1,
	}
}

// Create adds a node centered at pos with the default size, shape and text
// and assigns it the next id.
func (s *NodeStore) Create(pos *geo.Point) *Node {
	n := &Node{
		ID:     s.nextID,
		Pos:    pos.Copy(),
		Width:  m2target.DefaultWidth,
		Height: m2target.DefaultHeight,
		Text:   m2target.DefaultText,
		Shape:  m2target.ShapeRectangle,
	}
	s.nextID++
	s.nodes = append(s.nodes, n)
	s.byID[n.ID] = n
	return n
}

// Put inserts an already-built node, advancing the id counter past it.
// Rehydration uses it so later Creates never collide with restored ids.
func (s *NodeStore) Put(n *Node) {
	if n.ID >= s.nextID {
		s.nextID = n.ID + 1
	}
	s.nodes = append(s.nodes, n)
	s.byID[n.ID] = n
}

// Get returns nil when the id is unknown.
func (s *NodeStore) Get(id int) *Node {
	return s.byID[id]
}

// All returns nodes in creation (z) order. Callers must not mutate the slice.
func (s *NodeStore) All() []*Node {
	return s.nodes
}

func (s *NodeStore) Len() int {
	return len(s.nodes)
}

func (s *NodeStore) Update(id int, patch NodePatch) {
	n := s.byID[id]
	if n == nil {
		return
	}
	if patch.Text != nil {
		n.Text = *patch.Text
	}
	if patch.Shape != nil && m2target.IsShape(*patch.Shape) {
		n.Shape = *patch.Shape
		if m2target.ShapeAspectRatio1(n.Shape) && n.Width != n.Height {
			side := max(n.Width, n.Height)
			n.Width = side
			n.Height = side
		}
	}
	if patch.Fill != nil {
		if *patch.Fill == "" {
			n.Fill = ""
		} else if hex, err := color.Validate(*patch.Fill); err == nil {
			n.Fill = hex
		}
	}
	if patch.FontSize != nil && *patch.FontSize >= 0 {
		n.FontSize = *patch.FontSize
	}
}

func (s *NodeStore) Move(id int, dx, dy float64) {
	n := s.byID[id]
	if n == nil {
		return
	}
	n.Pos.X += dx
	n.Pos.Y += dy
}

// Resize clamps to the minimum size, then collapses width/height to their max
// for 1:1 shapes.
func (s *NodeStore) Resize(id int, width, height float64) {
	n := s.byID[id]
	if n == nil {
		return
	}
	width = max(width, m2target.MinWidth)
	height = max(height, m2target.MinHeight)
	if m2target.ShapeAspectRatio1(n.Shape) {
		side := max(width, height)
		width = side
		height = side
	}
	n.Width = width
	n.Height = height
}

func (s *NodeStore) Delete(id int) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, n := range s.nodes {
		if n.ID == id {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			break
		}
	}
}

// NodeAt returns the topmost node whose box contains the world point, or nil.
func (s *NodeStore) NodeAt(p *geo.Point) *Node {
	for i := len(s.nodes) - 1; i >= 0; i-- {
		if s.nodes[i].Box().Contains(p) {
			return s.nodes[i]
		}
	}
	return nil
}
