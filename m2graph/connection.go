package m2graph

import (
	"oss.mindsketch.dev/m2/lib/geo"
	"oss.mindsketch.dev/m2/m2target"
)

type Connection struct {
	ID int

	Src int
	Dst int

	Stroke      string
	StrokeWidth int
	Arrowhead   m2target.Arrowhead

	// Route is the derived screen-space endpoint pair (start near Src's
	// border, end short of Dst's), recomputed by the layout pass after every
	// mutation. Nil until routed. Never persisted.
	Route []*geo.Point
}

func (c *Connection) Copy() *Connection {
	c2 := *c
	c2.Route = make([]*geo.Point, len(c.Route))
	for i, p := range c.Route {
		c2.Route[i] = p.Copy()
	}
	return &c2
}

// ConnectionGraph owns the directed edges of the live map. It checks
// endpoint existence against the node store it was built over; the store
// itself never learns about edges.
type ConnectionGraph struct {
	nodes *NodeStore

	conns  []*Connection
	byID   map[int]*Connection
	nextID int
}

func NewConnectionGraph(nodes *NodeStore) *ConnectionGraph {
	return &ConnectionGraph{
		nodes:  nodes,
		byID:   make(map[int]*Connection),
		nextID: 1,
	}
}

// Connect creates src -> dst with default styling. Self loops and unknown
// endpoints are refused by returning nil. Duplicate edges between the same
// ordered pair are permitted; users re-create links freely.
func (cg *ConnectionGraph) Connect(srcID, dstID int) *Connection {
	if srcID == dstID {
		return nil
	}
	if cg.nodes.Get(srcID) == nil || cg.nodes.Get(dstID) == nil {
		return nil
	}

	base := m2target.BaseConnection()
	c := &Connection{
		ID:          cg.nextID,
		Src:         srcID,
		Dst:         dstID,
		Stroke:      base.Stroke,
		StrokeWidth: base.StrokeWidth,
		Arrowhead:   base.Arrowhead,
	}
	cg.nextID++
	cg.conns = append(cg.conns, c)
	cg.byID[c.ID] = c
	return c
}

// Put inserts an already-built connection, advancing the id counter past it.
func (cg *ConnectionGraph) Put(c *Connection) {
	if c.ID >= cg.nextID {
		cg.nextID = c.ID + 1
	}
	cg.conns = append(cg.conns, c)
	cg.byID[c.ID] = c
}

// Get returns nil when the id is unknown.
func (cg *ConnectionGraph) Get(id int) *Connection {
	return cg.byID[id]
}

// All returns connections in creation order. Callers must not mutate the
// slice.
func (cg *ConnectionGraph) All() []*Connection {
	return cg.conns
}

func (cg *ConnectionGraph) Len() int {
	return len(cg.conns)
}

func (cg *ConnectionGraph) Delete(id int) {
	if _, ok := cg.byID[id]; !ok {
		return
	}
	delete(cg.byID, id)
	for i, c := range cg.conns {
		if c.ID == id {
			cg.conns = append(cg.conns[:i], cg.conns[i+1:]...)
			break
		}
	}
}

// DeleteByNode removes every connection with nodeID as either endpoint.
func (cg *ConnectionGraph) DeleteByNode(nodeID int) {
	kept := cg.conns[:0]
	for _, c := range cg.conns {
		if c.Src == nodeID || c.Dst == nodeID {
			delete(cg.byID, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	cg.conns = kept
}

// At returns the topmost connection whose routed line passes within
// tolerance of the screen point, or nil. Unrouted connections can't be hit.
func (cg *ConnectionGraph) At(p *geo.Point, tolerance float64) *Connection {
	for i := len(cg.conns) - 1; i >= 0; i-- {
		c := cg.conns[i]
		if len(c.Route) < 2 {
			continue
		}
		if p.DistanceToLine(c.Route[0], c.Route[1]) <= tolerance {
			return c
		}
	}
	return nil
}
