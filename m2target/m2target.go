// Package m2target is the serializable form of a workspace: the document
// shape persisted by stores, served by the reference backend, and validated
// by the CLI. It carries no live state and no derived geometry; connection
// routes are recomputed after load, never stored.
package m2target

import (
	"fmt"
	"time"

	"oss.mindsketch.dev/m2/lib/color"
	"oss.mindsketch.dev/m2/lib/geo"
)

const (
	ShapeRectangle = "rectangle"
	ShapeCircle    = "circle"
	ShapeSquare    = "square"
	ShapeDiamond   = "diamond"
)

var Shapes = []string{
	ShapeRectangle,
	ShapeCircle,
	ShapeSquare,
	ShapeDiamond,
}

func IsShape(s string) bool {
	for _, s2 := range Shapes {
		if s == s2 {
			return true
		}
	}
	return false
}

// Circles, squares and diamonds keep a 1:1 aspect ratio on every resize.
func ShapeAspectRatio1(s string) bool {
	return s == ShapeCircle || s == ShapeSquare || s == ShapeDiamond
}

type Arrowhead string

const (
	NoArrowhead    Arrowhead = "none"
	ArrowArrowhead Arrowhead = "arrow"
)

func IsArrowhead(a Arrowhead) bool {
	return a == NoArrowhead || a == ArrowArrowhead
}

const (
	DefaultWidth  = 180.
	DefaultHeight = 60.

	MinWidth  = 120.
	MinHeight = 60.

	DefaultText = "New Node"

	DefaultStroke      = "#0d32b2"
	DefaultStrokeWidth = 2
)

type Workspace struct {
	Maps         map[string]*Map `json:"maps"`
	CurrentMapID string          `json:"currentMapId"`
}

type Map struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Nodes       []*Node       `json:"nodes"`
	Connections []*Connection `json:"connections"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Node struct {
	ID int `json:"id"`

	// Pos is the node's center in world coordinates.
	Pos    geo.Point `json:"pos"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`

	Text  string `json:"text"`
	Shape string `json:"shape"`

	Fill     string `json:"fill,omitempty"`
	FontSize int    `json:"fontSize,omitempty"`
}

type Connection struct {
	ID int `json:"id"`

	Src int `json:"src"`
	Dst int `json:"dst"`

	Stroke      string    `json:"stroke"`
	StrokeWidth int       `json:"strokeWidth"`
	Arrowhead   Arrowhead `json:"arrowhead"`
}

func BaseNode() *Node {
	return &Node{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Text:   DefaultText,
		Shape:  ShapeRectangle,
	}
}

func BaseConnection() *Connection {
	return &Connection{
		Stroke:      DefaultStroke,
		StrokeWidth: DefaultStrokeWidth,
		Arrowhead:   ArrowArrowhead,
	}
}

// Default is the workspace used when no persisted data exists (or it cannot
// be read): a single empty map named "Map 1".
func Default() *Workspace {
	m := &Map{
		ID:   "1",
		Name: "Map 1",
	}
	return &Workspace{
		Maps:         map[string]*Map{m.ID: m},
		CurrentMapID: m.ID,
	}
}

func (ws *Workspace) Copy() *Workspace {
	if ws == nil {
		return nil
	}
	ws2 := &Workspace{
		Maps:         make(map[string]*Map, len(ws.Maps)),
		CurrentMapID: ws.CurrentMapID,
	}
	for id, m := range ws.Maps {
		ws2.Maps[id] = m.Copy()
	}
	return ws2
}

func (m *Map) Copy() *Map {
	if m == nil {
		return nil
	}
	m2 := *m
	m2.Nodes = make([]*Node, len(m.Nodes))
	for i, n := range m.Nodes {
		n2 := *n
		m2.Nodes[i] = &n2
	}
	m2.Connections = make([]*Connection, len(m.Connections))
	for i, c := range m.Connections {
		c2 := *c
		m2.Connections[i] = &c2
	}
	return &m2
}

// Validate reports every semantic problem in the document. An empty result
// means the workspace is safe to load as-is; the engine tolerates most of
// these anyway (dangling connections are dropped on load), so findings are
// diagnostics, not load failures.
func (ws *Workspace) Validate() []error {
	var errs []error
	if len(ws.Maps) == 0 {
		errs = append(errs, fmt.Errorf("workspace has no maps"))
		return errs
	}
	if _, ok := ws.Maps[ws.CurrentMapID]; !ok {
		errs = append(errs, fmt.Errorf("currentMapId %q does not match any map", ws.CurrentMapID))
	}
	for id, m := range ws.Maps {
		if m == nil {
			errs = append(errs, fmt.Errorf("map %q is null", id))
			continue
		}
		if m.ID != id {
			errs = append(errs, fmt.Errorf("map %q declares mismatched id %q", id, m.ID))
		}
		errs = append(errs, m.validate()...)
	}
	return errs
}

func (m *Map) validate() []error {
	var errs []error

	nodeIDs := make(map[int]struct{}, len(m.Nodes))
	for _, n := range m.Nodes {
		if _, ok := nodeIDs[n.ID]; ok {
			errs = append(errs, fmt.Errorf("map %q: duplicate node id %d", m.ID, n.ID))
		}
		nodeIDs[n.ID] = struct{}{}

		if !IsShape(n.Shape) {
			errs = append(errs, fmt.Errorf("map %q: node %d has unknown shape %q", m.ID, n.ID, n.Shape))
		}
		if ShapeAspectRatio1(n.Shape) && n.Width != n.Height {
			errs = append(errs, fmt.Errorf("map %q: node %d is a %s but is %vx%v", m.ID, n.ID, n.Shape, n.Width, n.Height))
		}
		if n.Fill != "" {
			if _, err := color.Validate(n.Fill); err != nil {
				errs = append(errs, fmt.Errorf("map %q: node %d has invalid fill %q: %v", m.ID, n.ID, n.Fill, err))
			}
		}
	}

	connIDs := make(map[int]struct{}, len(m.Connections))
	for _, c := range m.Connections {
		if _, ok := connIDs[c.ID]; ok {
			errs = append(errs, fmt.Errorf("map %q: duplicate connection id %d", m.ID, c.ID))
		}
		connIDs[c.ID] = struct{}{}

		if _, ok := nodeIDs[c.Src]; !ok {
			errs = append(errs, fmt.Errorf("map %q: connection %d references missing node %d", m.ID, c.ID, c.Src))
		}
		if _, ok := nodeIDs[c.Dst]; !ok {
			errs = append(errs, fmt.Errorf("map %q: connection %d references missing node %d", m.ID, c.ID, c.Dst))
		}
		if c.Src == c.Dst {
			errs = append(errs, fmt.Errorf("map %q: connection %d is a self loop on node %d", m.ID, c.ID, c.Src))
		}
		if !IsArrowhead(c.Arrowhead) {
			errs = append(errs, fmt.Errorf("map %q: connection %d has unknown arrowhead %q", m.ID, c.ID, c.Arrowhead))
		}
	}
	return errs
}
