// Package m2workspace manages the set of maps in a session: which one is
// live, snapshotting the live surface back into its record, and moving
// between the live model and the serializable form.
//
// Only one map is live at a time. Its nodes and connections exist as
// m2graph state; every other map exists only as its m2target record. The
// viewport is session state and carries across map switches unchanged.
package m2workspace

import (
	"sort"
	"strconv"
	"time"

	"oss.mindsketch.dev/m2/lib/geo"
	"oss.mindsketch.dev/m2/m2graph"
	"oss.mindsketch.dev/m2/m2layout"
	"oss.mindsketch.dev/m2/m2target"
	"oss.mindsketch.dev/m2/m2viewport"
)

type Workspace struct {
	// Graph is the live surface for the current map.
	Graph    *m2graph.Graph
	Viewport *m2viewport.Viewport

	// Now returns wall time for map timestamps. Tests swap it for a fixed
	// clock.
	Now func() time.Time

	maps      map[string]*m2target.Map
	currentID string
	nextMapID int

	// dirty tracks changes since the last persist. liveDirty tracks live
	// surface edits since the last snapshot; snapshotting a dirty surface
	// refreshes the map's UpdatedAt.
	dirty     bool
	liveDirty bool
}

// New returns a workspace with a single empty map named "Map 1" live.
func New() *Workspace {
	ws := &Workspace{
		Graph:    m2graph.NewGraph(),
		Viewport: m2viewport.NewViewport(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
		maps: make(map[string]*m2target.Map),
	}
	now := ws.Now()
	m := &m2target.Map{
		ID:        "1",
		Name:      "Map 1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	ws.maps[m.ID] = m
	ws.currentID = m.ID
	ws.nextMapID = 2
	return ws
}

func (ws *Workspace) CurrentMapID() string {
	return ws.currentID
}

// CurrentMap returns the live map's record. Its node and connection slices
// lag the live surface until the next snapshot; use the metadata, not the
// contents.
func (ws *Workspace) CurrentMap() *m2target.Map {
	return ws.maps[ws.currentID]
}

// MapIDs returns every map id, numeric ids first in numeric order.
func (ws *Workspace) MapIDs() []string {
	ids := make([]string, 0, len(ws.maps))
	for id := range ws.maps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return idLess(ids[i], ids[j])
	})
	return ids
}

// Touch records a live surface mutation for dirty tracking and timestamp
// refresh.
func (ws *Workspace) Touch() {
	ws.dirty = true
	ws.liveDirty = true
}

// Dirty reports whether the workspace has changed since the last persist.
func (ws *Workspace) Dirty() bool {
	return ws.dirty || ws.liveDirty
}

// ClearDirty marks the workspace persisted. Call it after a successful save
// of Serialize's output.
func (ws *Workspace) ClearDirty() {
	ws.dirty = false
}

// CreateMap snapshots the outgoing map, then creates an empty map with the
// next sequential id and activates it. An empty name defaults to "Map N".
func (ws *Workspace) CreateMap(name string) *m2target.Map {
	ws.snapshot()

	id := strconv.Itoa(ws.nextMapID)
	ws.nextMapID++
	if name == "" {
		name = "Map " + id
	}
	now := ws.Now()
	m := &m2target.Map{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ws.maps[id] = m
	ws.currentID = id
	ws.Graph = m2graph.NewGraph()
	ws.liveDirty = false
	ws.dirty = true
	return m
}

// SwitchTo snapshots the outgoing map and rehydrates the live surface from
// the named map's record. Unknown or already-active ids are no-ops.
func (ws *Workspace) SwitchTo(mapID string) {
	if mapID == ws.currentID {
		return
	}
	m, ok := ws.maps[mapID]
	if !ok {
		return
	}
	ws.snapshot()
	ws.currentID = mapID
	ws.rehydrate(m)
	ws.dirty = true
}

// CloseMap removes the map. Closing the active map activates the lowest
// remaining id; closing the last map resets the workspace to a fresh
// default.
func (ws *Workspace) CloseMap(mapID string) {
	if _, ok := ws.maps[mapID]; !ok {
		return
	}
	active := mapID == ws.currentID
	delete(ws.maps, mapID)
	ws.dirty = true

	if len(ws.maps) == 0 {
		now := ws.Now()
		m := &m2target.Map{
			ID:        "1",
			Name:      "Map 1",
			CreatedAt: now,
			UpdatedAt: now,
		}
		ws.maps[m.ID] = m
		ws.currentID = m.ID
		ws.nextMapID = 2
		ws.Graph = m2graph.NewGraph()
		ws.liveDirty = false
		return
	}
	if active {
		ws.currentID = ws.MapIDs()[0]
		ws.rehydrate(ws.maps[ws.currentID])
	}
}

// RenameMap sets the map's display name. Unknown ids and empty names are
// no-ops.
func (ws *Workspace) RenameMap(mapID, name string) {
	m, ok := ws.maps[mapID]
	if !ok || name == "" || name == m.Name {
		return
	}
	m.Name = name
	m.UpdatedAt = ws.Now()
	ws.dirty = true
}

// Serialize snapshots the live surface and returns a deep copy of the
// workspace in its persisted form. Mutating the result does not affect the
// workspace.
func (ws *Workspace) Serialize() *m2target.Workspace {
	ws.snapshot()
	out := &m2target.Workspace{
		Maps:         make(map[string]*m2target.Map, len(ws.maps)),
		CurrentMapID: ws.currentID,
	}
	for id, m := range ws.maps {
		out.Maps[id] = m.Copy()
	}
	return out
}

// Deserialize replaces the workspace's maps with the payload's and activates
// its current map, falling back to the lowest id when that id is unknown.
// The live surface is rebuilt from the activated record; the payload is
// copied in, so the caller keeps ownership of it. A nil or empty payload
// loads the default workspace.
func (ws *Workspace) Deserialize(t *m2target.Workspace) {
	if t == nil || len(t.Maps) == 0 {
		t = m2target.Default()
	}
	ws.maps = make(map[string]*m2target.Map, len(t.Maps))
	ws.nextMapID = 1
	for id, m := range t.Maps {
		if m == nil {
			m = &m2target.Map{ID: id}
		}
		m = m.Copy()
		m.ID = id
		ws.maps[id] = m
		if n, err := strconv.Atoi(id); err == nil && n >= ws.nextMapID {
			ws.nextMapID = n + 1
		}
	}
	ws.currentID = t.CurrentMapID
	if _, ok := ws.maps[ws.currentID]; !ok {
		ws.currentID = ws.MapIDs()[0]
	}
	ws.rehydrate(ws.maps[ws.currentID])
	ws.dirty = false
}

// snapshot writes the live surface back into the current map's record so
// the record reflects every node and connection as rendered. A surface with
// edits since the last snapshot refreshes the record's UpdatedAt.
func (ws *Workspace) snapshot() {
	m := ws.maps[ws.currentID]
	if m == nil {
		return
	}
	m.Nodes = make([]*m2target.Node, 0, ws.Graph.Nodes.Len())
	for _, n := range ws.Graph.Nodes.All() {
		m.Nodes = append(m.Nodes, exportNode(n))
	}
	m.Connections = make([]*m2target.Connection, 0, ws.Graph.Connections.Len())
	for _, c := range ws.Graph.Connections.All() {
		m.Connections = append(m.Connections, exportConnection(c))
	}
	if ws.liveDirty {
		m.UpdatedAt = ws.Now()
		ws.liveDirty = false
	}
}

// rehydrate rebuilds the live surface from a map record. Connections with
// missing endpoints or self loops are dropped; duplicate ids keep their
// first occurrence. Restored ids advance the id counters so later creates
// never collide.
func (ws *Workspace) rehydrate(m *m2target.Map) {
	ws.Graph = m2graph.NewGraph()
	for _, tn := range m.Nodes {
		if ws.Graph.Nodes.Get(tn.ID) != nil {
			continue
		}
		ws.Graph.Nodes.Put(importNode(tn))
	}
	for _, tc := range m.Connections {
		if tc.Src == tc.Dst {
			continue
		}
		if ws.Graph.Nodes.Get(tc.Src) == nil || ws.Graph.Nodes.Get(tc.Dst) == nil {
			continue
		}
		if ws.Graph.Connections.Get(tc.ID) != nil {
			continue
		}
		ws.Graph.Connections.Put(importConnection(tc))
	}
	ws.liveDirty = false
	m2layout.Route(ws.Graph, ws.Viewport)
}

func exportNode(n *m2graph.Node) *m2target.Node {
	return &m2target.Node{
		ID: n.ID,
		Pos: geo.Point{
			X: geo.TruncateDecimals(n.Pos.X),
			Y: geo.TruncateDecimals(n.Pos.Y),
		},
		Width:    geo.TruncateDecimals(n.Width),
		Height:   geo.TruncateDecimals(n.Height),
		Text:     n.Text,
		Shape:    n.Shape,
		Fill:     n.Fill,
		FontSize: n.FontSize,
	}
}

func importNode(tn *m2target.Node) *m2graph.Node {
	return &m2graph.Node{
		ID:       tn.ID,
		Pos:      geo.NewPoint(tn.Pos.X, tn.Pos.Y),
		Width:    tn.Width,
		Height:   tn.Height,
		Text:     tn.Text,
		Shape:    tn.Shape,
		Fill:     tn.Fill,
		FontSize: tn.FontSize,
	}
}

func exportConnection(c *m2graph.Connection) *m2target.Connection {
	return &m2target.Connection{
		ID:          c.ID,
		Src:         c.Src,
		Dst:         c.Dst,
		Stroke:      c.Stroke,
		StrokeWidth: c.StrokeWidth,
		Arrowhead:   c.Arrowhead,
	}
}

func importConnection(tc *m2target.Connection) *m2graph.Connection {
	return &m2graph.Connection{
		ID:          tc.ID,
		Src:         tc.Src,
		Dst:         tc.Dst,
		Stroke:      tc.Stroke,
		StrokeWidth: tc.StrokeWidth,
		Arrowhead:   tc.Arrowhead,
	}
}

// Numeric ids order numerically so "10" follows "9"; non-numeric ids order
// lexically after every numeric one.
func idLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}
