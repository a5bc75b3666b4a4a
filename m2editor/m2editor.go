// Package m2editor is the interaction state machine over a workspace: it
// translates host pointer and keyboard events into named model operations.
// Hosts own the actual event plumbing and rendering; the editor owns what
// the events mean.
//
// The editor is single pointer. Every coordinate that crosses the API is
// screen-space; the editor converts through the workspace viewport where an
// operation needs world coordinates. All mutation is synchronous inside the
// event call, so one interaction is in flight at a time and there is no
// reentrancy.
package m2editor

import (
	"time"

	"oss.mindsketch.dev/m2/lib/color"
	"oss.mindsketch.dev/m2/lib/geo"
	"oss.mindsketch.dev/m2/m2graph"
	"oss.mindsketch.dev/m2/m2layout"
	"oss.mindsketch.dev/m2/m2workspace"
)

type State int

const (
	StateIdle State = iota
	StatePanningCanvas
	StateDraggingNode
	StateResizingNode
	StateConnectingFirstPick
	StateEditingNodeText
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePanningCanvas:
		return "panning-canvas"
	case StateDraggingNode:
		return "dragging-node"
	case StateResizingNode:
		return "resizing-node"
	case StateConnectingFirstPick:
		return "connecting-first-pick"
	case StateEditingNodeText:
		return "editing-node-text"
	default:
		return "unknown"
	}
}

const (
	// ClickSlop is the screen displacement under which a press-release pair
	// counts as a click rather than a drag or pan.
	ClickSlop = 5.

	// ResizeHotzone is the screen radius around a node's bottom-right corner
	// that starts a resize instead of a drag.
	ResizeHotzone = 15.

	// ConnectionHitTolerance is the screen distance within which a press
	// selects a connection line, checked only when no node is hit.
	ConnectionHitTolerance = 6.

	// DoubleClickWindow is the most time allowed between two clicks on the
	// same node for the second to open the text editor.
	DoubleClickWindow = 300 * time.Millisecond
)

type Editor struct {
	ws *m2workspace.Workspace

	// Now returns wall time for double-click detection. Tests swap it for a
	// fixed clock.
	Now func() time.Time

	state State

	// selection is mutually exclusive: at most one of these is set.
	selectedNode int
	selectedConn int

	connectMode bool
	connectFrom int

	pointerDown bool
	downAt      *geo.Point
	lastAt      *geo.Point
	dragNode    int

	// resizeAnchor is the dragged node's world-space top-left, pinned for
	// the whole resize gesture.
	resizeAnchor *geo.Point

	lastClickNode int
	lastClickAt   time.Time

	editNode int
	buffer   string
}

func New(ws *m2workspace.Workspace) *Editor {
	return &Editor{
		ws:  ws,
		Now: time.Now,
	}
}

func (e *Editor) Workspace() *m2workspace.Workspace {
	return e.ws
}

func (e *Editor) State() State {
	return e.state
}

// SelectedNode returns the selected node, or nil when none is selected or
// the selection went stale.
func (e *Editor) SelectedNode() *m2graph.Node {
	if e.selectedNode == 0 {
		return nil
	}
	return e.ws.Graph.Nodes.Get(e.selectedNode)
}

func (e *Editor) SelectedConnection() *m2graph.Connection {
	if e.selectedConn == 0 {
		return nil
	}
	return e.ws.Graph.Connections.Get(e.selectedConn)
}

// HighlightColor derives the selection highlight from the selected node's
// fill. Nodes without a fill highlight with the host's default, signaled by
// "".
func (e *Editor) HighlightColor() string {
	n := e.SelectedNode()
	if n == nil || n.Fill == "" {
		return ""
	}
	darkened, err := color.Darken(n.Fill)
	if err != nil {
		return ""
	}
	return darkened
}

// NodeTextColor picks the label color for a node: white over dark fills,
// ink over bright ones. Nodes without a fill (or with one that does not
// parse) use the host's default, signaled by "".
func NodeTextColor(n *m2graph.Node) string {
	if n.Fill == "" {
		return ""
	}
	category, err := color.LuminanceCategory(n.Fill)
	if err != nil {
		return ""
	}
	if category == "dark" || category == "darker" {
		return "#ffffff"
	}
	return "#0a0f25"
}

func (e *Editor) ConnectMode() bool {
	return e.connectMode
}

// ConnectSource returns the first-picked node while connecting, for the
// host to highlight.
func (e *Editor) ConnectSource() *m2graph.Node {
	if e.connectFrom == 0 {
		return nil
	}
	return e.ws.Graph.Nodes.Get(e.connectFrom)
}

// SetConnectMode toggles connect mode. Turning it off mid-pick cancels the
// pick. The toggle is ignored during text editing and while a pointer
// gesture is in flight.
func (e *Editor) SetConnectMode(on bool) {
	if e.state == StateEditingNodeText || e.pointerDown {
		return
	}
	if on == e.connectMode {
		return
	}
	e.connectMode = on
	if !on && e.state == StateConnectingFirstPick {
		e.connectFrom = 0
		e.state = StateIdle
	}
}

// EditingNode returns the node whose text is being edited, or nil.
func (e *Editor) EditingNode() *m2graph.Node {
	if e.state != StateEditingNodeText {
		return nil
	}
	return e.ws.Graph.Nodes.Get(e.editNode)
}

// PendingText is the uncommitted text buffer while editing.
func (e *Editor) PendingText() string {
	return e.buffer
}

// CreateNodeAt creates a node centered on the given screen point, selects
// it, and returns it. Only valid from idle outside connect mode; otherwise
// nil.
func (e *Editor) CreateNodeAt(x, y float64) *m2graph.Node {
	if e.state != StateIdle || e.connectMode || e.pointerDown {
		return nil
	}
	n := e.ws.Graph.Nodes.Create(e.screenToWorld(geo.NewPoint(x, y)))
	e.selectNode(n.ID)
	e.lastClickNode = 0
	e.routeAndTouch()
	return n
}

func (e *Editor) PointerDown(x, y float64) {
	if e.pointerDown {
		return
	}
	if e.state == StateEditingNodeText {
		// pressing anywhere blurs the editor, then the press proceeds
		e.commitEdit()
	}

	p := geo.NewPoint(x, y)
	e.pointerDown = true
	e.downAt = p
	e.lastAt = p.Copy()

	if e.connectMode {
		e.connectPick(p)
		return
	}

	n, resize := e.nodeForPress(p)
	if n != nil {
		e.selectNode(n.ID)
		e.dragNode = n.ID
		if resize {
			e.state = StateResizingNode
			e.resizeAnchor = n.Box().TopLeft.Copy()
		} else {
			e.state = StateDraggingNode
		}
		return
	}

	if c := e.ws.Graph.Connections.At(p, ConnectionHitTolerance); c != nil {
		e.selectConnection(c.ID)
		e.lastClickNode = 0
		return
	}

	e.state = StatePanningCanvas
}

func (e *Editor) PointerMove(x, y float64) {
	if !e.pointerDown {
		return
	}
	p := geo.NewPoint(x, y)
	dx := p.X - e.lastAt.X
	dy := p.Y - e.lastAt.Y
	e.lastAt = p

	switch e.state {
	case StatePanningCanvas:
		e.ws.Viewport.PanBy(dx, dy)
		e.route()
	case StateDraggingNode:
		zoom := e.ws.Viewport.Zoom
		e.ws.Graph.Nodes.Move(e.dragNode, dx/zoom, dy/zoom)
		e.routeAndTouch()
	case StateResizingNode:
		e.resizeTo(p)
	}
}

func (e *Editor) PointerUp(x, y float64) {
	if !e.pointerDown {
		return
	}
	e.pointerDown = false
	p := geo.NewPoint(x, y)
	click := e.downAt.DistanceTo(p) < ClickSlop

	switch e.state {
	case StatePanningCanvas:
		if click {
			// it was a deselect click, not a pan: undo the jitter
			e.ws.Viewport.PanBy(e.downAt.X-e.lastAt.X, e.downAt.Y-e.lastAt.Y)
			e.route()
			e.clearSelection()
			e.lastClickNode = 0
		}
		e.state = StateIdle
	case StateDraggingNode:
		e.state = StateIdle
		if !click {
			e.lastClickNode = 0
			break
		}
		now := e.Now()
		if e.lastClickNode == e.dragNode && now.Sub(e.lastClickAt) <= DoubleClickWindow {
			e.lastClickNode = 0
			e.startEdit(e.dragNode)
		} else {
			e.lastClickNode = e.dragNode
			e.lastClickAt = now
		}
	case StateResizingNode:
		e.state = StateIdle
		e.resizeAnchor = nil
		e.lastClickNode = 0
	}
	e.dragNode = 0
}

func (e *Editor) KeyDown(key string, shift bool) {
	switch e.state {
	case StateEditingNodeText:
		switch key {
		case "Enter":
			if shift {
				e.buffer += "\n"
				return
			}
			e.commitEdit()
		case "Escape":
			e.cancelEdit()
		}
	case StateConnectingFirstPick:
		if key == "Escape" {
			e.connectFrom = 0
			e.connectMode = false
			e.state = StateIdle
		}
	case StateIdle:
		switch key {
		case "Delete", "Backspace":
			e.deleteSelection()
		case "Escape":
			e.clearSelection()
			e.connectMode = false
		}
	}
}

// TextInput replaces the pending buffer while editing. Ignored otherwise.
func (e *Editor) TextInput(s string) {
	if e.state != StateEditingNodeText {
		return
	}
	e.buffer = s
}

// Blur commits any in-progress text edit, like clicking away does.
func (e *Editor) Blur() {
	if e.state != StateEditingNodeText {
		return
	}
	e.commitEdit()
}

// Zoom scales the viewport about the given screen pivot. Ignored while
// editing text.
func (e *Editor) Zoom(factor, x, y float64) {
	if e.state == StateEditingNodeText {
		return
	}
	e.ws.Viewport.ZoomBy(factor, geo.NewPoint(x, y))
	e.route()
}

// ZoomToFit frames every node of the live map in the given screen size.
// Ignored while editing text.
func (e *Editor) ZoomToFit(width, height float64) {
	if e.state == StateEditingNodeText {
		return
	}
	e.ws.Viewport.ZoomToFit(e.ws.Graph.BoundingBox(), width, height)
	e.route()
}

func (e *Editor) connectPick(p *geo.Point) {
	n := e.nodeAtScreen(p)
	if n == nil {
		// canvas clicks don't leave connect mode
		return
	}
	if e.state != StateConnectingFirstPick {
		e.connectFrom = n.ID
		e.state = StateConnectingFirstPick
		return
	}
	if n.ID == e.connectFrom {
		return
	}
	e.ws.Graph.Connections.Connect(e.connectFrom, n.ID)
	e.connectFrom = 0
	e.connectMode = false
	e.state = StateIdle
	e.clearSelection()
	e.routeAndTouch()
}

func (e *Editor) resizeTo(p *geo.Point) {
	n := e.ws.Graph.Nodes.Get(e.dragNode)
	if n == nil {
		e.state = StateIdle
		e.resizeAnchor = nil
		return
	}
	wp := e.screenToWorld(p)
	e.ws.Graph.Nodes.Resize(e.dragNode, wp.X-e.resizeAnchor.X, wp.Y-e.resizeAnchor.Y)

	// the store keeps the center fixed; shift it so the top-left stays
	// pinned and the dragged corner tracks the pointer
	n = e.ws.Graph.Nodes.Get(e.dragNode)
	cx := e.resizeAnchor.X + n.Width/2
	cy := e.resizeAnchor.Y + n.Height/2
	e.ws.Graph.Nodes.Move(e.dragNode, cx-n.Pos.X, cy-n.Pos.Y)
	e.routeAndTouch()
}

func (e *Editor) deleteSelection() {
	switch {
	case e.selectedNode != 0:
		e.ws.Graph.DeleteNode(e.selectedNode)
		e.selectedNode = 0
	case e.selectedConn != 0:
		e.ws.Graph.Connections.Delete(e.selectedConn)
		e.selectedConn = 0
	default:
		return
	}
	e.lastClickNode = 0
	e.routeAndTouch()
}

func (e *Editor) startEdit(id int) {
	n := e.ws.Graph.Nodes.Get(id)
	if n == nil {
		return
	}
	e.editNode = id
	e.buffer = n.Text
	e.state = StateEditingNodeText
}

func (e *Editor) commitEdit() {
	text := e.buffer
	e.ws.Graph.Nodes.Update(e.editNode, m2graph.NodePatch{Text: &text})
	e.editNode = 0
	e.buffer = ""
	e.state = StateIdle
	e.routeAndTouch()
}

func (e *Editor) cancelEdit() {
	e.editNode = 0
	e.buffer = ""
	e.state = StateIdle
}

func (e *Editor) selectNode(id int) {
	e.selectedNode = id
	e.selectedConn = 0
}

func (e *Editor) selectConnection(id int) {
	e.selectedConn = id
	e.selectedNode = 0
}

func (e *Editor) clearSelection() {
	e.selectedNode = 0
	e.selectedConn = 0
}

// nodeForPress finds the topmost node the press lands on, preferring the
// resize hotzone around the bottom-right corner over the body so the corner
// stays grabbable on small nodes.
func (e *Editor) nodeForPress(p *geo.Point) (n *m2graph.Node, resize bool) {
	v := e.ws.Viewport
	nodes := e.ws.Graph.Nodes.All()
	for i := len(nodes) - 1; i >= 0; i-- {
		sb := nodes[i].ScreenBox(v.Zoom, v.Pan)
		corner := geo.NewPoint(sb.TopLeft.X+sb.Width, sb.TopLeft.Y+sb.Height)
		if p.DistanceTo(corner) <= ResizeHotzone {
			return nodes[i], true
		}
		if sb.Contains(p) {
			return nodes[i], false
		}
	}
	return nil, false
}

func (e *Editor) nodeAtScreen(p *geo.Point) *m2graph.Node {
	return e.ws.Graph.Nodes.NodeAt(e.screenToWorld(p))
}

func (e *Editor) screenToWorld(p *geo.Point) *geo.Point {
	return e.ws.Viewport.ScreenToWorld(p)
}

func (e *Editor) route() {
	m2layout.Route(e.ws.Graph, e.ws.Viewport)
}

func (e *Editor) routeAndTouch() {
	e.route()
	e.ws.Touch()
}
