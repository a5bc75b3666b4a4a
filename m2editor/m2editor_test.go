package m2editor_test

import (
	"testing"
	"time"

	"oss.terrastruct.com/util-go/assert"
	"oss.terrastruct.com/util-go/go2"

	"oss.mindsketch.dev/m2/m2editor"
	"oss.mindsketch.dev/m2/m2graph"
	"oss.mindsketch.dev/m2/m2workspace"
)

func newEditor() *m2editor.Editor {
	return m2editor.New(m2workspace.New())
}

func TestCreateNodeAt(t *testing.T) {
	t.Parallel()

	e := newEditor()
	n := e.CreateNodeAt(300, 200)
	assert.Equal(t, 1, n.ID)
	assert.Equal(t, 300., n.Pos.X)
	assert.Equal(t, 200., n.Pos.Y)
	assert.Equal(t, n.ID, e.SelectedNode().ID)
	assert.Equal(t, m2editor.StateIdle, e.State())
	assert.Equal(t, true, e.Workspace().Dirty())

	// under a transform the node still lands centered on the pointer
	e.Zoom(2, 0, 0)
	n2 := e.CreateNodeAt(100, 80)
	assert.Equal(t, 50., n2.Pos.X)
	assert.Equal(t, 40., n2.Pos.Y)
}

func TestCanvasClickDeselects(t *testing.T) {
	t.Parallel()

	e := newEditor()
	n := e.CreateNodeAt(300, 200)
	assert.Equal(t, n.ID, e.SelectedNode().ID)

	e.PointerDown(600, 400)
	e.PointerMove(602, 401)
	e.PointerUp(602, 401)

	assert.Equal(t, m2editor.StateIdle, e.State())
	if e.SelectedNode() != nil {
		t.Fatal("canvas click should clear the selection")
	}
	// the sub-slop jitter pan is rolled back
	assert.Equal(t, 0., e.Workspace().Viewport.Pan.X)
	assert.Equal(t, 0., e.Workspace().Viewport.Pan.Y)
}

func TestCanvasDragPans(t *testing.T) {
	t.Parallel()

	e := newEditor()
	e.CreateNodeAt(300, 200)

	e.PointerDown(600, 400)
	e.PointerMove(630, 390)
	e.PointerUp(630, 390)

	assert.Equal(t, m2editor.StateIdle, e.State())
	assert.Equal(t, 30., e.Workspace().Viewport.Pan.X)
	assert.Equal(t, -10., e.Workspace().Viewport.Pan.Y)
	if e.SelectedNode() == nil {
		t.Fatal("a real pan should keep the selection")
	}
}

func TestDragReroutesConnections(t *testing.T) {
	t.Parallel()

	e := newEditor()
	a := e.CreateNodeAt(100, 100)
	e.CreateNodeAt(400, 100)

	e.SetConnectMode(true)
	e.PointerDown(100, 100)
	e.PointerUp(100, 100)
	e.PointerDown(400, 100)
	e.PointerUp(400, 100)

	c := e.Workspace().Graph.Connections.Get(1)
	if c == nil {
		t.Fatal("expected a connection")
	}
	assert.Equal(t, false, e.ConnectMode())
	assert.Equal(t, 198., c.Route[0].X)
	assert.Equal(t, 100., c.Route[0].Y)
	assert.Equal(t, 294., c.Route[1].X)

	e.PointerDown(100, 100)
	e.PointerMove(150, 100)
	e.PointerUp(150, 100)

	assert.Equal(t, 150., a.Pos.X)
	assert.Equal(t, 248., c.Route[0].X)
	assert.Equal(t, 100., c.Route[0].Y)
	assert.Equal(t, 294., c.Route[1].X)
}

func TestConnectSelfRefused(t *testing.T) {
	t.Parallel()

	e := newEditor()
	a := e.CreateNodeAt(100, 100)

	e.SetConnectMode(true)
	if e.CreateNodeAt(5, 5) != nil {
		t.Fatal("node creation is disabled in connect mode")
	}

	e.PointerDown(100, 100)
	e.PointerUp(100, 100)
	assert.Equal(t, m2editor.StateConnectingFirstPick, e.State())
	assert.Equal(t, a.ID, e.ConnectSource().ID)

	// picking the same node again changes nothing
	e.PointerDown(110, 105)
	e.PointerUp(110, 105)
	assert.Equal(t, m2editor.StateConnectingFirstPick, e.State())
	assert.Equal(t, a.ID, e.ConnectSource().ID)
	assert.Equal(t, 0, e.Workspace().Graph.Connections.Len())
	assert.Equal(t, true, e.ConnectMode())

	// canvas clicks are ignored while picking
	e.PointerDown(600, 400)
	e.PointerUp(600, 400)
	assert.Equal(t, m2editor.StateConnectingFirstPick, e.State())

	e.KeyDown("Escape", false)
	assert.Equal(t, m2editor.StateIdle, e.State())
	assert.Equal(t, false, e.ConnectMode())
	if e.ConnectSource() != nil {
		t.Fatal("escape should drop the picked node")
	}
}

func TestResizeClampsAndPinsTopLeft(t *testing.T) {
	t.Parallel()

	e := newEditor()
	n := e.CreateNodeAt(300, 300)

	// the node's box is 210..390 x 270..330, so its corner is (390, 330)
	e.PointerDown(388, 328)
	assert.Equal(t, m2editor.StateResizingNode, e.State())

	e.PointerMove(260, 320)
	e.PointerUp(260, 320)

	assert.Equal(t, 120., n.Width)
	assert.Equal(t, 60., n.Height)
	box := n.Box()
	assert.Equal(t, 210., box.TopLeft.X)
	assert.Equal(t, 270., box.TopLeft.Y)
	assert.Equal(t, m2editor.StateIdle, e.State())
}

func TestResizeHotzone(t *testing.T) {
	t.Parallel()

	e := newEditor()
	e.CreateNodeAt(300, 300)

	// on the body, outside the corner radius
	e.PointerDown(300, 300)
	assert.Equal(t, m2editor.StateDraggingNode, e.State())
	e.PointerUp(300, 300)

	// just outside the border but within the corner radius
	e.PointerDown(395, 335)
	assert.Equal(t, m2editor.StateResizingNode, e.State())
	e.PointerUp(395, 335)
}

func TestDoubleClickEditsText(t *testing.T) {
	t.Parallel()

	e := newEditor()
	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }
	n := e.CreateNodeAt(300, 200)

	click := func() {
		e.PointerDown(300, 200)
		e.PointerUp(300, 200)
	}

	click()
	assert.Equal(t, m2editor.StateIdle, e.State())
	now = now.Add(200 * time.Millisecond)
	click()
	assert.Equal(t, m2editor.StateEditingNodeText, e.State())
	assert.Equal(t, "New Node", e.PendingText())
	assert.Equal(t, n.ID, e.EditingNode().ID)

	e.TextInput("Roadmap")
	e.KeyDown("Enter", true)
	assert.Equal(t, m2editor.StateEditingNodeText, e.State())
	assert.Equal(t, "Roadmap\n", e.PendingText())

	e.TextInput("Roadmap 2026")
	e.KeyDown("Enter", false)
	assert.Equal(t, m2editor.StateIdle, e.State())
	assert.Equal(t, "Roadmap 2026", n.Text)

	// escape discards the buffer
	now = now.Add(10 * time.Second)
	click()
	now = now.Add(100 * time.Millisecond)
	click()
	assert.Equal(t, m2editor.StateEditingNodeText, e.State())
	e.TextInput("scrap")
	e.KeyDown("Escape", false)
	assert.Equal(t, m2editor.StateIdle, e.State())
	assert.Equal(t, "Roadmap 2026", n.Text)
}

func TestSlowSecondClickDoesNotEdit(t *testing.T) {
	t.Parallel()

	e := newEditor()
	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }
	n := e.CreateNodeAt(300, 200)

	e.PointerDown(300, 200)
	e.PointerUp(300, 200)
	now = now.Add(400 * time.Millisecond)
	e.PointerDown(300, 200)
	e.PointerUp(300, 200)

	assert.Equal(t, m2editor.StateIdle, e.State())
	assert.Equal(t, n.ID, e.SelectedNode().ID)
	assert.Equal(t, "New Node", n.Text)
}

func TestBlurCommitsEdit(t *testing.T) {
	t.Parallel()

	e := newEditor()
	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }
	n := e.CreateNodeAt(300, 200)

	e.PointerDown(300, 200)
	e.PointerUp(300, 200)
	now = now.Add(100 * time.Millisecond)
	e.PointerDown(300, 200)
	e.PointerUp(300, 200)
	assert.Equal(t, m2editor.StateEditingNodeText, e.State())

	e.TextInput("committed on blur")
	e.Blur()
	assert.Equal(t, m2editor.StateIdle, e.State())
	assert.Equal(t, "committed on blur", n.Text)
}

func TestDeleteSelection(t *testing.T) {
	t.Parallel()

	e := newEditor()
	a := e.CreateNodeAt(100, 100)
	e.CreateNodeAt(400, 100)
	g := e.Workspace().Graph

	connect := func() {
		e.SetConnectMode(true)
		e.PointerDown(100, 100)
		e.PointerUp(100, 100)
		e.PointerDown(400, 100)
		e.PointerUp(400, 100)
	}

	connect()
	assert.Equal(t, 1, g.Connections.Len())

	// select the line between the nodes and delete it
	e.PointerDown(246, 100)
	e.PointerUp(246, 100)
	if e.SelectedConnection() == nil {
		t.Fatal("expected the connection to be selected")
	}
	if e.SelectedNode() != nil {
		t.Fatal("selection is exclusive")
	}
	e.KeyDown("Backspace", false)
	assert.Equal(t, 0, g.Connections.Len())
	assert.Equal(t, 2, g.Nodes.Len())

	// deleting a node cascades to its connections
	connect()
	assert.Equal(t, 1, g.Connections.Len())
	e.PointerDown(100, 100)
	e.PointerUp(100, 100)
	assert.Equal(t, a.ID, e.SelectedNode().ID)
	e.KeyDown("Delete", false)
	assert.Equal(t, 1, g.Nodes.Len())
	assert.Equal(t, 0, g.Connections.Len())
}

func TestEscapeClearsSelection(t *testing.T) {
	t.Parallel()

	e := newEditor()
	e.CreateNodeAt(300, 200)
	if e.SelectedNode() == nil {
		t.Fatal("creation selects the node")
	}
	e.KeyDown("Escape", false)
	if e.SelectedNode() != nil {
		t.Fatal("escape should clear the selection")
	}
}

func TestZoomDoesNotDirty(t *testing.T) {
	t.Parallel()

	e := newEditor()
	ws := e.Workspace()

	e.Zoom(1.2, 50, 50)
	assert.Equal(t, 1.2, ws.Viewport.Zoom)
	assert.Equal(t, -10., ws.Viewport.Pan.X)
	assert.Equal(t, -10., ws.Viewport.Pan.Y)

	// the viewport isn't persisted, so zooming alone needs no save
	assert.Equal(t, false, ws.Dirty())
}

func TestHighlightColor(t *testing.T) {
	t.Parallel()

	e := newEditor()
	n := e.CreateNodeAt(100, 100)
	assert.Equal(t, "", e.HighlightColor())

	e.Workspace().Graph.Nodes.Update(n.ID, m2graph.NodePatch{Fill: go2.Pointer("red")})
	assert.Equal(t, "#cc0000", e.HighlightColor())
}

func TestNodeTextColor(t *testing.T) {
	t.Parallel()

	e := newEditor()
	n := e.CreateNodeAt(100, 100)
	assert.Equal(t, "", m2editor.NodeTextColor(n))

	e.Workspace().Graph.Nodes.Update(n.ID, m2graph.NodePatch{Fill: go2.Pointer("#0d32b2")})
	assert.Equal(t, "#ffffff", m2editor.NodeTextColor(n))

	e.Workspace().Graph.Nodes.Update(n.ID, m2graph.NodePatch{Fill: go2.Pointer("#ffd700")})
	assert.Equal(t, "#0a0f25", m2editor.NodeTextColor(n))
}
