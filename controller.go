package main

import (
	"log/slog"
	"math"

	"github.com/google/uuid"
)

type ControllerState int

const (
	StateIdle ControllerState = iota
	StateDraggingNode
	StatePanning
	StateConnecting
	StateReconnecting
	StateEditingText
	StateEditingLabel
)

func (s ControllerState) String() string {
	switch s {
	case StateDraggingNode:
		return "drag"
	case StatePanning:
		return "pan"
	case StateConnecting:
		return "connect"
	case StateReconnecting:
		return "reconnect"
	case StateEditingText:
		return "edit"
	case StateEditingLabel:
		return "label"
	default:
		return "idle"
	}
}

type Button int

const (
	ButtonNone Button = iota
	ButtonPrimary
	ButtonMiddle
	ButtonSecondary
)

// PointerEvent is a mouse event in screen coordinates.
type PointerEvent struct {
	Point  Point
	Button Button
	Shift  bool
	Ctrl   bool
	Alt    bool
}

// WheelEvent carries one wheel tick; positive Delta zooms in.
type WheelEvent struct {
	Point Point
	Delta int
}

type KeyEvent struct {
	Key   string
	Runes []rune
	Shift bool
}

// CanvasHost receives every document change the controller decides on.
type CanvasHost interface {
	ActiveData() *BoardData
	AddNode(n Node)
	DeleteNode(id string)
	MoveNodeLive(id string, to Point)
	CommitNodeMove(id string, from, to Point)
	UpdateNodeText(id, text string)
	AddConnection(c Connection)
	RetargetConnection(id, toNode string)
	UpdateConnectionLabel(id, label string)
	DeleteConnection(id string)
	PanLive(to Point)
	CommitPan(from, to Point)
	SetZoom(zoom float64)
}

// Controller turns pointer, wheel and key events on the visible board into
// host calls. It holds gesture state only; the document lives in the host.
type Controller struct {
	host   CanvasHost
	logger *slog.Logger

	MoveTool bool

	state         ControllerState
	selectedID    string
	hoveredConnID string

	dragNodeID string
	dragOffset Point
	dragStart  Point

	panAnchor Point
	panStart  Point

	connectFromID string
	reconnectID   string
	livePoint     Point

	editTargetID string
	editBuffer   []rune

	nextType int
}

func NewController(host CanvasHost, logger *slog.Logger) *Controller {
	return &Controller{host: host, logger: loggerOrDiscard(logger)}
}

func (c *Controller) State() ControllerState      { return c.state }
func (c *Controller) SelectedID() string          { return c.selectedID }
func (c *Controller) HoveredConnectionID() string { return c.hoveredConnID }
func (c *Controller) EditTargetID() string        { return c.editTargetID }
func (c *Controller) EditBuffer() string          { return string(c.editBuffer) }

func (c *Controller) Select(id string) { c.selectedID = id }

func (c *Controller) viewport() Viewport {
	if data := c.host.ActiveData(); data != nil {
		return ViewportOf(data.CanvasState)
	}
	return Viewport{Zoom: defaultZoom}
}

func (c *Controller) data() *BoardData {
	if data := c.host.ActiveData(); data != nil {
		return data
	}
	return &BoardData{}
}

// Preview returns the rubber-band line of an in-progress connect or
// reconnect gesture in canvas coordinates.
func (c *Controller) Preview() (from, to Point, ok bool) {
	data := c.data()
	switch c.state {
	case StateConnecting:
		if _, n := findNode(data.Nodes, c.connectFromID); n != nil {
			return Ports(*n).Output, c.livePoint, true
		}
	case StateReconnecting:
		if _, conn := findConnection(data.Connections, c.reconnectID); conn != nil {
			if _, n := findNode(data.Nodes, conn.FromNode); n != nil {
				return Ports(*n).Output, c.livePoint, true
			}
		}
	}
	return Point{}, Point{}, false
}

// DropTargets lists the nodes a connect or reconnect gesture may end on.
func (c *Controller) DropTargets() map[string]bool {
	data := c.data()
	var from *Node
	existing := data.Connections
	skip := ""
	switch c.state {
	case StateConnecting:
		_, from = findNode(data.Nodes, c.connectFromID)
	case StateReconnecting:
		_, conn := findConnection(data.Connections, c.reconnectID)
		if conn == nil {
			return nil
		}
		_, from = findNode(data.Nodes, conn.FromNode)
		existing = withoutConnection(data.Connections, conn.ID)
		skip = conn.ToNode
	}
	if from == nil {
		return nil
	}
	targets := make(map[string]bool)
	for _, n := range ValidTargets(from, data.Nodes, existing) {
		if n.ID != skip {
			targets[n.ID] = true
		}
	}
	return targets
}

// Reset drops any gesture without touching the document. Used when the
// document changes underneath the controller.
func (c *Controller) Reset() {
	c.state = StateIdle
	c.selectedID = ""
	c.hoveredConnID = ""
	c.dragNodeID = ""
	c.connectFromID = ""
	c.reconnectID = ""
	c.editTargetID = ""
	c.editBuffer = nil
}

func (c *Controller) PointerDown(ev PointerEvent) {
	if c.editing() {
		c.commitEdit()
	}
	if c.state != StateIdle {
		return
	}

	vp := c.viewport()
	data := c.data()
	at := vp.ToCanvas(ev.Point)

	if ev.Button == ButtonMiddle || (ev.Button == ButtonPrimary && c.MoveTool) {
		c.startPan(ev.Point, data)
		return
	}

	if ev.Button == ButtonPrimary && !ev.Ctrl && c.hoveredConnID != "" {
		if _, conn := findConnection(data.Connections, c.hoveredConnID); conn != nil {
			if path, ok := ConnectionPath(data, *conn); ok && near(path.End(), at, vp.HandleTolerance()) {
				c.state = StateReconnecting
				c.reconnectID = conn.ID
				c.livePoint = at
				return
			}
		}
	}

	if ev.Button == ButtonPrimary && !ev.Ctrl {
		if n := outputHandleAt(data.Nodes, at, vp.HandleTolerance()); n != nil {
			c.startConnect(n.ID, at)
			return
		}
	}

	node := NodeAt(at, data.Nodes, "")
	switch {
	case node != nil && (ev.Ctrl || ev.Button == ButtonSecondary):
		c.startConnect(node.ID, at)
	case node != nil && ev.Button == ButtonPrimary && ev.Shift:
		c.selectedID = node.ID
	case node != nil && ev.Button == ButtonPrimary:
		c.selectedID = node.ID
		c.state = StateDraggingNode
		c.dragNodeID = node.ID
		c.dragStart = node.Position()
		c.dragOffset = at.Sub(node.Position())
	case node == nil && ev.Button == ButtonPrimary && ev.Ctrl:
		c.startPan(ev.Point, data)
	case node == nil && (ev.Button == ButtonSecondary || (ev.Button == ButtonPrimary && ev.Shift)):
		c.addRotatingNode(at)
	case node == nil && ev.Button == ButtonPrimary:
		c.selectedID = ""
	}
}

func (c *Controller) PointerMove(ev PointerEvent) {
	vp := c.viewport()
	at := vp.ToCanvas(ev.Point)

	switch c.state {
	case StateDraggingNode:
		_, n := findNode(c.data().Nodes, c.dragNodeID)
		if n == nil {
			c.state = StateIdle
			return
		}
		target := snapPoint(at.Sub(c.dragOffset))
		if target != n.Position() {
			c.host.MoveNodeLive(c.dragNodeID, target)
		}
	case StatePanning:
		c.host.PanLive(ev.Point.Sub(c.panAnchor))
	case StateConnecting, StateReconnecting:
		c.livePoint = at
	case StateIdle:
		c.updateHover(at, vp)
	}
}

func (c *Controller) PointerUp(ev PointerEvent) {
	vp := c.viewport()
	data := c.data()
	at := vp.ToCanvas(ev.Point)

	switch c.state {
	case StateDraggingNode:
		if _, n := findNode(data.Nodes, c.dragNodeID); n != nil && n.Position() != c.dragStart {
			c.host.CommitNodeMove(c.dragNodeID, c.dragStart, n.Position())
		}
		c.dragNodeID = ""
	case StatePanning:
		current := Point{X: data.CanvasState.PanX, Y: data.CanvasState.PanY}
		if current != c.panStart {
			c.host.CommitPan(c.panStart, current)
		}
	case StateConnecting:
		c.finishConnect(data, at)
	case StateReconnecting:
		c.finishReconnect(data, at)
	default:
		return
	}
	c.state = StateIdle
}

func (c *Controller) finishConnect(data *BoardData, at Point) {
	_, from := findNode(data.Nodes, c.connectFromID)
	c.connectFromID = ""
	target := NodeAt(at, data.Nodes, "")
	if from == nil || target == nil {
		return
	}
	if target.ID == from.ID {
		c.logger.Debug("connect cancelled: dropped on source", slog.String("node_id", from.ID))
		return
	}
	conn := CreateConnection(from, target, data.Connections, nil)
	if conn == nil {
		_, reason := CanConnect(from, target, data.Connections)
		c.logger.Info("connection refused",
			slog.String("from", from.ID),
			slog.String("to", target.ID),
			slog.String("reason", reason))
		return
	}
	c.host.AddConnection(*conn)
}

func (c *Controller) finishReconnect(data *BoardData, at Point) {
	id := c.reconnectID
	c.reconnectID = ""
	_, conn := findConnection(data.Connections, id)
	if conn == nil {
		return
	}
	_, from := findNode(data.Nodes, conn.FromNode)
	target := NodeAt(at, data.Nodes, conn.FromNode)
	if from == nil || target == nil || target.ID == conn.ToNode {
		return
	}
	if ok, reason := CanConnect(from, target, withoutConnection(data.Connections, id)); !ok {
		c.logger.Info("reconnect refused",
			slog.String("connection_id", id),
			slog.String("to", target.ID),
			slog.String("reason", reason))
		return
	}
	c.host.RetargetConnection(id, target.ID)
}

// DoubleClick starts inline editing of a node's text or a connection's label.
func (c *Controller) DoubleClick(ev PointerEvent) {
	if c.editing() {
		c.commitEdit()
	}
	c.state = StateIdle
	vp := c.viewport()
	data := c.data()
	at := vp.ToCanvas(ev.Point)

	if n := NodeAt(at, data.Nodes, ""); n != nil {
		c.selectedID = n.ID
		c.state = StateEditingText
		c.editTargetID = n.ID
		c.editBuffer = []rune(n.Text)
		return
	}
	if conn := ConnectionAt(data, at, vp.PathTolerance()); conn != nil {
		c.state = StateEditingLabel
		c.editTargetID = conn.ID
		c.editBuffer = []rune(conn.Label)
	}
}

func (c *Controller) Wheel(ev WheelEvent) {
	if ev.Delta == 0 {
		return
	}
	current := c.viewport().Zoom
	next := clampZoom(current + zoomStep*float64(ev.Delta))
	if next != current {
		c.host.SetZoom(next)
	}
}

// Key handles editing and the canvas keys. It reports whether the key was
// consumed so the shell can handle the rest.
func (c *Controller) Key(ev KeyEvent) bool {
	if c.editing() {
		c.editKey(ev)
		return true
	}
	switch ev.Key {
	case "esc":
		c.Cancel()
		return true
	case "delete":
		c.rollbackLive()
		data := c.data()
		if c.selectedID != "" {
			if _, n := findNode(data.Nodes, c.selectedID); n != nil {
				c.host.DeleteNode(c.selectedID)
				c.selectedID = ""
				return true
			}
			c.selectedID = ""
		}
		if c.hoveredConnID != "" {
			c.host.DeleteConnection(c.hoveredConnID)
			c.hoveredConnID = ""
			return true
		}
	}
	return false
}

// Cancel aborts any gesture, restores what a live drag or pan changed, and
// clears selection and hover.
func (c *Controller) Cancel() {
	if c.editing() {
		c.discardEdit()
	} else {
		c.rollbackLive()
	}
	c.Reset()
}

// Interrupt ends a drag or pan in progress and puts back what it moved.
// Selection is kept.
func (c *Controller) Interrupt() {
	c.rollbackLive()
}

func (c *Controller) rollbackLive() {
	switch c.state {
	case StatePanning:
		c.host.PanLive(c.panStart)
	case StateDraggingNode:
		if _, n := findNode(c.data().Nodes, c.dragNodeID); n != nil {
			c.host.MoveNodeLive(c.dragNodeID, c.dragStart)
		}
		c.dragNodeID = ""
	default:
		return
	}
	c.state = StateIdle
}

func (c *Controller) editing() bool {
	return c.state == StateEditingText || c.state == StateEditingLabel
}

func (c *Controller) editKey(ev KeyEvent) {
	switch ev.Key {
	case "enter":
		if ev.Shift && c.state == StateEditingText {
			c.editBuffer = append(c.editBuffer, '\n')
			return
		}
		c.commitEdit()
	case "esc":
		c.discardEdit()
	case "backspace":
		if len(c.editBuffer) > 0 {
			c.editBuffer = c.editBuffer[:len(c.editBuffer)-1]
		}
	case "runes":
		c.editBuffer = append(c.editBuffer, ev.Runes...)
	}
}

func (c *Controller) commitEdit() {
	text := string(c.editBuffer)
	switch c.state {
	case StateEditingText:
		c.host.UpdateNodeText(c.editTargetID, text)
	case StateEditingLabel:
		c.host.UpdateConnectionLabel(c.editTargetID, text)
	}
	c.discardEdit()
}

func (c *Controller) discardEdit() {
	c.state = StateIdle
	c.editTargetID = ""
	c.editBuffer = nil
}

func (c *Controller) startPan(screen Point, data *BoardData) {
	c.state = StatePanning
	c.panStart = Point{X: data.CanvasState.PanX, Y: data.CanvasState.PanY}
	c.panAnchor = screen.Sub(c.panStart)
}

func (c *Controller) startConnect(nodeID string, at Point) {
	c.state = StateConnecting
	c.connectFromID = nodeID
	c.livePoint = at
}

func (c *Controller) addRotatingNode(at Point) {
	t := nodeTypeOrder[c.nextType%len(nodeTypeOrder)]
	c.nextType++
	n := NewNode("node_"+uuid.NewString(), t, snapPoint(at))
	c.host.AddNode(n)
	c.selectedID = n.ID
}

func (c *Controller) updateHover(at Point, vp Viewport) {
	data := c.data()
	if conn := ConnectionAt(data, at, vp.PathTolerance()); conn != nil {
		c.hoveredConnID = conn.ID
		return
	}
	// Keep the hover while the pointer sits on the target handle of the
	// hovered connection, which may be inside the target node.
	if c.hoveredConnID != "" {
		if _, conn := findConnection(data.Connections, c.hoveredConnID); conn != nil {
			if path, ok := ConnectionPath(data, *conn); ok && near(path.End(), at, vp.HandleTolerance()) {
				return
			}
		}
	}
	c.hoveredConnID = ""
}

func outputHandleAt(nodes []Node, at Point, tolerance float64) *Node {
	for i := len(nodes) - 1; i >= 0; i-- {
		if near(Ports(nodes[i]).Output, at, tolerance) {
			n := nodes[i]
			return &n
		}
	}
	return nil
}

func near(a, b Point, tolerance float64) bool {
	return math.Abs(a.X-b.X) <= tolerance && math.Abs(a.Y-b.Y) <= tolerance
}
