package main

import (
	"log/slog"

	"github.com/google/uuid"
)

// Editor is the CanvasHost for the active board of a workspace. Every change
// is applied through the history appliers and logged by the matching
// HistoryStore recorder in the same step.
type Editor struct {
	ws     *Workspace
	logger *slog.Logger
}

var _ CanvasHost = (*Editor)(nil)

func NewEditor(ws *Workspace, logger *slog.Logger) *Editor {
	return &Editor{ws: ws, logger: loggerOrDiscard(logger)}
}

func (e *Editor) Workspace() *Workspace { return e.ws }

func (e *Editor) ActiveData() *BoardData {
	if b := e.ws.ActiveBoard(); b != nil {
		return &b.Data
	}
	return nil
}

func (e *Editor) activeID() string { return e.ws.ActiveID() }

func (e *Editor) AddNode(n Node) {
	board := e.activeID()
	e.ws.Commit(AddNodePayload{BoardID: board, Node: n}, func(h *HistoryStore) bool {
		return h.RecordNodeAdd(board, n)
	})
}

func (e *Editor) DeleteNode(id string) {
	data := e.ActiveData()
	if data == nil {
		return
	}
	before := *data
	if _, n := findNode(before.Nodes, id); n == nil {
		e.logger.Debug("delete ignored: no such node", slog.String("node_id", id))
		return
	}
	board := e.activeID()
	e.ws.Commit(RemoveNodePayload{BoardID: board, NodeID: id}, func(h *HistoryStore) bool {
		return h.RecordNodeDelete(board, before, id)
	})
}

func (e *Editor) MoveNodeLive(id string, to Point) {
	e.ws.Preview(MoveNodePayload{BoardID: e.activeID(), NodeID: id, X: to.X, Y: to.Y})
}

func (e *Editor) CommitNodeMove(id string, from, to Point) {
	if from == to {
		return
	}
	board := e.activeID()
	e.ws.Commit(MoveNodePayload{BoardID: board, NodeID: id, X: to.X, Y: to.Y}, func(h *HistoryStore) bool {
		return h.RecordNodeMove(board, id, from, to)
	})
}

func (e *Editor) UpdateNodeText(id, text string) {
	data := e.ActiveData()
	if data == nil {
		return
	}
	_, n := findNode(data.Nodes, id)
	if n == nil {
		return
	}
	after := *n
	after.Text = text
	e.UpdateNode(*n, after)
}

func (e *Editor) UpdateNode(before, after Node) {
	board := e.activeID()
	if a, ok := nodeUpdateAction(board, before, after); ok {
		e.ws.Commit(a.Data, func(h *HistoryStore) bool {
			return h.RecordNodeUpdate(board, before, after)
		})
	}
}

func (e *Editor) AddConnection(c Connection) {
	board := e.activeID()
	e.ws.Commit(AddConnectionPayload{BoardID: board, Connection: c}, func(h *HistoryStore) bool {
		return h.RecordConnectionAdd(board, c)
	})
}

func (e *Editor) RetargetConnection(id, toNode string) {
	data := e.ActiveData()
	if data == nil {
		return
	}
	_, conn := findConnection(data.Connections, id)
	_, target := findNode(data.Nodes, toNode)
	if conn == nil || target == nil {
		return
	}
	after := *conn
	after.ToNode = target.ID
	after.ToPoint = Ports(*target).Input
	e.updateConnection(*conn, after)
}

func (e *Editor) UpdateConnectionLabel(id, label string) {
	data := e.ActiveData()
	if data == nil {
		return
	}
	_, conn := findConnection(data.Connections, id)
	if conn == nil {
		return
	}
	after := *conn
	after.Label = label
	e.updateConnection(*conn, after)
}

func (e *Editor) updateConnection(before, after Connection) {
	board := e.activeID()
	if a, ok := connectionUpdateAction(board, before, after); ok {
		e.ws.Commit(a.Data, func(h *HistoryStore) bool {
			return h.RecordConnectionUpdate(board, before, after)
		})
	}
}

func (e *Editor) DeleteConnection(id string) {
	data := e.ActiveData()
	if data == nil {
		return
	}
	before := *data
	if _, c := findConnection(before.Connections, id); c == nil {
		return
	}
	board := e.activeID()
	e.ws.Commit(RemoveConnectionPayload{BoardID: board, ConnectionID: id}, func(h *HistoryStore) bool {
		return h.RecordConnectionDelete(board, before, id)
	})
}

func (e *Editor) PanLive(to Point) {
	e.ws.Preview(CanvasMovePayload{BoardID: e.activeID(), PanX: to.X, PanY: to.Y})
}

func (e *Editor) CommitPan(from, to Point) {
	if from == to {
		return
	}
	board := e.activeID()
	e.ws.Commit(CanvasMovePayload{BoardID: board, PanX: to.X, PanY: to.Y}, func(h *HistoryStore) bool {
		return h.RecordCanvasMove(board, from, to)
	})
}

func (e *Editor) SetZoom(zoom float64) {
	data := e.ActiveData()
	if data == nil {
		return
	}
	from := data.CanvasState.Zoom
	to := clampZoom(zoom)
	if from == to {
		return
	}
	board := e.activeID()
	e.ws.Commit(ZoomPayload{BoardID: board, Zoom: to}, func(h *HistoryStore) bool {
		return h.RecordZoomChange(board, from, to)
	})
}

func (e *Editor) ZoomBy(delta float64) {
	if data := e.ActiveData(); data != nil {
		e.SetZoom(data.CanvasState.Zoom + delta)
	}
}

// PanBy shifts the view by a screen offset and records it as one canvas move.
func (e *Editor) PanBy(dx, dy float64) {
	data := e.ActiveData()
	if data == nil {
		return
	}
	from := Point{X: data.CanvasState.PanX, Y: data.CanvasState.PanY}
	e.CommitPan(from, from.Add(Point{X: dx, Y: dy}))
}

// AddNodeOfType drops a default node of type t centered on a canvas point.
func (e *Editor) AddNodeOfType(t NodeType, center Point) Node {
	d := defaultsFor(t)
	at := snapPoint(Point{X: center.X - d.width/2, Y: center.Y - d.height/2})
	n := NewNode("node_"+uuid.NewString(), t, at)
	e.AddNode(n)
	return n
}

// PasteNode adds a copy of n with a fresh id, offset so it does not cover
// the original.
func (e *Editor) PasteNode(n Node) Node {
	n.ID = "node_" + uuid.NewString()
	n.X = snapToGrid(n.X + 2*gridSize)
	n.Y = snapToGrid(n.Y + 2*gridSize)
	e.AddNode(n)
	return n
}
