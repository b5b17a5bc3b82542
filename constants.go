package main

type Mode int

const (
	ModeStartup Mode = iota
	ModeNormal
	ModeFileInput
	ModeBoardName
	ModeConfirm
	ModeAssistant
	ModeCode
)

type FileOperation int

const (
	FileOpExportJSON FileOperation = iota
	FileOpExportBoardJSON
	FileOpImportJSON
	FileOpSavePNG
	FileOpSaveVisualTXT
)

type ConfirmAction int

const (
	ConfirmQuit ConfirmAction = iota
	ConfirmDeleteBoard
	ConfirmNewWorkspace
	ConfirmOverwriteFile
)

type ActionType int

const (
	ActionAddNode ActionType = iota
	ActionDeleteNode
	ActionMoveNode
	ActionUpdateNode
	ActionAddConnection
	ActionDeleteConnection
	ActionUpdateConnection
	ActionCanvasMove
	ActionZoomChange
)

func (t ActionType) String() string {
	switch t {
	case ActionAddNode:
		return "add_node"
	case ActionDeleteNode:
		return "delete_node"
	case ActionMoveNode:
		return "move_node"
	case ActionUpdateNode:
		return "update_node"
	case ActionAddConnection:
		return "add_connection"
	case ActionDeleteConnection:
		return "delete_connection"
	case ActionUpdateConnection:
		return "update_connection"
	case ActionCanvasMove:
		return "canvas_move"
	case ActionZoomChange:
		return "zoom"
	default:
		return "unknown"
	}
}

const (
	minZoom     = 50.0
	maxZoom     = 200.0
	defaultZoom = 100.0
	zoomStep    = 10.0

	gridSize = 10.0

	defaultHistoryLimit = 50

	// Screen units covered by one terminal cell.
	cellWidth  = 10.0
	cellHeight = 20.0

	// Screen-space radius around a port that counts as its handle.
	handleRadius = 12.0

	doubleClickMillis = 400
)

var nodeTypeOrder = []NodeType{
	NodeProcess,
	NodeDecision,
	NodeLoop,
	NodeVariable,
	NodeStart,
	NodeEnd,
}
