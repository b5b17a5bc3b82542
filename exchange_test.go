package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeBoardExport = `{
  "version": "1.0.0",
  "exportedAt": "2024-03-01T10:00:00Z",
  "boards": [
    {
      "id": "old-1",
      "name": "Login",
      "isActive": true,
      "createdAt": "2024-02-01T09:00:00Z",
      "data": {
        "nodes": [
          {"id": "s", "type": "start", "x": 0, "y": 0},
          {"id": "p", "type": "process", "x": 200, "y": 0, "text": "Check password"}
        ],
        "connections": [
          {"id": "c1", "fromNode": "s", "toNode": "p"},
          {"id": "c2", "fromNode": "p", "toNode": "ghost"}
        ],
        "canvasState": {"zoom": 150, "panX": 10, "panY": 20}
      }
    },
    {
      "name": "Empty",
      "data": {"nodes": [], "connections": []}
    },
    {
      "name": "Messy",
      "data": {
        "nodes": [
          {"id": "a", "type": "decision", "x": 5, "y": 5},
          {"id": "b", "type": "cloud", "x": 0, "y": 0},
          {"id": "c", "type": "end", "y": 0},
          {"id": "a", "type": "end", "x": 9, "y": 9}
        ],
        "connections": [],
        "canvasState": {"zoom": 900}
      }
    }
  ]
}`

func TestParseImportKeepsValidRecords(t *testing.T) {
	result := ParseImport([]byte(threeBoardExport), nil)

	require.True(t, result.Success)
	assert.Equal(t, 3, result.ImportedCount)
	require.Len(t, result.Boards, 3)

	login := result.Boards[0]
	assert.Equal(t, "Login", login.Name)
	assert.NotEqual(t, "old-1", login.ID, "imported boards get fresh ids")
	assert.True(t, strings.HasPrefix(login.ID, "board_"))
	assert.False(t, login.IsActive)
	assert.Equal(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), login.CreatedAt.UTC())
	require.Len(t, login.Data.Nodes, 2)
	assert.Equal(t, "Check password", login.Data.Nodes[1].Text)
	assert.Equal(t, 180.0, login.Data.Nodes[1].Width, "missing size falls back to the type default")
	require.Len(t, login.Data.Connections, 1)
	assert.Equal(t, "c1", login.Data.Connections[0].ID)
	assert.Equal(t, CanvasState{Zoom: 150, PanX: 10, PanY: 20}, login.Data.CanvasState)

	empty := result.Boards[1]
	assert.Empty(t, empty.Data.Nodes)
	assert.Equal(t, defaultZoom, empty.Data.CanvasState.Zoom)

	messy := result.Boards[2]
	require.Len(t, messy.Data.Nodes, 1)
	assert.Equal(t, "a", messy.Data.Nodes[0].ID)
	assert.Equal(t, "Decision", messy.Data.Nodes[0].Text)
	assert.Equal(t, maxZoom, messy.Data.CanvasState.Zoom)

	assert.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "references non-existent nodes")
}

func TestParseImportRejectsBadEnvelope(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "not json", data: `{"boards": [`, want: "invalid JSON format"},
		{name: "missing version", data: `{"exportedAt": "x", "boards": []}`, want: "invalid file format"},
		{name: "boards not a list", data: `{"version": "1", "exportedAt": "x", "boards": {}}`, want: "invalid file format"},
		{name: "no usable boards", data: `{"version": "1", "exportedAt": "x", "boards": [{"data": {}}]}`, want: "no valid boards found in file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseImport([]byte(tt.data), nil)
			assert.False(t, result.Success)
			assert.Zero(t, result.ImportedCount)
			assert.Empty(t, result.Boards)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, strings.Join(result.Errors, "\n"), tt.want)
		})
	}
}

func TestParseImportRefusesIllegalConnections(t *testing.T) {
	data := `{
	  "version": "1.0.0",
	  "exportedAt": "2024-03-01T10:00:00Z",
	  "boards": [{
	    "name": "Rules",
	    "data": {
	      "nodes": [
	        {"id": "s", "type": "start", "x": 0, "y": 0},
	        {"id": "p", "type": "process", "x": 200, "y": 0}
	      ],
	      "connections": [
	        {"id": "c1", "fromNode": "s", "toNode": "p"},
	        {"id": "c2", "fromNode": "s", "toNode": "p"},
	        {"id": "c3", "fromNode": "p", "toNode": "s"},
	        {"id": "c4", "fromNode": "p", "toNode": "p"},
	        {"id": "c1", "fromNode": "p", "toNode": "s"}
	      ]
	    }
	  }]
	}`

	result := ParseImport([]byte(data), nil)
	require.True(t, result.Success)
	conns := result.Boards[0].Data.Connections
	require.Len(t, conns, 1)
	assert.Equal(t, "c1", conns[0].ID)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "connection already exists")
	assert.Contains(t, joined, "start nodes cannot have input connections")
	assert.Contains(t, joined, "cannot connect node to itself")
	assert.Contains(t, joined, `duplicate id "c1"`)
}

func TestExportImportFile(t *testing.T) {
	ws, ed := newTestEditor(t, 50)
	ed.AddNode(testNode("a", NodeStart, 0, 0))
	ed.AddNode(testNode("b", NodeEnd, 300, 0))
	ed.AddConnection(Connection{ID: "ab", FromNode: "a", ToNode: "b", Label: "done"})
	ws.CreateBoard("Second")

	path := filepath.Join(t.TempDir(), "boards.json")
	require.NoError(t, ExportBoards(path, ws.Boards()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": "1.0.0"`)
	assert.Contains(t, string(raw), `"boardCount": 2`)

	result, err := ImportFile(path, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.ImportedCount)
	assert.Empty(t, result.Errors)

	first := result.Boards[0]
	assert.Equal(t, "Main Board", first.Name)
	assert.Equal(t, ws.Boards()[0].Data.Nodes, first.Data.Nodes)
	require.Len(t, first.Data.Connections, 1)
	assert.Equal(t, "done", first.Data.Connections[0].Label)
	assert.Equal(t, "Second", result.Boards[1].Name)
}

func TestImportFileMissing(t *testing.T) {
	_, err := ImportFile(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.Error(t, err)
}

func TestBuildExportMetadata(t *testing.T) {
	ws, ed := newTestEditor(t, 50)
	ed.AddNode(testNode("a", NodeProcess, 0, 0))
	ed.AddNode(testNode("b", NodeProcess, 300, 0))
	ed.AddConnection(Connection{ID: "ab", FromNode: "a", ToNode: "b"})
	ws.CreateBoard("Other")

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f := BuildExport(ws.Boards(), now)

	assert.Equal(t, ExchangeVersion, f.Version)
	assert.Equal(t, now, f.ExportedAt)
	assert.Equal(t, ExchangeMetadata{
		Name:            "Flowboard Project",
		Description:     "Exported from flowboard - 2 boards",
		NodeCount:       2,
		ConnectionCount: 1,
		BoardCount:      2,
	}, f.Metadata)
}

func TestRestoreBoardsKeepsIdentity(t *testing.T) {
	ws, ed := newTestEditor(t, 50)
	ed.AddNode(testNode("a", NodeProcess, 0, 0))
	second := ws.CreateBoard("Second")

	restored, problems := RestoreBoards(ws.Boards())
	assert.Empty(t, problems)
	require.Len(t, restored, 2)
	assert.Equal(t, ws.Boards()[0].ID, restored[0].ID)
	assert.Equal(t, second.ID, restored[1].ID)
	assert.True(t, restored[1].IsActive)
	assert.Len(t, restored[0].Data.Nodes, 1)
}
