package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const ExchangeVersion = "1.0.0"

var ErrInvalidEnvelope = errors.New("invalid file format: missing required fields")

const envelopeSchemaURL = "https://flowboard.dev/schemas/exchange.json"

// The envelope schema only checks the outer shape. Boards, nodes and
// connections are validated one by one so a bad record drops only itself.
const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowboard.dev/schemas/exchange.json",
  "type": "object",
  "required": ["version", "exportedAt", "boards"],
  "properties": {
    "version": { "type": "string", "minLength": 1 },
    "exportedAt": { "type": "string", "minLength": 1 },
    "boards": { "type": "array" },
    "metadata": { "type": "object" }
  }
}`

type ExchangeMetadata struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	NodeCount       int    `json:"nodeCount"`
	ConnectionCount int    `json:"connectionCount"`
	BoardCount      int    `json:"boardCount"`
}

type ExchangeFile struct {
	Version    string           `json:"version"`
	ExportedAt time.Time        `json:"exportedAt"`
	Boards     []Board          `json:"boards"`
	Metadata   ExchangeMetadata `json:"metadata"`
}

type ImportResult struct {
	Success       bool
	Boards        []Board
	ImportedCount int
	Errors        []string
}

func BuildExport(boards []Board, now time.Time) ExchangeFile {
	meta := ExchangeMetadata{
		Name:        "Flowboard Project",
		Description: fmt.Sprintf("Exported from flowboard - %d boards", len(boards)),
		BoardCount:  len(boards),
	}
	for _, b := range boards {
		meta.NodeCount += len(b.Data.Nodes)
		meta.ConnectionCount += len(b.Data.Connections)
	}
	return ExchangeFile{
		Version:    ExchangeVersion,
		ExportedAt: now.UTC(),
		Boards:     boards,
		Metadata:   meta,
	}
}

func ExportBoards(path string, boards []Board) error {
	data, err := json.MarshalIndent(BuildExport(boards, time.Now()), "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func ImportFile(path string, logger *slog.Logger) (ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{Errors: []string{err.Error()}}, fmt.Errorf("read import: %w", err)
	}
	return ParseImport(data, logger), nil
}

type envelopeValidator struct {
	schema *jsonschema.Schema
}

func newEnvelopeValidator() (*envelopeValidator, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal envelope schema: %w", err)
	}
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add envelope schema resource: %w", err)
	}
	schema, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &envelopeValidator{schema: schema}, nil
}

func (v *envelopeValidator) validate(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	if err := v.schema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrInvalidEnvelope, describeValidation(verr))
		}
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

func describeValidation(verr *jsonschema.ValidationError) string {
	leaves := leafCauses(verr)
	parts := make([]string, 0, len(leaves))
	for _, l := range leaves {
		parts = append(parts, strings.TrimSpace(l.Error()))
	}
	return strings.Join(parts, "; ")
}

func leafCauses(verr *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(verr.Causes) == 0 {
		return []*jsonschema.ValidationError{verr}
	}
	var out []*jsonschema.ValidationError
	for _, c := range verr.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}

type rawEnvelope struct {
	Boards []json.RawMessage `json:"boards"`
}

type rawBoard struct {
	Name      *string         `json:"name"`
	CreatedAt json.RawMessage `json:"createdAt"`
	Data      *rawBoardData   `json:"data"`
}

type rawBoardData struct {
	Nodes       []json.RawMessage `json:"nodes"`
	Connections []json.RawMessage `json:"connections"`
	CanvasState *rawCanvasState   `json:"canvasState"`
}

type rawCanvasState struct {
	Zoom *float64 `json:"zoom"`
	PanX *float64 `json:"panX"`
	PanY *float64 `json:"panY"`
}

type rawNode struct {
	ID     string   `json:"id"`
	Type   NodeType `json:"type"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
	Text   *string  `json:"text"`
	Color  *string  `json:"color"`
}

type rawConnection struct {
	ID        string   `json:"id"`
	FromNode  string   `json:"fromNode"`
	ToNode    string   `json:"toNode"`
	FromPoint *Point   `json:"fromPoint"`
	ToPoint   *Point   `json:"toPoint"`
	Label     string   `json:"label"`
	Curvature *float64 `json:"curvature"`
}

// ParseImport validates an exchange document. Invalid boards, nodes and
// connections are dropped and reported in Errors; the rest is kept. Every
// imported board gets a fresh id and comes back inactive.
func ParseImport(data []byte, logger *slog.Logger) ImportResult {
	logger = loggerOrDiscard(logger)
	fail := func(msg string) ImportResult {
		logger.Warn("import rejected", slog.String("error", msg))
		return ImportResult{Errors: []string{msg}}
	}

	v, err := newEnvelopeValidator()
	if err != nil {
		return fail(err.Error())
	}
	if err := v.validate(data); err != nil {
		return fail(err.Error())
	}

	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fail(fmt.Sprintf("invalid JSON format: %v", err))
	}

	var result ImportResult
	for i, raw := range env.Boards {
		b, errs := parseBoard(i, raw)
		result.Errors = append(result.Errors, errs...)
		if b != nil {
			result.Boards = append(result.Boards, *b)
		}
	}
	for _, e := range result.Errors {
		logger.Warn("import record dropped", slog.String("error", e))
	}
	if len(result.Boards) == 0 {
		result.Errors = append(result.Errors, "no valid boards found in file")
		return result
	}
	result.Success = true
	result.ImportedCount = len(result.Boards)
	return result
}

func parseBoard(index int, raw json.RawMessage) (*Board, []string) {
	var rb rawBoard
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, []string{fmt.Sprintf("board %d: %v", index+1, err)}
	}
	if rb.Name == nil || strings.TrimSpace(*rb.Name) == "" || rb.Data == nil {
		return nil, []string{fmt.Sprintf("board %d: missing required fields", index+1)}
	}

	var errs []string
	nodes := []Node{}
	for j, rn := range rb.Data.Nodes {
		n, err := parseNode(rn)
		if err == nil {
			if k, _ := findNode(nodes, n.ID); k >= 0 {
				err = fmt.Errorf("duplicate id %q", n.ID)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("board %d node %d: %v", index+1, j+1, err))
			continue
		}
		nodes = append(nodes, n)
	}

	conns := []Connection{}
	for j, rc := range rb.Data.Connections {
		c, err := parseConnection(rc, nodes, conns)
		if err != nil {
			errs = append(errs, fmt.Sprintf("board %d connection %d: %v", index+1, j+1, err))
			continue
		}
		conns = append(conns, c)
	}

	cs := CanvasState{Zoom: defaultZoom}
	if st := rb.Data.CanvasState; st != nil {
		if st.Zoom != nil {
			cs.Zoom = *st.Zoom
		}
		if st.PanX != nil {
			cs.PanX = *st.PanX
		}
		if st.PanY != nil {
			cs.PanY = *st.PanY
		}
	}

	created := time.Now()
	var t time.Time
	if len(rb.CreatedAt) > 0 && json.Unmarshal(rb.CreatedAt, &t) == nil && !t.IsZero() {
		created = t
	}
	return &Board{
		ID:        "board_" + uuid.NewString(),
		Name:      strings.TrimSpace(*rb.Name),
		CreatedAt: created,
		Data: BoardData{
			Nodes:       nodes,
			Connections: conns,
			CanvasState: normalizeCanvasState(cs),
		},
	}, errs
}

func parseNode(raw json.RawMessage) (Node, error) {
	var rn rawNode
	if err := json.Unmarshal(raw, &rn); err != nil {
		return Node{}, err
	}
	if rn.ID == "" || rn.X == nil || rn.Y == nil {
		return Node{}, fmt.Errorf("missing required fields")
	}
	if !IsValidNodeType(rn.Type) {
		return Node{}, fmt.Errorf("invalid type %q", rn.Type)
	}
	d := defaultsFor(rn.Type)
	n := Node{ID: rn.ID, Type: rn.Type, X: *rn.X, Y: *rn.Y, Text: d.text, Color: d.color}
	if rn.Width != nil {
		n.Width = *rn.Width
	}
	if rn.Height != nil {
		n.Height = *rn.Height
	}
	if rn.Text != nil && *rn.Text != "" {
		n.Text = *rn.Text
	}
	if rn.Color != nil && *rn.Color != "" {
		n.Color = *rn.Color
	}
	return validateNode(n)
}

func parseConnection(raw json.RawMessage, nodes []Node, accepted []Connection) (Connection, error) {
	var rc rawConnection
	if err := json.Unmarshal(raw, &rc); err != nil {
		return Connection{}, err
	}
	if rc.ID == "" || rc.FromNode == "" || rc.ToNode == "" {
		return Connection{}, fmt.Errorf("missing required fields")
	}
	if k, _ := findConnection(accepted, rc.ID); k >= 0 {
		return Connection{}, fmt.Errorf("duplicate id %q", rc.ID)
	}
	_, from := findNode(nodes, rc.FromNode)
	_, to := findNode(nodes, rc.ToNode)
	if from == nil || to == nil {
		return Connection{}, fmt.Errorf("references non-existent nodes")
	}
	if ok, reason := CanConnect(from, to, accepted); !ok {
		return Connection{}, fmt.Errorf("%s", reason)
	}
	c := Connection{
		ID:        rc.ID,
		FromNode:  rc.FromNode,
		ToNode:    rc.ToNode,
		Label:     rc.Label,
		Curvature: rc.Curvature,
	}
	if rc.FromPoint != nil {
		c.FromPoint = *rc.FromPoint
	}
	if rc.ToPoint != nil {
		c.ToPoint = *rc.ToPoint
	}
	return validateConnection(c)
}

// RestoreBoards re-validates boards from the autosave. Unlike an import it
// keeps board ids and the active flag.
func RestoreBoards(boards []Board) ([]Board, []string) {
	var out []Board
	var errs []string
	for i, b := range boards {
		raw, err := json.Marshal(b)
		if err != nil {
			errs = append(errs, fmt.Sprintf("board %d: %v", i+1, err))
			continue
		}
		nb, e := parseBoard(i, raw)
		errs = append(errs, e...)
		if nb == nil {
			continue
		}
		if b.ID != "" {
			nb.ID = b.ID
		}
		nb.IsActive = b.IsActive
		out = append(out, *nb)
	}
	return out, errs
}
