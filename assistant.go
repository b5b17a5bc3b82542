package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"golang.org/x/time/rate"
)

const maxReplySize = 1 << 20

var ErrAssistantNotConfigured = errors.New("assistant is not configured: set assistant.api_key or FLOWBOARD_API_KEY")

type SnapshotNode struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type SnapshotConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// BoardSnapshot is the read-only view of a board handed to the assistant and
// the code generator.
type BoardSnapshot struct {
	BoardName   string               `json:"boardName"`
	Nodes       []SnapshotNode       `json:"nodes"`
	Connections []SnapshotConnection `json:"connections"`
}

func SnapshotOf(b Board) BoardSnapshot {
	snap := BoardSnapshot{
		BoardName:   b.Name,
		Nodes:       make([]SnapshotNode, 0, len(b.Data.Nodes)),
		Connections: make([]SnapshotConnection, 0, len(b.Data.Connections)),
	}
	for _, n := range b.Data.Nodes {
		snap.Nodes = append(snap.Nodes, SnapshotNode{ID: n.ID, Type: string(n.Type), Text: n.Text, X: n.X, Y: n.Y})
	}
	for _, c := range b.Data.Connections {
		snap.Connections = append(snap.Connections, SnapshotConnection{From: c.FromNode, To: c.ToNode})
	}
	return snap
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = `You are flowboard's assistant. Analyze the user's flowchart (nodes and connections) and help them build the program it describes. ` +
	`When helpful, include one control block <flowboard>{"tasks":["..."],"code":{"filename":"","language":"","code":"..."}}</flowboard>. Keep replies concise.`

// Assistant talks to an OpenAI-compatible chat completions endpoint.
type Assistant struct {
	enabled  bool
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func NewAssistant(cfg AssistantConfig, timeout time.Duration, logger *slog.Logger) *Assistant {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = Default().Assistant.RequestsPerMinute
	}
	return &Assistant{
		enabled:  cfg.Enabled,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(perMinute/60), 1),
		logger:   loggerOrDiscard(logger),
	}
}

func (a *Assistant) Configured() bool {
	return a != nil && a.enabled && a.endpoint != "" && a.apiKey != ""
}

// Ask sends the prompt along with the board and the prior conversation and
// returns the raw reply text.
func (a *Assistant) Ask(ctx context.Context, snap BoardSnapshot, history []chatMessage, prompt string) (string, error) {
	if !a.Configured() {
		return "", ErrAssistantNotConfigured
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	board, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode board: %w", err)
	}
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: "Flowchart: " + string(board)},
	}
	messages = append(messages, history...)
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: a.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	a.logger.Debug("assistant reply", "status", resp.StatusCode, "bytes", len(data), "duration", time.Since(start))

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("assistant error (HTTP %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("assistant error (HTTP %d)", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("assistant returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type Reply struct {
	Text  string
	Tasks []string
	Code  *GeneratedCode
}

var (
	controlBlockRe = regexp.MustCompile(`(?s)<flowboard>(.*?)</flowboard>`)
	codeFenceRe    = regexp.MustCompile("(?s)```(\\w+)?[\\r\\n]+(.*?)```")
)

// ParseReply pulls the control block out of a reply. A block that is not
// valid JSON is left in the text. Without a code entry in the block, the
// first fenced code block is used instead.
func ParseReply(raw string) Reply {
	reply := Reply{Text: strings.TrimSpace(raw)}

	if m := controlBlockRe.FindStringSubmatch(raw); m != nil {
		var block struct {
			Tasks []any `json:"tasks"`
			Code  *struct {
				Filename string `json:"filename"`
				Language string `json:"language"`
				Code     string `json:"code"`
			} `json:"code"`
		}
		if err := json.Unmarshal([]byte(m[1]), &block); err == nil {
			reply.Text = strings.TrimSpace(strings.Replace(raw, m[0], "", 1))
			for _, t := range block.Tasks {
				reply.Tasks = append(reply.Tasks, fmt.Sprint(t))
			}
			if block.Code != nil && block.Code.Code != "" {
				filename := block.Code.Filename
				if filename == "" {
					filename = "snippet.txt"
				}
				language := block.Code.Language
				if language == "" {
					language = "text"
				}
				reply.Code = newGeneratedCode(block.Code.Code, language, filename)
			}
		}
	}

	if reply.Code == nil {
		if m := codeFenceRe.FindStringSubmatch(reply.Text); m != nil {
			language := m[1]
			if language == "" {
				language = "text"
			}
			ext := language
			if language == "text" {
				ext = "txt"
			}
			reply.Code = newGeneratedCode(strings.TrimSpace(m[2]), language, "snippet."+ext)
			reply.Text = strings.TrimSpace(strings.Replace(reply.Text, m[0], "", 1))
		}
	}
	return reply
}

// BoardMemory is the assistant state kept per board name across sessions.
type BoardMemory struct {
	PlanTasks         []string `json:"planTasks,omitempty"`
	ActivePlanStep    int      `json:"activePlanStep"`
	PreferredLanguage string   `json:"preferredLanguage,omitempty"`
}

func boardMemoryKey(boardName string) string {
	if boardName == "" {
		return "default-board"
	}
	return boardName
}

func LoadBoardMemory(store *BlobStore, boardName string) BoardMemory {
	var mem BoardMemory
	if store == nil {
		return mem
	}
	if err := store.Get(nsMemory, boardMemoryKey(boardName), &mem); err != nil {
		return BoardMemory{}
	}
	return mem
}

// SaveBoardMemory merges update into what is stored. Empty fields keep the
// stored value.
func SaveBoardMemory(store *BlobStore, boardName string, update BoardMemory) error {
	if store == nil {
		return nil
	}
	mem := LoadBoardMemory(store, boardName)
	if update.PlanTasks != nil {
		mem.PlanTasks = update.PlanTasks
		mem.ActivePlanStep = update.ActivePlanStep
	}
	if update.PreferredLanguage != "" {
		mem.PreferredLanguage = update.PreferredLanguage
	}
	return store.Put(nsMemory, boardMemoryKey(boardName), mem)
}

// AdvancePlanStep ticks off the next open step of a board's plan. ok is
// false when the plan is empty or already done.
func AdvancePlanStep(store *BlobStore, boardName string) (mem BoardMemory, ok bool, err error) {
	mem = LoadBoardMemory(store, boardName)
	if mem.ActivePlanStep >= len(mem.PlanTasks) {
		return mem, false, nil
	}
	mem.ActivePlanStep++
	err = SaveBoardMemory(store, boardName, BoardMemory{PlanTasks: mem.PlanTasks, ActivePlanStep: mem.ActivePlanStep})
	if err != nil {
		return mem, false, err
	}
	return mem, true, nil
}

// PruneBoardMemory removes stored memory of boards no longer in the
// workspace and reports how many entries went.
func PruneBoardMemory(store *BlobStore, boards []Board) (int, error) {
	if store == nil {
		return 0, nil
	}
	keys, err := store.Keys(nsMemory)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(boards))
	for _, b := range boards {
		keep[boardMemoryKey(b.Name)] = true
	}
	removed := 0
	for _, k := range keys {
		if keep[k] {
			continue
		}
		if err := store.Delete(nsMemory, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

type assistantReplyMsg struct {
	boardID   string
	requestID string
	reply     Reply
	err       error
}

func askAssistantCmd(a *Assistant, boardID, requestID string, snap BoardSnapshot, history []chatMessage, prompt string) tea.Cmd {
	return func() tea.Msg {
		raw, err := a.Ask(context.Background(), snap, history, prompt)
		if err != nil {
			return assistantReplyMsg{boardID: boardID, requestID: requestID, err: err}
		}
		return assistantReplyMsg{boardID: boardID, requestID: requestID, reply: ParseReply(raw)}
	}
}

// renderMarkdown returns content unchanged if glamour cannot render it.
func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
