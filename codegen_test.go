package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() BoardSnapshot {
	return BoardSnapshot{
		BoardName: "My Flow!",
		Nodes: []SnapshotNode{
			{ID: "var", Type: "variable", Text: "x = 1", X: 0, Y: 500},
			{ID: "end", Type: "end", Text: "Done", X: 600, Y: 0},
			{ID: "hi", Type: "process", Text: "Say\n  hi", X: 300, Y: 0},
			{ID: "start", Type: "start", Text: "Begin", X: 0, Y: 0},
		},
		Connections: []SnapshotConnection{
			{From: "start", To: "hi"},
			{From: "hi", To: "end"},
		},
	}
}

func TestGenerateCodePython(t *testing.T) {
	code := GenerateCode(sampleSnapshot(), "")

	want := strings.Join([]string{
		"# Generated from flowboard: My Flow!",
		"",
		"def main():",
		"    # Begin",
		`    print("Say hi")`,
		"    # Done",
		"    return",
		"    x = 1",
		"",
		"",
		`if __name__ == "__main__":`,
		"    main()",
	}, "\n")
	assert.Equal(t, want, code.Code)
	assert.Equal(t, "python", code.Language)
	assert.Equal(t, "MyFlow.py", code.Filename)
	assert.Equal(t, 12, code.LineCount)
}

func TestGenerateCodeJavaScript(t *testing.T) {
	code := GenerateCode(sampleSnapshot(), " JavaScript ")

	assert.Equal(t, "javascript", code.Language)
	assert.Equal(t, "MyFlow.js", code.Filename)
	assert.Contains(t, code.Code, "function main() {")
	assert.Contains(t, code.Code, `  console.log("Say hi");`)
	assert.Contains(t, code.Code, "  let x = 1;")
	assert.True(t, strings.HasSuffix(code.Code, "main();"))
}

func TestGenerateCodeGo(t *testing.T) {
	code := GenerateCode(sampleSnapshot(), "go")

	assert.Equal(t, "MyFlow.go", code.Filename)
	assert.Contains(t, code.Code, "package main")
	assert.Contains(t, code.Code, "\tfmt.Println(\"Say hi\")")
}

func TestGenerateCodeOutlineForOtherLanguages(t *testing.T) {
	code := GenerateCode(sampleSnapshot(), "rust")

	assert.Equal(t, "rust", code.Language)
	assert.Equal(t, "MyFlow.txt", code.Filename)
	lines := strings.Split(code.Code, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "1. [start] Begin", lines[2])
	assert.Equal(t, "4. [variable] x = 1", lines[5])
}

func TestGenerateCodeEmptyBoard(t *testing.T) {
	code := GenerateCode(BoardSnapshot{}, "python")

	assert.Equal(t, "flowchart.py", code.Filename)
	assert.Contains(t, code.Code, "def main():\n    pass\n")
}

func TestWalkOrderSurvivesCycles(t *testing.T) {
	snap := BoardSnapshot{
		Nodes: []SnapshotNode{
			{ID: "s", Type: "start", Y: 0},
			{ID: "a", Type: "process", Y: 10},
			{ID: "b", Type: "process", Y: 20},
		},
		Connections: []SnapshotConnection{
			{From: "s", To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
			{From: "b", To: "gone"},
		},
	}

	var ids []string
	for _, n := range walkOrder(snap) {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"s", "a", "b"}, ids)
}

func TestHighlightCode(t *testing.T) {
	out := highlightCode("print(1)", "python")
	assert.Contains(t, out, "print")
	assert.Equal(t, "plain words", stripANSI(highlightCode("plain words", "no-such-language")))
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			b.WriteRune(r)
		}
	}
	return b.String()
}
