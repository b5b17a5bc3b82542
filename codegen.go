package main

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

type GeneratedCode struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Filename  string `json:"filename"`
	LineCount int    `json:"lineCount"`
}

func newGeneratedCode(code, language, filename string) *GeneratedCode {
	code = strings.TrimRight(code, "\n")
	return &GeneratedCode{
		Code:      code,
		Language:  language,
		Filename:  filename,
		LineCount: len(strings.Split(code, "\n")),
	}
}

var codeExtensions = map[string]string{
	"python":     ".py",
	"javascript": ".js",
	"go":         ".go",
}

// GenerateCode turns a board into a program skeleton. Nodes are emitted in
// walk order from the start nodes; anything unreachable follows, top to bottom.
func GenerateCode(snap BoardSnapshot, language string) *GeneratedCode {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = "python"
	}
	order := walkOrder(snap)

	var b strings.Builder
	switch language {
	case "python":
		writePython(&b, snap.BoardName, order)
	case "javascript":
		writeJavaScript(&b, snap.BoardName, order)
	case "go":
		writeGo(&b, snap.BoardName, order)
	default:
		writeOutline(&b, snap.BoardName, order)
	}

	ext, ok := codeExtensions[language]
	if !ok {
		ext = ".txt"
	}
	return newGeneratedCode(b.String(), language, codeFilename(snap.BoardName)+ext)
}

func codeFilename(boardName string) string {
	name := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, boardName)
	if name == "" {
		return "flowchart"
	}
	return name
}

func walkOrder(snap BoardSnapshot) []SnapshotNode {
	byID := make(map[string]SnapshotNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byID[n.ID] = n
	}
	next := make(map[string][]string)
	for _, c := range snap.Connections {
		next[c.From] = append(next[c.From], c.To)
	}

	sorted := append([]SnapshotNode(nil), snap.Nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var queue []string
	for _, n := range sorted {
		if n.Type == string(NodeStart) {
			queue = append(queue, n.ID)
		}
	}

	seen := make(map[string]bool)
	var order []SnapshotNode
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		n, ok := byID[id]
		if !ok {
			continue
		}
		seen[id] = true
		order = append(order, n)
		queue = append(queue, next[id]...)
	}
	for _, n := range sorted {
		if !seen[n.ID] {
			order = append(order, n)
		}
	}
	return order
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func quoted(text string) string {
	return fmt.Sprintf("%q", oneLine(text))
}

func writePython(b *strings.Builder, boardName string, nodes []SnapshotNode) {
	fmt.Fprintf(b, "# Generated from flowboard: %s\n\n", oneLine(boardName))
	b.WriteString("def main():\n")
	if len(nodes) == 0 {
		b.WriteString("    pass\n")
	}
	for _, n := range nodes {
		text := oneLine(n.Text)
		switch NodeType(n.Type) {
		case NodeStart:
			fmt.Fprintf(b, "    # %s\n", text)
		case NodeEnd:
			fmt.Fprintf(b, "    # %s\n    return\n", text)
		case NodeDecision:
			fmt.Fprintf(b, "    if True:  # %s\n        pass\n    else:\n        pass\n", text)
		case NodeLoop:
			fmt.Fprintf(b, "    while False:  # %s\n        pass\n", text)
		case NodeVariable:
			if strings.Contains(text, "=") {
				fmt.Fprintf(b, "    %s\n", text)
			} else {
				fmt.Fprintf(b, "    # variable: %s\n", text)
			}
		default:
			fmt.Fprintf(b, "    print(%s)\n", quoted(text))
		}
	}
	b.WriteString("\n\nif __name__ == \"__main__\":\n    main()\n")
}

func writeJavaScript(b *strings.Builder, boardName string, nodes []SnapshotNode) {
	fmt.Fprintf(b, "// Generated from flowboard: %s\n\n", oneLine(boardName))
	b.WriteString("function main() {\n")
	for _, n := range nodes {
		text := oneLine(n.Text)
		switch NodeType(n.Type) {
		case NodeStart:
			fmt.Fprintf(b, "  // %s\n", text)
		case NodeEnd:
			fmt.Fprintf(b, "  // %s\n  return;\n", text)
		case NodeDecision:
			fmt.Fprintf(b, "  if (true) { // %s\n  } else {\n  }\n", text)
		case NodeLoop:
			fmt.Fprintf(b, "  while (false) { // %s\n  }\n", text)
		case NodeVariable:
			if strings.Contains(text, "=") {
				fmt.Fprintf(b, "  let %s;\n", strings.TrimSuffix(text, ";"))
			} else {
				fmt.Fprintf(b, "  // variable: %s\n", text)
			}
		default:
			fmt.Fprintf(b, "  console.log(%s);\n", quoted(text))
		}
	}
	b.WriteString("}\n\nmain();\n")
}

func writeGo(b *strings.Builder, boardName string, nodes []SnapshotNode) {
	fmt.Fprintf(b, "// Generated from flowboard: %s\npackage main\n\nimport \"fmt\"\n\n", oneLine(boardName))
	b.WriteString("func main() {\n")
	for _, n := range nodes {
		text := oneLine(n.Text)
		switch NodeType(n.Type) {
		case NodeStart, NodeVariable:
			fmt.Fprintf(b, "\t// %s\n", text)
		case NodeEnd:
			fmt.Fprintf(b, "\t// %s\n", text)
		case NodeDecision:
			fmt.Fprintf(b, "\tif true { // %s\n\t}\n", text)
		case NodeLoop:
			fmt.Fprintf(b, "\tfor range 0 { // %s\n\t}\n", text)
		default:
			fmt.Fprintf(b, "\tfmt.Println(%s)\n", quoted(text))
		}
	}
	b.WriteString("}\n")
}

func writeOutline(b *strings.Builder, boardName string, nodes []SnapshotNode) {
	fmt.Fprintf(b, "Flowchart: %s\n\n", oneLine(boardName))
	for i, n := range nodes {
		fmt.Fprintf(b, "%d. [%s] %s\n", i+1, n.Type, oneLine(n.Text))
	}
}

// highlightCode colors code for the terminal, falling back to plain text.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
