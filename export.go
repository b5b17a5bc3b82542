package main

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

var ErrNothingToExport = errors.New("nothing to export")

// exportVisualTXT writes the board exactly as it appears on screen, without
// selection, hover or cursor.
func exportVisualTXT(filename string, data *BoardData, width, height int) error {
	if data == nil {
		return ErrNothingToExport
	}
	if width < 1 {
		width = 80
	}
	if height < 1 {
		height = 24
	}
	lines := renderBoard(data, renderOptions{width: width, height: height}).Lines(false)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	for _, line := range lines {
		if _, err := fmt.Fprintln(file, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// ExportPNG draws the board in canvas units, one pixel per unit, cropped to
// its contents with a margin.
func ExportPNG(filename string, data *BoardData) error {
	if data == nil || len(data.Nodes) == 0 {
		return ErrNothingToExport
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	grow := func(p Point) {
		minX, minY = math.Min(minX, p.X), math.Min(minY, p.Y)
		maxX, maxY = math.Max(maxX, p.X), math.Max(maxY, p.Y)
	}
	for _, n := range data.Nodes {
		n = sanitizeNode(n)
		grow(Point{X: n.X, Y: n.Y})
		grow(Point{X: n.X + n.Width, Y: n.Y + n.Height})
	}
	for _, c := range data.Connections {
		if path, ok := ConnectionPath(data, c); ok {
			for _, p := range path {
				grow(p)
			}
		}
	}

	padding := 40.0
	origin := Point{X: minX - padding, Y: minY - padding}
	imageWidth := int(math.Ceil(maxX - minX + 2*padding))
	imageHeight := int(math.Ceil(maxY - minY + 2*padding))

	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetColor(color.White)
	dc.Clear()

	ttfFont, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return fmt.Errorf("failed to parse font: %w", err)
	}
	face := truetype.NewFace(ttfFont, &truetype.Options{
		Size:    12,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	dc.SetFontFace(face)

	// Draw connections first (so they appear behind nodes)
	for _, c := range data.Connections {
		if path, ok := ConnectionPath(data, c); ok {
			drawConnectionPNG(dc, path, c.Label, origin)
		}
	}
	for _, n := range data.Nodes {
		drawNodePNG(dc, sanitizeNode(n), origin)
	}

	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("save png: %w", err)
	}
	return nil
}

func drawConnectionPNG(dc *gg.Context, path Path, label string, origin Point) {
	dc.SetLineWidth(2)
	dc.SetColor(color.RGBA{R: 0x4b, G: 0x55, B: 0x63, A: 0xff})
	dc.MoveTo(path[0].X-origin.X, path[0].Y-origin.Y)
	for _, p := range path[1:] {
		dc.LineTo(p.X-origin.X, p.Y-origin.Y)
	}
	dc.Stroke()
	drawArrowPNG(dc, path[2].Sub(origin), path[3].Sub(origin))

	if label != "" {
		mid := path.Midpoint().Sub(origin)
		w, h := dc.MeasureString(label)
		dc.SetColor(color.White)
		dc.DrawRectangle(mid.X-w/2-4, mid.Y-h/2-3, w+8, h+6)
		dc.Fill()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(label, mid.X, mid.Y, 0.5, 0.35)
	}
}

func drawArrowPNG(dc *gg.Context, from, to Point) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	length := math.Sqrt(dx*dx + dy*dy)
	if length < 0.1 {
		return
	}
	dx /= length
	dy /= length

	arrowSize := 9.0
	arrowAngle := 0.5
	dc.MoveTo(to.X, to.Y)
	dc.LineTo(to.X-arrowSize*dx+arrowSize*dy*arrowAngle, to.Y-arrowSize*dy-arrowSize*dx*arrowAngle)
	dc.LineTo(to.X-arrowSize*dx-arrowSize*dy*arrowAngle, to.Y-arrowSize*dy+arrowSize*dx*arrowAngle)
	dc.ClosePath()
	dc.Fill()
}

func drawNodePNG(dc *gg.Context, n Node, origin Point) {
	x := n.X - origin.X
	y := n.Y - origin.Y
	fill := parseHexColor(tagColor(n.Color))

	switch n.Type {
	case NodeStart, NodeEnd:
		dc.DrawRoundedRectangle(x, y, n.Width, n.Height, n.Height/2)
	case NodeDecision:
		dc.MoveTo(x+n.Width/2, y)
		dc.LineTo(x+n.Width, y+n.Height/2)
		dc.LineTo(x+n.Width/2, y+n.Height)
		dc.LineTo(x, y+n.Height/2)
		dc.ClosePath()
	default:
		dc.DrawRoundedRectangle(x, y, n.Width, n.Height, 6)
	}
	dc.SetColor(fill)
	dc.FillPreserve()
	dc.SetLineWidth(1.5)
	dc.SetColor(color.Black)
	dc.Stroke()

	dc.SetColor(color.White)
	lines := strings.Split(n.Text, "\n")
	_, lineHeight := dc.MeasureString("M")
	lineHeight *= 1.4
	top := y + n.Height/2 - lineHeight*float64(len(lines)-1)/2
	for i, line := range lines {
		dc.DrawStringAnchored(line, x+n.Width/2, top+float64(i)*lineHeight, 0.5, 0.35)
	}
}

func parseHexColor(hex string) color.Color {
	hex = strings.TrimPrefix(hex, "#")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || len(hex) != 6 {
		return color.Gray{Y: 0x99}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
