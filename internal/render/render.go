// Package render draws final-position snapshots as PNG.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize   = 64
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	sideMargin   = 24
	headerHeight = 32
	footerHeight = 24
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	backgroundColor = color.RGBA{28, 31, 46, 255}
	textColor       = color.RGBA{236, 239, 255, 255}
	coordColor      = color.RGBA{8, 214, 120, 255}
	whiteMoveFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow  = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
)

type Options struct {
	// LastMove in UCI, e.g. "e2e4"; empty draws no highlight.
	LastMove string
	Title    string
}

// RenderPNG draws the position described by fen.
func RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	board, err := boardFromFEN(fen)
	if err != nil {
		return nil, err
	}

	width := boardSize + sideMargin*2
	height := boardSize + headerHeight + footerHeight
	origin := image.Point{X: sideMargin, Y: headerHeight}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawSquares(img, origin)
	if from, to, ok := parseLastMove(opts.LastMove); ok {
		drawHighlight(img, board, from, to, origin)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := drawPieces(img, board, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin)
	drawTitle(img, opts.Title)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSnapshot stores png as <dir>/<id>.png and returns the path.
func WriteSnapshot(dir, id string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create board dir: %w", err)
	}
	path := filepath.Join(dir, strings.TrimSpace(id)+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

func boardFromFEN(fen string) (*nchess.Board, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(opt).Position().Board(), nil
}

func parseLastMove(uci string) (nchess.Square, nchess.Square, bool) {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if len(uci) < 4 {
		return 0, 0, false
	}
	from, ok1 := parseSquare(uci[0:2])
	to, ok2 := parseSquare(uci[2:4])
	return from, to, ok1 && ok2
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

// squareRect maps a square to pixels with White at the bottom.
func squareRect(sq nchess.Square, origin image.Point) image.Rectangle {
	x := origin.X + int(sq.File())*squareSize
	y := origin.Y + (7-int(sq.Rank()))*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawSquares(img *image.RGBA, origin image.Point) {
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		clr := lightSquare
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			clr = darkSquare
		}
		imagedraw.Draw(img, squareRect(sq, origin), image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(img *image.RGBA, board *nchess.Board, origin image.Point) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		g, err := glyph(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(img, squareRect(sq, origin), g, image.Point{}, imagedraw.Over)
	}
	return nil
}

// White moves get filled squares, Black moves an arrow.
func drawHighlight(img *image.RGBA, board *nchess.Board, from, to nchess.Square, origin image.Point) {
	mover := board.Piece(to)
	if mover == nchess.NoPiece {
		mover = board.Piece(from)
	}
	if mover != nchess.NoPiece && mover.Color() == nchess.Black {
		drawArrow(img, from, to, origin, blackMoveArrow)
		return
	}
	for _, sq := range []nchess.Square{from, to} {
		imagedraw.Draw(img, squareRect(sq, origin), image.NewUniform(whiteMoveFill), image.Point{}, imagedraw.Over)
	}
}

func drawArrow(img *image.RGBA, from, to nchess.Square, origin image.Point, clr color.Color) {
	if from == to {
		return
	}
	center := func(sq nchess.Square) (float64, float64) {
		r := squareRect(sq, origin)
		return float64(r.Min.X + squareSize/2), float64(r.Min.Y + squareSize/2)
	}
	sx, sy := center(from)
	ex, ey := center(to)
	length := math.Hypot(ex-sx, ey-sy)
	dx, dy := (ex-sx)/length, (ey-sy)/length
	px, py := -dy, dx

	shaft := length - squareSize*0.45
	if shaft < squareSize*0.35 {
		shaft = length * 0.6
	}
	half := squareSize * 0.18
	head := squareSize * 0.32
	bx, by := sx+dx*shaft, sy+dy*shaft

	b := img.Bounds()
	filler := rasterx.NewFiller(b.Dx(), b.Dy(), rasterx.NewScannerGV(b.Dx(), b.Dy(), img, b))
	filler.SetColor(clr)
	filler.Start(rasterx.ToFixedP(sx-px*half, sy-py*half))
	for _, p := range [][2]float64{
		{bx - px*half, by - py*half},
		{bx - px*head, by - py*head},
		{ex, ey},
		{bx + px*head, by + py*head},
		{bx + px*half, by + py*half},
		{sx + px*half, sy + py*half},
	} {
		filler.Line(rasterx.ToFixedP(p[0], p[1]))
	}
	filler.Stop(true)
	filler.Draw()
}

func drawCoordinates(img *image.RGBA, origin image.Point) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(coordColor), Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i := 0; i < boardSquares; i++ {
		file := string(rune('a' + i))
		rank := string(rune('8' - i))
		drawCentered(d, file, origin.X+i*squareSize+squareSize/2, origin.Y+boardSize+ascent+4)
		drawCentered(d, rank, origin.X-sideMargin/2, origin.Y+i*squareSize+squareSize/2+ascent/2)
	}
}

func drawTitle(img *image.RGBA, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(textColor), Face: basicfont.Face7x13}
	drawCentered(d, title, img.Bounds().Dx()/2, headerHeight/2+basicfont.Face7x13.Metrics().Ascent.Ceil()/2)
}

func drawCentered(d *font.Drawer, text string, centerX, baseline int) {
	w := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-w/2, baseline)
	d.DrawString(text)
}
