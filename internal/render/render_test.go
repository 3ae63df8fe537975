package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

const foolsMateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"

func TestRenderPNGDimensions(t *testing.T) {
	data, err := RenderPNG(context.Background(), foolsMateFEN, Options{LastMove: "d8h4", Title: "gpt-4o vs claude-3  0-1"})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != boardSize+2*sideMargin || b.Dy() != boardSize+headerHeight+footerHeight {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestRenderPNGDrawsPieces(t *testing.T) {
	empty, err := RenderPNG(context.Background(), "8/8/8/8/8/8/8/4K2k w - - 0 1", Options{})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	start, err := RenderPNG(context.Background(), "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Options{})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	a, _ := png.Decode(bytes.NewReader(empty))
	b, _ := png.Decode(bytes.NewReader(start))
	// a2 holds a pawn only in the start position
	r := squareRect(nchess.A2, pointOrigin())
	cx, cy := r.Min.X+squareSize/2, r.Min.Y+squareSize/2+8
	if a.At(cx, cy) == b.At(cx, cy) {
		t.Fatalf("expected pawn pixels on a2")
	}
}

func TestRenderPNGRejectsBadFEN(t *testing.T) {
	if _, err := RenderPNG(context.Background(), "not a fen", Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderPNGCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderPNG(ctx, foolsMateFEN, Options{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestParseLastMove(t *testing.T) {
	from, to, ok := parseLastMove("E7E8q")
	if !ok || from != nchess.E7 || to != nchess.E8 {
		t.Fatalf("parseLastMove = %v %v %v", from, to, ok)
	}
	if _, _, ok := parseLastMove("O-O"); ok {
		t.Fatalf("castling SAN is not a coordinate move")
	}
}

func TestWriteSnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "boards")
	path, err := WriteSnapshot(dir, "20250301_120000", []byte("png"))
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if path != filepath.Join(dir, "20250301_120000.png") {
		t.Fatalf("path = %q", path)
	}
	if b, _ := os.ReadFile(path); string(b) != "png" {
		t.Fatalf("unexpected contents %q", b)
	}
}

func pointOrigin() image.Point { return image.Point{X: sideMargin, Y: headerHeight} }
