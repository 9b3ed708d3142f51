package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"
	"sync"

	"github.com/park285/chess-vision/internal/board"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultSquareSize = 64
	minSquareSize     = 16
	maxSquareSize     = 160
)

type Options struct {
	// Highlight marks one square, e.g. the square just edited.
	Highlight *board.Square
	// Flip draws the board from black's side.
	Flip       bool
	SquareSize int
}

type Renderer struct {
	mu     sync.RWMutex
	layers map[layerKey]image.Image
}

type layerKey struct {
	kind string
	size int
}

func NewRenderer() *Renderer {
	return &Renderer{layers: make(map[layerKey]image.Image)}
}

var (
	lightSquare     = "#e9cfa3"
	darkSquare      = "#bb8860"
	highlightColor  = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	coordinateColor = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	backgroundColor = color.NRGBA{R: 250, G: 248, B: 242, A: 255}
	whiteGlyph      = color.NRGBA{R: 20, G: 20, B: 20, A: 255}
	blackGlyph      = color.NRGBA{R: 245, G: 245, B: 245, A: 255}
)

// RenderPNG draws g as a PNG image with file and rank coordinates.
func (r *Renderer) RenderPNG(ctx context.Context, g board.Grid, opts Options) ([]byte, error) {
	size := opts.SquareSize
	if size <= 0 {
		size = DefaultSquareSize
	}
	if size < minSquareSize {
		size = minSquareSize
	}
	if size > maxSquareSize {
		size = maxSquareSize
	}
	margin := 20
	boardSize := size * 8
	origin := image.Point{X: margin, Y: margin / 2}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, boardSize+margin*2, boardSize+margin*2))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	squares, err := r.layer("squares", size, func() (image.Image, error) {
		return rasterizeSVG(squaresSVG(), boardSize)
	})
	if err != nil {
		return nil, err
	}
	imagedraw.Draw(img, image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize), squares, image.Point{}, imagedraw.Over)

	if opts.Highlight != nil && opts.Highlight.Valid() {
		rect := cellRect(*opts.Highlight, size, origin, opts.Flip)
		imagedraw.Draw(img, rect, image.NewUniform(highlightColor), image.Point{}, imagedraw.Over)
	}

	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			sq := board.Square{Rank: rank, File: file}
			p := g.At(sq)
			if p == board.NoPiece {
				continue
			}
			if err := r.drawPiece(img, p, cellRect(sq, size, origin, opts.Flip)); err != nil {
				return nil, err
			}
		}
	}
	drawCoordinates(img, size, origin, opts.Flip)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) layer(kind string, size int, build func() (image.Image, error)) (image.Image, error) {
	key := layerKey{kind: kind, size: size}
	r.mu.RLock()
	if img, ok := r.layers[key]; ok {
		r.mu.RUnlock()
		return img, nil
	}
	r.mu.RUnlock()

	img, err := build()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.layers[key] = img
	r.mu.Unlock()
	return img, nil
}

func (r *Renderer) drawPiece(dst *image.RGBA, p board.Piece, rect image.Rectangle) error {
	kind := "disc-black"
	ink := blackGlyph
	if p.IsWhite() {
		kind = "disc-white"
		ink = whiteGlyph
	}
	disc, err := r.layer(kind, rect.Dx(), func() (image.Image, error) {
		return rasterizeSVG(discSVG(p.IsWhite()), rect.Dx())
	})
	if err != nil {
		return err
	}
	imagedraw.Draw(dst, rect, disc, image.Point{}, imagedraw.Over)

	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(ink), Face: basicfont.Face7x13}
	letter := strings.ToUpper(p.String())
	width := drawer.MeasureString(letter).Round()
	metrics := basicfont.Face7x13.Metrics()
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Dot = fixed.P(rect.Min.X+(rect.Dx()-width)/2, baseline)
	drawer.DrawString(letter)
	return nil
}

func squaresSVG() []byte {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 8 8" width="8" height="8">`)
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			fill := lightSquare
			if (rank+file)%2 == 1 {
				fill = darkSquare
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="1" height="1" fill="%s"/>`, file, rank, fill)
		}
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

func discSVG(white bool) []byte {
	fill, stroke := "#303030", "#f0f0f0"
	if white {
		fill, stroke = "#fafafa", "#202020"
	}
	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100" width="100" height="100"><circle cx="50" cy="50" r="36" fill="%s" stroke="%s" stroke-width="5"/></svg>`,
		fill, stroke,
	))
}

func rasterizeSVG(doc []byte, size int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, imagedraw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

func cellRect(sq board.Square, size int, origin image.Point, flip bool) image.Rectangle {
	row, col := sq.Rank, sq.File
	if flip {
		row, col = 7-row, 7-col
	}
	x := origin.X + col*size
	y := origin.Y + row*size
	return image.Rect(x, y, x+size, y+size)
}

func drawCoordinates(dst *image.RGBA, size int, origin image.Point, flip bool) {
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(coordinateColor), Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		idx := i
		if flip {
			idx = 7 - i
		}
		rankLabel := string(rune('8' - idx))
		fileLabel := string(rune('a' + idx))

		y := origin.Y + i*size + size/2 + ascent/2
		drawer.Dot = fixed.P(origin.X-12, y)
		drawer.DrawString(rankLabel)

		x := origin.X + i*size + size/2 - 3
		drawer.Dot = fixed.P(x, origin.Y+8*size+ascent+2)
		drawer.DrawString(fileLabel)
	}
}
