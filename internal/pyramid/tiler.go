package pyramid

import (
	"errors"
	"image"
	"image/draw"

	"github.com/MeKo-Tech/tilepyramid/internal/codec"
)

// ErrTileSize is returned when tile dimensions are smaller than 1x1.
var ErrTileSize = errors.New("tile dimensions must be at least 1x1")

// Tile is one cell of a tile grid. Interior tiles are exactly
// TileWidth x TileHeight; tiles in the last column or row are clipped to
// the level edge.
type Tile struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
	Raster *codec.Raster
}

// TileGrid is the regular partition of a level into tiles, in row-major
// order: Index = y-row * CountAcross + x-column.
type TileGrid struct {
	LevelWidth  int
	LevelHeight int
	TileWidth   int
	TileHeight  int
	CountAcross int
	CountDown   int
	Tiles       []Tile
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// MakeTiles splits a raster into a grid of tiles of the given dimensions
// or smaller. The number of tiles is ceil(w/tw) * ceil(h/th). Tiles share
// the source's pixel data when the underlying image supports cropping.
func MakeTiles(r *codec.Raster, tw, th int) (*TileGrid, error) {
	if tw < 1 || th < 1 {
		return nil, ErrTileSize
	}

	w, h := r.Width(), r.Height()
	countAcross := (w + tw - 1) / tw
	countDown := (h + th - 1) / th

	b := r.Image.Bounds()
	tiles := make([]Tile, 0, countAcross*countDown)
	for y := 0; y < countDown; y++ {
		for x := 0; x < countAcross; x++ {
			tx := x * tw
			ty := y * th
			tileW := min(tw, w-tx)
			tileH := min(th, h-ty)

			rect := image.Rect(b.Min.X+tx, b.Min.Y+ty, b.Min.X+tx+tileW, b.Min.Y+ty+tileH)
			tiles = append(tiles, Tile{
				Index:  y*countAcross + x,
				X:      tx,
				Y:      ty,
				Width:  tileW,
				Height: tileH,
				Raster: &codec.Raster{Image: crop(r.Image, rect), MIME: r.MIME},
			})
		}
	}

	return &TileGrid{
		LevelWidth:  w,
		LevelHeight: h,
		TileWidth:   tw,
		TileHeight:  th,
		CountAcross: countAcross,
		CountDown:   countDown,
		Tiles:       tiles,
	}, nil
}

// crop extracts the given rectangle without copying when possible.
func crop(img image.Image, rect image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}
