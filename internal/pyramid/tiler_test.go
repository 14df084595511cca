package pyramid

import (
	"errors"
	"testing"
)

func TestMakeTilesGrid(t *testing.T) {
	grid, err := MakeTiles(testRaster(1000, 1000), 300, 300)
	if err != nil {
		t.Fatalf("MakeTiles failed: %v", err)
	}

	if grid.CountAcross != 4 || grid.CountDown != 4 {
		t.Fatalf("grid = %dx%d, want 4x4", grid.CountAcross, grid.CountDown)
	}
	if len(grid.Tiles) != 16 {
		t.Fatalf("expected 16 tiles, got %d", len(grid.Tiles))
	}

	for i, tile := range grid.Tiles {
		if tile.Index != i {
			t.Errorf("tile %d has index %d; flat list must be row-major", i, tile.Index)
		}

		col := i % 4
		row := i / 4
		wantW, wantH := 300, 300
		if col == 3 {
			wantW = 100
		}
		if row == 3 {
			wantH = 100
		}
		if tile.Width != wantW || tile.Height != wantH {
			t.Errorf("tile (%d,%d) = %dx%d, want %dx%d", col, row, tile.Width, tile.Height, wantW, wantH)
		}
		if tile.X != col*300 || tile.Y != row*300 {
			t.Errorf("tile (%d,%d) origin = (%d,%d), want (%d,%d)", col, row, tile.X, tile.Y, col*300, row*300)
		}
		if tile.Raster.Width() != wantW || tile.Raster.Height() != wantH {
			t.Errorf("tile (%d,%d) raster = %dx%d, want %dx%d",
				col, row, tile.Raster.Width(), tile.Raster.Height(), wantW, wantH)
		}
	}
}

func TestMakeTilesCoverage(t *testing.T) {
	grid, err := MakeTiles(testRaster(70, 50), 32, 32)
	if err != nil {
		t.Fatalf("MakeTiles failed: %v", err)
	}

	covered := make([][]int, 50)
	for y := range covered {
		covered[y] = make([]int, 70)
	}
	for _, tile := range grid.Tiles {
		for y := tile.Y; y < tile.Y+tile.Height; y++ {
			for x := tile.X; x < tile.X+tile.Width; x++ {
				covered[y][x]++
			}
		}
	}
	for y := range covered {
		for x := range covered[y] {
			if covered[y][x] != 1 {
				t.Fatalf("pixel (%d,%d) covered %d times, want exactly once", x, y, covered[y][x])
			}
		}
	}
}

func TestMakeTilesExactFit(t *testing.T) {
	grid, err := MakeTiles(testRaster(64, 64), 32, 32)
	if err != nil {
		t.Fatalf("MakeTiles failed: %v", err)
	}
	if len(grid.Tiles) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(grid.Tiles))
	}
	for _, tile := range grid.Tiles {
		if tile.Width != 32 || tile.Height != 32 {
			t.Errorf("tile %d = %dx%d, want 32x32", tile.Index, tile.Width, tile.Height)
		}
	}
}

func TestMakeTilesSinglePixel(t *testing.T) {
	grid, err := MakeTiles(testRaster(1, 1), 512, 512)
	if err != nil {
		t.Fatalf("MakeTiles failed: %v", err)
	}
	if len(grid.Tiles) != 1 {
		t.Fatalf("expected a single tile, got %d", len(grid.Tiles))
	}
	if grid.Tiles[0].Width != 1 || grid.Tiles[0].Height != 1 {
		t.Errorf("tile = %dx%d, want 1x1", grid.Tiles[0].Width, grid.Tiles[0].Height)
	}
}

func TestMakeTilesInvalidSize(t *testing.T) {
	if _, err := MakeTiles(testRaster(8, 8), 0, 32); !errors.Is(err, ErrTileSize) {
		t.Fatalf("expected ErrTileSize, got %v", err)
	}
	if _, err := MakeTiles(testRaster(8, 8), 32, -1); !errors.Is(err, ErrTileSize) {
		t.Fatalf("expected ErrTileSize, got %v", err)
	}
}
