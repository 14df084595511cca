package pyramid

import (
	"errors"
	"image"
	"math/bits"

	"github.com/disintegration/gift"
	xdraw "golang.org/x/image/draw"

	"github.com/MeKo-Tech/tilepyramid/internal/codec"
)

// ErrEmptyImage is returned when a pyramid is requested for a zero-area raster.
var ErrEmptyImage = errors.New("cannot build pyramid from empty image")

// Sigma of the Gaussian pre-filter applied before each 2:1 decimation.
// Chosen to suppress frequencies above the post-decimation Nyquist limit.
const lowpassSigma = 1.0

// LevelCount returns the number of pyramid levels for a source of the
// given dimensions: floor(log2(min(w, h))) + 1.
func LevelCount(w, h int) int {
	m := min(w, h)
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m))
}

// LevelDims returns the dimensions of level k: (ceil(w/2^k), ceil(h/2^k)).
func LevelDims(w, h, k int) (int, int) {
	d := 1 << k
	return (w + d - 1) / d, (h + d - 1) / d
}

// Build produces the full mip pyramid for the source raster. Level 0 is
// the source itself; each subsequent level is produced by a Gaussian
// low-pass filter followed by 2:1 decimation, down to a minimum dimension
// of one pixel. All levels share the source MIME type.
func Build(src *codec.Raster) ([]*codec.Raster, error) {
	w, h := src.Width(), src.Height()
	count := LevelCount(w, h)
	if count == 0 {
		return nil, ErrEmptyImage
	}

	levels := make([]*codec.Raster, 0, count)
	levels = append(levels, src)

	cur := src.Image
	for k := 1; k < count; k++ {
		nw, nh := LevelDims(w, h, k)
		cur = halve(cur, nw, nh)
		levels = append(levels, &codec.Raster{Image: cur, MIME: src.MIME})
	}

	return levels, nil
}

// halve low-pass filters src and decimates it to the given dimensions.
func halve(src image.Image, nw, nh int) image.Image {
	g := gift.New(gift.GaussianBlur(lowpassSigma))
	blurred := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(blurred, src)

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), blurred, blurred.Bounds(), xdraw.Src, nil)
	return dst
}
