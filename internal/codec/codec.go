// Package codec decodes and encodes rasters for the closed set of
// supported image MIME types.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
)

// Supported MIME types.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
	MIMEBMP  = "image/bmp"
)

var (
	// ErrUnsupportedFormat is returned for MIME types outside the supported set.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrDecode is returned when the bytes are empty, truncated, or not valid
	// for the declared MIME type.
	ErrDecode = errors.New("failed to decode image")
	// ErrEncode is returned when the codec cannot produce bytes for a raster.
	ErrEncode = errors.New("failed to encode image")
)

const (
	jpegQuality = 90
	webpQuality = 90
)

// Raster is a decoded image together with the MIME type it was decoded
// from. It is immutable once produced.
type Raster struct {
	Image image.Image
	MIME  string
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.Image.Bounds().Dx() }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.Image.Bounds().Dy() }

// Supported reports whether the given MIME type is in the supported set.
func Supported(mime string) bool {
	switch mime {
	case MIMEPNG, MIMEJPEG, MIMEWebP, MIMEBMP:
		return true
	}
	return false
}

// Decode decodes image bytes declared as the given MIME type.
func Decode(data []byte, mime string) (*Raster, error) {
	if !Supported(mime) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mime)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	r := bytes.NewReader(data)
	var (
		img image.Image
		err error
	)
	switch mime {
	case MIMEPNG:
		img, err = png.Decode(r)
	case MIMEJPEG:
		img, err = jpeg.Decode(r)
	case MIMEWebP:
		img, err = webp.Decode(r)
	case MIMEBMP:
		img, err = bmp.Decode(r)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &Raster{Image: img, MIME: mime}, nil
}

// Encode encodes a raster to bytes in the given MIME type.
func Encode(r *Raster, mime string) ([]byte, error) {
	if !Supported(mime) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mime)
	}

	var buf bytes.Buffer
	var err error
	switch mime {
	case MIMEPNG:
		enc := &png.Encoder{CompressionLevel: png.BestSpeed}
		err = enc.Encode(&buf, r.Image)
	case MIMEJPEG:
		err = jpeg.Encode(&buf, r.Image, &jpeg.Options{Quality: jpegQuality})
	case MIMEWebP:
		err = webp.Encode(&buf, r.Image, webp.Options{Quality: webpQuality})
	case MIMEBMP:
		err = bmp.Encode(&buf, r.Image)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	return buf.Bytes(), nil
}
