package pyramid

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/MeKo-Tech/tilepyramid/internal/codec"
)

// Brotli parameter bounds and defaults.
const (
	BrotliQualityMin    = 0
	BrotliQualityMax    = 11
	BrotliWindowLog2Min = 10
	BrotliWindowLog2Max = 24

	DefaultBrotliQuality    = 10
	DefaultBrotliWindowLog2 = 24
)

// ErrBrotliParams is returned for out-of-range compression parameters.
var ErrBrotliParams = errors.New("invalid brotli parameters")

// ValidateBrotliParams checks quality and window size against the
// supported ranges.
func ValidateBrotliParams(quality, windowLog2 int) error {
	if quality < BrotliQualityMin || quality > BrotliQualityMax {
		return fmt.Errorf("%w: quality %d not in [%d, %d]",
			ErrBrotliParams, quality, BrotliQualityMin, BrotliQualityMax)
	}
	if windowLog2 < BrotliWindowLog2Min || windowLog2 > BrotliWindowLog2Max {
		return fmt.Errorf("%w: window_log2 %d not in [%d, %d]",
			ErrBrotliParams, windowLog2, BrotliWindowLog2Min, BrotliWindowLog2Max)
	}
	return nil
}

// CompressTile encodes a tile raster to the given MIME type and Brotli
// compresses the encoded bytes. The output carries no framing of its own;
// Content-Encoding is carried externally.
func CompressTile(r *codec.Raster, mime string, quality, windowLog2 int) ([]byte, error) {
	if err := ValidateBrotliParams(quality, windowLog2); err != nil {
		return nil, err
	}

	encoded, err := codec.Encode(r, mime)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{
		Quality: quality,
		LGWin:   windowLog2,
	})
	if _, err := w.Write(encoded); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}

	return buf.Bytes(), nil
}

// DecompressBrotli is the inverse of the compression applied by
// CompressTile, yielding the encoded image bytes.
func DecompressBrotli(data []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("brotli decompress: %w", err)
	}
	return out, nil
}
