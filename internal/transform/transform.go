// Package transform turns a downloaded source image into the JPEG that is
// uploaded: bounded pixel area, opaque RGB, fixed quality, and the source's
// creation time stamped as the EXIF capture time.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/disintegration/imaging"
)

// Defaults used when a Transformer field is zero.
const (
	DefaultMaxPixels = 16_777_216 // 4096 x 4096
	DefaultQuality   = 85
)

// ErrDecode is returned when the input is not a decodable image.
var ErrDecode = errors.New("transform: cannot decode image")

// Transformer holds the output parameters. The zero value uses the defaults.
type Transformer struct {
	MaxPixels int
	Quality   int
	Logger    *slog.Logger
}

// Result is a transformed image plus what happened to it.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
	Resized      bool
	ExifWritten  bool
}

// Transform decodes raw, downscales it when its area exceeds MaxPixels,
// flattens it to opaque RGB and encodes it as JPEG. When createdAt is
// non-zero it is written as DateTimeOriginal into the image's EXIF block,
// merged with any EXIF the input already carried. A malformed input EXIF
// block is ignored and a fresh one is written.
//
// Output is deterministic for identical input, parameters, and createdAt.
// EXIF problems are logged and yield a JPEG without the stamp; only a decode
// or encode failure is returned as an error.
func (t *Transformer) Transform(raw []byte, createdAt time.Time) (*Result, error) {
	logger := t.logger()

	src, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	bounds := src.Bounds()
	res := &Result{SourceWidth: bounds.Dx(), SourceHeight: bounds.Dy()}

	w, h, resize := fitArea(res.SourceWidth, res.SourceHeight, t.maxPixels())

	var img *image.NRGBA
	if resize {
		img = imaging.Resize(src, w, h, imaging.Lanczos)
		res.Resized = true

		logger.Debug("resized image",
			slog.Int("from_width", res.SourceWidth),
			slog.Int("from_height", res.SourceHeight),
			slog.Int("to_width", w),
			slog.Int("to_height", h),
		)
	} else {
		img = imaging.Clone(src)
	}

	dropAlpha(img)

	b := img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.quality())); err != nil {
		return nil, fmt.Errorf("transform: encoding jpeg: %w", err)
	}

	res.Data = buf.Bytes()

	if createdAt.IsZero() {
		return res, nil
	}

	stamped, err := stampCaptureTime(res.Data, raw, createdAt, res.Resized, res.Width, res.Height)
	if err != nil {
		logger.Warn("could not write capture time, uploading without it",
			slog.String("error", err.Error()),
		)

		return res, nil
	}

	res.Data = stamped
	res.ExifWritten = true

	return res, nil
}

// fitArea returns the output size for a w x h image under a pixel budget.
// The aspect ratio is kept and both sides are floored, so the result never
// exceeds max.
func fitArea(w, h, maxPixels int) (int, int, bool) {
	if w <= 0 || h <= 0 || w*h <= maxPixels {
		return w, h, false
	}

	aspect := float64(w) / float64(h)
	newH := int(math.Floor(math.Sqrt(float64(maxPixels) / aspect)))
	newW := int(math.Floor(aspect * float64(newH)))

	return max(newW, 1), max(newH, 1), true
}

// dropAlpha makes every pixel opaque without compositing, matching a plain
// RGBA to RGB channel drop.
func dropAlpha(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
}

func (t *Transformer) maxPixels() int {
	if t.MaxPixels > 0 {
		return t.MaxPixels
	}

	return DefaultMaxPixels
}

func (t *Transformer) quality() int {
	if t.Quality > 0 && t.Quality <= 100 {
		return t.Quality
	}

	return DefaultQuality
}

func (t *Transformer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}

	return slog.Default()
}
