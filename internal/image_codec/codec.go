package image_codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrNotImage = errors.New("data is not a supported image")

// Codec turns raw image bytes into bitmaps and back. Bitmaps are plain
// image.Image values; callers treat them as read-only snapshots.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	// Downsample decodes data and shrinks it to fit inside width x height,
	// keeping the aspect ratio. Images already inside the box are returned
	// at native resolution.
	Downsample(data []byte, width, height int) (image.Image, error)
	Encode(img image.Image) ([]byte, error)
}

// Std is the pure-Go codec.
type Std struct {
	// Interpolator used when shrinking. Defaults to draw.BiLinear.
	Interpolator draw.Interpolator
}

func NewStd() *Std {
	return &Std{Interpolator: draw.BiLinear}
}

func (c *Std) Decode(data []byte) (image.Image, error) {
	if !filetype.IsImage(data) {
		return nil, ErrNotImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		kind, _ := filetype.Match(data)
		return nil, fmt.Errorf("failed to decode %s image: %w", kind.Extension, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decoded %s image is empty", format)
	}

	return img, nil
}

func (c *Std) Downsample(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	img, err := c.Decode(data)
	if err != nil {
		return nil, err
	}

	return c.Scale(img, width, height), nil
}

// Scale shrinks img to fit inside width x height. It never upscales.
func (c *Std) Scale(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	w, h, ok := FitSize(bounds.Dx(), bounds.Dy(), width, height)
	if !ok {
		return img
	}

	interpolator := c.Interpolator
	if interpolator == nil {
		interpolator = draw.BiLinear
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	interpolator.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
	return scaled
}

func (c *Std) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FitSize returns the dimensions of a srcW x srcH image scaled to fit inside
// maxW x maxH. ok is false when no shrinking is needed.
func FitSize(srcW, srcH, maxW, maxH int) (w, h int, ok bool) {
	if srcW <= maxW && srcH <= maxH {
		return srcW, srcH, false
	}

	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	w = max(1, int(math.Round(float64(srcW)*scale)))
	h = max(1, int(math.Round(float64(srcH)*scale)))
	return w, h, true
}
