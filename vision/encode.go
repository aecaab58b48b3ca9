package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
)

// Encoding limits for screenshots sent to the model.
const (
	MaxWidth    = 1280
	MaxHeight   = 720
	JPEGQuality = 60
)

// Frame is an encoded screenshot.
type Frame struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
	Resized   bool
}

// Encode decodes an image, scales it to fit within MaxWidth x MaxHeight
// preserving its aspect ratio, and re-encodes it as JPEG.
func Encode(data []byte) (Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), MaxWidth, MaxHeight)
	resized := width != bounds.Dx() || height != bounds.Dy()

	var out image.Image = img
	if resized {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Frame{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Frame{
		Data:      buf.Bytes(),
		MediaType: "image/jpeg",
		Width:     width,
		Height:    height,
		Resized:   resized,
	}, nil
}

// fitWithin returns the largest size with the aspect ratio of w x h that
// fits inside maxW x maxH. Images already inside the box are unchanged.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	return nw, nh
}
