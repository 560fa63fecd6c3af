// Package preview rasterises SVG icons into small PNG thumbnails.
package preview

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// supersample is the factor the icon is drawn at before downscaling
const supersample = 4

// Renderer renders SVG documents to square PNG previews
type Renderer struct {
	Size int
}

// New creates a renderer producing size x size previews
func New(size int) *Renderer {
	return &Renderer{Size: size}
}

// Render draws src at supersample times the preview size and downscales it
// with Lanczos resampling
func (r *Renderer) Render(src []byte) (image.Image, error) {
	if r.Size <= 0 {
		return nil, fmt.Errorf("invalid preview size %d", r.Size)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(src), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}

	big := r.Size * supersample
	icon.SetTarget(0, 0, float64(big), float64(big))

	canvas := image.NewRGBA(image.Rect(0, 0, big, big))
	scanner := rasterx.NewScannerGV(big, big, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(big, big, scanner), 1)

	return imaging.Fit(canvas, r.Size, r.Size, imaging.Lanczos), nil
}

// RenderPNG renders src and encodes the preview as PNG
func (r *Renderer) RenderPNG(src []byte) ([]byte, error) {
	img, err := r.Render(src)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI renders src as a base64 PNG data URI suitable for an <img> src
func (r *Renderer) DataURI(src []byte) (string, error) {
	data, err := r.RenderPNG(src)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
