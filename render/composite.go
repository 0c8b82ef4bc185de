package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"net/http"

	_ "image/jpeg"
)

// maxAspect caps the width-to-height ratio of the composite canvas;
// the canvas height grows when the panel strip would exceed it.
const maxAspect = 2.5

// Composite fetches the panel images and concatenates them
// left-to-right into a single PNG.
func (r *Renderer) Composite(ctx context.Context, urls []string) ([]byte, error) {
	images := make([]image.Image, 0, len(urls))
	for _, u := range urls {
		img, err := r.fetchImage(ctx, u)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	combined := appendImages(images, r.background)

	var buf bytes.Buffer
	if err := png.Encode(&buf, combined); err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) fetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch panel image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch panel image: status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode panel image: %w", err)
	}
	return img, nil
}

// appendImages concatenates the images horizontally on a filled canvas,
// each source vertically centered.
func appendImages(images []image.Image, bg color.RGBA) *image.RGBA {
	width, height := 0, 0
	for _, img := range images {
		size := img.Bounds().Size()
		width += size.X
		if size.Y > height {
			height = size.Y
		}
	}
	if height > 0 && float64(width)/float64(height) > maxAspect {
		height = int(math.Ceil(float64(width) / maxAspect))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	offset := 0
	for _, img := range images {
		size := img.Bounds().Size()
		y := (height - size.Y) / 2
		target := image.Rect(offset, y, offset+size.X, y+size.Y)
		draw.Draw(canvas, target, img, img.Bounds().Min, draw.Over)
		offset += size.X
	}
	return canvas
}
