// Package render draws detection overlays onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"framepipe/internal/models"
)

type Options struct {
	Labels models.LabelMap

	// Detections below RenderThreshold are kept but not drawn.
	RenderThreshold float32
	// Detections below OutputThreshold are discarded by Filter.
	OutputThreshold float32

	Thickness int
	// Expansion grows every box by this many pixels on each side.
	Expansion int
}

func DefaultOptions() Options {
	return Options{
		Labels:          models.DefaultLabels(),
		RenderThreshold: 0.2,
		OutputThreshold: 0.005,
		Thickness:       4,
		Expansion:       0,
	}
}

var palette = map[int]color.RGBA{
	1: {0, 255, 0, 255},
	2: {255, 64, 64, 255},
	3: {64, 160, 255, 255},
}

var fallbackColor = color.RGBA{255, 255, 0, 255}

// Filter drops detections under min, keeping order.
func Filter(dets []models.Detection, min float32) []models.Detection {
	out := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}

// Boxes returns a copy of img with labelled boxes for every detection at or
// above both thresholds. img is not modified.
func Boxes(img *image.RGBA, dets []models.Detection, opts Options) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)

	thickness := opts.Thickness
	if thickness < 1 {
		thickness = 1
	}
	min := max(opts.RenderThreshold, opts.OutputThreshold)

	for _, d := range dets {
		if d.Confidence < min {
			continue
		}
		col, ok := palette[d.Class]
		if !ok {
			col = fallbackColor
		}

		r := boxRect(out.Bounds(), d.Box, opts.Expansion)
		if r.Empty() {
			continue
		}
		drawRect(out, r, thickness, col)
		drawLabel(out, r, fmt.Sprintf("%s %.0f%%", opts.Labels.Name(d.Class), d.Confidence*100), col)
	}
	return out
}

func boxRect(bounds image.Rectangle, box [4]float32, expansion int) image.Rectangle {
	w := float32(bounds.Dx())
	h := float32(bounds.Dy())

	x1 := bounds.Min.X + int(box[0]*w) - expansion
	y1 := bounds.Min.Y + int(box[1]*h) - expansion
	x2 := bounds.Min.X + int((box[0]+box[2])*w) + expansion
	y2 := bounds.Min.Y + int((box[1]+box[3])*h) + expansion

	return image.Rect(x1, y1, x2, y2).Intersect(bounds)
}

func drawRect(img *image.RGBA, r image.Rectangle, thickness int, col color.RGBA) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.SetRGBA(x, y, col)
		}
	}

	x1, y1, x2, y2 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			setPixel(x, y1+t)
			setPixel(x, y2-t)
		}
		for y := y1; y <= y2; y++ {
			setPixel(x1+t, y)
			setPixel(x2-t, y)
		}
	}
}

// drawLabel puts text on a filled tab above the box, or inside its top edge
// when there is no room above.
func drawLabel(img *image.RGBA, box image.Rectangle, text string, col color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := box.Min.Y - height
	if top < img.Bounds().Min.Y {
		top = box.Min.Y
	}
	tab := image.Rect(box.Min.X, top, box.Min.X+width, top+height).Intersect(img.Bounds())
	draw.Draw(img, tab, image.NewUniform(col), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(tab.Min.X+2, tab.Min.Y+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}
