package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"framepipe/internal/models"
)

var black = color.RGBA{0, 0, 0, 255}

func blackFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func TestBoxesDrawsEdges(t *testing.T) {
	img := blackFrame(100, 100)
	dets := []models.Detection{{Class: 2, Confidence: 0.9, Box: [4]float32{0.1, 0.1, 0.5, 0.5}}}

	out := Boxes(img, dets, DefaultOptions())

	assert.Equal(t, img.Bounds(), out.Bounds())
	assert.Equal(t, palette[2], out.RGBAAt(10, 40), "left edge")
	assert.Equal(t, palette[2], out.RGBAAt(13, 40), "left edge, inner thickness")
	assert.Equal(t, black, out.RGBAAt(14, 40))
	assert.Equal(t, palette[2], out.RGBAAt(40, 59), "bottom edge")
	assert.Equal(t, black, out.RGBAAt(30, 50), "interior")
	assert.Equal(t, black, img.RGBAAt(10, 40), "source untouched")
}

func TestBoxesRespectsThresholds(t *testing.T) {
	img := blackFrame(50, 50)
	dets := []models.Detection{
		{Class: 1, Confidence: 0.1, Box: [4]float32{0.2, 0.2, 0.6, 0.6}},
	}

	out := Boxes(img, dets, DefaultOptions())
	assert.Equal(t, img.Pix, out.Pix)

	opts := DefaultOptions()
	opts.RenderThreshold = 0.05
	out = Boxes(img, dets, opts)
	assert.Equal(t, palette[1], out.RGBAAt(10, 30))
}

func TestBoxesExpansion(t *testing.T) {
	img := blackFrame(100, 100)
	dets := []models.Detection{{Class: 3, Confidence: 0.8, Box: [4]float32{0.2, 0.2, 0.4, 0.4}}}

	opts := DefaultOptions()
	opts.Thickness = 1
	opts.Expansion = 5
	out := Boxes(img, dets, opts)

	assert.Equal(t, palette[3], out.RGBAAt(15, 50))
	assert.Equal(t, black, out.RGBAAt(20, 50))
}

func TestBoxesClampsToFrame(t *testing.T) {
	img := blackFrame(40, 40)
	dets := []models.Detection{{Class: 9, Confidence: 1, Box: [4]float32{0.5, 0.5, 1, 1}}}

	out := Boxes(img, dets, DefaultOptions())
	assert.Equal(t, fallbackColor, out.RGBAAt(39, 30))
}

func TestFilter(t *testing.T) {
	dets := []models.Detection{
		{Class: 1, Confidence: 0.001},
		{Class: 2, Confidence: 0.5},
		{Class: 3, Confidence: 0.005},
	}

	got := Filter(dets, 0.005)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Class)
	assert.Equal(t, 3, got[1].Class)
}
