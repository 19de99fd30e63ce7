package webcam

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framepipe/processing/frame"
)

func TestImageBufferLayouts(t *testing.T) {
	tests := []struct {
		name   string
		img    image.Image
		layout frame.Layout
		planes int
	}{
		{"ycbcr 420", image.NewYCbCr(image.Rect(0, 0, 8, 4), image.YCbCrSubsampleRatio420), frame.LayoutI420, 3},
		{"ycbcr 422", image.NewYCbCr(image.Rect(0, 0, 8, 4), image.YCbCrSubsampleRatio422), frame.LayoutUnknown, 0},
		{"rgba", image.NewRGBA(image.Rect(0, 0, 8, 4)), frame.LayoutRGBA, 1},
		{"gray", image.NewGray(image.Rect(0, 0, 8, 4)), frame.LayoutUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newImageBuffer(tt.img, nil)
			assert.Equal(t, frame.Format{Layout: tt.layout, Width: 8, Height: 4}, b.Format())
			assert.Len(t, b.Planes(), tt.planes)
			b.Unref()
		})
	}
}

func TestImageBufferReleasesOnLastHold(t *testing.T) {
	released := 0
	b := newImageBuffer(image.NewRGBA(image.Rect(0, 0, 2, 2)), func() { released++ })

	b.Ref()
	b.Unref()
	assert.Zero(t, released)

	b.Unref()
	assert.Equal(t, 1, released)

	b.Unref()
	assert.Equal(t, 1, released, "over-release does not call release again")
}

func TestImageBufferConverts(t *testing.T) {
	img := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 128
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}

	h := frame.Acquire(newImageBuffer(img, nil), 1)
	defer h.Release()

	rgba, err := frame.ToRGBA(h)
	require.NoError(t, err)
	r, g, b, _ := rgba.At(1, 1).RGBA()
	assert.Equal(t, []uint32{128, 128, 128}, []uint32{r >> 8, g >> 8, b >> 8})
}
