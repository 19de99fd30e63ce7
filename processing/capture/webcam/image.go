package webcam

import (
	"image"
	"log/slog"
	"sync/atomic"

	"framepipe/processing/frame"
)

// imageBuffer wraps a frame read from a mediadevices track. The reader reuses
// the pixels once release is called.
type imageBuffer struct {
	img     image.Image
	release func()
	format  frame.Format
	planes  []frame.Plane
	refs    atomic.Int32
}

func newImageBuffer(img image.Image, release func()) *imageBuffer {
	b := &imageBuffer{img: img, release: release}
	size := img.Bounds().Size()
	b.format = frame.Format{Width: size.X, Height: size.Y}

	switch m := img.(type) {
	case *image.YCbCr:
		if m.SubsampleRatio == image.YCbCrSubsampleRatio420 {
			b.format.Layout = frame.LayoutI420
			b.planes = []frame.Plane{
				{Data: m.Y, Stride: m.YStride},
				{Data: m.Cb, Stride: m.CStride},
				{Data: m.Cr, Stride: m.CStride},
			}
		}
	case *image.RGBA:
		b.format.Layout = frame.LayoutRGBA
		b.planes = []frame.Plane{{Data: m.Pix, Stride: m.Stride}}
	}

	b.refs.Store(1)
	return b
}

func (b *imageBuffer) Ref() {
	b.refs.Add(1)
}

func (b *imageBuffer) Unref() {
	switch n := b.refs.Add(-1); {
	case n == 0:
		if b.release != nil {
			b.release()
		}
	case n < 0:
		slog.Warn("webcam: frame released more often than held", "refs", n)
	}
}

func (b *imageBuffer) Format() frame.Format {
	return b.format
}

func (b *imageBuffer) Planes() []frame.Plane {
	return b.planes
}
