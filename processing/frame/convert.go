package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ErrUnsupportedLayout is a configuration error: the transport produces a
// pixel layout this build cannot convert.
var ErrUnsupportedLayout = errors.New("frame: unsupported pixel layout")

type convertFunc func(f Format, planes []Plane) (*image.RGBA, error)

var converters = map[Layout]convertFunc{
	LayoutI420: convertI420,
	LayoutNV12: convertNV12,
	LayoutRGBA: copyRGBA,
}

// ToRGBA converts the frame held by h into a new display-ready image.
func ToRGBA(h *Handle) (*image.RGBA, error) {
	f := h.Format()
	conv, ok := converters[f.Layout]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLayout, f.Layout)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("frame: invalid dimensions %dx%d", f.Width, f.Height)
	}

	planes, err := h.Planes()
	if err != nil {
		return nil, err
	}
	return conv(f, planes)
}

func convertI420(f Format, planes []Plane) (*image.RGBA, error) {
	if len(planes) != 3 {
		return nil, fmt.Errorf("frame: I420 needs 3 planes, got %d", len(planes))
	}
	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	if err := checkPlane(planes[0], f.Width, f.Height); err != nil {
		return nil, err
	}
	if planes[1].Stride != planes[2].Stride {
		return nil, fmt.Errorf("frame: I420 chroma strides differ (%d, %d)", planes[1].Stride, planes[2].Stride)
	}
	for _, p := range planes[1:] {
		if err := checkPlane(p, cw, ch); err != nil {
			return nil, err
		}
	}

	src := &image.YCbCr{
		Y:              planes[0].Data,
		Cb:             planes[1].Data,
		Cr:             planes[2].Data,
		YStride:        planes[0].Stride,
		CStride:        planes[1].Stride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}
	dst := image.NewRGBA(src.Rect)
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
	return dst, nil
}

func convertNV12(f Format, planes []Plane) (*image.RGBA, error) {
	if len(planes) != 2 {
		return nil, fmt.Errorf("frame: NV12 needs 2 planes, got %d", len(planes))
	}
	yp, uv := planes[0], planes[1]
	if err := checkPlane(yp, f.Width, f.Height); err != nil {
		return nil, err
	}
	if err := checkPlane(uv, 2*((f.Width+1)/2), (f.Height+1)/2); err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		yRow := yp.Data[y*yp.Stride:]
		uvRow := uv.Data[(y/2)*uv.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < f.Width; x++ {
			c := (x / 2) * 2
			r, g, b := color.YCbCrToRGB(yRow[x], uvRow[c], uvRow[c+1])
			i := x * 4
			out[i] = r
			out[i+1] = g
			out[i+2] = b
			out[i+3] = 0xff
		}
	}
	return dst, nil
}

func copyRGBA(f Format, planes []Plane) (*image.RGBA, error) {
	if len(planes) != 1 {
		return nil, fmt.Errorf("frame: RGBA needs 1 plane, got %d", len(planes))
	}
	p := planes[0]
	if err := checkPlane(p, f.Width*4, f.Height); err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	row := f.Width * 4
	for y := 0; y < f.Height; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], p.Data[y*p.Stride:y*p.Stride+row])
	}
	return dst, nil
}

func checkPlane(p Plane, rowBytes, rows int) error {
	if p.Stride < rowBytes {
		return fmt.Errorf("%w: stride %d below row size %d", ErrShortPlane, p.Stride, rowBytes)
	}
	if need := (rows-1)*p.Stride + rowBytes; len(p.Data) < need {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrShortPlane, need, len(p.Data))
	}
	return nil
}
