package frame

import (
	"errors"
	"fmt"
	"strings"
)

var ErrShortPlane = errors.New("frame: plane data too short")

type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutI420
	LayoutNV12
	LayoutRGBA
)

func (l Layout) String() string {
	switch l {
	case LayoutI420:
		return "I420"
	case LayoutNV12:
		return "NV12"
	case LayoutRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// ParseLayout accepts GStreamer format names and the ffmpeg pix_fmt aliases.
func ParseLayout(s string) Layout {
	switch strings.ToUpper(s) {
	case "I420", "YUV420P":
		return LayoutI420
	case "NV12":
		return LayoutNV12
	case "RGBA":
		return LayoutRGBA
	default:
		return LayoutUnknown
	}
}

// FFmpegPixFmt is the rawvideo pix_fmt that produces l.
func (l Layout) FFmpegPixFmt() string {
	switch l {
	case LayoutI420:
		return "yuv420p"
	case LayoutNV12:
		return "nv12"
	case LayoutRGBA:
		return "rgba"
	default:
		return ""
	}
}

type Format struct {
	Layout Layout
	Width  int
	Height int
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dx%d", f.Layout, f.Width, f.Height)
}

type Plane struct {
	Data   []byte
	Stride int
}

// Buffer is a decoded frame owned by a transport. Ref and Unref implement the
// transport's hold protocol: storage is not reused while any hold remains.
type Buffer interface {
	Ref()
	Unref()
	Format() Format
	Planes() []Plane
}

// SplitPlanes slices a contiguous frame into its planes. Rows are padded to a
// multiple of align bytes; GStreamer's default video layout uses 4 (and rounds
// the luma height up to even), tightly packed ffmpeg rawvideo uses 1.
func SplitPlanes(layout Layout, width, height, align int, data []byte) ([]Plane, error) {
	if align < 1 {
		align = 1
	}
	chromaW := (width + 1) / 2
	chromaH := (height + 1) / 2
	lumaRows := height
	if align > 1 {
		lumaRows = roundUp(height, 2)
	}

	var planes []Plane
	var need int

	switch layout {
	case LayoutI420:
		ys := roundUp(width, align)
		cs := roundUp(chromaW, align)
		off1 := ys * lumaRows
		off2 := off1 + cs*chromaH
		need = off2 + cs*chromaH
		if len(data) < need {
			break
		}
		planes = []Plane{
			{Data: data[:off1], Stride: ys},
			{Data: data[off1:off2], Stride: cs},
			{Data: data[off2:need], Stride: cs},
		}
	case LayoutNV12:
		ys := roundUp(width, align)
		cs := roundUp(2*chromaW, align)
		off1 := ys * lumaRows
		need = off1 + cs*chromaH
		if len(data) < need {
			break
		}
		planes = []Plane{
			{Data: data[:off1], Stride: ys},
			{Data: data[off1:need], Stride: cs},
		}
	case LayoutRGBA:
		need = width * 4 * height
		if len(data) < need {
			break
		}
		planes = []Plane{{Data: data[:need], Stride: width * 4}}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLayout, layout)
	}

	if planes == nil {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrShortPlane, layout, width, height, need, len(data))
	}
	return planes, nil
}

// FrameSize is the byte size of one tightly packed frame.
func FrameSize(layout Layout, width, height int) int {
	chroma := ((width + 1) / 2) * ((height + 1) / 2)
	switch layout {
	case LayoutI420, LayoutNV12:
		return width*height + 2*chroma
	case LayoutRGBA:
		return width * height * 4
	default:
		return 0
	}
}

func roundUp(v, to int) int {
	return (v + to - 1) / to * to
}
