// Package frametest provides an in-memory frame.Buffer that records its hold
// accounting, for use in tests.
package frametest

import (
	"sync/atomic"

	"framepipe/processing/frame"
)

type Buffer struct {
	format frame.Format
	planes []frame.Plane

	refs   atomic.Int64
	unrefs atomic.Int64
}

// NewGray returns a mid-gray frame (Y=Cb=Cr=128, or RGB 128) of the given
// layout. Unknown layouts get a single empty plane.
func NewGray(layout frame.Layout, width, height int) *Buffer {
	data := make([]byte, frame.FrameSize(layout, width, height))
	for i := range data {
		data[i] = 128
	}
	if layout == frame.LayoutRGBA {
		for i := 3; i < len(data); i += 4 {
			data[i] = 0xff
		}
	}

	planes, err := frame.SplitPlanes(layout, width, height, 1, data)
	if err != nil {
		planes = []frame.Plane{{}}
	}
	return &Buffer{
		format: frame.Format{Layout: layout, Width: width, Height: height},
		planes: planes,
	}
}

// New wraps explicit planes.
func New(f frame.Format, planes ...frame.Plane) *Buffer {
	return &Buffer{format: f, planes: planes}
}

func (b *Buffer) Ref()   { b.refs.Add(1) }
func (b *Buffer) Unref() { b.unrefs.Add(1) }

func (b *Buffer) Format() frame.Format  { return b.format }
func (b *Buffer) Planes() []frame.Plane { return b.planes }

func (b *Buffer) Refs() int64   { return b.refs.Load() }
func (b *Buffer) Unrefs() int64 { return b.unrefs.Load() }

// Held reports outstanding holds.
func (b *Buffer) Held() int64 { return b.refs.Load() - b.unrefs.Load() }
