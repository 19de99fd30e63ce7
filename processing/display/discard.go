// Package display holds render loop surfaces that need no window system.
package display

import (
	"errors"
	"image"
	"log/slog"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("display: closed")

// Discard drops every frame and logs a throughput line at a fixed interval.
// It backs the headless mode.
type Discard struct {
	every time.Duration

	frames atomic.Uint64
	closed atomic.Bool
	last   time.Time
	mark   uint64
}

func NewDiscard(every time.Duration) *Discard {
	return &Discard{every: every, last: time.Now()}
}

func (d *Discard) Show(img image.Image) error {
	if d.closed.Load() {
		return ErrClosed
	}
	n := d.frames.Add(1)

	if d.every > 0 && time.Since(d.last) >= d.every {
		fps := float64(n-d.mark) / time.Since(d.last).Seconds()
		slog.Info("display: headless",
			"frames", n,
			"fps", fps,
			"size", img.Bounds().Size().String(),
		)
		d.last = time.Now()
		d.mark = n
	}
	return nil
}

func (d *Discard) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *Discard) Frames() uint64 {
	return d.frames.Load()
}
