package processing

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"framepipe/internal/models"
)

type fakeDetector struct {
	mu    sync.Mutex
	calls int
	// fail reports whether the n-th call (1-based) should fail.
	fail  func(n int) bool
	block chan struct{}
}

func (f *fakeDetector) Detect(ctx context.Context, img *image.RGBA) ([]models.Detection, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.fail != nil && f.fail(n) {
		return nil, errors.New("detector unavailable")
	}
	return []models.Detection{{Class: 2, Confidence: 0.9, Box: [4]float32{0, 0, 1, 1}}}, nil
}

func (f *fakeDetector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type shown struct {
	annotated bool
}

type recordingDisplay struct {
	mu     sync.Mutex
	frames []shown
	closed bool
	// fail makes the n-th Show (1-based) return an error; panicAt panics.
	fail    int
	panicAt int
	calls   int
}

var gray = color.RGBA{128, 128, 128, 255}

func (d *recordingDisplay) Show(img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if d.calls == d.panicAt {
		panic("display exploded")
	}
	if d.calls == d.fail {
		return errors.New("window gone")
	}

	rgba := img.(*image.RGBA)
	b := rgba.Bounds()
	d.frames = append(d.frames, shown{annotated: rgba.RGBAAt(b.Min.X, b.Max.Y-1) != gray})
	return nil
}

func (d *recordingDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *recordingDisplay) Shown() []shown {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]shown(nil), d.frames...)
}

func (d *recordingDisplay) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
