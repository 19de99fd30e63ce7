package ui

import (
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"framepipe/processing/display"
)

// canvasDisplay keeps the newest frame from the render loop and paints it
// onto the canvas at a fixed rate, so a fast source cannot flood the UI
// thread.
type canvasDisplay struct {
	canvas *canvas.Image

	mu     sync.Mutex
	latest image.Image
	closed bool

	stop chan struct{}
	done chan struct{}
}

func newCanvasDisplay(c *canvas.Image, fps uint) *canvasDisplay {
	if fps == 0 {
		fps = 30
	}
	d := &canvasDisplay{
		canvas: c,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.paintLoop(time.Second / time.Duration(fps))
	return d
}

func (d *canvasDisplay) Show(img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return display.ErrClosed
	}
	d.latest = img
	return nil
}

func (d *canvasDisplay) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	<-d.done
	return nil
}

func (d *canvasDisplay) take() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	img := d.latest
	d.latest = nil
	return img
}

func (d *canvasDisplay) paintLoop(every time.Duration) {
	defer close(d.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			img := d.take()
			if img == nil {
				continue
			}
			fyne.Do(func() {
				d.canvas.Image = img
				d.canvas.Refresh()
			})
		case <-d.stop:
			return
		}
	}
}
