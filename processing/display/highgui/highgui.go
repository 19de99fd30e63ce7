// Package highgui shows frames in an OpenCV window.
package highgui

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"framepipe/processing/display"
)

// Window must be used from a single OS thread; the render loop locks its
// goroutine to one before the first Show.
type Window struct {
	name   string
	window *gocv.Window
}

func New(name string) *Window {
	return &Window{name: name}
}

func (w *Window) Show(img image.Image) error {
	if w.window == nil {
		w.window = gocv.NewWindow(w.name)
	} else if !w.window.IsOpen() {
		return display.ErrClosed
	}

	mat, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return fmt.Errorf("highgui: convert frame: %w", err)
	}
	defer mat.Close()

	w.window.IMShow(mat)
	w.window.WaitKey(1)
	return nil
}

func (w *Window) Close() error {
	if w.window == nil {
		return nil
	}
	err := w.window.Close()
	w.window = nil
	return err
}
