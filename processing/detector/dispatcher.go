package processing

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"framepipe/internal/models"
	"framepipe/processing/render"
)

type Detector interface {
	Detect(ctx context.Context, img *image.RGBA) ([]models.Detection, error)
}

// Dispatcher sends every modulus-th frame to the detector. The call blocks the
// render loop for its duration, which limits inference to one request per
// modulus displayed frames.
type Dispatcher struct {
	det     Detector
	modulus uint64
	timeout time.Duration
	opts    render.Options

	// counter is only touched by the render loop.
	counter uint64

	dispatched atomic.Uint64
	failed     atomic.Uint64
}

func NewDispatcher(det Detector, modulus uint, timeout time.Duration, opts render.Options) *Dispatcher {
	if modulus == 0 {
		modulus = 1
	}
	return &Dispatcher{
		det:     det,
		modulus: uint64(modulus),
		timeout: timeout,
		opts:    opts,
	}
}

// Due advances the dispatch counter and reports whether this frame goes to
// the detector.
func (d *Dispatcher) Due() bool {
	d.counter++
	return d.counter%d.modulus == 0
}

// Annotate runs inference on img and returns a new frame with the overlays.
// Cancelling ctx does not abort the request; only the configured timeout does.
func (d *Dispatcher) Annotate(ctx context.Context, img *image.RGBA) (*image.RGBA, error) {
	d.dispatched.Add(1)

	ictx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ictx, d.timeout)
		defer cancel()
	}

	dets, err := d.det.Detect(ictx, img)
	if err != nil {
		d.failed.Add(1)
		return nil, fmt.Errorf("annotate: %w", err)
	}

	dets = render.Filter(dets, d.opts.OutputThreshold)
	return render.Boxes(img, dets, d.opts), nil
}

func (d *Dispatcher) Dispatched() uint64 { return d.dispatched.Load() }
func (d *Dispatcher) Failed() uint64     { return d.failed.Load() }
