package pipeline

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"sync/atomic"

	"framepipe/internal/models"
	"framepipe/processing/capture"
	"framepipe/processing/frame"
	"framepipe/processing/frame/frametest"
)

// fakeTransport delivers frames from its own goroutine and requests a flush
// every so often, the way a live source does on a discontinuity.
type fakeTransport struct {
	layout    frame.Layout
	frames    int
	flushOdds float64
	connErr   error
	startErr  error

	mu      sync.Mutex
	cb      capture.Callbacks
	bufs    []*frametest.Buffer
	stop    chan struct{}
	done    chan struct{}
	flushes atomic.Int32
	calls   []string
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) Connect(context.Context) error {
	f.record("connect")
	return f.connErr
}

func (f *fakeTransport) Disconnect() error {
	f.record("disconnect")
	return nil
}

func (f *fakeTransport) SetCallbacks(cb capture.Callbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	f.record("callbacks")
}

func (f *fakeTransport) StartStreaming() error {
	f.record("start")
	if f.startErr != nil {
		return f.startErr
	}
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.deliver()
	return nil
}

func (f *fakeTransport) deliver() {
	defer close(f.done)
	rng := rand.New(rand.NewSource(1))

	f.cb.OnStreamStarted()
	for i := 0; i < f.frames; i++ {
		select {
		case <-f.stop:
			return
		default:
		}

		buf := frametest.NewGray(f.layout, 8, 8)
		f.mu.Lock()
		f.bufs = append(f.bufs, buf)
		f.mu.Unlock()

		f.cb.OnFrameAvailable(buf)
		if rng.Float64() < f.flushOdds {
			f.cb.OnFlushRequested()
			f.flushes.Add(1)
		}
	}
	f.cb.OnStreamEnded()
}

func (f *fakeTransport) StopStreaming() error {
	f.record("stop")
	if f.stop == nil {
		return nil
	}
	close(f.stop)
	<-f.done
	f.cb.OnFlushRequested()
	return nil
}

// deliverLate calls back after the transport was stopped.
func (f *fakeTransport) deliverLate() *frametest.Buffer {
	buf := frametest.NewGray(f.layout, 8, 8)
	f.cb.OnFrameAvailable(buf)
	return buf
}

func (f *fakeTransport) Buffers() []*frametest.Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*frametest.Buffer(nil), f.bufs...)
}

type stubDetector struct {
	calls atomic.Int32
}

func (d *stubDetector) Detect(ctx context.Context, _ *image.RGBA) ([]models.Detection, error) {
	d.calls.Add(1)
	return []models.Detection{{Class: 1, Confidence: 0.9, Box: [4]float32{0.25, 0.25, 0.5, 0.5}}}, ctx.Err()
}

type countingDisplay struct {
	shown  atomic.Int32
	closed atomic.Bool
}

func (d *countingDisplay) Show(image.Image) error {
	if d.closed.Load() {
		return errors.New("display closed")
	}
	d.shown.Add(1)
	return nil
}

func (d *countingDisplay) Close() error {
	d.closed.Store(true)
	return nil
}
