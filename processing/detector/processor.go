package processing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"framepipe/processing/frame"
	"framepipe/processing/queue"
)

// Display is the surface frames end up on. Show and Close are only called
// from the render loop's goroutine.
type Display interface {
	Show(img image.Image) error
	Close() error
}

type Stats struct {
	FPS       uint
	Latency   time.Duration
	Processed uint64
	Displayed uint64

	Dispatched        uint64
	InferenceFailures uint64
	FrameFailures     uint64
}

// Processor is the render loop: it drains the queue, converts each frame,
// hands every K-th one to the dispatcher and shows the result.
type Processor struct {
	queue      *queue.FrameQueue
	dispatcher *Dispatcher
	display    Display
	popTimeout time.Duration

	mu    sync.RWMutex
	stats Stats
}

func NewProcessor(q *queue.FrameQueue, dispatcher *Dispatcher, display Display, popTimeout time.Duration) *Processor {
	return &Processor{
		queue:      q,
		dispatcher: dispatcher,
		display:    display,
		popTimeout: popTimeout,
	}
}

// Run loops until ctx is cancelled. A frame in flight when ctx is cancelled
// is finished and released first. Run only returns an error for fatal
// conditions (an unsupported pixel layout); every other per-frame failure is
// logged and the loop carries on.
func (p *Processor) Run(ctx context.Context) error {
	// Window toolkits want every call on one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		if err := p.display.Close(); err != nil {
			slog.Warn("processor: closing display", "error", err)
		}
	}()

	var frameCount uint
	lastFpsUpdate := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		h, ok := p.queue.TryPop(ctx, p.popTimeout)
		if !ok {
			continue
		}

		if err := p.process(ctx, h); err != nil {
			return err
		}

		frameCount++
		if time.Since(lastFpsUpdate) >= time.Second {
			p.mu.Lock()
			p.stats.FPS = frameCount
			p.mu.Unlock()
			frameCount = 0
			lastFpsUpdate = time.Now()
		}
	}
}

func (p *Processor) process(ctx context.Context, h *frame.Handle) (fatal error) {
	start := time.Now()
	defer h.Release()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("processor: frame handling panicked",
				"seq", h.Seq,
				"trace_id", h.TraceID,
				"panic", r,
			)
			p.frameFailed()
			fatal = nil
		}
	}()

	p.mu.Lock()
	p.stats.Processed++
	p.mu.Unlock()

	img, err := frame.ToRGBA(h)
	if err != nil {
		if errors.Is(err, frame.ErrUnsupportedLayout) {
			return fmt.Errorf("processor: frame %d: %w", h.Seq, err)
		}
		slog.Warn("processor: conversion failed",
			"seq", h.Seq,
			"trace_id", h.TraceID,
			"format", h.Format().String(),
			"error", err,
		)
		p.frameFailed()
		return nil
	}

	var out image.Image = img
	if p.dispatcher.Due() {
		annotated, derr := p.dispatcher.Annotate(ctx, img)
		if derr != nil {
			slog.Warn("processor: showing frame without overlay",
				"seq", h.Seq,
				"trace_id", h.TraceID,
				"error", derr,
			)
		} else {
			out = annotated
		}
	}

	if err := p.display.Show(out); err != nil {
		slog.Warn("processor: display failed",
			"seq", h.Seq,
			"trace_id", h.TraceID,
			"error", err,
		)
		p.frameFailed()
		return nil
	}

	p.mu.Lock()
	p.stats.Displayed++
	p.stats.Latency = time.Since(start)
	p.mu.Unlock()
	return nil
}

func (p *Processor) frameFailed() {
	p.mu.Lock()
	p.stats.FrameFailures++
	p.mu.Unlock()
}

func (p *Processor) Stats() Stats {
	p.mu.RLock()
	s := p.stats
	p.mu.RUnlock()

	s.Dispatched = p.dispatcher.Dispatched()
	s.InferenceFailures = p.dispatcher.Failed()
	return s
}
