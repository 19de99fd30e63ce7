// Package rtsp receives a live stream through a GStreamer pipeline ending in
// an appsink.
package rtsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"framepipe/processing/capture"
	"framepipe/processing/frame"
)

var initOnce sync.Once

type Streamer struct {
	cfg Config

	mu       sync.Mutex
	cb       capture.Callbacks
	pipeline *gst.Pipeline
	mainloop *glib.MainLoop
	loopDone chan struct{}
}

func New(cfg Config) *Streamer {
	return &Streamer{cfg: cfg}
}

func (s *Streamer) SetCallbacks(cb capture.Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func (s *Streamer) callbacks() capture.Callbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

// Connect builds the pipeline and prerolls it. Frames flow after
// StartStreaming.
func (s *Streamer) Connect(ctx context.Context) error {
	initOnce.Do(func() { gst.Init(nil) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	line := launchLine(s.cfg)
	pipeline, err := gst.NewPipelineFromString(line)
	if err != nil {
		return fmt.Errorf("rtsp: parse pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName(sinkName)
	if err != nil {
		return fmt.Errorf("rtsp: appsink: %w", err)
	}

	sink := app.SinkFromElement(elem)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
		EOSFunc: func(*app.Sink) {
			if cb := s.callbacks(); cb != nil {
				cb.OnStreamEnded()
			}
		},
	})

	elem.GetStaticPad("sink").AddProbe(gst.PadProbeTypeEventFlush, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		if ev := info.GetEvent(); ev != nil && ev.Type() == gst.EventTypeFlushStart {
			if cb := s.callbacks(); cb != nil {
				cb.OnFlushRequested()
			}
		}
		return gst.PadProbeOK
	})

	mainloop := glib.NewMainLoop(glib.MainContextDefault(), false)
	pipeline.GetPipelineBus().AddWatch(func(msg *gst.Message) bool {
		s.onMessage(pipeline, msg)
		return true
	})

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		return fmt.Errorf("rtsp: preroll: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		mainloop.Run()
	}()

	s.pipeline = pipeline
	s.mainloop = mainloop
	s.loopDone = done

	slog.Info("rtsp: pipeline ready", "launch", line)
	return nil
}

func (s *Streamer) onMessage(pipeline *gst.Pipeline, msg *gst.Message) {
	cb := s.callbacks()

	switch msg.Type() {
	case gst.MessageStateChanged:
		if msg.Source() != pipeline.GetName() {
			return
		}
		_, newState := msg.ParseStateChanged()
		if newState == gst.StatePlaying && cb != nil {
			cb.OnStreamStarted()
		}
	case gst.MessageError:
		gerr := msg.ParseError()
		slog.Error("rtsp: pipeline error",
			"error", gerr.Error(),
			"debug", gerr.DebugString(),
		)
		if cb != nil {
			cb.OnStreamEnded()
		}
	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		slog.Warn("rtsp: pipeline warning", "warning", gerr.Error())
	}
}

func (s *Streamer) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	cb := s.callbacks()
	if cb == nil {
		return gst.FlowOK
	}

	buf := newSampleBuffer(sample, s.cfg.format())
	if buf == nil {
		return gst.FlowOK
	}
	cb.OnFrameAvailable(buf)
	buf.Unref()
	return gst.FlowOK
}

func (s *Streamer) StartStreaming() error {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()

	if pipeline == nil {
		return errors.New("rtsp: not connected")
	}
	return pipeline.SetState(gst.StatePlaying)
}

// StopStreaming halts the pipeline. Returning to NULL waits for the streaming
// threads, so no sample callback runs once it returns.
func (s *Streamer) StopStreaming() error {
	s.mu.Lock()
	pipeline := s.pipeline
	cb := s.cb
	s.mu.Unlock()

	if pipeline == nil {
		return nil
	}
	err := pipeline.BlockSetState(gst.StateNull)
	if cb != nil {
		cb.OnFlushRequested()
	}
	return err
}

func (s *Streamer) Disconnect() error {
	s.mu.Lock()
	pipeline, mainloop, done := s.pipeline, s.mainloop, s.loopDone
	s.pipeline, s.mainloop, s.loopDone = nil, nil, nil
	s.mu.Unlock()

	if pipeline == nil {
		return nil
	}
	err := pipeline.BlockSetState(gst.StateNull)
	mainloop.Quit()
	<-done
	return err
}

// sampleBuffer keeps the GStreamer sample alive and mapped until the last
// hold is dropped.
type sampleBuffer struct {
	sample *gst.Sample
	buffer *gst.Buffer
	data   []byte
	format frame.Format
	refs   atomic.Int32
}

func newSampleBuffer(sample *gst.Sample, format frame.Format) *sampleBuffer {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil
	}
	sample.Ref()
	info := buffer.Map(gst.MapRead)

	b := &sampleBuffer{
		sample: sample,
		buffer: buffer,
		data:   info.AsUint8Slice(),
		format: format,
	}
	b.refs.Store(1)
	return b
}

func (b *sampleBuffer) Ref() {
	b.refs.Add(1)
}

func (b *sampleBuffer) Unref() {
	switch n := b.refs.Add(-1); {
	case n == 0:
		b.buffer.Unmap()
		b.sample.Unref()
	case n < 0:
		slog.Warn("rtsp: sample released more often than held", "refs", n)
	}
}

func (b *sampleBuffer) Format() frame.Format {
	return b.format
}

// Planes follows GStreamer's default video layout: rows padded to four bytes.
func (b *sampleBuffer) Planes() []frame.Plane {
	planes, err := frame.SplitPlanes(b.format.Layout, b.format.Width, b.format.Height, 4, b.data)
	if err != nil {
		return nil
	}
	return planes
}
