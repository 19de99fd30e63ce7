package pipeline

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"framepipe/processing/frame"
	"framepipe/processing/queue"
)

// Producer turns transport callbacks into queued frame handles. Every method
// returns without waiting on the render loop.
type Producer struct {
	queue     *queue.FrameQueue
	state     *streamState
	flushWarn time.Duration

	seq    atomic.Uint64
	closed atomic.Bool
	late   atomic.Uint64
	// warn throttles complaints from a transport that keeps calling after
	// stop.
	warn *rate.Limiter
}

func newProducer(q *queue.FrameQueue, state *streamState, flushWarn time.Duration) *Producer {
	return &Producer{
		queue:     q,
		state:     state,
		flushWarn: flushWarn,
		warn:      rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// afterStop reports whether the producer is closed, logging the offending
// callback at most once a second.
func (p *Producer) afterStop(callback string) bool {
	if !p.closed.Load() {
		return false
	}
	p.late.Add(1)
	if p.warn.Allow() {
		slog.Warn("producer: callback after stop, ignoring", "callback", callback)
	}
	return true
}

func (p *Producer) OnFrameAvailable(buf frame.Buffer) {
	if p.afterStop("frame_available") {
		return
	}

	h := frame.Acquire(buf, p.seq.Add(1))
	p.queue.Push(h)
}

func (p *Producer) OnStreamStarted() {
	if p.afterStop("stream_started") {
		return
	}
	if p.state.CompareAndSwap(StateConnecting, StateStreaming) {
		slog.Info("producer: stream started")
	}
}

func (p *Producer) OnStreamEnded() {
	if p.afterStop("stream_ended") {
		return
	}
	if p.state.CompareAndSwap(StateStreaming, StateConnecting) {
		slog.Info("producer: stream ended")
	}
}

// OnFlushRequested drains the queue before acknowledging, so the transport
// may reuse every buffer it delivered so far.
func (p *Producer) OnFlushRequested() bool {
	if p.afterStop("flush_requested") {
		// The queue was closed and drained with the producer.
		return true
	}
	start := time.Now()
	n := p.queue.Flush()

	if took := time.Since(start); p.flushWarn > 0 && took > p.flushWarn {
		slog.Warn("producer: slow flush", "frames", n, "took", took)
	} else if n > 0 {
		slog.Debug("producer: flushed", "frames", n)
	}
	return true
}

// Delivered is the number of frames accepted so far.
func (p *Producer) Delivered() uint64 {
	return p.seq.Load()
}

// Late counts callbacks that arrived after stop.
func (p *Producer) Late() uint64 {
	return p.late.Load()
}

func (p *Producer) close() {
	p.closed.Store(true)
}
