// Package pipeline wires a capture transport, the frame queue and the render
// loop together and owns their start and stop order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"framepipe/internal/config"
	"framepipe/processing/capture"
	processing "framepipe/processing/detector"
	"framepipe/processing/queue"
	"framepipe/processing/render"
)

var ErrNotIdle = errors.New("pipeline: controller already started")

// Controller runs one pipeline session. It cannot be restarted once stopped;
// build a new one instead.
type Controller struct {
	transport capture.Transport
	queue     *queue.FrameQueue
	producer  *Producer
	processor *processing.Processor

	phase atomic.Int32
	state streamState

	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
	err    error

	// lifeMu keeps Stop from running while Start is half done.
	lifeMu   sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

// New builds a controller from a configuration snapshot. The caller keeps
// ownership of det; display is closed by the render loop when it exits.
func New(cfg *config.Config, transport capture.Transport, det processing.Detector, display processing.Display) *Controller {
	q := queue.New()
	c := &Controller{
		transport: transport,
		queue:     q,
		done:      make(chan struct{}),
	}
	c.producer = newProducer(q, &c.state, cfg.FlushWarn())

	opts := render.Options{
		Labels:          cfg.Overlay.Labels,
		RenderThreshold: cfg.Overlay.RenderThreshold,
		OutputThreshold: cfg.Overlay.OutputThreshold,
		Thickness:       cfg.Overlay.Thickness,
		Expansion:       cfg.Overlay.Expansion,
	}
	dispatcher := processing.NewDispatcher(det, cfg.DispatchModulus, cfg.InferenceTimeout(), opts)
	c.processor = processing.NewProcessor(q, dispatcher, display, cfg.PopTimeout())
	return c
}

// Start connects the transport, launches the render loop and starts
// streaming. On error everything already started is torn down again.
func (c *Controller) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	if !c.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseConnected)) {
		c.lifeMu.Unlock()
		return ErrNotIdle
	}

	c.state.Store(StateConnecting)
	if err := c.transport.Connect(ctx); err != nil {
		c.state.Store(StateDisconnected)
		c.phase.Store(int32(PhaseStopped))
		close(c.done)
		c.lifeMu.Unlock()
		return fmt.Errorf("pipeline: connect: %w", err)
	}
	slog.Info("pipeline: transport connected")

	c.transport.SetCallbacks(c.producer)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.group = &errgroup.Group{}
	c.group.Go(func() error {
		defer close(c.done)
		err := c.processor.Run(runCtx)
		if err != nil {
			slog.Error("pipeline: render loop stopped", "error", err)
			// Nothing consumes the queue any more; stop taking holds.
			c.producer.close()
			if n := c.queue.Close(); n > 0 {
				slog.Info("pipeline: released queued frames", "frames", n)
			}
		}
		c.err = err
		return err
	})

	c.phase.Store(int32(PhaseRunning))
	err := c.transport.StartStreaming()
	c.lifeMu.Unlock()
	if err != nil {
		stopErr := c.Stop()
		return errors.Join(fmt.Errorf("pipeline: start streaming: %w", err), stopErr)
	}

	slog.Info("pipeline: running")
	return nil
}

// Stop tears the session down. It returns once the render loop has exited
// and every frame handle has been released. Later calls return the first
// result.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		c.stopErr = c.stop()
	})
	return c.stopErr
}

func (c *Controller) stop() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseStopped)) {
		close(c.done)
		return nil
	}
	if Phase(c.phase.Load()) == PhaseStopped {
		return nil
	}

	c.phase.Store(int32(PhaseShuttingDown))
	c.state.Store(StateStopping)
	slog.Info("pipeline: stopping")

	var errs []error

	c.cancel()
	if err := c.transport.StopStreaming(); err != nil {
		errs = append(errs, fmt.Errorf("stop streaming: %w", err))
	}
	if err := c.group.Wait(); err != nil {
		errs = append(errs, err)
	}

	c.producer.close()
	if n := c.queue.Close(); n > 0 {
		slog.Info("pipeline: released queued frames", "frames", n)
	}

	if err := c.transport.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	c.state.Store(StateDisconnected)
	c.phase.Store(int32(PhaseStopped))

	st := c.processor.Stats()
	slog.Info("pipeline: stopped",
		"delivered", c.producer.Delivered(),
		"processed", st.Processed,
		"displayed", st.Displayed,
		"dispatched", st.Dispatched,
	)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// Done is closed when the render loop exits, either because Stop was called
// or because it hit a fatal error.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err is the render loop's fatal error. Only valid after Done is closed.
func (c *Controller) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Controller) StreamState() StreamState {
	return c.state.Load()
}

func (c *Controller) Stats() processing.Stats {
	return c.processor.Stats()
}

// Queued is the number of frames waiting for the render loop.
func (c *Controller) Queued() int {
	return c.queue.Len()
}
