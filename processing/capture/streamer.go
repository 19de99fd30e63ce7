package capture

import (
	"context"

	"framepipe/processing/frame"
)

// Callbacks are invoked by a Transport on its own goroutines. None of them may
// block: they run inside the transport's delivery path.
type Callbacks interface {
	// OnFrameAvailable receives a buffer the transport holds one reference
	// on for the duration of the call. A callee that keeps the frame must
	// take its own hold.
	OnFrameAvailable(buf frame.Buffer)
	OnStreamStarted()
	OnStreamEnded()
	// OnFlushRequested must release every frame still held by the callee
	// before returning. The transport reuses buffers once it gets true.
	OnFlushRequested() bool
}

type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	StartStreaming() error
	// StopStreaming stops delivery and requests a final flush before it
	// returns.
	StopStreaming() error
	SetCallbacks(cb Callbacks)
}
