package frame

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var ErrReleased = errors.New("frame: handle already released")

// Handle owns exactly one hold on a transport Buffer. Ownership moves from the
// producer to the queue to the consumer; whoever holds it last calls Release.
type Handle struct {
	Seq      uint64
	TraceID  string
	Received time.Time

	buf      Buffer
	format   Format
	released atomic.Bool
}

// Acquire takes a hold on buf and wraps it.
func Acquire(buf Buffer, seq uint64) *Handle {
	buf.Ref()
	return &Handle{
		Seq:      seq,
		TraceID:  uuid.NewString(),
		Received: time.Now(),
		buf:      buf,
		format:   buf.Format(),
	}
}

func (h *Handle) Format() Format {
	return h.format
}

func (h *Handle) Planes() ([]Plane, error) {
	if h.released.Load() {
		return nil, ErrReleased
	}
	return h.buf.Planes(), nil
}

// Release drops the hold. Only the first call reaches the transport; later
// calls are logged and report false.
func (h *Handle) Release() bool {
	if !h.released.CompareAndSwap(false, true) {
		slog.Warn("frame: duplicate release ignored",
			"seq", h.Seq,
			"trace_id", h.TraceID,
		)
		return false
	}
	h.buf.Unref()
	return true
}

func (h *Handle) Released() bool {
	return h.released.Load()
}
