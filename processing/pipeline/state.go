package pipeline

import "sync/atomic"

// StreamState reports what the transport last said about the stream. It is
// for status display only; the render loop stops on context cancellation
// and the producer refuses frames once closed.
type StreamState int32

const (
	StateDisconnected StreamState = iota
	StateConnecting
	StateStreaming
	StateStopping
)

func (s StreamState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	default:
		return "invalid"
	}
}

type streamState struct {
	v atomic.Int32
}

func (s *streamState) Load() StreamState {
	return StreamState(s.v.Load())
}

func (s *streamState) Store(st StreamState) {
	s.v.Store(int32(st))
}

func (s *streamState) CompareAndSwap(old, next StreamState) bool {
	return s.v.CompareAndSwap(int32(old), int32(next))
}

// Phase is the controller's own lifecycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnected
	PhaseRunning
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnected:
		return "connected"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting down"
	case PhaseStopped:
		return "stopped"
	default:
		return "invalid"
	}
}
