package usecase

import (
	"parley/internal/domain"
	"parley/internal/ports"
)

// liveCycle is the recognition handle currently owned by a CaptureSession.
// Events from a cycle that is no longer current are dropped.
type liveCycle struct {
	handle ports.RecognitionHandle
	done   chan struct{}
}

func newLiveCycle(handle ports.RecognitionHandle) *liveCycle {
	return &liveCycle{handle: handle, done: make(chan struct{})}
}

func (c *liveCycle) close() {
	_ = c.handle.Close()
}

func isActive(state domain.CaptureState) bool {
	return state != domain.CaptureStateIdle
}
