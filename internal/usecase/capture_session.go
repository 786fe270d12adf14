package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"parley/internal/domain"
	"parley/internal/ports"
)

// CaptureSession turns a single-shot recognition engine into continuous
// listening: when a cycle ends on its own while listening, a new cycle is
// started right away. Recognized fragments are merged into the InputBuffer.
//
// EventSink callbacks run with the session lock held and must not call back
// into the session.
type CaptureSession struct {
	engine   ports.RecognitionEngine
	buffer   *InputBuffer
	rewriter ports.FragmentRewriter
	events   ports.EventSink

	mu      sync.Mutex
	state   domain.CaptureState
	current *liveCycle
	ctx     context.Context

	// gen changes whenever Stop or Close overrides an automatic restart
	// that runs without the lock.
	gen        uint64
	restarting chan struct{}
}

// NewCaptureSession builds an idle session. rewriter may be nil.
func NewCaptureSession(
	engine ports.RecognitionEngine,
	buffer *InputBuffer,
	rewriter ports.FragmentRewriter,
	events ports.EventSink,
) *CaptureSession {
	return &CaptureSession{
		engine:   engine,
		buffer:   buffer,
		rewriter: rewriter,
		events:   events,
		state:    domain.CaptureStateIdle,
	}
}

// Start switches capture on. Restarted cycles reuse ctx.
func (s *CaptureSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.CaptureStateListening:
		return nil
	case domain.CaptureStateStopRequested:
		// The cycle is still winding down; its end event restarts it.
		s.ctx = ctx
		s.setState(domain.CaptureStateListening, domain.CaptureReasonListeningResumed)
		return nil
	}

	if err := s.startCycle(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCaptureUnavailable, err)
	}
	s.setState(domain.CaptureStateListening, domain.CaptureReasonListeningStarted)
	return nil
}

// Stop switches capture off. The engine stops asynchronously; fragments that
// arrive before its end event are still merged.
func (s *CaptureSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.CaptureStateListening {
		return nil
	}
	if s.current == nil {
		// An automatic restart is in flight; its result is discarded.
		s.gen++
		s.setState(domain.CaptureStateIdle, domain.CaptureReasonStopped)
		return nil
	}

	s.setState(domain.CaptureStateStopRequested, domain.CaptureReasonStopRequested)
	if err := s.current.handle.Stop(); err != nil {
		s.events.SessionError(domain.ErrorCodeAudioStop, fmt.Sprintf("failed to stop recognition: %v", err))
		s.current.close()
		s.current = nil
		s.setState(domain.CaptureStateIdle, domain.CaptureReasonStopped)
		return err
	}
	return nil
}

// Toggle stops a listening session and starts any other.
func (s *CaptureSession) Toggle(ctx context.Context) (domain.Status, error) {
	var err error
	if s.Status().State == domain.CaptureStateListening {
		err = s.Stop()
	} else {
		err = s.Start(ctx)
	}
	return s.Status(), err
}

// Status returns the current capture status.
func (s *CaptureSession) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Status{State: s.state, Active: isActive(s.state)}
}

// Close tears down the live recognition cycle and leaves the session idle.
func (s *CaptureSession) Close() {
	s.mu.Lock()
	cycle := s.current
	restarting := s.restarting
	s.current = nil
	s.gen++
	wasActive := isActive(s.state)
	s.state = domain.CaptureStateIdle
	if wasActive {
		s.events.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonDisposed)
	}
	s.mu.Unlock()

	if cycle != nil {
		cycle.close()
		<-cycle.done
	}
	if restarting != nil {
		<-restarting
	}
}

// startCycle must be called with mu held.
func (s *CaptureSession) startCycle(ctx context.Context) error {
	if s.current != nil {
		s.current.close()
		s.current = nil
	}

	handle, err := s.engine.Start(ctx)
	if err != nil {
		return err
	}

	cycle := newLiveCycle(handle)
	s.current = cycle
	s.ctx = ctx
	go s.pump(cycle)
	return nil
}

func (s *CaptureSession) pump(cycle *liveCycle) {
	defer close(cycle.done)
	defer cycle.close()

	for event := range cycle.handle.Events() {
		if event.Kind == domain.RecognitionEnded {
			break
		}
		s.handleEvent(cycle, event)
	}
	s.finishCycle(cycle)
}

func (s *CaptureSession) handleEvent(cycle *liveCycle, event domain.RecognitionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != cycle {
		return
	}

	switch event.Kind {
	case domain.RecognitionFragment:
		s.mergeFragment(event.Text)
	case domain.RecognitionError:
		detail := "recognition error"
		if event.Err != nil {
			detail = event.Err.Error()
		}
		s.events.SessionError(domain.ErrorCodeCaptureTransient, detail)
	}
}

// finishCycle handles the end of a cycle. While listening it starts the next
// one with the lock released, so Status and Stop stay responsive during the
// provider dial and the microphone startup.
func (s *CaptureSession) finishCycle(cycle *liveCycle) {
	s.mu.Lock()
	if s.current != cycle {
		s.mu.Unlock()
		return
	}
	cycle.close()
	s.current = nil

	switch s.state {
	case domain.CaptureStateStopRequested:
		s.setState(domain.CaptureStateIdle, domain.CaptureReasonStopped)
		s.mu.Unlock()
		return
	case domain.CaptureStateListening:
	default:
		s.mu.Unlock()
		return
	}

	s.gen++
	gen, ctx := s.gen, s.ctx
	restarting := make(chan struct{})
	s.restarting = restarting
	s.mu.Unlock()
	defer close(restarting)

	handle, err := s.engine.Start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restarting == restarting {
		s.restarting = nil
	}
	if gen != s.gen {
		if handle != nil {
			_ = handle.Close()
		}
		return
	}
	if err != nil {
		s.state = domain.CaptureStateIdle
		s.events.SessionError(domain.ErrorCodeCaptureUnavailable, err.Error())
		s.events.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonCaptureUnavailable)
		return
	}

	next := newLiveCycle(handle)
	s.current = next
	go s.pump(next)
	s.events.CaptureStateChanged(domain.CaptureStateListening, domain.CaptureReasonEngineRestarted)
}

// mergeFragment must be called with mu held.
func (s *CaptureSession) mergeFragment(text string) {
	if s.rewriter != nil {
		rewritten, err := s.rewriter.Apply(text)
		if err != nil {
			s.events.SessionError(domain.ErrorCodeRules, err.Error())
		} else {
			text = rewritten
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.buffer.AppendFragment(text)
	s.events.FragmentRecognized(text)
}

// setState must be called with mu held.
func (s *CaptureSession) setState(state domain.CaptureState, reason domain.CaptureStateReason) {
	s.state = state
	s.events.CaptureStateChanged(state, reason)
}
