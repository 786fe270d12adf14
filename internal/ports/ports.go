package ports

import (
	"context"
	"io"

	"parley/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RecognitionHandle is one single-shot recognition cycle. Events ends with
// a RecognitionEnded event and is then closed.
type RecognitionHandle interface {
	ID() string
	Events() <-chan domain.RecognitionEvent
	// Stop asks the cycle to finish; it returns without waiting for Ended.
	Stop() error
	// Close tears the cycle down and releases its resources.
	Close() error
}

// RecognitionEngine starts recognition cycles.
type RecognitionEngine interface {
	Start(ctx context.Context) (RecognitionHandle, error)
}

// FragmentRewriter transforms recognized text using deterministic rules.
type FragmentRewriter interface {
	Apply(text string) (string, error)
}

// ChatClient sends one question to the remote endpoint and returns its answer.
type ChatClient interface {
	Ask(ctx context.Context, userID string, question string) (string, error)
}

// IdentityProvider returns a stable per-device user identifier.
type IdentityProvider interface {
	GetOrCreate() string
}

// Renderer displays the ordered transcript.
type Renderer interface {
	Display(transcript []domain.Turn)
}

// EventSink receives backend state and observability events.
type EventSink interface {
	CaptureStateChanged(state domain.CaptureState, reason domain.CaptureStateReason)
	FragmentRecognized(text string)
	InputChanged(text string)
	SessionError(code domain.ErrorCode, detail string)
}
