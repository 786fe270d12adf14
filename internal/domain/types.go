package domain

import "errors"

// CaptureState models the continuous speech capture lifecycle.
type CaptureState string

const (
	CaptureStateIdle          CaptureState = "idle"
	CaptureStateListening     CaptureState = "listening"
	CaptureStateStopRequested CaptureState = "stop_requested"
)

// CaptureStateReason provides a structured reason for state transitions.
type CaptureStateReason string

const (
	CaptureReasonMicCold            CaptureStateReason = "mic_cold"
	CaptureReasonListeningStarted   CaptureStateReason = "listening_started"
	CaptureReasonListeningResumed   CaptureStateReason = "listening_resumed"
	CaptureReasonEngineRestarted    CaptureStateReason = "engine_restarted"
	CaptureReasonStopRequested      CaptureStateReason = "stop_requested"
	CaptureReasonStopped            CaptureStateReason = "stopped"
	CaptureReasonCaptureUnavailable CaptureStateReason = "capture_unavailable"
	CaptureReasonDisposed           CaptureStateReason = "disposed"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup            ErrorCode = "startup"
	ErrorCodeCaptureUnavailable ErrorCode = "capture_unavailable"
	ErrorCodeCaptureTransient   ErrorCode = "capture_transient"
	ErrorCodeAudioStop          ErrorCode = "audio_stop"
	ErrorCodeRules              ErrorCode = "rules"
	ErrorCodeExchangeMalformed  ErrorCode = "exchange_malformed"
	ErrorCodeExchangeTransport  ErrorCode = "exchange_transport"
)

var (
	// ErrCaptureUnavailable reports that the recognition engine could not be started.
	ErrCaptureUnavailable = errors.New("speech capture unavailable")
	// ErrMalformedResponse reports a successful call whose payload carries no usable answer.
	ErrMalformedResponse = errors.New("malformed chatbot response")
	// ErrTransport reports a chat call that failed outright.
	ErrTransport = errors.New("chatbot transport failure")
)

// TranscriptKind identifies the kind of a provider stream event.
type TranscriptKind string

const (
	TranscriptKindPartial      TranscriptKind = "partial"
	TranscriptKindFinal        TranscriptKind = "final"
	TranscriptKindUtteranceEnd TranscriptKind = "utterance_end"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// RecognitionEventKind is the closed set of events a recognition cycle emits.
type RecognitionEventKind string

const (
	RecognitionFragment RecognitionEventKind = "fragment"
	RecognitionError    RecognitionEventKind = "error"
	RecognitionEnded    RecognitionEventKind = "ended"
)

// RecognitionEvent is delivered by a recognition handle in emission order.
// Ended is always the last event of a handle.
type RecognitionEvent struct {
	Kind RecognitionEventKind
	Text string
	Err  error
}

// Sender identifies who produced a turn.
type Sender string

const (
	SenderUser Sender = "User"
	SenderBot  Sender = "Bot"
)

// Turn is one immutable entry of the session transcript.
type Turn struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Status summarizes the current capture status.
type Status struct {
	State   CaptureState `json:"state"`
	Active  bool         `json:"active"`
	Message string       `json:"message,omitempty"`
}
