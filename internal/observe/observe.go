// Package observe turns backend events into structured log lines.
package observe

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"parley/internal/domain"
	"parley/internal/ports"
)

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           parsed,
		Prefix:          "parley",
	})
}

// LogSink implements ports.EventSink by logging every event.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger.With("component", "session")}
}

func (s *LogSink) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureStateReason) {
	s.logger.Info("capture state changed", "state", state, "reason", reason)
}

func (s *LogSink) FragmentRecognized(text string) {
	s.logger.Debug("fragment recognized", "text", text)
}

func (s *LogSink) InputChanged(text string) {
	s.logger.Debug("input changed", "length", len(text))
}

func (s *LogSink) SessionError(code domain.ErrorCode, detail string) {
	switch code {
	case domain.ErrorCodeCaptureTransient, domain.ErrorCodeAudioStop, domain.ErrorCodeRules:
		s.logger.Warn("session error", "code", code, "detail", detail)
	default:
		s.logger.Error("session error", "code", code, "detail", detail)
	}
}

// Tee fans each event out to every sink in order. Nil sinks are skipped.
type Tee []ports.EventSink

func NewTee(sinks ...ports.EventSink) Tee {
	out := make(Tee, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

func (t Tee) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureStateReason) {
	for _, sink := range t {
		sink.CaptureStateChanged(state, reason)
	}
}

func (t Tee) FragmentRecognized(text string) {
	for _, sink := range t {
		sink.FragmentRecognized(text)
	}
}

func (t Tee) InputChanged(text string) {
	for _, sink := range t {
		sink.InputChanged(text)
	}
}

func (t Tee) SessionError(code domain.ErrorCode, detail string) {
	for _, sink := range t {
		sink.SessionError(code, detail)
	}
}
