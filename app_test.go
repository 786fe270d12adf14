package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/domain"
	"parley/internal/ports"
	"parley/internal/usecase"
)

func TestCaptureReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.CaptureStateReason]string{
		domain.CaptureReasonMicCold:            "Mic cold",
		domain.CaptureReasonListeningStarted:   "Listening",
		domain.CaptureReasonListeningResumed:   "Listening resumed",
		domain.CaptureReasonEngineRestarted:    "Still listening",
		domain.CaptureReasonStopRequested:      "Stopping...",
		domain.CaptureReasonStopped:            "Mic off",
		domain.CaptureReasonCaptureUnavailable: "Speech capture unavailable",
		domain.CaptureReasonDisposed:           "Session closed",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := captureReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := captureReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:            "Startup failed",
		domain.ErrorCodeCaptureUnavailable: "Speech capture unavailable",
		domain.ErrorCodeCaptureTransient:   "Speech recognition issue",
		domain.ErrorCodeAudioStop:          "Audio stop issue",
		domain.ErrorCodeRules:              "Rules processing failed",
		domain.ErrorCodeExchangeMalformed:  "Chatbot sent an unusable response",
		domain.ErrorCodeExchangeTransport:  "Could not reach chatbot",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.Submit(); !errors.Is(err, bootErr) {
		t.Fatalf("expected submit to report boot error, got %v", err)
	}
	if _, err := app.ToggleCapture(); !errors.Is(err, bootErr) {
		t.Fatalf("expected toggle to report boot error, got %v", err)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.State != domain.CaptureStateIdle || status.Active {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.CaptureStateIdle || status.Active || status.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("expected boot error in runtime info, got %v", info)
	}
}

func TestAppWithoutWindowIgnoresEvents(t *testing.T) {
	t.Parallel()

	app := NewApp()
	app.CaptureStateChanged(domain.CaptureStateListening, domain.CaptureReasonListeningStarted)
	app.SessionError(domain.ErrorCodeRules, "bad")
	app.Display([]domain.Turn{{Sender: domain.SenderUser, Text: "hi"}})
	if app.ToggleFullscreen() {
		t.Fatalf("expected fullscreen toggle to be a no-op without a window")
	}
	if got := app.GetTranscript(); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %v", got)
	}
}

func TestAppInputAndSubmitWithServices(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PARLEY_CONFIG", "")
	t.Setenv("PARLEY_RULES_FILE", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	app := NewApp()
	services, err := bootstrap.BuildWithConfig(cfg, app, app)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	app.services = services
	defer app.shutdown(context.Background())

	if err := app.SetInput("  draft  "); err != nil {
		t.Fatalf("set input failed: %v", err)
	}
	if got := app.GetInput(); got != "  draft  " {
		t.Fatalf("unexpected input %q", got)
	}
	if err := app.SetInput("   "); err != nil {
		t.Fatalf("set input failed: %v", err)
	}
	if ok, err := app.Submit(); ok || err != nil {
		t.Fatalf("expected whitespace submit to be a no-op, got ok=%v err=%v", ok, err)
	}
	if got := app.GetStatus(); got.Message != "Mic cold" {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestToggleCaptureReportsOnlyStartFailures(t *testing.T) {
	t.Parallel()

	app, recorder := newRecordingApp(&stubEngine{handle: newStubHandle(errors.New("stuck"))})
	defer app.services.Capture.Close()

	status, err := app.ToggleCapture()
	if err != nil || status.State != domain.CaptureStateListening || status.Message != "Listening" {
		t.Fatalf("unexpected start result %+v (%v)", status, err)
	}

	status, err = app.ToggleCapture()
	if err == nil {
		t.Fatalf("expected stop failure")
	}
	if status.State != domain.CaptureStateIdle || status.Message != "Mic cold" {
		t.Fatalf("expected idle status with message, got %+v", status)
	}
	if got := recorder.errorCodes(); len(got) != 1 || got[0] != string(domain.ErrorCodeAudioStop) {
		t.Fatalf("expected only audio_stop, got %v", got)
	}
}

func TestToggleCaptureReportsUnavailable(t *testing.T) {
	t.Parallel()

	app, recorder := newRecordingApp(&stubEngine{err: errors.New("no microphone")})
	defer app.services.Capture.Close()

	status, err := app.ToggleCapture()
	if !errors.Is(err, domain.ErrCaptureUnavailable) {
		t.Fatalf("expected capture unavailable, got %v", err)
	}
	if status.State != domain.CaptureStateIdle || status.Message != "Mic cold" {
		t.Fatalf("unexpected status %+v", status)
	}
	if got := recorder.errorCodes(); len(got) != 1 || got[0] != string(domain.ErrorCodeCaptureUnavailable) {
		t.Fatalf("expected one capture_unavailable, got %v", got)
	}
}

func newRecordingApp(engine ports.RecognitionEngine) (*App, *eventRecorder) {
	recorder := &eventRecorder{}
	app := NewApp()
	app.emitter = recorder.record
	app.services = &bootstrap.Services{
		Capture: usecase.NewCaptureSession(engine, usecase.NewInputBuffer(nil), nil, app),
	}
	return app, recorder
}

type eventRecorder struct {
	mu     sync.Mutex
	errors []string
}

func (r *eventRecorder) record(name string, payload any) {
	if name != eventError {
		return
	}
	fields, _ := payload.(map[string]string)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fields["code"])
}

func (r *eventRecorder) errorCodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

type stubEngine struct {
	handle *stubHandle
	err    error
}

func (e *stubEngine) Start(context.Context) (ports.RecognitionHandle, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.handle, nil
}

type stubHandle struct {
	stopErr   error
	events    chan domain.RecognitionEvent
	closeOnce sync.Once
}

func newStubHandle(stopErr error) *stubHandle {
	return &stubHandle{stopErr: stopErr, events: make(chan domain.RecognitionEvent)}
}

func (h *stubHandle) ID() string { return "stub" }

func (h *stubHandle) Events() <-chan domain.RecognitionEvent { return h.events }

func (h *stubHandle) Stop() error { return h.stopErr }

func (h *stubHandle) Close() error {
	h.closeOnce.Do(func() { close(h.events) })
	return nil
}
