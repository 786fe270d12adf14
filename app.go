package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"parley/internal/bootstrap"
	"parley/internal/domain"
)

const (
	eventCapture    = "parley:capture"
	eventFragment   = "parley:fragment"
	eventInput      = "parley:input"
	eventTranscript = "parley:transcript"
	eventError      = "parley:error"
)

// App is the Wails application root. It is the desktop view controller: it
// binds the mic toggle, text entry and submit to the backend and forwards
// backend events to the frontend.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error

	// emitter replaces the Wails event bus when set.
	emitter func(name string, payload any)
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonMicCold)
}

func (a *App) shutdown(_ context.Context) {
	if a.services != nil {
		a.services.Close()
	}
}

// ToggleCapture switches continuous listening on or off.
func (a *App) ToggleCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	status, err := a.services.Capture.Toggle(a.runCtx())
	// Stop failures are reported by the session itself.
	if errors.Is(err, domain.ErrCaptureUnavailable) {
		a.SessionError(domain.ErrorCodeCaptureUnavailable, err.Error())
	}
	return withMessage(status), err
}

// SetInput replaces the pending text after manual edits in the text field.
func (a *App) SetInput(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Buffer.Set(text)
	return nil
}

// GetInput returns the pending text.
func (a *App) GetInput() string {
	if a.services == nil {
		return ""
	}
	return a.services.Buffer.Text()
}

// Submit sends the pending text. It reports false when there was nothing to
// send. The bot reply arrives later as a transcript event.
func (a *App) Submit() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	_, ok := a.services.Exchange.Submit(a.runCtx())
	return ok, nil
}

// GetTranscript returns every turn so far in order.
func (a *App) GetTranscript() []domain.Turn {
	if a.services == nil {
		return []domain.Turn{}
	}
	return a.services.Transcript.Turns()
}

// GetStatus returns the current capture status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.CaptureStateIdle, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.CaptureStateIdle, Active: false}
	}
	return withMessage(a.services.Capture.Status())
}

// ToggleFullscreen switches the window in or out of fullscreen and returns
// the new mode.
func (a *App) ToggleFullscreen() bool {
	if a.ctx == nil {
		return false
	}
	if runtime.WindowIsFullscreen(a.ctx) {
		runtime.WindowUnfullscreen(a.ctx)
		return false
	}
	runtime.WindowFullscreen(a.ctx)
	return true
}

// GetRuntimeInfo returns non-sensitive config for the options menu.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"provider":         "Deepgram",
		"model":            cfg.Deepgram.Model,
		"language":         cfg.Deepgram.Language,
		"chatEndpoint":     cfg.Chat.Endpoint,
		"rulesFile":        cfg.Rules.Path,
		"configFile":       cfg.File,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// CaptureStateChanged emits capture lifecycle updates to the frontend.
func (a *App) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureStateReason) {
	a.emit(eventCapture, map[string]any{
		"state":   string(state),
		"active":  state != domain.CaptureStateIdle,
		"reason":  string(reason),
		"message": captureReasonMessage(reason),
	})
}

func (a *App) FragmentRecognized(text string) {
	a.emit(eventFragment, map[string]string{"text": text})
}

func (a *App) InputChanged(text string) {
	a.emit(eventInput, map[string]string{"text": text})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// Display implements ports.Renderer by pushing the whole transcript.
func (a *App) Display(transcript []domain.Turn) {
	a.emit(eventTranscript, transcript)
}

func (a *App) runCtx() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *App) emit(name string, payload any) {
	if a.emitter != nil {
		a.emitter(name, payload)
		return
	}
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func withMessage(status domain.Status) domain.Status {
	if status.Message == "" {
		status.Message = statusMessage(status.State)
	}
	return status
}

func statusMessage(state domain.CaptureState) string {
	switch state {
	case domain.CaptureStateListening:
		return "Listening"
	case domain.CaptureStateStopRequested:
		return "Finishing up"
	default:
		return "Mic cold"
	}
}

func captureReasonMessage(reason domain.CaptureStateReason) string {
	switch reason {
	case domain.CaptureReasonMicCold:
		return "Mic cold"
	case domain.CaptureReasonListeningStarted:
		return "Listening"
	case domain.CaptureReasonListeningResumed:
		return "Listening resumed"
	case domain.CaptureReasonEngineRestarted:
		return "Still listening"
	case domain.CaptureReasonStopRequested:
		return "Stopping..."
	case domain.CaptureReasonStopped:
		return "Mic off"
	case domain.CaptureReasonCaptureUnavailable:
		return "Speech capture unavailable"
	case domain.CaptureReasonDisposed:
		return "Session closed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCaptureUnavailable:
		return "Speech capture unavailable"
	case domain.ErrorCodeCaptureTransient:
		return "Speech recognition issue"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeExchangeMalformed:
		return "Chatbot sent an unusable response"
	case domain.ErrorCodeExchangeTransport:
		return "Could not reach chatbot"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
