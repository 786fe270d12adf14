package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parley/internal/domain"
	"parley/internal/ports"
)

type fakeEngine struct {
	mu      sync.Mutex
	handles []*fakeHandle
	errs    []error
	gates   []chan struct{}
	calls   int
}

// Start hands out the configured handles in order. A non-nil entry in errs
// at the same index fails that call instead, and a non-nil gate holds the
// call until it is closed.
func (f *fakeEngine) Start(_ context.Context) (ports.RecognitionHandle, error) {
	f.mu.Lock()
	index := f.calls
	f.calls++
	var gate chan struct{}
	if index < len(f.gates) {
		gate = f.gates[index]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if index < len(f.errs) && f.errs[index] != nil {
		return nil, f.errs[index]
	}
	if index >= len(f.handles) {
		return nil, errors.New("no recognition handle configured")
	}
	return f.handles[index], nil
}

func (f *fakeEngine) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHandle struct {
	id     string
	events chan domain.RecognitionEvent

	mu         sync.Mutex
	closed     bool
	stopCalls  int
	closeCalls int
	stopErr    error
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, events: make(chan domain.RecognitionEvent, 16)}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Events() <-chan domain.RecognitionEvent { return f.events }

func (f *fakeHandle) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeHandle) emit(event domain.RecognitionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- event
}

func (f *fakeHandle) fragment(text string) {
	f.emit(domain.RecognitionEvent{Kind: domain.RecognitionFragment, Text: text})
}

func (f *fakeHandle) end() {
	f.emit(domain.RecognitionEvent{Kind: domain.RecognitionEnded})
}

func (f *fakeHandle) snapshot() (stops int, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls, f.closed
}

type fakeRewriter struct {
	replace map[string]string
	err     error
}

func (f *fakeRewriter) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.replace[text]; ok {
		return out, nil
	}
	return text, nil
}

type fakeChatClient struct {
	mu        sync.Mutex
	answers   map[string]string
	err       error
	block     chan struct{}
	questions []string
	userIDs   []string
}

func (f *fakeChatClient) Ask(_ context.Context, userID string, question string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	f.userIDs = append(f.userIDs, userID)
	if f.err != nil {
		return "", f.err
	}
	return f.answers[question], nil
}

func (f *fakeChatClient) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.questions))
	copy(out, f.questions)
	return out
}

type staticIdentity string

func (s staticIdentity) GetOrCreate() string { return string(s) }

type fakeRenderer struct {
	mu       sync.Mutex
	displays [][]domain.Turn
}

func (f *fakeRenderer) Display(transcript []domain.Turn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displays = append(f.displays, transcript)
}

func (f *fakeRenderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.displays)
}

type fakeEventSink struct {
	mu sync.Mutex

	states    []stateEvent
	fragments []string
	inputs    []string
	errors    []errEvent
}

type stateEvent struct {
	state  domain.CaptureState
	reason domain.CaptureStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) FragmentRecognized(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fragments = append(f.fragments, text)
}

func (f *fakeEventSink) InputChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) countErrors(code domain.ErrorCode) int {
	count := 0
	for _, e := range f.snapshotErrors() {
		if e.code == code {
			count++
		}
	}
	return count
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
