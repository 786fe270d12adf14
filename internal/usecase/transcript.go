package usecase

import (
	"sync"

	"parley/internal/domain"
	"parley/internal/ports"
)

// Transcript is the append-only, in-memory record of the session's turns.
type Transcript struct {
	renderMu sync.Mutex
	mu       sync.Mutex
	turns    []domain.Turn

	renderer ports.Renderer
}

func NewTranscript(renderer ports.Renderer) *Transcript {
	return &Transcript{renderer: renderer}
}

// Append records a turn and hands the renderer the updated sequence.
func (t *Transcript) Append(turn domain.Turn) {
	t.renderMu.Lock()
	defer t.renderMu.Unlock()

	t.mu.Lock()
	t.turns = append(t.turns, turn)
	snapshot := cloneTurns(t.turns)
	t.mu.Unlock()

	if t.renderer != nil {
		t.renderer.Display(snapshot)
	}
}

// Refresh hands the renderer the current sequence without appending.
func (t *Transcript) Refresh() {
	t.renderMu.Lock()
	defer t.renderMu.Unlock()

	if t.renderer != nil {
		t.renderer.Display(t.Turns())
	}
}

// Turns returns a copy of the transcript in insertion order.
func (t *Transcript) Turns() []domain.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneTurns(t.turns)
}

// Len returns the number of recorded turns.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}

func cloneTurns(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}
