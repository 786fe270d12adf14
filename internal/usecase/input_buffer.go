package usecase

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// InputBuffer holds the pending, not yet submitted user text. Speech
// fragments, manual entry and submit all go through it.
type InputBuffer struct {
	// notifyMu keeps change notifications in mutation order without
	// holding mu while observers run.
	notifyMu sync.Mutex
	mu       sync.Mutex
	text     string

	onChange func(text string)
}

func NewInputBuffer(onChange func(text string)) *InputBuffer {
	return &InputBuffer{onChange: onChange}
}

// AppendFragment merges a recognized fragment into the buffer, separating it
// from existing text with a single space when needed.
func (b *InputBuffer) AppendFragment(fragment string) string {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	b.text = mergeFragment(b.text, fragment)
	text := b.text
	b.mu.Unlock()

	b.notify(text)
	return text
}

// Set replaces the buffer contents, as manual text entry does.
func (b *InputBuffer) Set(text string) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	changed := b.text != text
	b.text = text
	b.mu.Unlock()

	if changed {
		b.notify(text)
	}
}

// Text returns the current contents.
func (b *InputBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Take atomically reads and clears the buffer. It returns the trimmed text,
// or false and leaves the buffer untouched when nothing but whitespace is
// pending.
func (b *InputBuffer) Take() (string, bool) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	trimmed := strings.TrimSpace(b.text)
	if trimmed == "" {
		b.mu.Unlock()
		return "", false
	}
	b.text = ""
	b.mu.Unlock()

	b.notify("")
	return trimmed, true
}

func (b *InputBuffer) notify(text string) {
	if b.onChange != nil {
		b.onChange(text)
	}
}

func mergeFragment(current string, fragment string) string {
	if current == "" {
		return fragment
	}
	last, _ := utf8.DecodeLastRuneInString(current)
	if unicode.IsSpace(last) {
		return current + fragment
	}
	return current + " " + fragment
}
