package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

const defaultIterationLimit = 30

// Rewriter applies deterministic substitutions loaded from a rules file to
// recognized fragments. The rule set can be swapped at runtime by Reload.
type Rewriter struct {
	path      string
	loopLimit int
	parsers   []LineParser

	mu    sync.RWMutex
	rules []rule
}

// New loads rules from path with the default parsers. An empty path or a
// missing file yields a rewriter that returns text unchanged.
func New(path string, loopLimit int) (*Rewriter, error) {
	return NewWithParsers(path, loopLimit, DefaultParsers())
}

func NewWithParsers(path string, loopLimit int, parsers []LineParser) (*Rewriter, error) {
	if loopLimit <= 0 {
		loopLimit = defaultIterationLimit
	}
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}

	r := &Rewriter{
		path:      strings.TrimSpace(path),
		loopLimit: loopLimit,
		parsers:   parsers,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the rules file this rewriter reads.
func (r *Rewriter) Path() string {
	return r.path
}

// Len returns the number of active rules.
func (r *Rewriter) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Reload re-reads the rules file. On any error the current rules stay in
// effect.
func (r *Rewriter) Reload() error {
	if r.path == "" {
		return nil
	}

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.swap(nil)
			return nil
		}
		return fmt.Errorf("failed to read rules file %q: %w", r.path, err)
	}

	parsed, err := parse(string(contents), r.parsers)
	if err != nil {
		return fmt.Errorf("failed to parse rules file %q: %w", r.path, err)
	}
	r.swap(parsed)
	return nil
}

func (r *Rewriter) swap(next []rule) {
	r.mu.Lock()
	r.rules = next
	r.mu.Unlock()
}

// Apply rewrites text until no rule changes it or the iteration limit is
// reached.
func (r *Rewriter) Apply(text string) (string, error) {
	r.mu.RLock()
	active := r.rules
	r.mu.RUnlock()

	if len(active) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < r.loopLimit; i++ {
		changed := false
		for _, rl := range active {
			if next, ok := rl.rewrite(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}
