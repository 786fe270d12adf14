// Package render prints the transcript to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"parley/internal/domain"
)

// Options controls terminal rendering. Style is a glamour standard style
// name such as "auto", "dark" or "notty".
type Options struct {
	Width int
	Style string
}

// Terminal implements ports.Renderer. It appends turns it has not printed
// yet, rendering bot answers as markdown.
type Terminal struct {
	out      io.Writer
	markdown *glamour.TermRenderer
	user     lipgloss.Style
	bot      lipgloss.Style

	mu      sync.Mutex
	printed int
}

func NewTerminal(out io.Writer, opts Options) (*Terminal, error) {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	style := glamour.WithAutoStyle()
	if opts.Style != "" && opts.Style != "auto" {
		style = glamour.WithStandardStyle(opts.Style)
	}

	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width-4))
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}

	styles := lipgloss.NewRenderer(out)
	return &Terminal{
		out:      out,
		markdown: md,
		user:     styles.NewStyle().Bold(true).Foreground(lipgloss.Color("#87CEEB")),
		bot:      styles.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFA07A")),
	}, nil
}

func (t *Terminal) Display(transcript []domain.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(transcript) < t.printed {
		t.printed = 0
	}
	for _, turn := range transcript[t.printed:] {
		fmt.Fprintln(t.out, t.format(turn))
	}
	t.printed = len(transcript)
}

func (t *Terminal) format(turn domain.Turn) string {
	if turn.Sender == domain.SenderUser {
		return t.user.Render("You") + "  " + turn.Text
	}

	body, err := t.markdown.Render(turn.Text)
	if err != nil {
		body = turn.Text
	}
	return t.bot.Render("Bot") + "\n" + strings.TrimRight(body, "\n")
}
