package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/domain"
	"parley/internal/render"
)

var (
	configPath  string
	renderWidth int
	renderStyle string
	listenOnRun bool
)

var rootCmd = &cobra.Command{
	Use:   "parley-term",
	Short: "Talk or type to the chatbot from a terminal",
	Long: `parley-term reads lines from stdin and sends them to the chatbot.

  /mic     toggle continuous listening
  /status  show the capture state
  /quit    exit
  (empty)  send whatever speech has been captured so far`,
	RunE: runTerminal,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default $PARLEY_CONFIG or ~/.config/parley/config.yaml)")
	rootCmd.Flags().IntVar(&renderWidth, "width", 80, "wrap width for bot answers")
	rootCmd.Flags().StringVar(&renderStyle, "style", "auto", "markdown style: auto, dark, light, notty")
	rootCmd.Flags().BoolVar(&listenOnRun, "listen", false, "start listening immediately")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTerminal(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = os.Getenv("PARLEY_CONFIG")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	term, err := render.NewTerminal(out, render.Options{Width: renderWidth, Style: renderStyle})
	if err != nil {
		return err
	}

	services, err := bootstrap.BuildWithConfig(cfg, newStatusLine(cmd.ErrOrStderr()), term)
	if err != nil {
		return err
	}
	defer services.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if listenOnRun {
		if err := services.Capture.Start(ctx); err != nil {
			services.Logger.Error("could not start listening", "error", err)
		}
	}

	return readLoop(ctx, cmd.InOrStdin(), services, services.Logger)
}

func readLoop(ctx context.Context, in io.Reader, services *bootstrap.Services, logger *log.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, line, services, logger); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, line string, services *bootstrap.Services, logger *log.Logger) bool {
	switch strings.TrimSpace(line) {
	case "/quit", "/exit":
		return true
	case "/mic":
		if _, err := services.Capture.Toggle(ctx); err != nil {
			logger.Error("could not toggle listening", "error", err)
		}
		return false
	case "/status":
		status := services.Capture.Status()
		logger.Info("capture", "state", status.State, "pending", services.Buffer.Text())
		return false
	}

	if text := strings.TrimSpace(line); text != "" {
		services.Buffer.AppendFragment(text)
	}
	services.Exchange.Submit(ctx)
	return false
}

// statusLine prints capture changes and recognized speech for the terminal
// user. Errors are already logged by the backend.
type statusLine struct {
	out   io.Writer
	faint lipgloss.Style
}

func newStatusLine(out io.Writer) *statusLine {
	return &statusLine{out: out, faint: lipgloss.NewRenderer(out).NewStyle().Faint(true)}
}

func (s *statusLine) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureStateReason) {
	fmt.Fprintln(s.out, s.faint.Render(fmt.Sprintf("[mic %s: %s]", state, reason)))
}

func (s *statusLine) FragmentRecognized(text string) {
	fmt.Fprintln(s.out, s.faint.Render("... "+text))
}

func (s *statusLine) InputChanged(string) {}

func (s *statusLine) SessionError(domain.ErrorCode, string) {}
