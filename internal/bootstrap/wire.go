package bootstrap

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"parley/internal/audio"
	"parley/internal/chatapi"
	"parley/internal/config"
	"parley/internal/domain"
	"parley/internal/identity"
	"parley/internal/observe"
	"parley/internal/ports"
	"parley/internal/providers/deepgram"
	"parley/internal/recognition"
	"parley/internal/rules"
	"parley/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Logger     *log.Logger
	Buffer     *usecase.InputBuffer
	Transcript *usecase.Transcript
	Capture    *usecase.CaptureSession
	Exchange   *usecase.ChatExchange
	Rules      *rules.Rewriter
	Identity   *identity.FileProvider

	stopWatch chan struct{}
	closeOnce sync.Once
}

// Build loads configuration and wires all backend dependencies. events and
// renderer belong to the host and may be nil.
func Build(events ports.EventSink, renderer ports.Renderer) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWithConfig(cfg, events, renderer)
}

func BuildWithConfig(cfg config.Config, events ports.EventSink, renderer ports.Renderer) (*Services, error) {
	logger := observe.NewLogger(os.Stderr, cfg.Log.Level)
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	}

	rewriter, err := rules.New(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	sink := observe.NewTee(observe.NewLogSink(logger), events)

	engine := recognition.NewStreamingEngine(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			UtteranceEndMs: cfg.Deepgram.UtteranceEndMs,
			EndpointingMs:  cfg.Deepgram.EndpointingMs,
			CloseTimeout:   cfg.Deepgram.CloseTimeout,
			KeepAlive:      cfg.Deepgram.KeepAlive,
		}),
		recognition.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
				Encoding:   "linear16",
			},
			ChunkSize:     cfg.Session.ChunkSize,
			StopGrace:     cfg.Session.StopGrace,
			StreamTimeout: cfg.Session.StreamTimeout,
		},
		logger,
	)

	buffer := usecase.NewInputBuffer(sink.InputChanged)
	transcript := usecase.NewTranscript(renderer)
	ident := identity.NewFileProvider(cfg.Identity.Path, logger)

	services := &Services{
		Config:     cfg,
		Logger:     logger,
		Buffer:     buffer,
		Transcript: transcript,
		Capture:    usecase.NewCaptureSession(engine, buffer, rewriter, sink),
		Exchange: usecase.NewChatExchange(
			buffer,
			transcript,
			chatapi.NewClient(chatapi.Config{Endpoint: cfg.Chat.Endpoint, Timeout: cfg.Chat.Timeout}),
			ident,
			sink,
		),
		Rules:     rewriter,
		Identity:  ident,
		stopWatch: make(chan struct{}),
	}

	logger.Debug("identity ready", "user_id", ident.GetOrCreate())
	transcript.Refresh()

	if cfg.Rules.Watch {
		go services.watchRules(sink)
	}
	return services, nil
}

func (s *Services) watchRules(sink ports.EventSink) {
	logger := s.Logger.With("component", "rules")
	err := s.Rules.Watch(
		s.stopWatch,
		func(count int) { logger.Info("rules reloaded", "path", s.Rules.Path(), "rules", count) },
		func(err error) { sink.SessionError(domain.ErrorCodeRules, err.Error()) },
	)
	if err != nil {
		sink.SessionError(domain.ErrorCodeRules, err.Error())
	}
}

// Close stops capture, lets queued chat requests finish and stops the rules
// watcher.
func (s *Services) Close() {
	s.closeOnce.Do(func() {
		close(s.stopWatch)
		s.Capture.Close()
		s.Exchange.Close()
	})
}
