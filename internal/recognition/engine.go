package recognition

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"

	"parley/internal/ports"
)

// Config controls how each recognition cycle captures and streams audio.
type Config struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	ChunkSize int
	// StopGrace keeps the microphone open briefly after a stop request so
	// the last words are not cut off.
	StopGrace time.Duration
	// StreamTimeout bounds the wait for the provider to close after the
	// send side is done.
	StreamTimeout time.Duration
}

// StreamingEngine implements ports.RecognitionEngine on top of a microphone
// capture and a streaming transcription provider. Each cycle is single shot:
// it ends when the provider reports the end of an utterance, when the
// stream closes, or when a stop is requested.
type StreamingEngine struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	logger   *log.Logger
}

func NewStreamingEngine(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	cfg Config,
	logger *log.Logger,
) *StreamingEngine {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 4 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StreamingEngine{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "recognition"),
	}
}

// Start opens the provider stream and the microphone and begins a cycle.
func (e *StreamingEngine) Start(ctx context.Context) (ports.RecognitionHandle, error) {
	cycleCtx, cancel := context.WithCancel(ctx)

	stream, err := e.provider.StartStreaming(cycleCtx, e.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start transcription stream: %w", err)
	}

	audioSession, err := e.audio.Start(cycleCtx, e.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, fmt.Errorf("start audio capture: %w", err)
	}

	id := xid.New().String()
	c := newCycle(id, cancel, audioSession, stream, e.cfg, e.logger.With("cycle", id))
	c.logger.Debug("recognition cycle started")
	go c.run()
	return c, nil
}
