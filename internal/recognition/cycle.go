package recognition

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"parley/internal/domain"
	"parley/internal/ports"
)

type cycle struct {
	id     string
	cancel context.CancelFunc
	audio  ports.AudioSession
	stream ports.StreamingSession
	cfg    Config
	logger *log.Logger

	events  chan domain.RecognitionEvent
	closing chan struct{}
	done    chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
}

func newCycle(
	id string,
	cancel context.CancelFunc,
	audio ports.AudioSession,
	stream ports.StreamingSession,
	cfg Config,
	logger *log.Logger,
) *cycle {
	return &cycle{
		id:      id,
		cancel:  cancel,
		audio:   audio,
		stream:  stream,
		cfg:     cfg,
		logger:  logger,
		events:  make(chan domain.RecognitionEvent, 32),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *cycle) ID() string { return c.id }

func (c *cycle) Events() <-chan domain.RecognitionEvent { return c.events }

// Stop closes the microphone after the configured grace period. Results
// already in flight are still delivered before Ended.
func (c *cycle) Stop() error {
	c.stopOnce.Do(func() {
		go func() {
			if c.cfg.StopGrace > 0 {
				timer := time.NewTimer(c.cfg.StopGrace)
				select {
				case <-timer.C:
				case <-c.closing:
					timer.Stop()
				}
			}
			if err := c.audio.Stop(); err != nil {
				c.logger.Warn("audio stop failed", "error", err)
			}
		}()
	})
	return nil
}

func (c *cycle) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.cancel()
		_ = c.audio.Stop()
		_ = c.stream.Close()
	})
	<-c.done
	return nil
}

func (c *cycle) run() {
	defer close(c.done)
	defer close(c.events)

	audioDone := make(chan struct{})
	go pumpAudioChunks(c.audio, c.stream, c.cfg.ChunkSize, c.reportError, audioDone)

	resultsDone := make(chan struct{})
	go c.forwardResults(resultsDone)

	select {
	case <-audioDone:
	case <-resultsDone:
		// The stream ended on its own; make sure the microphone follows.
		_ = c.audio.Stop()
		<-audioDone
	}

	if err := waitForStream(c.stream, c.cfg.StreamTimeout); err != nil {
		c.reportError(err)
	}
	_ = c.stream.Close()
	<-resultsDone
	c.cancel()

	c.logger.Debug("recognition cycle ended")
	c.emit(domain.RecognitionEvent{Kind: domain.RecognitionEnded})
}

func (c *cycle) forwardResults(done chan struct{}) {
	defer close(done)

	for event := range c.stream.Events() {
		switch event.Kind {
		case domain.TranscriptKindFinal:
			if text := strings.TrimSpace(event.Text); text != "" {
				c.emit(domain.RecognitionEvent{Kind: domain.RecognitionFragment, Text: text})
			}
		case domain.TranscriptKindUtteranceEnd:
			c.logger.Debug("utterance ended, finishing cycle")
			_ = c.Stop()
		}
	}
}

func (c *cycle) reportError(err error) {
	c.emit(domain.RecognitionEvent{Kind: domain.RecognitionError, Err: err})
}

func (c *cycle) emit(event domain.RecognitionEvent) {
	select {
	case c.events <- event:
	case <-c.closing:
	}
}
