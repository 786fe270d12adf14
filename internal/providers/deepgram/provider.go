package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"parley/internal/ports"
)

const (
	defaultAPIBaseURL   = "https://api.deepgram.com/v1"
	defaultModel        = "nova-2"
	defaultLanguage     = "en-US"
	defaultCloseTimeout = 3 * time.Second
	defaultKeepAlive    = 5 * time.Second
)

// Config controls Deepgram websocket settings. Language is the single
// recognition locale.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// UtteranceEndMs asks Deepgram to report the end of an utterance after
	// this much silence. Zero disables utterance end events.
	UtteranceEndMs int
	// EndpointingMs sets the silence used to finalize a segment. Zero keeps
	// the provider default.
	EndpointingMs int
	// CloseTimeout bounds how long Deepgram may keep the socket open after
	// CloseStream.
	CloseTimeout time.Duration
	// KeepAlive is the idle interval after which a KeepAlive message is sent
	// so the socket survives pauses in the audio.
	KeepAlive time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram live
// transcription.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.UtteranceEndMs < 0 {
		cfg.UtteranceEndMs = 0
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

// StartStreaming dials the listen endpoint. The session is closed when ctx
// ends.
func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	s := newSession(conn, p.cfg.CloseTimeout, p.cfg.KeepAlive)
	s.start()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.finished:
		}
	}()

	return s, nil
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultAPIBaseURL
	}

	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	listenURL, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	// Utterance end detection only works with interim results enabled.
	interim := streamCfg.InterimResults || providerCfg.UtteranceEndMs > 0
	query.Set("interim_results", strconv.FormatBool(interim))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	if providerCfg.UtteranceEndMs > 0 {
		query.Set("utterance_end_ms", strconv.Itoa(providerCfg.UtteranceEndMs))
		query.Set("vad_events", "true")
	}
	if providerCfg.EndpointingMs > 0 {
		query.Set("endpointing", strconv.Itoa(providerCfg.EndpointingMs))
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
