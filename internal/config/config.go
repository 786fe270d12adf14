package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultChatEndpoint = "https://gen1-8201.onrender.com/process-text/"

// Config stores runtime configuration. Values come from defaults, then the
// optional YAML file, then environment variables (including .env files).
type Config struct {
	Chat     ChatConfig     `yaml:"chat"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Audio    AudioConfig    `yaml:"audio"`
	Rules    RulesConfig    `yaml:"rules"`
	Session  SessionConfig  `yaml:"session"`
	Identity IdentityConfig `yaml:"identity"`
	Log      LogConfig      `yaml:"log"`

	// File is the config file that was read, empty when none was found.
	File string `yaml:"-"`
}

type ChatConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DeepgramConfig struct {
	APIKey         string `yaml:"api_key"`
	APIBaseURL     string `yaml:"api_base"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	SmartFormat    bool   `yaml:"smart_format"`
	UtteranceEndMs int    `yaml:"utterance_end_ms"`
	EndpointingMs  int    `yaml:"endpointing_ms"`

	CloseTimeout time.Duration `yaml:"close_timeout"`
	KeepAlive    time.Duration `yaml:"keep_alive"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
	Watch          bool   `yaml:"watch"`
}

type SessionConfig struct {
	ChunkSize     int           `yaml:"chunk_size"`
	StopGrace     time.Duration `yaml:"stop_grace"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

type IdentityConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the file named by PARLEY_CONFIG, or the default config file
// when that is unset, and applies environment overrides.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("PARLEY_CONFIG"))
}

// LoadFrom is Load with an explicit config file. An explicit file must
// exist; the default one is optional.
func LoadFrom(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	dir := filepath.Join(home, ".config", "parley")

	cfg := defaults(dir)

	path = strings.TrimSpace(path)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, "config.yaml")
	}
	if err := decodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else {
		cfg.File = path
	}

	if err := loadDotEnv(".env", filepath.Join(dir, ".env")); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	sanitize(&cfg)
	return cfg, nil
}

func defaults(dir string) Config {
	return Config{
		Chat: ChatConfig{
			Endpoint: DefaultChatEndpoint,
			Timeout:  30 * time.Second,
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:     "https://api.deepgram.com/v1",
			Model:          "nova-2",
			Language:       "en-US",
			SmartFormat:    true,
			UtteranceEndMs: 1000,
			CloseTimeout:   3 * time.Second,
			KeepAlive:      5 * time.Second,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		Rules: RulesConfig{
			Path:           filepath.Join(dir, "fragments.rules"),
			IterationLimit: 30,
		},
		Session: SessionConfig{
			ChunkSize:     4096,
			StopGrace:     time.Second,
			StreamTimeout: 4 * time.Second,
		},
		Identity: IdentityConfig{
			Path: filepath.Join(dir, "identity"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

// loadDotEnv adds variables from the given .env files that exist. Variables
// already set in the environment win.
func loadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Chat.Endpoint = envOrDefault("PARLEY_CHAT_ENDPOINT", cfg.Chat.Endpoint)
	cfg.Chat.Timeout = envOrDefaultMillis("PARLEY_CHAT_TIMEOUT_MS", cfg.Chat.Timeout)

	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)
	cfg.Deepgram.UtteranceEndMs = envOrDefaultInt("DEEPGRAM_UTTERANCE_END_MS", cfg.Deepgram.UtteranceEndMs)
	cfg.Deepgram.EndpointingMs = envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", cfg.Deepgram.EndpointingMs)
	cfg.Deepgram.CloseTimeout = envOrDefaultMillis("DEEPGRAM_CLOSE_TIMEOUT_MS", cfg.Deepgram.CloseTimeout)
	cfg.Deepgram.KeepAlive = envOrDefaultMillis("DEEPGRAM_KEEPALIVE_MS", cfg.Deepgram.KeepAlive)

	cfg.Audio.RecorderCommand = envOrDefault("PARLEY_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("PARLEY_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(
		os.Getenv("PARLEY_AUDIO_INPUT_DEVICE"),
		os.Getenv("DEEPGRAM_PULSE_SOURCE"),
		cfg.Audio.InputDevice,
	)
	cfg.Audio.SampleRate = envOrDefaultInt("PARLEY_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("PARLEY_CHANNELS", cfg.Audio.Channels)

	cfg.Rules.Path = envOrDefault("PARLEY_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("PARLEY_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)
	cfg.Rules.Watch = envOrDefaultBool("PARLEY_RULES_WATCH", cfg.Rules.Watch)

	cfg.Session.ChunkSize = envOrDefaultInt("PARLEY_AUDIO_CHUNK_SIZE", cfg.Session.ChunkSize)
	cfg.Session.StopGrace = envOrDefaultMillis("PARLEY_STOP_GRACE_MS", cfg.Session.StopGrace)
	cfg.Session.StreamTimeout = envOrDefaultMillis("PARLEY_STREAM_TIMEOUT_MS", cfg.Session.StreamTimeout)

	cfg.Identity.Path = envOrDefault("PARLEY_IDENTITY_FILE", cfg.Identity.Path)
	cfg.Log.Level = envOrDefault("PARLEY_LOG_LEVEL", cfg.Log.Level)
}

func sanitize(cfg *Config) {
	if cfg.Chat.Timeout <= 0 {
		cfg.Chat.Timeout = 30 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.StopGrace < 0 {
		cfg.Session.StopGrace = 0
	}
	if cfg.Session.StreamTimeout <= 0 {
		cfg.Session.StreamTimeout = 4 * time.Second
	}
	if cfg.Deepgram.UtteranceEndMs < 0 {
		cfg.Deepgram.UtteranceEndMs = 0
	}
	if cfg.Deepgram.EndpointingMs < 0 {
		cfg.Deepgram.EndpointingMs = 0
	}
	if cfg.Deepgram.CloseTimeout <= 0 {
		cfg.Deepgram.CloseTimeout = 3 * time.Second
	}
	if cfg.Deepgram.KeepAlive <= 0 {
		cfg.Deepgram.KeepAlive = 5 * time.Second
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
