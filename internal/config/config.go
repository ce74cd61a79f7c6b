package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigEnv names the environment variable pointing at an optional YAML file.
const ConfigEnv = "ANAMNESIS_CONFIG"

type Config struct {
	Addr          string              `yaml:"addr"`
	LogLevel      string              `yaml:"log_level"`
	Metrics       bool                `yaml:"metrics"`
	Recordings    RecordingsConfig    `yaml:"recordings"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summarization SummarizationConfig `yaml:"summarization"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Whisper       WhisperConfig       `yaml:"whisper"`
}

type RecordingsConfig struct {
	Dir       string `yaml:"dir"`
	Container string `yaml:"container"`
}

type CaptureConfig struct {
	SampleRate   int `yaml:"sample_rate"`
	PollWaitMs   int `yaml:"poll_wait_ms"`
	IdlePauseMs  int `yaml:"idle_pause_ms"`
	BufferFrames int `yaml:"buffer_frames"`
}

type TranscriptionConfig struct {
	// Provider is "openai", "local" or "none".
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

type SummarizationConfig struct {
	// Provider is "openai", "gemini" or "none".
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type WhisperConfig struct {
	ModelPath string `yaml:"model_path"`
	Threads   int    `yaml:"threads"`
	// MaxSeconds caps local clips; Load defaults it to 600 and an explicit
	// zero disables the cap.
	MaxSeconds int `yaml:"max_seconds"`
}

func (c CaptureConfig) PollWait() time.Duration {
	return time.Duration(c.PollWaitMs) * time.Millisecond
}

func (c CaptureConfig) IdlePause() time.Duration {
	return time.Duration(c.IdlePauseMs) * time.Millisecond
}

func (c TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c SummarizationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c TranscriptionConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c *Config) Validate() error {
	switch c.Recordings.Container {
	case "":
		c.Recordings.Container = "wav"
	case "wav", "raw":
	default:
		return fmt.Errorf("recordings.container must be wav or raw, got %q", c.Recordings.Container)
	}
	switch c.Transcription.Provider {
	case "":
		c.Transcription.Provider = "openai"
	case "openai", "none":
	case "local":
		if c.Whisper.ModelPath == "" {
			return errors.New("whisper.model_path is required for the local transcription provider")
		}
	default:
		return fmt.Errorf("unknown transcription.provider %q", c.Transcription.Provider)
	}
	switch c.Summarization.Provider {
	case "":
		c.Summarization.Provider = "openai"
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown summarization.provider %q", c.Summarization.Provider)
	}
	if c.Capture.SampleRate < 0 || c.Capture.PollWaitMs < 0 || c.Capture.IdlePauseMs < 0 {
		return errors.New("capture settings must not be negative")
	}
	if c.Whisper.MaxSeconds < 0 {
		return errors.New("whisper.max_seconds must not be negative")
	}

	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Recordings.Dir == "" {
		c.Recordings.Dir = filepath.Join(os.TempDir(), "anamnesis")
	}
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.PollWaitMs == 0 {
		c.Capture.PollWaitMs = 1000
	}
	if c.Capture.IdlePauseMs == 0 {
		c.Capture.IdlePauseMs = 10
	}
	if c.Capture.BufferFrames <= 0 {
		c.Capture.BufferFrames = 256
	}
	if c.Transcription.MaxUploadMB <= 0 {
		c.Transcription.MaxUploadMB = 25
	}
	if c.Transcription.TimeoutSec <= 0 {
		c.Transcription.TimeoutSec = 120
	}
	if c.Summarization.TimeoutSec <= 0 {
		c.Summarization.TimeoutSec = 30
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

const defaultWhisperMaxSeconds = 600

// LoadFile reads a YAML config file without applying defaults.
func LoadFile(path string) (Config, error) {
	var cfg Config
	err := loadInto(path, &cfg)
	return cfg, err
}

// loadInto overlays the file at path onto cfg; keys absent from the file keep their value.
func loadInto(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Load builds the runtime configuration: .env (if present), then the YAML
// file named by ANAMNESIS_CONFIG (if set), then individual environment
// variables, then defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{Metrics: true, Whisper: WhisperConfig{MaxSeconds: defaultWhisperMaxSeconds}}
	if path := os.Getenv(ConfigEnv); path != "" {
		if err := loadInto(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Addr = getenv("ANAMNESIS_ADDR", c.Addr)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.Metrics = getenvBool("METRICS_ENABLED", c.Metrics)

	c.Recordings.Dir = getenv("RECORDINGS_DIR", c.Recordings.Dir)
	c.Recordings.Container = getenv("RECORDINGS_CONTAINER", c.Recordings.Container)

	c.Capture.SampleRate = getenvInt("CAPTURE_SAMPLE_RATE", c.Capture.SampleRate)
	c.Capture.PollWaitMs = getenvInt("CAPTURE_POLL_WAIT_MS", c.Capture.PollWaitMs)
	c.Capture.IdlePauseMs = getenvInt("CAPTURE_IDLE_PAUSE_MS", c.Capture.IdlePauseMs)

	c.Transcription.Provider = getenv("TRANSCRIPTION_PROVIDER", c.Transcription.Provider)
	c.Transcription.Model = getenv("TRANSCRIPTION_MODEL", c.Transcription.Model)
	c.Transcription.Language = getenv("TRANSCRIPTION_LANGUAGE", c.Transcription.Language)
	c.Transcription.MaxUploadMB = getenvInt("MAX_UPLOAD_MB", c.Transcription.MaxUploadMB)
	c.Transcription.TimeoutSec = getenvInt("TRANSCRIPTION_TIMEOUT", c.Transcription.TimeoutSec)

	c.Summarization.Provider = getenv("SUMMARIZATION_PROVIDER", c.Summarization.Provider)
	c.Summarization.Model = getenv("SUMMARIZATION_MODEL", c.Summarization.Model)
	c.Summarization.TimeoutSec = getenvInt("SUMMARIZATION_TIMEOUT", c.Summarization.TimeoutSec)

	c.OpenAI.APIKey = getenv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getenv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.Gemini.APIKey = getenv("GEMINI_API_KEY", c.Gemini.APIKey)

	c.Whisper.ModelPath = getenv("WHISPER_MODEL_PATH", c.Whisper.ModelPath)
	c.Whisper.Threads = getenvInt("WHISPER_THREADS", c.Whisper.Threads)
	c.Whisper.MaxSeconds = getenvInt("WHISPER_MAX_SECONDS", c.Whisper.MaxSeconds)
}
