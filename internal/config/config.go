// Package config provides the configuration structure for storylab.
package config

import (
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Environment variables holding provider credentials. Credentials are
// never read from the TOML file.
const (
	EnvLLMAPIKey         = "DEEPSEEK_API_KEY"
	EnvMiniMaxAPIKey     = "MINIMAX_API_KEY"
	EnvMiniMaxGroupID    = "MINIMAX_GROUP_ID"
	EnvReplicateAPIToken = "REPLICATE_API_TOKEN"
	EnvElevenLabsAPIKey  = "ELEVENLABS_API_KEY"
)

// Defaults applied when the TOML file leaves a field unset.
const (
	defaultListenAddr          = ":8080"
	defaultPublicDir           = "public"
	defaultLLMBaseURL          = "https://api.deepseek.com"
	defaultLLMModel            = "deepseek-chat"
	defaultLLMTemperature      = 0.7
	defaultMiniMaxBaseURL      = "https://api.minimax.chat"
	defaultMiniMaxModel        = "speech-01-turbo"
	defaultMiniMaxSampleRate   = 32000
	defaultMiniMaxBitrate      = 128000
	defaultMiniMaxFormat       = "wav"
	defaultReplicateBaseURL    = "https://api.replicate.com"
	defaultReplicateSpeed      = 1.1
	defaultPollIntervalSeconds = 1
	defaultPollMaxAttempts     = 300
	defaultElevenLabsBaseURL   = "https://api.elevenlabs.io"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	PublicDir  string `toml:"public_dir"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// LLMConfig holds the chat-completion provider configuration.
type LLMConfig struct {
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
}

// NarrationConfig holds both narration providers. The zh path is the
// synchronous provider; the en path is the asynchronous job provider.
type NarrationConfig struct {
	ZhBaseURL           string  `toml:"zh_base_url"`
	ZhModel             string  `toml:"zh_model"`
	ZhSampleRate        int     `toml:"zh_sample_rate"`
	ZhBitrate           int     `toml:"zh_bitrate"`
	ZhFormat            string  `toml:"zh_format"`
	EnBaseURL           string  `toml:"en_base_url"`
	EnModelVersion      string  `toml:"en_model_version"`
	EnSpeed             float64 `toml:"en_speed"`
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	PollMaxAttempts     int     `toml:"poll_max_attempts"`
}

// SoundEffectsConfig holds the sound-effect provider configuration.
type SoundEffectsConfig struct {
	BaseURL string `toml:"base_url"`
}

// NATSConfig holds the optional event publishing configuration. An empty
// URL disables publishing.
type NATSConfig struct {
	URL                       string `toml:"url"`
	NarrationCreatedSubject   string `toml:"narration_created_subject"`
	SoundEffectCreatedSubject string `toml:"sound_effect_created_subject"`
}

// Credentials holds provider secrets resolved from the environment.
type Credentials struct {
	LLMAPIKey         string `toml:"-"`
	MiniMaxAPIKey     string `toml:"-"`
	MiniMaxGroupID    string `toml:"-"`
	ReplicateAPIToken string `toml:"-"`
	ElevenLabsAPIKey  string `toml:"-"`
}

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Paths        PathsConfig        `toml:"paths"`
	LLM          LLMConfig          `toml:"llm"`
	Narration    NarrationConfig    `toml:"narration"`
	SoundEffects SoundEffectsConfig `toml:"sound_effects"`
	NATS         NATSConfig         `toml:"nats"`
	Credentials  Credentials        `toml:"-"`
}

// Load loads the configuration for storylab and resolves credentials from
// the environment.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.Credentials = CredentialsFromEnv()

	return &cfg, nil
}

// CredentialsFromEnv reads all provider credentials from the environment.
// Absent variables yield empty strings; the gateways fail fast per call.
func CredentialsFromEnv() Credentials {
	return Credentials{
		LLMAPIKey:         os.Getenv(EnvLLMAPIKey),
		MiniMaxAPIKey:     os.Getenv(EnvMiniMaxAPIKey),
		MiniMaxGroupID:    os.Getenv(EnvMiniMaxGroupID),
		ReplicateAPIToken: os.Getenv(EnvReplicateAPIToken),
		ElevenLabsAPIKey:  os.Getenv(EnvElevenLabsAPIKey),
	}
}

// ApplyDefaults fills every unset field with its documented default.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}

	if c.Server.PublicDir == "" {
		c.Server.PublicDir = defaultPublicDir
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}

	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}

	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = defaultLLMTemperature
	}

	if c.Narration.ZhBaseURL == "" {
		c.Narration.ZhBaseURL = defaultMiniMaxBaseURL
	}

	if c.Narration.ZhModel == "" {
		c.Narration.ZhModel = defaultMiniMaxModel
	}

	if c.Narration.ZhSampleRate == 0 {
		c.Narration.ZhSampleRate = defaultMiniMaxSampleRate
	}

	if c.Narration.ZhBitrate == 0 {
		c.Narration.ZhBitrate = defaultMiniMaxBitrate
	}

	if c.Narration.ZhFormat == "" {
		c.Narration.ZhFormat = defaultMiniMaxFormat
	}

	if c.Narration.EnBaseURL == "" {
		c.Narration.EnBaseURL = defaultReplicateBaseURL
	}

	if c.Narration.EnSpeed == 0 {
		c.Narration.EnSpeed = defaultReplicateSpeed
	}

	if c.Narration.PollIntervalSeconds == 0 {
		c.Narration.PollIntervalSeconds = defaultPollIntervalSeconds
	}

	if c.Narration.PollMaxAttempts == 0 {
		c.Narration.PollMaxAttempts = defaultPollMaxAttempts
	}

	if c.SoundEffects.BaseURL == "" {
		c.SoundEffects.BaseURL = defaultElevenLabsBaseURL
	}
}
