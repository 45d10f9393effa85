// Package config provides the configuration structure for the voice agent.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// ServiceConfig holds the HTTP service mode settings.
type ServiceConfig struct {
	ListenAddress string `toml:"listen_address"`
}

// NATSConfig holds the worker mode settings. The worker is disabled unless
// a URL is configured.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobSubject             string `toml:"job_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	InlineAudioLimitBytes  int    `toml:"inline_audio_limit_bytes"`
}

// KokoroConfig holds the settings for the local Kokoro engine.
type KokoroConfig struct {
	BinaryPath     string   `toml:"binary_path"`
	ModelPath      string   `toml:"model_path"`
	Presets        []string `toml:"presets"`
	DefaultPreset  string   `toml:"default_preset"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// ZonosConfig holds the settings for the Zonos model service.
type ZonosConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BackendsConfig selects and configures the synthesis backends.
type BackendsConfig struct {
	Default string       `toml:"default"`
	Kokoro  KokoroConfig `toml:"kokoro"`
	Zonos   ZonosConfig  `toml:"zonos"`
}

// StoreConfig holds the voice store settings.
type StoreConfig struct {
	DatabasePath string `toml:"database_path"`
}

// LimitsConfig bounds what a single job may ask for. Zero values select the
// built-in defaults.
type LimitsConfig struct {
	MinSpeed          float64 `toml:"min_speed"`
	MaxSpeed          float64 `toml:"max_speed"`
	MaxTextChars      int     `toml:"max_text_chars"`
	JobTimeoutSeconds int     `toml:"job_timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	NATS     NATSConfig     `toml:"nats"`
	Backends BackendsConfig `toml:"backends"`
	Store    StoreConfig    `toml:"store"`
	Limits   LimitsConfig   `toml:"limits"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the voice agent.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
