// Package config loads and persists the dictation core configuration.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Defaults applied when a field is absent from the config file.
const (
	DefaultRequestTimeoutSeconds = 120
	DefaultHealthTimeoutSeconds  = 5
	DefaultSampleRate            = 16000
	DefaultLongThresholdSeconds  = 30
)

// Config holds every knob the dictation core reads. It is constructed once
// at startup and passed explicitly to the components that need it; nothing
// reads ambient process state after load.
type Config struct {
	// ServerURL is the transcription server base address, e.g.
	// "http://localhost:8000". Empty means not configured yet.
	ServerURL string `json:"server_url"`
	// RequestTimeoutSeconds bounds one transcription POST.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
	// HealthTimeoutSeconds bounds one health probe.
	HealthTimeoutSeconds int `json:"health_timeout_seconds"`
	// SampleRate is the capture rate in Hz; the server resamples to 16 kHz.
	SampleRate int `json:"sample_rate"`
	// RecordingsDir is where WAV files and transcripts land.
	RecordingsDir string `json:"recordings_dir"`
	// LongThresholdSeconds routes longer recordings to /transcribe/long.
	LongThresholdSeconds int `json:"long_threshold_seconds"`
	// KeepAudio skips the post-upload deletion of the WAV file.
	KeepAudio bool `json:"keep_audio,omitempty"`
	// SaveTranscripts persists successful transcripts next to recordings.
	SaveTranscripts bool `json:"save_transcripts"`
}

// Default returns a Config populated with defaults. The server URL is left
// empty: the transcribe client reports InvalidEndpoint until one is set.
func Default() *Config {
	return &Config{
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		HealthTimeoutSeconds:  DefaultHealthTimeoutSeconds,
		SampleRate:            DefaultSampleRate,
		RecordingsDir:         filepath.Join(os.Getenv("HOME"), ".local", "share", "medasr", "recordings"),
		LongThresholdSeconds:  DefaultLongThresholdSeconds,
		SaveTranscripts:       true,
	}
}

// Path returns the user config file location.
func Path() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "medasr", "config.json")
}

// Load reads configuration from ~/.config/medasr/config.json. A missing file
// is not an error: defaults are returned and the directory is created so a
// later Save succeeds.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(Path()), 0755); err != nil {
				return nil, fmt.Errorf("create config directory: %w", err)
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save validates and writes the configuration with indentation for hand
// editing.
func Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(Path()), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(), data, 0644)
}

func applyDefaults(cfg *Config) {
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if cfg.HealthTimeoutSeconds == 0 {
		cfg.HealthTimeoutSeconds = DefaultHealthTimeoutSeconds
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.LongThresholdSeconds == 0 {
		cfg.LongThresholdSeconds = DefaultLongThresholdSeconds
	}
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = Default().RecordingsDir
	}
}

// Validate checks field ranges. The server URL may be empty (not configured
// yet) but when present must be an absolute http(s) address.
func (c *Config) Validate() error {
	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("server_url %q is not an absolute address", c.ServerURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server_url scheme must be http or https, got %q", u.Scheme)
		}
	}
	if c.RequestTimeoutSeconds < 1 || c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds must be between 1 and 600, got %d", c.RequestTimeoutSeconds)
	}
	if c.HealthTimeoutSeconds < 1 || c.HealthTimeoutSeconds > 60 {
		return fmt.Errorf("health_timeout_seconds must be between 1 and 60, got %d", c.HealthTimeoutSeconds)
	}
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000, got %d", c.SampleRate)
	}
	if c.LongThresholdSeconds < 1 {
		return fmt.Errorf("long_threshold_seconds must be at least 1, got %d", c.LongThresholdSeconds)
	}
	if c.RecordingsDir == "" {
		return fmt.Errorf("recordings_dir must not be empty")
	}
	return nil
}
