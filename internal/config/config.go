// Package config loads the hub's YAML configuration, falling back to
// built-in defaults when no file is present.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Fallback identifiers used when no configuration names the peripheral's
// service and characteristic.
const (
	DefaultServiceUUID        = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	DefaultCharacteristicUUID = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
)

// Config holds all application configuration.
type Config struct {
	BLE      BLEConfig    `yaml:"ble"`
	Audio    AudioConfig  `yaml:"audio"`
	Server   ServerConfig `yaml:"server"`
	LogLevel string       `yaml:"log_level"`
}

// BLEConfig identifies the peripheral endpoint and connection behavior.
type BLEConfig struct {
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`
	ConnectTimeoutMs   int    `yaml:"connect_timeout_ms"`
	Simulate           bool   `yaml:"simulate"`
}

// ConnectTimeout returns the connect window as a duration.
func (c BLEConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// AudioConfig holds alarm playback settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	ToneHz     int    `yaml:"tone_hz"`
	ToneMs     int    `yaml:"tone_ms"`
	WAVPath    string `yaml:"wav_path"` // optional alarm asset, overrides the tone
}

// ServerConfig holds the status/WebSocket server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "nasa-hub")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		BLE: BLEConfig{
			ServiceUUID:        DefaultServiceUUID,
			CharacteristicUUID: DefaultCharacteristicUUID,
			ConnectTimeoutMs:   10000,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			ToneHz:     880,
			ToneMs:     400,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if !uuidRe.MatchString(c.BLE.ServiceUUID) {
		return fmt.Errorf("ble.service_uuid %q is not a valid UUID", c.BLE.ServiceUUID)
	}
	if !uuidRe.MatchString(c.BLE.CharacteristicUUID) {
		return fmt.Errorf("ble.characteristic_uuid %q is not a valid UUID", c.BLE.CharacteristicUUID)
	}

	if c.BLE.ConnectTimeoutMs <= 0 {
		return fmt.Errorf("ble.connect_timeout_ms must be > 0")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.ToneHz <= 0 {
		return fmt.Errorf("audio.tone_hz must be > 0")
	}
	if c.Audio.ToneMs <= 0 {
		return fmt.Errorf("audio.tone_ms must be > 0")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level string to a slog level. Unknown
// values fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
