package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Assets   AssetsConfig   `toml:"assets"`
	Editing  EditingConfig  `toml:"editing"`
	Playback PlaybackConfig `toml:"playback"`
	Render   RenderConfig   `toml:"render"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// AssetsConfig contains audio asset storage configuration
type AssetsConfig struct {
	StoragePath      string   `toml:"storage_path"`
	ImportPath       string   `toml:"import_path"`
	WatchImports     bool     `toml:"watch_imports"`
	ProducerURL      string   `toml:"producer_url"`
	SupportedFormats []string `toml:"supported_formats"`
}

// EditingConfig contains edit engine policy knobs
type EditingConfig struct {
	HistoryDepth   int     `toml:"history_depth"`
	MaxTrackGainDB float64 `toml:"max_track_gain_db"`
	MinTrackGainDB float64 `toml:"min_track_gain_db"`
}

// PlaybackConfig contains playback scheduler configuration
type PlaybackConfig struct {
	TickIntervalMs int `toml:"tick_interval_ms"`
	SampleRate     int `toml:"sample_rate"`
}

// RenderConfig contains render pipeline configuration
type RenderConfig struct {
	OutputPath    string  `toml:"output_path"`
	SampleRate    int     `toml:"sample_rate"`
	TargetLUFS    float64 `toml:"target_lufs"`
	PeakCeilingDB float64 `toml:"peak_ceiling_db"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	RequestLogging bool   `toml:"request_logging"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		Database: DatabaseConfig{
			Path:           "./bookx.db",
			MaxConnections: 10,
		},
		Assets: AssetsConfig{
			StoragePath:      "./assets",
			ImportPath:       "./import",
			WatchImports:     true,
			ProducerURL:      "",
			SupportedFormats: []string{".wav", ".flac", ".mp3"},
		},
		Editing: EditingConfig{
			HistoryDepth:   50,
			MaxTrackGainDB: 12,
			MinTrackGainDB: -20,
		},
		Playback: PlaybackConfig{
			TickIntervalMs: 50,
			SampleRate:     44100,
		},
		Render: RenderConfig{
			OutputPath:    "./renders",
			SampleRate:    44100,
			TargetLUFS:    -20,
			PeakCeilingDB: -3,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: false,
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment override for the producer endpoint (set via .env)
	if url := os.Getenv("BOOKX_PRODUCER_URL"); url != "" {
		cfg.Assets.ProducerURL = url
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create or open file
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Write header comment
	header := `# Bookx Studio Configuration
# This file contains all configuration options for the Bookx audiobook
# production server. Edit the values below to customize your setup.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	// Encode configuration to TOML
	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	// Validate database config
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	// Validate asset config
	if c.Assets.StoragePath == "" {
		return fmt.Errorf("asset storage path cannot be empty")
	}
	if len(c.Assets.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	// Validate editing config
	if c.Editing.HistoryDepth < 1 {
		return fmt.Errorf("history depth must be at least 1")
	}
	if c.Editing.MinTrackGainDB >= c.Editing.MaxTrackGainDB {
		return fmt.Errorf("min track gain must be below max track gain")
	}

	// Validate playback config
	if c.Playback.TickIntervalMs < 1 {
		return fmt.Errorf("playback tick interval must be at least 1 ms")
	}
	if c.Playback.SampleRate < 8000 {
		return fmt.Errorf("playback sample rate must be at least 8000 Hz")
	}

	// Validate render config
	if c.Render.OutputPath == "" {
		return fmt.Errorf("render output path cannot be empty")
	}
	if c.Render.SampleRate < 8000 {
		return fmt.Errorf("render sample rate must be at least 8000 Hz")
	}
	if c.Render.PeakCeilingDB > 0 {
		return fmt.Errorf("render peak ceiling must not be above 0 dBFS")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Assets.SupportedFormats {
		if supported == format {
			return true
		}
	}
	return false
}
