package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"empty host", func(c *Config) { c.Server.Host = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero history depth", func(c *Config) { c.Editing.HistoryDepth = 0 }},
		{"inverted gain bounds", func(c *Config) { c.Editing.MinTrackGainDB = 20 }},
		{"zero tick interval", func(c *Config) { c.Playback.TickIntervalMs = 0 }},
		{"low sample rate", func(c *Config) { c.Render.SampleRate = 4000 }},
		{"positive peak ceiling", func(c *Config) { c.Render.PeakCeilingDB = 1 }},
		{"no supported formats", func(c *Config) { c.Assets.SupportedFormats = nil }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected default config file to be created: %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Server.Port = "9999"
	cfg.Editing.HistoryDepth = 25
	cfg.Render.TargetLUFS = -19
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Server.Port != "9999" {
		t.Errorf("port = %q, want 9999", loaded.Server.Port)
	}
	if loaded.Editing.HistoryDepth != 25 {
		t.Errorf("history depth = %d, want 25", loaded.Editing.HistoryDepth)
	}
	if loaded.Render.TargetLUFS != -19 {
		t.Errorf("target lufs = %f, want -19", loaded.Render.TargetLUFS)
	}
}

func TestProducerURLEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := DefaultConfig().SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	t.Setenv("BOOKX_PRODUCER_URL", "http://producer.local/generate")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Assets.ProducerURL != "http://producer.local/generate" {
		t.Errorf("producer url = %q, want env override", cfg.Assets.ProducerURL)
	}
}

func TestGetAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "8081"
	if got := cfg.GetAddress(); got != "127.0.0.1:8081" {
		t.Errorf("address = %q", got)
	}
}

func TestIsFormatSupported(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsFormatSupported(".wav") {
		t.Error(".wav should be supported by default")
	}
	if cfg.IsFormatSupported(".ogg") {
		t.Error(".ogg should not be supported by default")
	}
}
