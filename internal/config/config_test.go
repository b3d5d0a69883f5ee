package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}

	if cfg.Chat.IdleTimeout != 30*time.Second {
		t.Errorf("Expected 30s idle timeout, got %s", cfg.Chat.IdleTimeout)
	}
	if cfg.Chat.CheckInterval != 15*time.Second {
		t.Errorf("Expected 15s check interval, got %s", cfg.Chat.CheckInterval)
	}
	if cfg.Chat.AutoReplyDelayMin != time.Second || cfg.Chat.AutoReplyDelayMax != 3*time.Second {
		t.Error("Unexpected auto-reply delay window defaults")
	}
}

func TestValidate_CheckIntervalMustBeShorterThanIdleTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.CheckInterval = cfg.Chat.IdleTimeout
	if err := cfg.Validate(); err == nil {
		t.Error("Check interval equal to idle timeout accepted")
	}

	cfg.Chat.CheckInterval = cfg.Chat.IdleTimeout + time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("Check interval above idle timeout accepted")
	}
}

func TestValidate_AutoReplyWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.AutoReplyDelayMax = cfg.Chat.AutoReplyDelayMin - time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("Inverted auto-reply delay window accepted")
	}

	cfg = DefaultConfig()
	cfg.Chat.AutoReplyDelayMin = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Zero auto-reply delay minimum accepted")
	}
}

func TestValidate_RejectsMissingSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Missing chat section accepted")
	}

	cfg = DefaultConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Zero HTTP port accepted")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_HTTP_PORT", "9099")
	t.Setenv("CHAT_DATABASE_PATH", "/tmp/env-chat.db")
	t.Setenv("CHAT_IDLE_TIMEOUT", "45s")
	t.Setenv("CHAT_CHECK_INTERVAL", "20s")
	t.Setenv("CHAT_HISTORY_PAGE_SIZE", "25")

	cfg := LoadFromEnv()

	if cfg.HTTP.Port != 9099 {
		t.Errorf("Expected port 9099, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Path != "/tmp/env-chat.db" {
		t.Errorf("Unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Chat.IdleTimeout != 45*time.Second || cfg.Chat.CheckInterval != 20*time.Second {
		t.Error("Liveness thresholds not taken from environment")
	}
	if cfg.Chat.HistoryPageSize != 25 {
		t.Errorf("Expected page size 25, got %d", cfg.Chat.HistoryPageSize)
	}
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CHAT_HTTP_PORT", "not-a-number")
	t.Setenv("CHAT_IDLE_TIMEOUT", "soon")

	cfg := LoadFromEnv()
	defaults := DefaultConfig()

	if cfg.HTTP.Port != defaults.HTTP.Port {
		t.Error("Malformed port overrode the default")
	}
	if cfg.Chat.IdleTimeout != defaults.Chat.IdleTimeout {
		t.Error("Malformed duration overrode the default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 9100, "host": "127.0.0.1"},
		"chat": {"idle_timeout": "60s", "check_interval": "25s", "history_page_size": 10}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.HTTP.Port != 9100 || cfg.HTTP.Host != "127.0.0.1" {
		t.Error("HTTP section not taken from file")
	}
	if cfg.Chat.IdleTimeout != 60*time.Second || cfg.Chat.CheckInterval != 25*time.Second {
		t.Error("Chat section not taken from file")
	}
	// Unspecified values keep their defaults.
	if cfg.WebSocket.BufferSize != DefaultConfig().WebSocket.BufferSize {
		t.Error("Unspecified value lost its default")
	}
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"chat": {"idle_timeout": "10s", "check_interval": "10s"}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Error("Invalid file config accepted")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("CHAT_HTTP_PORT", "9200")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 9300}}`), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	// File wins over environment.
	cfg := LoadConfigWithPrecedence(path)
	if cfg.HTTP.Port != 9300 {
		t.Errorf("Expected file port 9300, got %d", cfg.HTTP.Port)
	}

	// Without a file, environment wins over defaults.
	cfg = LoadConfigWithPrecedence("")
	if cfg.HTTP.Port != 9200 {
		t.Errorf("Expected env port 9200, got %d", cfg.HTTP.Port)
	}

	// An unreadable file falls back to environment.
	cfg = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	if cfg.HTTP.Port != 9200 {
		t.Errorf("Expected env port 9200 on file error, got %d", cfg.HTTP.Port)
	}
}
