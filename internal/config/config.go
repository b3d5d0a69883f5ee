package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator for the chat server.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Chat      *ChatConfig      `json:"chat"`
}

// DatabaseConfig configures the SQLite chat store.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig configures the echo server hosting /ws and the ops API.
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig configures the transport layer.
type WebSocketConfig struct {
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// ChatConfig configures the messaging core: liveness thresholds, the
// auto-reply delay window and history paging.
type ChatConfig struct {
	IdleTimeout       time.Duration `json:"idle_timeout"`
	CheckInterval     time.Duration `json:"check_interval"`
	AutoReplyDelayMin time.Duration `json:"auto_reply_delay_min"`
	AutoReplyDelayMax time.Duration `json:"auto_reply_delay_max"`
	HistoryPageSize   int           `json:"history_page_size"`
}

// DefaultConfig returns production defaults. The 15s liveness check against
// the 30s idle threshold keeps a 2x margin so check jitter can never evict a
// live connection.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./chat.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Chat: &ChatConfig{
			IdleTimeout:       30 * time.Second,
			CheckInterval:     15 * time.Second,
			AutoReplyDelayMin: 1 * time.Second,
			AutoReplyDelayMax: 3 * time.Second,
			HistoryPageSize:   50,
		},
	}
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.IdleTimeout <= 0 {
		return fmt.Errorf("chat idle timeout must be positive")
	}
	if c.Chat.CheckInterval <= 0 {
		return fmt.Errorf("chat check interval must be positive")
	}
	// The sweep must run strictly more often than the idle threshold or a
	// live connection could cross the threshold unobserved.
	if c.Chat.CheckInterval >= c.Chat.IdleTimeout {
		return fmt.Errorf("chat check interval must be shorter than idle timeout")
	}
	if c.Chat.AutoReplyDelayMin <= 0 || c.Chat.AutoReplyDelayMax < c.Chat.AutoReplyDelayMin {
		return fmt.Errorf("auto-reply delay window is invalid")
	}
	if c.Chat.HistoryPageSize <= 0 {
		return fmt.Errorf("history page size must be positive")
	}

	return nil
}

// LoadFromEnv builds a config from environment variables over the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("CHAT_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("CHAT_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("CHAT_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("CHAT_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if readTimeout := os.Getenv("CHAT_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("CHAT_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("CHAT_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("CHAT_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}
	if idleTimeout := os.Getenv("CHAT_IDLE_TIMEOUT"); idleTimeout != "" {
		if timeout, err := time.ParseDuration(idleTimeout); err == nil {
			config.Chat.IdleTimeout = timeout
		}
	}
	if checkInterval := os.Getenv("CHAT_CHECK_INTERVAL"); checkInterval != "" {
		if interval, err := time.ParseDuration(checkInterval); err == nil {
			config.Chat.CheckInterval = interval
		}
	}
	if pageSize := os.Getenv("CHAT_HISTORY_PAGE_SIZE"); pageSize != "" {
		if size, err := strconv.Atoi(pageSize); err == nil {
			config.Chat.HistoryPageSize = size
		}
	}

	return config
}

// ConfigFile is the JSON file schema. Durations are strings so operators can
// write "30s" instead of nanosecond counts.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Chat      *ChatConfigFile      `json:"chat"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type ChatConfigFile struct {
	IdleTimeout       string `json:"idle_timeout"`
	CheckInterval     string `json:"check_interval"`
	AutoReplyDelayMin string `json:"auto_reply_delay_min"`
	AutoReplyDelayMax string `json:"auto_reply_delay_max"`
	HistoryPageSize   int    `json:"history_page_size"`
}

// LoadFromFile reads a JSON config file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if configFile.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.Chat != nil {
		if configFile.Chat.HistoryPageSize > 0 {
			config.Chat.HistoryPageSize = configFile.Chat.HistoryPageSize
		}
		if configFile.Chat.IdleTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Chat.IdleTimeout); err == nil {
				config.Chat.IdleTimeout = timeout
			}
		}
		if configFile.Chat.CheckInterval != "" {
			if interval, err := time.ParseDuration(configFile.Chat.CheckInterval); err == nil {
				config.Chat.CheckInterval = interval
			}
		}
		if configFile.Chat.AutoReplyDelayMin != "" {
			if d, err := time.ParseDuration(configFile.Chat.AutoReplyDelayMin); err == nil {
				config.Chat.AutoReplyDelayMin = d
			}
		}
		if configFile.Chat.AutoReplyDelayMax != "" {
			if d, err := time.ParseDuration(configFile.Chat.AutoReplyDelayMax); err == nil {
				config.Chat.AutoReplyDelayMax = d
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > env > defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// File errors are non-fatal; environment/defaults still apply.
	}

	return config
}
