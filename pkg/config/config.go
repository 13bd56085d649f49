package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Line     LineConfig     `json:"line"`
	OpenAI   OpenAIConfig   `json:"openai"`
	Chat     ChatConfig     `json:"chat"`
	Storage  StorageConfig  `json:"storage"`
	Gateway  GatewayConfig  `json:"gateway"`
	LogLevel string         `json:"log_level" env:"CHATRELAY_LOG_LEVEL"`
}

type LineConfig struct {
	ChannelSecret string `json:"channel_secret" env:"CHATRELAY_LINE_CHANNEL_SECRET"`
	ChannelToken  string `json:"channel_token" env:"CHATRELAY_LINE_CHANNEL_TOKEN"`
	BotUserID     string `json:"bot_user_id" env:"CHATRELAY_LINE_BOT_USER_ID"`
	APIBase       string `json:"api_base" env:"CHATRELAY_LINE_API_BASE"`
	DataAPIBase   string `json:"data_api_base" env:"CHATRELAY_LINE_DATA_API_BASE"`
}

type OpenAIConfig struct {
	APIBase     string `json:"api_base" env:"CHATRELAY_OPENAI_API_BASE"`
	ModelEngine string `json:"model_engine" env:"CHATRELAY_OPENAI_MODEL_ENGINE"`
	Proxy       string `json:"proxy,omitempty" env:"CHATRELAY_OPENAI_PROXY"`
}

type ChatConfig struct {
	SystemMessage string `json:"system_message" env:"CHATRELAY_CHAT_SYSTEM_MESSAGE"`
	MemoryCount   int    `json:"memory_count" env:"CHATRELAY_CHAT_MEMORY_COUNT"`
	CacheSize     int    `json:"cache_size" env:"CHATRELAY_CHAT_CACHE_SIZE"`
}

type StorageConfig struct {
	Backend string `json:"backend" env:"CHATRELAY_STORAGE_BACKEND"` // "file" or "sqlite"
	Path    string `json:"path" env:"CHATRELAY_STORAGE_PATH"`
}

type GatewayConfig struct {
	Host      string `json:"host" env:"CHATRELAY_GATEWAY_HOST"`
	Port      int    `json:"port" env:"CHATRELAY_GATEWAY_PORT"`
	StatsCron string `json:"stats_cron" env:"CHATRELAY_GATEWAY_STATS_CRON"`
}

func DefaultConfig() *Config {
	return &Config{
		Line: LineConfig{
			APIBase:     "https://api.line.me",
			DataAPIBase: "https://api-data.line.me",
		},
		OpenAI: OpenAIConfig{
			APIBase:     "https://api.openai.com/v1",
			ModelEngine: "gpt-3.5-turbo",
		},
		Chat: ChatConfig{
			SystemMessage: "You are a helpful assistant.",
			MemoryCount:   2,
			CacheSize:     1000,
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "~/.chatrelay/db.json",
		},
		Gateway: GatewayConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			StatsCron: "*/10 * * * *",
		},
		LogLevel: "info",
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// StoragePath returns the credential store path with ~ expanded.
func (c *Config) StoragePath() string {
	return expandHome(c.Storage.Path)
}

// Validate checks the settings the serve command cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Line.ChannelSecret) == "" {
		missing = append(missing, "line.channel_secret")
	}
	if strings.TrimSpace(c.Line.ChannelToken) == "" {
		missing = append(missing, "line.channel_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.Chat.CacheSize <= 0 {
		return fmt.Errorf("chat.cache_size must be positive, got %d", c.Chat.CacheSize)
	}
	if c.Chat.MemoryCount <= 0 {
		return fmt.Errorf("chat.memory_count must be positive, got %d", c.Chat.MemoryCount)
	}
	return nil
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
