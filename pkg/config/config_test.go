package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_ChatDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chat.CacheSize != 1000 {
		t.Errorf("CacheSize = %d, want 1000", cfg.Chat.CacheSize)
	}
	if cfg.Chat.MemoryCount != 2 {
		t.Errorf("MemoryCount = %d, want 2", cfg.Chat.MemoryCount)
	}
	if cfg.OpenAI.ModelEngine == "" {
		t.Error("ModelEngine should not be empty")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Gateway.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Gateway.Port)
	}
}

func TestLoadConfig_FileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"chat": {"memory_count": 5}, "gateway": {"port": 9000}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHATRELAY_GATEWAY_PORT", "9999")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Chat.MemoryCount != 5 {
		t.Errorf("MemoryCount = %d, want 5 (from file)", cfg.Chat.MemoryCount)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("Port = %d, want 9999 (env wins over file)", cfg.Gateway.Port)
	}
}

func TestValidate_RequiresChannelCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when channel secret/token are empty")
	}

	cfg.Line.ChannelSecret = "secret"
	cfg.Line.ChannelToken = "token"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
