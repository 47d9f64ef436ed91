package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Cache.Driver != CacheMemory {
		t.Errorf("Expected memory cache, got %s", cfg.Cache.Driver)
	}
	if cfg.Cache.CartTTLDuration() != 7*24*time.Hour {
		t.Errorf("Expected one week cart ttl, got %s", cfg.Cache.CartTTLDuration())
	}
	if cfg.Store.CartURL != "/cart" {
		t.Errorf("Expected cart url /cart, got %s", cfg.Store.CartURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"server": {"port": "9090"},
		"cache": {"driver": "redis", "redis_addr": "cache:6379"},
		"store": {"timezone": "Europe/Berlin", "currency": "€"},
		"features": {"weekday_schedule": true}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("STORE_CURRENCY", "EUR ")
	t.Setenv("FEATURE_AUTO_APPLY", "false")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port from file, got %s", cfg.Server.Port)
	}
	if cfg.Cache.Driver != CacheRedis || cfg.Cache.RedisAddr != "cache:6379" {
		t.Errorf("Expected redis cache from file, got %+v", cfg.Cache)
	}
	if cfg.Store.Currency != "EUR " {
		t.Errorf("Expected env to override currency, got %q", cfg.Store.Currency)
	}
	if !cfg.Features["weekday_schedule"] {
		t.Error("Expected weekday_schedule from file")
	}
	if v, ok := cfg.Features["auto_apply"]; !ok || v {
		t.Error("Expected FEATURE_AUTO_APPLY to disable auto_apply")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }},
		{"no database", func(c *Config) { c.Database.Path = "" }},
		{"bad rate", func(c *Config) { c.RateLimit.Rate = 0 }},
		{"bad driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"redis without addr", func(c *Config) { c.Cache.Driver = CacheRedis; c.Cache.RedisAddr = "" }},
		{"bad timezone", func(c *Config) { c.Store.Timezone = "Mars/Olympus" }},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Endpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSecurityConfig_Origins(t *testing.T) {
	s := SecurityConfig{AllowedOrigins: "https://a.example, ,https://b.example"}
	got := s.Origins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", got)
	}
}
