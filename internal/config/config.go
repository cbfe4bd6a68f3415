// Package config loads service configuration from a TOML file with
// environment-variable overrides. Env vars always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the wa-flows service.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Flows    FlowsConfig    `toml:"flows"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
	Analysis APIConfig      `toml:"analysis"`
	Storage  StorageConfig  `toml:"storage"`
	Credit   APIConfig      `toml:"credit"`
	Queue    QueueConfig    `toml:"queue"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Security SecurityConfig `toml:"security"`
	State    StateConfig    `toml:"state"`
}

type ServerConfig struct {
	Addr        string `toml:"addr"`
	Mode        string `toml:"mode"` // "direct" or "tailscale"
	VerifyToken string `toml:"verify_token"`
	AppSecret   string `toml:"app_secret"`
}

type FlowsConfig struct {
	PrivateKeyPath string `toml:"private_key_path"`
}

type WhatsAppConfig struct {
	BaseURL       string `toml:"base_url"`
	APIKey        string `toml:"api_key"`
	PhoneNumberID string `toml:"phone_number_id"`
}

// APIConfig is the shape shared by the opaque HTTP collaborators.
type APIConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
}

type StorageConfig struct {
	Endpoint string `toml:"endpoint"`
	Bucket   string `toml:"bucket"`
	APIKey   string `toml:"api_key"`
}

type QueueConfig struct {
	URL     string `toml:"url"` // empty disables NATS; jobs run in-process
	Stream  string `toml:"stream"`
	Subject string `toml:"subject"`
}

type GatewayConfig struct {
	URL   string `toml:"url"` // empty disables the event push
	Token string `toml:"token"`
}

type SecurityConfig struct {
	Mode          string   `toml:"mode"` // "open" or "allowlist"
	Allowlist     []string `toml:"allowlist"`
	DenyMessage   string   `toml:"deny_message"`
	RatePerMinute int      `toml:"rate_per_minute"`
	Burst         int      `toml:"burst"`
}

type StateConfig struct {
	Dir string `toml:"dir"`
}

func defaults() Config {
	home := os.Getenv("HOME")
	return Config{
		Server: ServerConfig{
			Addr: ":18750",
			Mode: "direct",
		},
		Queue: QueueConfig{
			Stream:  "WA_FLOWS",
			Subject: "wa.jobs.media",
		},
		Security: SecurityConfig{
			Mode:          "open",
			DenyMessage:   "Maaf, nomor Anda belum terdaftar untuk layanan ini.",
			RatePerMinute: 30,
			Burst:         5,
		},
		State: StateConfig{
			Dir: filepath.Join(home, ".config", "wa-flows"),
		},
	}
}

// Load reads configuration from the TOML config file (if it exists) and
// applies environment variable overrides.
//
// Config file resolution: WA_FLOWS_CONFIG env var → ~/.config/wa-flows/config.toml → skip.
func Load() (*Config, error) {
	cfg := defaults()

	path := configPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func configPath() string {
	if p := os.Getenv("WA_FLOWS_CONFIG"); p != "" {
		return expandHome(p)
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "wa-flows", "config.toml")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WA_FLOWS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WA_FLOWS_MODE"); v != "" {
		cfg.Server.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("WA_FLOWS_VERIFY_TOKEN"); v != "" {
		cfg.Server.VerifyToken = v
	}
	if v := os.Getenv("WA_FLOWS_APP_SECRET"); v != "" {
		cfg.Server.AppSecret = v
	}
	if v := os.Getenv("WA_FLOWS_PRIVATE_KEY"); v != "" {
		cfg.Flows.PrivateKeyPath = expandHome(v)
	}

	if v := os.Getenv("WA_API_BASE_URL"); v != "" {
		cfg.WhatsApp.BaseURL = v
	}
	if v := os.Getenv("WA_API_KEY"); v != "" {
		cfg.WhatsApp.APIKey = v
	}
	if v := os.Getenv("WA_PHONE_NUMBER_ID"); v != "" {
		cfg.WhatsApp.PhoneNumberID = v
	}

	if v := os.Getenv("WA_FLOWS_ANALYSIS_ENDPOINT"); v != "" {
		cfg.Analysis.Endpoint = v
	}
	if v := os.Getenv("WA_FLOWS_ANALYSIS_KEY"); v != "" {
		cfg.Analysis.APIKey = v
	}
	if v := os.Getenv("WA_FLOWS_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("WA_FLOWS_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("WA_FLOWS_STORAGE_KEY"); v != "" {
		cfg.Storage.APIKey = v
	}
	if v := os.Getenv("WA_FLOWS_CREDIT_ENDPOINT"); v != "" {
		cfg.Credit.Endpoint = v
	}
	if v := os.Getenv("WA_FLOWS_CREDIT_KEY"); v != "" {
		cfg.Credit.APIKey = v
	}

	if v := os.Getenv("WA_FLOWS_NATS_URL"); v != "" {
		cfg.Queue.URL = v
	}
	if v := os.Getenv("WA_FLOWS_NATS_STREAM"); v != "" {
		cfg.Queue.Stream = v
	}
	if v := os.Getenv("WA_FLOWS_NATS_SUBJECT"); v != "" {
		cfg.Queue.Subject = v
	}

	if v := os.Getenv("WA_FLOWS_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("WA_FLOWS_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}

	if v := os.Getenv("WA_FLOWS_SECURITY_MODE"); v != "" {
		cfg.Security.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("WA_FLOWS_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.RatePerMinute = n
		}
	}

	if v := os.Getenv("WA_FLOWS_STATE_DIR"); v != "" {
		cfg.State.Dir = expandHome(v)
	}
}

// Validate checks required fields and normalizes enum values.
func (c *Config) Validate() error {
	if c.Server.VerifyToken == "" {
		return fmt.Errorf("server.verify_token (WA_FLOWS_VERIFY_TOKEN) must be set")
	}
	if c.Flows.PrivateKeyPath == "" {
		return fmt.Errorf("flows.private_key_path (WA_FLOWS_PRIVATE_KEY) must be set")
	}

	switch strings.ToLower(c.Server.Mode) {
	case "direct", "tailscale":
		c.Server.Mode = strings.ToLower(c.Server.Mode)
	default:
		c.Server.Mode = "direct"
	}

	switch strings.ToLower(c.Security.Mode) {
	case "open", "allowlist":
		c.Security.Mode = strings.ToLower(c.Security.Mode)
	default:
		c.Security.Mode = "open"
	}
	if c.Security.RatePerMinute < 1 {
		c.Security.RatePerMinute = 30
	}
	if c.Security.Burst < 1 {
		c.Security.Burst = 5
	}

	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
