package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddress string          `toml:"ListenAddress" yaml:"listen"`
	DataDir       string          `toml:"DataDir" yaml:"data_dir"`
	Asset         string          `toml:"Asset" yaml:"asset"`
	HistoryDSN    string          `toml:"HistoryDSN" yaml:"history_dsn"`
	Env           string          `toml:"Env" yaml:"env"`
	Auth          AuthConfig      `toml:"auth" yaml:"auth"`
	RateLimit     RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Log           LogConfig       `toml:"log" yaml:"log"`
	Telemetry     TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Webhook       WebhookConfig   `toml:"webhook" yaml:"webhook"`
}

// AuthConfig configures bearer-token verification. HMACSecretEnv names an
// environment variable consulted when HMACSecret is empty.
type AuthConfig struct {
	HMACSecret    string   `toml:"HMACSecret" yaml:"hmac_secret"`
	HMACSecretEnv string   `toml:"HMACSecretEnv" yaml:"hmac_secret_env"`
	Issuer        string   `toml:"Issuer" yaml:"issuer"`
	Audience      []string `toml:"Audience" yaml:"audience"`
	ClockSkew     Duration `toml:"ClockSkew" yaml:"clock_skew"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int `toml:"Burst" yaml:"burst"`
}

type LogConfig struct {
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

type TelemetryConfig struct {
	Endpoint string            `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool              `toml:"Insecure" yaml:"insecure"`
	Headers  map[string]string `toml:"Headers" yaml:"headers"`
	Traces   bool              `toml:"Traces" yaml:"traces"`
	Metrics  bool              `toml:"Metrics" yaml:"metrics"`
}

// WebhookConfig enables signed event notifications. An empty URL disables
// them.
type WebhookConfig struct {
	URL       string   `toml:"URL" yaml:"url"`
	Secret    string   `toml:"Secret" yaml:"secret"`
	SecretEnv string   `toml:"SecretEnv" yaml:"secret_env"`
	Topics    []string `toml:"Topics" yaml:"topics"`
}

// SigningSecret returns the webhook secret, falling back to SecretEnv.
func (w WebhookConfig) SigningSecret() string {
	if secret := strings.TrimSpace(w.Secret); secret != "" {
		return secret
	}
	if env := strings.TrimSpace(w.SecretEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// Load loads the configuration from the given path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. A missing file is
// replaced by a freshly generated default TOML configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
		}
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Secret returns the configured HMAC secret, falling back to the named
// environment variable.
func (a AuthConfig) Secret() string {
	if secret := strings.TrimSpace(a.HMACSecret); secret != "" {
		return secret
	}
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	cfg := &Config{
		DataDir: "./epochstake-data",
		Auth:    AuthConfig{HMACSecret: hex.EncodeToString(secret)},
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
