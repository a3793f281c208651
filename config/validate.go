package config

import (
	"fmt"
	"strings"
	"time"

	"epochstake/native/bank"
)

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8547"
	}
	if strings.TrimSpace(cfg.Asset) == "" {
		cfg.Asset = "GM"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew = Duration{Duration: 30 * time.Second}
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 28
		}
	}
}

func validate(cfg *Config) error {
	asset, err := bank.NormalizeAsset(cfg.Asset)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Asset = asset
	if cfg.Auth.Secret() == "" {
		return fmt.Errorf("config: auth secret must be configured")
	}
	if cfg.Auth.ClockSkew.Duration < 0 {
		return fmt.Errorf("config: auth clock skew must not be negative")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	if strings.TrimSpace(cfg.Webhook.URL) != "" && cfg.Webhook.SigningSecret() == "" {
		return fmt.Errorf("config: webhook secret must be configured when a webhook URL is set")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("config: log rotation settings must not be negative")
	}
	return nil
}
