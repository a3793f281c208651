package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8547", cfg.ListenAddress)
	require.Equal(t, "GM", cfg.Asset)
	require.Len(t, cfg.Auth.HMACSecret, 64)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Auth.HMACSecret, reloaded.Auth.HMACSecret)
	require.Equal(t, 30*time.Second, reloaded.Auth.ClockSkew.Duration)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = ""
Asset = "stk"
HistoryDSN = "history.db"

[auth]
HMACSecret = "topsecret"
Issuer = "epochstake"
Audience = ["rpc"]
ClockSkew = "5s"

[rate_limit]
RequestsPerMinute = 60

[log]
File = "/var/log/epochstaked.log"

[telemetry]
Endpoint = "collector:4318"
Traces = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "STK", cfg.Asset)
	require.Equal(t, "history.db", cfg.HistoryDSN)
	require.Equal(t, []string{"rpc"}, cfg.Auth.Audience)
	require.Equal(t, 5*time.Second, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 20, cfg.RateLimit.Burst)
	require.Equal(t, 100, cfg.Log.MaxSizeMB)
	require.True(t, cfg.Telemetry.Traces)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `listen: ":7000"
asset: gm
auth:
  hmac_secret_env: EPOCHSTAKE_TEST_SECRET
  clock_skew: 1m
rate_limit:
  requests_per_minute: 10
  burst: 2
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Setenv("EPOCHSTAKE_TEST_SECRET", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddress)
	require.Equal(t, "from-env", cfg.Auth.Secret())
	require.Equal(t, time.Minute, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, 2, cfg.RateLimit.Burst)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown.toml":  "Bogus = 1\n[auth]\nHMACSecret = \"x\"\n",
		"nosecret.toml": "Asset = \"GM\"\n",
		"badasset.toml": "Asset = \"not-valid\"\n[auth]\nHMACSecret = \"x\"\n",
		"badskew.yaml":  "auth:\n  hmac_secret: x\n  clock_skew: soon\n",
		"negative.yaml": "auth:\n  hmac_secret: x\nrate_limit:\n  burst: -1\n",
		"unknown.yml":   "bogus: true\nauth:\n  hmac_secret: x\n",
		"webhook.yaml":  "auth:\n  hmac_secret: x\nwebhook:\n  url: http://hooks\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
