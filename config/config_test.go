package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.DataDir, again.DataDir)
	require.Equal(t, time.Minute, again.Rollover.Interval.Duration)
	require.Equal(t, "leveldb", again.Storage.Backend)
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/revchain"
GenesisFile = "genesis.yaml"
Environment = "prod"

[Log]
Level = "debug"
File = "/var/log/revchaind.log"
MaxSizeMB = 50

[Auth]
Enabled = true
HMACSecret = "0123456789abcdef0123456789abcdef"
Issuer = "revchain-auth"

[RateLimit]
RequestsPerMinute = 120
Burst = 10

[Rollover]
Enabled = true
Interval = "30s"

[Archive]
Enabled = true
Driver = "postgres"
DSN = "postgres://revchain@localhost/archive"

[Storage]
Backend = "bolt"

[Health]
ListenAddress = ":9090"

[Telemetry]
Endpoint = "otel:4318"
Traces = true
SampleRatio = 0.25
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 50, cfg.Log.MaxSizeMB)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "revchain-auth", cfg.Auth.Issuer)
	require.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 30*time.Second, cfg.Rollover.Interval.Duration)
	require.Equal(t, "postgres", cfg.Archive.Driver)
	require.Equal(t, "bolt", cfg.Storage.Backend)
	require.Equal(t, filepath.Join("/var/lib/revchain", "ledger.bolt"), cfg.StoragePath())
	require.Equal(t, ":9090", cfg.Health.ListenAddress)
	require.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "ListenAddress = \":1\"\nValidatorKey = \"abc\"\n")
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "ValidatorKey"))
}

func TestLoadResolvesSecretFromEnv(t *testing.T) {
	t.Setenv("REVCHAIN_JWT_SECRET", strings.Repeat("s", 40))
	path := writeConfig(t, "[Auth]\nEnabled = true\nHMACSecretEnv = \"REVCHAIN_JWT_SECRET\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Auth.HMACSecret, 40)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"short secret":     func(c *Config) { c.Auth.Enabled = true; c.Auth.HMACSecret = "short" },
		"fast rollover":    func(c *Config) { c.Rollover.Interval = Duration{time.Millisecond} },
		"archive driver":   func(c *Config) { c.Archive.Enabled = true; c.Archive.Driver = "mysql" },
		"archive dsn":      func(c *Config) { c.Archive.Enabled = true; c.Archive.DSN = "" },
		"storage backend":  func(c *Config) { c.Storage.Backend = "rocksdb" },
		"sample ratio":     func(c *Config) { c.Telemetry.SampleRatio = 2 },
		"negative limiter": func(c *Config) { c.RateLimit.Burst = -1 },
		"trusted proxy":    func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.0/99"} },
	}
	require.NoError(t, Default().Validate())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.1", " 192.168.0.0/16 ", "", "::ffff:172.16.0.9"})
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	require.Equal(t, "10.0.0.1/32", prefixes[0].String())
	require.Equal(t, "192.168.0.0/16", prefixes[1].String())
	require.Equal(t, "172.16.0.9/32", prefixes[2].String())

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	require.Error(t, err)
}
