package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string          `toml:"ListenAddress"`
	DataDir       string          `toml:"DataDir"`
	GenesisFile   string          `toml:"GenesisFile"`
	Environment   string          `toml:"Environment"`
	Log           LogConfig       `toml:"Log"`
	Auth          AuthConfig      `toml:"Auth"`
	RateLimit     RateLimitConfig `toml:"RateLimit"`
	Rollover      RolloverConfig  `toml:"Rollover"`
	Archive       ArchiveConfig   `toml:"Archive"`
	Storage       StorageConfig   `toml:"Storage"`
	Health        HealthConfig    `toml:"Health"`
	Telemetry     TelemetryConfig `toml:"Telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./revchain-data",
		GenesisFile:   "./genesis.yaml",
		Environment:   "dev",
		Log:           LogConfig{Level: "info"},
		RateLimit:     RateLimitConfig{RequestsPerMinute: 600, Burst: 50},
		Rollover:      RolloverConfig{Enabled: true, Interval: Duration{time.Minute}},
		Archive:       ArchiveConfig{Driver: "sqlite", DSN: "revchain-archive.db"},
		Storage:       StorageConfig{Backend: "leveldb"},
	}
	return cfg
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaults.ListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaults.DataDir
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = defaults.RateLimit.RequestsPerMinute
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.Rollover.Interval.Duration == 0 {
		c.Rollover.Interval = defaults.Rollover.Interval
	}
	if strings.TrimSpace(c.Archive.Driver) == "" {
		c.Archive.Driver = defaults.Archive.Driver
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
}

func (c *Config) resolveSecrets() {
	if env := strings.TrimSpace(c.Auth.HMACSecretEnv); env != "" {
		if secret := os.Getenv(env); secret != "" {
			c.Auth.HMACSecret = secret
		}
	}
}

// StoragePath returns the ledger database location inside DataDir.
func (c *Config) StoragePath() string {
	switch c.Storage.Backend {
	case "bolt":
		return filepath.Join(c.DataDir, "ledger.bolt")
	default:
		return filepath.Join(c.DataDir, "ledger")
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
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
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
