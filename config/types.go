package config

import "time"

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// AuthConfig configures bearer authentication of direct writes. The JWT
// subject names the calling holder.
type AuthConfig struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	// HMACSecretEnv names an environment variable holding the secret.
	HMACSecretEnv string `toml:"HMACSecretEnv"`
	Issuer        string `toml:"Issuer"`
	Audience      string `toml:"Audience"`
}

// RateLimitConfig bounds requests per client IP. X-Forwarded-For is only
// honoured when the socket peer is one of TrustedProxies (IPs or CIDRs).
type RateLimitConfig struct {
	RequestsPerMinute int      `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	TrustedProxies    []string `toml:"TrustedProxies"`
}

// RolloverConfig drives the background period rollover loop.
type RolloverConfig struct {
	Enabled  bool     `toml:"Enabled"`
	Interval Duration `toml:"Interval"`
}

// ArchiveConfig selects the event archive database.
type ArchiveConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// StorageConfig selects the ledger key-value backend.
type StorageConfig struct {
	Backend string `toml:"Backend"`
}

// HealthConfig enables the gRPC health endpoint.
type HealthConfig struct {
	ListenAddress string `toml:"ListenAddress"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Headers     string  `toml:"Headers"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
