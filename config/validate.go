package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

var (
	MinRolloverInterval = time.Second
	MinHMACSecretLength = 32
)

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Auth.Enabled && len(c.Auth.HMACSecret) < MinHMACSecretLength {
		return fmt.Errorf("auth: HMACSecret must be at least %d bytes", MinHMACSecretLength)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if _, err := ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	if c.Rollover.Enabled && c.Rollover.Interval.Duration < MinRolloverInterval {
		return fmt.Errorf("rollover: interval %s shorter than %s", c.Rollover.Interval.Duration, MinRolloverInterval)
	}
	if c.Archive.Enabled {
		switch strings.ToLower(c.Archive.Driver) {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("archive: unsupported driver %q", c.Archive.Driver)
		}
		if strings.TrimSpace(c.Archive.DSN) == "" {
			return fmt.Errorf("archive: DSN required")
		}
	}
	switch c.Storage.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return nil
}

// ParseTrustedProxies accepts bare addresses and CIDR prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
