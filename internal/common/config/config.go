// Package config loads and validates the guard-gateway YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/stacklume/fetchguard/internal/common/configtypes"
	"github.com/stacklume/fetchguard/internal/common/yamlutil"
	"github.com/stacklume/fetchguard/internal/guard/dnscache"
	"github.com/stacklume/fetchguard/internal/guard/ranges"
)

// MaxDNSTimeout bounds the configurable resolution timeout. The validator
// must answer quickly and fail closed; a long timeout just delays the block.
const MaxDNSTimeout = 30 * time.Second

// Load reads, parses, defaults, and validates the configuration file
func Load(path string) (*configtypes.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg configtypes.Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *configtypes.Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = configtypes.Duration(10 * time.Second)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "fetchguard"
	}

	if cfg.Validator.DNSTimeout == 0 {
		cfg.Validator.DNSTimeout = configtypes.Duration(3 * time.Second)
	}

	if cfg.DNSCache.TTL == 0 {
		cfg.DNSCache.TTL = configtypes.Duration(dnscache.DefaultTTL)
	}
}

func validate(cfg *configtypes.Config) error {
	if d := cfg.Validator.DNSTimeout.ToDuration(); d < 0 || d > MaxDNSTimeout {
		return fmt.Errorf("validator.dns_timeout %s is out of range (0, %s]", d, MaxDNSTimeout)
	}

	for _, entry := range cfg.Validator.ExtraBlockedRanges {
		if _, err := ranges.ParseExtraRange(entry.CIDR, entry.Classification); err != nil {
			return fmt.Errorf("validator.extra_blocked_ranges: %w", err)
		}
	}

	if cfg.DNSCache.Enabled {
		if cfg.DNSCache.Redis.Addr == "" {
			return fmt.Errorf("dns_cache.redis.addr is required when dns_cache is enabled")
		}
		if ttl := cfg.DNSCache.TTL.ToDuration(); ttl > dnscache.MaxTTL {
			return fmt.Errorf("dns_cache.ttl %s exceeds the maximum of %s", ttl, dnscache.MaxTTL)
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics are enabled")
		}
		if cfg.Metrics.Listen == cfg.Server.Listen {
			return fmt.Errorf("metrics.listen must differ from server.listen")
		}
	}

	return nil
}
