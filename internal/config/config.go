// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package config loads layered service configuration: defaults, then an
// optional YAML file, then command-line flags.
package config

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatewarden/gatewarden/internal/policy/audit"
)

// Server configures the enforcement HTTP listener.
type Server struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Database configures the audit database connection.
type Database struct {
	URL string `koanf:"url"`
}

// Audit configures decision audit logging.
type Audit struct {
	Mode    string `koanf:"mode"`
	WALPath string `koanf:"wal_path"`
}

// Retention configures how long recorded decisions are kept.
type Retention struct {
	RetainDenials time.Duration `koanf:"retain_denials"`
	RetainAllows  time.Duration `koanf:"retain_allows"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// Log configures structured logging output.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Config is the full service configuration.
type Config struct {
	Server    Server    `koanf:"server"`
	Database  Database  `koanf:"database"`
	Audit     Audit     `koanf:"audit"`
	Retention Retention `koanf:"retention"`
	Log       Log       `koanf:"log"`
	// PolicyFile optionally overrides the built-in permission table.
	PolicyFile string `koanf:"policy_file"`
}

// Default returns the configuration used when no file or flag overrides
// a value.
func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:  "127.0.0.1:8080",
			MetricsAddr: "127.0.0.1:9100",
		},
		Audit: Audit{
			Mode: string(audit.ModeDenialsOnly),
		},
		Retention: Retention{
			RetainDenials: 90 * 24 * time.Hour,
			RetainAllows:  7 * 24 * time.Hour,
			PurgeInterval: 24 * time.Hour,
		},
		Log: Log{
			Format: "json",
			Level:  "info",
		},
	}
}

// Load builds the configuration from defaults, then path (if non-empty),
// then flags (if non-nil). Later layers win.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		// Only flags the user actually set may override the file layer;
		// an untouched flag's empty default is not a value.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.listen_addr is required")
	}

	switch audit.Mode(c.Audit.Mode) {
	case audit.ModeMinimal, audit.ModeDenialsOnly, audit.ModeAll:
	default:
		return oops.Code("CONFIG_INVALID").
			With("mode", c.Audit.Mode).
			Errorf("audit.mode must be one of minimal, denials_only, all")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be 'json' or 'text'")
	}

	if c.Retention.RetainDenials <= 0 || c.Retention.RetainAllows <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("retention windows must be positive")
	}
	if c.Retention.RetainAllows > c.Retention.RetainDenials {
		return oops.Code("CONFIG_INVALID").
			Errorf("retention.retain_allows must not exceed retention.retain_denials")
	}
	if c.Retention.PurgeInterval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("retention.purge_interval must be positive")
	}

	return nil
}
