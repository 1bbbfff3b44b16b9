// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/pkg/errutil"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatewarden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.ListenAddr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.MetricsAddr)
	assert.Equal(t, "denials_only", cfg.Audit.Mode)
	assert.Equal(t, 90*24*time.Hour, cfg.Retention.RetainDenials)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.RetainAllows)
	assert.Equal(t, 24*time.Hour, cfg.Retention.PurgeInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.PolicyFile)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_addr: "0.0.0.0:8443"
database:
  url: "postgres://localhost/authz"
audit:
  mode: all
  wal_path: /var/lib/gatewarden/audit-wal.jsonl
retention:
  retain_allows: 48h
log:
  format: text
  level: debug
policy_file: /etc/gatewarden/policies.yaml
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8443", cfg.Server.ListenAddr)
	assert.Equal(t, "postgres://localhost/authz", cfg.Database.URL)
	assert.Equal(t, "all", cfg.Audit.Mode)
	assert.Equal(t, "/var/lib/gatewarden/audit-wal.jsonl", cfg.Audit.WALPath)
	assert.Equal(t, 48*time.Hour, cfg.Retention.RetainAllows)
	// Values the file does not mention keep their defaults.
	assert.Equal(t, 90*24*time.Hour, cfg.Retention.RetainDenials)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/etc/gatewarden/policies.yaml", cfg.PolicyFile)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_addr: "0.0.0.0:8443"
audit:
  mode: minimal
`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server.listen_addr", "", "")
	flags.String("audit.mode", "", "")
	require.NoError(t, flags.Parse([]string{"--server.listen_addr=127.0.0.1:9999"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddr)
	// Unset flags do not clobber the file layer.
	assert.Equal(t, "minimal", cfg.Audit.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_FAILED")
}

func TestLoad_InvalidMode(t *testing.T) {
	path := writeConfigFile(t, "audit:\n  mode: verbose\n")

	_, err := Load(path, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Contains(t, err.Error(), "audit.mode")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.Server.ListenAddr = "" },
			wantErr: "listen_addr",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name:    "zero denial retention",
			mutate:  func(c *Config) { c.Retention.RetainDenials = 0 },
			wantErr: "retention windows",
		},
		{
			name: "allows outlive denials",
			mutate: func(c *Config) {
				c.Retention.RetainAllows = 100 * 24 * time.Hour
			},
			wantErr: "retain_allows",
		},
		{
			name:    "zero purge interval",
			mutate:  func(c *Config) { c.Retention.PurgeInterval = 0 },
			wantErr: "purge_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
