package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
shares:
  - name: docs
    path: /tmp/docs
    read_only: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, ":445", cfg.Server.ListenAddress)
	assert.Equal(t, 64*bytesize.KiB, cfg.Server.MaxBufferSize)
	assert.Equal(t, 60*time.Second, cfg.Lock.MaxBlockingTimeout)
	assert.Equal(t, 35*time.Second, cfg.Oplock.BreakTimeout)
	assert.Equal(t, "memory", cfg.DOSAttr.Backend)

	share, ok := cfg.Share("DOCS")
	require.True(t, ok)
	assert.True(t, share.ReadOnly)
	assert.Equal(t, "/tmp/docs", share.Path)
}

func TestLoad_HumanReadableSizesAndDurations(t *testing.T) {
	path := writeConfig(t, `
server:
  max_buffer_size: 32Ki
  max_read_size: 1Mi
  idle_timeout: 90s
lock:
  max_blocking_timeout: 5s
shares:
  - name: a
    path: /tmp/a
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32*bytesize.KiB, cfg.Server.MaxBufferSize)
	assert.Equal(t, bytesize.MiB, cfg.Server.MaxReadSize)
	assert.Equal(t, 90*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.Lock.MaxBlockingTimeout)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: INFO
shares:
  - name: a
    path: /tmp/a
`)
	t.Setenv("DITTOSMB_LOGGING_LEVEL", "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Shares, 1)
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dittosmb config init")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad level", func(c *Config) { c.Logging.Level = "LOUD" }, false},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"no shares", func(c *Config) { c.Shares = nil }, false},
		{"share without path", func(c *Config) { c.Shares[0].Path = "" }, false},
		{"share name with separator", func(c *Config) { c.Shares[0].Name = `a\b` }, false},
		{"duplicate share", func(c *Config) { c.Shares = append(c.Shares, c.Shares[0]) }, false},
		{"badger without path", func(c *Config) { c.DOSAttr.Backend = "badger" }, false},
		{"badger with path", func(c *Config) { c.DOSAttr = DOSAttrConfig{Backend: "badger", Path: "/tmp/x"} }, true},
		{"read size below buffer", func(c *Config) { c.Server.MaxReadSize = 8 * bytesize.KiB }, false},
		{"port out of range", func(c *Config) { c.API.Port = 70000 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	got, err := InitConfig(path, "/data/share", false)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/share", cfg.Shares[0].Path)
	assert.Equal(t, 16*bytesize.MiB, cfg.Server.MaxReadSize)

	_, err = InitConfig(path, "", false)
	assert.Error(t, err, "existing file must not be overwritten without force")

	_, err = InitConfig(path, "", true)
	assert.NoError(t, err)
}
