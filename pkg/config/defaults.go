package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/bytesize"
)

// ApplyDefaults fills zero-valued fields with defaults. Explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	cfg.API.ApplyDefaults()
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	applyServerDefaults(&cfg.Server)
	applyLockDefaults(&cfg.Lock)
	applyOplockDefaults(&cfg.Oplock)
	applyDOSAttrDefaults(&cfg.DOSAttr)
	applySpoolDefaults(&cfg.Spool)
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":445"
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "DITTOSMB"
	}
	if cfg.Workgroup == "" {
		cfg.Workgroup = "WORKGROUP"
	}
	if cfg.MaxBufferSize == 0 {
		cfg.MaxBufferSize = 64 * bytesize.KiB
	}
	if cfg.MaxReadSize == 0 {
		cfg.MaxReadSize = 16 * bytesize.MiB
	}
	if cfg.MaxWriteSize == 0 {
		cfg.MaxWriteSize = 16 * bytesize.MiB
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 15 * time.Minute
	}
	if cfg.SearchCursorTTL == 0 {
		cfg.SearchCursorTTL = 5 * time.Minute
	}
}

func applyLockDefaults(cfg *LockConfig) {
	if cfg.MaxBlockingTimeout == 0 {
		cfg.MaxBlockingTimeout = 60 * time.Second
	}
	if cfg.MaxPendingPerFile == 0 {
		cfg.MaxPendingPerFile = 100
	}
}

func applyOplockDefaults(cfg *OplockConfig) {
	if cfg.BreakTimeout == 0 {
		cfg.BreakTimeout = 35 * time.Second
	}
}

func applyDOSAttrDefaults(cfg *DOSAttrConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	cfg.Backend = strings.ToLower(cfg.Backend)
}

func applySpoolDefaults(cfg *SpoolConfig) {
	if cfg.Directory == "" {
		cfg.Directory = filepath.Join(os.TempDir(), "dittosmb-spool")
	}
}

// GetDefaultConfig returns a Config with every default applied and a single
// read-write share exporting /srv/dittosmb.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Shares: []ShareConfig{{
			Name:    "public",
			Path:    "/srv/dittosmb",
			Comment: "Public share",
			GuestOK: true,
		}},
	}
	ApplyDefaults(cfg)
	return cfg
}
