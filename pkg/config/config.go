package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/pkg/api"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the dittosmb configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOSMB_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics enables Prometheus collection, served by the API on /metrics
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the HTTP status API
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server contains the SMB1 listener and transfer settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Lock controls byte-range lock blocking behavior
	Lock LockConfig `mapstructure:"lock" yaml:"lock"`

	// Oplock controls opportunistic lock grants and breaks
	Oplock OplockConfig `mapstructure:"oplock" yaml:"oplock"`

	// DOSAttr selects where DOS attributes (hidden, system, archive) persist
	DOSAttr DOSAttrConfig `mapstructure:"dosattr" yaml:"dosattr"`

	// Spool configures where print jobs are written
	Spool SpoolConfig `mapstructure:"spool" yaml:"spool"`

	// Shares lists the exported disk and print shares
	Shares []ShareConfig `mapstructure:"shares" validate:"required,min=1,unique=Name,dive" yaml:"shares"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether tracing is enabled (default false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (host:port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of commands traced (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ServerConfig contains the SMB1 listener settings.
type ServerConfig struct {
	// ListenAddress is the TCP address to accept SMB connections on
	// Default: ":445"
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`

	// ServerName is the NetBIOS name reported to clients
	ServerName string `mapstructure:"server_name" validate:"required,max=15" yaml:"server_name"`

	// Workgroup is the primary domain reported in NEGOTIATE
	Workgroup string `mapstructure:"workgroup" validate:"required,max=15" yaml:"workgroup"`

	// MaxConnections limits concurrent connections (0 = unlimited)
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// MaxBufferSize is the negotiated maximum SMB message size
	// Default: 64Ki
	MaxBufferSize bytesize.ByteSize `mapstructure:"max_buffer_size" validate:"gte=4096" yaml:"max_buffer_size"`

	// MaxReadSize bounds READ_ANDX payloads when large reads are negotiated
	// Default: 16Mi
	MaxReadSize bytesize.ByteSize `mapstructure:"max_read_size" validate:"gte=4096" yaml:"max_read_size"`

	// MaxWriteSize bounds WRITE_ANDX payloads when large writes are negotiated
	// Default: 16Mi
	MaxWriteSize bytesize.ByteSize `mapstructure:"max_write_size" validate:"gte=4096" yaml:"max_write_size"`

	// DisableZeroCopy forces the buffered read path even when sendfile is available
	DisableZeroCopy bool `mapstructure:"disable_zero_copy" yaml:"disable_zero_copy"`

	// IdleTimeout closes connections with no open files or trees after this long
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`

	// SearchCursorTTL expires abandoned SEARCH cursors
	SearchCursorTTL time.Duration `mapstructure:"search_cursor_ttl" validate:"gte=0" yaml:"search_cursor_ttl"`
}

// LockConfig controls byte-range lock behavior.
type LockConfig struct {
	// MaxBlockingTimeout caps client-requested lock timeouts, including
	// "wait forever". Default: 60s
	MaxBlockingTimeout time.Duration `mapstructure:"max_blocking_timeout" validate:"gte=0" yaml:"max_blocking_timeout"`

	// MaxPendingPerFile bounds parked lock requests per file. Default: 100
	MaxPendingPerFile int `mapstructure:"max_pending_per_file" validate:"gte=0" yaml:"max_pending_per_file"`
}

// OplockConfig controls opportunistic lock grants.
type OplockConfig struct {
	// Disabled refuses every oplock request
	Disabled bool `mapstructure:"disabled" yaml:"disabled"`

	// BreakTimeout is how long a deferred open waits for a break
	// acknowledgment before the oplock is revoked. Default: 35s
	BreakTimeout time.Duration `mapstructure:"break_timeout" validate:"gte=0" yaml:"break_timeout"`
}

// DOSAttrConfig selects the DOS attribute store backend.
type DOSAttrConfig struct {
	// Backend is "memory" or "badger"
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger" yaml:"backend"`

	// Path is the badger database directory (required for badger)
	Path string `mapstructure:"path" validate:"required_if=Backend badger" yaml:"path,omitempty"`
}

// SpoolConfig configures the print spool.
type SpoolConfig struct {
	// Directory receives one file per print job
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// ShareConfig describes one exported share.
type ShareConfig struct {
	// Name is the share name clients connect to (\\server\Name)
	Name string `mapstructure:"name" validate:"required,max=80,excludesall=\\/:*?\"<>0x7C" yaml:"name"`

	// Path is the local directory backing the share
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	Comment string `mapstructure:"comment" yaml:"comment,omitempty"`

	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`

	// CaseSensitive disables case-insensitive name matching
	CaseSensitive bool `mapstructure:"case_sensitive" yaml:"case_sensitive"`

	// PosixPaths treats '/' as the only separator and ':' as ordinary
	PosixPaths bool `mapstructure:"posix_paths" yaml:"posix_paths"`

	// Printable marks a print share; writes go to the spool
	Printable bool `mapstructure:"printable" yaml:"printable"`

	// GuestOK admits unauthenticated sessions
	GuestOK bool `mapstructure:"guest_ok" yaml:"guest_ok"`

	// DisableOplocks refuses oplocks on this share only
	DisableOplocks bool `mapstructure:"disable_oplocks" yaml:"disable_oplocks"`

	// DisableLargeFiles restricts offsets to 32 bits
	DisableLargeFiles bool `mapstructure:"disable_large_files" yaml:"disable_large_files"`

	// StrictSync treats every write as write-through
	StrictSync bool `mapstructure:"strict_sync" yaml:"strict_sync"`

	// WatchExternalChanges publishes changes made outside the server
	WatchExternalChanges bool `mapstructure:"watch_external_changes" yaml:"watch_external_changes"`
}

// Share returns the share named name, matched case-insensitively.
func (c *Config) Share(name string) (ShareConfig, bool) {
	for _, s := range c.Shares {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return ShareConfig{}, false
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOSMB_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning instructions for creating one when
// the file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittosmb config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittosmb <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittosmb config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and the config file location.
// Environment variables use the DITTOSMB_ prefix: DITTOSMB_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DITTOSMB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile returns whether a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings ("64Ki") and numbers to bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings ("30s") and integers (nanoseconds)
// to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dittosmb, ~/.config/dittosmb, or ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittosmb")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittosmb")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
