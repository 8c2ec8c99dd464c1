// Package config loads querysync's runtime configuration: QueryClient and
// observer defaults, the ambient logging/telemetry/profiling/metrics
// stack, and the demo fetcher backends in cmd/querysync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/resyncio/querysync/internal/bytesize"
)

// Config is the top-level configuration for a querysync process.
//
// Sources, in order of precedence:
//  1. Environment variables (QUERYSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Environment variables only override keys that the configuration file
// sets. When no configuration file is found, Load returns DefaultConfig()
// and does not read the environment.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Client    ClientConfig    `mapstructure:"client" yaml:"client"`
	Observer  ObserverConfig  `mapstructure:"observer" yaml:"observer"`
	Mutation  MutationConfig  `mapstructure:"mutation" yaml:"mutation"`
	Backends  BackendsConfig  `mapstructure:"backends" yaml:"backends"`
}

// LoggingConfig controls internal/logger output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio" yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// ProfilingConfig controls grafana/pyroscope-go continuous profiling.
type ProfilingConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	ServerAddr      string `mapstructure:"server_addr" yaml:"server_addr"`
	ApplicationName string `mapstructure:"application_name" yaml:"application_name"`
}

// MetricsConfig controls the Prometheus CacheMetrics adapter.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// ClientConfig holds QueryClient-wide defaults.
type ClientConfig struct {
	// DefaultStaleWindow is the StaleWindow the CLI's fetch command gives
	// the observer it builds (via cmdutil.App.StaleWindow).
	DefaultStaleWindow time.Duration `mapstructure:"default_stale_window" yaml:"default_stale_window" validate:"gte=0"`
}

// ObserverConfig holds QueryObserver.Options default values. They are
// loaded, defaulted and validated, but nothing applies them to
// queryobserver.DefaultOptions or to any observer.
type ObserverConfig struct {
	Enabled              bool          `mapstructure:"enabled" yaml:"enabled"`
	StaleWindow          time.Duration `mapstructure:"stale_window" yaml:"stale_window" validate:"gte=0"`
	Retry                int           `mapstructure:"retry" yaml:"retry" validate:"gte=-1"`
	RetryDelay           time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" validate:"gt=0"`
	MaxRetryDelay        time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay" validate:"gt=0"`
	NetworkMode          string        `mapstructure:"network_mode" yaml:"network_mode" validate:"oneof=online always offlineFirst"`
	RefetchOnReconnect   bool          `mapstructure:"refetch_on_reconnect" yaml:"refetch_on_reconnect"`
	RefetchOnWindowFocus bool          `mapstructure:"refetch_on_window_focus" yaml:"refetch_on_window_focus"`
	RefetchInterval      time.Duration `mapstructure:"refetch_interval" yaml:"refetch_interval" validate:"gte=0"`
}

// MutationConfig holds MutationObserver.Options defaults.
type MutationConfig struct {
	Retry         int           `mapstructure:"retry" yaml:"retry" validate:"gte=-1"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" validate:"gt=0"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay" validate:"gt=0"`
	NetworkMode   string        `mapstructure:"network_mode" yaml:"network_mode" validate:"oneof=online always offlineFirst"`
}

// BackendsConfig configures the example FetchFn backends under pkg/fetchers.
type BackendsConfig struct {
	Postgres PostgresBackendConfig `mapstructure:"postgres" yaml:"postgres"`
	SQLite   SQLiteBackendConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	S3       S3BackendConfig       `mapstructure:"s3" yaml:"s3"`
	Badger   BadgerBackendConfig   `mapstructure:"badger" yaml:"badger"`
	Auth     AuthBackendConfig     `mapstructure:"auth" yaml:"auth"`
}

// PostgresBackendConfig configures fetchers/postgres.
type PostgresBackendConfig struct {
	DSN            string        `mapstructure:"dsn" yaml:"dsn"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// SQLiteBackendConfig configures fetchers/sqlite.
type SQLiteBackendConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// S3BackendConfig configures fetchers/s3.
type S3BackendConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Region string `mapstructure:"region" yaml:"region"`
}

// BadgerBackendConfig configures fetchers/badger.
type BadgerBackendConfig struct {
	Path         string            `mapstructure:"path" yaml:"path"`
	MaxCacheSize bytesize.ByteSize `mapstructure:"max_cache_size" yaml:"max_cache_size"`
}

// AuthBackendConfig configures fetchers/auth.
type AuthBackendConfig struct {
	SigningKey string        `mapstructure:"signing_key" yaml:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes cfg to path in YAML form with restrictive permissions,
// since backend config can carry DSNs and signing keys.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("QUERYSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
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
			return time.Duration(int64(v)), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "querysync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".querysync"
	}
	return filepath.Join(home, ".config", "querysync")
}

// GetDefaultConfigPath returns the default config.yaml location.
func GetDefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
