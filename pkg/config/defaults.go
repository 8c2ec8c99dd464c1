package config

import "time"

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// Unlike queryobserver.DefaultOptions (which builds a whole Options value
// up front), config values arrive partially populated from a file, so
// defaulting here is field-by-field.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyProfilingDefaults(&cfg.Profiling)
	applyMetricsDefaults(&cfg.Metrics)
	applyClientDefaults(&cfg.Client)
	applyObserverDefaults(&cfg.Observer)
	applyMutationDefaults(&cfg.Mutation)
	applyBackendsDefaults(&cfg.Backends)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "querysync"
	}
	if cfg.SampleRatio == 0 {
		cfg.SampleRatio = 1.0
	}
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = "querysync"
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = "http://localhost:4040"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9090"
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.DefaultStaleWindow == 0 {
		cfg.DefaultStaleWindow = 0 // zero staleWindow means "always refetch", a valid default
	}
}

func applyObserverDefaults(cfg *ObserverConfig) {
	if cfg.Retry == 0 {
		cfg.Retry = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	if cfg.NetworkMode == "" {
		cfg.NetworkMode = "online"
	}
	// RefetchOnReconnect/RefetchOnWindowFocus default true, so an unset
	// field and an explicit "false" in the config file are indistinguishable
	// here; an explicit false must be set via queryobserver.Options directly.
	if !cfg.RefetchOnReconnect {
		cfg.RefetchOnReconnect = true
	}
	if !cfg.RefetchOnWindowFocus {
		cfg.RefetchOnWindowFocus = true
	}
}

func applyMutationDefaults(cfg *MutationConfig) {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	if cfg.NetworkMode == "" {
		cfg.NetworkMode = "online"
	}
}

func applyBackendsDefaults(cfg *BackendsConfig) {
	if cfg.Postgres.ConnectTimeout == 0 {
		cfg.Postgres.ConnectTimeout = 5 * time.Second
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "querysync.db"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 15 * time.Minute
	}
}

// DefaultConfig returns a fully populated Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
