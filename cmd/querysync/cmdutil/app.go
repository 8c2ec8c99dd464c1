package cmdutil

import (
	"context"
	"fmt"
	"time"

	qmetrics "github.com/resyncio/querysync/pkg/metrics"
	prommetrics "github.com/resyncio/querysync/pkg/metrics/prometheus"

	"github.com/resyncio/querysync/internal/logger"
	"github.com/resyncio/querysync/internal/telemetry"
	"github.com/resyncio/querysync/pkg/config"
	"github.com/resyncio/querysync/pkg/fetchers"
	"github.com/resyncio/querysync/pkg/netstatus"
	"github.com/resyncio/querysync/pkg/querycache"
)

// App bundles everything a subcommand needs once configuration has been
// loaded and the ambient stack (logging, telemetry, metrics) started.
type App struct {
	Config   *config.Config
	Client   *querycache.Client
	Online   netstatus.Manager
	Focus    netstatus.Manager
	Backends *fetchers.Set

	telemetryShutdown func(context.Context) error
	profilingShutdown func() error
}

// Bootstrap loads configuration from configPath (empty for the default
// location), wires up logging/telemetry/metrics, opens every configured
// backend, and returns a ready-to-use App. Call Close when done.
func Bootstrap(ctx context.Context, configPath, version string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       true,
		SampleRate:     cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Profiling.Enabled,
		ServiceName:    cfg.Profiling.ApplicationName,
		ServiceVersion: version,
		Endpoint:       cfg.Profiling.ServerAddr,
	})
	if err != nil {
		_ = telemetryShutdown(ctx)
		return nil, fmt.Errorf("init profiling: %w", err)
	}

	var clientOpts []querycache.ClientOption
	if cfg.Metrics.Enabled {
		qmetrics.Enable()
		if m := prommetrics.NewCacheMetrics(); m != nil {
			clientOpts = append(clientOpts, querycache.WithMetrics(m))
		}
	}

	backends, errs := fetchers.Open(ctx, cfg.Backends)
	for _, e := range errs {
		logger.Warn("backend unavailable", "error", e)
	}

	return &App{
		Config:            cfg,
		Client:            querycache.NewClient(clientOpts...),
		Online:            netstatus.AlwaysOnline(),
		Focus:             netstatus.AlwaysFocused(),
		Backends:          backends,
		telemetryShutdown: telemetryShutdown,
		profilingShutdown: profilingShutdown,
	}, nil
}

// Close shuts down the cache's worker pool, telemetry, profiling, and
// every opened backend.
func (a *App) Close(ctx context.Context) {
	if a.Client != nil {
		a.Client.Close(5 * time.Second)
	}
	if a.Backends != nil {
		a.Backends.Close()
	}
	if a.profilingShutdown != nil {
		if err := a.profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}
	if a.telemetryShutdown != nil {
		if err := a.telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}
}

// StaleWindow resolves the default stale window used by demo commands
// that don't configure one explicitly.
func (a *App) StaleWindow() time.Duration {
	return a.Config.Client.DefaultStaleWindow
}
