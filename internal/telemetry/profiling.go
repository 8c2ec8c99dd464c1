package telemetry

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig mirrors pkg/config.ProfilingConfig into the shape
// InitProfiling needs; cmdutil.Bootstrap builds one from the loaded
// config file on every process start.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL (e.g., "http://localhost:4040").
	Endpoint string

	// ProfileTypes selects which profiles to collect, from the keys of
	// profileTypeNames. An empty slice takes Pyroscope's own defaults.
	ProfileTypes []string
}

var profileTypeNames = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

var (
	profiler         *pyroscope.Profiler
	profilingEnabled bool
)

// InitProfiling starts continuous Pyroscope profiling for the
// querysync process, or returns a no-op shutdown when cfg.Enabled is
// false. Returns a shutdown func cmdutil.App.Close calls on exit.
func InitProfiling(cfg ProfilingConfig) (shutdown func() error, err error) {
	if !cfg.Enabled {
		profilingEnabled = false
		return func() error { return nil }, nil
	}
	profilingEnabled = true

	profileTypes := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	for _, name := range cfg.ProfileTypes {
		pt, ok := profileTypeNames[name]
		if !ok {
			return nil, fmt.Errorf("telemetry: unknown profile type %q", name)
		}
		profileTypes = append(profileTypes, pt)
		switch name {
		case "mutex_count", "mutex_duration":
			runtime.SetMutexProfileFraction(5)
		case "block_count", "block_duration":
			runtime.SetBlockProfileRate(5)
		}
	}

	profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags: map[string]string{
			"version": cfg.ServiceVersion,
		},
		ProfileTypes: profileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: start pyroscope profiler: %w", err)
	}

	return func() error {
		if profiler == nil {
			return nil
		}
		return profiler.Stop()
	}, nil
}

// IsProfilingEnabled reports whether InitProfiling started a profiler
// for this process.
func IsProfilingEnabled() bool {
	return profilingEnabled
}
