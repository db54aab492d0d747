package telemetry

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/infrastructure/config"
)

var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":           pyroscope.ProfileCPU,
	"alloc_space":   pyroscope.ProfileAllocSpace,
	"alloc_objects": pyroscope.ProfileAllocObjects,
	"inuse_space":   pyroscope.ProfileInuseSpace,
	"inuse_objects": pyroscope.ProfileInuseObjects,
	"goroutines":    pyroscope.ProfileGoroutines,
}

// ProfilerConfig configures continuous profiling
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
	ProfileTypes    []string
	Tags            map[string]string
}

// NewProfilerConfig builds profiler settings from the telemetry section. Profiles
// are tagged with the deployment environment and, when set, the host.
func NewProfilerConfig(cfg config.TelemetryConfig, env string) ProfilerConfig {
	tags := map[string]string{"env": env}
	if host := os.Getenv("HOSTNAME"); host != "" {
		tags["hostname"] = host
	}
	return ProfilerConfig{
		Enabled:         cfg.ProfilerEnabled,
		ServerAddress:   cfg.ProfilerAddress,
		ApplicationName: cfg.ServiceName,
		ProfileTypes:    cfg.ProfilerTypes,
		Tags:            tags,
	}
}

// Profiler pushes pprof profiles to a Pyroscope server
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	stopOnce sync.Once
	stopErr  error
}

// NewProfiler starts profiling. A disabled config returns a profiler whose Stop does nothing.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Profiler{logger: logger}
	if !cfg.Enabled {
		logger.Debug("Continuous profiling disabled")
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("profiler server address is required")
	}

	types, err := parseProfileTypes(cfg.ProfileTypes)
	if err != nil {
		return nil, err
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          pyroscopeLogger{logger.Named("pyroscope").Sugar()},
		Tags:            cfg.Tags,
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}
	p.profiler = profiler

	logger.Info("Continuous profiling started",
		zap.String("server_address", cfg.ServerAddress),
		zap.Strings("profile_types", cfg.ProfileTypes),
	)
	return p, nil
}

func parseProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	types := make([]pyroscope.ProfileType, 0, len(names))
	for _, name := range names {
		t, ok := profileTypes[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

// IsEnabled reports whether profiles are being pushed
func (p *Profiler) IsEnabled() bool {
	return p.profiler != nil
}

// Stop flushes pending profiles. Later calls return the first result.
func (p *Profiler) Stop() error {
	p.stopOnce.Do(func() {
		if p.profiler == nil {
			return
		}
		if err := p.profiler.Stop(); err != nil {
			p.stopErr = fmt.Errorf("failed to stop profiler: %w", err)
			return
		}
		p.logger.Info("Continuous profiling stopped")
	})
	return p.stopErr
}

// pyroscopeLogger satisfies pyroscope.Logger with the embedded sugared methods
type pyroscopeLogger struct {
	*zap.SugaredLogger
}
