package telemetry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/selkies/backend/internal/infrastructure/config"
	"github.com/selkies/backend/internal/infrastructure/telemetry"
)

type memoryLogExporter struct {
	mu     sync.Mutex
	bodies []string
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) exported() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bodies...)
}

func TestNewLogsConfig(t *testing.T) {
	cfg := telemetry.NewLogsConfig(config.TelemetryConfig{LogsEnabled: true, CollectorEndpoint: "otel:4317"})
	assert.False(t, cfg.Enabled, "log export follows telemetry.enabled")

	cfg = telemetry.NewLogsConfig(config.TelemetryConfig{Enabled: true, LogsEnabled: true, CollectorEndpoint: "otel:4317"})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel:4317", cfg.CollectorEndpoint)
}

func TestLoggerProvider_Disabled(t *testing.T) {
	lp, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(context.Background()))
	assert.NoError(t, lp.Shutdown(context.Background()))

	core, err := telemetry.NewZapOTELCore(lp, "bakery-backend", zapcore.InfoLevel)
	require.NoError(t, err)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
}

func TestZapOTELCore_ExportsEntries(t *testing.T) {
	ctx := context.Background()
	exporter := &memoryLogExporter{}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{Enabled: true, ServiceName: "bakery-backend"},
		zaptest.NewLogger(t), telemetry.WithLogExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })
	require.True(t, lp.IsEnabled())

	core, err := telemetry.NewZapOTELCore(lp, "bakery-backend", zapcore.InfoLevel)
	require.NoError(t, err)
	log := zap.New(core)

	log.Debug("Catalog cache hit")
	log.Info("Plan confirmed", zap.String("plan_id", "p1"))
	require.NoError(t, lp.ForceFlush(ctx))

	assert.Equal(t, []string{"Plan confirmed"}, exporter.exported())
}
