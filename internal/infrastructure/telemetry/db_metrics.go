package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	// SlowQueryThreshold marks queries counted as slow (default: 200ms)
	SlowQueryThreshold time.Duration
}

// DBMetrics records query latency from GORM callbacks and reports pool
// occupancy whenever the reader collects.
type DBMetrics struct {
	queryTotal     *Counter
	queryErrors    *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	registration   metric.Registration

	config DBMetricsConfig
	logger *zap.Logger
}

// NewDBMetrics creates the query instruments and, when sqlDB is given,
// an observable gauge over its pool statistics.
func NewDBMetrics(meter metric.Meter, sqlDB *sql.DB, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}

	m := &DBMetrics{config: cfg, logger: logger}
	var err error
	if m.queryTotal, err = NewCounter(meter, "bakery_db_query_total",
		"Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.queryErrors, err = NewCounter(meter, "bakery_db_query_errors_total",
		"Database queries that returned an error other than not found", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "bakery_db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "bakery_db_slow_query_total",
		"Database queries slower than the configured threshold", "{query}"); err != nil {
		return nil, err
	}

	if sqlDB != nil {
		pool, err := meter.Int64ObservableGauge("bakery_db_pool_connections",
			metric.WithDescription("Connections in the pool by state"),
			metric.WithUnit("{connection}"))
		if err != nil {
			return nil, err
		}
		m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			stats := sqlDB.Stats()
			o.ObserveInt64(pool, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
			o.ObserveInt64(pool, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
			o.ObserveInt64(pool, int64(stats.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
			return nil
		}, pool)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordQuery records one finished query.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "OTHER"
	}
	op := AttrDBOperation.String(operation)

	m.queryTotal.Inc(ctx, op)
	m.queryDuration.RecordDuration(ctx, duration, op)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.queryErrors.Inc(ctx, op)
	}
	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTableKey.String(table))
		m.logger.Warn("Slow database query",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Duration("duration", duration))
	}
}

// Stop unregisters the pool callback. Safe to call more than once.
func (m *DBMetrics) Stop() {
	if m.registration == nil {
		return
	}
	if err := m.registration.Unregister(); err != nil {
		m.logger.Debug("Pool metrics callback already unregistered", zap.Error(err))
	}
	m.registration = nil
}

type dbMetricsContextKey struct{}

// Name implements gorm.Plugin.
func (m *DBMetrics) Name() string {
	return "bakery:db_metrics"
}

// Initialize implements gorm.Plugin by timing every create, query, update,
// delete, row and raw statement.
func (m *DBMetrics) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) { m.finish(tx, operation) }
	}

	if err := cb.Create().Before("gorm:create").Register("bakery:before_create", m.start); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("bakery:after_create", after("INSERT")); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("bakery:before_query", m.start); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("bakery:after_query", after("SELECT")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("bakery:before_update", m.start); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("bakery:after_update", after("UPDATE")); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("bakery:before_delete", m.start); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("bakery:after_delete", after("DELETE")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("bakery:before_row", m.start); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("bakery:after_row", after("")); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("bakery:before_raw", m.start); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("bakery:after_raw", after(""))
}

func (m *DBMetrics) start(tx *gorm.DB) {
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tx.Statement.Context = context.WithValue(ctx, dbMetricsContextKey{}, time.Now())
}

func (m *DBMetrics) finish(tx *gorm.DB, operation string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	started, ok := ctx.Value(dbMetricsContextKey{}).(time.Time)
	if !ok {
		return
	}
	if operation == "" {
		operation = detectOperationType(tx.Statement.SQL.String())
	}
	m.RecordQuery(ctx, operation, tx.Statement.Table, time.Since(started), tx.Error)
}

func detectOperationType(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

// RegisterDBMetrics attaches query metrics to db. It returns nil when the
// meter provider is disabled.
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("MeterProvider not available, skipping database metrics")
		return nil, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	m, err := NewDBMetrics(meterProvider.Meter("bakery.db"), sqlDB, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Use(m); err != nil {
		m.Stop()
		return nil, err
	}

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", m.config.SlowQueryThreshold))
	return m, nil
}
