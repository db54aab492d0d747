package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/selkies/backend/internal/infrastructure/config"
)

// Span attributes and events added on top of the otelgorm statement spans
const (
	AttrDBTable        = "bakery.db.table"
	AttrDBRowsAffected = "bakery.db.rows_affected"
	EventSlowQuery     = "slow_query"

	dbTracingStartKey = "bakery:trace_start"
)

// DBTracingConfig configures statement spans.
type DBTracingConfig struct {
	Enabled bool
	// DBName is reported as db.name on each span
	DBName string
	// IncludeVariables keeps bound values in db.statement. Delivery addresses and
	// postal codes end up in spans when set.
	IncludeVariables bool
	SlowQuery        time.Duration
	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
}

// NewDBTracingConfig derives statement tracing settings from the telemetry section.
// Tracing needs the tracer provider, so it stays off while telemetry is disabled.
func NewDBTracingConfig(cfg config.TelemetryConfig, dbName string) DBTracingConfig {
	return DBTracingConfig{
		Enabled:          cfg.Enabled && cfg.DBTracing,
		DBName:           dbName,
		IncludeVariables: cfg.DBTracingVariables,
		SlowQuery:        cfg.DBSlowQuery,
	}
}

// DBTracingPlugin puts one span per GORM statement through otelgorm and tags it
// with the table, affected rows and a slow query event.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the plugin. Nothing is registered until RegisterOtelGorm.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm installs otelgorm and the annotation callbacks on db. It is a
// no-op when tracing is disabled.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBName)}
	if !p.config.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if p.config.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(p.config.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := db.Use(p); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.String("db_name", p.config.DBName),
		zap.Bool("include_variables", p.config.IncludeVariables),
		zap.Duration("slow_query", p.config.SlowQuery),
	)
	return nil
}

// Name implements gorm.Plugin
func (p *DBTracingPlugin) Name() string {
	return "bakery:db_tracing"
}

// Initialize implements gorm.Plugin. The annotation runs after the statement and
// before otelgorm ends the span.
func (p *DBTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	type hook struct {
		op       string
		before   func(string) error
		annotate func(string) error
	}
	hooks := []hook{
		{"create",
			func(n string) error { return cb.Create().Before("gorm:create").Register(n, p.start) },
			func(n string) error {
				return cb.Create().After("gorm:create").Before("otel:after:create").Register(n, p.annotate)
			}},
		{"query",
			func(n string) error { return cb.Query().Before("gorm:query").Register(n, p.start) },
			func(n string) error {
				return cb.Query().After("gorm:query").Before("otel:after:query").Register(n, p.annotate)
			}},
		{"update",
			func(n string) error { return cb.Update().Before("gorm:update").Register(n, p.start) },
			func(n string) error {
				return cb.Update().After("gorm:update").Before("otel:after:update").Register(n, p.annotate)
			}},
		{"delete",
			func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, p.start) },
			func(n string) error {
				return cb.Delete().After("gorm:delete").Before("otel:after:delete").Register(n, p.annotate)
			}},
		{"row",
			func(n string) error { return cb.Row().Before("gorm:row").Register(n, p.start) },
			func(n string) error {
				return cb.Row().After("gorm:row").Before("otel:after:row").Register(n, p.annotate)
			}},
		{"raw",
			func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, p.start) },
			func(n string) error {
				return cb.Raw().After("gorm:raw").Before("otel:after:raw").Register(n, p.annotate)
			}},
	}
	for _, h := range hooks {
		if err := h.before("bakery_trace:before_" + h.op); err != nil {
			return err
		}
		if err := h.annotate("bakery_trace:after_" + h.op); err != nil {
			return err
		}
	}
	return nil
}

func (p *DBTracingPlugin) start(tx *gorm.DB) {
	tx.InstanceSet(dbTracingStartKey, time.Now())
}

func (p *DBTracingPlugin) annotate(tx *gorm.DB) {
	if tx.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(tx.Statement.Context)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String(AttrDBTable, tx.Statement.Table))
	}
	if tx.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64(AttrDBRowsAffected, tx.Statement.RowsAffected))
	}
	// A missing order is an answer, not a failure
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		RecordError(span, tx.Error)
	}

	started, ok := tx.InstanceGet(dbTracingStartKey)
	if !ok || p.config.SlowQuery <= 0 {
		return
	}
	if elapsed := time.Since(started.(time.Time)); elapsed > p.config.SlowQuery {
		span.AddEvent(EventSlowQuery, trace.WithAttributes(
			attribute.Int64("elapsed_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQuery.Milliseconds()),
		))
	}
}
