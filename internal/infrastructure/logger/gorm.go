package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultSlowQuery = 200 * time.Millisecond
	// Long IN lists from catalog lookups are cut to keep log lines bounded
	maxLoggedSQL = 2048
)

// GormLogger routes GORM output to zap. Statements carry the request, session and
// trace of the HTTP call that issued them.
type GormLogger struct {
	log         *zap.Logger
	level       gormlogger.LogLevel
	slowQuery   time.Duration
	logNotFound bool
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowQuery sets the duration above which a statement is logged at warn. Zero disables it.
func WithSlowQuery(d time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowQuery = d
	}
}

// WithNotFoundLogged reports gorm.ErrRecordNotFound as an error. Lookups of unknown
// orders are expected, so it is off by default.
func WithNotFoundLogged() GormLoggerOption {
	return func(l *GormLogger) {
		l.logNotFound = true
	}
}

// NewGormLogger creates a GORM logger writing to zapLogger
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	l := &GormLogger{
		log:       zapLogger.Named("gorm"),
		level:     level,
		slowQuery: defaultSlowQuery,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode returns a copy at the given level
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, data...), correlation(ctx)...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...), correlation(ctx)...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, data...), correlation(ctx)...)
	}
}

// Trace logs one executed statement: failures at error, slow statements at warn,
// everything else at debug when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	if errors.Is(err, gormlogger.ErrRecordNotFound) && !l.logNotFound {
		return
	}
	elapsed := time.Since(begin)

	failed := err != nil && l.level >= gormlogger.Error
	slow := l.slowQuery > 0 && elapsed > l.slowQuery && l.level >= gormlogger.Warn
	if !failed && !slow && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := append(correlation(ctx),
		zap.String("sql", truncateSQL(sql)),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	)
	switch {
	case failed:
		l.log.Error("query failed", append(fields, zap.Error(err))...)
	case slow:
		l.log.Warn("slow query", append(fields, zap.Duration("threshold", l.slowQuery))...)
	default:
		l.log.Debug("query", fields...)
	}
}

func correlation(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetSessionID(ctx); id != "" {
		fields = append(fields, zap.String("session_id", id))
	}
	if id := GetTraceID(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	return fields
}

func truncateSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "..."
}

// MapGormLogLevel maps the application log level to a GORM level. Statements are
// only traced at debug and info.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error", "fatal":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	}
	return gormlogger.Warn
}
