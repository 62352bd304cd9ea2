package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger routes gorm's statement log through zerolog. Statements are
// traced; record-not-found results are not logged as failures.
type gormLogger struct {
	parent zerolog.Logger
}

func newGormLogger(logger zerolog.Logger) gormlogger.Interface {
	return &gormLogger{parent: logger.With().Str("component", "store").Logger()}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	var zl zerolog.Level
	switch level {
	case gormlogger.Info:
		zl = zerolog.InfoLevel
	case gormlogger.Warn:
		zl = zerolog.WarnLevel
	case gormlogger.Error:
		zl = zerolog.ErrorLevel
	default:
		zl = zerolog.Disabled
	}
	return &gormLogger{parent: l.parent.Level(zl)}
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.parent.Info().Msgf(msg, args...)
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.parent.Warn().Msgf(msg, args...)
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.parent.Error().Msgf(msg, args...)
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	event := l.parent.Trace()
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		event = l.parent.Debug().Err(err)
	}
	event.Dur("elapsed", time.Since(begin)).Func(func(e *zerolog.Event) {
		sql, rows := fc()
		e.Str("sql", sql)
		e.Int64("rows_affected", rows)
	}).Msg("sql")
}
