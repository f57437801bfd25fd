package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillLogger adapts zerolog to watermill's LoggerAdapter.
type watermillLogger struct {
	logger  zerolog.Logger
	verbose bool
}

var _ watermill.LoggerAdapter = &watermillLogger{}

func newWatermillLogger(logger zerolog.Logger, verbose bool) *watermillLogger {
	return &watermillLogger{
		logger:  logger.With().Str("component", "watermill").Logger(),
		verbose: verbose,
	}
}

// NewWatermillLoggerAdapter exposes the zerolog adapter to packages that
// build their own watermill publishers/subscribers (redis transport).
func NewWatermillLoggerAdapter(logger zerolog.Logger, verbose bool) watermill.LoggerAdapter {
	return newWatermillLogger(logger, verbose)
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), msg, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	if !l.verbose {
		l.event(l.logger.Debug(), msg, fields)
		return
	}
	l.event(l.logger.Info(), msg, fields)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), msg, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), msg, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &watermillLogger{logger: ctx.Logger(), verbose: l.verbose}
}

func (l *watermillLogger) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
