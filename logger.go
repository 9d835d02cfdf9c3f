package quarry

// logger.go wires the diagnostic channel.
//
// The configured zap logger serves three consumers: the engine's own
// Infof/Fatalf logger shape, the optional background-event listener, and
// the bridge fault boundaries, which log caught callback panics with a
// stack trace before converting them to in-band failure values.

import (
	"go.uber.org/zap"
)

// engineLogger adapts a zap logger to the engine's logger shape.
type engineLogger struct {
	s *zap.SugaredLogger
}

func (l engineLogger) Infof(format string, args ...interface{}) {
	l.s.Infof(format, args...)
}

func (l engineLogger) Fatalf(format string, args ...interface{}) {
	l.s.Fatalf(format, args...)
}

// logCallbackPanic records a fault caught at a bridge boundary. The fault
// must not propagate further; the caller converts it to the callback's
// failure value.
func logCallbackPanic(logger *zap.Logger, callback string, r any) {
	logger.Error("callback panic contained at bridge boundary",
		zap.String("callback", callback),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
}
