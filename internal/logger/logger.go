package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global SugaredLogger. It is a no-op until Initialize is
// called, so packages can log unconditionally.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

// Initialize replaces the global logger with a production logger at the
// given level. Timestamps are rendered in ISO 8601 so ledger entries and
// log lines share a time format.
func Initialize(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	Log = l.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Callers should defer it on
// shutdown; errors from syncing stderr are ignored by callers.
func Sync() error {
	return Log.Sync()
}
