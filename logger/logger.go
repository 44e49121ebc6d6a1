// Package logger provides structured logging for gatewarden.
//
// This package wraps Uber's zap logger to provide high-performance,
// structured logging with configurable log levels. It initializes a global
// logger instance for the reference server; library packages take a
// *zap.Logger explicitly instead of reaching for the global.
//
// # Configuration
//
// The log level is configured via the LOG_LEVEL environment variable or
// directly via InitLogger:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//
// # Usage
//
// After initialization, use the global Log variable:
//
//	logger.Log.Info("request denied",
//	    zap.String("path", path),
//	    zap.String("decision", decision.String()),
//	)
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is a no-op until InitLogger runs, so
// early code paths never dereference nil.
var Log = zap.NewNop()

// InitLogger configures the global logger at the given level. Unknown
// levels fall back to info.
func InitLogger(level string) {
	Log = New(level)
}

// New builds a production logger at the given level, for callers that
// prefer explicit injection over the package global.
func New(level string) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
