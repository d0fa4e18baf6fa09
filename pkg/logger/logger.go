package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance. It is a no-op logger until Init runs.
var Log = zap.NewNop()

// Init builds the global logger.
// isDevelopment: true for colored console output at debug level, false for JSON at info level
func Init(isDevelopment bool) error {
	var config zap.Config

	if isDevelopment {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	built, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return err
	}

	Log = built
	return nil
}

// Sync flushes any buffered log entries
// Should be called before application exits
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
