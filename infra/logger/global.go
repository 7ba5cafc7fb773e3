package logger

import (
	"sync"

	"github.com/mstgnz/paygate/infra/config"
)

var (
	globalMu     sync.RWMutex
	globalLogger *SystemLogger
)

// InitGlobalLogger installs the process-wide logger. A nil sink logs to the
// console only.
func InitGlobalLogger(sink EventSink) {
	cfg := SystemLoggerConfig{
		EnableConsole: true,
		EnableSink:    sink != nil,
		MinLevel:      LogLevel(config.GetEnv("LOGGING_LEVEL", string(LevelInfo))),
		Service:       "paygate",
		Version:       "1.0.0",
		Environment:   config.GetEnv("ENVIRONMENT", "development"),
	}

	if cfg.Environment == "development" && config.GetEnv("LOGGING_LEVEL", "") == "" {
		cfg.MinLevel = LevelDebug
	}

	SetGlobalLogger(NewSystemLogger(sink, cfg))
}

// SetGlobalLogger replaces the process-wide logger, mainly for tests
func SetGlobalLogger(sl *SystemLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = sl
}

// GetGlobalLogger returns the global logger, falling back to a console logger
func GetGlobalLogger() *SystemLogger {
	globalMu.RLock()
	sl := globalLogger
	globalMu.RUnlock()
	if sl != nil {
		return sl
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       "paygate",
			Version:       "1.0.0",
			Environment:   "development",
		})
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithProvider creates a context logger for one gateway
func WithProvider(provider string) *ContextLogger {
	return WithContext(LogContext{Provider: provider})
}
