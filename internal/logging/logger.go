package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "LUMEN_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks LUMEN_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	// If no level provided, check environment variable
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	// If still no level, use silent mode (nop logger)
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	// Customize encoder for better readability
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the LUMEN_LOG_LEVEL
// environment variable. This is the recommended way to initialize logging
// for CLI commands that want silent mode by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		// This ensures no unexpected log output in CLI commands
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogSessionState logs a provisioning session state transition
func LogSessionState(peripheralID string, from string, to string) {
	Info("Provisioning state change",
		zap.String("peripheral_id", peripheralID),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// LogPollTick logs a single join-detection poll attempt
func LogPollTick(peripheralID string, attempt int, maxAttempts int) {
	Debug("Join poll tick",
		zap.String("peripheral_id", peripheralID),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", maxAttempts),
	)
}

// LogHTTPCall logs an outbound device HTTP call
func LogHTTPCall(ip string, method string, path string, err error) {
	if err != nil {
		Warn("Device HTTP call failed",
			zap.String("ip", ip),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	Debug("Device HTTP call",
		zap.String("ip", ip),
		zap.String("method", method),
		zap.String("path", path),
	)
}

// LogOTAProgress logs an observed firmware-update progress value
func LogOTAProgress(deviceID string, percent int, status string) {
	Debug("OTA progress",
		zap.String("device_id", deviceID),
		zap.Int("percent", percent),
		zap.String("status", status),
	)
}

// LogRegistryWrite logs a device registry write
func LogRegistryWrite(deviceID string, op string) {
	Debug("Registry write",
		zap.String("device_id", deviceID),
		zap.String("op", op),
	)
}

// LogProbeTick logs a connectivity probe tick result
func LogProbeTick(deviceID string, online bool, elapsed time.Duration) {
	Debug("Probe tick",
		zap.String("device_id", deviceID),
		zap.Bool("online", online),
		zap.Duration("elapsed", elapsed),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
