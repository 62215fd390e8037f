// Package logging provides structured logging for the lumen tools.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the CLI and simulator. It provides both general
// logging functions and specialized functions for protocol-specific needs
// (provisioning state changes, poll ticks, OTA progress).
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (poll ticks, HTTP calls, registry writes)
//   - Info: Normal operations (state transitions, session outcomes)
//   - Warn: Non-fatal issues (failed poll ticks, swallowed transport errors)
//   - Error: Fatal issues (startup failures, unrecoverable errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Device provisioned",
//	    zap.String("device_id", "AB12"),
//	    zap.String("ip", "192.168.1.50"),
//	    zap.String("firmware", "1.0.0"),
//	)
//
// # Configuration
//
// Logging is silent by default so it never pollutes CLI output. Set the
// LUMEN_LOG_LEVEL environment variable (or pass a level to Initialize) to
// enable it:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
