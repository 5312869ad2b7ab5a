// Package logger provides a structured logging interface for the bulk download client.
//
// It wraps zerolog behind a small interface so that packages can accept a
// Logger and tests can substitute NewTestLogger or NewNopLogger.
//
// Basic Usage:
//
//	cfg := &config.LoggingConfig{Level: "info", File: "/var/log/espadl.log"}
//	if err := logger.Initialize(cfg); err != nil {
//	    return err
//	}
//
//	logger.WithField("order_id", "espa-1234").Info("Listing order")
//	logger.WithError(err).Error("Transfer failed")
//
// When File is set, output is also written to a rotating file (lumberjack);
// MaxSize, MaxBackups, MaxAge and Compress control rotation.
package logger
