// Package logging provides structured logging for sensorhub.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text during development, with service and version attached
// to each entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("ingest").Info("payload ingested", "inserted", n)
//
// Never log DSNs, tokens or passwords.
package logging
