// Package logging provides structured logging for the Emitter client.
//
// It wraps log/slog so that every component logs with the same default
// fields (service, version) and the level/format chosen in the config:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected", "broker", cfg.Emitter.Broker.URL())
//
// # Security
//
// Never log channel keys or MQTT passwords in full. Use Redact:
//
//	logger.Info("key generated", "key", logging.Redact(resp.Key))
package logging
