// Package logger provides structured logging for nodeflow using zerolog.
//
// Loggers are scoped by component ("engine", "coordinator", "httpapi") and
// carry pass and node identifiers as structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("engine")
//	log.Info("pass completed", logger.Fields(logger.FieldPassID, id))
package logger
