// Package logger builds log/slog loggers from environment-driven
// configuration: structured JSON for production, human-readable text for
// development.
package logger
