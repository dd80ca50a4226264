// Package logger builds the application's slog logger: text output for
// development, JSON in production, every record tagged with its environment.
package logger
