// Package logger provides structured logging for Lockbox.
//
// It wraps log/slog:
//
//   - logger.go: Logger interface, configuration and the global default
//   - redact.go: masking of key material, passphrases and ciphertext
//   - safe.go: a wrapper that isolates storage code from a failing sink
//
// Features:
//
//   - JSON and text output formats
//   - Dynamic log level
//   - Automatic sensitive data masking
package logger
