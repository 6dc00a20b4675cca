// Package config defines the lockbox configuration structure.
//
//   - spec.go: Config struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of secrets for display
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// LOCKBOX_ environment variables and command-line flags.
package config
