package config

import (
	"path/filepath"
	"time"
)

// Default configuration values.
const (
	DefaultGCInterval  = 10 * time.Minute
	DefaultGCThreshold = 0.5
	DefaultAlgorithm   = "aes-gcm"
	DefaultVaultSubdir = "vault"

	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			SyncWrites:  true,
			GCInterval:  DefaultGCInterval,
			GCThreshold: DefaultGCThreshold,
		},
		Vault: VaultSection{
			Algorithm: DefaultAlgorithm,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// VaultDir returns the configured vault directory, defaulting to a
// subdirectory of the data directory.
func (c *Config) VaultDir() string {
	if c.Vault.Dir != "" {
		return c.Vault.Dir
	}
	if c.Storage.DataDir == "" {
		return ""
	}
	return filepath.Join(c.Storage.DataDir, DefaultVaultSubdir)
}
