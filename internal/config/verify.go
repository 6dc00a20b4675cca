package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/lockbox-go/pkg/crypto/seal"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyVault(&cfg.Vault); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" && !cfg.InMemory {
		return errors.New("storage.data_dir is required unless storage.in_memory is set")
	}
	if cfg.TargetVersion < 0 {
		return fmt.Errorf("storage.target_version must be >= 0, got %d", cfg.TargetVersion)
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		return fmt.Errorf("storage.gc_threshold must be in (0, 1), got %v", cfg.GCThreshold)
	}
	if cfg.GCInterval < 0 {
		return errors.New("storage.gc_interval must not be negative")
	}
	return nil
}

func verifyVault(cfg *VaultSection) error {
	if _, err := seal.ParseAlgorithm(cfg.Algorithm); err != nil {
		return fmt.Errorf("vault.algorithm: %w", err)
	}
	if cfg.Passphrase != "" && len(cfg.Passphrase) < seal.MinPassphraseLength {
		return fmt.Errorf("vault.passphrase must be at least %d characters", seal.MinPassphraseLength)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
	return nil
}
