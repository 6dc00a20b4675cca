package config

import "time"

// Config is the root lockbox configuration.
type Config struct {
	Storage StorageSection `koanf:"storage" json:"storage" yaml:"storage"`
	Vault   VaultSection   `koanf:"vault" json:"vault" yaml:"vault"`
	Log     LogSection     `koanf:"log" json:"log" yaml:"log"`
}

// StorageSection configures the storage engine.
type StorageSection struct {
	// DataDir holds the primary and backup boxes. Empty means the platform
	// data directory.
	DataDir string `koanf:"data_dir" json:"data_dir" yaml:"data_dir"`

	// InMemory keeps all data in process memory.
	InMemory bool `koanf:"in_memory" json:"in_memory" yaml:"in_memory"`

	// TargetVersion pins the schema version. 0 means the latest migration.
	TargetVersion int `koanf:"target_version" json:"target_version" yaml:"target_version"`

	SyncWrites  bool          `koanf:"sync_writes" json:"sync_writes" yaml:"sync_writes"`
	GCInterval  time.Duration `koanf:"gc_interval" json:"gc_interval" yaml:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold" json:"gc_threshold" yaml:"gc_threshold"`

	// CaptureTrace attaches stack traces to storage errors.
	CaptureTrace bool `koanf:"capture_trace" json:"capture_trace" yaml:"capture_trace"`
}

// VaultSection configures the protected store holding the key material.
type VaultSection struct {
	// Dir defaults to <data_dir>/vault.
	Dir string `koanf:"dir" json:"dir" yaml:"dir"`

	// Passphrase seals the vault. Prefer LOCKBOX_VAULT_PASSPHRASE over
	// writing it to a file.
	Passphrase string `koanf:"passphrase" json:"passphrase" yaml:"passphrase"`

	// Algorithm is aes-gcm or chacha20-poly1305.
	Algorithm string `koanf:"algorithm" json:"algorithm" yaml:"algorithm"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}
